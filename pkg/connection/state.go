package connection

// State is the lifecycle state of a Connection.
type State int

const (
	Initialized State = iota
	Connecting
	Connected
	Unavailable
	Failed
	Disconnected
)

func (s State) String() string {
	switch s {
	case Initialized:
		return "initialized"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Unavailable:
		return "unavailable"
	case Failed:
		return "failed"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}
