// Package metrics exports connection lifecycle events as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rmacdonaldsmith/pusher-go/pkg/connection"
)

// Config configures the Observer.
type Config struct {
	// Namespace is the metrics namespace (default: "pusher").
	Namespace string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Observer implements connection.Observer.
type Observer struct {
	state          *prometheus.GaugeVec
	transitions    *prometheus.CounterVec
	frames         *prometheus.CounterVec
	decodeFailures prometheus.Counter
	reconnects     prometheus.Counter
	reconnectDelay prometheus.Histogram
}

var _ connection.Observer = (*Observer)(nil)

var allStates = []connection.State{
	connection.Initialized,
	connection.Connecting,
	connection.Connected,
	connection.Unavailable,
	connection.Failed,
	connection.Disconnected,
}

// New registers the connection metrics.
func New(config Config) *Observer {
	if config.Namespace == "" {
		config.Namespace = "pusher"
	}
	if config.Registry == nil {
		config.Registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(config.Registry)

	o := &Observer{
		state: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Name:        "connection_state",
			Help:        "1 for the current connection state, 0 otherwise",
			ConstLabels: config.ConstLabels,
		}, []string{"state"}),

		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "state_transitions_total",
			Help:        "Connection state transitions by target state",
			ConstLabels: config.ConstLabels,
		}, []string{"state"}),

		frames: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "frames_received_total",
			Help:        "Decoded inbound envelopes by event name",
			ConstLabels: config.ConstLabels,
		}, []string{"event"}),

		decodeFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "decode_failures_total",
			Help:        "Inbound frames dropped because they could not be decoded",
			ConstLabels: config.ConstLabels,
		}),

		reconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "reconnects_total",
			Help:        "Reconnect attempts scheduled",
			ConstLabels: config.ConstLabels,
		}),

		reconnectDelay: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Name:        "reconnect_delay_seconds",
			Help:        "Delay before each scheduled reconnect",
			ConstLabels: config.ConstLabels,
			Buckets:     []float64{0.1, 0.5, 1, 5, 10, 30, 60},
		}),
	}

	for _, s := range allStates {
		o.state.WithLabelValues(s.String()).Set(0)
	}
	o.state.WithLabelValues(connection.Initialized.String()).Set(1)
	return o
}

func (o *Observer) StateChanged(from, to connection.State) {
	o.state.WithLabelValues(from.String()).Set(0)
	o.state.WithLabelValues(to.String()).Set(1)
	o.transitions.WithLabelValues(to.String()).Inc()
}

func (o *Observer) FrameReceived(event string) {
	o.frames.WithLabelValues(event).Inc()
}

func (o *Observer) DecodeFailed() {
	o.decodeFailures.Inc()
}

func (o *Observer) ReconnectScheduled(delay time.Duration) {
	o.reconnects.Inc()
	o.reconnectDelay.Observe(delay.Seconds())
}

// Handler serves the metrics in g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
