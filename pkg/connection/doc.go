// Package connection implements the connection lifecycle and message-dispatch
// engine of the broker client.
//
// A Connection owns exactly one transport handle at a time and drives it
// through a small state machine:
//
//	initialized -> connecting -> connected
//	connecting/connected --(I/O error)--> failed      --(delay)--> connecting
//	connecting/connected --(no data)----> unavailable --(delay)--> connecting
//	any --(Disconnect)--> disconnected (terminal)
//
// Connect blocks while it runs the receive loop and the reconnect loop. It
// never returns transport or timeout failures; callers observe them through
// State and the optional Observer. Reconnects repeat at a constant interval
// until Disconnect is called.
//
// Inbound frames are decoded with package envelope. Envelopes without a
// channel go to the connection-level callback registry; envelopes with a
// channel go to that Channel's registry only. Callbacks run as independent
// units of work scheduled by a callback.Spawner.
//
// Example usage:
//
//	conn, err := connection.New(connection.Config{
//		URL:       url,
//		Transport: transport.NewWebSocket(transport.Config{}),
//		Logger:    logger,
//	})
//	if err != nil {
//		return err
//	}
//	conn.Bind(envelope.EventConnectionEstablished, func(data json.RawMessage) {
//		ch, _ := conn.Subscribe(ctx, "orders")
//		ch.Bind("order-created", handleOrder)
//	})
//	go conn.Connect(ctx)
//	defer conn.Disconnect()
//
// Channel names starting with "private-" or "presence-" are authorized through
// the configured Authorizer before their subscribe envelope is sent.
package connection
