// Package callback provides the event-name to callback registry used for both
// connection-level and channel-level events.
//
// Callbacks are typed closures that receive only the event payload. Any extra
// context a callback needs is captured when the closure is created:
//
//	registry.Bind("order-created", func(data json.RawMessage) {
//		store.Apply(tenantID, data) // tenantID bound at bind time
//	})
//
// Dispatch is fire-and-forget. Each registration is handed to a Spawner as an
// independent unit of work, in registration order; the dispatcher never waits
// for a callback to finish. A panicking callback is recovered and logged and
// never reaches the caller of Dispatch.
package callback
