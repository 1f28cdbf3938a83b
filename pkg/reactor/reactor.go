package reactor

// Handler is invoked by the loop when its registered source has a frame
// or datagram pending. Handlers perform their own read; the loop only
// signals readiness.
type Handler func()

// Pollable is an event source the loop can wait on. Each token received
// from Readable announces one pending read; the channel closes when the
// source shuts down.
type Pollable interface {
	Readable() <-chan struct{}
}

// Loop is the event-loop collaborator boundary. Every privsep process
// runs exactly one loop; all callbacks for a loop execute on a single
// goroutine, so handlers never race each other.
type Loop interface {
	// Register arranges for fn to run whenever src becomes readable
	Register(src Pollable, fn Handler) error
	// Exit stops the loop with the given status once the current
	// callback returns
	Exit(status int)
}
