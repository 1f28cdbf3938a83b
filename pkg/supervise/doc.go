// Package supervise is the process-supervision collaborator boundary.
//
// The hub consumes the Supervisor interface to create per-identity
// worker processes and the engine consumes it to create the hub itself.
// The generic fork/exec machinery lives behind this boundary and is not
// part of this repository; the in-process Local supervisor exists for
// tests and for the single-process (non-forking) mode, where "processes"
// are goroutine-hosted event loops joined by channel pairs.
package supervise
