// Package worker implements the per-identity listener process. A worker
// owns exactly one protocol socket, forwards everything it receives to
// the hub over its channel, and transmits frames the hub relays down.
// It holds privilege only long enough to open its socket.
package worker
