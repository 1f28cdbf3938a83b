// Package hub implements the privileged network proxy process. The hub
// owns the default protocol sockets, serves lifecycle and transmit
// commands arriving from the engine, and supervises the per-identity
// listener workers it spawns on demand.
package hub
