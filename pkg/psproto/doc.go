// Package psproto defines the command frames exchanged between the
// unprivileged engine, the privileged network-proxy hub and its
// per-address worker processes.
//
// A frame carries one command: a plain payload forward (Transmit), or a
// worker lifecycle request (Start, Stop) keyed by an Identity. Internal
// code only ever sees the tagged Command form; the compact bit-flag wire
// encoding exists solely inside Marshal and Unmarshal.
package psproto
