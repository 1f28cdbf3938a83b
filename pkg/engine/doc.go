// Package engine is the unprivileged client side of the proxy. It
// spawns the hub, issues lifecycle and transmit commands over the hub
// channel, and hands forwarded datagrams to the protocol parsers
// registered with it.
package engine
