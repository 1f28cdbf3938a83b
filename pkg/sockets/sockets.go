// Package sockets provides the privileged network endpoints the proxy
// listens on: the BOOTP broadcast socket, the raw ICMPv6 neighbor
// discovery socket and the DHCPv6 client socket.
//
// Conn is deliberately narrow. After a socket is opened and handed to a
// privsep process it is only ever read, waited on and written through;
// everything else (options, binding, filters) happens at open time while
// the process still holds full privilege.
package sockets

import (
	"net/netip"

	"github.com/netherd/inetproxy/pkg/psproto"
)

// Well-known client ports
const (
	BootpClientPort = 68
	DHCP6ClientPort = 546
)

// Datagram is one received packet together with its ancillary data. The
// control bytes are passed through verbatim so the engine's parsers see
// exactly what the kernel delivered.
type Datagram struct {
	Data    []byte
	Control []byte
	Src     netip.AddrPort
	IfIndex uint32
}

// Conn is one open proxy socket. Readable makes it registrable with a
// reactor loop; ReadMessage never blocks and reports io.EOF once the
// socket has been closed and drained.
type Conn interface {
	ReadMessage() (*Datagram, error)
	WriteMessage(m *psproto.Message) (int, error)
	Readable() <-chan struct{}
	Fd() int
	Close() error
}

// Opener creates protocol sockets. A zero ifindex or zero addr asks for
// the unbound default socket; a concrete identity narrows the socket to
// one interface or address.
type Opener interface {
	OpenBootp(ifindex uint32, addr netip.Addr) (Conn, error)
	OpenND(ifindex uint32) (Conn, error)
	OpenDHCP6(ifindex uint32, addr netip.Addr) (Conn, error)
}
