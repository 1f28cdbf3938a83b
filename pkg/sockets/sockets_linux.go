//go:build linux

package sockets

import (
	"encoding/binary"
	"fmt"
	"io"
	"net/netip"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/netherd/inetproxy/internal/logger"
	"github.com/netherd/inetproxy/pkg/psproto"
	"github.com/netherd/inetproxy/pkg/types"
)

// ICMPv6 types accepted by the neighbor discovery socket
const (
	icmp6RouterAdvert   = 134
	icmp6NeighborAdvert = 136
)

const (
	readBufLen = 64 * 1024
	oobBufLen  = 512
	// datagrams buffered per socket before the pump starts dropping
	connBacklog = 64
)

// platformOpener opens the native Linux sockets
type platformOpener struct {
	log *logger.Logger
}

// NewPlatformOpener returns the native socket opener for this build
func NewPlatformOpener(log *logger.Logger) Opener {
	if log == nil {
		log, _ = logger.NewDefault()
	}
	return &platformOpener{log: log.With("component", "sockets")}
}

// OpenBootp opens the UDP broadcast socket on the BOOTP client port,
// bound to addr when the identity names one
func (o *platformOpener) OpenBootp(ifindex uint32, addr netip.Addr) (Conn, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, unix.IPPROTO_UDP)
	if err != nil {
		return nil, types.WrapError(types.ErrCodeSocketOpen, "failed to create bootp socket", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, types.WrapError(types.ErrCodeSocketOpen, "failed to set SO_REUSEADDR", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_BROADCAST, 1); err != nil {
		unix.Close(fd)
		return nil, types.WrapError(types.ErrCodeSocketOpen, "failed to set SO_BROADCAST", err)
	}
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_PKTINFO, 1); err != nil {
		unix.Close(fd)
		return nil, types.WrapError(types.ErrCodeSocketOpen, "failed to set IP_PKTINFO", err)
	}

	sa := &unix.SockaddrInet4{Port: BootpClientPort}
	if addr.IsValid() && addr.Is4() {
		sa.Addr = addr.As4()
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, types.WrapError(types.ErrCodeSocketOpen,
			fmt.Sprintf("failed to bind bootp socket to %s:%d", addr, BootpClientPort), err)
	}

	return o.newConn(fd, "bootp", ifindex), nil
}

// OpenND opens the raw ICMPv6 socket filtered down to router and
// neighbor advertisements. A nonzero ifindex narrows delivery to that
// interface.
func (o *platformOpener) OpenND(ifindex uint32) (Conn, error) {
	fd, err := unix.Socket(unix.AF_INET6, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.IPPROTO_ICMPV6)
	if err != nil {
		return nil, types.WrapError(types.ErrCodeSocketOpen, "failed to create nd socket", err)
	}

	if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_RECVPKTINFO, 1); err != nil {
		unix.Close(fd)
		return nil, types.WrapError(types.ErrCodeSocketOpen, "failed to set IPV6_RECVPKTINFO", err)
	}
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_RECVHOPLIMIT, 1); err != nil {
		unix.Close(fd)
		return nil, types.WrapError(types.ErrCodeSocketOpen, "failed to set IPV6_RECVHOPLIMIT", err)
	}

	filter := ndFilter()
	if err := unix.SetsockoptICMPv6Filter(fd, unix.IPPROTO_ICMPV6, unix.ICMPV6_FILTER, &filter); err != nil {
		unix.Close(fd)
		return nil, types.WrapError(types.ErrCodeSocketOpen, "failed to set ICMPv6 filter", err)
	}

	return o.newConn(fd, "nd", ifindex), nil
}

// ndFilter builds the ICMP6_FILTER bitmap: everything blocked except
// router and neighbor advertisements. A set bit blocks the type.
func ndFilter() unix.ICMPv6Filter {
	var filter unix.ICMPv6Filter
	for i := range filter.Data {
		filter.Data[i] = ^uint32(0)
	}
	for _, t := range []uint32{icmp6RouterAdvert, icmp6NeighborAdvert} {
		filter.Data[t>>5] &^= 1 << (t & 31)
	}
	return filter
}

// OpenDHCP6 opens the IPv6-only UDP socket on the DHCPv6 client port
func (o *platformOpener) OpenDHCP6(ifindex uint32, addr netip.Addr) (Conn, error) {
	fd, err := unix.Socket(unix.AF_INET6, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, unix.IPPROTO_UDP)
	if err != nil {
		return nil, types.WrapError(types.ErrCodeSocketOpen, "failed to create dhcp6 socket", err)
	}

	if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 1); err != nil {
		unix.Close(fd)
		return nil, types.WrapError(types.ErrCodeSocketOpen, "failed to set IPV6_V6ONLY", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, types.WrapError(types.ErrCodeSocketOpen, "failed to set SO_REUSEADDR", err)
	}
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_RECVPKTINFO, 1); err != nil {
		unix.Close(fd)
		return nil, types.WrapError(types.ErrCodeSocketOpen, "failed to set IPV6_RECVPKTINFO", err)
	}

	sa := &unix.SockaddrInet6{Port: DHCP6ClientPort}
	if addr.IsValid() && addr.Is6() && !addr.Is4In6() {
		sa.Addr = addr.As16()
		sa.ZoneId = ifindex
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, types.WrapError(types.ErrCodeSocketOpen,
			fmt.Sprintf("failed to bind dhcp6 socket to %s:%d", addr, DHCP6ClientPort), err)
	}

	return o.newConn(fd, "dhcp6", ifindex), nil
}

func (o *platformOpener) newConn(fd int, proto string, wantIfIndex uint32) *conn {
	c := &conn{
		fd:          fd,
		proto:       proto,
		wantIfIndex: wantIfIndex,
		log:         o.log.With("proto", proto, "fd", fd),
		dgrams:      make(chan *Datagram, connBacklog),
		readable:    make(chan struct{}, connBacklog+1),
		pumpDone:    make(chan struct{}),
	}
	go c.pump()
	return c
}

// conn reads from its descriptor on a pump goroutine and adapts the
// stream to the reactor's readiness model
type conn struct {
	fd          int
	proto       string
	wantIfIndex uint32
	log         *logger.Logger

	dgrams   chan *Datagram
	readable chan struct{}
	pumpDone chan struct{}

	mu     sync.Mutex
	closed bool
}

func (c *conn) pump() {
	defer close(c.pumpDone)

	buf := make([]byte, readBufLen)
	oob := make([]byte, oobBufLen)

	for {
		n, oobn, _, from, err := unix.Recvmsg(c.fd, buf, oob, 0)

		// Close shuts the socket down to break this read; anything the
		// kernel returned after that is stale.
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}

		if err != nil {
			if err == unix.EINTR {
				continue
			}
			c.log.Warn("socket read failed", "error", err)
			c.teardown()
			return
		}

		dg := &Datagram{
			Data:    append([]byte(nil), buf[:n]...),
			Control: append([]byte(nil), oob[:oobn]...),
			Src:     sockaddrToAddrPort(from),
			IfIndex: pktinfoIfIndex(oob[:oobn]),
		}

		// A per-interface socket drops traffic the kernel delivered for
		// other interfaces.
		if c.wantIfIndex != 0 && dg.IfIndex != 0 && dg.IfIndex != c.wantIfIndex {
			continue
		}

		select {
		case c.dgrams <- dg:
		default:
			c.log.Debug("socket backlog full, dropping datagram", "len", n)
			continue
		}
		select {
		case c.readable <- struct{}{}:
		default:
		}
	}
}

// ReadMessage returns one buffered datagram without blocking
func (c *conn) ReadMessage() (*Datagram, error) {
	select {
	case dg := <-c.dgrams:
		return dg, nil
	default:
	}

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()

	if closed {
		select {
		case dg := <-c.dgrams:
			return dg, nil
		default:
			return nil, io.EOF
		}
	}

	return nil, types.NewError(types.ErrCodeUnavailable, "no datagram pending")
}

// WriteMessage transmits one message to its destination, passing the
// caller's control bytes through to the kernel
func (c *conn) WriteMessage(m *psproto.Message) (int, error) {
	sa, err := addrPortToSockaddr(m.Dst, m.IfIndex)
	if err != nil {
		return 0, err
	}
	if err := unix.Sendmsg(c.fd, m.Data, m.Control, sa, 0); err != nil {
		return 0, types.WrapError(types.ErrCodeUnavailable,
			"failed to send on "+c.proto+" socket", err)
	}
	return len(m.Data), nil
}

func (c *conn) Readable() <-chan struct{} {
	return c.readable
}

func (c *conn) Fd() int {
	return c.fd
}

// Close stops the pump, shuts the descriptor and wakes any registered
// handler so it can observe io.EOF
func (c *conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	// Shutdown breaks the pump out of its blocking read. On unconnected
	// datagram and raw sockets it reports ENOTCONN while still marking
	// the descriptor, so the result carries no information. The fd must
	// stay open until the pump has returned or a reused descriptor
	// number could feed the stale read.
	unix.Shutdown(c.fd, unix.SHUT_RDWR)
	<-c.pumpDone

	err := unix.Close(c.fd)

	select {
	case c.readable <- struct{}{}:
	default:
	}
	close(c.readable)

	return err
}

// teardown marks the conn dead after an unrecoverable read error
func (c *conn) teardown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	unix.Close(c.fd)

	select {
	case c.readable <- struct{}{}:
	default:
	}
	close(c.readable)
}

func sockaddrToAddrPort(sa unix.Sockaddr) netip.AddrPort {
	switch s := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(s.Addr), uint16(s.Port))
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(s.Addr), uint16(s.Port))
	default:
		return netip.AddrPort{}
	}
}

func addrPortToSockaddr(ap netip.AddrPort, ifindex uint32) (unix.Sockaddr, error) {
	addr := ap.Addr()
	switch {
	case addr.Is4() || addr.Is4In6():
		return &unix.SockaddrInet4{
			Port: int(ap.Port()),
			Addr: addr.Unmap().As4(),
		}, nil
	case addr.Is6():
		return &unix.SockaddrInet6{
			Port:   int(ap.Port()),
			Addr:   addr.As16(),
			ZoneId: ifindex,
		}, nil
	default:
		return nil, types.NewError(types.ErrCodeInvalidArgument,
			"message has no destination address")
	}
}

// pktinfoIfIndex extracts the receiving interface from IP_PKTINFO or
// IPV6_PKTINFO ancillary data, returning 0 when neither is present
func pktinfoIfIndex(control []byte) uint32 {
	msgs, err := unix.ParseSocketControlMessage(control)
	if err != nil {
		return 0
	}
	for _, m := range msgs {
		switch {
		case m.Header.Level == unix.IPPROTO_IP && m.Header.Type == unix.IP_PKTINFO:
			// struct in_pktinfo starts with the interface index
			if len(m.Data) >= 4 {
				return binary.NativeEndian.Uint32(m.Data[0:4])
			}
		case m.Header.Level == unix.IPPROTO_IPV6 && m.Header.Type == unix.IPV6_PKTINFO:
			// struct in6_pktinfo: 16 address bytes then the index
			if len(m.Data) >= 20 {
				return binary.NativeEndian.Uint32(m.Data[16:20])
			}
		}
	}
	return 0
}
