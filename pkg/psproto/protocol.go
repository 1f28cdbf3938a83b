package psproto

import "net/netip"

// Protocol selects one of the privileged socket families the proxy serves.
// The values are disjoint bit flags so a wire command byte can combine a
// selector with lifecycle modifiers.
type Protocol uint8

const (
	// ProtocolBootp is the broadcast BOOTP/DHCPv4 socket family
	ProtocolBootp Protocol = 0x01
	// ProtocolND is the raw ICMPv6 neighbour-discovery socket family
	ProtocolND Protocol = 0x02
	// ProtocolDHCP6 is the multicast DHCPv6 socket family
	ProtocolDHCP6 Protocol = 0x04
)

// Valid reports whether p is one of the three known selectors
func (p Protocol) Valid() bool {
	switch p {
	case ProtocolBootp, ProtocolND, ProtocolDHCP6:
		return true
	}
	return false
}

// String returns the protocol name
func (p Protocol) String() string {
	switch p {
	case ProtocolBootp:
		return "bootp"
	case ProtocolND:
		return "nd"
	case ProtocolDHCP6:
		return "dhcp6"
	}
	return "unknown"
}

// CommandKind tags the variant a Command carries
type CommandKind uint8

const (
	// KindTransmit forwards an embedded network message
	KindTransmit CommandKind = iota
	// KindStart requests a worker for the command's identity
	KindStart
	// KindStop tears down the worker for the command's identity
	KindStop
)

// String returns the kind name
func (k CommandKind) String() string {
	switch k {
	case KindTransmit:
		return "transmit"
	case KindStart:
		return "start"
	case KindStop:
		return "stop"
	}
	return "unknown"
}

// Message is the embedded network-message descriptor carried by Transmit
// frames, used both for outbound sends and forwarded inbound datagrams.
type Message struct {
	Src     netip.AddrPort
	Dst     netip.AddrPort
	IfIndex uint32
	Control []byte
	Data    []byte
}

// Command is the unit of cross-process communication
type Command struct {
	Kind     CommandKind
	Protocol Protocol
	Identity Identity
	Message  *Message
}

// Transmit builds a plain payload-forward command with no worker identity
func Transmit(p Protocol, m *Message) Command {
	return Command{Kind: KindTransmit, Protocol: p, Message: m}
}

// TransmitFor builds a payload-forward command addressed to the worker
// owning id, falling back to the default socket when none exists
func TransmitFor(id Identity, m *Message) Command {
	return Command{Kind: KindTransmit, Protocol: id.Protocol, Identity: id, Message: m}
}

// Start builds a worker start command for id
func Start(id Identity) Command {
	return Command{Kind: KindStart, Protocol: id.Protocol, Identity: id}
}

// Stop builds a worker stop command for id
func Stop(id Identity) Command {
	return Command{Kind: KindStop, Protocol: id.Protocol, Identity: id}
}
