package psproto

import (
	"fmt"
	"net/netip"
)

// Identity keys a worker process: a protocol selector, an interface
// index and an optional bound address. The address is absent for
// interface-keyed neighbour-discovery workers; Addr's zero value marks
// absence.
type Identity struct {
	Protocol Protocol
	IfIndex  uint32
	Addr     netip.Addr
}

// BootpIdentity builds an address-keyed BOOTP identity
func BootpIdentity(ifindex uint32, addr netip.Addr) Identity {
	return Identity{Protocol: ProtocolBootp, IfIndex: ifindex, Addr: addr}
}

// NDIdentity builds an interface-keyed neighbour-discovery identity
func NDIdentity(ifindex uint32) Identity {
	return Identity{Protocol: ProtocolND, IfIndex: ifindex}
}

// DHCP6Identity builds an address-keyed DHCPv6 identity
func DHCP6Identity(ifindex uint32, addr netip.Addr) Identity {
	return Identity{Protocol: ProtocolDHCP6, IfIndex: ifindex, Addr: addr}
}

// Equal reports structural equality: protocol selector, interface index
// and address (when present) must all match. No ordering is defined.
func (id Identity) Equal(other Identity) bool {
	if id.Protocol != other.Protocol || id.IfIndex != other.IfIndex {
		return false
	}
	if id.Addr.IsValid() != other.Addr.IsValid() {
		return false
	}
	if !id.Addr.IsValid() {
		return true
	}
	return id.Addr == other.Addr
}

// IsZero reports whether the identity carries no routing information.
// Plain forwards from the engine use the zero identity, which never
// matches a registry entry.
func (id Identity) IsZero() bool {
	return id.Protocol == 0 && id.IfIndex == 0 && !id.Addr.IsValid()
}

// String returns a diagnostic form of the identity
func (id Identity) String() string {
	if id.Addr.IsValid() {
		return fmt.Sprintf("%s/if%d/%s", id.Protocol, id.IfIndex, id.Addr)
	}
	return fmt.Sprintf("%s/if%d", id.Protocol, id.IfIndex)
}
