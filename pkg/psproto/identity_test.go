package psproto

import (
	"net/netip"
	"testing"
)

func TestIdentityEqual(t *testing.T) {
	a := BootpIdentity(1, netip.MustParseAddr("192.0.2.1"))
	b := BootpIdentity(1, netip.MustParseAddr("192.0.2.1"))
	if !a.Equal(b) {
		t.Error("identical identities must be equal")
	}

	if a.Equal(BootpIdentity(2, netip.MustParseAddr("192.0.2.1"))) {
		t.Error("different ifindex must not be equal")
	}
	if a.Equal(BootpIdentity(1, netip.MustParseAddr("192.0.2.2"))) {
		t.Error("different address must not be equal")
	}
	if a.Equal(DHCP6Identity(1, netip.MustParseAddr("2001:db8::1"))) {
		t.Error("different protocol must not be equal")
	}
	if a.Equal(Identity{Protocol: ProtocolBootp, IfIndex: 1}) {
		t.Error("present and absent address must not be equal")
	}

	n1 := NDIdentity(3)
	n2 := NDIdentity(3)
	if !n1.Equal(n2) {
		t.Error("interface-keyed identities with same ifindex must be equal")
	}
}

func TestIdentityIsZero(t *testing.T) {
	if !(Identity{}).IsZero() {
		t.Error("zero identity must report zero")
	}
	if NDIdentity(0).IsZero() {
		t.Error("identity with a protocol is not zero")
	}
	if (Identity{IfIndex: 1}).IsZero() {
		t.Error("identity with an ifindex is not zero")
	}
}

func TestIdentityString(t *testing.T) {
	id := BootpIdentity(4, netip.MustParseAddr("192.0.2.9"))
	if got := id.String(); got != "bootp/if4/192.0.2.9" {
		t.Errorf("unexpected string: %s", got)
	}
	if got := NDIdentity(2).String(); got != "nd/if2" {
		t.Errorf("unexpected string: %s", got)
	}
}

func TestProtocolValid(t *testing.T) {
	for _, p := range []Protocol{ProtocolBootp, ProtocolND, ProtocolDHCP6} {
		if !p.Valid() {
			t.Errorf("%s must be valid", p)
		}
	}
	for _, p := range []Protocol{0, 0x03, 0x08, 0xff} {
		if p.Valid() {
			t.Errorf("%#x must be invalid", uint8(p))
		}
	}
}
