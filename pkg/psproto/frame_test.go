package psproto

import (
	"net/netip"
	"testing"

	"github.com/netherd/inetproxy/pkg/types"
)

func TestMarshalUnmarshalStart(t *testing.T) {
	id := BootpIdentity(3, netip.MustParseAddr("192.0.2.10"))

	b, err := Marshal(Start(id))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	cmd, err := Unmarshal(b)
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if cmd.Kind != KindStart {
		t.Errorf("expected start, got %s", cmd.Kind)
	}
	if cmd.Protocol != ProtocolBootp {
		t.Errorf("expected bootp, got %s", cmd.Protocol)
	}
	if !cmd.Identity.Equal(id) {
		t.Errorf("identity mismatch: got %s, want %s", cmd.Identity, id)
	}
	if cmd.Message != nil {
		t.Error("lifecycle command should carry no message")
	}
}

func TestMarshalUnmarshalStopND(t *testing.T) {
	id := NDIdentity(7)

	b, err := Marshal(Stop(id))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	cmd, err := Unmarshal(b)
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if cmd.Kind != KindStop {
		t.Errorf("expected stop, got %s", cmd.Kind)
	}
	if cmd.Identity.IfIndex != 7 {
		t.Errorf("expected ifindex 7, got %d", cmd.Identity.IfIndex)
	}
	if cmd.Identity.Addr.IsValid() {
		t.Error("nd identity must not carry an address")
	}
}

func TestMarshalUnmarshalTransmit(t *testing.T) {
	msg := &Message{
		Src:     netip.MustParseAddrPort("[fe80::1]:546"),
		Dst:     netip.MustParseAddrPort("[ff02::1:2]:547"),
		IfIndex: 2,
		Control: []byte{0x01, 0x02},
		Data:    []byte("dhcp6 payload"),
	}

	b, err := Marshal(Transmit(ProtocolDHCP6, msg))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	cmd, err := Unmarshal(b)
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if cmd.Kind != KindTransmit {
		t.Errorf("expected transmit, got %s", cmd.Kind)
	}
	if cmd.Message == nil {
		t.Fatal("expected a message block")
	}
	if cmd.Message.Src != msg.Src || cmd.Message.Dst != msg.Dst {
		t.Errorf("endpoint mismatch: got %s -> %s", cmd.Message.Src, cmd.Message.Dst)
	}
	if cmd.Message.IfIndex != 2 {
		t.Errorf("expected ifindex 2, got %d", cmd.Message.IfIndex)
	}
	if string(cmd.Message.Data) != "dhcp6 payload" {
		t.Errorf("payload mismatch: %q", cmd.Message.Data)
	}
	if len(cmd.Message.Control) != 2 {
		t.Errorf("control mismatch: %v", cmd.Message.Control)
	}
}

func TestMarshalUnmarshalTransmitFor(t *testing.T) {
	id := DHCP6Identity(4, netip.MustParseAddr("2001:db8::5"))
	msg := &Message{Data: []byte{0xde, 0xad}}

	b, err := Marshal(TransmitFor(id, msg))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	cmd, err := Unmarshal(b)
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !cmd.Identity.Equal(id) {
		t.Errorf("identity mismatch: got %s, want %s", cmd.Identity, id)
	}
	if cmd.Message == nil || len(cmd.Message.Data) != 2 {
		t.Fatalf("payload mismatch: %+v", cmd.Message)
	}
	if cmd.Message.Src.IsValid() || cmd.Message.Dst.IsValid() {
		t.Error("absent endpoints must decode as invalid")
	}
}

func TestMarshalRejectsInvalidProtocol(t *testing.T) {
	_, err := Marshal(Command{Kind: KindStart, Protocol: Protocol(0x03)})
	if !types.IsErrCode(err, types.ErrCodeUnsupportedCommand) {
		t.Errorf("expected UnsupportedCommand, got %v", err)
	}
}

func TestMarshalRejectsIdentityMismatch(t *testing.T) {
	cmd := Command{
		Kind:     KindStart,
		Protocol: ProtocolBootp,
		Identity: NDIdentity(1),
	}
	_, err := Marshal(cmd)
	if !types.IsErrCode(err, types.ErrCodeUnsupportedCommand) {
		t.Errorf("expected UnsupportedCommand, got %v", err)
	}
}

func TestMarshalRejectsWrongAddressFamily(t *testing.T) {
	cases := []struct {
		name string
		id   Identity
	}{
		{"bootp with v6 addr", BootpIdentity(1, netip.MustParseAddr("2001:db8::1"))},
		{"dhcp6 with v4 addr", DHCP6Identity(1, netip.MustParseAddr("192.0.2.1"))},
		{"dhcp6 with mapped addr", DHCP6Identity(1, netip.MustParseAddr("::ffff:192.0.2.1"))},
		{"nd with addr", Identity{Protocol: ProtocolND, Addr: netip.MustParseAddr("fe80::1")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Marshal(Start(tc.id))
			if !types.IsErrCode(err, types.ErrCodeUnsupportedCommand) {
				t.Errorf("expected UnsupportedCommand, got %v", err)
			}
		})
	}
}

func TestUnmarshalRejectsShortFrame(t *testing.T) {
	_, err := Unmarshal([]byte{frameVersion, 0x01})
	if !types.IsErrCode(err, types.ErrCodeUnsupportedCommand) {
		t.Errorf("expected UnsupportedCommand, got %v", err)
	}
}

func TestUnmarshalRejectsUnknownVersion(t *testing.T) {
	b, err := Marshal(Start(NDIdentity(1)))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	b[0] = 0x7f
	if _, err := Unmarshal(b); !types.IsErrCode(err, types.ErrCodeUnsupportedCommand) {
		t.Errorf("expected UnsupportedCommand, got %v", err)
	}
}

func TestUnmarshalRejectsUnknownSelector(t *testing.T) {
	b, err := Marshal(Start(NDIdentity(1)))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	// 0x03 is bootp|nd: a multi-bit selector is not a valid protocol.
	b[1] = (b[1] &^ protocolMask) | 0x03
	b[2] = 0x03
	if _, err := Unmarshal(b); !types.IsErrCode(err, types.ErrCodeUnsupportedCommand) {
		t.Errorf("expected UnsupportedCommand, got %v", err)
	}
}

func TestUnmarshalRejectsBothModifiers(t *testing.T) {
	b, err := Marshal(Start(NDIdentity(1)))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	b[1] |= modStop
	if _, err := Unmarshal(b); !types.IsErrCode(err, types.ErrCodeUnsupportedCommand) {
		t.Errorf("expected UnsupportedCommand, got %v", err)
	}
}

func TestUnmarshalRejectsSelectorMismatch(t *testing.T) {
	b, err := Marshal(Start(NDIdentity(1)))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	b[2] = uint8(ProtocolBootp)
	if _, err := Unmarshal(b); !types.IsErrCode(err, types.ErrCodeUnsupportedCommand) {
		t.Errorf("expected UnsupportedCommand, got %v", err)
	}
}

func TestUnmarshalRejectsBadAddrKind(t *testing.T) {
	b, err := Marshal(Start(BootpIdentity(1, netip.MustParseAddr("192.0.2.1"))))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	b[3] = 9
	if _, err := Unmarshal(b); !types.IsErrCode(err, types.ErrCodeUnsupportedCommand) {
		t.Errorf("expected UnsupportedCommand, got %v", err)
	}
}

func TestUnmarshalRejectsLengthMismatch(t *testing.T) {
	b, err := Marshal(Transmit(ProtocolBootp, &Message{Data: []byte{1, 2, 3, 4}}))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if _, err := Unmarshal(b[:len(b)-1]); !types.IsErrCode(err, types.ErrCodeUnsupportedCommand) {
		t.Errorf("expected UnsupportedCommand, got %v", err)
	}
}

func TestUnmarshalRejectsTruncatedMessageBlock(t *testing.T) {
	b, err := Marshal(Transmit(ProtocolBootp, &Message{Data: []byte{1}}))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if _, err := Unmarshal(b[:headerLen+4]); !types.IsErrCode(err, types.ErrCodeUnsupportedCommand) {
		t.Errorf("expected UnsupportedCommand, got %v", err)
	}
}

func TestMarshalRejectsOversizedPayload(t *testing.T) {
	msg := &Message{Data: make([]byte, 65536)}
	_, err := Marshal(Transmit(ProtocolBootp, msg))
	if !types.IsErrCode(err, types.ErrCodeInvalidArgument) {
		t.Errorf("expected InvalidArgument, got %v", err)
	}
}
