package psproto

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/netherd/inetproxy/pkg/types"
)

// Wire layout. A frame is a fixed 24-byte command header optionally
// followed by a message block. Channels preserve frame boundaries, so no
// outer length prefix is needed.
//
//	off len
//	0   1   version
//	1   1   command byte: protocol selector | lifecycle modifiers
//	2   1   identity protocol selector (base selector, no modifiers)
//	3   1   identity address kind (0 absent, 4, 6)
//	4   4   identity interface index
//	8   16  identity address
//
// Message block:
//
//	0   1   source address kind
//	1   16  source address
//	17  2   source port
//	19  1   destination address kind
//	20  16  destination address
//	36  2   destination port
//	38  4   message interface index
//	42  2   control length
//	44  2   data length
//	46  ..  control bytes, then data bytes
const (
	frameVersion = 0x01

	protocolMask = 0x0f
	modStart     = 0x10
	modStop      = 0x20
	modifierMask = modStart | modStop

	headerLen   = 24
	msgFixedLen = 46

	addrAbsent = 0
	addrInet4  = 4
	addrInet6  = 6
)

// MaxFrameLen is the largest frame Marshal will produce
const MaxFrameLen = headerLen + msgFixedLen + 2*65535

// Marshal serializes a command into its compact wire form
func Marshal(cmd Command) ([]byte, error) {
	if !cmd.Protocol.Valid() {
		return nil, types.NewError(types.ErrCodeUnsupportedCommand,
			fmt.Sprintf("unknown protocol selector %#x", uint8(cmd.Protocol)))
	}

	var mod uint8
	switch cmd.Kind {
	case KindTransmit:
	case KindStart:
		mod = modStart
	case KindStop:
		mod = modStop
	default:
		return nil, types.NewError(types.ErrCodeUnsupportedCommand,
			fmt.Sprintf("unknown command kind %d", uint8(cmd.Kind)))
	}

	if cmd.Identity.Protocol != 0 && cmd.Identity.Protocol != cmd.Protocol {
		return nil, types.NewError(types.ErrCodeUnsupportedCommand,
			"identity selector does not match command protocol")
	}
	if err := checkIdentityAddr(cmd.Protocol, cmd.Identity.Addr); err != nil {
		return nil, err
	}

	size := headerLen
	if cmd.Message != nil {
		if len(cmd.Message.Control) > 65535 || len(cmd.Message.Data) > 65535 {
			return nil, types.NewError(types.ErrCodeInvalidArgument,
				"message control or data exceeds 64KiB")
		}
		size += msgFixedLen + len(cmd.Message.Control) + len(cmd.Message.Data)
	}

	b := make([]byte, size)
	b[0] = frameVersion
	b[1] = uint8(cmd.Protocol) | mod
	b[2] = uint8(cmd.Protocol)
	b[3] = encodeAddr(b[8:24], cmd.Identity.Addr)
	binary.BigEndian.PutUint32(b[4:8], cmd.Identity.IfIndex)

	if m := cmd.Message; m != nil {
		o := headerLen
		b[o] = encodeAddr(b[o+1:o+17], m.Src.Addr())
		binary.BigEndian.PutUint16(b[o+17:o+19], m.Src.Port())
		b[o+19] = encodeAddr(b[o+20:o+36], m.Dst.Addr())
		binary.BigEndian.PutUint16(b[o+36:o+38], m.Dst.Port())
		binary.BigEndian.PutUint32(b[o+38:o+42], m.IfIndex)
		binary.BigEndian.PutUint16(b[o+42:o+44], uint16(len(m.Control)))
		binary.BigEndian.PutUint16(b[o+44:o+46], uint16(len(m.Data)))
		copy(b[o+msgFixedLen:], m.Control)
		copy(b[o+msgFixedLen+len(m.Control):], m.Data)
	}

	return b, nil
}

// Unmarshal decodes a wire frame back into a command. Frames with an
// unknown protocol selector, or carrying both the start and stop
// modifiers, are rejected with an UnsupportedCommand error.
func Unmarshal(b []byte) (Command, error) {
	var cmd Command

	if len(b) < headerLen {
		return cmd, types.NewError(types.ErrCodeUnsupportedCommand,
			fmt.Sprintf("short frame: %d bytes", len(b)))
	}
	if b[0] != frameVersion {
		return cmd, types.NewError(types.ErrCodeUnsupportedCommand,
			fmt.Sprintf("unknown frame version %#x", b[0]))
	}

	mods := b[1] & modifierMask
	proto := Protocol(b[1] & protocolMask)
	if !proto.Valid() {
		return cmd, types.NewError(types.ErrCodeUnsupportedCommand,
			fmt.Sprintf("unknown protocol selector %#x", b[1]&protocolMask))
	}
	if mods == modStart|modStop {
		return cmd, types.NewError(types.ErrCodeUnsupportedCommand,
			"frame carries both start and stop modifiers")
	}
	if Protocol(b[2]) != proto {
		return cmd, types.NewError(types.ErrCodeUnsupportedCommand,
			"identity selector does not match command protocol")
	}

	addr, err := decodeAddr(b[3], b[8:24])
	if err != nil {
		return cmd, err
	}
	if err := checkIdentityAddr(proto, addr); err != nil {
		return cmd, err
	}

	cmd.Protocol = proto
	cmd.Identity = Identity{
		Protocol: proto,
		IfIndex:  binary.BigEndian.Uint32(b[4:8]),
		Addr:     addr,
	}
	switch mods {
	case 0:
		cmd.Kind = KindTransmit
	case modStart:
		cmd.Kind = KindStart
	case modStop:
		cmd.Kind = KindStop
	}

	if len(b) == headerLen {
		return cmd, nil
	}

	rest := b[headerLen:]
	if len(rest) < msgFixedLen {
		return cmd, types.NewError(types.ErrCodeUnsupportedCommand,
			"truncated message block")
	}

	src, err := decodeAddr(rest[0], rest[1:17])
	if err != nil {
		return cmd, err
	}
	dst, err := decodeAddr(rest[19], rest[20:36])
	if err != nil {
		return cmd, err
	}

	ctlLen := int(binary.BigEndian.Uint16(rest[42:44]))
	dataLen := int(binary.BigEndian.Uint16(rest[44:46]))
	if len(rest) != msgFixedLen+ctlLen+dataLen {
		return cmd, types.NewError(types.ErrCodeUnsupportedCommand,
			fmt.Sprintf("message length mismatch: have %d, want %d",
				len(rest), msgFixedLen+ctlLen+dataLen))
	}

	m := &Message{
		IfIndex: binary.BigEndian.Uint32(rest[38:42]),
	}
	if src.IsValid() {
		m.Src = netip.AddrPortFrom(src, binary.BigEndian.Uint16(rest[17:19]))
	}
	if dst.IsValid() {
		m.Dst = netip.AddrPortFrom(dst, binary.BigEndian.Uint16(rest[36:38]))
	}
	if ctlLen > 0 {
		m.Control = append([]byte(nil), rest[msgFixedLen:msgFixedLen+ctlLen]...)
	}
	if dataLen > 0 {
		m.Data = append([]byte(nil), rest[msgFixedLen+ctlLen:]...)
	}
	cmd.Message = m

	return cmd, nil
}

// checkIdentityAddr enforces the address discrimination rule: BOOTP
// identities may carry an IPv4 address, DHCPv6 identities an IPv6
// address, neighbour-discovery identities are interface-keyed only.
func checkIdentityAddr(p Protocol, addr netip.Addr) error {
	if !addr.IsValid() {
		return nil
	}
	switch p {
	case ProtocolBootp:
		if addr.Is4() {
			return nil
		}
	case ProtocolDHCP6:
		if addr.Is6() && !addr.Is4In6() {
			return nil
		}
	case ProtocolND:
		// always invalid with an address
	}
	return types.NewError(types.ErrCodeUnsupportedCommand,
		fmt.Sprintf("identity address %s not valid for protocol %s", addr, p))
}

// encodeAddr writes addr into the 16-byte field dst and returns the kind byte
func encodeAddr(dst []byte, addr netip.Addr) byte {
	if !addr.IsValid() {
		return addrAbsent
	}
	if addr.Is4() {
		a4 := addr.As4()
		copy(dst, a4[:])
		return addrInet4
	}
	a16 := addr.As16()
	copy(dst, a16[:])
	return addrInet6
}

// decodeAddr reads an address of the given kind from the 16-byte field src
func decodeAddr(kind byte, src []byte) (netip.Addr, error) {
	switch kind {
	case addrAbsent:
		return netip.Addr{}, nil
	case addrInet4:
		var a4 [4]byte
		copy(a4[:], src[:4])
		return netip.AddrFrom4(a4), nil
	case addrInet6:
		var a16 [16]byte
		copy(a16[:], src)
		return netip.AddrFrom16(a16), nil
	}
	return netip.Addr{}, types.NewError(types.ErrCodeUnsupportedCommand,
		fmt.Sprintf("unknown address kind %d", kind))
}
