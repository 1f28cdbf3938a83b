//go:build !linux

package sockets

import (
	"net/netip"

	"github.com/netherd/inetproxy/internal/logger"
	"github.com/netherd/inetproxy/pkg/types"
)

// unsupportedOpener keeps non-Linux builds compiling; every open fails
// so startup reports no protocols available
type unsupportedOpener struct{}

// NewPlatformOpener returns the native socket opener for this build
func NewPlatformOpener(*logger.Logger) Opener {
	return unsupportedOpener{}
}

func (unsupportedOpener) OpenBootp(uint32, netip.Addr) (Conn, error) {
	return nil, types.NewError(types.ErrCodeSocketOpen,
		"native proxy sockets are not implemented on this platform")
}

func (unsupportedOpener) OpenND(uint32) (Conn, error) {
	return nil, types.NewError(types.ErrCodeSocketOpen,
		"native proxy sockets are not implemented on this platform")
}

func (unsupportedOpener) OpenDHCP6(uint32, netip.Addr) (Conn, error) {
	return nil, types.NewError(types.ErrCodeSocketOpen,
		"native proxy sockets are not implemented on this platform")
}
