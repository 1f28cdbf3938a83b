// Package privdrop narrows what a privsep process may do after it has
// acquired its privileged sockets.
//
// Two mechanisms exist: per-handle capability restriction (the socket is
// limited to receive and event-wait) and the process-wide least-privilege
// sandbox entered once all sockets are up. Both are polymorphic over
// platform backends, one of which may legitimately be "unsupported";
// callers treat unsupported as success.
package privdrop

import (
	"errors"
	"fmt"

	"github.com/netherd/inetproxy/internal/logger"
	"github.com/netherd/inetproxy/pkg/types"
)

// ErrUnsupported reports that the platform lacks the mechanism. It is
// the one restriction failure that is tolerated rather than fatal.
var ErrUnsupported = errors.New("privilege mechanism unsupported on this platform")

// HandleRestrictor narrows one socket handle to receive and event-wait
type HandleRestrictor interface {
	Name() string
	RestrictHandle(fd int) error
}

// Sandbox is the strictest process-wide confinement the platform offers,
// entered once, after which no further privileged operation is possible
type Sandbox interface {
	Name() string
	Enter() error
}

// Set bundles the platform backends used by one privsep process
type Set struct {
	log     *logger.Logger
	handles HandleRestrictor
	sandbox Sandbox
}

// New creates a Set from explicit backends; tests inject fakes here
func New(log *logger.Logger, handles HandleRestrictor, sandbox Sandbox) Set {
	if log == nil {
		log, _ = logger.NewDefault()
	}
	return Set{
		log:     log.With("component", "privdrop"),
		handles: handles,
		sandbox: sandbox,
	}
}

// Platform creates a Set with this build's native backends
func Platform(log *logger.Logger) Set {
	return New(log, platformHandleRestrictor(), platformSandbox())
}

// RestrictHandle narrows fd to receive/event-wait. An unsupported
// mechanism is tolerated and reported as success; any other failure is
// fatal for that one socket and surfaces as a capability error.
func (s Set) RestrictHandle(fd int) error {
	err := s.handles.RestrictHandle(fd)
	if err == nil {
		s.log.Debug("handle restricted", "fd", fd, "mechanism", s.handles.Name())
		return nil
	}
	if errors.Is(err, ErrUnsupported) {
		s.log.Debug("handle restriction unsupported; continuing",
			"fd", fd, "mechanism", s.handles.Name())
		return nil
	}
	return types.WrapError(types.ErrCodeCapability,
		fmt.Sprintf("failed to restrict handle %d via %s", fd, s.handles.Name()), err)
}

// EnterSandbox applies the process-wide least-privilege filter. Like
// RestrictHandle, only a genuinely failing mechanism is an error.
func (s Set) EnterSandbox() error {
	err := s.sandbox.Enter()
	if err == nil {
		s.log.Debug("sandbox entered", "mechanism", s.sandbox.Name())
		return nil
	}
	if errors.Is(err, ErrUnsupported) {
		s.log.Debug("sandbox unsupported; continuing", "mechanism", s.sandbox.Name())
		return nil
	}
	return types.WrapError(types.ErrCodeCapability,
		"failed to enter sandbox via "+s.sandbox.Name(), err)
}
