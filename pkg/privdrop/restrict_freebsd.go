//go:build freebsd

package privdrop

import (
	"golang.org/x/sys/unix"
)

// capsicumRestrictor limits a descriptor to CAP_RECV and CAP_EVENT,
// the two rights a proxy socket actually needs once open.
type capsicumRestrictor struct{}

func platformHandleRestrictor() HandleRestrictor {
	return capsicumRestrictor{}
}

func (capsicumRestrictor) Name() string {
	return "capsicum"
}

func (capsicumRestrictor) RestrictHandle(fd int) error {
	rights, err := unix.CapRightsInit([]uint64{unix.CAP_RECV, unix.CAP_EVENT})
	if err != nil {
		return err
	}
	if err := unix.CapRightsLimit(uintptr(fd), rights); err != nil {
		if err == unix.ENOSYS {
			return ErrUnsupported
		}
		return err
	}
	return nil
}

// capsicumSandbox enters capability mode for the rest of the process's
// life; no new descriptors can be opened afterwards.
type capsicumSandbox struct{}

func platformSandbox() Sandbox {
	return capsicumSandbox{}
}

func (capsicumSandbox) Name() string {
	return "capsicum"
}

func (capsicumSandbox) Enter() error {
	if err := unix.CapEnter(); err != nil {
		if err == unix.ENOSYS {
			return ErrUnsupported
		}
		return err
	}
	return nil
}
