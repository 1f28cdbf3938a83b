//go:build linux

package privdrop

import (
	"errors"

	"github.com/landlock-lsm/go-landlock/landlock"
	"golang.org/x/sys/unix"
)

// landlockSandbox denies all further filesystem access. The proxy holds
// every descriptor it needs before entering, so zero path rules is the
// correct rule set.
type landlockSandbox struct{}

func platformSandbox() Sandbox {
	return landlockSandbox{}
}

func (landlockSandbox) Name() string {
	return "landlock"
}

func (landlockSandbox) Enter() error {
	// BestEffort degrades on kernels with partial Landlock support rather
	// than failing outright.
	return classifyLandlockErr(landlock.V5.BestEffort().RestrictPaths())
}

// classifyLandlockErr separates a kernel without the Landlock mechanism
// from a kernel that has it and refused the restriction. Only the
// former is tolerated.
func classifyLandlockErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, unix.ENOSYS) || errors.Is(err, unix.EOPNOTSUPP) {
		return ErrUnsupported
	}
	return err
}
