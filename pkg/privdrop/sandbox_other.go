//go:build !linux && !freebsd

package privdrop

// noSandbox is the fallback where the platform offers no process-wide
// confinement this package knows how to drive
type noSandbox struct{}

func platformSandbox() Sandbox {
	return noSandbox{}
}

func (noSandbox) Name() string {
	return "none"
}

func (noSandbox) Enter() error {
	return ErrUnsupported
}
