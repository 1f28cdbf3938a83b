//go:build !freebsd

package privdrop

// noHandleRestrictor is the fallback where the platform has no per-handle
// capability mechanism
type noHandleRestrictor struct{}

func platformHandleRestrictor() HandleRestrictor {
	return noHandleRestrictor{}
}

func (noHandleRestrictor) Name() string {
	return "none"
}

func (noHandleRestrictor) RestrictHandle(int) error {
	return ErrUnsupported
}
