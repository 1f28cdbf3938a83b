//go:build linux

package privdrop

import (
	"errors"
	"fmt"
	"testing"

	"golang.org/x/sys/unix"
)

func TestClassifyLandlockErr(t *testing.T) {
	if err := classifyLandlockErr(nil); err != nil {
		t.Errorf("nil must stay nil, got %v", err)
	}

	for _, missing := range []error{unix.ENOSYS, unix.EOPNOTSUPP} {
		err := classifyLandlockErr(fmt.Errorf("landlock: %w", missing))
		if !errors.Is(err, ErrUnsupported) {
			t.Errorf("%v must classify as unsupported, got %v", missing, err)
		}
	}

	// A Landlock-capable kernel refusing the restriction is a real
	// failure and must surface as one.
	refused := errors.New("landlock: restriction refused")
	if err := classifyLandlockErr(refused); !errors.Is(err, refused) {
		t.Errorf("genuine failure must pass through, got %v", err)
	}
}
