package supervise

import (
	"errors"
	"io"
	"testing"

	"github.com/netherd/inetproxy/pkg/types"
)

func TestPairDeliversInOrder(t *testing.T) {
	a, b := NewPair(8)

	for _, s := range []string{"one", "two", "three"} {
		n, err := a.Send([]byte(s))
		if err != nil {
			t.Fatalf("Send(%q) failed: %v", s, err)
		}
		if n != len(s) {
			t.Errorf("Send(%q) reported %d bytes", s, n)
		}
	}

	for _, want := range []string{"one", "two", "three"} {
		<-b.Readable()
		frame, err := b.Recv()
		if err != nil {
			t.Fatalf("Recv failed: %v", err)
		}
		if string(frame) != want {
			t.Errorf("expected %q, got %q", want, frame)
		}
	}
}

func TestPairCopiesFrames(t *testing.T) {
	a, b := NewPair(4)

	buf := []byte("original")
	if _, err := a.Send(buf); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	copy(buf, "mutated!")

	<-b.Readable()
	frame, err := b.Recv()
	if err != nil {
		t.Fatalf("Recv failed: %v", err)
	}
	if string(frame) != "original" {
		t.Errorf("frame aliased the caller's buffer: %q", frame)
	}
}

func TestPairRecvWithoutFrame(t *testing.T) {
	_, b := NewPair(4)
	_, err := b.Recv()
	if !types.IsErrCode(err, types.ErrCodeUnavailable) {
		t.Errorf("expected Unavailable, got %v", err)
	}
}

func TestPairBacklogFull(t *testing.T) {
	a, _ := NewPair(2)

	if _, err := a.Send([]byte("1")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if _, err := a.Send([]byte("2")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	_, err := a.Send([]byte("3"))
	if !types.IsErrCode(err, types.ErrCodeUnavailable) {
		t.Errorf("expected Unavailable on full backlog, got %v", err)
	}
}

func TestPairShutdownDrainsThenEOF(t *testing.T) {
	a, b := NewPair(4)

	if _, err := a.Send([]byte("last")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if err := a.Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	frame, err := b.Recv()
	if err != nil {
		t.Fatalf("buffered frame must survive shutdown: %v", err)
	}
	if string(frame) != "last" {
		t.Errorf("expected %q, got %q", "last", frame)
	}

	if _, err := b.Recv(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF after drain, got %v", err)
	}
	if _, err := a.Recv(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF on the shutting end too, got %v", err)
	}
}

func TestPairShutdownClosesReadable(t *testing.T) {
	a, b := NewPair(4)
	a.Shutdown()

	// A final token is queued before the close so a registered handler
	// runs once more and observes io.EOF.
	sawToken := false
	for range b.Readable() {
		sawToken = true
	}
	if !sawToken {
		t.Error("expected a final readiness token before close")
	}
}

func TestPairSendAfterShutdown(t *testing.T) {
	a, b := NewPair(4)
	a.Shutdown()

	if _, err := a.Send([]byte("x")); !types.IsErrCode(err, types.ErrCodeUnavailable) {
		t.Errorf("expected Unavailable from the closing end, got %v", err)
	}
	if _, err := b.Send([]byte("x")); !types.IsErrCode(err, types.ErrCodeUnavailable) {
		t.Errorf("expected Unavailable from the peer end, got %v", err)
	}
}
