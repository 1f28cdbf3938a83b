package reactor

import (
	"testing"
	"time"
)

// tokenSource is a hand-driven Pollable
type tokenSource struct {
	readable chan struct{}
}

func newTokenSource() *tokenSource {
	return &tokenSource{readable: make(chan struct{}, 16)}
}

func (s *tokenSource) Readable() <-chan struct{} {
	return s.readable
}

func (s *tokenSource) wake() {
	s.readable <- struct{}{}
}

func TestSerialDispatchesPerToken(t *testing.T) {
	loop := NewSerial(nil)
	src := newTokenSource()

	fired := make(chan int, 8)
	count := 0
	if err := loop.Register(src, func() {
		count++
		fired <- count
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	done := make(chan int, 1)
	go func() { done <- loop.Run() }()

	src.wake()
	src.wake()
	src.wake()

	for want := 1; want <= 3; want++ {
		select {
		case got := <-fired:
			if got != want {
				t.Errorf("expected dispatch %d, got %d", want, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("dispatch %d never ran", want)
		}
	}

	loop.Exit(0)
	select {
	case status := <-done:
		if status != 0 {
			t.Errorf("expected status 0, got %d", status)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Exit")
	}
}

func TestSerialFirstExitWins(t *testing.T) {
	loop := NewSerial(nil)

	done := make(chan int, 1)
	go func() { done <- loop.Run() }()

	loop.Exit(3)
	loop.Exit(0)

	select {
	case status := <-done:
		if status != 3 {
			t.Errorf("expected first exit status 3, got %d", status)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

func TestSerialHandlerCanExit(t *testing.T) {
	loop := NewSerial(nil)
	src := newTokenSource()

	if err := loop.Register(src, func() { loop.Exit(7) }); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	done := make(chan int, 1)
	go func() { done <- loop.Run() }()

	src.wake()

	select {
	case status := <-done:
		if status != 7 {
			t.Errorf("expected status 7, got %d", status)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

func TestSerialRegisterAfterExit(t *testing.T) {
	loop := NewSerial(nil)
	loop.Exit(0)

	if err := loop.Register(newTokenSource(), func() {}); err == nil {
		t.Error("Register after Exit must fail")
	}
}

func TestSerialRegisterValidation(t *testing.T) {
	loop := NewSerial(nil)
	if err := loop.Register(nil, func() {}); err == nil {
		t.Error("nil source must be rejected")
	}
	if err := loop.Register(newTokenSource(), nil); err == nil {
		t.Error("nil handler must be rejected")
	}
	if loop.Registered() != 0 {
		t.Errorf("expected 0 registered, got %d", loop.Registered())
	}
}

func TestSerialClosedSourceStopsForwarding(t *testing.T) {
	loop := NewSerial(nil)
	src := newTokenSource()

	fired := make(chan struct{}, 8)
	if err := loop.Register(src, func() { fired <- struct{}{} }); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	done := make(chan int, 1)
	go func() { done <- loop.Run() }()

	src.wake()
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("handler never ran")
	}

	close(src.readable)

	// The forwarder is gone; the loop itself keeps running.
	select {
	case <-fired:
		t.Error("handler ran after source close without a token")
	case <-time.After(50 * time.Millisecond):
	}

	loop.Exit(0)
	<-done
}
