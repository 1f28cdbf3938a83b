package supervise

import (
	"io"
	"sync"

	"github.com/netherd/inetproxy/pkg/types"
)

// Pair is one end of an in-process duplex frame channel. Both ends share
// the frame-boundary and ordering guarantees of a socketpair: frames
// arrive whole and in write order.
type Pair struct {
	peer *Pair

	mu         sync.Mutex
	frames     chan []byte
	readable   chan struct{}
	closed     bool // intake closed; Recv drains then reports io.EOF
	sendClosed bool // this end may no longer send
}

// NewPair creates a connected channel pair buffering up to buffer frames
// per direction
func NewPair(buffer int) (*Pair, *Pair) {
	if buffer <= 0 {
		buffer = 1
	}
	a := newPairEnd(buffer)
	b := newPairEnd(buffer)
	a.peer = b
	b.peer = a
	return a, b
}

func newPairEnd(buffer int) *Pair {
	return &Pair{
		frames:   make(chan []byte, buffer),
		readable: make(chan struct{}, buffer+1),
	}
}

// Send enqueues one frame toward the peer. The frame is copied, so the
// caller may reuse its buffer.
func (p *Pair) Send(frame []byte) (int, error) {
	p.mu.Lock()
	if p.sendClosed {
		p.mu.Unlock()
		return 0, types.NewError(types.ErrCodeUnavailable, "channel shut down")
	}
	p.mu.Unlock()

	cp := append([]byte(nil), frame...)

	peer := p.peer
	peer.mu.Lock()
	defer peer.mu.Unlock()

	if peer.closed {
		return 0, types.NewError(types.ErrCodeUnavailable, "peer channel shut down")
	}

	select {
	case peer.frames <- cp:
	default:
		return 0, types.NewError(types.ErrCodeUnavailable, "channel backlog full")
	}

	// A full token queue already has wakeups pending for every buffered
	// frame, so dropping this one loses nothing.
	select {
	case peer.readable <- struct{}{}:
	default:
	}

	return len(frame), nil
}

// Recv dequeues one pending frame. Once the channel has shut down and
// all buffered frames are drained it returns io.EOF.
func (p *Pair) Recv() ([]byte, error) {
	select {
	case f := <-p.frames:
		return f, nil
	default:
	}

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()

	if closed {
		select {
		case f := <-p.frames:
			return f, nil
		default:
			return nil, io.EOF
		}
	}

	return nil, types.NewError(types.ErrCodeUnavailable, "no frame pending")
}

// Readable signals one pending Recv per token. The channel closes after
// shutdown; a final token is queued first so a registered handler runs
// once more and observes io.EOF.
func (p *Pair) Readable() <-chan struct{} {
	return p.readable
}

// Shutdown closes the channel in both directions on both ends
func (p *Pair) Shutdown() error {
	p.closeSend()
	p.peer.closeSend()
	p.closeIntake()
	p.peer.closeIntake()
	return nil
}

// Close releases the channel end; equivalent to Shutdown for pairs
func (p *Pair) Close() error {
	return p.Shutdown()
}

func (p *Pair) closeSend() {
	p.mu.Lock()
	p.sendClosed = true
	p.mu.Unlock()
}

func (p *Pair) closeIntake() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true

	// Final wakeup so the peer's handler observes io.EOF.
	select {
	case p.readable <- struct{}{}:
	default:
	}
	close(p.readable)
}
