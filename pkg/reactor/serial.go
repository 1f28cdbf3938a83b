package reactor

import (
	"sync"

	"github.com/netherd/inetproxy/internal/logger"
	"github.com/netherd/inetproxy/pkg/types"
)

// Serial is an in-process Loop. Each registered source gets a forwarder
// goroutine that translates readiness tokens into callbacks on a single
// dispatch channel; Run drains that channel on one goroutine, preserving
// the single-threaded cooperative model.
type Serial struct {
	mu         sync.Mutex
	log        *logger.Logger
	events     chan Handler
	done       chan struct{}
	status     int
	exited     bool
	registered int
}

// NewSerial creates a new in-process event loop
func NewSerial(log *logger.Logger) *Serial {
	if log == nil {
		log, _ = logger.NewDefault()
	}

	return &Serial{
		log:    log.With("component", "reactor"),
		events: make(chan Handler, 128),
		done:   make(chan struct{}),
	}
}

// Register arranges for fn to run on the loop goroutine whenever src is
// readable. The forwarder exits when the source's readiness channel
// closes or the loop stops.
func (l *Serial) Register(src Pollable, fn Handler) error {
	if src == nil || fn == nil {
		return types.NewError(types.ErrCodeInvalidArgument,
			"source and handler cannot be nil")
	}

	l.mu.Lock()
	if l.exited {
		l.mu.Unlock()
		return types.NewError(types.ErrCodeUnavailable, "loop has exited")
	}
	l.registered++
	l.mu.Unlock()

	go func() {
		for {
			select {
			case _, ok := <-src.Readable():
				if !ok {
					return
				}
				select {
				case l.events <- fn:
				case <-l.done:
					return
				}
			case <-l.done:
				return
			}
		}
	}()

	return nil
}

// Exit stops the loop with the given status. The first call wins.
func (l *Serial) Exit(status int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.exited {
		return
	}
	l.exited = true
	l.status = status
	close(l.done)
}

// Run dispatches callbacks until Exit is called and returns the exit
// status. It must be called from exactly one goroutine.
func (l *Serial) Run() int {
	for {
		select {
		case fn := <-l.events:
			fn()
		case <-l.done:
			l.mu.Lock()
			status := l.status
			l.mu.Unlock()
			return status
		}
	}
}

// Registered returns the number of sources added to the loop
func (l *Serial) Registered() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.registered
}
