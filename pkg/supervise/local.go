package supervise

import (
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/netherd/inetproxy/internal/logger"
	"github.com/netherd/inetproxy/pkg/psproto"
	"github.com/netherd/inetproxy/pkg/reactor"
	"github.com/netherd/inetproxy/pkg/types"
)

// localPIDBase keeps synthetic PIDs visibly distinct from real ones
const localPIDBase = 60000

// Local is an in-process Supervisor: each spawned "process" is a
// goroutine running its own serial event loop, joined to the spawner by
// a channel pair. Used by tests and by the single-process mode.
type Local struct {
	log     *logger.Logger
	buffer  int
	timeout time.Duration

	mu      sync.Mutex
	nextPID int
	procs   map[int]*LocalProcess
}

// NewLocal creates an in-process supervisor. buffer bounds the frames
// each channel direction may hold; timeout bounds Terminate.
func NewLocal(log *logger.Logger, buffer int, timeout time.Duration) *Local {
	if log == nil {
		log, _ = logger.NewDefault()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Local{
		log:     log.With("component", "local_supervisor"),
		buffer:  buffer,
		timeout: timeout,
		procs:   make(map[int]*LocalProcess),
	}
}

// LocalProcess is the handle for one goroutine-hosted privsep process
type LocalProcess struct {
	pid   int
	title string
	loop  *reactor.Serial
	sigs  *signalQueue
	done  chan struct{}

	mu     sync.Mutex
	status int
}

// PID returns the synthetic process identifier
func (p *LocalProcess) PID() int {
	return p.pid
}

// Title returns the diagnostic process title
func (p *LocalProcess) Title() string {
	return p.title
}

// Wait blocks until the process's loop exits and returns its status
func (p *LocalProcess) Wait() int {
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Done closes when the process has exited
func (p *LocalProcess) Done() <-chan struct{} {
	return p.done
}

// signalQueue adapts asynchronous signal delivery to the loop's
// readiness model
type signalQueue struct {
	sigs     chan os.Signal
	readable chan struct{}
}

func newSignalQueue() *signalQueue {
	return &signalQueue{
		sigs:     make(chan os.Signal, 8),
		readable: make(chan struct{}, 8),
	}
}

func (q *signalQueue) Readable() <-chan struct{} {
	return q.readable
}

func (q *signalQueue) deliver(sig os.Signal) {
	select {
	case q.sigs <- sig:
		q.readable <- struct{}{}
	default:
		// Queue full; drop like a real pending-signal set would.
	}
}

func (q *signalQueue) next() (os.Signal, bool) {
	select {
	case sig := <-q.sigs:
		return sig, true
	default:
		return nil, false
	}
}

// Spawn runs the startup hook, wires the receive and signal hooks into a
// fresh loop and starts it. A startup failure tears the channel pair
// down and reports SpawnFailure; no process is left behind.
func (s *Local) Spawn(id psproto.Identity, hooks Hooks, policy Policy) (Process, Channel, error) {
	s.mu.Lock()
	s.nextPID++
	pid := localPIDBase + s.nextPID
	s.mu.Unlock()

	parentEnd, childEnd := NewPair(s.buffer)
	loop := reactor.NewSerial(s.log)
	p := &LocalProcess{
		pid:   pid,
		title: policy.Title,
		loop:  loop,
		sigs:  newSignalQueue(),
		done:  make(chan struct{}),
	}

	pc := &ProcContext{
		Process:    p,
		Channel:    childEnd,
		Loop:       loop,
		ParentSlot: nopSlot{},
		Log:        s.log.With("child_pid", pid),
	}

	if hooks.Startup != nil {
		if err := hooks.Startup(pc); err != nil {
			parentEnd.Close()
			return nil, nil, types.WrapError(types.ErrCodeSpawnFailure,
				"startup hook failed", err)
		}
	}

	if policy.DropPrivileges {
		// In-process children share the spawner's credentials; the flag
		// is honored by the forking supervisor behind this boundary.
		s.log.Debug("drop-privileges policy noted for in-process child",
			"pid", pid, "title", policy.Title)
	}

	if hooks.Receive != nil {
		if err := loop.Register(childEnd, hooks.Receive); err != nil {
			parentEnd.Close()
			return nil, nil, types.WrapError(types.ErrCodeSpawnFailure,
				"failed to register channel handler", err)
		}
	}
	if hooks.Signal != nil {
		sigFn := hooks.Signal
		if err := loop.Register(p.sigs, func() {
			if sig, ok := p.sigs.next(); ok {
				sigFn(sig)
			}
		}); err != nil {
			parentEnd.Close()
			return nil, nil, types.WrapError(types.ErrCodeSpawnFailure,
				"failed to register signal handler", err)
		}
	}

	s.mu.Lock()
	s.procs[pid] = p
	s.mu.Unlock()

	go func() {
		status := loop.Run()
		p.mu.Lock()
		p.status = status
		p.mu.Unlock()
		close(p.done)

		s.mu.Lock()
		delete(s.procs, pid)
		s.mu.Unlock()

		s.log.Debug("child exited", "pid", pid, "status", status)
	}()

	s.log.Debug("spawned child", "pid", pid, "identity", id.String(),
		"title", policy.Title)

	return p, parentEnd, nil
}

// Signal delivers a signal to a spawned process. Tests use this to drive
// the worker signal scenarios.
func (s *Local) Signal(proc Process, sig os.Signal) error {
	lp, ok := proc.(*LocalProcess)
	if !ok {
		return types.NewError(types.ErrCodeInvalidArgument,
			"process was not spawned by this supervisor")
	}
	lp.sigs.deliver(sig)
	return nil
}

// Terminate shuts the process's channel down, sends SIGTERM and waits
// for the loop to exit
func (s *Local) Terminate(proc Process, ch Channel) error {
	if ch != nil {
		_ = ch.Shutdown()
	}

	lp, ok := proc.(*LocalProcess)
	if !ok {
		return types.NewError(types.ErrCodeInvalidArgument,
			"process was not spawned by this supervisor")
	}

	lp.sigs.deliver(syscall.SIGTERM)

	select {
	case <-lp.done:
		return nil
	case <-time.After(s.timeout):
		return types.NewError(types.ErrCodeTimeout,
			"process did not exit within the shutdown timeout")
	}
}

// Running returns the number of live spawned processes
func (s *Local) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.procs)
}

// nopSlot stands in for the inherited engine-facing descriptor that a
// real forked child would close
type nopSlot struct{}

func (nopSlot) Close() error { return nil }
