package supervise

import (
	"io"
	"os"

	"github.com/netherd/inetproxy/internal/logger"
	"github.com/netherd/inetproxy/pkg/psproto"
	"github.com/netherd/inetproxy/pkg/reactor"
)

// Process is an opaque handle on a spawned privsep process
type Process interface {
	PID() int
}

// Channel is a duplex, ordered, frame-preserving IPC stream between two
// privsep processes. Frames on one channel are delivered in write order;
// nothing is guaranteed across distinct channels.
type Channel interface {
	// Send enqueues one frame toward the peer and returns the byte count
	Send(frame []byte) (int, error)
	// Recv dequeues one pending frame. After the channel has shut down
	// and drained, Recv returns io.EOF; that is how a peer discovers a
	// dead channel.
	Recv() ([]byte, error)
	// Readable signals one pending Recv per token and closes on shutdown
	Readable() <-chan struct{}
	// Shutdown closes the channel in both directions on both ends
	Shutdown() error
	// Close releases the channel's resources
	Close() error
}

// Policy controls how a spawned process is confined
type Policy struct {
	// DropPrivileges asks the supervisor to shed the spawning process's
	// elevated rights before the child's event loop starts
	DropPrivileges bool
	// Title is the diagnostic process title for the child
	Title string
}

// ProcContext is handed to hooks running inside the spawned process
type ProcContext struct {
	Process Process
	Channel Channel
	Loop    reactor.Loop
	// ParentSlot is the inherited engine-facing channel slot, useless to
	// the child; startup hooks close it immediately.
	ParentSlot io.Closer
	Log        *logger.Logger
}

// Hooks bundle the callbacks that run inside a spawned process
type Hooks struct {
	// Startup runs before the child's event loop starts; a non-nil error
	// fails the spawn
	Startup func(pc *ProcContext) error
	// Receive runs on the child's loop whenever its channel is readable
	Receive reactor.Handler
	// Signal runs on the child's loop for each delivered signal
	Signal func(sig os.Signal)
}

// Supervisor is the process-supervision collaborator boundary
type Supervisor interface {
	// Spawn creates a process for the given identity and returns the
	// parent-side handles. The identity is diagnostic for the hub
	// process itself (zero identity) and authoritative for workers.
	Spawn(id psproto.Identity, hooks Hooks, policy Policy) (Process, Channel, error)
	// Terminate requests an orderly stop of a spawned process
	Terminate(p Process, ch Channel) error
}
