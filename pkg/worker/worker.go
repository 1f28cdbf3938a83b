package worker

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/netherd/inetproxy/pkg/privdrop"
	"github.com/netherd/inetproxy/pkg/psproto"
	"github.com/netherd/inetproxy/pkg/sockets"
	"github.com/netherd/inetproxy/pkg/supervise"
	"github.com/netherd/inetproxy/pkg/types"
)

// Listener is the state of one worker process: a single protocol socket
// bound to the worker's identity
type Listener struct {
	id   psproto.Identity
	open sockets.Opener
	priv privdrop.Set

	pc   *supervise.ProcContext
	conn sockets.Conn
}

// NewListener creates the listener for id. Nothing is opened until the
// startup hook runs inside the spawned process.
func NewListener(id psproto.Identity, open sockets.Opener, priv privdrop.Set) *Listener {
	return &Listener{id: id, open: open, priv: priv}
}

// Title builds the diagnostic process title for a worker identity
func Title(id psproto.Identity) string {
	if id.Addr.IsValid() {
		return fmt.Sprintf("[%s proxy] %s", id.Protocol, id.Addr)
	}
	if id.IfIndex != 0 {
		return fmt.Sprintf("[%s proxy] if%d", id.Protocol, id.IfIndex)
	}
	return fmt.Sprintf("[%s proxy]", id.Protocol)
}

// Hooks returns the supervise callbacks that run this listener inside
// its spawned process
func (l *Listener) Hooks() supervise.Hooks {
	return supervise.Hooks{
		Startup: l.startup,
		Receive: l.recvChannel,
		Signal:  l.handleSignal,
	}
}

// startup opens and confines the worker's socket. Order matters: the
// socket must exist before its handle is narrowed, and the sandbox is
// entered only once everything privileged is done.
func (l *Listener) startup(pc *supervise.ProcContext) error {
	pc.ParentSlot.Close()
	l.pc = pc

	conn, err := l.openSocket()
	if err != nil {
		return err
	}

	if err := l.priv.RestrictHandle(conn.Fd()); err != nil {
		conn.Close()
		return err
	}
	if err := pc.Loop.Register(conn, l.forward); err != nil {
		conn.Close()
		return err
	}
	l.conn = conn

	pc.Log.Debug("spawned listener", "identity", l.id.String(), "fd", conn.Fd())

	if err := l.priv.EnterSandbox(); err != nil {
		conn.Close()
		return err
	}
	return nil
}

func (l *Listener) openSocket() (sockets.Conn, error) {
	switch l.id.Protocol {
	case psproto.ProtocolBootp:
		return l.open.OpenBootp(l.id.IfIndex, l.id.Addr)
	case psproto.ProtocolND:
		return l.open.OpenND(l.id.IfIndex)
	case psproto.ProtocolDHCP6:
		return l.open.OpenDHCP6(l.id.IfIndex, l.id.Addr)
	default:
		return nil, types.NewError(types.ErrCodeUnsupportedCommand,
			"unknown protocol for worker identity "+l.id.String())
	}
}

// forward relays one received datagram up to the hub
func (l *Listener) forward() {
	dg, err := l.conn.ReadMessage()
	if err != nil {
		if errors.Is(err, io.EOF) {
			// The socket died under us; nothing left to listen on.
			l.pc.Log.Warn("listener socket closed", "identity", l.id.String())
			l.stop(1)
		}
		return
	}

	msg := &psproto.Message{
		Src:     dg.Src,
		IfIndex: dg.IfIndex,
		Control: dg.Control,
		Data:    dg.Data,
	}
	frame, err := psproto.Marshal(psproto.TransmitFor(l.id, msg))
	if err != nil {
		l.pc.Log.Warn("failed to encode datagram", "error", err)
		return
	}
	if _, err := l.pc.Channel.Send(frame); err != nil {
		l.pc.Log.Warn("failed to forward datagram to hub", "error", err)
	}
}

// recvChannel handles one frame from the hub. Only Transmit commands are
// meaningful here; lifecycle commands never target a running worker's
// channel.
func (l *Listener) recvChannel() {
	frame, err := l.pc.Channel.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			l.stop(0)
		}
		return
	}

	cmd, err := psproto.Unmarshal(frame)
	if err != nil {
		l.pc.Log.Warn("dropping malformed frame from hub", "error", err)
		return
	}
	if cmd.Kind != psproto.KindTransmit || cmd.Message == nil {
		l.pc.Log.Warn("unexpected command on worker channel",
			"kind", cmd.Kind.String())
		return
	}

	if _, err := l.conn.WriteMessage(cmd.Message); err != nil {
		l.pc.Log.Warn("transmit failed", "identity", l.id.String(), "error", err)
	}
}

func (l *Listener) handleSignal(sig os.Signal) {
	switch sig {
	case syscall.SIGINT:
		// Ignored; only the engine decides when this worker stops.
	case syscall.SIGTERM:
		l.stop(0)
	default:
		l.pc.Log.Warn("unexpected signal", "signal", sig.String())
		l.stop(1)
	}
}

func (l *Listener) stop(status int) {
	if l.conn != nil {
		l.conn.Close()
	}
	l.pc.Channel.Shutdown()
	l.pc.Loop.Exit(status)
}
