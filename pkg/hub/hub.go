package hub

import (
	"errors"
	"io"
	"net/netip"
	"os"
	"syscall"

	"github.com/netherd/inetproxy/internal/config"
	"github.com/netherd/inetproxy/internal/logger"
	"github.com/netherd/inetproxy/pkg/privdrop"
	"github.com/netherd/inetproxy/pkg/psproto"
	"github.com/netherd/inetproxy/pkg/sockets"
	"github.com/netherd/inetproxy/pkg/supervise"
	"github.com/netherd/inetproxy/pkg/types"
)

// ProcessTitle is the diagnostic title of the hub process
const ProcessTitle = "[network proxy]"

// Hub is the privileged proxy process state
type Hub struct {
	cfg  *config.Config
	log  *logger.Logger
	open sockets.Opener
	priv privdrop.Set
	sup  supervise.Supervisor

	pc       *supervise.ProcContext
	reg      *registry
	defaults map[psproto.Protocol]sockets.Conn
}

// New creates a hub. Nothing is opened until the startup hook runs
// inside the spawned process.
func New(cfg *config.Config, sup supervise.Supervisor, open sockets.Opener,
	priv privdrop.Set, log *logger.Logger) *Hub {
	if log == nil {
		log, _ = logger.NewDefault()
	}
	return &Hub{
		cfg:      cfg,
		log:      log.With("component", "hub"),
		open:     open,
		priv:     priv,
		sup:      sup,
		reg:      newRegistry(),
		defaults: make(map[psproto.Protocol]sockets.Conn),
	}
}

// Hooks returns the supervise callbacks that run this hub inside its
// spawned process
func (h *Hub) Hooks() supervise.Hooks {
	return supervise.Hooks{
		Startup: h.startup,
		Receive: h.recvEngine,
		Signal:  h.handleSignal,
	}
}

// startup opens the default sockets the configuration calls for. Each
// protocol fails independently; the spawn fails only when none of them
// could be started. The sandbox is entered last, once every privileged
// open is behind us.
func (h *Hub) startup(pc *supervise.ProcContext) error {
	pc.ParentSlot.Close()
	h.pc = pc

	for _, proto := range h.defaultProtocols() {
		conn, err := h.openDefault(proto)
		if err != nil {
			h.log.Warn("default socket unavailable",
				"proto", proto.String(), "error", err)
			continue
		}
		if err := h.priv.RestrictHandle(conn.Fd()); err != nil {
			conn.Close()
			h.log.Warn("default socket restriction failed",
				"proto", proto.String(), "error", err)
			continue
		}
		if err := pc.Loop.Register(conn, h.defaultRecv(proto, conn)); err != nil {
			conn.Close()
			h.log.Warn("failed to register default socket",
				"proto", proto.String(), "error", err)
			continue
		}
		h.defaults[proto] = conn
		h.log.Debug("default socket open", "proto", proto.String(), "fd", conn.Fd())
	}

	if len(h.defaults) == 0 {
		return types.NewError(types.ErrCodeNoProtocols,
			"no protocol socket could be started")
	}

	return h.priv.EnterSandbox()
}

// defaultProtocols applies the master-mode and worker-mode gating: only
// a master instance owns the shared BOOTP and DHCPv6 sockets, and the
// shared neighbor discovery socket exists only when workers are not
// taking over per interface.
func (h *Hub) defaultProtocols() []psproto.Protocol {
	p := h.cfg.Proxy
	var out []psproto.Protocol
	if p.Master && p.IPv4 {
		out = append(out, psproto.ProtocolBootp)
	}
	if p.IPv6 && h.cfg.ND.WorkerMode == config.NDWorkerShared {
		out = append(out, psproto.ProtocolND)
	}
	if p.Master && p.IPv6 && p.DHCP6 {
		out = append(out, psproto.ProtocolDHCP6)
	}
	return out
}

func (h *Hub) openDefault(proto psproto.Protocol) (sockets.Conn, error) {
	switch proto {
	case psproto.ProtocolBootp:
		return h.open.OpenBootp(0, netip.Addr{})
	case psproto.ProtocolND:
		return h.open.OpenND(0)
	case psproto.ProtocolDHCP6:
		return h.open.OpenDHCP6(0, netip.Addr{})
	}
	return nil, types.NewError(types.ErrCodeUnsupportedCommand,
		"unknown default protocol "+proto.String())
}

// defaultRecv forwards inbound datagrams on a default socket up to the
// engine as identity-less transmit frames
func (h *Hub) defaultRecv(proto psproto.Protocol, conn sockets.Conn) func() {
	return func() {
		dg, err := conn.ReadMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				h.log.Warn("default socket closed", "proto", proto.String())
				delete(h.defaults, proto)
			}
			return
		}

		msg := &psproto.Message{
			Src:     dg.Src,
			IfIndex: dg.IfIndex,
			Control: dg.Control,
			Data:    dg.Data,
		}
		frame, err := psproto.Marshal(psproto.Transmit(proto, msg))
		if err != nil {
			h.log.Warn("failed to encode inbound datagram",
				"proto", proto.String(), "error", err)
			return
		}
		if _, err := h.pc.Channel.Send(frame); err != nil {
			h.log.Warn("failed to forward datagram to engine",
				"proto", proto.String(), "error", err)
		}
	}
}

// recvEngine handles one frame from the engine channel. A dead engine
// channel means the engine is gone; the hub follows it down.
func (h *Hub) recvEngine() {
	frame, err := h.pc.Channel.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			h.log.Info("engine channel closed, shutting down")
			h.shutdown()
			h.pc.Loop.Exit(0)
		}
		return
	}

	cmd, err := psproto.Unmarshal(frame)
	if err != nil {
		h.log.Warn("dropping malformed frame from engine", "error", err)
		return
	}
	if err := h.Dispatch(cmd); err != nil {
		h.log.Warn("command failed",
			"kind", cmd.Kind.String(), "proto", cmd.Protocol.String(),
			"error", err)
	}
}

func (h *Hub) handleSignal(sig os.Signal) {
	switch sig {
	case syscall.SIGINT:
		// Ignored; the engine owns interactive shutdown.
	case syscall.SIGTERM:
		h.log.Info("terminating on SIGTERM")
		h.shutdown()
		h.pc.Loop.Exit(0)
	default:
		h.log.Warn("unexpected signal", "signal", sig.String())
		h.shutdown()
		h.pc.Loop.Exit(1)
	}
}

// shutdown tears down every worker and default socket
func (h *Hub) shutdown() {
	for _, e := range h.reg.snapshot() {
		if e.ch != nil {
			e.ch.Shutdown()
		}
		if e.proc != nil {
			if err := h.sup.Terminate(e.proc, e.ch); err != nil {
				h.log.Warn("worker did not stop cleanly",
					"identity", e.id.String(), "error", err)
			}
		}
		h.reg.remove(e.id)
	}
	for proto, conn := range h.defaults {
		conn.Close()
		delete(h.defaults, proto)
	}
	h.pc.Channel.Shutdown()
}

// Workers returns the number of live worker entries
func (h *Hub) Workers() int {
	return h.reg.len()
}
