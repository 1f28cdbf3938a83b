package hub

import (
	"errors"
	"io"

	"github.com/netherd/inetproxy/pkg/psproto"
	"github.com/netherd/inetproxy/pkg/supervise"
	"github.com/netherd/inetproxy/pkg/types"
	"github.com/netherd/inetproxy/pkg/worker"
)

// Dispatch executes one engine command. It runs on the hub's loop, so
// lifecycle operations never race each other.
func (h *Hub) Dispatch(cmd psproto.Command) error {
	switch cmd.Kind {
	case psproto.KindTransmit:
		return h.transmit(cmd)
	case psproto.KindStart:
		return h.startWorker(cmd.Identity)
	case psproto.KindStop:
		return h.stopWorker(cmd.Identity)
	}
	return types.NewError(types.ErrCodeUnsupportedCommand,
		"unknown command kind "+cmd.Kind.String())
}

// transmit routes an outbound message: a worker owning the command's
// identity wins, then the protocol's default socket, then nothing.
func (h *Hub) transmit(cmd psproto.Command) error {
	if cmd.Message == nil {
		return types.NewError(types.ErrCodeUnsupportedCommand,
			"transmit command carries no message")
	}

	if !cmd.Identity.IsZero() {
		if e := h.reg.find(cmd.Identity); e != nil && e.status == types.StatusRunning {
			frame, err := psproto.Marshal(cmd)
			if err != nil {
				return err
			}
			if _, err := e.ch.Send(frame); err != nil {
				return types.WrapError(types.ErrCodeUnavailable,
					"failed to relay to worker "+cmd.Identity.String(), err)
			}
			return nil
		}
	}

	if conn, ok := h.defaults[cmd.Protocol]; ok {
		if _, err := conn.WriteMessage(cmd.Message); err != nil {
			return err
		}
		return nil
	}

	return types.NewError(types.ErrCodeNoRoute,
		"no worker or default socket for "+cmd.Protocol.String())
}

// startWorker spawns a listener for id. Starting an identity that is
// already running is a no-op; a spawn failure leaves no trace in the
// registry.
func (h *Hub) startWorker(id psproto.Identity) error {
	if err := h.checkIdentity(id); err != nil {
		return err
	}

	if e := h.reg.find(id); e != nil {
		h.log.Debug("worker already running", "identity", id.String())
		return nil
	}

	e := &entry{id: id, status: types.StatusPending}
	if err := h.reg.insert(e); err != nil {
		return err
	}

	l := worker.NewListener(id, h.open, h.priv)
	proc, ch, err := h.sup.Spawn(id, l.Hooks(), supervise.Policy{
		DropPrivileges: true,
		Title:          worker.Title(id),
	})
	if err != nil {
		h.reg.remove(id)
		return types.WrapError(types.ErrCodeSpawnFailure,
			"failed to start worker for "+id.String(), err)
	}

	e.proc = proc
	e.ch = ch
	e.status = types.StatusRunning

	if err := h.pc.Loop.Register(ch, h.relay(id, ch)); err != nil {
		h.reg.remove(id)
		h.sup.Terminate(proc, ch)
		return types.WrapError(types.ErrCodeSpawnFailure,
			"failed to register worker channel for "+id.String(), err)
	}

	h.log.Debug("worker started", "identity", id.String(), "pid", proc.PID())
	return nil
}

// stopWorker tears down the worker for id. A stop for an unknown
// identity succeeds as a no-op; a stop that finds the worker still live
// is logged and turned into a graceful stop rather than treated as
// corruption.
func (h *Hub) stopWorker(id psproto.Identity) error {
	if err := h.checkIdentity(id); err != nil {
		return err
	}

	e := h.reg.find(id)
	if e == nil {
		h.log.Debug("stop for unknown worker", "identity", id.String())
		return nil
	}

	switch e.status {
	case types.StatusRunning:
		h.log.Warn("stop command reached a live worker, stopping it",
			"identity", id.String())
		e.status = types.StatusStopping
		e.ch.Shutdown()
	case types.StatusStopping:
		// Already on its way out; the relay handler will reap it.
	default:
		h.reg.remove(id)
	}
	return nil
}

// checkIdentity rejects identities for protocols the configuration has
// disabled
func (h *Hub) checkIdentity(id psproto.Identity) error {
	if !id.Protocol.Valid() {
		return types.NewError(types.ErrCodeUnsupportedCommand,
			"invalid protocol in identity "+id.String())
	}
	p := h.cfg.Proxy
	enabled := false
	switch id.Protocol {
	case psproto.ProtocolBootp:
		enabled = p.IPv4
	case psproto.ProtocolND:
		enabled = p.IPv6
	case psproto.ProtocolDHCP6:
		enabled = p.IPv6 && p.DHCP6
	}
	if !enabled {
		return types.NewError(types.ErrCodeUnsupportedCommand,
			id.Protocol.String()+" is disabled by configuration")
	}
	return nil
}

// relay forwards worker frames up to the engine and reaps the worker
// when its channel reports end of stream
func (h *Hub) relay(id psproto.Identity, ch supervise.Channel) func() {
	return func() {
		frame, err := ch.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				h.reap(id)
			}
			return
		}
		if _, err := h.pc.Channel.Send(frame); err != nil {
			h.log.Warn("failed to relay worker frame to engine",
				"identity", id.String(), "error", err)
		}
	}
}

func (h *Hub) reap(id psproto.Identity) {
	e := h.reg.remove(id)
	if e == nil {
		return
	}
	if e.proc != nil {
		if err := h.sup.Terminate(e.proc, e.ch); err != nil {
			h.log.Warn("worker did not exit cleanly",
				"identity", id.String(), "error", err)
		}
	}
	h.log.Debug("worker reaped", "identity", id.String())
}
