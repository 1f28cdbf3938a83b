package engine

import (
	"errors"
	"io"
	"net/netip"
	"sync"

	"github.com/netherd/inetproxy/internal/config"
	"github.com/netherd/inetproxy/internal/logger"
	"github.com/netherd/inetproxy/pkg/hub"
	"github.com/netherd/inetproxy/pkg/privdrop"
	"github.com/netherd/inetproxy/pkg/psproto"
	"github.com/netherd/inetproxy/pkg/reactor"
	"github.com/netherd/inetproxy/pkg/sockets"
	"github.com/netherd/inetproxy/pkg/supervise"
	"github.com/netherd/inetproxy/pkg/types"
)

// Parser consumes datagrams the proxy forwarded for one protocol
type Parser interface {
	Parse(m *psproto.Message) error
}

// ParserFunc adapts a function to the Parser interface
type ParserFunc func(m *psproto.Message) error

// Parse calls f
func (f ParserFunc) Parse(m *psproto.Message) error {
	return f(m)
}

// Engine drives the proxy from the unprivileged side
type Engine struct {
	cfg  *config.Config
	log  *logger.Logger
	sup  supervise.Supervisor
	open sockets.Opener
	priv privdrop.Set
	loop reactor.Loop

	mu      sync.Mutex
	proc    supervise.Process
	ch      supervise.Channel
	parsers map[psproto.Protocol]Parser
}

// New creates an engine. Start spawns the hub.
func New(cfg *config.Config, sup supervise.Supervisor, open sockets.Opener,
	priv privdrop.Set, log *logger.Logger) *Engine {
	if log == nil {
		log, _ = logger.NewDefault()
	}
	return &Engine{
		cfg:     cfg,
		log:     log.With("component", "engine"),
		sup:     sup,
		open:    open,
		priv:    priv,
		parsers: make(map[psproto.Protocol]Parser),
	}
}

// RegisterParser installs the consumer for one protocol's forwarded
// datagrams, replacing any previous one
func (e *Engine) RegisterParser(proto psproto.Protocol, p Parser) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.parsers[proto] = p
}

// Start spawns the privileged hub and wires its channel into loop. The
// hub's startup failure surfaces here; a hub that could start no
// protocol socket at all reports NoProtocols underneath the spawn error.
func (e *Engine) Start(loop reactor.Loop) error {
	h := hub.New(e.cfg, e.sup, e.open, e.priv, e.log)
	proc, ch, err := e.sup.Spawn(psproto.Identity{}, h.Hooks(), supervise.Policy{
		DropPrivileges: true,
		Title:          hub.ProcessTitle,
	})
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.proc = proc
	e.ch = ch
	e.loop = loop
	e.mu.Unlock()

	if err := loop.Register(ch, e.recvHub); err != nil {
		e.mu.Lock()
		e.proc, e.ch = nil, nil
		e.mu.Unlock()
		e.sup.Terminate(proc, ch)
		return types.WrapError(types.ErrCodeInternal,
			"failed to register proxy channel", err)
	}

	e.log.Info("network proxy started", "pid", proc.PID())
	return nil
}

// Stop terminates the hub and everything under it
func (e *Engine) Stop() error {
	e.mu.Lock()
	proc, ch := e.proc, e.ch
	e.proc, e.ch = nil, nil
	e.mu.Unlock()

	if proc == nil {
		return nil
	}
	return e.sup.Terminate(proc, ch)
}

// recvHub handles one frame from the hub: a forwarded datagram is
// demultiplexed to its protocol's parser. Losing the hub channel is
// fatal for the engine loop.
func (e *Engine) recvHub() {
	e.mu.Lock()
	ch, loop := e.ch, e.loop
	e.mu.Unlock()
	if ch == nil {
		return
	}

	frame, err := ch.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			e.log.Error("proxy channel closed unexpectedly")
			loop.Exit(1)
		}
		return
	}

	cmd, err := psproto.Unmarshal(frame)
	if err != nil {
		e.log.Warn("dropping malformed frame from proxy", "error", err)
		return
	}
	if cmd.Kind != psproto.KindTransmit || cmd.Message == nil {
		e.log.Warn("unexpected command from proxy", "kind", cmd.Kind.String())
		return
	}

	e.mu.Lock()
	p := e.parsers[cmd.Protocol]
	e.mu.Unlock()
	if p == nil {
		e.log.Debug("no parser for forwarded datagram",
			"proto", cmd.Protocol.String())
		return
	}
	if err := p.Parse(cmd.Message); err != nil {
		e.log.Warn("parser rejected datagram",
			"proto", cmd.Protocol.String(), "error", err)
	}
}

// send marshals one command onto the hub channel and returns the byte
// count of the embedded payload, mirroring a sendmsg result
func (e *Engine) send(cmd psproto.Command) (int, error) {
	e.mu.Lock()
	ch := e.ch
	e.mu.Unlock()
	if ch == nil {
		return 0, types.NewError(types.ErrCodeFailedPrecondition,
			"proxy is not running")
	}

	frame, err := psproto.Marshal(cmd)
	if err != nil {
		return 0, err
	}
	if _, err := ch.Send(frame); err != nil {
		return 0, err
	}
	if cmd.Message != nil {
		return len(cmd.Message.Data), nil
	}
	return 0, nil
}

// OpenBootp starts a BOOTP listener bound to addr on ifindex
func (e *Engine) OpenBootp(ifindex uint32, addr netip.Addr) error {
	_, err := e.send(psproto.Start(psproto.BootpIdentity(ifindex, addr)))
	return err
}

// CloseBootp stops the BOOTP listener for addr on ifindex
func (e *Engine) CloseBootp(ifindex uint32, addr netip.Addr) error {
	_, err := e.send(psproto.Stop(psproto.BootpIdentity(ifindex, addr)))
	return err
}

// SendBootp transmits a BOOTP message. A nonzero identity routes via
// that worker, otherwise the hub's broadcast socket sends it.
func (e *Engine) SendBootp(ifindex uint32, addr netip.Addr, m *psproto.Message) (int, error) {
	id := psproto.BootpIdentity(ifindex, addr)
	if ifindex == 0 && !addr.IsValid() {
		return e.send(psproto.Transmit(psproto.ProtocolBootp, m))
	}
	return e.send(psproto.TransmitFor(id, m))
}

// OpenND makes neighbor discovery available on ifindex. In shared mode
// the hub's raw socket already covers every interface and this is a
// no-op; in interface mode a dedicated worker is started.
func (e *Engine) OpenND(ifindex uint32) error {
	if e.cfg.ND.WorkerMode == config.NDWorkerShared {
		return nil
	}
	_, err := e.send(psproto.Start(psproto.NDIdentity(ifindex)))
	return err
}

// CloseND releases neighbor discovery on ifindex
func (e *Engine) CloseND(ifindex uint32) error {
	if e.cfg.ND.WorkerMode == config.NDWorkerShared {
		return nil
	}
	_, err := e.send(psproto.Stop(psproto.NDIdentity(ifindex)))
	return err
}

// SendND transmits a neighbor discovery message on ifindex
func (e *Engine) SendND(ifindex uint32, m *psproto.Message) (int, error) {
	if e.cfg.ND.WorkerMode == config.NDWorkerShared {
		if m.IfIndex == 0 {
			m.IfIndex = ifindex
		}
		return e.send(psproto.Transmit(psproto.ProtocolND, m))
	}
	return e.send(psproto.TransmitFor(psproto.NDIdentity(ifindex), m))
}

// OpenDHCP6 starts a DHCPv6 listener bound to addr on ifindex
func (e *Engine) OpenDHCP6(ifindex uint32, addr netip.Addr) error {
	_, err := e.send(psproto.Start(psproto.DHCP6Identity(ifindex, addr)))
	return err
}

// CloseDHCP6 stops the DHCPv6 listener for addr on ifindex
func (e *Engine) CloseDHCP6(ifindex uint32, addr netip.Addr) error {
	_, err := e.send(psproto.Stop(psproto.DHCP6Identity(ifindex, addr)))
	return err
}

// SendDHCP6 transmits a DHCPv6 message, via the worker for addr when
// one is named and the shared client socket otherwise
func (e *Engine) SendDHCP6(ifindex uint32, addr netip.Addr, m *psproto.Message) (int, error) {
	if ifindex == 0 && !addr.IsValid() {
		return e.send(psproto.Transmit(psproto.ProtocolDHCP6, m))
	}
	return e.send(psproto.TransmitFor(psproto.DHCP6Identity(ifindex, addr), m))
}
