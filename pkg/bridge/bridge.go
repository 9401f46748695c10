package bridge

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/krisarmstrong/gobridge/pkg/capture"
	"github.com/krisarmstrong/gobridge/pkg/config"
	"github.com/krisarmstrong/gobridge/pkg/logging"
	"github.com/krisarmstrong/gobridge/pkg/protocols"
	"github.com/krisarmstrong/gobridge/pkg/stats"
)

// snapshotInterval caps how often a fresh status snapshot is published for
// the TUI and API readers.
const snapshotInterval = 100 * time.Millisecond

// Options tunes one bridge engine. Zero values fall back to the package
// defaults in pkg/config.
type Options struct {
	PollTimeout      time.Duration
	AnnounceInterval time.Duration
	StartupWindow    time.Duration
	Stats            *stats.Statistics
	Debug            *logging.DebugConfig
	Listener         Listener
}

func (o *Options) setDefaults() {
	if o.PollTimeout <= 0 {
		o.PollTimeout = config.DefaultPollTimeout
	}
	if o.AnnounceInterval <= 0 {
		o.AnnounceInterval = config.DefaultAnnounceInterval
	}
	if o.StartupWindow <= 0 {
		o.StartupWindow = config.DefaultStartupWindow
	}
	if o.Stats == nil {
		o.Stats = stats.New("", "", "")
	}
	if o.Debug == nil {
		o.Debug = logging.NewDebugConfig(0)
	}
}

// Bridge is one emulated switch: the spanning-tree state machine plus the
// learning forwarder, driven by a single polled event loop. All protocol
// state is owned by that loop's goroutine; the management plane only sees
// immutable snapshots and events.
type Bridge struct {
	switchName string
	switchID   net.HardwareAddr

	ports []*Port
	// Inbound sources live apart from the port records so the loop can hold
	// one source while writing to any port's sink. Index-aligned with ports.
	inbound []FrameSource

	current     protocols.BPDU
	announceBuf protocols.Frame

	announceInterval time.Duration
	lastAnnounce     time.Time

	startupDeadline time.Time
	startupPending  bool

	table *Table

	stats    *stats.Statistics
	debug    *logging.DebugConfig
	listener Listener

	snap        atomic.Pointer[Snapshot]
	dirty       bool
	lastPublish time.Time
}

// Open enumerates the switch's interfaces, opens a port on each, and builds
// the engine. The switch identifier becomes the minimum port MAC.
func Open(switchName string, opts Options) (*Bridge, error) {
	opts.setDefaults()

	descs, err := capture.SwitchInterfaces(switchName)
	if err != nil {
		return nil, err
	}

	ports := make([]*Port, 0, len(descs))
	inbound := make([]FrameSource, 0, len(descs))
	for i, desc := range descs {
		port, src, err := NewPort(i, desc, opts.PollTimeout)
		if err != nil {
			return nil, err
		}
		ports = append(ports, port)
		inbound = append(inbound, src)
	}

	return New(switchName, ports, inbound, opts)
}

// New builds the engine from already-opened ports. The inbound slice must be
// index-aligned with ports.
func New(switchName string, ports []*Port, inbound []FrameSource, opts Options) (*Bridge, error) {
	opts.setDefaults()

	if len(ports) == 0 {
		return nil, fmt.Errorf("no viable ports for switch %q", switchName)
	}
	if len(ports) != len(inbound) {
		return nil, fmt.Errorf("port/source mismatch: %d ports, %d sources", len(ports), len(inbound))
	}

	switchID := protocols.BroadcastMAC
	for _, port := range ports {
		if bytes.Compare(port.MAC, switchID) < 0 {
			switchID = port.MAC
		}
	}

	now := time.Now()
	b := &Bridge{
		switchName:       switchName,
		switchID:         append(net.HardwareAddr(nil), switchID...),
		ports:            ports,
		inbound:          inbound,
		current:          protocols.New(0, switchID, switchID),
		announceBuf:      protocols.NewAnnounceBuffer(),
		announceInterval: opts.AnnounceInterval,
		// Force an announcement on the first loop iteration.
		lastAnnounce:    now.Add(-opts.AnnounceInterval),
		startupDeadline: now.Add(opts.StartupWindow),
		startupPending:  true,
		table:           NewTable(),
		stats:           opts.Stats,
		debug:           opts.Debug,
		listener:        opts.Listener,
	}
	b.stats.SetPortCount(len(ports))
	b.publishSnapshot(now)
	return b, nil
}

// SwitchName returns the name this bridge was started with.
func (b *Bridge) SwitchName() string {
	return b.switchName
}

// SwitchID returns a copy of the switch identifier.
func (b *Bridge) SwitchID() net.HardwareAddr {
	return append(net.HardwareAddr(nil), b.switchID...)
}

// SetListener installs the management-plane listener. Must be called before
// Run; the engine thread reads it without synchronization.
func (b *Bridge) SetListener(l Listener) {
	b.listener = l
}

// Run drives the event loop until a fatal I/O error. Receive timeouts are the
// loop's idle state; every other receive failure terminates the process, and
// periodic re-announcement makes convergence self-healing after restarts.
func (b *Bridge) Run() error {
	logging.Info("Bridge %s up: %d ports, switch id %s", b.switchName, len(b.ports), b.switchID)
	for {
		if err := b.step(time.Now()); err != nil {
			return err
		}
	}
}

// step executes one loop iteration: timers first, then one bounded receive
// per port in fixed index order.
func (b *Bridge) step(now time.Time) error {
	if b.startupPending && !now.Before(b.startupDeadline) {
		b.promoteLearning(now)
	}

	if now.Sub(b.lastAnnounce) > b.announceInterval {
		b.broadcastBPDU()
		b.lastAnnounce = now
	}

	for i, src := range b.inbound {
		raw, err := src.ReadFrame()
		if err != nil {
			if errors.Is(err, capture.ErrTimeout) {
				continue
			}
			return fmt.Errorf("port %s: %w", b.ports[i].Name, err)
		}

		frame := protocols.Frame(raw)
		if !frame.Valid() {
			b.stats.AddMalformed()
			logging.AreaDebug(logging.AreaLoop, b.debug.GetAreaLevel(logging.AreaLoop), 2,
				"Dropping runt frame on %s: %d bytes", b.ports[i].Name, len(raw))
			continue
		}

		if neighbor := protocols.TryDecode(frame); neighbor != nil {
			b.handleBPDU(i, *neighbor, frame.SourceMAC(), now)
		} else {
			b.handleData(i, frame)
		}
	}

	b.maybePublish(now)
	return nil
}

// handleBPDU interprets one neighbor advertisement received on port p.
//
// Election order: first the smaller root id, then the shorter path to it.
// The bridge id is consulted only to decide whether a downstream neighbor
// elected us as its upstream.
func (b *Bridge) handleBPDU(p int, neighbor protocols.BPDU, srcMAC net.HardwareAddr, now time.Time) {
	b.stats.AddBPDUReceived()
	stpLevel := b.debug.GetAreaLevel(logging.AreaSTP)
	logging.AreaDebug(logging.AreaSTP, stpLevel, 3, "BPDU on %s: %s", b.ports[p].Name, neighbor)

	switch bytes.Compare(neighbor.RootID, b.current.RootID) {
	case -1:
		// A better root is reachable through p.
		b.resetRoot(p, neighbor, srcMAC, now)
		b.broadcastBPDU()
		return
	case 1:
		// The neighbor is behind; re-announce so it corrects itself.
		b.broadcastBPDU()
		return
	}

	// Same root: compare the path through p against the current one. The
	// sums are computed in int so a 255-cost horizon compares rather than
	// wrapping.
	viaNeighbor := int(neighbor.RootCost) + 1
	current := int(b.current.RootCost)
	switch {
	case viaNeighbor < current:
		b.resetRoot(p, neighbor, srcMAC, now)
		b.broadcastBPDU()
	case viaNeighbor == current:
		// Tied path. The root port keeps its role; everything else on the
		// tie is redundant.
		if b.ports[p].State != StateRoot {
			b.setPortState(b.ports[p], StateBlock, now)
		}
	default:
		// The neighbor is downstream of us. Forward for it only if it
		// quoted us as its upstream.
		if bytes.Equal(neighbor.BridgeID, b.switchID) {
			b.setPortState(b.ports[p], StateForward, now)
		} else {
			b.setPortState(b.ports[p], StateBlock, now)
		}
	}
}

// resetRoot makes p the root port, demotes any previous root port to Block,
// and adopts the neighbor's cost-adjusted advertisement as our own. All other
// ports keep their state.
func (b *Bridge) resetRoot(p int, neighbor protocols.BPDU, srcMAC net.HardwareAddr, now time.Time) {
	for _, port := range b.ports {
		if port.Index == p {
			b.setPortState(port, StateRoot, now)
			continue
		}
		if port.State == StateRoot {
			b.setPortState(port, StateBlock, now)
		}
	}

	prevRoot := b.current.RootID
	b.current = protocols.New(uint8(int(neighbor.RootCost)+1), neighbor.RootID, srcMAC)
	b.stats.AddRootChange()
	b.dirty = true

	if !bytes.Equal(prevRoot, b.current.RootID) {
		logging.Area(logging.AreaSTP, "%s: new root %s (cost %d) via %s",
			b.switchName, b.current.RootID, b.current.RootCost, b.ports[p].Name)
		b.emit(Event{
			Time:     now,
			Type:     EventRootChange,
			Port:     p,
			PortName: b.ports[p].Name,
			RootID:   b.current.RootID.String(),
			RootCost: b.current.RootCost,
		})
	}
}

// handleData forwards one host frame received on port p, learning its source.
func (b *Bridge) handleData(p int, frame protocols.Frame) {
	port := b.ports[p]
	fwdLevel := b.debug.GetAreaLevel(logging.AreaForward)

	if port.State == StateBlock {
		b.stats.AddDroppedBlocked()
		logging.AreaDebug(logging.AreaForward, fwdLevel, 2, "Denied data frame on blocked port %s", port.Name)
		return
	}

	// Source learning happens on every non-blocked ingress, Learning ports
	// included: populating the table without forwarding is what Learning is
	// for. Blocked ingress never reaches this point, so blocked sources
	// never enter the table.
	b.table.Learn(frame.SourceMAC(), p)
	b.stats.SetTableSize(b.table.Len())
	b.dirty = true

	if port.State == StateLearning {
		b.stats.AddLearnedOnly()
		return
	}

	if next, ok := b.table.Lookup(frame.DestinationMAC()); ok {
		out := b.ports[next]
		if out.State == StateBlock {
			panic(fmt.Sprintf("bridge: forwarding table targets blocked port %s", out.Name))
		}
		b.send(out, frame)
		b.stats.AddForwarded()
		logging.AreaDebug(logging.AreaForward, fwdLevel, 3, "%s -> %s via %s",
			frame.SourceMAC(), frame.DestinationMAC(), out.Name)
		return
	}

	// Unknown destination: flood every forwarding port except the ingress.
	for _, out := range b.ports {
		if out.Index == p || !out.State.forwards() {
			continue
		}
		b.send(out, frame)
	}
	b.stats.AddFlooded()
	logging.AreaDebug(logging.AreaForward, fwdLevel, 3, "Flooding %s -> %s from %s",
		frame.SourceMAC(), frame.DestinationMAC(), port.Name)
}

// broadcastBPDU encodes the current advertisement once into the reusable
// buffer and emits it on every port, blocked ports included.
func (b *Bridge) broadcastBPDU() {
	frame := b.current.Encode(b.announceBuf, b.switchID)
	for _, port := range b.ports {
		b.send(port, frame)
	}
	b.stats.AddBPDUsSent(len(b.ports))
	logging.AreaDebug(logging.AreaSTP, b.debug.GetAreaLevel(logging.AreaSTP), 3, "Announced %s", b.current)
}

// send emits one frame on a port's sink. Emission failures are logged, not
// fatal: the receive path decides liveness, and periodic re-announcement
// repairs anything a lost frame left stale.
func (b *Bridge) send(port *Port, frame []byte) {
	if err := port.Out.WriteFrame(frame); err != nil {
		logging.Warning("send on %s: %v", port.Name, err)
	}
}

// promoteLearning is the one-shot end of the startup window: every port
// still Learning starts forwarding.
func (b *Bridge) promoteLearning(now time.Time) {
	for _, port := range b.ports {
		if port.State == StateLearning {
			b.setPortState(port, StateForward, now)
		}
	}
	b.startupPending = false
	logging.Info("Bridge %s: startup window closed, learning ports promoted", b.switchName)
}

// setPortState applies one transition and notifies the management plane.
func (b *Bridge) setPortState(port *Port, state PortState, now time.Time) {
	if port.State == state {
		return
	}
	old := port.State
	port.State = state
	b.dirty = true

	logging.AreaDebug(logging.AreaSTP, b.debug.GetAreaLevel(logging.AreaSTP), 2,
		"%s: %s -> %s", port.Name, old, state)
	b.emit(Event{
		Time:     now,
		Type:     EventPortState,
		Port:     port.Index,
		PortName: port.Name,
		OldState: old.String(),
		NewState: state.String(),
		RootID:   b.current.RootID.String(),
		RootCost: b.current.RootCost,
	})
}

func (b *Bridge) emit(ev Event) {
	if b.listener != nil {
		b.listener.HandleEvent(ev)
	}
}
