package bridge

import (
	"bytes"
	"testing"
	"time"

	"github.com/krisarmstrong/gobridge/pkg/protocols"
)

// pipeSink delivers written frames into a peer bridge's inbound source,
// emulating one direction of an Ethernet link.
type pipeSink struct {
	to   *fakeSource
	sent [][]byte
}

func (p *pipeSink) WriteFrame(frame []byte) error {
	cp := append([]byte(nil), frame...)
	p.to.queue = append(p.to.queue, cp)
	p.sent = append(p.sent, cp)
	return nil
}

// testSwitch is one emulated switch wired with fake I/O.
type testSwitch struct {
	b       *Bridge
	sources []*fakeSource
}

// newTestSwitch creates a switch whose ports are initially unwired.
func newTestSwitch(t *testing.T, name string, macs ...string) *testSwitch {
	t.Helper()

	ports := make([]*Port, len(macs))
	sources := make([]*fakeSource, len(macs))
	inbound := make([]FrameSource, len(macs))
	for i, m := range macs {
		sources[i] = &fakeSource{}
		inbound[i] = sources[i]
		ports[i] = &Port{Index: i, Name: name + "-eth" + string(rune('0'+i)), MAC: parseMAC(t, m), Out: &fakeSink{}, State: StateLearning}
	}

	b, err := New(name, ports, inbound, Options{
		PollTimeout:      time.Millisecond,
		AnnounceInterval: time.Hour,
		StartupWindow:    2 * time.Second,
	})
	if err != nil {
		t.Fatalf("New(%s) error = %v", name, err)
	}
	return &testSwitch{b: b, sources: sources}
}

// connect wires port pa of a to port pb of b in both directions.
func connect(a *testSwitch, pa int, b *testSwitch, pb int) {
	a.b.ports[pa].Out = &pipeSink{to: b.sources[pb]}
	b.b.ports[pb].Out = &pipeSink{to: a.sources[pa]}
}

// runUntilQuiet steps every switch in order until no frames are in flight.
func runUntilQuiet(t *testing.T, now time.Time, switches ...*testSwitch) {
	t.Helper()
	for round := 0; round < 50; round++ {
		for _, sw := range switches {
			if err := sw.b.step(now); err != nil {
				t.Fatalf("step(%s) error = %v", sw.b.SwitchName(), err)
			}
		}

		pending := false
		for _, sw := range switches {
			for _, src := range sw.sources {
				if len(src.queue) > 0 {
					pending = true
				}
			}
		}
		if !pending {
			return
		}
	}
	t.Fatal("Topology did not quiesce within 50 rounds")
}

func rootPorts(sw *testSwitch) []int {
	var out []int
	for _, port := range sw.b.ports {
		if port.State == StateRoot {
			out = append(out, port.Index)
		}
	}
	return out
}

// Two switches joined by two parallel links elect the lower switch id as
// root, keep one link, and block the redundant one.
func TestTwoSwitchParallelLinksConvergence(t *testing.T) {
	a := newTestSwitch(t, "a", "02:00:00:00:00:01", "02:00:00:00:00:02")
	b := newTestSwitch(t, "b", "02:00:00:00:00:03", "02:00:00:00:00:04")
	connect(a, 0, b, 0)
	connect(a, 1, b, 1)

	// Step past the snapshot throttle so the published views can refresh.
	now := time.Now().Add(snapshotInterval)
	runUntilQuiet(t, now, a, b)

	// The root keeps claiming itself at cost zero.
	if !a.b.Snapshot().IsRoot {
		t.Error("Expected switch a to be root")
	}
	if a.b.current.RootCost != 0 {
		t.Errorf("Expected root cost 0 on a, got %d", a.b.current.RootCost)
	}

	// b agrees on the root at cost 1, reached via a's switch id.
	if b.b.Snapshot().IsRoot {
		t.Error("Expected switch b to defer to a")
	}
	if b.b.current.RootCost != 1 {
		t.Errorf("Expected root cost 1 on b, got %d", b.b.current.RootCost)
	}
	if !bytes.Equal(b.b.current.RootID, a.b.SwitchID()) {
		t.Errorf("Expected b's root id %s, got %s", a.b.SwitchID(), b.b.current.RootID)
	}
	if !bytes.Equal(b.b.current.BridgeID, a.b.SwitchID()) {
		t.Errorf("Expected b's upstream %s, got %s", a.b.SwitchID(), b.b.current.BridgeID)
	}

	// Exactly one of b's ports is Root, the other is Block.
	roots := rootPorts(b)
	if len(roots) != 1 {
		t.Fatalf("Expected exactly one root port on b, got %v", roots)
	}
	other := 1 - roots[0]
	if b.b.ports[other].State != StateBlock {
		t.Errorf("Expected b's redundant port Block, got %s", b.b.ports[other].State)
	}

	// The root has no root port; its link ports forward for b.
	if len(rootPorts(a)) != 0 {
		t.Errorf("Expected no root port on the root switch, got %v", rootPorts(a))
	}
	for _, port := range a.b.ports {
		if port.State != StateForward {
			t.Errorf("Expected a's port %s Forward, got %s", port.Name, port.State)
		}
	}
}

// Host traffic after convergence: unknown destinations flood along the tree,
// learned destinations ride exactly one port (scenarios S2/S3).
func TestHostForwardingAfterConvergence(t *testing.T) {
	// Port 2 on each switch faces a host.
	a := newTestSwitch(t, "a", "02:00:00:00:00:01", "02:00:00:00:00:02", "02:00:00:00:00:05")
	b := newTestSwitch(t, "b", "02:00:00:00:00:03", "02:00:00:00:00:04", "02:00:00:00:00:06")
	connect(a, 0, b, 0)
	connect(a, 1, b, 1)
	hostA := a.b.ports[2].Out.(*fakeSink)
	hostB := b.b.ports[2].Out.(*fakeSink)

	base := time.Now()
	runUntilQuiet(t, base, a, b)

	// End the startup window so host ports forward.
	after := base.Add(2500 * time.Millisecond)
	runUntilQuiet(t, after, a, b)
	if a.b.ports[2].State != StateForward || b.b.ports[2].State != StateForward {
		t.Fatalf("Expected host ports Forward, got %s/%s", a.b.ports[2].State, b.b.ports[2].State)
	}

	// H1 behind a sends to an unknown destination: a learns and floods.
	h1, h2 := "aa:00:00:00:00:01", "bb:00:00:00:00:02"
	a.sources[2].push(dataFrame(t, h1, h2))
	runUntilQuiet(t, after, a, b)

	if port, ok := a.b.table.Lookup(parseMAC(t, h1)); !ok || port != 2 {
		t.Errorf("Expected a to learn %s on its host port, got %d (ok=%v)", h1, port, ok)
	}
	if len(hostB.dataFrames()) != 1 {
		t.Fatalf("Expected the flood to reach b's host exactly once, got %d", len(hostB.dataFrames()))
	}
	if len(hostA.dataFrames()) != 0 {
		t.Error("Expected no reflection back to the sending host")
	}

	// H2 replies: both switches now forward on exactly one port.
	b.sources[2].push(dataFrame(t, h2, h1))
	runUntilQuiet(t, after, a, b)

	if len(hostA.dataFrames()) != 1 {
		t.Fatalf("Expected the reply delivered to H1 exactly once, got %d", len(hostA.dataFrames()))
	}
	// The reply rode the surviving link only: the blocked link carried no
	// data traffic in either direction.
	blocked := 1 - rootPorts(b)[0]
	if sink, ok := b.b.ports[blocked].Out.(*pipeSink); ok {
		for _, f := range sink.sent {
			if !bytes.Equal(protocols.Frame(f).DestinationMAC(), protocols.GroupMAC) {
				t.Error("Expected only control traffic on the blocked link")
			}
		}
	}
	if port, ok := a.b.table.Lookup(parseMAC(t, h2)); !ok || port != rootPorts(b)[0] {
		t.Errorf("Expected a to learn %s on the surviving link, got %d (ok=%v)", h2, port, ok)
	}
}

// Triangle topology: the two higher-id switches each root toward the lowest
// id, and the cross link between them goes dark on both ends.
func TestTriangleConvergence(t *testing.T) {
	a := newTestSwitch(t, "a", "02:00:00:00:00:01", "02:00:00:00:00:02")
	b := newTestSwitch(t, "b", "02:00:00:00:00:03", "02:00:00:00:00:04")
	c := newTestSwitch(t, "c", "02:00:00:00:00:05", "02:00:00:00:00:06")
	connect(a, 0, b, 0)
	connect(a, 1, c, 0)
	connect(b, 1, c, 1)

	now := time.Now()
	runUntilQuiet(t, now, a, b, c)

	if !a.b.Snapshot().IsRoot {
		t.Error("Expected a to win the election")
	}
	for _, port := range a.b.ports {
		if port.State != StateForward {
			t.Errorf("Expected root's port %s Forward, got %s", port.Name, port.State)
		}
	}

	for _, sw := range []*testSwitch{b, c} {
		if sw.b.current.RootCost != 1 {
			t.Errorf("Expected cost 1 on %s, got %d", sw.b.SwitchName(), sw.b.current.RootCost)
		}
		roots := rootPorts(sw)
		if len(roots) != 1 || roots[0] != 0 {
			t.Errorf("Expected %s to root toward a on port 0, got %v", sw.b.SwitchName(), roots)
		}
	}

	// The b-c link: equal-cost peers, neither elected the other as its
	// upstream, so both ends block. Correct for loop prevention.
	if b.b.ports[1].State != StateBlock {
		t.Errorf("Expected b's cross port Block, got %s", b.b.ports[1].State)
	}
	if c.b.ports[1].State != StateBlock {
		t.Errorf("Expected c's cross port Block, got %s", c.b.ports[1].State)
	}
}

// P1/P3 over a line of four switches: announcements propagate hop by hop and
// every switch settles on the global minimum with one root port each.
func TestLineTopologyElectsGlobalMinimum(t *testing.T) {
	s1 := newTestSwitch(t, "s1", "02:00:00:00:00:01", "02:00:00:00:00:02")
	s2 := newTestSwitch(t, "s2", "02:00:00:00:00:13", "02:00:00:00:00:14")
	s3 := newTestSwitch(t, "s3", "02:00:00:00:00:25", "02:00:00:00:00:26")
	s4 := newTestSwitch(t, "s4", "02:00:00:00:00:37", "02:00:00:00:00:38")
	connect(s1, 1, s2, 0)
	connect(s2, 1, s3, 0)
	connect(s3, 1, s4, 0)

	now := time.Now()
	runUntilQuiet(t, now, s4, s3, s2, s1)

	want := s1.b.SwitchID()
	for i, sw := range []*testSwitch{s1, s2, s3, s4} {
		if !bytes.Equal(sw.b.current.RootID, want) {
			t.Errorf("Expected %s to elect %s, got %s", sw.b.SwitchName(), want, sw.b.current.RootID)
		}
		if sw.b.current.RootCost != uint8(i) {
			t.Errorf("Expected cost %d on %s, got %d", i, sw.b.SwitchName(), sw.b.current.RootCost)
		}
		if i == 0 {
			if len(rootPorts(sw)) != 0 {
				t.Errorf("Expected the root to have no root port, got %v", rootPorts(sw))
			}
		} else if len(rootPorts(sw)) != 1 {
			t.Errorf("Expected one root port on %s, got %v", sw.b.SwitchName(), rootPorts(sw))
		}
	}
}
