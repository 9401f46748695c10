package bridge

import "time"

// PortInfo is one port's status as seen by the management plane.
type PortInfo struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	MAC   string `json:"mac"`
	State string `json:"state"`
}

// Snapshot is an immutable view of the engine published at loop boundaries.
// The TUI and the HTTP API read snapshots; they never touch engine state.
type Snapshot struct {
	TakenAt    time.Time      `json:"taken_at"`
	SwitchName string         `json:"switch_name"`
	SwitchID   string         `json:"switch_id"`
	RootID     string         `json:"root_id"`
	RootCost   uint8          `json:"root_cost"`
	IsRoot     bool           `json:"is_root"`
	Ports      []PortInfo     `json:"ports"`
	Table      map[string]int `json:"table"`
}

// Snapshot returns the most recently published engine view. Safe to call
// from any goroutine.
func (b *Bridge) Snapshot() Snapshot {
	return *b.snap.Load()
}

// maybePublish refreshes the published snapshot when state changed, at most
// once per snapshotInterval.
func (b *Bridge) maybePublish(now time.Time) {
	if !b.dirty || now.Sub(b.lastPublish) < snapshotInterval {
		return
	}
	b.publishSnapshot(now)
}

func (b *Bridge) publishSnapshot(now time.Time) {
	ports := make([]PortInfo, len(b.ports))
	for i, port := range b.ports {
		ports[i] = PortInfo{
			Index: port.Index,
			Name:  port.Name,
			MAC:   port.MAC.String(),
			State: port.State.String(),
		}
	}

	snap := &Snapshot{
		TakenAt:    now,
		SwitchName: b.switchName,
		SwitchID:   b.switchID.String(),
		RootID:     b.current.RootID.String(),
		RootCost:   b.current.RootCost,
		IsRoot:     b.current.RootID.String() == b.switchID.String(),
		Ports:      ports,
		Table:      b.table.Entries(),
	}
	b.snap.Store(snap)
	b.dirty = false
	b.lastPublish = now
}
