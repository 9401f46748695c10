// Package stats provides runtime statistics collection and export for gobridge
package stats

import (
	"sync"
	"time"
)

// Statistics holds all runtime counters for one bridge process
type Statistics struct {
	mu sync.RWMutex

	// General stats
	StartTime  time.Time `json:"start_time"`
	SwitchName string    `json:"switch_name"`
	SwitchID   string    `json:"switch_id"`
	PortCount  int       `json:"port_count"`
	Version    string    `json:"version"`

	// Control plane
	BPDUsSent     uint64 `json:"bpdus_sent"`
	BPDUsReceived uint64 `json:"bpdus_received"`
	RootChanges   uint64 `json:"root_changes"`

	// Data plane
	FramesForwarded uint64 `json:"frames_forwarded"`
	FramesFlooded   uint64 `json:"frames_flooded"`
	DroppedBlocked  uint64 `json:"dropped_blocked"`
	LearnedOnly     uint64 `json:"learned_only"`
	MalformedFrames uint64 `json:"malformed_frames"`
	TableSize       int    `json:"table_size"`
}

// Snapshot is a mutex-free copy of Statistics for export and display
type Snapshot struct {
	StartTime  time.Time     `json:"start_time"`
	Uptime     time.Duration `json:"uptime_ns"`
	SwitchName string        `json:"switch_name"`
	SwitchID   string        `json:"switch_id"`
	PortCount  int           `json:"port_count"`
	Version    string        `json:"version"`

	BPDUsSent     uint64 `json:"bpdus_sent"`
	BPDUsReceived uint64 `json:"bpdus_received"`
	RootChanges   uint64 `json:"root_changes"`

	FramesForwarded uint64 `json:"frames_forwarded"`
	FramesFlooded   uint64 `json:"frames_flooded"`
	DroppedBlocked  uint64 `json:"dropped_blocked"`
	LearnedOnly     uint64 `json:"learned_only"`
	MalformedFrames uint64 `json:"malformed_frames"`
	TableSize       int    `json:"table_size"`
}

// New creates a statistics collector for the named switch
func New(switchName, switchID, version string) *Statistics {
	return &Statistics{
		StartTime:  time.Now(),
		SwitchName: switchName,
		SwitchID:   switchID,
		Version:    version,
	}
}

// SetSwitchID records the elected switch identifier once ports are open
func (s *Statistics) SetSwitchID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SwitchID = id
}

// SetPortCount records the number of ports at startup
func (s *Statistics) SetPortCount(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PortCount = n
}

// AddBPDUsSent adds n to the sent-announcement counter (one per port per broadcast)
func (s *Statistics) AddBPDUsSent(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.BPDUsSent += uint64(n)
}

// AddBPDUReceived counts one neighbor advertisement
func (s *Statistics) AddBPDUReceived() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.BPDUsReceived++
}

// AddRootChange counts one accepted better-root announcement
func (s *Statistics) AddRootChange() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RootChanges++
}

// AddForwarded counts one table-directed emission
func (s *Statistics) AddForwarded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FramesForwarded++
}

// AddFlooded counts one flood (regardless of how many ports it reached)
func (s *Statistics) AddFlooded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FramesFlooded++
}

// AddDroppedBlocked counts a data frame denied on a blocked ingress
func (s *Statistics) AddDroppedBlocked() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DroppedBlocked++
}

// AddLearnedOnly counts a data frame absorbed by a Learning port
func (s *Statistics) AddLearnedOnly() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LearnedOnly++
}

// AddMalformed counts an unparseable frame
func (s *Statistics) AddMalformed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.MalformedFrames++
}

// SetTableSize records the current forwarding-table entry count
func (s *Statistics) SetTableSize(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TableSize = n
}

// GetSnapshot returns a consistent copy for export or display
func (s *Statistics) GetSnapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Snapshot{
		StartTime:       s.StartTime,
		Uptime:          time.Since(s.StartTime),
		SwitchName:      s.SwitchName,
		SwitchID:        s.SwitchID,
		PortCount:       s.PortCount,
		Version:         s.Version,
		BPDUsSent:       s.BPDUsSent,
		BPDUsReceived:   s.BPDUsReceived,
		RootChanges:     s.RootChanges,
		FramesForwarded: s.FramesForwarded,
		FramesFlooded:   s.FramesFlooded,
		DroppedBlocked:  s.DroppedBlocked,
		LearnedOnly:     s.LearnedOnly,
		MalformedFrames: s.MalformedFrames,
		TableSize:       s.TableSize,
	}
}
