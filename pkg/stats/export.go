package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// ExportJSON writes the current snapshot to a JSON file
func (s *Statistics) ExportJSON(filename string) error {
	snapshot := s.GetSnapshot()

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal statistics: %w", err)
	}

	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("failed to write statistics file: %w", err)
	}
	return nil
}

// ExportCSV writes the current snapshot as metric,value rows
func (s *Statistics) ExportCSV(filename string) error {
	snapshot := s.GetSnapshot()

	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create statistics file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	rows := [][]string{
		{"metric", "value"},
		{"switch_name", snapshot.SwitchName},
		{"switch_id", snapshot.SwitchID},
		{"version", snapshot.Version},
		{"start_time", snapshot.StartTime.Format(time.RFC3339)},
		{"uptime_seconds", strconv.FormatFloat(snapshot.Uptime.Seconds(), 'f', 1, 64)},
		{"port_count", strconv.Itoa(snapshot.PortCount)},
		{"bpdus_sent", strconv.FormatUint(snapshot.BPDUsSent, 10)},
		{"bpdus_received", strconv.FormatUint(snapshot.BPDUsReceived, 10)},
		{"root_changes", strconv.FormatUint(snapshot.RootChanges, 10)},
		{"frames_forwarded", strconv.FormatUint(snapshot.FramesForwarded, 10)},
		{"frames_flooded", strconv.FormatUint(snapshot.FramesFlooded, 10)},
		{"dropped_blocked", strconv.FormatUint(snapshot.DroppedBlocked, 10)},
		{"learned_only", strconv.FormatUint(snapshot.LearnedOnly, 10)},
		{"malformed_frames", strconv.FormatUint(snapshot.MalformedFrames, 10)},
		{"table_size", strconv.Itoa(snapshot.TableSize)},
	}

	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write statistics rows: %w", err)
	}
	return nil
}
