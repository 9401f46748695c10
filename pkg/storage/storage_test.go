package storage

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/krisarmstrong/gobridge/pkg/bridge"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "bridge.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestOpenDisabledSentinel(t *testing.T) {
	for _, path := range []string{"", "disabled", "DISABLED"} {
		if _, err := Open(path); !errors.Is(err, ErrDisabled) {
			t.Errorf("Open(%q) = %v, want ErrDisabled", path, err)
		}
	}
}

func TestEventsNewestFirstWithLimit(t *testing.T) {
	j := openTestJournal(t)

	for i := 0; i < 5; i++ {
		ev := bridge.Event{
			Time:     time.Now(),
			Type:     bridge.EventPortState,
			Port:     i,
			NewState: "FORWARD",
		}
		if err := j.AddEvent(ev); err != nil {
			t.Fatalf("AddEvent() error = %v", err)
		}
	}

	events, err := j.Events(3)
	if err != nil {
		t.Fatalf("Events() error = %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(events))
	}
	for i, ev := range events {
		if want := 4 - i; ev.Port != want {
			t.Errorf("Expected newest-first order, got port %d at position %d", ev.Port, i)
		}
	}
}

func TestHandleEventPersists(t *testing.T) {
	j := openTestJournal(t)

	j.HandleEvent(bridge.Event{Type: bridge.EventRootChange, RootID: "02:00:00:00:00:01", RootCost: 1})

	events, err := j.Events(10)
	if err != nil {
		t.Fatalf("Events() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	if events[0].Type != bridge.EventRootChange || events[0].RootID != "02:00:00:00:00:01" {
		t.Errorf("Unexpected event payload: %+v", events[0])
	}
}

func TestAddAndListRuns(t *testing.T) {
	j := openTestJournal(t)

	rec := RunRecord{
		StartedAt:       time.Now().Add(-time.Minute),
		Duration:        time.Minute,
		SwitchName:      "s1",
		SwitchID:        "02:00:00:00:00:01",
		PortCount:       2,
		BPDUsSent:       40,
		BPDUsReceived:   38,
		FramesForwarded: 7,
		RootChanges:     1,
	}
	if err := j.AddRun(rec); err != nil {
		t.Fatalf("AddRun() error = %v", err)
	}
	if err := j.AddRun(rec); err != nil {
		t.Fatalf("AddRun() error = %v", err)
	}

	runs, err := j.Runs()
	if err != nil {
		t.Fatalf("Runs() error = %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("Expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != 1 || runs[1].ID != 2 {
		t.Errorf("Expected sequential ids, got %d and %d", runs[0].ID, runs[1].ID)
	}
	if runs[0].SwitchName != "s1" || runs[0].BPDUsSent != 40 {
		t.Errorf("Unexpected run payload: %+v", runs[0])
	}
}

func TestNilJournalIsANoOp(t *testing.T) {
	var j *Journal
	if err := j.AddEvent(bridge.Event{}); err != nil {
		t.Errorf("AddEvent on nil journal = %v", err)
	}
	if err := j.Close(); err != nil {
		t.Errorf("Close on nil journal = %v", err)
	}
}
