// Package storage persists topology events and run summaries in BoltDB
package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/krisarmstrong/gobridge/pkg/bridge"
)

const (
	eventBucket = "events"
	runBucket   = "runs"
)

// ErrDisabled is returned by Open for the "disabled" sentinel path.
var ErrDisabled = errors.New("storage disabled")

// Journal wraps a BoltDB instance recording what the spanning tree did:
// port transitions, root changes, and per-run summaries. The protocol itself
// persists nothing; the journal is an operator's flight recorder.
type Journal struct {
	db *bbolt.DB
}

// RunRecord captures a single bridge execution summary.
type RunRecord struct {
	ID              uint64        `json:"id"`
	StartedAt       time.Time     `json:"started_at"`
	Duration        time.Duration `json:"duration"`
	SwitchName      string        `json:"switch_name"`
	SwitchID        string        `json:"switch_id"`
	PortCount       int           `json:"port_count"`
	BPDUsSent       uint64        `json:"bpdus_sent"`
	BPDUsReceived   uint64        `json:"bpdus_received"`
	FramesForwarded uint64        `json:"frames_forwarded"`
	RootChanges     uint64        `json:"root_changes"`
}

// Open opens (or creates) the journal database at the requested path.
func Open(path string) (*Journal, error) {
	if strings.EqualFold(path, "disabled") || path == "" {
		return nil, ErrDisabled
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{eventBucket, runBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Journal{db: db}, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// AddEvent stores one topology event.
func (j *Journal) AddEvent(ev bridge.Event) error {
	if j == nil || j.db == nil {
		return nil
	}

	return j.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(eventBucket))
		id, _ := b.NextSequence()

		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
		return b.Put(itob(id), data)
	})
}

// Events returns up to limit most recent events, newest first.
func (j *Journal) Events(limit int) ([]bridge.Event, error) {
	if j == nil || j.db == nil {
		return nil, nil
	}

	var events []bridge.Event
	err := j.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(eventBucket)).Cursor()
		for k, v := c.Last(); k != nil && len(events) < limit; k, v = c.Prev() {
			var ev bridge.Event
			if err := json.Unmarshal(v, &ev); err != nil {
				return fmt.Errorf("failed to decode event: %w", err)
			}
			events = append(events, ev)
		}
		return nil
	})
	return events, err
}

// HandleEvent implements bridge.Listener. It discards AddEvent's error, so
// persistence failures never reach the engine.
func (j *Journal) HandleEvent(ev bridge.Event) {
	_ = j.AddEvent(ev)
}

// AddRun stores a run summary.
func (j *Journal) AddRun(record RunRecord) error {
	if j == nil || j.db == nil {
		return nil
	}

	return j.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(runBucket))
		id, _ := b.NextSequence()
		record.ID = id

		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to encode run record: %w", err)
		}
		return b.Put(itob(id), data)
	})
}

// Runs returns all stored run records in insertion order.
func (j *Journal) Runs() ([]RunRecord, error) {
	if j == nil || j.db == nil {
		return nil, nil
	}

	var runs []RunRecord
	err := j.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(runBucket)).ForEach(func(_, v []byte) error {
			var rec RunRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("failed to decode run record: %w", err)
			}
			runs = append(runs, rec)
			return nil
		})
	})
	return runs, err
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
