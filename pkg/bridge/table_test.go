package bridge

import (
	"net"
	"testing"
)

func TestTableLearnAndLookup(t *testing.T) {
	tbl := NewTable()
	mac := net.HardwareAddr{0xaa, 0, 0, 0, 0, 1}

	if _, ok := tbl.Lookup(mac); ok {
		t.Error("Expected miss on empty table")
	}

	tbl.Learn(mac, 2)
	port, ok := tbl.Lookup(mac)
	if !ok || port != 2 {
		t.Errorf("Expected port 2, got %d (ok=%v)", port, ok)
	}
}

// Repeated observation of the same (source, port) pair must not change the
// table; the same source on a new port must overwrite.
func TestTableLearningIdempotentAndOverwriting(t *testing.T) {
	tbl := NewTable()
	mac := net.HardwareAddr{0xaa, 0, 0, 0, 0, 1}

	tbl.Learn(mac, 1)
	tbl.Learn(mac, 1)
	if tbl.Len() != 1 {
		t.Errorf("Expected 1 entry after repeated learning, got %d", tbl.Len())
	}

	tbl.Learn(mac, 3)
	port, _ := tbl.Lookup(mac)
	if port != 3 {
		t.Errorf("Expected overwrite to port 3, got %d", port)
	}
	if tbl.Len() != 1 {
		t.Errorf("Expected 1 entry after overwrite, got %d", tbl.Len())
	}
}

func TestTableEntriesIsACopy(t *testing.T) {
	tbl := NewTable()
	tbl.Learn(net.HardwareAddr{0xaa, 0, 0, 0, 0, 1}, 1)

	entries := tbl.Entries()
	entries["aa:00:00:00:00:01"] = 9

	port, _ := tbl.Lookup(net.HardwareAddr{0xaa, 0, 0, 0, 0, 1})
	if port != 1 {
		t.Errorf("Expected table unchanged by snapshot mutation, got port %d", port)
	}
}
