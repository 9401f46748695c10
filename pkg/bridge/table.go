package bridge

import "net"

// Table is the learning forwarding table: destination MAC to port index.
// Entries are overwritten on each observation and never age out.
type Table struct {
	entries map[string]int
}

// NewTable creates an empty forwarding table.
func NewTable() *Table {
	return &Table{entries: make(map[string]int)}
}

// Learn records that mac was seen as a source on the given port, replacing
// any previous mapping.
func (t *Table) Learn(mac net.HardwareAddr, port int) {
	t.entries[mac.String()] = port
}

// Lookup returns the port a destination was learned on.
func (t *Table) Lookup(mac net.HardwareAddr) (int, bool) {
	port, ok := t.entries[mac.String()]
	return port, ok
}

// Len returns the number of learned destinations.
func (t *Table) Len() int {
	return len(t.entries)
}

// Entries returns a copy for status surfaces.
func (t *Table) Entries() map[string]int {
	out := make(map[string]int, len(t.entries))
	for mac, port := range t.entries {
		out[mac] = port
	}
	return out
}
