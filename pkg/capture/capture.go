// Package capture provides raw Ethernet send/receive on host interfaces
package capture

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/gopacket/pcap"
)

// ErrTimeout marks a bounded receive that expired with no frame. It is the
// expected idle result of the event loop's polling, not a failure.
var ErrTimeout = errors.New("capture: receive timed out")

const snapshotLength = 1600

// Engine is a bidirectional byte channel bound to one named interface.
// Reads block for at most the poll timeout given at open.
type Engine struct {
	interfaceName string
	handle        *pcap.Handle
}

// Open opens the interface in promiscuous mode with a bounded read timeout.
func Open(interfaceName string, pollTimeout time.Duration) (*Engine, error) {
	handle, err := pcap.OpenLive(
		interfaceName,
		snapshotLength,
		true, // promiscuous mode
		pollTimeout,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open interface %s: %w", interfaceName, err)
	}

	return &Engine{
		interfaceName: interfaceName,
		handle:        handle,
	}, nil
}

// Close releases the capture handle.
func (e *Engine) Close() {
	if e.handle != nil {
		e.handle.Close()
	}
}

// Name returns the bound interface name.
func (e *Engine) Name() string {
	return e.interfaceName
}

// ReadFrame performs one bounded receive. It returns ErrTimeout when the poll
// window expired, and the underlying cause for any other failure. The
// returned slice aliases the capture buffer and is only valid until the next
// read on this engine.
func (e *Engine) ReadFrame() ([]byte, error) {
	data, _, err := e.handle.ReadPacketData()
	if err != nil {
		if err == pcap.NextErrorTimeoutExpired {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("receive on %s: %w", e.interfaceName, err)
	}
	return data, nil
}

// WriteFrame injects the frame unchanged. The bytes are copied into the
// handle's own buffer before this call returns, so callers may reuse them.
func (e *Engine) WriteFrame(frame []byte) error {
	if err := e.handle.WritePacketData(frame); err != nil {
		return fmt.Errorf("send on %s: %w", e.interfaceName, err)
	}
	return nil
}
