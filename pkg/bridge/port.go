// Package bridge implements the spanning-tree engine and the learning
// forwarder that together make one emulated switch.
package bridge

import (
	"fmt"
	"net"
	"time"

	"github.com/krisarmstrong/gobridge/pkg/capture"
)

// PortState is the per-port spanning-tree state.
type PortState int

const (
	// StateLearning is the startup state: source MACs populate the table
	// but no data frames are forwarded in or out.
	StateLearning PortState = iota
	// StateRoot marks the unique port leading toward the elected root.
	StateRoot
	// StateBlock marks a port on a redundant path. Data frames are dropped
	// in and out; control frames still flow.
	StateBlock
	// StateForward marks a designated port serving a downstream segment.
	StateForward
)

// String returns the state name used in logs and the status surfaces.
func (s PortState) String() string {
	switch s {
	case StateLearning:
		return "LEARNING"
	case StateRoot:
		return "ROOT"
	case StateBlock:
		return "BLOCK"
	case StateForward:
		return "FORWARD"
	default:
		return "UNKNOWN"
	}
}

// forwards reports whether data frames may leave through a port in this state.
func (s PortState) forwards() bool {
	return s == StateRoot || s == StateForward
}

// FrameSink consumes outbound frames. Implementations copy the bytes before
// returning, so callers may reuse the buffer.
type FrameSink interface {
	WriteFrame(frame []byte) error
}

// FrameSource yields one inbound frame per call, bounded by the poll timeout.
// An expired poll is reported as capture.ErrTimeout.
type FrameSource interface {
	ReadFrame() ([]byte, error)
}

// Port bundles one switch port: its local MAC, the outbound sink, and the
// spanning-tree state. The matching inbound source is held by the engine in a
// parallel slice so the loop can iterate sources while writing to any port's
// sink.
type Port struct {
	Index int
	Name  string
	MAC   net.HardwareAddr
	Out   FrameSink
	State PortState
}

// NewPort opens the bidirectional channel for one interface descriptor.
// Construction fails when the descriptor lacks a MAC address or the channel
// cannot be opened. The initial state is Learning.
func NewPort(index int, desc capture.InterfaceDesc, pollTimeout time.Duration) (*Port, FrameSource, error) {
	if len(desc.MAC) != 6 {
		return nil, nil, fmt.Errorf("cannot create a port on %s without a MAC address", desc.Name)
	}

	engine, err := capture.Open(desc.Name, pollTimeout)
	if err != nil {
		return nil, nil, err
	}

	port := &Port{
		Index: index,
		Name:  desc.Name,
		MAC:   desc.MAC,
		Out:   engine,
		State: StateLearning,
	}
	return port, engine, nil
}
