package protocols

import (
	"bytes"
	"fmt"
	"net"
)

// BPDU sizes and field offsets within the frame payload
const (
	BPDUSize       = 13 // cost(1) + root id(6) + bridge id(6)
	bpduCostOffset = 0
	bpduRootOffset = 1
	bpduBridgeOff  = 7
)

// GroupMAC is the reserved destination address that marks control frames.
// Frames addressed to it never enter the data-forwarding path.
var GroupMAC = net.HardwareAddr{0x01, 0x80, 0xc2, 0x00, 0x00, 0x00}

// BroadcastMAC is used only as the initial sentinel during switch-id election.
var BroadcastMAC = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// BPDU is the bridge protocol data unit this bridge exchanges with its
// neighbors. It is a deliberate subset of the 802.1D configuration BPDU with
// field widths chosen for alignment, not wire compatibility: cost is a single
// octet, so the protocol tops out at 255 hops.
type BPDU struct {
	RootCost uint8
	RootID   net.HardwareAddr
	BridgeID net.HardwareAddr
}

// New builds a BPDU, copying both addresses so the result does not alias a
// capture buffer.
func New(cost uint8, rootID, bridgeID net.HardwareAddr) BPDU {
	return BPDU{
		RootCost: cost,
		RootID:   cloneMAC(rootID),
		BridgeID: cloneMAC(bridgeID),
	}
}

// Compare orders BPDUs by root id ascending, then root cost ascending.
// BridgeID does not participate; it is only the symmetry breaker for
// designated-port election. The result is a strict total order, so every
// neighbor advertisement falls into exactly one of smaller/equal/greater.
func Compare(a, b BPDU) int {
	if c := bytes.Compare(a.RootID, b.RootID); c != 0 {
		return c
	}
	switch {
	case a.RootCost < b.RootCost:
		return -1
	case a.RootCost > b.RootCost:
		return 1
	}
	return 0
}

// String renders the BPDU for logs.
func (b BPDU) String() string {
	return fmt.Sprintf("root=%s cost=%d via=%s", b.RootID, b.RootCost, b.BridgeID)
}

// NewAnnounceBuffer returns the single reusable allocation every announcement
// is encoded into. All BPDU frames are the same size and are sent one at a
// time.
func NewAnnounceBuffer() Frame {
	return make(Frame, EthernetHeader+BPDUSize)
}

// Encode writes the BPDU frame into buf: destination GroupMAC, the given
// source, and the packed record as payload. The EtherType octets keep the
// buffer's zeroed default; the destination address alone classifies control
// frames. Returns buf as a frame view.
func (b BPDU) Encode(buf Frame, srcMAC net.HardwareAddr) Frame {
	if len(buf) != EthernetHeader+BPDUSize {
		panic(fmt.Sprintf("protocols: announce buffer is %d bytes, want %d", len(buf), EthernetHeader+BPDUSize))
	}
	buf.PutDestinationMAC(GroupMAC)
	buf.PutSourceMAC(srcMAC)
	payload := buf.Payload()
	payload[bpduCostOffset] = b.RootCost
	copy(payload[bpduRootOffset:bpduRootOffset+SizeOfMac], b.RootID)
	copy(payload[bpduBridgeOff:bpduBridgeOff+SizeOfMac], b.BridgeID)
	return buf
}

// TryDecode returns the BPDU carried by frame when its destination is the
// group address, or nil for host traffic. A group-addressed frame whose
// payload cannot hold a BPDU record indicates a bug or a foreign speaker on
// the control address, so it halts the process rather than being dropped.
func TryDecode(frame Frame) *BPDU {
	if !bytes.Equal(frame.DestinationMAC(), GroupMAC) {
		return nil
	}
	payload := frame.Payload()
	if len(payload) < BPDUSize {
		panic(fmt.Sprintf("protocols: control frame payload is %d bytes, want at least %d", len(payload), BPDUSize))
	}
	bpdu := New(
		payload[bpduCostOffset],
		net.HardwareAddr(payload[bpduRootOffset:bpduRootOffset+SizeOfMac]),
		net.HardwareAddr(payload[bpduBridgeOff:bpduBridgeOff+SizeOfMac]),
	)
	return &bpdu
}

func cloneMAC(mac net.HardwareAddr) net.HardwareAddr {
	out := make(net.HardwareAddr, len(mac))
	copy(out, mac)
	return out
}
