// Package snmp sends BRIDGE-MIB style notifications about topology changes
package snmp

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/krisarmstrong/gobridge/pkg/bridge"
	"github.com/krisarmstrong/gobridge/pkg/logging"
)

// Standard notification OIDs (RFC 4188 BRIDGE-MIB plus the SNMPv2 preamble)
const (
	OIDSysUpTime      = ".1.3.6.1.2.1.1.3.0"
	OIDSnmpTrap       = ".1.3.6.1.6.3.1.1.4.1.0"
	OIDNewRoot        = ".1.3.6.1.2.1.17.0.1"
	OIDTopologyChange = ".1.3.6.1.2.1.17.0.2"

	OIDBaseBridgeAddress = ".1.3.6.1.2.1.17.1.1.0"
	OIDStpRootCost       = ".1.3.6.1.2.1.17.2.6.0"
	OIDStpPortState      = ".1.3.6.1.2.1.17.2.15.1.3"
)

const defaultTrapPort = 162

// TrapSender delivers newRoot and topologyChange notifications to the
// configured receivers. It implements bridge.Listener and is expected to sit
// behind an AsyncListener so trap I/O never stalls the engine.
type TrapSender struct {
	switchName string
	switchID   string
	receivers  []*gosnmp.GoSNMP
	started    time.Time
	debugLevel int
}

// NewTrapSender creates a trap sender for the given receiver list
// (host or host:port entries).
func NewTrapSender(switchName, switchID string, receivers []string, community string, debugLevel int) (*TrapSender, error) {
	if len(receivers) == 0 {
		return nil, fmt.Errorf("no trap receivers configured")
	}
	if community == "" {
		community = "public"
	}

	ts := &TrapSender{
		switchName: switchName,
		switchID:   switchID,
		started:    time.Now(),
		debugLevel: debugLevel,
	}

	for _, receiver := range receivers {
		host, port, err := net.SplitHostPort(receiver)
		if err != nil {
			// Assume the default trap port when none is given.
			host = receiver
			port = strconv.Itoa(defaultTrapPort)
		}

		ts.receivers = append(ts.receivers, &gosnmp.GoSNMP{
			Target:    host,
			Port:      parsePort(port),
			Community: community,
			Version:   gosnmp.Version2c,
			Timeout:   2 * time.Second,
			Retries:   1,
		})
	}

	return ts, nil
}

// parsePort converts a port string to uint16, falling back to the default
// trap port.
func parsePort(portStr string) uint16 {
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return defaultTrapPort
	}
	return uint16(port)
}

// Receivers returns the configured destinations as host:port strings.
func (ts *TrapSender) Receivers() []string {
	out := make([]string, len(ts.receivers))
	for i, r := range ts.receivers {
		out[i] = net.JoinHostPort(r.Target, strconv.Itoa(int(r.Port)))
	}
	return out
}

// HandleEvent implements bridge.Listener: a root change becomes newRoot,
// a port transition becomes topologyChange.
func (ts *TrapSender) HandleEvent(ev bridge.Event) {
	switch ev.Type {
	case bridge.EventRootChange:
		ts.send(ts.newRootTrap(ev))
	case bridge.EventPortState:
		ts.send(ts.topologyChangeTrap(ev))
	}
}

// newRootTrap builds the newRoot notification payload.
func (ts *TrapSender) newRootTrap(ev bridge.Event) gosnmp.SnmpTrap {
	return gosnmp.SnmpTrap{
		Variables: []gosnmp.SnmpPDU{
			ts.uptimeVarbind(),
			{Name: OIDSnmpTrap, Type: gosnmp.ObjectIdentifier, Value: OIDNewRoot},
			{Name: OIDBaseBridgeAddress, Type: gosnmp.OctetString, Value: ts.switchID},
			{Name: OIDStpRootCost, Type: gosnmp.Integer, Value: int(ev.RootCost)},
		},
	}
}

// topologyChangeTrap builds the topologyChange notification payload.
func (ts *TrapSender) topologyChangeTrap(ev bridge.Event) gosnmp.SnmpTrap {
	return gosnmp.SnmpTrap{
		Variables: []gosnmp.SnmpPDU{
			ts.uptimeVarbind(),
			{Name: OIDSnmpTrap, Type: gosnmp.ObjectIdentifier, Value: OIDTopologyChange},
			{Name: OIDBaseBridgeAddress, Type: gosnmp.OctetString, Value: ts.switchID},
			{Name: fmt.Sprintf("%s.%d", OIDStpPortState, ev.Port+1), Type: gosnmp.OctetString, Value: ev.NewState},
		},
	}
}

func (ts *TrapSender) uptimeVarbind() gosnmp.SnmpPDU {
	ticks := uint32(time.Since(ts.started) / (10 * time.Millisecond))
	return gosnmp.SnmpPDU{Name: OIDSysUpTime, Type: gosnmp.TimeTicks, Value: ticks}
}

// send delivers one trap to every receiver. Failures are logged and dropped:
// the management plane must never disturb convergence.
func (ts *TrapSender) send(trap gosnmp.SnmpTrap) {
	for _, client := range ts.receivers {
		if client.Conn == nil {
			if err := client.Connect(); err != nil {
				logging.Warning("SNMP trap receiver %s unreachable: %v", client.Target, err)
				continue
			}
		}
		if _, err := client.SendTrap(trap); err != nil {
			logging.Warning("Failed to send trap to %s: %v", client.Target, err)
			continue
		}
		if ts.debugLevel >= 2 {
			logging.Debug("[%s] trap sent to %s", ts.switchName, client.Target)
		}
	}
}

// Close tears down the receiver connections.
func (ts *TrapSender) Close() {
	for _, client := range ts.receivers {
		if client.Conn != nil {
			_ = client.Conn.Close()
		}
	}
}
