package capture

import (
	"fmt"
	"net"
	"strings"

	"github.com/google/gopacket/pcap"
)

// InterfaceDesc describes one selectable host interface.
type InterfaceDesc struct {
	Name string
	MAC  net.HardwareAddr
}

// SwitchInterfaces enumerates host interfaces and selects the ones belonging
// to the named switch, i.e. whose name contains "<switchName>-eth". An
// interface without a MAC address or an empty selection is a startup error.
func SwitchInterfaces(switchName string) ([]InterfaceDesc, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate interfaces: %w", err)
	}
	return matchInterfaces(ifaces, switchName)
}

func matchInterfaces(ifaces []net.Interface, switchName string) ([]InterfaceDesc, error) {
	needle := switchName + "-eth"
	var selected []InterfaceDesc

	for _, iface := range ifaces {
		if !strings.Contains(iface.Name, needle) {
			continue
		}
		if len(iface.HardwareAddr) != 6 {
			return nil, fmt.Errorf("interface %s has no MAC address", iface.Name)
		}
		mac := make(net.HardwareAddr, len(iface.HardwareAddr))
		copy(mac, iface.HardwareAddr)
		selected = append(selected, InterfaceDesc{Name: iface.Name, MAC: mac})
	}

	if len(selected) == 0 {
		return nil, fmt.Errorf("no interfaces match %q", needle)
	}
	return selected, nil
}

// ListInterfaces prints all capturable interfaces with their addresses.
func ListInterfaces() error {
	devices, err := pcap.FindAllDevs()
	if err != nil {
		return fmt.Errorf("error finding devices: %w", err)
	}

	if len(devices) == 0 {
		fmt.Println("  No interfaces found")
		return nil
	}

	for _, device := range devices {
		fmt.Printf("  %s", device.Name)
		if device.Description != "" {
			fmt.Printf(" - %s", device.Description)
		}
		fmt.Println()

		for _, addr := range device.Addresses {
			fmt.Printf("    IP: %s\n", addr.IP)
		}
	}
	return nil
}
