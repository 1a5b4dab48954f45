// Package hostnet adapts the host's networking to the radio interface
// the device core expects. The host OS owns wifi association, so Join
// and the access-point calls only record intent; link state is derived
// from the interface table.
package hostnet

import (
	"net"

	"github.com/rs/zerolog/log"
)

// fixedRSSI stands in for a signal reading; the host exposes no
// per-association RSSI through a stable interface.
const fixedRSSI = -55

// Host reports the host's link state.
type Host struct {
	joinedSSID string
	apSSID     string
}

// New returns a host network adapter.
func New() *Host {
	return &Host{}
}

// Join records the target network. Association itself belongs to the
// host's network manager.
func (h *Host) Join(ssid, password string) error {
	h.joinedSSID = ssid
	log.Debug().Str("ssid", ssid).Msg("Deferring association to host network manager")
	return nil
}

// Disconnect clears the recorded target.
func (h *Host) Disconnect() error {
	h.joinedSSID = ""
	return nil
}

// StartAP records the setup network. Hosting an access point requires
// host-level configuration outside this process.
func (h *Host) StartAP(ssid, password string) error {
	h.apSSID = ssid
	log.Info().Str("ssid", ssid).Msg("Setup access point requested (host-managed)")
	return nil
}

// StopAP clears the recorded setup network.
func (h *Host) StopAP() error {
	h.apSSID = ""
	return nil
}

// Connected reports whether any non-loopback interface is up with a
// usable IPv4 address.
func (h *Host) Connected() bool {
	return h.LocalIP() != nil
}

// RSSI reports the signal strength estimate.
func (h *Host) RSSI() int {
	return fixedRSSI
}

// LocalIP returns the first global unicast IPv4 address on an up,
// non-loopback interface, or nil when offline.
func (h *Host) LocalIP() net.IP {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip := ipnet.IP.To4()
			if ip == nil || !ip.IsGlobalUnicast() {
				continue
			}
			return ip
		}
	}
	return nil
}
