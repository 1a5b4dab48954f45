// Package discovery announces the lamp over mDNS and lets controllers
// find lamps on the local network.
package discovery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/rs/zerolog/log"
)

const (
	// ServiceType is the mDNS service type lamps advertise under.
	ServiceType = "_lumina._udp"

	// ServiceDomain is the mDNS domain.
	ServiceDomain = "local."

	// DefaultScanTimeout bounds a controller-side browse.
	DefaultScanTimeout = 5 * time.Second
)

// Announcer advertises one lamp. Advertise replaces any previous
// announcement, so a mode change re-publishes fresh TXT metadata.
type Announcer struct {
	instance string
	port     int
	version  string
	deviceID string

	server *zeroconf.Server
}

// NewAnnouncer creates an announcer for the named lamp. port is the
// lamp's UDP command port.
func NewAnnouncer(instance string, port int, version, deviceID string) *Announcer {
	return &Announcer{
		instance: instance,
		port:     port,
		version:  version,
		deviceID: deviceID,
	}
}

// Advertise publishes the lamp with the given mode in its metadata.
func (a *Announcer) Advertise(mode string) error {
	a.Stop()

	txt := []string{
		"mode=" + mode,
		"version=" + a.version,
		"device_id=" + a.deviceID,
	}
	server, err := zeroconf.Register(a.instance, ServiceType, ServiceDomain, a.port, txt, nil)
	if err != nil {
		return fmt.Errorf("failed to register mDNS service: %w", err)
	}
	a.server = server
	log.Debug().Str("instance", a.instance).Str("mode", mode).Msg("mDNS announcement published")
	return nil
}

// Stop withdraws the announcement. Safe to call when not advertising.
func (a *Announcer) Stop() {
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

// Lamp is one discovered device.
type Lamp struct {
	Name     string
	IP       string
	Port     int
	Mode     string
	Version  string
	DeviceID string
}

// Addr returns the lamp's UDP command endpoint.
func (l Lamp) Addr() string {
	return fmt.Sprintf("%s:%d", l.IP, l.Port)
}

// Scan browses the local network for lamps until the timeout passes.
func Scan(ctx context.Context, timeout time.Duration) ([]Lamp, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	collected := collect(entries)

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		// Browse never took ownership of the channel, so the collector
		// must be released here.
		close(entries)
		<-collected
		return nil, fmt.Errorf("failed to browse for lamps: %w", err)
	}

	// The resolver closes entries once the context expires.
	<-ctx.Done()
	return <-collected, nil
}

// collect drains service entries until the channel closes, then
// delivers the parsed lamps.
func collect(entries <-chan *zeroconf.ServiceEntry) <-chan []Lamp {
	out := make(chan []Lamp, 1)
	go func() {
		var lamps []Lamp
		for entry := range entries {
			if lamp, ok := parseServiceEntry(entry); ok {
				lamps = append(lamps, lamp)
			}
		}
		out <- lamps
	}()
	return out
}

// parseServiceEntry converts a zeroconf entry into a Lamp. Entries
// without an address are skipped.
func parseServiceEntry(entry *zeroconf.ServiceEntry) (Lamp, bool) {
	lamp := Lamp{
		Name: entry.Instance,
		Port: entry.Port,
	}

	for _, addr := range entry.AddrIPv4 {
		lamp.IP = addr.String()
		break
	}
	if lamp.IP == "" && len(entry.AddrIPv6) > 0 {
		lamp.IP = entry.AddrIPv6[0].String()
	}
	if lamp.IP == "" {
		return Lamp{}, false
	}

	for _, txt := range entry.Text {
		parts := strings.SplitN(txt, "=", 2)
		if len(parts) != 2 {
			continue
		}
		switch parts[0] {
		case "mode":
			lamp.Mode = parts[1]
		case "version":
			lamp.Version = parts[1]
		case "device_id":
			lamp.DeviceID = parts[1]
		}
	}
	return lamp, true
}
