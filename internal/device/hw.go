// Package device implements the lamp's operational core: four mutually
// exclusive states (searching, provisioning, connected, updating) and
// the manager that owns the active state and the shared hardware.
package device

import (
	"net"

	"github.com/dokzlo13/luminad/internal/light"
)

// LEDStrip drives an ordered ring of RGB pixels with a global
// brightness scalar. Implementations must not block in Show.
type LEDStrip interface {
	Count() int
	SetPixel(i int, c light.Color)
	SetAll(c light.Color)
	Clear()
	SetBrightness(level uint8)
	Show() error
}

// Network is the radio: station-mode association, the setup access
// point, and link status. Join only starts an association attempt;
// Connected reports the current result.
type Network interface {
	Join(ssid, password string) error
	Disconnect() error
	StartAP(ssid, password string) error
	StopAP() error
	Connected() bool
	RSSI() int
	LocalIP() net.IP
}

// Battery samples the pack voltage.
type Battery interface {
	Voltage() (float64, error)
}

// PacketConn is a non-blocking datagram endpoint. Poll returns at most
// one pending datagram and n == 0 when none is waiting; it must never
// wait for input. SendTo and Broadcast work without a prior Listen.
type PacketConn interface {
	Listen(port int) error
	Close() error
	Poll(buf []byte) (n int, from *net.UDPAddr, err error)
	SendTo(to *net.UDPAddr, b []byte) error
	Broadcast(port int, b []byte) error
}

// UpdateHooks are the named events the update mechanism delivers
// synchronously during Poll. Any hook may be nil.
type UpdateHooks struct {
	Started   func()
	Progress  func(percent int)
	Completed func()
	Failed    func(reason string)
}

// Updater is the firmware update mechanism. Arm registers hooks, Poll
// drives the mechanism one step, Disarm releases its resources.
type Updater interface {
	Arm(hooks UpdateHooks) error
	Poll()
	Disarm()
}

// Advertiser announces the device on the local network (mDNS). Mode
// changes re-announce with fresh metadata.
type Advertiser interface {
	Advertise(mode string) error
	Stop()
}
