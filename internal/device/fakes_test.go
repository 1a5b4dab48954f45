package device

import (
	"net"
	"testing"
	"time"

	"github.com/dokzlo13/luminad/internal/config"
	"github.com/dokzlo13/luminad/internal/eeprom"
	"github.com/dokzlo13/luminad/internal/light"
)

type fakeStrip struct {
	pixels     []light.Color
	brightness uint8
	shows      int
}

func newFakeStrip(n int) *fakeStrip {
	return &fakeStrip{pixels: make([]light.Color, n), brightness: 255}
}

func (f *fakeStrip) Count() int { return len(f.pixels) }

func (f *fakeStrip) SetPixel(i int, c light.Color) {
	if i >= 0 && i < len(f.pixels) {
		f.pixels[i] = c
	}
}

func (f *fakeStrip) SetAll(c light.Color) {
	for i := range f.pixels {
		f.pixels[i] = c
	}
}

func (f *fakeStrip) Clear() { f.SetAll(light.Color{}) }

func (f *fakeStrip) SetBrightness(level uint8) { f.brightness = level }

func (f *fakeStrip) Show() error {
	f.shows++
	return nil
}

func (f *fakeStrip) lit() int {
	n := 0
	for _, c := range f.pixels {
		if c != (light.Color{}) {
			n++
		}
	}
	return n
}

type fakeNet struct {
	connected  bool
	joinedSSID string
	joinedPass string
	apUp       bool
	apSSID     string
}

func (f *fakeNet) Join(ssid, password string) error {
	f.joinedSSID = ssid
	f.joinedPass = password
	return nil
}

func (f *fakeNet) Disconnect() error {
	f.connected = false
	return nil
}

func (f *fakeNet) StartAP(ssid, password string) error {
	f.apUp = true
	f.apSSID = ssid
	return nil
}

func (f *fakeNet) StopAP() error {
	f.apUp = false
	return nil
}

func (f *fakeNet) Connected() bool { return f.connected }
func (f *fakeNet) RSSI() int       { return -55 }
func (f *fakeNet) LocalIP() net.IP { return net.IPv4(192, 168, 1, 50) }

type fakeBattery struct {
	voltage float64
	err     error
}

func (f *fakeBattery) Voltage() (float64, error) { return f.voltage, f.err }

type datagram struct {
	data []byte
	from *net.UDPAddr
}

type fakeConn struct {
	listening bool
	port      int
	listenErr error
	closed    bool

	inbound    []datagram
	sent       []datagram
	broadcasts [][]byte
}

func (f *fakeConn) Listen(port int) error {
	if f.listenErr != nil {
		return f.listenErr
	}
	f.listening = true
	f.port = port
	return nil
}

func (f *fakeConn) Close() error {
	f.closed = true
	f.listening = false
	return nil
}

func (f *fakeConn) Poll(buf []byte) (int, *net.UDPAddr, error) {
	if len(f.inbound) == 0 {
		return 0, nil, nil
	}
	d := f.inbound[0]
	f.inbound = f.inbound[1:]
	n := copy(buf, d.data)
	return n, d.from, nil
}

func (f *fakeConn) SendTo(to *net.UDPAddr, b []byte) error {
	f.sent = append(f.sent, datagram{data: append([]byte(nil), b...), from: to})
	return nil
}

func (f *fakeConn) Broadcast(port int, b []byte) error {
	f.broadcasts = append(f.broadcasts, append([]byte(nil), b...))
	return nil
}

func (f *fakeConn) push(data []byte, from *net.UDPAddr) {
	f.inbound = append(f.inbound, datagram{data: data, from: from})
}

type fakeUpdater struct {
	hooks    UpdateHooks
	armed    bool
	armErr   error
	disarmed int
	polls    int
}

func (f *fakeUpdater) Arm(hooks UpdateHooks) error {
	if f.armErr != nil {
		return f.armErr
	}
	f.hooks = hooks
	f.armed = true
	return nil
}

func (f *fakeUpdater) Poll() { f.polls++ }

func (f *fakeUpdater) Disarm() {
	f.disarmed++
	f.armed = false
}

// harness wires a manager to fakes with a controllable clock.
type harness struct {
	t *testing.T

	cfg   *config.Config
	strip *fakeStrip
	net   *fakeNet
	batt  *fakeBattery
	upd   *fakeUpdater
	store *eeprom.MemoryStore
	conns []*fakeConn

	now time.Time
	mgr *Manager
}

func newHarness(t *testing.T) *harness {
	cfg := config.Default()
	h := &harness{
		t:     t,
		cfg:   cfg,
		strip: newFakeStrip(cfg.Device.LEDCount),
		net:   &fakeNet{},
		batt:  &fakeBattery{voltage: 3.6},
		upd:   &fakeUpdater{},
		store: eeprom.NewMemoryStore(),
		now:   time.Unix(1756500000, 0),
	}
	h.mgr = NewManager(cfg, Deps{
		Strip:    h.strip,
		Net:      h.net,
		Battery:  h.batt,
		Updater:  h.upd,
		Store:    h.store,
		NewConn:  h.newConn,
		DeviceID: "test-device",
	})
	h.mgr.now = func() time.Time { return h.now }
	return h
}

func (h *harness) newConn() PacketConn {
	c := &fakeConn{}
	h.conns = append(h.conns, c)
	return c
}

func (h *harness) lastConn() *fakeConn {
	if len(h.conns) == 0 {
		h.t.Fatal("no conn was created")
	}
	return h.conns[len(h.conns)-1]
}

func (h *harness) advance(d time.Duration) { h.now = h.now.Add(d) }

func (h *harness) saveCreds(ssid, pass string) {
	h.t.Helper()
	err := eeprom.SaveCredentials(h.store, eeprom.Credentials{SSID: ssid, Password: pass})
	if err != nil {
		h.t.Fatalf("SaveCredentials: %v", err)
	}
}

func (h *harness) stateName() string {
	if h.mgr.Current() == nil {
		return "<none>"
	}
	return h.mgr.Current().Name()
}

// toConnected boots a provisioned, online device and drives it into
// the connected state.
func (h *harness) toConnected() *Connected {
	h.t.Helper()
	h.saveCreds("HomeNet", "hunter22")
	h.net.connected = true
	h.mgr.Begin()
	if h.stateName() != "Searching" {
		h.t.Fatalf("after Begin: state = %s, want Searching", h.stateName())
	}

	h.advance(connCheckInterval)
	h.mgr.Tick()
	c, ok := h.mgr.Current().(*Connected)
	if !ok {
		h.t.Fatalf("after connection check: state = %s, want Connected", h.stateName())
	}
	return c
}
