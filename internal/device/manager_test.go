package device

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/dokzlo13/luminad/internal/light"
	"github.com/dokzlo13/luminad/internal/protocol"
)

var controller = &net.UDPAddr{IP: net.IPv4(192, 168, 1, 10), Port: 4210}

func TestBootWithoutCredentialsEntersProvisioning(t *testing.T) {
	h := newHarness(t)
	h.mgr.Begin()

	if got := h.stateName(); got != "Provisioning" {
		t.Fatalf("state = %s, want Provisioning", got)
	}
	if !h.net.apUp {
		t.Error("access point was not started")
	}
	if h.net.apSSID != "Lumina-Setup" {
		t.Errorf("AP SSID = %q, want Lumina-Setup", h.net.apSSID)
	}
	conn := h.lastConn()
	if !conn.listening || conn.port != 4210 {
		t.Errorf("listener = (listening=%v, port=%d), want (true, 4210)", conn.listening, conn.port)
	}
}

func TestBootJoinsSavedNetwork(t *testing.T) {
	h := newHarness(t)
	h.toConnected()

	if h.net.joinedSSID != "HomeNet" {
		t.Errorf("joined ssid = %q, want HomeNet", h.net.joinedSSID)
	}

	// First connected tick emits a heartbeat.
	h.mgr.Tick()
	conn := h.lastConn()
	if len(conn.broadcasts) == 0 {
		t.Fatal("no heartbeat was broadcast")
	}
	packet := conn.broadcasts[0]
	if packet[0] != protocol.StatusHeartbeat {
		t.Fatalf("packet discriminant = 0x%02x, want 0x%02x", packet[0], protocol.StatusHeartbeat)
	}
	hb, err := protocol.ParseHeartbeat(packet[1:])
	if err != nil {
		t.Fatalf("ParseHeartbeat: %v", err)
	}
	if hb.Mode != protocol.ModeConnected {
		t.Errorf("heartbeat mode = 0x%02x, want 0x%02x", hb.Mode, protocol.ModeConnected)
	}
	if hb.RSSI != -55 {
		t.Errorf("heartbeat rssi = %d, want -55", hb.RSSI)
	}
	// 3.6V on a 3.0..4.2 range is 50%.
	if hb.BatteryPct != 50 {
		t.Errorf("heartbeat battery = %d%%, want 50%%", hb.BatteryPct)
	}
	if hb.Strategy != "Calm" {
		t.Errorf("heartbeat strategy = %q, want Calm", hb.Strategy)
	}
}

func TestHeartbeatThrottle(t *testing.T) {
	h := newHarness(t)
	h.toConnected()
	conn := h.lastConn()

	h.mgr.Tick()
	h.advance(time.Second)
	h.mgr.Tick()
	if got := len(conn.broadcasts); got != 1 {
		t.Fatalf("broadcasts after 1s = %d, want 1", got)
	}

	h.advance(h.cfg.Timing.HeartbeatInterval.Duration())
	h.mgr.Tick()
	if got := len(conn.broadcasts); got != 2 {
		t.Fatalf("broadcasts after interval = %d, want 2", got)
	}
}

func TestSetColorPaintsWholeRing(t *testing.T) {
	h := newHarness(t)
	c := h.toConnected()
	h.lastConn().push([]byte{protocol.CmdSetColor, 10, 20, 30}, controller)

	h.mgr.Tick()
	if c.Strategy().Kind != light.KindSolid {
		t.Fatalf("strategy kind = %v, want solid", c.Strategy().Kind)
	}

	h.advance(fadeSpeed)
	h.mgr.Tick()
	want := light.Color{R: 10, G: 20, B: 30}
	for i, got := range h.strip.pixels {
		if got != want {
			t.Fatalf("pixel %d = %+v, want %+v", i, got, want)
		}
	}
}

func TestSetMoodCommands(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    light.StrategyKind
	}{
		{"calm", []byte{protocol.MoodCalm, 0, 0, 255}, light.KindCalm},
		{"focus", []byte{protocol.MoodFocus, 255, 255, 255}, light.KindFocus},
		{"party short", []byte{protocol.MoodParty, 255, 0, 0}, light.KindParty},
		{"party extended", []byte{protocol.MoodParty, 255, 0, 0, 0, 255, 0, 0, 0, 255}, light.KindParty},
		{"unknown falls back to solid", []byte{0x77, 5, 5, 5}, light.KindSolid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			c := h.toConnected()
			c.HandleCommand(protocol.CmdSetMood, tt.payload, controller)
			if got := c.Strategy().Kind; got != tt.want {
				t.Errorf("strategy kind = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPartyMoodWithoutExtendedColorsUsesStockPalette(t *testing.T) {
	h := newHarness(t)
	c := h.toConnected()
	c.HandleCommand(protocol.CmdSetMood, []byte{protocol.MoodParty, 255, 0, 0}, controller)

	s := c.Strategy()
	if s.C2 != light.Connected || s.C3 != light.Searching {
		t.Errorf("fallback palette = (%+v, %+v), want (%+v, %+v)",
			s.C2, s.C3, light.Connected, light.Searching)
	}
}

func TestSetBrightness(t *testing.T) {
	h := newHarness(t)
	h.toConnected()
	h.lastConn().push([]byte{protocol.CmdSetBrightness, 128}, controller)

	h.mgr.Tick()
	if h.strip.brightness != 128 {
		t.Errorf("brightness = %d, want 128", h.strip.brightness)
	}
}

func TestConnectionLossReturnsToSearching(t *testing.T) {
	h := newHarness(t)
	h.toConnected()
	oldConn := h.lastConn()

	h.net.connected = false
	h.mgr.Tick()
	if got := h.stateName(); got != "Connected" {
		t.Fatalf("state before check interval = %s, want Connected", got)
	}

	h.advance(connCheckInterval)
	h.mgr.Tick()
	if got := h.stateName(); got != "Searching" {
		t.Fatalf("state after loss = %s, want Searching", got)
	}
	if !oldConn.closed {
		t.Error("connected-state listener was not closed on exit")
	}
}

func TestSearchingTimeoutEntersProvisioning(t *testing.T) {
	h := newHarness(t)
	h.saveCreds("HomeNet", "hunter22")
	h.mgr.Begin()
	if got := h.stateName(); got != "Searching" {
		t.Fatalf("state = %s, want Searching", got)
	}

	h.advance(h.cfg.Timing.ConnectionTimeout.Duration() + time.Millisecond)
	h.mgr.Tick()
	if got := h.stateName(); got != "Provisioning" {
		t.Fatalf("state after timeout = %s, want Provisioning", got)
	}
}

func TestSearchingPulseRidesBlueChannelOnly(t *testing.T) {
	h := newHarness(t)
	h.saveCreds("HomeNet", "hunter22")
	h.mgr.Begin()

	h.advance(pulseSpeed)
	h.mgr.Tick()
	want := light.Color{B: brightnessMin + pulseStep}
	for i, c := range h.strip.pixels {
		if c != want {
			t.Fatalf("pixel %d = %+v, want %+v", i, c, want)
		}
	}
}

func TestProvisioningTimeoutRetriesSearch(t *testing.T) {
	h := newHarness(t)
	h.mgr.Begin()
	oldConn := h.lastConn()

	h.advance(h.cfg.Timing.ProvisionTimeout.Duration() + time.Millisecond)
	h.mgr.Tick()

	// With no credentials stored the search hands straight back, but
	// through a full exit/enter cycle with a fresh listener.
	if got := h.stateName(); got != "Provisioning" {
		t.Fatalf("state after timeout = %s, want Provisioning", got)
	}
	if !oldConn.closed {
		t.Error("old listener was not closed")
	}
	if h.lastConn() == oldConn {
		t.Error("listener was not recreated")
	}
}

func TestProvisionSavesCredentialsAndReboots(t *testing.T) {
	h := newHarness(t)
	h.mgr.Begin()
	conn := h.lastConn()

	packet, err := protocol.EncodeProvision("HomeNet", "hunter22")
	if err != nil {
		t.Fatalf("EncodeProvision: %v", err)
	}
	conn.push(packet, controller)
	h.mgr.Tick()

	creds, ok := h.mgr.LoadCredentials()
	if !ok {
		t.Fatal("credentials were not persisted")
	}
	if creds.SSID != "HomeNet" || creds.Password != "hunter22" {
		t.Errorf("persisted creds = %+v", creds)
	}
	if len(conn.sent) == 0 {
		t.Fatal("no acknowledgement was sent")
	}
	if !bytes.Equal(conn.sent[0].data, protocol.EncodeProvisionAck()) {
		t.Errorf("ack = %v, want %v", conn.sent[0].data, protocol.EncodeProvisionAck())
	}

	// The success flash stays on the ring until the deferred reboot.
	if h.mgr.RebootRequested() {
		t.Fatal("reboot fired before the success flash was held")
	}
	for i, c := range h.strip.pixels {
		if c != light.Connected {
			t.Fatalf("pixel %d during success flash = %+v, want %+v", i, c, light.Connected)
		}
	}
	h.advance(provisionFlashFor)
	h.mgr.Tick()
	if !h.mgr.RebootRequested() {
		t.Error("reboot was not requested after the flash hold")
	}
}

func TestOversizedProvisionIsRejected(t *testing.T) {
	h := newHarness(t)
	h.mgr.Begin()
	conn := h.lastConn()

	// Declared ssid length one past the bound.
	packet := append([]byte{protocol.CmdProvision, 33}, bytes.Repeat([]byte{'a'}, 33)...)
	packet = append(packet, 4, 'p', 'a', 's', 's')
	conn.push(packet, controller)
	h.mgr.Tick()

	if _, ok := h.mgr.LoadCredentials(); ok {
		t.Error("oversized credentials were persisted")
	}
	if h.mgr.RebootRequested() {
		t.Error("reboot was requested for a rejected payload")
	}
	if got := h.stateName(); got != "Provisioning" {
		t.Errorf("state = %s, want Provisioning", got)
	}
}

func TestProvisioningStatusReply(t *testing.T) {
	h := newHarness(t)
	h.mgr.Begin()
	conn := h.lastConn()

	conn.push([]byte{protocol.CmdGetStatus}, controller)
	h.mgr.Tick()

	if len(conn.sent) == 0 {
		t.Fatal("no status reply was sent")
	}
	reply := conn.sent[0].data
	if reply[0] != protocol.StatusState || reply[1] != protocol.ModeProvisioning {
		t.Errorf("reply header = [0x%02x 0x%02x], want [0x%02x 0x%02x]",
			reply[0], reply[1], protocol.StatusState, protocol.ModeProvisioning)
	}
}

func TestPresenceBroadcastThrottle(t *testing.T) {
	h := newHarness(t)
	h.mgr.Begin()
	conn := h.lastConn()

	h.mgr.Tick()
	h.advance(time.Second)
	h.mgr.Tick()
	if got := len(conn.broadcasts); got != 1 {
		t.Fatalf("broadcasts after 1s = %d, want 1", got)
	}

	h.advance(presenceInterval)
	h.mgr.Tick()
	if got := len(conn.broadcasts); got != 2 {
		t.Fatalf("broadcasts after interval = %d, want 2", got)
	}
	mode, name, err := protocol.ParseAnnounce(conn.broadcasts[0][1:])
	if err != nil {
		t.Fatalf("ParseAnnounce: %v", err)
	}
	if mode != protocol.ModeProvisioning || name != "Lumina" {
		t.Errorf("announce = (0x%02x, %q), want (0x%02x, Lumina)", mode, name, protocol.ModeProvisioning)
	}
}

func TestUpdateFailureRollsBackToConnected(t *testing.T) {
	h := newHarness(t)
	c := h.toConnected()
	c.HandleCommand(protocol.CmdOTAStart, nil, controller)

	if got := h.stateName(); got != "Updating" {
		t.Fatalf("state = %s, want Updating", got)
	}
	if !h.upd.armed {
		t.Fatal("updater was not armed")
	}

	h.upd.hooks.Started()
	h.upd.hooks.Progress(50)
	if got := h.strip.lit(); got != 8 {
		t.Errorf("lit pixels at 50%% = %d, want 8", got)
	}

	h.upd.hooks.Failed("checksum mismatch")

	// The red error flash plays out before the rollback.
	if got := h.stateName(); got != "Updating" {
		t.Fatalf("state right after failure = %s, want Updating", got)
	}
	for i, c := range h.strip.pixels {
		if c != light.ErrorColor {
			t.Fatalf("pixel %d during error flash = %+v, want %+v", i, c, light.ErrorColor)
		}
	}
	h.advance(errorFlashInterval)
	h.mgr.Tick()
	if got := h.strip.lit(); got != 0 {
		t.Fatalf("lit pixels in flash off-phase = %d, want 0", got)
	}

	for i := 0; i < 32 && h.stateName() != "Connected"; i++ {
		h.advance(errorFlashInterval)
		h.mgr.Tick()
	}
	if got := h.stateName(); got != "Connected" {
		t.Fatalf("state after failure = %s, want Connected", got)
	}
	if h.upd.disarmed == 0 {
		t.Error("updater was not disarmed on exit")
	}
	if h.mgr.RebootRequested() {
		t.Error("reboot was requested after a failed update")
	}
}

func TestUpdateCompletionSweepsGreenThenReboots(t *testing.T) {
	h := newHarness(t)
	c := h.toConnected()
	c.HandleCommand(protocol.CmdOTAStart, nil, controller)

	h.upd.hooks.Started()
	h.upd.hooks.Progress(100)
	h.upd.hooks.Completed()
	if h.mgr.RebootRequested() {
		t.Fatal("reboot fired before the success sweep")
	}

	// The sweep paints green over the progress fill one pixel per step.
	h.advance(updateSweepInterval)
	h.mgr.Tick()
	if h.strip.pixels[0] != light.Connected {
		t.Fatalf("pixel 0 after first sweep step = %+v, want %+v", h.strip.pixels[0], light.Connected)
	}
	last := len(h.strip.pixels) - 1
	if h.strip.pixels[last] != light.Updating {
		t.Fatalf("pixel %d before sweep reaches it = %+v, want %+v", last, h.strip.pixels[last], light.Updating)
	}

	for i := 0; i < 64 && !h.mgr.RebootRequested(); i++ {
		h.advance(updateSweepInterval)
		h.mgr.Tick()
	}
	if !h.mgr.RebootRequested() {
		t.Error("reboot was not requested after the sweep finished")
	}
}

func TestUpdateRequiresNetwork(t *testing.T) {
	h := newHarness(t)
	c := h.toConnected()
	h.net.connected = false

	c.HandleCommand(protocol.CmdOTAStart, nil, controller)
	if got := h.stateName(); got != "Searching" {
		t.Fatalf("state = %s, want Searching", got)
	}
	if h.upd.armed {
		t.Error("updater was armed without a network")
	}
}

func TestUpdatingIgnoresControlCommands(t *testing.T) {
	h := newHarness(t)
	c := h.toConnected()
	c.HandleCommand(protocol.CmdOTAStart, nil, controller)
	u := h.mgr.Current().(*Updating)

	u.HandleCommand(protocol.CmdSetColor, []byte{1, 2, 3}, controller)
	u.HandleCommand(protocol.CmdReset, nil, controller)
	if got := h.stateName(); got != "Updating" {
		t.Fatalf("state = %s, want Updating", got)
	}
	if h.mgr.RebootRequested() {
		t.Error("reset command took effect during update")
	}

	u.HandleCommand(protocol.CmdGetStatus, nil, controller)
	status := h.lastConn()
	if len(status.broadcasts) == 0 {
		t.Fatal("no update status was broadcast")
	}
	want := protocol.EncodeUpdateStatus(0)
	if !bytes.Equal(status.broadcasts[0], want) {
		t.Errorf("status = %v, want %v", status.broadcasts[0], want)
	}
}

func TestUpdateTimeoutReturnsToConnected(t *testing.T) {
	h := newHarness(t)
	c := h.toConnected()
	c.HandleCommand(protocol.CmdOTAStart, nil, controller)

	h.advance(h.cfg.Timing.UpdateTimeout.Duration() + time.Millisecond)
	h.mgr.Tick()
	if got := h.stateName(); got != "Connected" {
		t.Fatalf("state after timeout = %s, want Connected", got)
	}
}

func TestFactoryResetClearsCredentials(t *testing.T) {
	h := newHarness(t)
	h.toConnected()
	h.lastConn().push([]byte{protocol.CmdReset}, controller)

	h.mgr.Tick()
	if _, ok := h.mgr.LoadCredentials(); ok {
		t.Error("credentials survived factory reset")
	}
	if !h.mgr.RebootRequested() {
		t.Error("reboot was not requested")
	}
}

func TestRebootBlanksStrip(t *testing.T) {
	h := newHarness(t)
	h.toConnected()
	h.mgr.Reboot()

	if got := h.strip.lit(); got != 0 {
		t.Errorf("lit pixels after reboot = %d, want 0", got)
	}
	if !h.mgr.RebootRequested() {
		t.Error("reboot flag not set")
	}
	// Ticking a rebooting core is a no-op.
	shows := h.strip.shows
	h.advance(time.Second)
	h.mgr.Tick()
	if h.strip.shows != shows {
		t.Error("core kept rendering after reboot request")
	}
}

// stubState records lifecycle calls for transition-ordering checks.
type stubState struct {
	name string
	log  *[]string
}

func (s *stubState) OnEnter()                                { *s.log = append(*s.log, s.name+".enter") }
func (s *stubState) OnExit()                                 { *s.log = append(*s.log, s.name+".exit") }
func (s *stubState) Update()                                 {}
func (s *stubState) HandleCommand(byte, []byte, *net.UDPAddr) {}
func (s *stubState) Name() string                            { return s.name }
func (s *stubState) Code() byte                              { return 0 }

func TestTransitionExitsBeforeEntering(t *testing.T) {
	h := newHarness(t)
	var calls []string
	a := &stubState{name: "a", log: &calls}
	b := &stubState{name: "b", log: &calls}

	h.mgr.TransitionTo(a)
	h.mgr.TransitionTo(b)

	want := []string{"a.enter", "a.exit", "b.enter"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", calls, want)
		}
	}
}

func TestTransitionToNilIsRejected(t *testing.T) {
	h := newHarness(t)
	var calls []string
	a := &stubState{name: "a", log: &calls}

	h.mgr.TransitionTo(a)
	h.mgr.TransitionTo(nil)
	if h.mgr.Current() != State(a) {
		t.Error("nil transition replaced the active state")
	}
}

func TestVoltageToPercent(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		voltage float64
		want    uint8
	}{
		{4.2, 100},
		{4.5, 100},
		{3.0, 0},
		{2.5, 0},
		{3.6, 50},
	}
	for _, tt := range tests {
		if got := h.mgr.voltageToPercent(tt.voltage); got != tt.want {
			t.Errorf("voltageToPercent(%.1f) = %d, want %d", tt.voltage, got, tt.want)
		}
	}
}
