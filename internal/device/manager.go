package device

import (
	"runtime"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/luminad/internal/config"
	"github.com/dokzlo13/luminad/internal/eeprom"
	"github.com/dokzlo13/luminad/internal/protocol"
)

// Deps are the external collaborators lent to the manager. The manager
// owns them for its lifetime and lends them to the active state; a
// state must not retain any of them across a transition.
type Deps struct {
	Strip      LEDStrip
	Net        Network
	Battery    Battery
	Updater    Updater
	Store      eeprom.Store
	NewConn    func() PacketConn
	Advertiser Advertiser // optional
	DeviceID   string
}

// Manager owns the single active state and the shared hardware
// context, and performs transitions with exit-before-enter ordering.
// All methods are called from one logical thread of control.
type Manager struct {
	cfg  *config.Config
	deps Deps

	current State

	// sendConn is the manager's own unbound socket, used for replies
	// requested by states that hold no listener.
	sendConn PacketConn

	now        func() time.Time
	freeMemory func() uint64

	voltage         float64
	percent         uint8
	lastBatteryRead time.Time

	lastFree     uint64
	lastMemCheck time.Time

	rebootRequested bool
}

// NewManager creates a manager. Begin must be called before Tick.
func NewManager(cfg *config.Config, deps Deps) *Manager {
	return &Manager{
		cfg:        cfg,
		deps:       deps,
		now:        time.Now,
		freeMemory: readFreeMemory,
	}
}

// Begin takes the initial battery reading, logs the boot banner and
// enters the searching state.
func (m *Manager) Begin() {
	now := m.now()
	m.refreshBattery(now)
	m.lastFree = m.freeMemory()
	m.lastMemCheck = now

	log.Info().
		Str("device", m.cfg.Device.Name).
		Str("version", m.cfg.Device.FirmwareVersion).
		Str("device_id", m.deps.DeviceID).
		Float64("battery_v", m.voltage).
		Uint8("battery_pct", m.percent).
		Uint64("free_memory", m.lastFree).
		Msg("Lumina core starting")

	m.TransitionTo(NewSearching(m))
}

// Tick runs one cooperative cycle: one Update of the active state plus
// the manager's own throttled housekeeping.
func (m *Manager) Tick() {
	if m.rebootRequested {
		return
	}
	if m.current != nil {
		m.current.Update()
	}

	now := m.now()
	if now.Sub(m.lastBatteryRead) > m.cfg.Timing.BatteryReadInterval.Duration() {
		m.refreshBattery(now)
	}
	m.checkMemory(now)
}

// TransitionTo exits and releases the current state, then adopts and
// enters next. A nil next is rejected: the device must never be left
// stateless.
func (m *Manager) TransitionTo(next State) {
	if next == nil {
		log.Error().Msg("Attempted transition to nil state")
		return
	}

	if m.current != nil {
		log.Info().
			Str("from", m.current.Name()).
			Str("to", next.Name()).
			Msg("State transition")
		m.current.OnExit()
	} else {
		log.Info().Str("state", next.Name()).Msg("Initial state")
	}

	// Adopt before OnEnter so a transition requested from inside
	// OnEnter tears this state down properly.
	m.current = next
	next.OnEnter()
}

// Current returns the active state.
func (m *Manager) Current() State {
	return m.current
}

// Shutdown exits the active state and stops advertising. The manager
// must not be ticked afterwards.
func (m *Manager) Shutdown() {
	if m.current != nil {
		m.current.OnExit()
		m.current = nil
	}
	m.StopAdvertise()
}

// Reboot blanks the lamp and requests a device-core restart. The owner
// of the tick loop observes RebootRequested and rebuilds the core,
// which is the daemon's equivalent of the hardware restart.
func (m *Manager) Reboot() {
	log.Info().Msg("Rebooting device core")
	m.deps.Strip.Clear()
	m.deps.Strip.Show()
	m.rebootRequested = true
}

// RebootRequested reports whether Reboot has been called.
func (m *Manager) RebootRequested() bool {
	return m.rebootRequested
}

// Cfg returns the device configuration.
func (m *Manager) Cfg() *config.Config {
	return m.cfg
}

// Strip returns the shared LED strip handle.
func (m *Manager) Strip() LEDStrip {
	return m.deps.Strip
}

// Net returns the shared radio handle.
func (m *Manager) Net() Network {
	return m.deps.Net
}

// Updater returns the firmware update mechanism.
func (m *Manager) Updater() Updater {
	return m.deps.Updater
}

// NewConn creates a datagram endpoint for a state to own. The state
// must close it in OnExit.
func (m *Manager) NewConn() PacketConn {
	return m.deps.NewConn()
}

// Now returns the current time. All elapsed-time throttles in the core
// go through this clock.
func (m *Manager) Now() time.Time {
	return m.now()
}

// DeviceID returns the persistent device identity.
func (m *Manager) DeviceID() string {
	return m.deps.DeviceID
}

// BatteryVoltage returns the cached battery voltage.
func (m *Manager) BatteryVoltage() float64 {
	return m.voltage
}

// BatteryPercent returns the cached battery charge estimate.
func (m *Manager) BatteryPercent() uint8 {
	return m.percent
}

// FreeMemory returns the current free-memory estimate.
func (m *Manager) FreeMemory() uint64 {
	return m.freeMemory()
}

// Broadcast sends a status packet to the local subnet from the
// manager's own socket. Used by states that hold no listener.
func (m *Manager) Broadcast(b []byte) {
	if !m.deps.Net.Connected() {
		return
	}
	if m.sendConn == nil {
		m.sendConn = m.deps.NewConn()
	}
	if err := m.sendConn.Broadcast(m.cfg.Network.UDPPort, b); err != nil {
		log.Warn().Err(err).Msg("Broadcast failed")
	}
}

// SaveCredentials validates and persists network credentials.
func (m *Manager) SaveCredentials(ssid, password string) error {
	return eeprom.SaveCredentials(m.deps.Store, eeprom.Credentials{SSID: ssid, Password: password})
}

// LoadCredentials reads persisted credentials; ok is false when none
// are stored or the stored record is invalid.
func (m *Manager) LoadCredentials() (creds eeprom.Credentials, ok bool) {
	creds, ok, err := eeprom.LoadCredentials(m.deps.Store)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read credential store")
		return eeprom.Credentials{}, false
	}
	return creds, ok
}

// ClearCredentials invalidates the persisted credentials.
func (m *Manager) ClearCredentials() {
	if err := eeprom.ClearCredentials(m.deps.Store); err != nil {
		log.Error().Err(err).Msg("Failed to clear credentials")
	}
}

// Advertise re-announces the device with the given mode name.
func (m *Manager) Advertise(mode byte) {
	if m.deps.Advertiser == nil {
		return
	}
	if err := m.deps.Advertiser.Advertise(protocol.ModeName(mode)); err != nil {
		log.Warn().Err(err).Msg("mDNS advertisement failed")
	}
}

// StopAdvertise withdraws the mDNS announcement.
func (m *Manager) StopAdvertise() {
	if m.deps.Advertiser != nil {
		m.deps.Advertiser.Stop()
	}
}

func (m *Manager) refreshBattery(now time.Time) {
	m.lastBatteryRead = now
	v, err := m.deps.Battery.Voltage()
	if err != nil {
		log.Warn().Err(err).Msg("Battery read failed")
		return
	}
	m.voltage = v
	m.percent = m.voltageToPercent(v)
}

// voltageToPercent is a linear approximation between the configured
// empty and full voltages.
func (m *Manager) voltageToPercent(v float64) uint8 {
	full, empty := m.cfg.Battery.Full, m.cfg.Battery.Empty
	if v >= full {
		return 100
	}
	if v <= empty {
		return 0
	}
	return uint8((v - empty) / (full - empty) * 100)
}

// checkMemory is a leak heuristic, observability only: losing more
// than 1KiB of free memory between 30s checks gets logged.
func (m *Manager) checkMemory(now time.Time) {
	if now.Sub(m.lastMemCheck) < 30*time.Second {
		return
	}
	m.lastMemCheck = now

	free := m.freeMemory()
	if m.lastFree > free && m.lastFree-free > 1024 {
		log.Warn().
			Uint64("lost_bytes", m.lastFree-free).
			Uint64("free_memory", free).
			Msg("Free memory dropped between checks")
	}
	m.lastFree = free
}

func readFreeMemory() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapIdle - ms.HeapReleased
}
