package device

import (
	"net"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/luminad/internal/light"
	"github.com/dokzlo13/luminad/internal/protocol"
)

// Searching tries to join the saved network while pulsing blue. With
// no saved credentials it hands over to provisioning immediately; on a
// connection it hands over to connected; on timeout, provisioning.
type Searching struct {
	m *Manager

	entered   time.Time
	lastPulse time.Time
	lastCheck time.Time
	pulse     uint8
	rising    bool
}

// NewSearching creates the searching state.
func NewSearching(m *Manager) *Searching {
	return &Searching{m: m}
}

func (s *Searching) OnEnter() {
	now := s.m.Now()
	s.entered = now
	s.lastPulse = now
	s.lastCheck = now
	s.pulse = brightnessMin
	s.rising = true

	creds, ok := s.m.LoadCredentials()
	if !ok {
		log.Info().Msg("No saved credentials, entering provisioning")
		s.m.TransitionTo(NewProvisioning(s.m))
		return
	}

	log.Info().Str("ssid", creds.SSID).Msg("Joining saved network")
	if err := s.m.Net().Join(creds.SSID, creds.Password); err != nil {
		log.Warn().Err(err).Msg("Failed to start network association")
	}
}

func (s *Searching) OnExit() {
	strip := s.m.Strip()
	strip.Clear()
	strip.Show()
}

func (s *Searching) Update() {
	now := s.m.Now()
	s.animate(now)

	if now.Sub(s.lastCheck) >= connCheckInterval {
		s.lastCheck = now
		if s.m.Net().Connected() {
			log.Info().Msg("Network joined")
			s.m.TransitionTo(NewConnected(s.m))
			return
		}
	}

	if now.Sub(s.entered) > s.m.Cfg().Timing.ConnectionTimeout.Duration() {
		log.Warn().Msg("Connection timeout, entering provisioning")
		s.m.TransitionTo(NewProvisioning(s.m))
	}
}

// animate advances the triangle-wave pulse. Only the blue channel is
// driven; the pulse value maps onto the searching color's blue level.
func (s *Searching) animate(now time.Time) {
	if now.Sub(s.lastPulse) < pulseSpeed {
		return
	}
	s.lastPulse = now

	if s.rising {
		s.pulse += pulseStep
		if s.pulse >= brightnessMax {
			s.pulse = brightnessMax
			s.rising = false
		}
	} else {
		s.pulse -= pulseStep
		if s.pulse <= brightnessMin {
			s.pulse = brightnessMin
			s.rising = true
		}
	}

	blue := uint8(int(s.pulse) * int(light.Searching.B) / 255)
	strip := s.m.Strip()
	strip.SetAll(light.Color{B: blue})
	strip.Show()
}

// HandleCommand accepts only provisioning and factory reset while
// searching; everything else is ignored.
func (s *Searching) HandleCommand(cmd byte, payload []byte, from *net.UDPAddr) {
	switch cmd {
	case protocol.CmdProvision:
		creds, err := protocol.ParseProvision(payload)
		if err != nil {
			log.Debug().Err(err).Msg("Ignoring invalid provision payload")
			return
		}
		if err := s.m.SaveCredentials(creds.SSID, creds.Password); err != nil {
			log.Error().Err(err).Msg("Failed to save credentials")
			return
		}
		log.Info().Str("ssid", creds.SSID).Msg("New credentials saved, rebooting")
		s.m.Reboot()

	case protocol.CmdReset:
		log.Info().Msg("Factory reset requested")
		s.m.ClearCredentials()
		s.m.Reboot()
	}
}

func (s *Searching) Name() string { return "Searching" }
func (s *Searching) Code() byte   { return protocol.ModeSearching }
