package device

import (
	"net"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/luminad/internal/light"
	"github.com/dokzlo13/luminad/internal/protocol"
)

// Provisioning offers the local setup channel: the device runs its own
// access point, rotates an orange marquee, broadcasts its presence and
// waits for a controller to deliver credentials.
type Provisioning struct {
	m *Manager

	conn PacketConn

	entered       time.Time
	lastAnim      time.Time
	lastBroadcast time.Time
	phase         int

	// rebootAt, when set, holds the success flash on the ring until the
	// deadline passes and the reboot fires.
	rebootAt time.Time

	buf [maxPacket]byte
}

// NewProvisioning creates the provisioning state.
func NewProvisioning(m *Manager) *Provisioning {
	return &Provisioning{m: m}
}

func (p *Provisioning) OnEnter() {
	now := p.m.Now()
	p.entered = now
	p.lastAnim = now
	p.phase = 0

	cfg := p.m.Cfg()
	net := p.m.Net()

	if err := net.Disconnect(); err != nil {
		log.Debug().Err(err).Msg("Disconnect before AP start failed")
	}
	if err := net.StartAP(cfg.Network.APSSID, cfg.Network.APPassword); err != nil {
		log.Error().Err(err).Msg("Failed to start access point, continuing degraded")
	} else {
		log.Info().Str("ssid", cfg.Network.APSSID).Msg("Access point up")
	}

	conn := p.m.NewConn()
	if err := conn.Listen(cfg.Network.UDPPort); err != nil {
		log.Error().Err(err).Int("port", cfg.Network.UDPPort).
			Msg("Failed to start listener, continuing degraded")
	} else {
		p.conn = conn
		log.Info().Int("port", cfg.Network.UDPPort).Msg("Listening for setup commands")
	}

	p.m.Advertise(protocol.ModeProvisioning)
}

func (p *Provisioning) OnExit() {
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
	if err := p.m.Net().StopAP(); err != nil {
		log.Debug().Err(err).Msg("Access point teardown failed")
	}
	p.m.StopAdvertise()

	strip := p.m.Strip()
	strip.Clear()
	strip.Show()
}

func (p *Provisioning) Update() {
	now := p.m.Now()

	if !p.rebootAt.IsZero() {
		if !now.Before(p.rebootAt) {
			p.m.Reboot()
		}
		return
	}

	p.animate(now)
	p.broadcastPresence(now)
	p.poll()

	if now.Sub(p.entered) > p.m.Cfg().Timing.ProvisionTimeout.Duration() {
		log.Warn().Msg("Provisioning timeout, returning to search")
		p.m.TransitionTo(NewSearching(p.m))
	}
}

// animate rotates four orange pixels around the ring.
func (p *Provisioning) animate(now time.Time) {
	if now.Sub(p.lastAnim) < marqueeInterval {
		return
	}
	p.lastAnim = now

	strip := p.m.Strip()
	count := strip.Count()
	strip.Clear()
	if count > 0 {
		spacing := count / marqueePixels
		for i := 0; i < marqueePixels; i++ {
			strip.SetPixel((p.phase+i*spacing)%count, light.Provisioning)
		}
		p.phase = (p.phase + 1) % count
	}
	strip.Show()
}

// broadcastPresence announces the device so a controller can find it.
func (p *Provisioning) broadcastPresence(now time.Time) {
	if p.conn == nil {
		return
	}
	if !p.lastBroadcast.IsZero() && now.Sub(p.lastBroadcast) < presenceInterval {
		return
	}
	p.lastBroadcast = now

	packet := protocol.EncodeAnnounce(protocol.ModeProvisioning, p.m.Cfg().Device.Name)
	if err := p.conn.Broadcast(p.m.Cfg().Network.UDPPort, packet); err != nil {
		log.Debug().Err(err).Msg("Presence broadcast failed")
	}
}

// poll drains at most one pending datagram.
func (p *Provisioning) poll() {
	if p.conn == nil {
		return
	}
	n, from, err := p.conn.Poll(p.buf[:])
	if err != nil {
		log.Debug().Err(err).Msg("Listener read failed")
		return
	}
	if n == 0 {
		return
	}
	if cmd, payload, ok := protocol.Decode(p.buf[:n]); ok {
		p.HandleCommand(cmd, payload, from)
	}
}

func (p *Provisioning) HandleCommand(cmd byte, payload []byte, from *net.UDPAddr) {
	log.Debug().Str("cmd", protocol.CommandName(cmd)).Msg("Setup command received")

	switch cmd {
	case protocol.CmdProvision:
		creds, err := protocol.ParseProvision(payload)
		if err != nil {
			log.Warn().Err(err).Msg("Rejecting provision payload")
			return
		}
		if err := p.m.SaveCredentials(creds.SSID, creds.Password); err != nil {
			log.Error().Err(err).Msg("Failed to save credentials")
			return
		}

		p.reply(from, protocol.EncodeProvisionAck())
		log.Info().Str("ssid", creds.SSID).Msg("Credentials saved, rebooting")

		// Success flash, held until the deferred reboot.
		strip := p.m.Strip()
		strip.SetAll(light.Connected)
		strip.Show()
		p.rebootAt = p.m.Now().Add(provisionFlashFor)

	case protocol.CmdGetStatus:
		cfg := p.m.Cfg()
		p.reply(from, protocol.EncodeStatusReply(
			protocol.ModeProvisioning,
			p.m.BatteryPercent(),
			cfg.Device.FirmwareVersion,
		))

	case protocol.CmdReset:
		log.Info().Msg("Factory reset requested")
		p.m.ClearCredentials()
		p.reply(from, []byte{protocol.StatusState})
		p.m.Reboot()

	default:
		log.Debug().Str("cmd", protocol.CommandName(cmd)).Msg("Ignoring command in provisioning")
	}
}

func (p *Provisioning) reply(to *net.UDPAddr, b []byte) {
	if p.conn == nil || to == nil {
		return
	}
	if err := p.conn.SendTo(to, b); err != nil {
		log.Debug().Err(err).Msg("Reply failed")
	}
}

func (p *Provisioning) Name() string { return "Provisioning" }
func (p *Provisioning) Code() byte   { return protocol.ModeProvisioning }
