package device

import (
	"net"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/luminad/internal/light"
	"github.com/dokzlo13/luminad/internal/protocol"
)

// Connected is normal operation: the active lighting strategy renders
// on a fixed cadence and the full command surface is served.
type Connected struct {
	m *Manager

	conn PacketConn

	strategy      light.Strategy
	strategyEpoch time.Time
	frame         light.Frame

	entered         time.Time
	flashUntil      time.Time
	lastHeartbeat   time.Time
	lastRender      time.Time
	lastConnCheck   time.Time
	lastBatteryWarn time.Time

	buf [maxPacket]byte
}

// NewConnected creates the connected state with the default calm
// breathing animation in the connected color.
func NewConnected(m *Manager) *Connected {
	return &Connected{
		m:        m,
		strategy: light.Calm(light.Connected),
		frame:    light.NewFrame(m.Cfg().Device.LEDCount),
	}
}

func (c *Connected) OnEnter() {
	now := c.m.Now()
	c.entered = now
	c.lastConnCheck = now
	c.lastRender = now
	c.strategyEpoch = now

	cfg := c.m.Cfg()
	conn := c.m.NewConn()
	if err := conn.Listen(cfg.Network.UDPPort); err != nil {
		log.Error().Err(err).Int("port", cfg.Network.UDPPort).
			Msg("Failed to start listener, continuing degraded")
	} else {
		c.conn = conn
		log.Info().Int("port", cfg.Network.UDPPort).Msg("Listening for commands")
	}

	c.m.Advertise(protocol.ModeConnected)

	// Brief confirmation flash before the strategy takes over.
	c.flashUntil = now.Add(connectedFlashFor)
	strip := c.m.Strip()
	strip.SetAll(light.Connected)
	strip.Show()
}

func (c *Connected) OnExit() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.m.StopAdvertise()

	strip := c.m.Strip()
	strip.Clear()
	strip.Show()
}

func (c *Connected) Update() {
	now := c.m.Now()

	if now.Sub(c.lastConnCheck) >= connCheckInterval {
		c.lastConnCheck = now
		if !c.m.Net().Connected() {
			log.Warn().Msg("Network lost, returning to search")
			c.m.TransitionTo(NewSearching(c.m))
			return
		}
	}

	if c.lastHeartbeat.IsZero() ||
		now.Sub(c.lastHeartbeat) >= c.m.Cfg().Timing.HeartbeatInterval.Duration() {
		c.sendHeartbeat(now)
	}

	c.render(now)
	c.poll()
	c.warnLowBattery(now)
}

func (c *Connected) render(now time.Time) {
	if now.Sub(c.lastRender) < fadeSpeed {
		return
	}
	c.lastRender = now

	// Hold the confirmation flash, then animate.
	if now.Before(c.flashUntil) {
		return
	}

	c.strategy.Render(now.Sub(c.strategyEpoch), c.frame)
	strip := c.m.Strip()
	for i, col := range c.frame {
		strip.SetPixel(i, col)
	}
	strip.Show()
}

func (c *Connected) heartbeatPacket() []byte {
	hb := protocol.Heartbeat{
		Mode:       c.Code(),
		BatteryPct: c.m.BatteryPercent(),
		RSSI:       c.m.Net().RSSI(),
		Voltage:    float32(c.m.BatteryVoltage()),
		FreeMemory: uint32(c.m.FreeMemory()),
		Strategy:   c.strategy.Name(),
	}
	return hb.Encode()
}

func (c *Connected) sendHeartbeat(now time.Time) {
	c.lastHeartbeat = now
	if !c.m.Net().Connected() {
		return
	}

	packet := c.heartbeatPacket()
	port := c.m.Cfg().Network.UDPPort
	var err error
	if c.conn != nil {
		err = c.conn.Broadcast(port, packet)
	} else {
		c.m.Broadcast(packet)
	}
	if err != nil {
		log.Debug().Err(err).Msg("Heartbeat broadcast failed")
		return
	}

	log.Debug().
		Uint8("battery_pct", c.m.BatteryPercent()).
		Int("rssi", c.m.Net().RSSI()).
		Str("strategy", c.strategy.Name()).
		Msg("Heartbeat")
}

func (c *Connected) poll() {
	if c.conn == nil {
		return
	}
	n, from, err := c.conn.Poll(c.buf[:])
	if err != nil {
		log.Debug().Err(err).Msg("Listener read failed")
		return
	}
	if n == 0 {
		return
	}
	if cmd, payload, ok := protocol.Decode(c.buf[:n]); ok {
		c.HandleCommand(cmd, payload, from)
	}
}

func (c *Connected) warnLowBattery(now time.Time) {
	v := c.m.BatteryVoltage()
	cfg := c.m.Cfg().Battery
	if v >= cfg.Warning || v <= cfg.Empty {
		return
	}
	if !c.lastBatteryWarn.IsZero() && now.Sub(c.lastBatteryWarn) < batteryWarnInterval {
		return
	}
	c.lastBatteryWarn = now
	log.Warn().Float64("battery_v", v).Msg("Battery low")
}

func (c *Connected) HandleCommand(cmd byte, payload []byte, from *net.UDPAddr) {
	switch cmd {
	case protocol.CmdSetColor:
		col, err := protocol.ParseSetColor(payload)
		if err != nil {
			log.Debug().Err(err).Msg("Ignoring invalid set-color payload")
			return
		}
		log.Info().Uint8("r", col.R).Uint8("g", col.G).Uint8("b", col.B).Msg("Set solid color")
		c.setStrategy(light.Solid(col))

	case protocol.CmdSetMood:
		mood, err := protocol.ParseMood(payload)
		if err != nil {
			log.Debug().Err(err).Msg("Ignoring invalid set-mood payload")
			return
		}
		c.setStrategy(strategyForMood(mood))
		log.Info().Str("strategy", c.strategy.Name()).Msg("Mood set")

	case protocol.CmdSetBrightness:
		if len(payload) < 1 {
			return
		}
		strip := c.m.Strip()
		strip.SetBrightness(payload[0])
		strip.Show()
		log.Info().Uint8("level", payload[0]).Msg("Brightness set")

	case protocol.CmdGetStatus:
		c.sendHeartbeat(c.m.Now())
		// Also answer the requester directly so a query works from
		// outside the broadcast domain.
		if from != nil && c.conn != nil {
			if err := c.conn.SendTo(from, c.heartbeatPacket()); err != nil {
				log.Debug().Err(err).Msg("Status reply failed")
			}
		}

	case protocol.CmdOTAStart:
		log.Info().Msg("Firmware update requested")
		c.m.TransitionTo(NewUpdating(c.m))

	case protocol.CmdReset:
		log.Info().Msg("Factory reset requested")
		c.m.ClearCredentials()
		c.m.Reboot()

	default:
		log.Debug().Str("cmd", protocol.CommandName(cmd)).Msg("Unknown command")
	}
}

// setStrategy replaces the active strategy wholesale and restarts the
// animation clock.
func (c *Connected) setStrategy(s light.Strategy) {
	c.strategy = s
	c.strategyEpoch = c.m.Now()
	c.flashUntil = time.Time{}
}

// strategyForMood maps a mood payload onto a strategy. A party payload
// without extended colors falls back to the stock palette; an
// unrecognized mood falls back to solid.
func strategyForMood(m protocol.Mood) light.Strategy {
	switch m.Type {
	case protocol.MoodCalm:
		return light.Calm(m.Colors[0])
	case protocol.MoodFocus:
		return light.Focus(m.Colors[0])
	case protocol.MoodParty:
		if m.Extended {
			return light.Party(m.Colors[0], m.Colors[1], m.Colors[2])
		}
		return light.Party(m.Colors[0], light.Connected, light.Searching)
	default:
		return light.Solid(m.Colors[0])
	}
}

// Strategy exposes the active strategy for status reporting.
func (c *Connected) Strategy() light.Strategy {
	return c.strategy
}

// Frame exposes the last rendered frame.
func (c *Connected) Frame() light.Frame {
	return c.frame
}

func (c *Connected) Name() string { return "Connected" }
func (c *Connected) Code() byte   { return protocol.ModeConnected }
