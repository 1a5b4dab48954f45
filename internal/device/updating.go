package device

import (
	"net"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/luminad/internal/light"
	"github.com/dokzlo13/luminad/internal/protocol"
)

// Updating drives the firmware update mechanism. While waiting, the
// lamp pulses yellow; during a transfer the ring fills proportionally
// to progress. A failed update rolls back to connected (the running
// firmware stays active since the flash never completed).
type Updating struct {
	m *Manager

	entered   time.Time
	lastPulse time.Time
	pulse     uint8
	rising    bool

	armed    bool
	active   bool
	progress uint8

	// Terminal animation, set by the completion/failure hooks. While
	// one is playing the state renders nothing else and the exit
	// action (reboot or rollback) is deferred until it finishes.
	outcome     outcomeAnim
	outcomeAt   time.Time
	sweepPos    int
	flashesLeft int
	flashOn     bool
}

type outcomeAnim int

const (
	outcomeNone outcomeAnim = iota
	outcomeSweep
	outcomeFlash
)

// NewUpdating creates the updating state.
func NewUpdating(m *Manager) *Updating {
	return &Updating{m: m}
}

func (u *Updating) OnEnter() {
	now := u.m.Now()
	u.entered = now
	u.lastPulse = now
	u.pulse = updatePulseMin
	u.rising = true

	if !u.m.Net().Connected() {
		log.Error().Msg("No network, cannot update")
		u.m.TransitionTo(NewSearching(u.m))
		return
	}

	err := u.m.Updater().Arm(UpdateHooks{
		Started:   u.onStarted,
		Progress:  u.onProgress,
		Completed: u.onCompleted,
		Failed:    u.onFailed,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to arm update mechanism")
		u.m.TransitionTo(NewConnected(u.m))
		return
	}
	u.armed = true
	log.Info().Msg("Update mechanism armed, device locked during update")
}

func (u *Updating) OnExit() {
	if u.armed {
		u.m.Updater().Disarm()
		u.armed = false
	}

	strip := u.m.Strip()
	strip.Clear()
	strip.Show()
}

func (u *Updating) Update() {
	now := u.m.Now()
	if u.outcome != outcomeNone {
		u.runOutcome(now)
		return
	}

	if u.armed {
		u.m.Updater().Poll()
	}
	if u.outcome != outcomeNone {
		// A terminal hook fired inside the poll; its frame stays up
		// until the next tick.
		return
	}

	if !u.active {
		u.animate(now)
	}

	if now.Sub(u.entered) > u.m.Cfg().Timing.UpdateTimeout.Duration() {
		log.Warn().Msg("No update activity, returning to connected")
		u.m.TransitionTo(NewConnected(u.m))
	}
}

// animate runs the fast yellow idle pulse.
func (u *Updating) animate(now time.Time) {
	if now.Sub(u.lastPulse) < updatePulseSpeed {
		return
	}
	u.lastPulse = now

	if u.rising {
		u.pulse += updatePulseStep
		if u.pulse >= updatePulseMax {
			u.pulse = updatePulseMax
			u.rising = false
		}
	} else {
		u.pulse -= updatePulseStep
		if u.pulse <= updatePulseMin {
			u.pulse = updatePulseMin
			u.rising = true
		}
	}

	strip := u.m.Strip()
	strip.SetAll(light.Color{R: u.pulse, G: u.pulse})
	strip.Show()
}

func (u *Updating) onStarted() {
	log.Info().Msg("Firmware transfer started")
	u.active = true
	strip := u.m.Strip()
	strip.Clear()
	strip.Show()
}

func (u *Updating) onProgress(percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	if uint8(percent) == u.progress {
		return
	}
	u.progress = uint8(percent)

	strip := u.m.Strip()
	strip.Clear()
	lit := percent * strip.Count() / 100
	for i := 0; i < lit; i++ {
		strip.SetPixel(i, light.Updating)
	}
	strip.Show()

	log.Debug().Int("percent", percent).Msg("Update progress")
}

func (u *Updating) onCompleted() {
	log.Info().Msg("Firmware update complete, rebooting after the success sweep")
	u.active = true
	u.outcome = outcomeSweep
	u.outcomeAt = time.Time{}
	u.sweepPos = 0
}

func (u *Updating) onFailed(reason string) {
	log.Error().Str("reason", reason).Msg("Firmware update failed, rolling back")
	u.active = true
	u.outcome = outcomeFlash
	u.outcomeAt = u.m.Now()
	u.flashesLeft = errorFlashCount
	u.flashOn = true

	strip := u.m.Strip()
	strip.SetAll(light.ErrorColor)
	strip.Show()
}

// runOutcome plays the terminal animation: a green sweep over the
// progress fill before the reboot on success, a red flash sequence
// before rolling back on failure. The firmware flash never completed
// on the failure path, so the running firmware stays active and the
// rollback is just resuming normal operation.
func (u *Updating) runOutcome(now time.Time) {
	strip := u.m.Strip()
	switch u.outcome {
	case outcomeSweep:
		if !u.outcomeAt.IsZero() && now.Sub(u.outcomeAt) < updateSweepInterval {
			return
		}
		u.outcomeAt = now
		if u.sweepPos >= strip.Count() {
			u.m.Reboot()
			return
		}
		strip.SetPixel(u.sweepPos, light.Connected)
		strip.Show()
		u.sweepPos++

	case outcomeFlash:
		if u.flashesLeft == 0 {
			if now.Sub(u.outcomeAt) >= errorFlashHold {
				u.m.TransitionTo(NewConnected(u.m))
			}
			return
		}
		if now.Sub(u.outcomeAt) < errorFlashInterval {
			return
		}
		u.outcomeAt = now
		if u.flashOn {
			strip.Clear()
			strip.Show()
			u.flashOn = false
			u.flashesLeft--
		} else {
			strip.SetAll(light.ErrorColor)
			strip.Show()
			u.flashOn = true
		}
	}
}

// HandleCommand honors only status requests; everything else is
// ignored for safety while a flash may be in progress.
func (u *Updating) HandleCommand(cmd byte, payload []byte, from *net.UDPAddr) {
	if cmd != protocol.CmdGetStatus {
		log.Debug().Str("cmd", protocol.CommandName(cmd)).Msg("Ignoring command during update")
		return
	}
	u.m.Broadcast(protocol.EncodeUpdateStatus(u.progress))
}

// Progress reports the last observed transfer percentage.
func (u *Updating) Progress() uint8 {
	return u.progress
}

func (u *Updating) Name() string { return "Updating" }
func (u *Updating) Code() byte   { return protocol.ModeUpdating }
