package light

import (
	"math"
	"time"
)

// StrategyKind identifies one of the closed set of lighting algorithms.
type StrategyKind uint8

const (
	KindSolid StrategyKind = iota
	KindCalm
	KindFocus
	KindParty
)

// String returns the strategy name as reported in heartbeat packets.
func (k StrategyKind) String() string {
	switch k {
	case KindSolid:
		return "Solid"
	case KindCalm:
		return "Calm"
	case KindFocus:
		return "Focus"
	case KindParty:
		return "Party"
	default:
		return "Unknown"
	}
}

// Animation periods, carried over from the original firmware.
const (
	calmPeriod     = 4000 * time.Millisecond
	focusPeriod    = 8000 * time.Millisecond
	partyStepEvery = 50 * time.Millisecond
)

// Strategy is a lighting algorithm plus its fixed configuration. It is a
// value: replacing the active strategy is a plain assignment, there is
// no per-switch allocation and no mutable state between renders.
type Strategy struct {
	Kind StrategyKind

	// Up to three configured colors. Solid, Calm and Focus use C1;
	// Party uses all three.
	C1, C2, C3 Color
}

// Solid renders a constant color on every pixel.
func Solid(c Color) Strategy {
	return Strategy{Kind: KindSolid, C1: c}
}

// Calm renders a slow full-range breathing pulse of the base color.
func Calm(c Color) Strategy {
	return Strategy{Kind: KindCalm, C1: c}
}

// Focus renders a subtle pulse that never drops below 70% brightness.
func Focus(c Color) Strategy {
	return Strategy{Kind: KindFocus, C1: c}
}

// Party renders three colors in contiguous thirds of the ring, rotated
// one pixel every 50ms.
func Party(c1, c2, c3 Color) Strategy {
	return Strategy{Kind: KindParty, C1: c1, C2: c2, C3: c3}
}

// Name returns the strategy name for status reporting.
func (s Strategy) Name() string {
	return s.Kind.String()
}

// Render computes the pixel colors for the given elapsed time since the
// animation origin. It is a pure function of (configuration, elapsed).
func (s Strategy) Render(elapsed time.Duration, frame Frame) {
	switch s.Kind {
	case KindSolid:
		frame.SetAll(s.C1)

	case KindCalm:
		frame.SetAll(s.C1.Scale(sinePhase(elapsed, calmPeriod)))

	case KindFocus:
		frame.SetAll(s.C1.Scale(0.7 + 0.3*sinePhase(elapsed, focusPeriod)))

	case KindParty:
		n := len(frame)
		if n == 0 {
			return
		}
		offset := int(elapsed/partyStepEvery) % n
		for i := 0; i < n; i++ {
			pos := (i + offset) % n
			switch {
			case pos < n/3:
				frame[i] = s.C1
			case pos < 2*n/3:
				frame[i] = s.C2
			default:
				frame[i] = s.C3
			}
		}
	}
}

// sinePhase maps elapsed time into a 0..1 sine brightness curve with the
// given period.
func sinePhase(elapsed, period time.Duration) float64 {
	phase := float64(elapsed%period) / float64(period) * 2 * math.Pi
	return (math.Sin(phase) + 1) / 2
}
