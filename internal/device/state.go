package device

import (
	"net"
	"time"
)

// State is one operational mode of the lamp. Exactly one state is
// active at a time; the manager calls OnExit on the old state before
// OnEnter on its successor, and never dispatches Update between the
// two.
type State interface {
	OnEnter()
	OnExit()

	// Update runs one cooperative cycle: advance animations, poll the
	// state's listener, check timeouts. It must never block.
	Update()

	// HandleCommand processes one decoded command. from is the
	// sender's address when the command arrived over the network, nil
	// otherwise.
	HandleCommand(cmd byte, payload []byte, from *net.UDPAddr)

	Name() string
	Code() byte
}

// Animation and timing constants carried over from the original
// firmware. These are part of the device's observable behavior, not
// tuning knobs.
const (
	pulseSpeed    = 50 * time.Millisecond // searching pulse cadence
	fadeSpeed     = 20 * time.Millisecond // strategy render cadence
	brightnessMax = 200
	brightnessMin = 10
	pulseStep     = 5

	connCheckInterval = 5000 * time.Millisecond
	presenceInterval  = 2000 * time.Millisecond
	marqueeInterval   = 100 * time.Millisecond
	marqueePixels     = 4

	connectedFlashFor   = 500 * time.Millisecond
	batteryWarnInterval = 30 * time.Second

	updatePulseSpeed = 30 * time.Millisecond
	updatePulseStep  = 10
	updatePulseMin   = 20
	updatePulseMax   = 200

	provisionFlashFor   = 2 * time.Second
	updateSweepInterval = 50 * time.Millisecond
	errorFlashInterval  = 200 * time.Millisecond
	errorFlashCount     = 3
	errorFlashHold      = time.Second

	// maxPacket bounds a single datagram read. Commands are tiny; a
	// larger datagram is truncated and will fail validation.
	maxPacket = 256
)
