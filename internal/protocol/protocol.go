// Package protocol implements the lamp's datagram wire protocol: a
// single discriminant byte followed by a command-specific payload.
// Multi-byte fields are little-endian.
package protocol

import "fmt"

// Command discriminants (inbound).
const (
	CmdSetColor      byte = 0x01 // r, g, b
	CmdSetMood       byte = 0x02 // moodType, r, g, b [, r2,g2,b2, r3,g3,b3]
	CmdSetBrightness byte = 0x03 // level
	CmdGetStatus     byte = 0x04
	CmdProvision     byte = 0x05 // ssidLen, ssid, passLen, pass
	CmdOTAStart      byte = 0x06
	CmdReset         byte = 0xFF
)

// Status discriminants (outbound).
const (
	StatusHeartbeat byte = 0x10
	StatusBattery   byte = 0x11
	StatusError     byte = 0x12
	StatusState     byte = 0x13
)

// Mode codes reported in status packets.
const (
	ModeSearching    byte = 0x01
	ModeProvisioning byte = 0x02
	ModeConnected    byte = 0x03
	ModeUpdating     byte = 0x04
	ModeError        byte = 0xFF
)

// Mood selectors in CmdSetMood payloads.
const (
	MoodCalm  byte = 0
	MoodFocus byte = 1
	MoodParty byte = 2
)

// Credential length bounds for provisioning payloads.
const (
	MaxSSIDLen = 32
	MaxPassLen = 64
)

// Decode splits a raw datagram into its discriminant and payload. It
// reports ok=false for a zero-length packet; such input is ignored,
// never a fault. The payload aliases the input buffer.
func Decode(buf []byte) (kind byte, payload []byte, ok bool) {
	if len(buf) == 0 {
		return 0, nil, false
	}
	return buf[0], buf[1:], true
}

// CommandName returns a human-readable name for a command discriminant.
func CommandName(cmd byte) string {
	switch cmd {
	case CmdSetColor:
		return "set-color"
	case CmdSetMood:
		return "set-mood"
	case CmdSetBrightness:
		return "set-brightness"
	case CmdGetStatus:
		return "get-status"
	case CmdProvision:
		return "provision"
	case CmdOTAStart:
		return "ota-start"
	case CmdReset:
		return "reset"
	default:
		return fmt.Sprintf("unknown(0x%02x)", cmd)
	}
}

// ModeName returns a human-readable name for a mode code.
func ModeName(mode byte) string {
	switch mode {
	case ModeSearching:
		return "searching"
	case ModeProvisioning:
		return "provisioning"
	case ModeConnected:
		return "connected"
	case ModeUpdating:
		return "updating"
	case ModeError:
		return "error"
	default:
		return fmt.Sprintf("unknown(0x%02x)", mode)
	}
}
