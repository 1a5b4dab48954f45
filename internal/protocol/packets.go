package protocol

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/dokzlo13/luminad/internal/light"
)

// Heartbeat is the periodic status broadcast sent while connected.
type Heartbeat struct {
	Mode       byte
	BatteryPct uint8
	RSSI       int // dBm, wire-encoded as value+128
	Voltage    float32
	FreeMemory uint32
	Strategy   string
}

// Encode serializes the heartbeat:
// [0x10, mode, batteryPct, rssi+128, voltage f32 LE, freeMem u32 LE, nameLen, name].
func (h Heartbeat) Encode() []byte {
	name := h.Strategy
	if len(name) > 255 {
		name = name[:255]
	}
	buf := make([]byte, 0, 13+len(name))
	buf = append(buf, StatusHeartbeat, h.Mode, h.BatteryPct, byte(h.RSSI+128))
	buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(h.Voltage))
	buf = binary.LittleEndian.AppendUint32(buf, h.FreeMemory)
	buf = append(buf, byte(len(name)))
	buf = append(buf, name...)
	return buf
}

// ParseHeartbeat decodes a heartbeat payload (the bytes after the
// discriminant).
func ParseHeartbeat(payload []byte) (Heartbeat, error) {
	if len(payload) < 12 {
		return Heartbeat{}, fmt.Errorf("heartbeat payload too short: %d bytes (minimum 12)", len(payload))
	}
	h := Heartbeat{
		Mode:       payload[0],
		BatteryPct: payload[1],
		RSSI:       int(payload[2]) - 128,
		Voltage:    math.Float32frombits(binary.LittleEndian.Uint32(payload[3:7])),
		FreeMemory: binary.LittleEndian.Uint32(payload[7:11]),
	}
	nameLen := int(payload[11])
	if len(payload) < 12+nameLen {
		return Heartbeat{}, fmt.Errorf("heartbeat strategy name truncated: declared %d, have %d", nameLen, len(payload)-12)
	}
	h.Strategy = string(payload[12 : 12+nameLen])
	return h, nil
}

// EncodeAnnounce builds the presence packet broadcast while
// provisioning: [0x13, mode, nameLen, name].
func EncodeAnnounce(mode byte, deviceName string) []byte {
	if len(deviceName) > 255 {
		deviceName = deviceName[:255]
	}
	buf := make([]byte, 0, 3+len(deviceName))
	buf = append(buf, StatusState, mode, byte(len(deviceName)))
	buf = append(buf, deviceName...)
	return buf
}

// ParseAnnounce decodes a broadcast announcement payload into
// (mode, name). The name is empty when the packet carries none.
// Unicast state replies carry mode-specific layouts instead; see
// ParseStatusReply and ParseUpdateStatus.
func ParseAnnounce(payload []byte) (byte, string, error) {
	if len(payload) < 1 {
		return 0, "", fmt.Errorf("state payload empty")
	}
	mode := payload[0]
	if len(payload) < 2 {
		return mode, "", nil
	}
	nameLen := int(payload[1])
	if len(payload) < 2+nameLen {
		return mode, "", fmt.Errorf("state name truncated: declared %d, have %d", nameLen, len(payload)-2)
	}
	return mode, string(payload[2 : 2+nameLen]), nil
}

// StatusReply is a decoded provisioning-mode status response.
type StatusReply struct {
	Mode            byte
	BatteryPct      uint8
	FirmwareVersion string
}

// ParseStatusReply decodes a provisioning-mode status payload:
// [mode, batteryPct, versionLen, version]. State payloads are
// mode-specific, so callers must dispatch on the mode byte first.
func ParseStatusReply(payload []byte) (StatusReply, error) {
	if len(payload) < 3 {
		return StatusReply{}, fmt.Errorf("status payload too short: %d bytes (minimum 3)", len(payload))
	}
	r := StatusReply{Mode: payload[0], BatteryPct: payload[1]}
	verLen := int(payload[2])
	if len(payload) < 3+verLen {
		return StatusReply{}, fmt.Errorf("firmware version truncated: declared %d, have %d", verLen, len(payload)-3)
	}
	r.FirmwareVersion = string(payload[3 : 3+verLen])
	return r, nil
}

// ParseUpdateStatus decodes an updating-mode status payload
// [mode, percent] into the transfer percentage.
func ParseUpdateStatus(payload []byte) (uint8, error) {
	if len(payload) < 2 {
		return 0, fmt.Errorf("update status payload too short: %d bytes (need 2)", len(payload))
	}
	return payload[1], nil
}

// EncodeProvisionAck is the unicast success reply to a provision
// command. The mode byte tells the controller which state the device
// will boot into.
func EncodeProvisionAck() []byte {
	return []byte{StatusState, ModeSearching}
}

// EncodeStatusReply builds the provisioning-mode status response:
// [0x13, mode, batteryPct, versionLen, version].
func EncodeStatusReply(mode byte, batteryPct uint8, firmwareVersion string) []byte {
	if len(firmwareVersion) > 255 {
		firmwareVersion = firmwareVersion[:255]
	}
	buf := make([]byte, 0, 4+len(firmwareVersion))
	buf = append(buf, StatusState, mode, batteryPct, byte(len(firmwareVersion)))
	buf = append(buf, firmwareVersion...)
	return buf
}

// EncodeUpdateStatus builds the updating-mode status response:
// [0x13, mode, percent].
func EncodeUpdateStatus(percent uint8) []byte {
	return []byte{StatusState, ModeUpdating, percent}
}

// Credentials is a parsed provision payload.
type Credentials struct {
	SSID     string
	Password string
}

// ParseProvision decodes a provision payload. Every length prefix is
// untrusted: a declared length over its bound or past the end of the
// payload is an error and the caller must ignore the packet.
func ParseProvision(payload []byte) (Credentials, error) {
	if len(payload) < 2 {
		return Credentials{}, fmt.Errorf("provision payload too short: %d bytes", len(payload))
	}

	ssidLen := int(payload[0])
	if ssidLen > MaxSSIDLen {
		return Credentials{}, fmt.Errorf("ssid length %d exceeds bound %d", ssidLen, MaxSSIDLen)
	}
	if len(payload) < ssidLen+2 {
		return Credentials{}, fmt.Errorf("payload shorter than declared ssid: %d bytes, need %d", len(payload), ssidLen+2)
	}
	ssid := payload[1 : 1+ssidLen]

	passLen := int(payload[1+ssidLen])
	if passLen > MaxPassLen {
		return Credentials{}, fmt.Errorf("password length %d exceeds bound %d", passLen, MaxPassLen)
	}
	if len(payload) < ssidLen+passLen+2 {
		return Credentials{}, fmt.Errorf("payload shorter than declared password: %d bytes, need %d", len(payload), ssidLen+passLen+2)
	}
	pass := payload[2+ssidLen : 2+ssidLen+passLen]

	return Credentials{SSID: string(ssid), Password: string(pass)}, nil
}

// EncodeProvision builds a provision command packet, discriminant
// included. It fails on out-of-bounds credential lengths so a
// controller cannot emit a packet the device would reject.
func EncodeProvision(ssid, password string) ([]byte, error) {
	if len(ssid) > MaxSSIDLen {
		return nil, fmt.Errorf("ssid length %d exceeds bound %d", len(ssid), MaxSSIDLen)
	}
	if len(password) > MaxPassLen {
		return nil, fmt.Errorf("password length %d exceeds bound %d", len(password), MaxPassLen)
	}
	buf := make([]byte, 0, 3+len(ssid)+len(password))
	buf = append(buf, CmdProvision, byte(len(ssid)))
	buf = append(buf, ssid...)
	buf = append(buf, byte(len(password)))
	buf = append(buf, password...)
	return buf, nil
}

// ParseSetColor decodes a set-color payload.
func ParseSetColor(payload []byte) (light.Color, error) {
	if len(payload) < 3 {
		return light.Color{}, fmt.Errorf("set-color payload too short: %d bytes (need 3)", len(payload))
	}
	return light.Color{R: payload[0], G: payload[1], B: payload[2]}, nil
}

// Mood is a parsed set-mood payload. Colors beyond the first are only
// present for the party mood and default to zero values otherwise.
type Mood struct {
	Type   byte
	Colors [3]light.Color
	// Extended is true when the payload carried all three colors.
	Extended bool
}

// ParseMood decodes a set-mood payload.
func ParseMood(payload []byte) (Mood, error) {
	if len(payload) < 4 {
		return Mood{}, fmt.Errorf("set-mood payload too short: %d bytes (need 4)", len(payload))
	}
	m := Mood{Type: payload[0]}
	m.Colors[0] = light.Color{R: payload[1], G: payload[2], B: payload[3]}
	if len(payload) >= 10 {
		m.Colors[1] = light.Color{R: payload[4], G: payload[5], B: payload[6]}
		m.Colors[2] = light.Color{R: payload[7], G: payload[8], B: payload[9]}
		m.Extended = true
	}
	return m, nil
}
