package protocol

import (
	"testing"

	"github.com/dokzlo13/luminad/internal/light"
)

func TestDecodeEmpty(t *testing.T) {
	if _, _, ok := Decode(nil); ok {
		t.Error("Decode(nil) ok = true, want false")
	}
	if _, _, ok := Decode([]byte{}); ok {
		t.Error("Decode(empty) ok = true, want false")
	}
}

func TestDecodeSplitsDiscriminant(t *testing.T) {
	kind, payload, ok := Decode([]byte{CmdSetColor, 10, 20, 30})
	if !ok {
		t.Fatal("Decode() ok = false")
	}
	if kind != CmdSetColor {
		t.Errorf("kind = 0x%02x, want 0x%02x", kind, CmdSetColor)
	}
	if len(payload) != 3 || payload[0] != 10 {
		t.Errorf("payload = %v, want [10 20 30]", payload)
	}

	// A bare discriminant is a valid packet with an empty payload.
	kind, payload, ok = Decode([]byte{CmdGetStatus})
	if !ok || kind != CmdGetStatus || len(payload) != 0 {
		t.Errorf("Decode(bare) = (0x%02x, %v, %v)", kind, payload, ok)
	}
}

func TestHeartbeatRoundtrip(t *testing.T) {
	h := Heartbeat{
		Mode:       ModeConnected,
		BatteryPct: 87,
		RSSI:       -55,
		Voltage:    3.91,
		FreeMemory: 48120,
		Strategy:   "Calm",
	}

	buf := h.Encode()
	if buf[0] != StatusHeartbeat {
		t.Fatalf("discriminant = 0x%02x, want 0x%02x", buf[0], StatusHeartbeat)
	}
	if buf[3] != byte(-55+128) {
		t.Errorf("rssi byte = %d, want %d", buf[3], -55+128)
	}

	got, err := ParseHeartbeat(buf[1:])
	if err != nil {
		t.Fatalf("ParseHeartbeat() error = %v", err)
	}
	if got != h {
		t.Errorf("roundtrip = %+v, want %+v", got, h)
	}
}

func TestParseHeartbeatTruncated(t *testing.T) {
	h := Heartbeat{Mode: ModeConnected, Strategy: "Party"}
	buf := h.Encode()

	for n := 1; n < len(buf); n++ {
		if _, err := ParseHeartbeat(buf[1:n]); err == nil {
			t.Errorf("ParseHeartbeat(%d bytes) error = nil, want error", n-1)
		}
	}
}

func TestParseProvision(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    Credentials
		wantErr bool
	}{
		{
			name:    "valid",
			payload: []byte{4, 'h', 'o', 'm', 'e', 6, 's', 'e', 'c', 'r', 'e', 't'},
			want:    Credentials{SSID: "home", Password: "secret"},
		},
		{
			name:    "empty_password",
			payload: []byte{2, 'a', 'b', 0},
			want:    Credentials{SSID: "ab"},
		},
		{
			name:    "empty_payload",
			payload: nil,
			wantErr: true,
		},
		{
			name:    "ssid_len_over_bound",
			payload: append([]byte{33}, make([]byte, 40)...),
			wantErr: true,
		},
		{
			name:    "ssid_len_past_end",
			payload: []byte{10, 'a', 'b'},
			wantErr: true,
		},
		{
			name:    "pass_len_over_bound",
			payload: append([]byte{1, 'x', 65}, make([]byte, 70)...),
			wantErr: true,
		},
		{
			name:    "pass_len_past_end",
			payload: []byte{1, 'x', 8, 'a', 'b'},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseProvision(tt.payload)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseProvision() error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseProvision() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseProvision() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestProvisionEncodeParseRoundtrip(t *testing.T) {
	buf, err := EncodeProvision("lab-wifi", "hunter2hunter2")
	if err != nil {
		t.Fatalf("EncodeProvision() error = %v", err)
	}
	kind, payload, ok := Decode(buf)
	if !ok || kind != CmdProvision {
		t.Fatalf("Decode() = (0x%02x, _, %v)", kind, ok)
	}
	creds, err := ParseProvision(payload)
	if err != nil {
		t.Fatalf("ParseProvision() error = %v", err)
	}
	if creds.SSID != "lab-wifi" || creds.Password != "hunter2hunter2" {
		t.Errorf("roundtrip = %+v", creds)
	}
}

func TestEncodeProvisionBounds(t *testing.T) {
	long := make([]byte, 33)
	if _, err := EncodeProvision(string(long), "pw"); err == nil {
		t.Error("EncodeProvision(33-byte ssid) error = nil, want error")
	}
	if _, err := EncodeProvision("ok", string(make([]byte, 65))); err == nil {
		t.Error("EncodeProvision(65-byte password) error = nil, want error")
	}
}

func TestParseMood(t *testing.T) {
	m, err := ParseMood([]byte{MoodParty, 1, 2, 3, 4, 5, 6, 7, 8, 9})
	if err != nil {
		t.Fatalf("ParseMood() error = %v", err)
	}
	if !m.Extended {
		t.Error("Extended = false, want true for 10-byte payload")
	}
	if m.Colors[2] != (light.Color{R: 7, G: 8, B: 9}) {
		t.Errorf("Colors[2] = %v", m.Colors[2])
	}

	m, err = ParseMood([]byte{MoodCalm, 9, 8, 7})
	if err != nil {
		t.Fatalf("ParseMood() error = %v", err)
	}
	if m.Extended {
		t.Error("Extended = true, want false for 4-byte payload")
	}
	if m.Colors[0] != (light.Color{R: 9, G: 8, B: 7}) {
		t.Errorf("Colors[0] = %v", m.Colors[0])
	}

	if _, err := ParseMood([]byte{MoodCalm, 9, 8}); err == nil {
		t.Error("ParseMood(short) error = nil, want error")
	}
}

func TestAnnounceRoundtrip(t *testing.T) {
	buf := EncodeAnnounce(ModeProvisioning, "Lumina")
	kind, payload, ok := Decode(buf)
	if !ok || kind != StatusState {
		t.Fatalf("Decode() = (0x%02x, _, %v)", kind, ok)
	}
	mode, name, err := ParseAnnounce(payload)
	if err != nil {
		t.Fatalf("ParseAnnounce() error = %v", err)
	}
	if mode != ModeProvisioning || name != "Lumina" {
		t.Errorf("ParseAnnounce() = (0x%02x, %q)", mode, name)
	}
}

func TestEncodeUpdateStatus(t *testing.T) {
	buf := EncodeUpdateStatus(42)
	want := []byte{StatusState, ModeUpdating, 42}
	if len(buf) != 3 || buf[0] != want[0] || buf[1] != want[1] || buf[2] != want[2] {
		t.Errorf("EncodeUpdateStatus(42) = %v, want %v", buf, want)
	}
}

func TestStatusReplyRoundtrip(t *testing.T) {
	buf := EncodeStatusReply(ModeProvisioning, 50, "1.0.0")
	kind, payload, ok := Decode(buf)
	if !ok || kind != StatusState {
		t.Fatalf("Decode() = (0x%02x, _, %v)", kind, ok)
	}
	r, err := ParseStatusReply(payload)
	if err != nil {
		t.Fatalf("ParseStatusReply() error = %v", err)
	}
	want := StatusReply{Mode: ModeProvisioning, BatteryPct: 50, FirmwareVersion: "1.0.0"}
	if r != want {
		t.Errorf("ParseStatusReply() = %+v, want %+v", r, want)
	}
}

func TestParseStatusReplyTruncated(t *testing.T) {
	if _, err := ParseStatusReply([]byte{ModeProvisioning, 50}); err == nil {
		t.Error("ParseStatusReply(2 bytes) error = nil, want error")
	}
	// Declared version length past the end of the payload.
	if _, err := ParseStatusReply([]byte{ModeProvisioning, 50, 10, '1'}); err == nil {
		t.Error("ParseStatusReply(truncated version) error = nil, want error")
	}
}

func TestParseUpdateStatus(t *testing.T) {
	_, payload, ok := Decode(EncodeUpdateStatus(42))
	if !ok {
		t.Fatal("Decode() ok = false")
	}
	percent, err := ParseUpdateStatus(payload)
	if err != nil {
		t.Fatalf("ParseUpdateStatus() error = %v", err)
	}
	if percent != 42 {
		t.Errorf("percent = %d, want 42", percent)
	}

	if _, err := ParseUpdateStatus([]byte{ModeUpdating}); err == nil {
		t.Error("ParseUpdateStatus(1 byte) error = nil, want error")
	}
}
