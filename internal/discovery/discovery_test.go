package discovery

import (
	"net"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
)

func TestParseServiceEntry(t *testing.T) {
	tests := []struct {
		name  string
		entry *zeroconf.ServiceEntry
		want  Lamp
		ok    bool
	}{
		{
			name: "full entry",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "Lumina"},
				AddrIPv4:      []net.IP{net.IPv4(192, 168, 1, 50)},
				Port:          4210,
				Text: []string{
					"mode=Connected",
					"version=1.0.0",
					"device_id=abc-123",
				},
			},
			want: Lamp{
				Name:     "Lumina",
				IP:       "192.168.1.50",
				Port:     4210,
				Mode:     "Connected",
				Version:  "1.0.0",
				DeviceID: "abc-123",
			},
			ok: true,
		},
		{
			name: "no address",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "Lumina"},
				Port:          4210,
			},
			ok: false,
		},
		{
			name: "malformed txt ignored",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "Lumina"},
				AddrIPv4:      []net.IP{net.IPv4(10, 0, 0, 2)},
				Port:          4210,
				Text:          []string{"garbage", "mode=Provisioning"},
			},
			want: Lamp{Name: "Lumina", IP: "10.0.0.2", Port: 4210, Mode: "Provisioning"},
			ok:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseServiceEntry(tt.entry)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("lamp = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestCollectStopsWhenEntriesClose(t *testing.T) {
	entries := make(chan *zeroconf.ServiceEntry)
	collected := collect(entries)

	entries <- &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{Instance: "Lumina"},
		AddrIPv4:      []net.IP{net.IPv4(192, 168, 1, 50)},
		Port:          4210,
	}
	close(entries)

	select {
	case lamps := <-collected:
		if len(lamps) != 1 || lamps[0].Name != "Lumina" {
			t.Errorf("lamps = %+v, want one entry named Lumina", lamps)
		}
	case <-time.After(time.Second):
		t.Fatal("collector did not finish after the channel closed")
	}
}

func TestLampAddr(t *testing.T) {
	l := Lamp{IP: "192.168.1.50", Port: 4210}
	if got := l.Addr(); got != "192.168.1.50:4210" {
		t.Errorf("Addr = %q", got)
	}
}
