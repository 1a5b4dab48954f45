package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dokzlo13/luminad/internal/discovery"
	"github.com/dokzlo13/luminad/internal/light"
	"github.com/dokzlo13/luminad/internal/ota"
	"github.com/dokzlo13/luminad/internal/protocol"
)

var (
	deviceIP     string
	devicePort   int
	scanTimeout  int
	replyTimeout int
	moodColors   string
	otaPort      int
	otaPassword  string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&deviceIP, "device", "", "Lamp IP address (skips discovery)")
	rootCmd.PersistentFlags().IntVar(&devicePort, "port", 4210, "Lamp UDP command port")
	rootCmd.PersistentFlags().IntVar(&replyTimeout, "timeout", 3, "Reply timeout in seconds")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(colorCmd)
	rootCmd.AddCommand(moodCmd)
	rootCmd.AddCommand(brightnessCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(provisionCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(watchCmd)
}

// target resolves the lamp address from --device or mDNS discovery.
func target() (*net.UDPAddr, error) {
	if deviceIP != "" {
		ip := net.ParseIP(deviceIP)
		if ip == nil {
			return nil, fmt.Errorf("invalid device address %q", deviceIP)
		}
		return &net.UDPAddr{IP: ip, Port: devicePort}, nil
	}

	fmt.Println("Discovering lamps...")
	lamps, err := discovery.Scan(context.Background(), discovery.DefaultScanTimeout)
	if err != nil {
		return nil, fmt.Errorf("discovery failed: %w", err)
	}
	if len(lamps) == 0 {
		return nil, fmt.Errorf("no lamps found; use --device to address one directly")
	}
	lamp := lamps[0]
	fmt.Printf("Using %s at %s (mode: %s)\n", lamp.Name, lamp.Addr(), lamp.Mode)
	return &net.UDPAddr{IP: net.ParseIP(lamp.IP), Port: lamp.Port}, nil
}

// send delivers one command datagram.
func send(packet []byte) error {
	to, err := target()
	if err != nil {
		return err
	}
	conn, err := net.DialUDP("udp4", nil, to)
	if err != nil {
		return fmt.Errorf("failed to reach lamp: %w", err)
	}
	defer conn.Close()
	if _, err := conn.Write(packet); err != nil {
		return fmt.Errorf("failed to send command: %w", err)
	}
	return nil
}

// transact sends one command and waits for a unicast reply.
func transact(packet []byte) ([]byte, error) {
	to, err := target()
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp4", nil, to)
	if err != nil {
		return nil, fmt.Errorf("failed to reach lamp: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Write(packet); err != nil {
		return nil, fmt.Errorf("failed to send command: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(time.Duration(replyTimeout) * time.Second))
	buf := make([]byte, 256)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("no reply from lamp: %w", err)
	}
	return buf[:n], nil
}

func parseChannel(arg string) (uint8, error) {
	v, err := strconv.Atoi(arg)
	if err != nil || v < 0 || v > 255 {
		return 0, fmt.Errorf("value %q is not in 0..255", arg)
	}
	return uint8(v), nil
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for lamps on the network",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Scanning for lamps (timeout: %ds)...\n\n", scanTimeout)

		lamps, err := discovery.Scan(context.Background(), time.Duration(scanTimeout)*time.Second)
		if err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}
		if len(lamps) == 0 {
			fmt.Println("No lamps found.")
			fmt.Println("\nA lamp in setup mode hosts its own network; connect to it first.")
			return nil
		}

		fmt.Printf("Found %d lamp(s):\n\n", len(lamps))
		for i, lamp := range lamps {
			fmt.Printf("%d. %s\n", i+1, lamp.Name)
			fmt.Printf("   Address:  %s\n", lamp.Addr())
			fmt.Printf("   Mode:     %s\n", lamp.Mode)
			fmt.Printf("   Version:  %s\n", lamp.Version)
			fmt.Printf("   DeviceID: %s\n", lamp.DeviceID)
			fmt.Println()
		}
		return nil
	},
}

func init() {
	scanCmd.Flags().IntVar(&scanTimeout, "timeout", 5, "Scan timeout in seconds")
}

var colorCmd = &cobra.Command{
	Use:   "color <r> <g> <b>",
	Short: "Set a solid color",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		var rgb [3]uint8
		for i, arg := range args {
			v, err := parseChannel(arg)
			if err != nil {
				return err
			}
			rgb[i] = v
		}
		return send([]byte{protocol.CmdSetColor, rgb[0], rgb[1], rgb[2]})
	},
}

var moodCmd = &cobra.Command{
	Use:   "mood <calm|focus|party>",
	Short: "Set a lighting mood",
	Long: `Set one of the lamp's animated moods.

Calm and focus take one color; party takes up to three. Colors are
given with --colors as comma-separated r,g,b triplets and default to
the lamp's stock palette.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var moodType byte
		switch strings.ToLower(args[0]) {
		case "calm":
			moodType = protocol.MoodCalm
		case "focus":
			moodType = protocol.MoodFocus
		case "party":
			moodType = protocol.MoodParty
		default:
			return fmt.Errorf("unknown mood %q (want calm, focus or party)", args[0])
		}

		colors, err := parseMoodColors(moodColors)
		if err != nil {
			return err
		}

		packet := []byte{protocol.CmdSetMood, moodType}
		packet = append(packet, colors[0].R, colors[0].G, colors[0].B)
		if moodType == protocol.MoodParty && len(colors) == 3 {
			packet = append(packet,
				colors[1].R, colors[1].G, colors[1].B,
				colors[2].R, colors[2].G, colors[2].B)
		}
		return send(packet)
	},
}

func init() {
	moodCmd.Flags().StringVar(&moodColors, "colors", "", "Comma-separated r,g,b values (3, 6 or 9 numbers)")
}

// parseMoodColors parses --colors into 1..3 colors, defaulting to the
// lamp's stock palette when unset.
func parseMoodColors(s string) ([]light.Color, error) {
	if s == "" {
		return []light.Color{light.Connected}, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 3 && len(parts) != 6 && len(parts) != 9 {
		return nil, fmt.Errorf("--colors wants 3, 6 or 9 numbers, got %d", len(parts))
	}
	values := make([]uint8, len(parts))
	for i, part := range parts {
		v, err := parseChannel(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	colors := make([]light.Color, 0, 3)
	for i := 0; i+3 <= len(values); i += 3 {
		colors = append(colors, light.Color{R: values[i], G: values[i+1], B: values[i+2]})
	}
	return colors, nil
}

var brightnessCmd = &cobra.Command{
	Use:   "brightness <level>",
	Short: "Set the global brightness (0-255)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := parseChannel(args[0])
		if err != nil {
			return err
		}
		return send([]byte{protocol.CmdSetBrightness, level})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query the lamp's status",
	RunE: func(cmd *cobra.Command, args []string) error {
		reply, err := transact([]byte{protocol.CmdGetStatus})
		if err != nil {
			return err
		}
		printReply(reply)
		return nil
	},
}

var provisionCmd = &cobra.Command{
	Use:   "provision <ssid> <password>",
	Short: "Send network credentials to a lamp in setup mode",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		packet, err := protocol.EncodeProvision(args[0], args[1])
		if err != nil {
			return err
		}
		reply, err := transact(packet)
		if err != nil {
			return err
		}
		if len(reply) >= 1 && reply[0] == protocol.StatusState {
			fmt.Println("Credentials accepted; the lamp is rebooting to join the network.")
			return nil
		}
		return fmt.Errorf("unexpected reply %v", reply)
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Factory-reset the lamp (clears saved credentials)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := send([]byte{protocol.CmdReset}); err != nil {
			return err
		}
		fmt.Println("Reset sent; the lamp will reboot into setup mode.")
		return nil
	},
}

var updateCmd = &cobra.Command{
	Use:   "update <image-file>",
	Short: "Push a firmware image to the lamp",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		image, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read image: %w", err)
		}

		// Ask the lamp to arm its update receiver first.
		if err := send([]byte{protocol.CmdOTAStart}); err != nil {
			return err
		}
		fmt.Println("Update mode requested, waiting for the lamp to arm...")
		time.Sleep(time.Second)

		to, err := target()
		if err != nil {
			return err
		}
		addr := fmt.Sprintf("%s:%d", to.IP, otaPort)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		fmt.Printf("Pushing %d bytes to %s...\n", len(image), addr)
		if err := ota.Push(ctx, addr, otaPassword, image); err != nil {
			return err
		}
		fmt.Println("Image staged; the lamp is rebooting into the new firmware.")
		return nil
	},
}

func init() {
	updateCmd.Flags().IntVar(&otaPort, "ota-port", 8266, "Lamp update TCP port")
	updateCmd.Flags().StringVar(&otaPassword, "password", "", "Update password")
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print status broadcasts from lamps on this network",
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: devicePort})
		if err != nil {
			return fmt.Errorf("failed to listen on port %d: %w", devicePort, err)
		}
		defer conn.Close()

		fmt.Printf("Listening for lamp broadcasts on port %d (ctrl-c to stop)...\n", devicePort)
		buf := make([]byte, 512)
		for {
			n, from, err := conn.ReadFromUDP(buf)
			if err != nil {
				return err
			}
			fmt.Printf("[%s] %s: ", time.Now().Format("15:04:05"), from.IP)
			printStatus(buf[:n])
		}
	},
}

// printStatus decodes and prints one broadcast status packet. State
// broadcasts carry the announce layout.
func printStatus(packet []byte) {
	kind, payload, ok := protocol.Decode(packet)
	if !ok {
		fmt.Println("empty packet")
		return
	}
	switch kind {
	case protocol.StatusHeartbeat:
		printHeartbeat(payload)
	case protocol.StatusState:
		mode, name, err := protocol.ParseAnnounce(payload)
		if err != nil {
			fmt.Printf("malformed state packet: %v\n", err)
			return
		}
		if name != "" {
			fmt.Printf("state mode=%s device=%s\n", protocol.ModeName(mode), name)
		} else {
			fmt.Printf("state mode=%s\n", protocol.ModeName(mode))
		}
	default:
		fmt.Printf("packet 0x%02x payload=%v\n", kind, payload)
	}
}

// printReply decodes and prints one unicast reply. State replies are
// mode-specific: a provisioning lamp reports battery and firmware
// version, an updating lamp reports transfer progress.
func printReply(packet []byte) {
	kind, payload, ok := protocol.Decode(packet)
	if !ok {
		fmt.Println("empty packet")
		return
	}
	switch kind {
	case protocol.StatusHeartbeat:
		printHeartbeat(payload)
	case protocol.StatusState:
		if len(payload) == 0 {
			fmt.Println("malformed state reply: empty payload")
			return
		}
		switch payload[0] {
		case protocol.ModeProvisioning:
			r, err := protocol.ParseStatusReply(payload)
			if err != nil {
				fmt.Printf("malformed state reply: %v\n", err)
				return
			}
			fmt.Printf("state mode=%s battery=%d%% version=%s\n",
				protocol.ModeName(r.Mode), r.BatteryPct, r.FirmwareVersion)
		case protocol.ModeUpdating:
			percent, err := protocol.ParseUpdateStatus(payload)
			if err != nil {
				fmt.Printf("malformed state reply: %v\n", err)
				return
			}
			fmt.Printf("state mode=%s progress=%d%%\n",
				protocol.ModeName(protocol.ModeUpdating), percent)
		default:
			fmt.Printf("state mode=%s\n", protocol.ModeName(payload[0]))
		}
	default:
		fmt.Printf("packet 0x%02x payload=%v\n", kind, payload)
	}
}

func printHeartbeat(payload []byte) {
	hb, err := protocol.ParseHeartbeat(payload)
	if err != nil {
		fmt.Printf("malformed heartbeat: %v\n", err)
		return
	}
	fmt.Printf("heartbeat mode=%s battery=%d%% (%.2fV) rssi=%ddBm strategy=%s freeMem=%d\n",
		protocol.ModeName(hb.Mode), hb.BatteryPct, hb.Voltage, hb.RSSI, hb.Strategy, hb.FreeMemory)
}
