// Luminactl is the operator CLI for Lumina smart lamps.
//
// It discovers lamps over mDNS, sends control commands over the UDP
// protocol (colors, moods, brightness, status), provisions network
// credentials to a lamp in setup mode and pushes firmware updates.
//
// See 'luminactl --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "luminactl",
	Short: "Lumina smart lamp control utility",
	Long: `Control Lumina smart lamps on the local network.

Lamps are discovered over mDNS, or addressed directly with --device.
All control traffic uses the lamp's UDP command protocol; firmware
updates use the lamp's TCP update channel.`,
	Example: `  # Find lamps on the network
  luminactl scan

  # Set a solid color
  luminactl color 255 120 0

  # Start the party mood with three colors
  luminactl mood party --colors 255,0,0,0,255,0,0,0,255

  # Provision a lamp in setup mode
  luminactl provision "HomeNet" "wifi-password"

  # Push a firmware image
  luminactl update firmware.bin --password lumina-ota-2026`,
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
