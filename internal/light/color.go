// Package light provides the color model and the lighting strategies
// rendered on the lamp's LED ring.
package light

// Color is a single RGB color. It is a pure value type.
type Color struct {
	R, G, B uint8
}

// To32Bit packs the color into the 0x00RRGGBB form used by LED drivers.
func (c Color) To32Bit() uint32 {
	return uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)
}

// Scale multiplies every channel by factor, clamped to [0, 1].
func (c Color) Scale(factor float64) Color {
	if factor < 0 {
		factor = 0
	}
	if factor > 1 {
		factor = 1
	}
	return Color{
		R: uint8(float64(c.R) * factor),
		G: uint8(float64(c.G) * factor),
		B: uint8(float64(c.B) * factor),
	}
}

// Palette used by the device states. Values are carried over from the
// lamp's original firmware for visual compatibility.
var (
	Off          = Color{}
	Searching    = Color{R: 0, G: 50, B: 255}   // blue pulse
	Provisioning = Color{R: 255, G: 165, B: 0}  // orange
	Connected    = Color{R: 0, G: 255, B: 0}    // green
	Updating     = Color{R: 255, G: 255, B: 0}  // yellow
	ErrorColor   = Color{R: 255, G: 0, B: 0}    // red
	LowBattery   = Color{R: 255, G: 100, B: 0}  // orange-red
)
