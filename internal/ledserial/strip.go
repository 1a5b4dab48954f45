package ledserial

import (
	"fmt"
	"io"

	"go.bug.st/serial"

	"github.com/dokzlo13/luminad/internal/light"
)

// Strip is an LED ring behind the serial framing protocol. SetPixel
// and friends only touch the local buffer; Show pushes one full frame
// to the controller. Brightness scales at push time so the buffer
// keeps the unscaled colors.
type Strip struct {
	rw     io.ReadWriteCloser
	pixels []light.Color
	level  uint8
	pix    []uint8 // reused Show scratch
}

// Open opens the serial device and initializes the controller for
// count pixels.
func Open(device string, baud, count int) (*Strip, error) {
	port, err := serial.Open(device, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", device, err)
	}
	s, err := NewStrip(port, count)
	if err != nil {
		port.Close()
		return nil, err
	}
	return s, nil
}

// NewStrip wraps an already-open transport. It sends the init frame
// immediately.
func NewStrip(rw io.ReadWriteCloser, count int) (*Strip, error) {
	if count <= 0 || count > 0xFFFF {
		return nil, fmt.Errorf("invalid led count %d", count)
	}
	s := &Strip{
		rw:     rw,
		pixels: make([]light.Color, count),
		level:  255,
		pix:    make([]uint8, 3*count),
	}
	if err := WritePacket(rw, InitPacket{NumLEDs: uint16(count)}); err != nil {
		return nil, fmt.Errorf("failed to initialize strip: %w", err)
	}
	return s, nil
}

// Count returns the number of pixels.
func (s *Strip) Count() int {
	return len(s.pixels)
}

// SetPixel stages one pixel. Out-of-range indexes are ignored.
func (s *Strip) SetPixel(i int, c light.Color) {
	if i < 0 || i >= len(s.pixels) {
		return
	}
	s.pixels[i] = c
}

// SetAll stages the same color on every pixel.
func (s *Strip) SetAll(c light.Color) {
	for i := range s.pixels {
		s.pixels[i] = c
	}
}

// Clear stages black on every pixel.
func (s *Strip) Clear() {
	s.SetAll(light.Color{})
}

// SetBrightness sets the global brightness applied at Show.
func (s *Strip) SetBrightness(level uint8) {
	s.level = level
}

// Show pushes the staged frame to the controller.
func (s *Strip) Show() error {
	factor := float64(s.level) / 255
	for i, c := range s.pixels {
		scaled := c.Scale(factor)
		s.pix[3*i] = scaled.R
		s.pix[3*i+1] = scaled.G
		s.pix[3*i+2] = scaled.B
	}
	if err := WritePacket(s.rw, SetPacket{Pix: s.pix}); err != nil {
		return fmt.Errorf("failed to push frame: %w", err)
	}
	return nil
}

// Close blanks the strip and releases the transport.
func (s *Strip) Close() error {
	if err := WritePacket(s.rw, ClearPacket{}); err != nil {
		s.rw.Close()
		return fmt.Errorf("failed to clear strip on close: %w", err)
	}
	return s.rw.Close()
}

// Null is a strip that renders nowhere, for running headless.
type Null struct {
	count int
}

// NewNull returns a no-op strip with the given pixel count.
func NewNull(count int) *Null {
	return &Null{count: count}
}

func (n *Null) Count() int                { return n.count }
func (n *Null) SetPixel(int, light.Color) {}
func (n *Null) SetAll(light.Color)        {}
func (n *Null) Clear()                    {}
func (n *Null) SetBrightness(uint8)       {}
func (n *Null) Show() error               { return nil }
func (n *Null) Close() error              { return nil }
