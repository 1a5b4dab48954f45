package light

// Frame is a preallocated per-pixel color buffer for one LED ring.
// Strategies render into a frame instead of allocating; the device core
// keeps exactly one frame alive.
type Frame []Color

// NewFrame creates a frame of n pixels, initialized to black (off).
func NewFrame(n int) Frame {
	return make(Frame, n)
}

// SetAll sets every pixel to c.
func (f Frame) SetAll(c Color) {
	for i := range f {
		f[i] = c
	}
}

// SetRange sets pixels in [start, end) to c. Out-of-range indexes are
// clipped.
func (f Frame) SetRange(start, end int, c Color) {
	if start < 0 {
		start = 0
	}
	if end > len(f) {
		end = len(f)
	}
	for i := start; i < end; i++ {
		f[i] = c
	}
}

// Clear turns every pixel off.
func (f Frame) Clear() {
	f.SetAll(Off)
}
