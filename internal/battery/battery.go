// Package battery reads the pack voltage. On Linux the kernel exposes
// it through the power_supply class; headless or mains-powered setups
// use a fixed reading instead.
package battery

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Sysfs samples voltage_now from a power_supply directory such as
// /sys/class/power_supply/BAT0. Readings are smoothed with a small
// rolling average since the ADC output jitters.
type Sysfs struct {
	path string

	samples [4]float64
	filled  int
	next    int
}

// NewSysfs validates the power-supply directory and takes a first
// sample.
func NewSysfs(path string) (*Sysfs, error) {
	s := &Sysfs{path: path}
	if _, err := s.sample(); err != nil {
		return nil, fmt.Errorf("failed to probe power supply %s: %w", path, err)
	}
	return s, nil
}

// Voltage returns the smoothed pack voltage in volts.
func (s *Sysfs) Voltage() (float64, error) {
	v, err := s.sample()
	if err != nil {
		return 0, err
	}

	s.samples[s.next] = v
	s.next = (s.next + 1) % len(s.samples)
	if s.filled < len(s.samples) {
		s.filled++
	}

	var sum float64
	for i := 0; i < s.filled; i++ {
		sum += s.samples[i]
	}
	return sum / float64(s.filled), nil
}

// sample reads voltage_now, which the kernel reports in microvolts.
func (s *Sysfs) sample() (float64, error) {
	raw, err := os.ReadFile(filepath.Join(s.path, "voltage_now"))
	if err != nil {
		return 0, fmt.Errorf("failed to read voltage: %w", err)
	}
	uv, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse voltage %q: %w", strings.TrimSpace(string(raw)), err)
	}
	return float64(uv) / 1e6, nil
}

// Fixed always reports the same voltage.
type Fixed struct {
	V float64
}

// NewFixed returns a battery stuck at v volts.
func NewFixed(v float64) *Fixed {
	return &Fixed{V: v}
}

// Voltage returns the configured voltage.
func (f *Fixed) Voltage() (float64, error) {
	return f.V, nil
}
