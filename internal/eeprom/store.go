// Package eeprom implements the lamp's persistent credential store: a
// fixed 512-byte region with explicit commit semantics, mirroring the
// EEPROM layout of the original hardware so stored credentials remain
// compatible across firmware generations.
package eeprom

import "fmt"

// Size is the total byte size of the persistent region.
const Size = 512

// Region layout. Fixed addresses, not a serialization format.
const (
	magicValid   = 0xA5 // marker at addrMagic when the region holds credentials
	addrMagic    = 0
	addrSSIDLen  = 1
	addrSSID     = 2
	addrPassLen  = 34
	addrPass     = 35
	maxSSIDLen   = 32
	maxPassLen   = 64
)

// Store is a byte-range persistent store. Writes are staged until
// Commit; a failed commit leaves the persisted content unchanged.
type Store interface {
	Read(offset int, dst []byte) error
	Write(offset int, src []byte) error
	Commit() error
}

// Credentials are the persisted network name and secret.
type Credentials struct {
	SSID     string
	Password string
}

// SaveCredentials validates, writes and commits credentials. On a
// length bound violation nothing is written.
func SaveCredentials(s Store, c Credentials) error {
	if len(c.SSID) > maxSSIDLen {
		return fmt.Errorf("ssid length %d exceeds bound %d", len(c.SSID), maxSSIDLen)
	}
	if len(c.Password) > maxPassLen {
		return fmt.Errorf("password length %d exceeds bound %d", len(c.Password), maxPassLen)
	}

	if err := s.Write(addrMagic, []byte{magicValid}); err != nil {
		return fmt.Errorf("failed to write validity marker: %w", err)
	}
	if err := s.Write(addrSSIDLen, []byte{byte(len(c.SSID))}); err != nil {
		return fmt.Errorf("failed to write ssid length: %w", err)
	}
	if err := s.Write(addrSSID, []byte(c.SSID)); err != nil {
		return fmt.Errorf("failed to write ssid: %w", err)
	}
	if err := s.Write(addrPassLen, []byte{byte(len(c.Password))}); err != nil {
		return fmt.Errorf("failed to write password length: %w", err)
	}
	if err := s.Write(addrPass, []byte(c.Password)); err != nil {
		return fmt.Errorf("failed to write password: %w", err)
	}

	if err := s.Commit(); err != nil {
		return fmt.Errorf("failed to commit credentials: %w", err)
	}
	return nil
}

// LoadCredentials reads persisted credentials. ok is false when the
// validity marker is missing or a persisted length exceeds its bound;
// the region content is then untrusted and ignored.
func LoadCredentials(s Store) (c Credentials, ok bool, err error) {
	var b [1]byte

	if err := s.Read(addrMagic, b[:]); err != nil {
		return Credentials{}, false, fmt.Errorf("failed to read validity marker: %w", err)
	}
	if b[0] != magicValid {
		return Credentials{}, false, nil
	}

	if err := s.Read(addrSSIDLen, b[:]); err != nil {
		return Credentials{}, false, fmt.Errorf("failed to read ssid length: %w", err)
	}
	ssidLen := int(b[0])
	if ssidLen > maxSSIDLen {
		return Credentials{}, false, nil
	}
	ssid := make([]byte, ssidLen)
	if err := s.Read(addrSSID, ssid); err != nil {
		return Credentials{}, false, fmt.Errorf("failed to read ssid: %w", err)
	}

	if err := s.Read(addrPassLen, b[:]); err != nil {
		return Credentials{}, false, fmt.Errorf("failed to read password length: %w", err)
	}
	passLen := int(b[0])
	if passLen > maxPassLen {
		return Credentials{}, false, nil
	}
	pass := make([]byte, passLen)
	if err := s.Read(addrPass, pass); err != nil {
		return Credentials{}, false, fmt.Errorf("failed to read password: %w", err)
	}

	return Credentials{SSID: string(ssid), Password: string(pass)}, true, nil
}

// ClearCredentials invalidates the marker only. Payload bytes remain
// but are no longer trusted by LoadCredentials.
func ClearCredentials(s Store) error {
	if err := s.Write(addrMagic, []byte{0x00}); err != nil {
		return fmt.Errorf("failed to clear validity marker: %w", err)
	}
	if err := s.Commit(); err != nil {
		return fmt.Errorf("failed to commit clear: %w", err)
	}
	return nil
}

// checkRange validates a read or write span against the region bounds.
func checkRange(offset, n int) error {
	if offset < 0 || n < 0 || offset+n > Size {
		return fmt.Errorf("range [%d, %d) outside region of %d bytes", offset, offset+n, Size)
	}
	return nil
}
