// Package ledserial drives an LED ring behind a serial-attached
// microcontroller. The wire protocol is a tiny framed codec: one type
// byte, a type-specific body and a CRC32 trailer.
package ledserial

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
)

// Endianness of all multi-byte fields.
var Endianness = binary.LittleEndian

// PacketType discriminates host-to-controller frames.
type PacketType uint8

const (
	TypeInit PacketType = iota
	TypeClear
	TypeSet
)

// String returns a readable packet type name.
func (t PacketType) String() string {
	switch t {
	case TypeInit:
		return "init"
	case TypeClear:
		return "clear"
	case TypeSet:
		return "set"
	default:
		return fmt.Sprintf("PacketType(%d)", t)
	}
}

// Packet is one host-to-controller frame.
type Packet interface {
	// Type returns the frame discriminant.
	Type() PacketType
}

// InitPacket tells the controller how many pixels to drive. It must be
// the first frame after opening the port.
type InitPacket struct {
	NumLEDs uint16
}

// ClearPacket blanks the whole strip.
type ClearPacket struct{}

// SetPacket replaces every pixel. Pix holds packed RGB triplets, three
// bytes per pixel, and its length must match the initialized count.
type SetPacket struct {
	Pix []uint8
}

func (p InitPacket) Type() PacketType  { return TypeInit }
func (p ClearPacket) Type() PacketType { return TypeClear }
func (p SetPacket) Type() PacketType   { return TypeSet }

// WritePacket frames and writes one packet.
func WritePacket(w io.Writer, p Packet) error {
	hash := crc32.NewIEEE()
	w = io.MultiWriter(w, hash)

	if err := binary.Write(w, Endianness, p.Type()); err != nil {
		return fmt.Errorf("failed to write packet type: %w", err)
	}

	switch p := p.(type) {
	case InitPacket:
		if err := binary.Write(w, Endianness, p.NumLEDs); err != nil {
			return fmt.Errorf("failed to write led count: %w", err)
		}
	case ClearPacket:
		// Type byte only.
	case SetPacket:
		if _, err := w.Write(p.Pix); err != nil {
			return fmt.Errorf("failed to write pixel data: %w", err)
		}
	default:
		return fmt.Errorf("unknown packet type: %T", p)
	}

	if err := binary.Write(w, Endianness, hash.Sum32()); err != nil {
		return fmt.Errorf("failed to write checksum: %w", err)
	}
	return nil
}

// ReadContext carries the strip geometry a reader needs to size
// variable-length frames.
type ReadContext struct {
	NumLEDs uint16
}

// ReadPacket reads and verifies one framed packet. It exists for the
// controller side of the protocol and for tests.
func ReadPacket(r io.Reader, rctx ReadContext) (Packet, error) {
	hash := crc32.NewIEEE()
	r = io.TeeReader(r, hash)

	var ptypeBuf [1]byte
	if _, err := io.ReadFull(r, ptypeBuf[:]); err != nil {
		return nil, fmt.Errorf("failed to read packet type: %w", err)
	}

	var packet Packet
	switch ptype := PacketType(ptypeBuf[0]); ptype {
	case TypeInit:
		var p InitPacket
		if err := binary.Read(r, Endianness, &p.NumLEDs); err != nil {
			return nil, fmt.Errorf("failed to read led count: %w", err)
		}
		packet = p
	case TypeClear:
		packet = ClearPacket{}
	case TypeSet:
		p := SetPacket{Pix: make([]uint8, 3*rctx.NumLEDs)}
		if _, err := io.ReadFull(r, p.Pix); err != nil {
			return nil, fmt.Errorf("failed to read pixel data: %w", err)
		}
		packet = p
	default:
		return nil, fmt.Errorf("unknown packet type: %s", ptype)
	}

	sum := hash.Sum32()
	var checksum uint32
	if err := binary.Read(r, Endianness, &checksum); err != nil {
		return nil, fmt.Errorf("failed to read checksum: %w", err)
	}
	if checksum != sum {
		return nil, fmt.Errorf("checksum mismatch: got %08x, want %08x", checksum, sum)
	}
	return packet, nil
}
