package ota

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

// Push uploads a firmware image to a receiver at addr. It blocks until
// the receiver acknowledges the staged image or the context ends.
func Push(ctx context.Context, addr, password string, image []byte) error {
	if len(password) > 64 {
		return fmt.Errorf("password longer than 64 bytes")
	}
	if len(image) == 0 || len(image) > maxImageSize {
		return fmt.Errorf("invalid image size %d", len(image))
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp4", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	header := make([]byte, 0, headerSize)
	header = append(header, magic[:]...)
	header = append(header, protocolVersion, byte(len(password)))
	var pass [64]byte
	copy(pass[:], password)
	header = append(header, pass[:]...)
	header = binary.LittleEndian.AppendUint32(header, uint32(len(image)))
	digest := sha256.Sum256(image)
	header = append(header, digest[:]...)

	if _, err := conn.Write(header); err != nil {
		return fmt.Errorf("failed to send handshake: %w", err)
	}

	var ack [1]byte
	if _, err := io.ReadFull(conn, ack[:]); err != nil {
		return fmt.Errorf("failed to read handshake reply: %w", err)
	}
	if ack[0] != ackOK {
		return fmt.Errorf("receiver rejected the update (wrong password?)")
	}

	if _, err := conn.Write(image); err != nil {
		return fmt.Errorf("failed to send image: %w", err)
	}
	if _, err := io.ReadFull(conn, ack[:]); err != nil {
		return fmt.Errorf("failed to read transfer reply: %w", err)
	}
	if ack[0] != ackOK {
		return fmt.Errorf("receiver rejected the image")
	}
	return nil
}
