// Package ota receives firmware images over TCP. The receiver is
// poll-driven: the device core calls Poll from its tick loop and the
// receiver advances the transfer without ever blocking, reporting
// lifecycle events through hooks. A received image lands in a staging
// file; flashing it is the supervisor's job.
package ota

import (
	"bytes"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"hash"
	"net"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/luminad/internal/device"
)

// Wire format: a fixed-size header followed by the raw image.
//
//	magic   [4]byte "LUOT"
//	version byte
//	passLen byte
//	pass    [64]byte zero-padded
//	size    uint32 LE
//	digest  [32]byte sha256 of the image
//
// The receiver answers the header with one byte (ackOK or ackReject)
// and the completed transfer with ackOK.
const (
	protocolVersion = 1
	headerSize      = 4 + 1 + 1 + 64 + 4 + 32

	ackOK     = 0x01
	ackReject = 0x00

	// maxImageSize bounds a transfer; anything larger is not a
	// firmware image for this device.
	maxImageSize = 16 << 20

	// pollChunk bounds how much one Poll call may consume, keeping
	// tick latency flat during a transfer.
	pollChunk = 32 << 10
)

var magic = [4]byte{'L', 'U', 'O', 'T'}

// Config for the receiver.
type Config struct {
	Port        int
	Password    string
	StagingPath string
}

// Receiver listens for one firmware transfer at a time. It implements
// the update mechanism interface of the device core.
type Receiver struct {
	cfg   Config
	hooks device.UpdateHooks

	listener *net.TCPListener
	conn     *net.TCPConn

	header   []byte
	expected uint32
	digest   [32]byte
	received uint32
	sum      hash.Hash
	staging  *os.File
	buf      [pollChunk]byte
}

// NewReceiver creates an unarmed receiver.
func NewReceiver(cfg Config) *Receiver {
	return &Receiver{cfg: cfg}
}

// Arm opens the listener and registers the hooks.
func (r *Receiver) Arm(hooks device.UpdateHooks) error {
	if r.listener != nil {
		return fmt.Errorf("already armed")
	}
	addr := &net.TCPAddr{Port: r.cfg.Port}
	ln, err := net.ListenTCP("tcp4", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on update port %d: %w", r.cfg.Port, err)
	}
	r.listener = ln
	r.hooks = hooks
	log.Info().Int("port", r.cfg.Port).Msg("Update receiver listening")
	return nil
}

// Addr returns the listener address, nil when unarmed.
func (r *Receiver) Addr() net.Addr {
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

// Disarm closes the listener and discards any partial transfer.
func (r *Receiver) Disarm() {
	r.abortTransfer()
	if r.listener != nil {
		r.listener.Close()
		r.listener = nil
	}
	r.hooks = device.UpdateHooks{}
}

// Poll advances the receiver one step without blocking: accept a
// pending connection, consume buffered header or image bytes, finish
// or fail the transfer.
func (r *Receiver) Poll() {
	if r.listener == nil {
		return
	}
	if r.conn == nil {
		r.pollAccept()
		return
	}
	if len(r.header) < headerSize {
		r.pollHeader()
		return
	}
	r.pollBody()
}

func (r *Receiver) pollAccept() {
	r.listener.SetDeadline(time.Now())
	conn, err := r.listener.AcceptTCP()
	if err != nil {
		if !os.IsTimeout(err) {
			log.Warn().Err(err).Msg("Update accept failed")
		}
		return
	}
	log.Info().Str("peer", conn.RemoteAddr().String()).Msg("Update connection accepted")
	r.conn = conn
	r.header = make([]byte, 0, headerSize)
}

func (r *Receiver) pollHeader() {
	n, ok := r.readSome(r.buf[:headerSize-len(r.header)])
	if !ok {
		return
	}
	r.header = append(r.header, r.buf[:n]...)
	if len(r.header) < headerSize {
		return
	}

	if err := r.acceptHeader(); err != nil {
		log.Warn().Err(err).Msg("Rejecting update request")
		r.conn.Write([]byte{ackReject})
		r.resetConn()
		return
	}

	if _, err := r.conn.Write([]byte{ackOK}); err != nil {
		log.Warn().Err(err).Msg("Update handshake reply failed")
		r.resetConn()
		return
	}
	r.callStarted()
}

// acceptHeader validates the handshake and opens the staging file.
func (r *Receiver) acceptHeader() error {
	h := r.header
	if !bytes.Equal(h[:4], magic[:]) {
		return fmt.Errorf("bad magic %x", h[:4])
	}
	if h[4] != protocolVersion {
		return fmt.Errorf("unsupported protocol version %d", h[4])
	}
	passLen := int(h[5])
	if passLen > 64 {
		return fmt.Errorf("invalid password length %d", passLen)
	}
	pass := h[6 : 6+passLen]
	if subtle.ConstantTimeCompare(pass, []byte(r.cfg.Password)) != 1 {
		return fmt.Errorf("authentication failed")
	}

	size := binary.LittleEndian.Uint32(h[70:74])
	if size == 0 || size > maxImageSize {
		return fmt.Errorf("invalid image size %d", size)
	}
	copy(r.digest[:], h[74:106])

	f, err := os.Create(r.cfg.StagingPath)
	if err != nil {
		return fmt.Errorf("failed to open staging file: %w", err)
	}
	r.staging = f
	r.expected = size
	r.received = 0
	r.sum = sha256.New()

	log.Info().Uint32("size", size).Str("staging", r.cfg.StagingPath).Msg("Firmware transfer accepted")
	return nil
}

func (r *Receiver) pollBody() {
	remaining := r.expected - r.received
	chunk := r.buf[:]
	if uint32(len(chunk)) > remaining {
		chunk = chunk[:remaining]
	}
	n, ok := r.readSome(chunk)
	if !ok {
		return
	}
	if n == 0 {
		return
	}

	if _, err := r.staging.Write(chunk[:n]); err != nil {
		r.fail(fmt.Sprintf("staging write failed: %v", err))
		return
	}
	r.sum.Write(chunk[:n])
	r.received += uint32(n)
	r.callProgress(int(uint64(r.received) * 100 / uint64(r.expected)))

	if r.received == r.expected {
		r.finish()
	}
}

func (r *Receiver) finish() {
	var got [32]byte
	r.sum.Sum(got[:0])
	if got != r.digest {
		r.fail("image digest mismatch")
		return
	}
	if err := r.staging.Close(); err != nil {
		r.staging = nil
		r.fail(fmt.Sprintf("staging close failed: %v", err))
		return
	}
	r.staging = nil

	size := r.expected
	r.conn.Write([]byte{ackOK})
	r.resetConn()

	log.Info().Uint32("size", size).Msg("Firmware image staged")
	if r.hooks.Completed != nil {
		r.hooks.Completed()
	}
}

// readSome reads whatever is already buffered on the connection. ok is
// false when the transfer died and was cleaned up.
func (r *Receiver) readSome(dst []byte) (int, bool) {
	r.conn.SetReadDeadline(time.Now())
	n, err := r.conn.Read(dst)
	if err != nil {
		if os.IsTimeout(err) {
			return n, true
		}
		if r.staging != nil {
			r.fail(fmt.Sprintf("transfer aborted: %v", err))
		} else {
			// Peer vanished mid-handshake; no transfer to fail.
			log.Debug().Err(err).Msg("Update connection dropped before handshake")
			r.resetConn()
		}
		return 0, false
	}
	return n, true
}

func (r *Receiver) fail(reason string) {
	r.abortTransfer()
	if r.hooks.Failed != nil {
		r.hooks.Failed(reason)
	}
}

// abortTransfer drops the connection and the partial staging file.
func (r *Receiver) abortTransfer() {
	if r.staging != nil {
		r.staging.Close()
		os.Remove(r.cfg.StagingPath)
		r.staging = nil
	}
	r.resetConn()
}

func (r *Receiver) resetConn() {
	if r.conn != nil {
		r.conn.Close()
		r.conn = nil
	}
	r.header = nil
	r.expected = 0
	r.received = 0
	r.sum = nil
}

func (r *Receiver) callStarted() {
	if r.hooks.Started != nil {
		r.hooks.Started()
	}
}

func (r *Receiver) callProgress(percent int) {
	if r.hooks.Progress != nil {
		r.hooks.Progress(percent)
	}
}
