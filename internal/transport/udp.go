// Package transport provides the non-blocking UDP endpoint used by the
// device core. The core polls from a single-threaded loop, so reads
// use an immediate deadline instead of goroutines.
package transport

import (
	"context"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// UDPConn is a datagram socket with broadcast enabled. The zero value
// is unbound: SendTo and Broadcast open an ephemeral socket on first
// use, Listen binds a shared-port listener.
type UDPConn struct {
	conn *net.UDPConn
}

// NewUDPConn returns an unbound connection.
func NewUDPConn() *UDPConn {
	return &UDPConn{}
}

// broadcastControl enables SO_BROADCAST and SO_REUSEADDR on the raw
// socket. Reuse lets the lamp and a controller on the same host share
// the status port.
func broadcastControl(network, address string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
		if sockErr != nil {
			return
		}
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}

// Listen binds the socket to the given port on all interfaces.
func (u *UDPConn) Listen(port int) error {
	if u.conn != nil {
		return fmt.Errorf("already bound")
	}
	lc := net.ListenConfig{Control: broadcastControl}
	pc, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("failed to bind udp port %d: %w", port, err)
	}
	u.conn = pc.(*net.UDPConn)
	return nil
}

// Close releases the socket. Closing an unbound connection is a no-op.
func (u *UDPConn) Close() error {
	if u.conn == nil {
		return nil
	}
	err := u.conn.Close()
	u.conn = nil
	return err
}

// Poll reads at most one pending datagram without waiting. It returns
// n == 0 when nothing is queued or the socket is unbound.
func (u *UDPConn) Poll(buf []byte) (int, *net.UDPAddr, error) {
	if u.conn == nil {
		return 0, nil, nil
	}
	if err := u.conn.SetReadDeadline(time.Now()); err != nil {
		return 0, nil, fmt.Errorf("failed to arm read deadline: %w", err)
	}
	n, from, err := u.conn.ReadFromUDP(buf)
	if err != nil {
		if os.IsTimeout(err) {
			return 0, nil, nil
		}
		return 0, nil, err
	}
	return n, from, nil
}

// LocalAddr returns the bound address, nil when unbound.
func (u *UDPConn) LocalAddr() *net.UDPAddr {
	if u.conn == nil {
		return nil
	}
	addr, _ := u.conn.LocalAddr().(*net.UDPAddr)
	return addr
}

// SendTo delivers one datagram, binding an ephemeral port first when
// the socket is unbound.
func (u *UDPConn) SendTo(to *net.UDPAddr, b []byte) error {
	if err := u.ensureBound(); err != nil {
		return err
	}
	if _, err := u.conn.WriteToUDP(b, to); err != nil {
		return fmt.Errorf("failed to send to %s: %w", to, err)
	}
	return nil
}

// Broadcast delivers one datagram to the local broadcast address.
func (u *UDPConn) Broadcast(port int, b []byte) error {
	return u.SendTo(&net.UDPAddr{IP: net.IPv4bcast, Port: port}, b)
}

func (u *UDPConn) ensureBound() error {
	if u.conn != nil {
		return nil
	}
	lc := net.ListenConfig{Control: broadcastControl}
	pc, err := lc.ListenPacket(context.Background(), "udp4", ":0")
	if err != nil {
		return fmt.Errorf("failed to open udp socket: %w", err)
	}
	u.conn = pc.(*net.UDPConn)
	return nil
}
