//go:build linux

package bluetooth

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

func dialRFCOMM(ctx context.Context, addr string, channel uint8) (Conn, error) {
	bdaddr, err := parseBDAddr(addr)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.BTPROTO_RFCOMM)
	if err != nil {
		return nil, fmt.Errorf("rfcomm socket: %w", err)
	}

	// The kernel bounds connect() on RFCOMM sockets by the send timeout.
	if deadline, ok := ctx.Deadline(); ok {
		tv := unix.NsecToTimeval(time.Until(deadline).Nanoseconds())
		if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_SNDTIMEO, &tv); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("rfcomm timeout: %w", err)
		}
	}

	if err := unix.Connect(fd, &unix.SockaddrRFCOMM{Addr: bdaddr, Channel: channel}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("rfcomm connect %s: %w", addr, err)
	}
	if err := ctx.Err(); err != nil {
		unix.Close(fd)
		return nil, err
	}

	// Non-blocking so the runtime poller owns the fd and Close interrupts Read.
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("rfcomm nonblock: %w", err)
	}
	return os.NewFile(uintptr(fd), "rfcomm:"+addr), nil
}

// parseBDAddr converts AA:BB:CC:DD:EE:FF to the little-endian bdaddr_t layout.
func parseBDAddr(addr string) ([6]uint8, error) {
	var out [6]uint8
	parts := strings.Split(addr, ":")
	if len(parts) != 6 {
		return out, fmt.Errorf("invalid bluetooth address %q", addr)
	}
	for i, p := range parts {
		b, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return out, fmt.Errorf("invalid bluetooth address %q", addr)
		}
		out[5-i] = uint8(b)
	}
	return out, nil
}
