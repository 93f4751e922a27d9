//go:build linux

package bluetooth

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// HCIGETDEVINFO is _IOR('H', 211, int).
const hciGetDevInfo = 0x800448d3

func readHCIDevInfo(name string) (hciInfo, error) {
	id, err := hciDevID(name)
	if err != nil {
		return hciInfo{}, err
	}

	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.BTPROTO_HCI)
	if err != nil {
		return hciInfo{}, fmt.Errorf("hci socket: %w", err)
	}
	defer unix.Close(fd)

	var buf [hciDevInfoSize]byte
	binary.NativeEndian.PutUint16(buf[0:2], id)
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), hciGetDevInfo, uintptr(unsafe.Pointer(&buf[0]))); errno != 0 {
		return hciInfo{}, fmt.Errorf("HCIGETDEVINFO %s: %w", name, errno)
	}
	return parseHCIDevInfo(buf[:])
}
