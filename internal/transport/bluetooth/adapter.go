package bluetooth

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var addressPattern = regexp.MustCompile(`^[0-9A-Fa-f]{2}(:[0-9A-Fa-f]{2}){5}$`)

// ValidAddress reports whether s is a colon-separated 48-bit hardware address.
func ValidAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// NormalizeAddress trims and upper-cases an address.
func NormalizeAddress(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Conn is an open serial link to a device.
type Conn interface {
	io.ReadWriteCloser
	SetWriteDeadline(t time.Time) error
}

// Adapter is the local Bluetooth controller.
type Adapter interface {
	Present() bool
	Powered() bool
	// Bonded returns the addresses of paired devices.
	Bonded() ([]string, error)
	Dial(ctx context.Context, addr string) (Conn, error)
}

// hciInfo is the part of the kernel's hci_dev_info the adapter uses.
type hciInfo struct {
	Address string
	Up      bool
}

// hci_dev_info layout: dev_id u16, name [8], bdaddr [6], flags u32, ...
const (
	hciDevInfoSize = 92
	hciAddrOffset  = 10
	hciFlagsOffset = 16
	hciFlagUp      = 1 << 0
)

func parseHCIDevInfo(b []byte) (hciInfo, error) {
	if len(b) < hciFlagsOffset+4 {
		return hciInfo{}, fmt.Errorf("hci_dev_info: short buffer (%d bytes)", len(b))
	}
	// bdaddr_t is stored least significant byte first.
	raw := b[hciAddrOffset : hciAddrOffset+6]
	addr := fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", raw[5], raw[4], raw[3], raw[2], raw[1], raw[0])
	flags := binary.NativeEndian.Uint32(b[hciFlagsOffset:])
	return hciInfo{Address: addr, Up: flags&hciFlagUp != 0}, nil
}

// hciDevID parses the index out of a controller name such as hci0.
func hciDevID(name string) (uint16, error) {
	n, ok := strings.CutPrefix(name, "hci")
	if !ok {
		return 0, fmt.Errorf("invalid controller name %q", name)
	}
	id, err := strconv.ParseUint(n, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid controller name %q", name)
	}
	return uint16(id), nil
}

// SysAdapter reads controller state from sysfs, the kernel HCI interface
// and the BlueZ state directory, and dials RFCOMM sockets.
type SysAdapter struct {
	Name      string // e.g. hci0
	SysfsRoot string // /sys/class/bluetooth
	StateDir  string // /var/lib/bluetooth
	Channel   uint8

	devInfo func(name string) (hciInfo, error)
}

// NewSysAdapter returns an adapter for the named controller with the
// standard Linux paths.
func NewSysAdapter(name, stateDir string, channel uint8) *SysAdapter {
	if stateDir == "" {
		stateDir = "/var/lib/bluetooth"
	}
	return &SysAdapter{
		Name:      name,
		SysfsRoot: "/sys/class/bluetooth",
		StateDir:  stateDir,
		Channel:   channel,
		devInfo:   readHCIDevInfo,
	}
}

func (a *SysAdapter) info() (hciInfo, error) {
	if a.devInfo == nil {
		return readHCIDevInfo(a.Name)
	}
	return a.devInfo(a.Name)
}

func (a *SysAdapter) Present() bool {
	_, err := os.Stat(filepath.Join(a.SysfsRoot, a.Name))
	return err == nil
}

// Powered is true when no rfkill switch blocks the controller and the
// kernel reports it up. A controller powered down through BlueZ keeps its
// rfkill switch unblocked, so both are checked.
func (a *SysAdapter) Powered() bool {
	if !a.Present() {
		return false
	}
	states, _ := filepath.Glob(filepath.Join(a.SysfsRoot, a.Name, "rfkill*", "state"))
	for _, path := range states {
		b, err := os.ReadFile(path)
		if err != nil || strings.TrimSpace(string(b)) != "1" {
			return false
		}
	}
	info, err := a.info()
	return err == nil && info.Up
}

// Bonded lists devices BlueZ stored a link key for on this controller.
func (a *SysAdapter) Bonded() ([]string, error) {
	info, err := a.info()
	if err != nil {
		return nil, fmt.Errorf("controller %s: %w", a.Name, err)
	}
	paths, err := filepath.Glob(filepath.Join(a.StateDir, info.Address, "*", "info"))
	if err != nil {
		return nil, err
	}

	var out []string
	for _, path := range paths {
		addr := filepath.Base(filepath.Dir(path))
		if !ValidAddress(addr) {
			continue
		}
		ok, err := hasKey(path)
		if err != nil {
			continue
		}
		if ok {
			out = append(out, NormalizeAddress(addr))
		}
	}
	return out, nil
}

func hasKey(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		switch strings.TrimSpace(sc.Text()) {
		case "[LinkKey]", "[LongTermKey]":
			return true, nil
		}
	}
	return false, sc.Err()
}

func (a *SysAdapter) Dial(ctx context.Context, addr string) (Conn, error) {
	return dialRFCOMM(ctx, addr, a.Channel)
}
