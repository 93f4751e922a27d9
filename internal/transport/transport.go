// Package transport dispatches wire messages across the SMS and Bluetooth
// backends according to the configured mode, fallback and per-contact
// affinity.
package transport

import (
	"context"
	"fmt"
	"strings"

	"github.com/matheus3301/comet/internal/contact"
)

// Kind names a delivery channel.
type Kind string

const (
	SMS       Kind = "sms"
	Bluetooth Kind = "bluetooth"
)

// Label is the user-facing name of the kind.
func (k Kind) Label() string {
	switch k {
	case SMS:
		return "SMS"
	case Bluetooth:
		return "Bluetooth"
	default:
		return string(k)
	}
}

// ParseKind parses a kind name. The empty string parses to the empty Kind,
// which means "no fallback" in Config.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return "", nil
	case SMS:
		return SMS, nil
	case Bluetooth:
		return Bluetooth, nil
	default:
		return "", fmt.Errorf("unknown transport %q", s)
	}
}

// Mode selects how the dispatcher picks transports.
type Mode string

const (
	ModeSMS       Mode = "sms"
	ModeBluetooth Mode = "bluetooth"
	ModeAuto      Mode = "auto"
)

// ParseMode parses a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeSMS:
		return ModeSMS, nil
	case ModeBluetooth:
		return ModeBluetooth, nil
	case ModeAuto:
		return ModeAuto, nil
	default:
		return "", fmt.Errorf("unknown transport mode %q", s)
	}
}

// Config is the dispatch policy.
type Config struct {
	Mode     Mode
	Fallback Kind // empty for none
}

// Transport is a delivery backend. CanHandle is a cheap syntactic check on
// the target. Send never panics or returns errors across the boundary: any
// backend failure is logged and reported as false.
type Transport interface {
	CanHandle(target string) bool
	Send(ctx context.Context, to, body string) bool
}

// Preflighter is implemented by backends with checks of their own that must
// pass before Send is attempted.
type Preflighter interface {
	Preflight(target string) error
}

// affinity maps a contact's recorded type to a transport kind.
func affinity(e contact.Entry) (Kind, bool) {
	switch e.Type {
	case contact.TypePhone:
		return SMS, true
	case contact.TypeBluetooth:
		return Bluetooth, true
	default:
		return "", false
	}
}
