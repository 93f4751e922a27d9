//go:build !linux

package bluetooth

import (
	"context"
	"errors"
)

func dialRFCOMM(context.Context, string, uint8) (Conn, error) {
	return nil, errors.New("bluetooth: RFCOMM sockets are only supported on linux")
}
