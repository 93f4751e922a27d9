//go:build !linux

package bluetooth

import "errors"

func readHCIDevInfo(string) (hciInfo, error) {
	return hciInfo{}, errors.New("bluetooth: HCI device info is only supported on linux")
}
