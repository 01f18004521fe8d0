//go:build !darwin && !linux

package goble

import (
	"fmt"
	"runtime"

	"github.com/go-ble/ble"
	"github.com/srg/blescope/internal/device"
)

func newPlatformDevice() (ble.Device, error) {
	return nil, fmt.Errorf("no BLE backend for %s: %w", runtime.GOOS, device.ErrUnsupported)
}
