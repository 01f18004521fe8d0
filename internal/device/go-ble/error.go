package goble

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/blescope/internal/device"
)

// NormalizeError maps go-ble failures to the device sentinels. Deadline
// expiry becomes device.ErrTimeout; everything else goes through
// device.NormalizeError. The original error stays in the chain.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, device.ErrTimeout) {
		return fmt.Errorf("%w: %w", device.ErrTimeout, err)
	}
	return device.NormalizeError(err)
}

// isCancellation reports errors that only mean the operation was stopped locally.
func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}
