package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/srg/blescope/internal/device"
	"github.com/stretchr/testify/assert"
)

func TestFormatUserError(t *testing.T) {
	notFound := &device.NotFoundError{Resource: "peripheral", UUIDs: []string{"AA:BB"}}

	tests := []struct {
		name     string
		err      error
		contains string
	}{
		{name: "nil", err: nil, contains: ""},
		{name: "bluetooth off", err: fmt.Errorf("start: %w", device.ErrBluetoothOff), contains: "Bluetooth is turned off"},
		{name: "unauthorized", err: device.ErrUnauthorized, contains: "Bluetooth access was denied"},
		{name: "unsupported", err: device.ErrUnsupported, contains: "not supported on this system"},
		{name: "peripheral not found", err: fmt.Errorf("%w: %w", notFound, device.ErrTimeout), contains: "advertising and in range"},
		{name: "connection lost", err: fmt.Errorf("%w: %w", ErrConnectionLost, device.ErrNotConnected), contains: "went out of range"},
		{name: "timeout", err: fmt.Errorf("GATT walk did not finish: %w", device.ErrTimeout), contains: "timed out: GATT walk"},
		{name: "other", err: errors.New("boom"), contains: "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := FormatUserError(tt.err)
			if tt.err == nil {
				assert.Empty(t, msg)
				return
			}
			assert.Contains(t, msg, tt.contains)
		})
	}
}
