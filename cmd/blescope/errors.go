package main

import (
	"errors"
	"fmt"

	"github.com/srg/blescope/internal/device"
)

// Command-level errors
var (
	// ErrConnectionLost indicates the link dropped while a command was still
	// using it, as opposed to a peripheral that never connected.
	ErrConnectionLost = errors.New("connection lost")
)

// FormatUserError turns err into one line suited for the terminal. Known
// platform conditions get a hint; anything else keeps its own message.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var nf *device.NotFoundError
	switch {
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off. Turn it on and try again."
	case errors.Is(err, device.ErrUnauthorized):
		return "Bluetooth access was denied. Grant this terminal Bluetooth permission (or run with the required capabilities) and try again."
	case errors.Is(err, device.ErrUnsupported) && !errors.As(err, &nf):
		return fmt.Sprintf("not supported on this system: %v", err)
	case errors.As(err, &nf) && nf.Resource == "peripheral":
		return fmt.Sprintf("%s. Make sure it is powered on, advertising and in range.", nf.Error())
	case errors.Is(err, ErrConnectionLost):
		return fmt.Sprintf("%v. The peripheral went out of range or was turned off.", err)
	case errors.Is(err, device.ErrTimeout):
		return fmt.Sprintf("timed out: %v", err)
	default:
		return err.Error()
	}
}
