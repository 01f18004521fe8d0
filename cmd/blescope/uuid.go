package main

import (
	"fmt"

	"github.com/srg/blescope/internal/bledb"
	"github.com/srg/blescope/internal/device"
)

// validateService normalizes a service UUID given on the command line.
func validateService(uuid string) (string, error) {
	uuids, err := device.ValidateUUID(uuid)
	if err != nil {
		return "", fmt.Errorf("invalid service UUID: %w", err)
	}
	return uuids[0], nil
}

// describeUUID returns "uuid (Name)" for assigned numbers and the bare UUID otherwise.
func describeUUID(uuid string) string {
	if name := bledb.Lookup(uuid); name != "" {
		return fmt.Sprintf("%s (%s)", uuid, name)
	}
	return uuid
}
