package device

import (
	"fmt"

	"github.com/srg/blescope/internal/bledb"
)

// NormalizeUUID is re-exported from bledb for convenience.
// It converts a UUID string to lowercase without dashes and collapses
// SIG base UUIDs (0000xxxx-0000-1000-8000-00805f9b34fb) to the 16-bit form.
func NormalizeUUID(uuid string) string {
	return bledb.NormalizeUUID(uuid)
}

// NormalizeUUIDs is re-exported from bledb for convenience.
func NormalizeUUIDs(uuids []string) []string {
	return bledb.NormalizeUUIDs(uuids)
}

// ValidateUUID validates that UUID strings are non-empty and well-formed.
// Returns normalized UUID strings or an error.
func ValidateUUID(uuids ...string) ([]string, error) {
	if len(uuids) == 0 {
		return nil, fmt.Errorf("at least one UUID is required")
	}

	result := make([]string, 0, len(uuids))
	for i, uuid := range uuids {
		if uuid == "" {
			return nil, fmt.Errorf("UUID at index %d cannot be empty", i)
		}
		normalized := NormalizeUUID(uuid)
		if !bledb.IsWellFormed(normalized) {
			return nil, fmt.Errorf("invalid UUID format at index %d: %s", i, uuid)
		}
		result = append(result, normalized)
	}
	return result, nil
}

// CharacteristicKey is the identity of a characteristic within a peripheral.
func CharacteristicKey(serviceUUID, charUUID string) string {
	return NormalizeUUID(serviceUUID) + "/" + NormalizeUUID(charUUID)
}

// DescriptorKey is the identity of a descriptor within a peripheral.
func DescriptorKey(serviceUUID, charUUID, descUUID string) string {
	return CharacteristicKey(serviceUUID, charUUID) + "/" + NormalizeUUID(descUUID)
}
