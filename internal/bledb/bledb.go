// Package bledb resolves Bluetooth SIG assigned numbers to human readable names.
//
// UUIDs are accepted in any common spelling (short, 0x-prefixed, dashed 128-bit,
// braced) and normalised to the go-ble string form before lookup.
package bledb

import "strings"

// sigBaseSuffix is the tail of the Bluetooth SIG base UUID 0000xxxx-0000-1000-8000-00805f9b34fb.
const sigBaseSuffix = "00001000800000805f9b34fb"

// NormalizeUUID converts a UUID string to lowercase without dashes, braces or 0x prefix.
// SIG base 128-bit UUIDs collapse to their 16-bit short form.
func NormalizeUUID(uuid string) string {
	u := strings.ToLower(strings.TrimSpace(uuid))
	u = strings.TrimPrefix(u, "0x")
	u = strings.NewReplacer("-", "", "{", "", "}", "").Replace(u)

	if len(u) == 32 && strings.HasPrefix(u, "0000") && strings.HasSuffix(u, sigBaseSuffix) {
		return u[4:8]
	}
	return u
}

// NormalizeUUIDs normalizes every element, dropping entries that normalize to "".
func NormalizeUUIDs(uuids []string) []string {
	out := make([]string, 0, len(uuids))
	for _, u := range uuids {
		if n := NormalizeUUID(u); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// IsWellFormed reports whether a normalized UUID is a 16, 32 or 128-bit hex string.
func IsWellFormed(normalized string) bool {
	switch len(normalized) {
	case 4, 8, 32:
	default:
		return false
	}
	for _, r := range normalized {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// LookupService returns the SIG name of a service UUID, or "" when unknown.
func LookupService(uuid string) string {
	return services[NormalizeUUID(uuid)]
}

// LookupCharacteristic returns the SIG name of a characteristic UUID, or "" when unknown.
func LookupCharacteristic(uuid string) string {
	return characteristics[NormalizeUUID(uuid)]
}

// LookupDescriptor returns the SIG name of a descriptor UUID, or "" when unknown.
func LookupDescriptor(uuid string) string {
	return descriptors[NormalizeUUID(uuid)]
}

// Lookup tries every table in service, characteristic, descriptor order.
func Lookup(uuid string) string {
	n := NormalizeUUID(uuid)
	if name, ok := services[n]; ok {
		return name
	}
	if name, ok := characteristics[n]; ok {
		return name
	}
	return descriptors[n]
}
