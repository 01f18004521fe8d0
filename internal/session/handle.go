package session

import (
	"sync"
	"time"

	"github.com/srg/blescope/internal/device"
)

// UnknownName is shown for peripherals that advertise no name.
const UnknownName = "Unknown"

// PeripheralHandle is the application's reference to one remote peripheral.
// There is at most one handle per identity; rediscovery updates it in place.
type PeripheralHandle struct {
	id string

	mu          sync.RWMutex
	platform    device.Peripheral
	name        string
	rssi        int
	connectable bool
	services    []string
	connected   bool
	lastSeen    time.Time
}

// NewPeripheralHandle creates a handle bound to the platform peripheral p.
func NewPeripheralHandle(p device.Peripheral) *PeripheralHandle {
	return &PeripheralHandle{
		id:       p.ID(),
		platform: p,
		name:     p.Name(),
		lastSeen: time.Now(),
	}
}

// ID returns the immutable platform identity.
func (h *PeripheralHandle) ID() string { return h.id }

// Peripheral returns the platform peripheral.
func (h *PeripheralHandle) Peripheral() device.Peripheral {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.platform
}

// Name returns the last known name, which may be empty.
func (h *PeripheralHandle) Name() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.name
}

// DisplayName returns the name or UnknownName.
func (h *PeripheralHandle) DisplayName() string {
	if n := h.Name(); n != "" {
		return n
	}
	return UnknownName
}

// RSSI returns the signal strength of the latest sighting.
func (h *PeripheralHandle) RSSI() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rssi
}

// Connectable reports whether the latest advertisement was connectable.
func (h *PeripheralHandle) Connectable() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.connectable
}

// AdvertisedServices returns the service UUIDs of the latest advertisement.
func (h *PeripheralHandle) AdvertisedServices() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]string(nil), h.services...)
}

// LastSeen returns the time of the latest sighting.
func (h *PeripheralHandle) LastSeen() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastSeen
}

// Connected reports the last known link state.
func (h *PeripheralHandle) Connected() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.connected
}

// SetConnected records the link state.
func (h *PeripheralHandle) SetConnected(connected bool) {
	h.mu.Lock()
	h.connected = connected
	h.mu.Unlock()
}

// Update refreshes the handle from a new sighting. The identity never changes;
// a sighting for another identity is ignored and reported as false.
func (h *PeripheralHandle) Update(p device.Peripheral, adv device.Advertisement, rssi int) bool {
	if p == nil || p.ID() != h.id {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	h.platform = p
	if name := p.Name(); name != "" {
		h.name = name
	}
	if adv != nil {
		if name := adv.LocalName(); name != "" {
			h.name = name
		}
		h.connectable = adv.Connectable()
		if svcs := adv.Services(); len(svcs) > 0 {
			h.services = device.NormalizeUUIDs(svcs)
		}
	}
	h.rssi = rssi
	h.lastSeen = time.Now()
	return true
}
