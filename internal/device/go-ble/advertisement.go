package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/blescope/internal/device"
)

// BLEAdvertisement wraps ble.Advertisement to implement device.Advertisement interface
type BLEAdvertisement struct {
	adv ble.Advertisement
}

// NewBLEAdvertisement creates a new BLEAdvertisement wrapper
func NewBLEAdvertisement(adv ble.Advertisement) *BLEAdvertisement {
	return &BLEAdvertisement{adv: adv}
}

func (a *BLEAdvertisement) LocalName() string        { return a.adv.LocalName() }
func (a *BLEAdvertisement) ManufacturerData() []byte { return a.adv.ManufacturerData() }
func (a *BLEAdvertisement) TxPowerLevel() int        { return a.adv.TxPowerLevel() }
func (a *BLEAdvertisement) Connectable() bool        { return a.adv.Connectable() }
func (a *BLEAdvertisement) RSSI() int                { return a.adv.RSSI() }

func (a *BLEAdvertisement) Addr() string {
	if a.adv.Addr() == nil {
		return ""
	}
	return a.adv.Addr().String()
}

func (a *BLEAdvertisement) ServiceData() []device.ServiceData {
	raw := a.adv.ServiceData()
	result := make([]device.ServiceData, len(raw))
	for i, sd := range raw {
		result[i] = device.ServiceData{UUID: device.NormalizeUUID(sd.UUID.String()), Data: sd.Data}
	}
	return result
}

// Services returns the advertised service UUIDs, overflow area included.
func (a *BLEAdvertisement) Services() []string {
	uuids := append(append([]ble.UUID(nil), a.adv.Services()...), a.adv.OverflowService()...)
	result := make([]string, len(uuids))
	for i, u := range uuids {
		result[i] = device.NormalizeUUID(u.String())
	}
	return result
}

// Advertises reports whether any of the normalized service UUIDs appear in
// the advertisement. An empty filter matches everything.
func (a *BLEAdvertisement) Advertises(filter []string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, have := range a.Services() {
		for _, want := range filter {
			if have == want {
				return true
			}
		}
	}
	return false
}

var _ device.Advertisement = (*BLEAdvertisement)(nil)
