package testutils

import (
	"github.com/srg/blescope/internal/device"
)

// FakeAdvertisement is an immutable device.Advertisement.
type FakeAdvertisement struct {
	name        string
	address     string
	rssi        int
	services    []string
	manufData   []byte
	serviceData []device.ServiceData
	txPower     int
	connectable bool
}

func (a *FakeAdvertisement) LocalName() string                 { return a.name }
func (a *FakeAdvertisement) ManufacturerData() []byte          { return a.manufData }
func (a *FakeAdvertisement) ServiceData() []device.ServiceData { return a.serviceData }
func (a *FakeAdvertisement) Services() []string                { return a.services }
func (a *FakeAdvertisement) TxPowerLevel() int                 { return a.txPower }
func (a *FakeAdvertisement) Connectable() bool                 { return a.connectable }
func (a *FakeAdvertisement) RSSI() int                         { return a.rssi }
func (a *FakeAdvertisement) Addr() string                      { return a.address }

// AdvertisementBuilder builds fake BLE advertisements for testing.
type AdvertisementBuilder struct {
	adv FakeAdvertisement
}

// NewAdvertisementBuilder creates a builder. Advertisements are connectable by default.
func NewAdvertisementBuilder() *AdvertisementBuilder {
	return &AdvertisementBuilder{adv: FakeAdvertisement{connectable: true, txPower: 127}}
}

// WithName sets the local name for the advertisement.
func (b *AdvertisementBuilder) WithName(name string) *AdvertisementBuilder {
	b.adv.name = name
	return b
}

// WithAddress sets the device address for the advertisement.
func (b *AdvertisementBuilder) WithAddress(addr string) *AdvertisementBuilder {
	b.adv.address = addr
	return b
}

// WithRSSI sets the signal strength for the advertisement.
func (b *AdvertisementBuilder) WithRSSI(rssi int) *AdvertisementBuilder {
	b.adv.rssi = rssi
	return b
}

// WithServices adds service UUIDs to the advertisement.
func (b *AdvertisementBuilder) WithServices(uuids ...string) *AdvertisementBuilder {
	b.adv.services = append(b.adv.services, uuids...)
	return b
}

// WithManufacturerData sets the manufacturer-specific data.
func (b *AdvertisementBuilder) WithManufacturerData(data []byte) *AdvertisementBuilder {
	b.adv.manufData = data
	return b
}

// WithServiceData adds service-specific data for the given service UUID.
func (b *AdvertisementBuilder) WithServiceData(uuid string, data []byte) *AdvertisementBuilder {
	b.adv.serviceData = append(b.adv.serviceData, device.ServiceData{UUID: uuid, Data: data})
	return b
}

// WithConnectable sets whether the device accepts connections.
func (b *AdvertisementBuilder) WithConnectable(c bool) *AdvertisementBuilder {
	b.adv.connectable = c
	return b
}

// Build returns the advertisement.
func (b *AdvertisementBuilder) Build() *FakeAdvertisement {
	adv := b.adv
	return &adv
}
