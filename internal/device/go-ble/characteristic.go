package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/blescope/internal/device"
)

// BLECharacteristic wraps a discovered *ble.Characteristic together with the
// UUID of its service.
type BLECharacteristic struct {
	uuid        string
	serviceUUID string
	props       device.Properties
	chr         *ble.Characteristic
}

func newCharacteristic(serviceUUID string, chr *ble.Characteristic) *BLECharacteristic {
	return &BLECharacteristic{
		uuid:        device.NormalizeUUID(chr.UUID.String()),
		serviceUUID: serviceUUID,
		props:       NewProperties(chr.Property),
		chr:         chr,
	}
}

func (c *BLECharacteristic) UUID() string                  { return c.uuid }
func (c *BLECharacteristic) ServiceUUID() string           { return c.serviceUUID }
func (c *BLECharacteristic) Properties() device.Properties { return c.props }

// Unwrap returns the go-ble characteristic.
func (c *BLECharacteristic) Unwrap() *ble.Characteristic { return c.chr }

// indicate reports whether subscriptions must use indications because the
// characteristic cannot notify.
func (c *BLECharacteristic) indicate() bool {
	return !c.props.Has(device.PropNotify) && c.props.Has(device.PropIndicate)
}
