package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/blescope/internal/device"
)

// BLEDescriptor wraps a discovered *ble.Descriptor.
type BLEDescriptor struct {
	uuid        string
	serviceUUID string
	charUUID    string
	desc        *ble.Descriptor
}

func newDescriptor(chr *BLECharacteristic, d *ble.Descriptor) *BLEDescriptor {
	return &BLEDescriptor{
		uuid:        device.NormalizeUUID(d.UUID.String()),
		serviceUUID: chr.serviceUUID,
		charUUID:    chr.uuid,
		desc:        d,
	}
}

func (d *BLEDescriptor) UUID() string               { return d.uuid }
func (d *BLEDescriptor) ServiceUUID() string        { return d.serviceUUID }
func (d *BLEDescriptor) CharacteristicUUID() string { return d.charUUID }

// Unwrap returns the go-ble descriptor.
func (d *BLEDescriptor) Unwrap() *ble.Descriptor { return d.desc }
