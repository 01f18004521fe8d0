package session

import (
	"bytes"

	"github.com/srg/blescope/internal/bledb"
	"github.com/srg/blescope/internal/device"
)

// ServiceRecord is a discovered GATT service.
type ServiceRecord struct {
	UUID       string
	KnownName  string
	Primary    bool
	Peripheral *PeripheralHandle

	platform device.Service
}

// Platform returns the platform service object.
func (r ServiceRecord) Platform() device.Service { return r.platform }

func newServiceRecord(h *PeripheralHandle, svc device.Service) ServiceRecord {
	uuid := device.NormalizeUUID(svc.UUID())
	return ServiceRecord{
		UUID:       uuid,
		KnownName:  bledb.LookupService(uuid),
		Primary:    svc.IsPrimary(),
		Peripheral: h,
		platform:   svc,
	}
}

// CharacteristicRecord is a discovered GATT characteristic and its latest value.
// ServiceUUID refers to the owning ServiceRecord.
type CharacteristicRecord struct {
	UUID        string
	ServiceUUID string
	KnownName   string
	Properties  device.Properties
	Value       []byte
	HasValue    bool
	Notifying   bool
	Descriptors []DescriptorRecord

	platform device.Characteristic
}

// Key is the identity of the characteristic within its peripheral.
func (r CharacteristicRecord) Key() string {
	return device.CharacteristicKey(r.ServiceUUID, r.UUID)
}

// Label returns the known name or the UUID.
func (r CharacteristicRecord) Label() string {
	if r.KnownName != "" {
		return r.KnownName
	}
	return r.UUID
}

// Platform returns the platform characteristic object.
func (r CharacteristicRecord) Platform() device.Characteristic { return r.platform }

func (r CharacteristicRecord) clone() CharacteristicRecord {
	r.Value = bytes.Clone(r.Value)
	r.Descriptors = append([]DescriptorRecord(nil), r.Descriptors...)
	return r
}

func newCharacteristicRecord(chr device.Characteristic) CharacteristicRecord {
	uuid := device.NormalizeUUID(chr.UUID())
	return CharacteristicRecord{
		UUID:        uuid,
		ServiceUUID: device.NormalizeUUID(chr.ServiceUUID()),
		KnownName:   bledb.LookupCharacteristic(uuid),
		Properties:  chr.Properties(),
		platform:    chr,
	}
}

// DescriptorRecord is a discovered GATT descriptor.
type DescriptorRecord struct {
	UUID              string
	KnownName         string
	CharacteristicKey string
	Value             []byte

	platform device.Descriptor
}

func newDescriptorRecord(d device.Descriptor) DescriptorRecord {
	uuid := device.NormalizeUUID(d.UUID())
	return DescriptorRecord{
		UUID:              uuid,
		KnownName:         bledb.LookupDescriptor(uuid),
		CharacteristicKey: device.CharacteristicKey(d.ServiceUUID(), d.CharacteristicUUID()),
		platform:          d,
	}
}
