package testutils

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/srg/blescope/internal/device"
)

// DescriptorConfig represents a GATT descriptor configuration for a fake peripheral
type DescriptorConfig struct {
	UUID  string `json:"uuid"`
	Value []byte `json:"value,omitempty"`
}

// CharacteristicConfig represents a GATT characteristic configuration for a fake peripheral
type CharacteristicConfig struct {
	UUID        string             `json:"uuid"`
	Properties  string             `json:"properties,omitempty"` // e.g., "read,write,notify"
	Value       []byte             `json:"value,omitempty"`
	Descriptors []DescriptorConfig `json:"descriptors,omitempty"`
}

// ServiceConfig represents a GATT service configuration for a fake peripheral
type ServiceConfig struct {
	UUID            string                 `json:"uuid"`
	Secondary       bool                   `json:"secondary,omitempty"`
	Characteristics []CharacteristicConfig `json:"characteristics,omitempty"`
}

// PeripheralProfileConfig represents the complete GATT profile of a fake peripheral
type PeripheralProfileConfig struct {
	Services []ServiceConfig `json:"services"`
}

// PeripheralBuilder builds FakePeripheral instances with a fluent API.
type PeripheralBuilder struct {
	id          string
	name        string
	autoRespond bool
	profile     PeripheralProfileConfig
}

// NewPeripheralBuilder creates a builder for a peripheral with the given identity.
// Built peripherals answer requests automatically unless WithManualResponses is used.
func NewPeripheralBuilder(id, name string) *PeripheralBuilder {
	return &PeripheralBuilder{id: id, name: name, autoRespond: true}
}

// WithManualResponses leaves answering requests to the test.
func (b *PeripheralBuilder) WithManualResponses() *PeripheralBuilder {
	b.autoRespond = false
	return b
}

// WithService adds a primary service to the profile
func (b *PeripheralBuilder) WithService(uuid string) *PeripheralBuilder {
	b.profile.Services = append(b.profile.Services, ServiceConfig{UUID: uuid})
	return b
}

// WithCharacteristic adds a characteristic to the last added service
func (b *PeripheralBuilder) WithCharacteristic(uuid, properties string, value []byte) *PeripheralBuilder {
	if len(b.profile.Services) == 0 {
		panic("WithCharacteristic: no service added yet, call WithService first")
	}
	svc := &b.profile.Services[len(b.profile.Services)-1]
	svc.Characteristics = append(svc.Characteristics, CharacteristicConfig{
		UUID:       uuid,
		Properties: properties,
		Value:      value,
	})
	return b
}

// WithDescriptor adds a descriptor to the last added characteristic
func (b *PeripheralBuilder) WithDescriptor(uuid string, value []byte) *PeripheralBuilder {
	if len(b.profile.Services) == 0 {
		panic("WithDescriptor: no service added yet, call WithService first")
	}
	svc := &b.profile.Services[len(b.profile.Services)-1]
	if len(svc.Characteristics) == 0 {
		panic("WithDescriptor: no characteristic added yet, call WithCharacteristic first")
	}
	chr := &svc.Characteristics[len(svc.Characteristics)-1]
	chr.Descriptors = append(chr.Descriptors, DescriptorConfig{UUID: uuid, Value: value})
	return b
}

// FromJSON replaces the profile with one decoded from JSON.
// Panics on invalid JSON as this is intended for test data setup.
func (b *PeripheralBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *PeripheralBuilder {
	jsonStr := fmt.Sprintf(jsonStrFmt, args...)

	var config PeripheralProfileConfig
	if err := json.Unmarshal([]byte(jsonStr), &config); err != nil {
		panic(fmt.Sprintf("PeripheralBuilder.FromJSON: failed to unmarshal: %v", err))
	}
	b.profile = config
	return b
}

// ParseProperties converts a comma separated property list to a bitmask.
// An empty list means read,write,notify.
func ParseProperties(props string) device.Properties {
	if strings.TrimSpace(props) == "" {
		return device.PropRead | device.PropWrite | device.PropNotify
	}

	var p device.Properties
	for _, name := range strings.Split(props, ",") {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "broadcast":
			p |= device.PropBroadcast
		case "read":
			p |= device.PropRead
		case "write-without-response", "writenr":
			p |= device.PropWriteNR
		case "write":
			p |= device.PropWrite
		case "notify":
			p |= device.PropNotify
		case "indicate":
			p |= device.PropIndicate
		default:
			panic(fmt.Sprintf("ParseProperties: unknown property %q", name))
		}
	}
	return p
}

// Build creates the FakePeripheral.
func (b *PeripheralBuilder) Build() *FakePeripheral {
	p := newFakePeripheral(b.id, b.name)
	p.autoRespond = b.autoRespond

	for _, sc := range b.profile.Services {
		svc := &FakeService{uuid: sc.UUID, primary: !sc.Secondary}
		for _, cc := range sc.Characteristics {
			chr := &FakeCharacteristic{
				uuid:        cc.UUID,
				serviceUUID: sc.UUID,
				props:       ParseProperties(cc.Properties),
				value:       cc.Value,
			}
			for _, dc := range cc.Descriptors {
				chr.descriptors = append(chr.descriptors, &FakeDescriptor{
					uuid:        dc.UUID,
					serviceUUID: sc.UUID,
					charUUID:    cc.UUID,
					value:       dc.Value,
				})
			}
			svc.characteristics = append(svc.characteristics, chr)
		}
		p.services = append(p.services, svc)
	}
	return p
}
