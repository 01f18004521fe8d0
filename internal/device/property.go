package device

import "strings"

// Properties is the characteristic property bitmask. Bit values match the
// GATT characteristic properties field and go-ble's ble.Property.
type Properties uint8

const (
	PropBroadcast   Properties = 0x01
	PropRead        Properties = 0x02
	PropWriteNR     Properties = 0x04
	PropWrite       Properties = 0x08
	PropNotify      Properties = 0x10
	PropIndicate    Properties = 0x20
	PropSignedWrite Properties = 0x40
	PropExtended    Properties = 0x80
)

var propertyNames = []struct {
	bit  Properties
	name string
}{
	{PropBroadcast, "Broadcast"},
	{PropRead, "Read"},
	{PropWriteNR, "WriteWithoutResponse"},
	{PropWrite, "Write"},
	{PropNotify, "Notify"},
	{PropIndicate, "Indicate"},
	{PropSignedWrite, "AuthenticatedSignedWrites"},
	{PropExtended, "ExtendedProperties"},
}

// Has reports whether all bits of q are set.
func (p Properties) Has(q Properties) bool {
	return p&q == q
}

// CanNotify reports whether the characteristic supports notify or indicate.
func (p Properties) CanNotify() bool {
	return p&(PropNotify|PropIndicate) != 0
}

// Names returns the set property names in bit order.
func (p Properties) Names() []string {
	names := make([]string, 0, len(propertyNames))
	for _, pn := range propertyNames {
		if p&pn.bit != 0 {
			names = append(names, pn.name)
		}
	}
	return names
}

func (p Properties) String() string {
	if p == 0 {
		return "None"
	}
	return strings.Join(p.Names(), "|")
}
