package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/blescope/internal/device"
)

var propertyBits = []struct {
	ble ble.Property
	dev device.Properties
}{
	{ble.CharBroadcast, device.PropBroadcast},
	{ble.CharRead, device.PropRead},
	{ble.CharWriteNR, device.PropWriteNR},
	{ble.CharWrite, device.PropWrite},
	{ble.CharNotify, device.PropNotify},
	{ble.CharIndicate, device.PropIndicate},
	{ble.CharSignedWrite, device.PropSignedWrite},
	{ble.CharExtended, device.PropExtended},
}

// NewProperties converts go-ble property flags.
func NewProperties(p ble.Property) device.Properties {
	var out device.Properties
	for _, b := range propertyBits {
		if p&b.ble != 0 {
			out |= b.dev
		}
	}
	return out
}
