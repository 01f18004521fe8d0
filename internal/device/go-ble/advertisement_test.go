package goble

import (
	"testing"

	"github.com/go-ble/ble"
	"github.com/srg/blescope/internal/device"
	blemocks "github.com/srg/blescope/internal/testutils/mocks/goble"
	"github.com/stretchr/testify/assert"
)

func TestAdvertisementNormalizesUUIDs(t *testing.T) {
	adv := NewBLEAdvertisement(&blemocks.StubAdvertisement{
		Name:     "Thermo",
		Address:  "AA:BB:CC:DD:EE:FF",
		Strength: -61,
		Connect:  true,
		UUIDs:    []ble.UUID{ble.UUID16(0x180A), ble.MustParse("6e400001-b5a3-f393-e0a9-e50e24dcca9e")},
		Data:     []ble.ServiceData{{UUID: ble.UUID16(0xFEAA), Data: []byte{1}}},
	})

	assert.Equal(t, []string{"180a", "6e400001b5a3f393e0a9e50e24dcca9e"}, adv.Services())
	assert.Equal(t, []device.ServiceData{{UUID: "feaa", Data: []byte{1}}}, adv.ServiceData())
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", adv.Addr())
	assert.True(t, adv.Connectable())
	assert.Equal(t, -61, adv.RSSI())

	assert.True(t, adv.Advertises(nil), "empty filter MUST match")
	assert.True(t, adv.Advertises([]string{"180a"}))
	assert.False(t, adv.Advertises([]string{"180d"}))
}

func TestNewPropertiesMapsEveryBit(t *testing.T) {
	assert.Equal(t, device.Properties(0), NewProperties(0))
	assert.Equal(t, device.PropRead|device.PropNotify, NewProperties(ble.CharRead|ble.CharNotify))
	assert.Equal(t, device.Properties(0xff), NewProperties(ble.Property(0xff)))
}

func TestIndicateOnlyWhenNotifyMissing(t *testing.T) {
	notify := newCharacteristic("180d", &ble.Characteristic{UUID: ble.UUID16(0x2a37), Property: ble.CharNotify | ble.CharIndicate})
	indicate := newCharacteristic("1808", &ble.Characteristic{UUID: ble.UUID16(0x2a18), Property: ble.CharIndicate})

	assert.False(t, notify.indicate())
	assert.True(t, indicate.indicate())
	assert.Equal(t, "2a18", indicate.UUID())
	assert.Equal(t, "1808", indicate.ServiceUUID())
}

func TestParseUUIDs(t *testing.T) {
	uuids, err := parseUUIDs(nil)
	assert.NoError(t, err)
	assert.Nil(t, uuids)

	uuids, err = parseUUIDs([]string{"0x180D"})
	assert.NoError(t, err)
	assert.True(t, uuids[0].Equal(ble.UUID16(0x180d)))

	_, err = parseUUIDs([]string{"zz"})
	assert.Error(t, err)
}
