package testutils

import (
	"bytes"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
	Logs   *bytes.Buffer
}

// NewTestHelper creates a test helper whose logger writes debug output into Logs.
func NewTestHelper(t *testing.T) *TestHelper {
	buf := &bytes.Buffer{}
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	logger.SetOutput(buf)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableColors: true})
	return &TestHelper{
		T:      t,
		Logger: logger,
		Logs:   buf,
	}
}

// Eventually waits until cond holds, failing the test after timeout.
func (h *TestHelper) Eventually(cond func() bool, timeout time.Duration, msg string) {
	h.T.Helper()
	require.Eventually(h.T, cond, timeout, 5*time.Millisecond, msg)
}

// CreateMockAdvertisement returns a builder preset with name, address and RSSI.
func CreateMockAdvertisement(name, address string, rssi int) *AdvertisementBuilder {
	return NewAdvertisementBuilder().WithName(name).WithAddress(address).WithRSSI(rssi)
}

// CreateHeartRatePeripheral returns a builder for a peripheral exposing the
// Heart Rate and Battery services.
func CreateHeartRatePeripheral(id string) *PeripheralBuilder {
	return NewPeripheralBuilder(id, "HRM").
		WithService("180D").
		WithCharacteristic("2A37", "read,notify", []byte{0x00, 0x50}).
		WithDescriptor("2902", []byte{0x00, 0x00}).
		WithCharacteristic("2A38", "read", []byte{0x01}).
		WithService("180F").
		WithCharacteristic("2A19", "read,notify", []byte{0x64})
}
