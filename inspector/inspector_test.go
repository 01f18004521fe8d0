//go:build test

package inspector_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/srg/blescope/inspector"
	"github.com/srg/blescope/internal/central"
	"github.com/srg/blescope/internal/device"
	"github.com/srg/blescope/internal/display"
	"github.com/srg/blescope/internal/testutils"
	"github.com/stretchr/testify/suite"
)

const hrmAddr = "AA:BB:CC:DD:EE:FF"

type InspectorTestSuite struct {
	suite.Suite
	helper *testutils.TestHelper
	fake   *testutils.FakeCentral
	coord  *central.Coordinator
}

func (suite *InspectorTestSuite) SetupTest() {
	suite.helper = testutils.NewTestHelper(suite.T())
	suite.fake = testutils.NewFakeCentral(device.StatePoweredOn)
	suite.fake.ConnectImmediately = true
	suite.coord = central.New(suite.fake.Factory(), suite.helper.Logger)
	suite.Require().NoError(suite.coord.Start())
}

func (suite *InspectorTestSuite) TearDownTest() {
	suite.coord.Stop()
}

// advertiseWhenScanning emits one sighting of p once the scan has started.
func (suite *InspectorTestSuite) advertiseWhenScanning(p *testutils.FakePeripheral) {
	go func() {
		deadline := time.Now().Add(time.Second)
		for !suite.coord.IsScanning() && time.Now().Before(deadline) {
			time.Sleep(2 * time.Millisecond)
		}
		suite.fake.EmitDiscovered(p, testutils.CreateMockAdvertisement("HRM", p.ID(), -50).Build(), -50)
	}()
}

func (suite *InspectorTestSuite) TestInspectProducesSnapshot() {
	// GOAL: Verify a full inspection finds the peripheral, walks its profile and tears down
	//
	// TEST SCENARIO: Scan sights HRM → session walks two services → JSON snapshot → disconnect requested

	p := testutils.CreateHeartRatePeripheral(hrmAddr).Build()
	suite.advertiseWhenScanning(p)

	var phases []string
	snap, err := inspector.Inspect(context.Background(), suite.coord, hrmAddr, &inspector.InspectOptions{
		Timeout:         2 * time.Second,
		ReadDescriptors: true,
		ValueFormat:     display.Hex,
	}, suite.helper.Logger, func(phase string) { phases = append(phases, phase) })
	suite.Require().NoError(err)

	testutils.NewJSONAsserter(suite.T()).Assert(testutils.MustJSON(snap), `{
		"address": "AA:BB:CC:DD:EE:FF",
		"name": "HRM",
		"rssi": -50,
		"complete": true,
		"services": [
			{
				"uuid": "180d",
				"name": "Heart Rate",
				"primary": true,
				"characteristics": [
					{
						"uuid": "2a37",
						"name": "Heart Rate Measurement",
						"properties": ["Read", "Notify"],
						"value": "00 50",
						"descriptors": [
							{"uuid": "2902", "name": "Client Characteristic Configuration", "value": "00 00"}
						]
					},
					{
						"uuid": "2a38",
						"name": "Body Sensor Location",
						"properties": ["Read"],
						"value": "01"
					}
				]
			},
			{
				"uuid": "180f",
				"name": "Battery Service",
				"primary": true,
				"characteristics": [
					{"uuid": "2a19", "name": "Battery Level", "properties": ["Read", "Notify"], "value": "64"}
				]
			}
		]
	}`)

	suite.Equal("Scanning", phases[0])
	suite.Equal("Connecting", phases[1])
	suite.Equal("Processing results", phases[len(phases)-1])
	suite.Equal(1, suite.fake.CountCalls("CancelConnection:"+hrmAddr), "inspection MUST disconnect")
	suite.Equal(0, suite.coord.ObserverCount(), "inspection MUST unregister every observer")
	suite.False(suite.coord.IsScanning(), "scan MUST stop once the target is found")
}

func (suite *InspectorTestSuite) TestTargetServiceLimitsSnapshot() {
	p := testutils.CreateHeartRatePeripheral(hrmAddr).Build()
	suite.advertiseWhenScanning(p)

	snap, err := inspector.Inspect(context.Background(), suite.coord, hrmAddr, &inspector.InspectOptions{
		Timeout: 2 * time.Second,
		Service: "0x180F",
	}, suite.helper.Logger, nil)
	suite.Require().NoError(err)

	suite.Require().Len(snap.Services, 1)
	suite.Equal("180f", snap.Services[0].UUID)
	suite.Equal("d", snap.Services[0].Characteristics[0].Value, "auto format MUST render printable bytes as text")
}

func (suite *InspectorTestSuite) TestPeripheralNotFound() {
	_, err := inspector.Inspect(context.Background(), suite.coord, hrmAddr, &inspector.InspectOptions{
		Timeout: 50 * time.Millisecond,
	}, suite.helper.Logger, nil)

	var nf *device.NotFoundError
	suite.Require().ErrorAs(err, &nf)
	suite.Equal("peripheral", nf.Resource)
	suite.ErrorIs(err, device.ErrTimeout)
	suite.False(suite.coord.IsScanning())
}

func (suite *InspectorTestSuite) TestCancelledContext() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := inspector.Inspect(ctx, suite.coord, hrmAddr, nil, suite.helper.Logger, nil)
	suite.ErrorIs(err, context.Canceled)
}

func (suite *InspectorTestSuite) TestConnectFailure() {
	// GOAL: Verify a failed connection ends the inspection with the platform error
	//
	// TEST SCENARIO: Peripheral found → connect reported failed → error returned, session torn down

	suite.fake.ConnectImmediately = false
	p := testutils.CreateHeartRatePeripheral(hrmAddr).Build()
	suite.advertiseWhenScanning(p)
	go func() {
		deadline := time.Now().Add(time.Second)
		for suite.fake.CountCalls("Connect:"+hrmAddr) == 0 && time.Now().Before(deadline) {
			time.Sleep(2 * time.Millisecond)
		}
		suite.fake.EmitConnectFailed(p, errors.New("connection refused"))
	}()

	snap, err := inspector.Inspect(context.Background(), suite.coord, hrmAddr, &inspector.InspectOptions{
		Timeout: 2 * time.Second,
	}, suite.helper.Logger, nil)

	suite.Nil(snap)
	var te *device.TransportError
	suite.Require().ErrorAs(err, &te)
	suite.Equal("connect", te.Op)
	suite.Equal(0, suite.coord.ObserverCount())
}

func (suite *InspectorTestSuite) TestWalkTimeoutReturnsPartialSnapshot() {
	// GOAL: Verify a walk that never settles returns what is known with a timeout error
	//
	// TEST SCENARIO: Manual peripheral never answers service discovery → ErrTimeout + incomplete snapshot

	p := testutils.CreateHeartRatePeripheral(hrmAddr).WithManualResponses().Build()
	suite.advertiseWhenScanning(p)

	snap, err := inspector.Inspect(context.Background(), suite.coord, hrmAddr, &inspector.InspectOptions{
		Timeout: 150 * time.Millisecond,
	}, suite.helper.Logger, nil)

	suite.ErrorIs(err, device.ErrTimeout)
	suite.Require().NotNil(snap)
	suite.False(snap.Complete)
	suite.Empty(snap.Services)
	suite.Equal("HRM", snap.Name)
}

func TestInspectorTestSuite(t *testing.T) {
	suite.Run(t, new(InspectorTestSuite))
}
