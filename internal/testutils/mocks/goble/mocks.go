// Package goble holds testify mocks of the go-ble interfaces used by the
// platform adapter. Methods the adapter never calls fall through to the
// embedded interface and panic if reached.
package goble

import (
	"context"
	"sync"

	"github.com/go-ble/ble"
	"github.com/stretchr/testify/mock"
)

// MockDevice mocks ble.Device.
type MockDevice struct {
	mock.Mock
	ble.Device
}

func (m *MockDevice) Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error {
	args := m.Called(ctx, allowDup, h)
	return args.Error(0)
}

func (m *MockDevice) Dial(ctx context.Context, a ble.Addr) (ble.Client, error) {
	args := m.Called(ctx, a)
	client, _ := args.Get(0).(ble.Client)
	return client, args.Error(1)
}

func (m *MockDevice) Stop() error {
	args := m.Called()
	return args.Error(0)
}

// MockClient mocks ble.Client. Drop closes the Disconnected channel the way
// the platform does on link loss.
type MockClient struct {
	mock.Mock
	ble.Client

	once         sync.Once
	disconnected chan struct{}
}

// NewMockClient creates a client with an open Disconnected channel.
func NewMockClient() *MockClient {
	return &MockClient{disconnected: make(chan struct{})}
}

// Drop simulates a remote disconnect.
func (m *MockClient) Drop() {
	m.once.Do(func() { close(m.disconnected) })
}

func (m *MockClient) Disconnected() <-chan struct{} { return m.disconnected }

func (m *MockClient) DiscoverServices(filter []ble.UUID) ([]*ble.Service, error) {
	args := m.Called(filter)
	svcs, _ := args.Get(0).([]*ble.Service)
	return svcs, args.Error(1)
}

func (m *MockClient) DiscoverCharacteristics(filter []ble.UUID, s *ble.Service) ([]*ble.Characteristic, error) {
	args := m.Called(filter, s)
	chars, _ := args.Get(0).([]*ble.Characteristic)
	return chars, args.Error(1)
}

func (m *MockClient) DiscoverDescriptors(filter []ble.UUID, c *ble.Characteristic) ([]*ble.Descriptor, error) {
	args := m.Called(filter, c)
	descs, _ := args.Get(0).([]*ble.Descriptor)
	return descs, args.Error(1)
}

func (m *MockClient) ReadCharacteristic(c *ble.Characteristic) ([]byte, error) {
	args := m.Called(c)
	value, _ := args.Get(0).([]byte)
	return value, args.Error(1)
}

func (m *MockClient) ReadDescriptor(d *ble.Descriptor) ([]byte, error) {
	args := m.Called(d)
	value, _ := args.Get(0).([]byte)
	return value, args.Error(1)
}

func (m *MockClient) Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error {
	args := m.Called(c, ind, h)
	return args.Error(0)
}

func (m *MockClient) Unsubscribe(c *ble.Characteristic, ind bool) error {
	args := m.Called(c, ind)
	return args.Error(0)
}

func (m *MockClient) CancelConnection() error {
	args := m.Called()
	m.Drop()
	return args.Error(0)
}

// StubAdvertisement is a fixed ble.Advertisement.
type StubAdvertisement struct {
	ble.Advertisement

	Name        string
	Address     string
	Power       int
	Strength    int
	Connect     bool
	Manufacture []byte
	UUIDs       []ble.UUID
	Data        []ble.ServiceData
}

func (a *StubAdvertisement) LocalName() string              { return a.Name }
func (a *StubAdvertisement) ManufacturerData() []byte       { return a.Manufacture }
func (a *StubAdvertisement) ServiceData() []ble.ServiceData { return a.Data }
func (a *StubAdvertisement) Services() []ble.UUID           { return a.UUIDs }
func (a *StubAdvertisement) OverflowService() []ble.UUID    { return nil }
func (a *StubAdvertisement) TxPowerLevel() int              { return a.Power }
func (a *StubAdvertisement) Connectable() bool              { return a.Connect }
func (a *StubAdvertisement) SolicitedService() []ble.UUID   { return nil }
func (a *StubAdvertisement) RSSI() int                      { return a.Strength }
func (a *StubAdvertisement) Addr() ble.Addr                 { return ble.NewAddr(a.Address) }
