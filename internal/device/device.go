package device

// Executor runs callbacks. Implementations deliver work serially in submission order.
type Executor interface {
	Async(fn func())
}

// RestoreState carries what the platform hands back when it relaunches the process
// with connections or scans that were active before.
type RestoreState struct {
	Peripherals  []Peripheral
	ScanServices []string
}

// Central is the platform central-manager facility. All calls are non-blocking;
// outcomes arrive on the CentralDelegate bound at construction.
type Central interface {
	State() PowerState
	IsScanning() bool
	StartScan(services []string)
	StopScan()
	Connect(p Peripheral)
	CancelConnection(p Peripheral)
	Close() error
}

// CentralDelegate is the single callback sink of a Central.
type CentralDelegate interface {
	CentralDidUpdateState(state PowerState)
	CentralWillRestoreState(state RestoreState)
	CentralDidDiscover(p Peripheral, adv Advertisement, rssi int)
	CentralDidConnect(p Peripheral)
	CentralDidDisconnect(p Peripheral, err error)
	CentralDidFailToConnect(p Peripheral, err error)
}

// CentralFactory creates the platform central with delegate as its callback sink.
// A nil queue means the implementation picks its own serial executor.
type CentralFactory func(delegate CentralDelegate, queue Executor) (Central, error)

// Peripheral is a remote GATT server as seen by the platform. Requests are
// fire-and-forget; results arrive on the attached PeripheralDelegate.
type Peripheral interface {
	ID() string
	Name() string
	SetDelegate(d PeripheralDelegate)
	Services() []Service
	DiscoverServices(filter []string)
	DiscoverCharacteristics(filter []string, svc Service)
	DiscoverDescriptors(chr Characteristic)
	ReadValue(chr Characteristic)
	ReadDescriptor(d Descriptor)
	SetNotify(enabled bool, chr Characteristic)
}

// PeripheralDelegate receives GATT results for one peripheral.
type PeripheralDelegate interface {
	DidDiscoverServices(p Peripheral, services []Service, err error)
	DidDiscoverCharacteristics(p Peripheral, svc Service, chars []Characteristic, err error)
	DidDiscoverDescriptors(p Peripheral, chr Characteristic, descs []Descriptor, err error)
	DidUpdateValue(p Peripheral, chr Characteristic, value []byte, err error)
	DidUpdateDescriptorValue(p Peripheral, d Descriptor, value []byte, err error)
	DidUpdateNotificationState(p Peripheral, chr Characteristic, enabled bool, err error)
}

// Service represents a GATT service
type Service interface {
	UUID() string
	IsPrimary() bool
}

// Characteristic represents a GATT characteristic
type Characteristic interface {
	UUID() string
	ServiceUUID() string
	Properties() Properties
}

// Descriptor represents a GATT descriptor
type Descriptor interface {
	UUID() string
	ServiceUUID() string
	CharacteristicUUID() string
}

// Advertisement is a single advertising report.
type Advertisement interface {
	LocalName() string
	ManufacturerData() []byte
	ServiceData() []ServiceData
	Services() []string
	TxPowerLevel() int
	Connectable() bool
	RSSI() int
	Addr() string
}

// ServiceData is one service-data element of an advertisement.
type ServiceData struct {
	UUID string
	Data []byte
}
