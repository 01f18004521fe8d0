package testutils

import (
	"sync"

	"github.com/srg/blescope/internal/device"
	"github.com/srg/blescope/internal/dispatch"
)

// FakeCentral is a scriptable device.Central. It records every request and
// lets the test push platform callbacks into the bound delegate.
type FakeCentral struct {
	mu        sync.Mutex
	delegate  device.CentralDelegate
	queue     device.Executor
	state     device.PowerState
	scanning  bool
	closed    bool
	calls     []string
	filters   [][]string
	creations int

	// FactoryErr, when set, makes Factory fail.
	FactoryErr error
	// ConnectImmediately makes Connect report success right away.
	ConnectImmediately bool
}

// NewFakeCentral creates a central reporting the given radio state.
func NewFakeCentral(state device.PowerState) *FakeCentral {
	return &FakeCentral{state: state}
}

// Factory returns a device.CentralFactory that binds this fake. A nil queue
// delivers callbacks inline.
func (f *FakeCentral) Factory() device.CentralFactory {
	return func(delegate device.CentralDelegate, queue device.Executor) (device.Central, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.FactoryErr != nil {
			return nil, f.FactoryErr
		}
		if queue == nil {
			queue = dispatch.Inline{}
		}
		f.delegate = delegate
		f.queue = queue
		f.closed = false
		f.creations++
		return f, nil
	}
}

// Creations returns how many times the factory produced this central.
func (f *FakeCentral) Creations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creations
}

func (f *FakeCentral) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

// Calls returns a copy of the recorded requests.
func (f *FakeCentral) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CountCalls returns how many recorded requests equal call.
func (f *FakeCentral) CountCalls(call string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

// ScanFilters returns the service filters of every StartScan.
func (f *FakeCentral) ScanFilters() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.filters...)
}

// Closed reports whether Close was called since the last creation.
func (f *FakeCentral) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *FakeCentral) State() device.PowerState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *FakeCentral) IsScanning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scanning
}

func (f *FakeCentral) StartScan(services []string) {
	f.mu.Lock()
	f.scanning = true
	f.filters = append(f.filters, services)
	f.calls = append(f.calls, "StartScan")
	f.mu.Unlock()
}

func (f *FakeCentral) StopScan() {
	f.mu.Lock()
	f.scanning = false
	f.calls = append(f.calls, "StopScan")
	f.mu.Unlock()
}

func (f *FakeCentral) Connect(p device.Peripheral) {
	f.record("Connect:" + p.ID())
	f.mu.Lock()
	immediate := f.ConnectImmediately
	f.mu.Unlock()
	if immediate {
		f.EmitConnected(p)
	}
}

func (f *FakeCentral) CancelConnection(p device.Peripheral) {
	f.record("CancelConnection:" + p.ID())
}

func (f *FakeCentral) Close() error {
	f.mu.Lock()
	f.closed = true
	f.scanning = false
	f.calls = append(f.calls, "Close")
	f.mu.Unlock()
	return nil
}

func (f *FakeCentral) deliver(fn func(d device.CentralDelegate)) {
	f.mu.Lock()
	d, q := f.delegate, f.queue
	f.mu.Unlock()
	if d == nil {
		return
	}
	q.Async(func() { fn(d) })
}

// EmitState changes the radio state and reports it.
func (f *FakeCentral) EmitState(state device.PowerState) {
	f.mu.Lock()
	f.state = state
	if state != device.StatePoweredOn {
		f.scanning = false
	}
	f.mu.Unlock()
	f.deliver(func(d device.CentralDelegate) { d.CentralDidUpdateState(state) })
}

// EmitRestore reports a state restoration.
func (f *FakeCentral) EmitRestore(state device.RestoreState) {
	f.deliver(func(d device.CentralDelegate) { d.CentralWillRestoreState(state) })
}

// EmitDiscovered reports an advertisement from p.
func (f *FakeCentral) EmitDiscovered(p device.Peripheral, adv device.Advertisement, rssi int) {
	f.deliver(func(d device.CentralDelegate) { d.CentralDidDiscover(p, adv, rssi) })
}

// EmitConnected reports a successful connection.
func (f *FakeCentral) EmitConnected(p device.Peripheral) {
	f.deliver(func(d device.CentralDelegate) { d.CentralDidConnect(p) })
}

// EmitDisconnected reports a disconnection.
func (f *FakeCentral) EmitDisconnected(p device.Peripheral, err error) {
	f.deliver(func(d device.CentralDelegate) { d.CentralDidDisconnect(p, err) })
}

// EmitConnectFailed reports a failed connection attempt.
func (f *FakeCentral) EmitConnectFailed(p device.Peripheral, err error) {
	f.deliver(func(d device.CentralDelegate) { d.CentralDidFailToConnect(p, err) })
}

var _ device.Central = (*FakeCentral)(nil)
