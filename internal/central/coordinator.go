// Package central owns the process-wide connection to the platform central
// manager and fans its callbacks out to weakly held observers.
package central

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/blescope/internal/device"
)

// Coordinator wraps a single platform central. Construct one per process and
// pass it to whoever needs it.
type Coordinator struct {
	factory   device.CentralFactory
	logger    *logrus.Logger
	observers Registry[Observer]

	// startMu serialises Start and Stop so the factory runs outside mu.
	startMu sync.Mutex
	mu      sync.RWMutex
	central device.Central
}

type startOptions struct {
	queue device.Executor
}

// StartOption configures Start.
type StartOption func(*startOptions)

// WithExecutor selects the executor platform callbacks are delivered on.
func WithExecutor(q device.Executor) StartOption {
	return func(o *startOptions) { o.queue = q }
}

// New creates an unstarted coordinator.
func New(factory device.CentralFactory, logger *logrus.Logger) *Coordinator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Coordinator{factory: factory, logger: logger}
}

// Start creates the platform central if it does not exist yet. Calling Start
// on a started coordinator does nothing.
func (c *Coordinator) Start(opts ...StartOption) error {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	if c.current() != nil {
		return nil
	}

	var o startOptions
	for _, opt := range opts {
		opt(&o)
	}
	if c.factory == nil {
		return fmt.Errorf("central factory is not configured: %w", device.ErrNotInitialized)
	}

	central, err := c.factory(c, o.queue)
	if err != nil {
		err = device.NormalizeError(err)
		c.logger.WithError(err).Error("Failed to create central manager")
		return fmt.Errorf("failed to start central: %w", err)
	}

	c.mu.Lock()
	c.central = central
	c.mu.Unlock()

	c.logger.WithField("state", central.State()).Debug("Central manager started")
	return nil
}

// Stop halts any scan and releases the platform central. Stopping an
// unstarted coordinator does nothing.
func (c *Coordinator) Stop() {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	c.mu.Lock()
	central := c.central
	c.central = nil
	c.mu.Unlock()

	if central == nil {
		return
	}
	if central.IsScanning() {
		central.StopScan()
	}
	if err := central.Close(); err != nil {
		c.logger.WithError(err).Warn("Failed to close central manager")
	}
	c.logger.Debug("Central manager stopped")
}

func (c *Coordinator) current() device.Central {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.central
}

// Started reports whether a platform central is held.
func (c *Coordinator) Started() bool {
	return c.current() != nil
}

// State returns the radio state, or StateUnknown when not started.
func (c *Coordinator) State() device.PowerState {
	if central := c.current(); central != nil {
		return central.State()
	}
	return device.StateUnknown
}

// IsScanning reports whether a scan is running.
func (c *Coordinator) IsScanning() bool {
	if central := c.current(); central != nil {
		return central.IsScanning()
	}
	return false
}

// Scan starts scanning, optionally limited to peripherals advertising one of
// services. It is a no-op when not started.
func (c *Coordinator) Scan(services []string) {
	central := c.current()
	if central == nil {
		c.logger.Debug("Scan requested before central started, ignoring")
		return
	}
	c.logger.WithField("services", services).Debug("Starting scan")
	central.StartScan(services)
}

// StopScan stops a running scan.
func (c *Coordinator) StopScan() {
	if central := c.current(); central != nil {
		central.StopScan()
	}
}

// Connect asks the platform to connect p.
func (c *Coordinator) Connect(p device.Peripheral) {
	central := c.current()
	if central == nil || p == nil {
		c.logger.Debug("Connect requested before central started, ignoring")
		return
	}
	c.logger.WithField("peripheral", p.ID()).Debug("Connecting")
	central.Connect(p)
}

// Disconnect asks the platform to cancel the connection to p.
func (c *Coordinator) Disconnect(p device.Peripheral) {
	central := c.current()
	if central == nil || p == nil {
		return
	}
	c.logger.WithField("peripheral", p.ID()).Debug("Cancelling connection")
	central.CancelConnection(p)
}

// AddObserver registers o without taking ownership of it.
func (c *Coordinator) AddObserver(o *Observer) {
	c.observers.Add(o)
}

// RemoveObserver unregisters o.
func (c *Coordinator) RemoveObserver(o *Observer) {
	c.observers.Remove(o)
}

// ObserverCount compacts the registry and returns the number of live observers.
func (c *Coordinator) ObserverCount() int {
	return c.observers.Compact()
}

func (c *Coordinator) each(fn func(o *Observer)) {
	for _, o := range c.observers.Snapshot() {
		fn(o)
	}
}

// CentralDidUpdateState implements device.CentralDelegate.
func (c *Coordinator) CentralDidUpdateState(state device.PowerState) {
	c.logger.WithField("state", state).Info("Central state changed")
	c.each(func(o *Observer) {
		if o.OnPowerStateChanged != nil {
			o.OnPowerStateChanged(state)
		}
	})
}

// CentralWillRestoreState implements device.CentralDelegate.
func (c *Coordinator) CentralWillRestoreState(state device.RestoreState) {
	c.logger.WithField("peripherals", len(state.Peripherals)).Debug("Central restoring state")
	c.each(func(o *Observer) {
		if o.OnRestoreState != nil {
			o.OnRestoreState(state)
		}
	})
}

// CentralDidDiscover implements device.CentralDelegate.
func (c *Coordinator) CentralDidDiscover(p device.Peripheral, adv device.Advertisement, rssi int) {
	c.each(func(o *Observer) {
		if o.OnPeripheralDiscovered != nil {
			o.OnPeripheralDiscovered(p, adv, rssi)
		}
	})
}

// CentralDidConnect implements device.CentralDelegate.
func (c *Coordinator) CentralDidConnect(p device.Peripheral) {
	c.logger.WithField("peripheral", p.ID()).Info("Peripheral connected")
	c.each(func(o *Observer) {
		if o.OnPeripheralConnected != nil {
			o.OnPeripheralConnected(p)
		}
	})
}

// CentralDidDisconnect implements device.CentralDelegate.
func (c *Coordinator) CentralDidDisconnect(p device.Peripheral, err error) {
	entry := c.logger.WithField("peripheral", p.ID())
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Info("Peripheral disconnected")
	c.each(func(o *Observer) {
		if o.OnPeripheralDisconnected != nil {
			o.OnPeripheralDisconnected(p, err)
		}
	})
}

// CentralDidFailToConnect implements device.CentralDelegate.
func (c *Coordinator) CentralDidFailToConnect(p device.Peripheral, err error) {
	c.logger.WithFields(logrus.Fields{
		"peripheral": p.ID(),
		"error":      err,
	}).Warn("Failed to connect peripheral")
	c.each(func(o *Observer) {
		if o.OnConnectFailed != nil {
			o.OnConnectFailed(p, err)
		}
	})
}

var _ device.CentralDelegate = (*Coordinator)(nil)
