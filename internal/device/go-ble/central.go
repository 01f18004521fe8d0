package goble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blescope/internal/device"
	"github.com/srg/blescope/internal/dispatch"
	"github.com/srg/blescope/internal/groutine"
)

// DefaultConnectTimeout bounds a single Dial.
const DefaultConnectTimeout = 30 * time.Second

// Option configures a Central.
type Option func(*Central)

// WithConnectTimeout overrides DefaultConnectTimeout. Non-positive values are ignored.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Central) {
		if d > 0 {
			c.connectTimeout = d
		}
	}
}

// NewFactory returns a device.CentralFactory backed by DeviceFactory.
func NewFactory(logger *logrus.Logger, opts ...Option) device.CentralFactory {
	return func(delegate device.CentralDelegate, queue device.Executor) (device.Central, error) {
		c, err := NewCentral(delegate, queue, logger, opts...)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// Central implements device.Central over a go-ble device. Blocking go-ble
// calls run on their own goroutines; every result reaches the delegate
// through the callback executor.
type Central struct {
	dev            ble.Device
	delegate       device.CentralDelegate
	queue          device.Executor
	ownQueue       *dispatch.Queue
	logger         *logrus.Logger
	connectTimeout time.Duration

	peripherals *hashmap.Map[string, *Peripheral]

	mu         sync.Mutex
	state      device.PowerState
	scanning   bool
	scanGen    uint64
	scanCancel context.CancelFunc
	filter     []string
	dials      map[string]context.CancelFunc
	closed     bool
}

// NewCentral opens the platform device and reports its state to delegate.
// A nil queue gets a private serial queue.
func NewCentral(delegate device.CentralDelegate, queue device.Executor, logger *logrus.Logger, opts ...Option) (*Central, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if delegate == nil {
		return nil, fmt.Errorf("central delegate is required: %w", device.ErrNotInitialized)
	}

	dev, err := DeviceFactory()
	if err != nil {
		err = NormalizeError(err)
		logger.WithError(err).Error("Failed to create BLE device")
		return nil, fmt.Errorf("failed to create BLE device: %w", err)
	}

	c := &Central{
		dev:            dev,
		delegate:       delegate,
		queue:          queue,
		logger:         logger,
		connectTimeout: DefaultConnectTimeout,
		peripherals:    hashmap.New[string, *Peripheral](),
		state:          device.StatePoweredOn,
		dials:          make(map[string]context.CancelFunc),
	}
	if c.queue == nil {
		c.ownQueue = dispatch.NewQueue("central", logger)
		c.queue = c.ownQueue
	}
	for _, opt := range opts {
		opt(c)
	}

	c.queue.Async(func() { c.delegate.CentralDidUpdateState(device.StatePoweredOn) })
	return c, nil
}

func (c *Central) State() device.PowerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Central) IsScanning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scanning
}

// setState records a radio state change and reports it once.
func (c *Central) setState(state device.PowerState) {
	c.mu.Lock()
	if c.state == state || c.closed {
		c.mu.Unlock()
		return
	}
	c.state = state
	c.mu.Unlock()

	c.logger.WithField("state", state).Info("Bluetooth state changed")
	c.queue.Async(func() { c.delegate.CentralDidUpdateState(state) })
}

// peripheral returns the single Peripheral for id, creating it on first sight.
func (c *Central) peripheral(id, name string) *Peripheral {
	p, ok := c.peripherals.Get(id)
	if !ok {
		p, _ = c.peripherals.GetOrInsert(id, newPeripheral(c, id))
	}
	if name != "" {
		p.setName(name)
	}
	return p
}

// resolve maps any device.Peripheral to the instance owned by this central.
func (c *Central) resolve(p device.Peripheral) *Peripheral {
	if bp, ok := p.(*Peripheral); ok && bp.central == c {
		return bp
	}
	return c.peripheral(p.ID(), p.Name())
}

// Connect dials p. Dialling a peripheral that is already connected or being
// dialled does nothing.
func (c *Central) Connect(p device.Peripheral) {
	if p == nil {
		return
	}
	bp := c.resolve(p)
	id := bp.ID()

	c.mu.Lock()
	if c.closed || c.state != device.StatePoweredOn {
		state := c.state
		c.mu.Unlock()
		var cause error = device.ErrNotInitialized
		if state == device.StatePoweredOff {
			cause = device.ErrBluetoothOff
		}
		err := fmt.Errorf("cannot connect while Bluetooth is %s: %w", state, cause)
		c.queue.Async(func() { c.delegate.CentralDidFailToConnect(bp, err) })
		return
	}
	if _, pending := c.dials[id]; pending || bp.connected() {
		c.mu.Unlock()
		c.logger.WithField("address", id).Debug("Connect ignored, already connected or connecting")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.connectTimeout)
	c.dials[id] = cancel
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"address": id,
		"timeout": c.connectTimeout,
	}).Info("Connecting to BLE device...")

	groutine.Go(ctx, "ble-dial-"+id, func(ctx context.Context) {
		client, err := c.dev.Dial(ctx, ble.NewAddr(id))

		c.mu.Lock()
		_, stillWanted := c.dials[id]
		delete(c.dials, id)
		closed := c.closed
		c.mu.Unlock()
		cancel()

		if !stillWanted || closed {
			c.logger.WithField("address", id).Debug("Dial finished after cancellation")
			if err == nil && client != nil {
				_ = client.CancelConnection()
			}
			return
		}
		if err != nil {
			err = NormalizeError(err)
			c.logger.WithFields(logrus.Fields{
				"address": id,
				"error":   err,
			}).Error("Failed to dial BLE device")
			c.queue.Async(func() { c.delegate.CentralDidFailToConnect(bp, err) })
			return
		}

		bp.attach(client)
		c.logger.WithField("address", id).Info("BLE device connected successfully")
		c.queue.Async(func() { c.delegate.CentralDidConnect(bp) })
		c.monitor(bp, client)
	})
}

// monitor reports a link loss the platform signals through Disconnected().
func (c *Central) monitor(bp *Peripheral, client ble.Client) {
	dc, ok := client.(interface{ Disconnected() <-chan struct{} })
	if !ok {
		c.logger.Debug("Client does not support Disconnected() channel")
		return
	}
	link := bp.linkDone()
	groutine.Go(context.Background(), "ble-link-monitor-"+bp.ID(), func(ctx context.Context) {
		select {
		case <-dc.Disconnected():
			if bp.detach(client) {
				c.logger.WithField("address", bp.ID()).Warn("Peripheral disconnected")
				err := fmt.Errorf("link lost: %w", device.ErrNotConnected)
				c.queue.Async(func() { c.delegate.CentralDidDisconnect(bp, err) })
			}
		case <-link:
		}
	})
}

// CancelConnection aborts a pending dial or drops an established link. A
// dropped link is reported through CentralDidDisconnect with a nil error.
func (c *Central) CancelConnection(p device.Peripheral) {
	if p == nil {
		return
	}
	bp := c.resolve(p)

	c.mu.Lock()
	cancel, pending := c.dials[bp.ID()]
	delete(c.dials, bp.ID())
	c.mu.Unlock()
	if pending {
		cancel()
		c.logger.WithField("address", bp.ID()).Debug("Pending connection cancelled")
		return
	}

	client := bp.client()
	if client == nil || !bp.detach(client) {
		return
	}
	c.logger.WithField("address", bp.ID()).Info("Disconnecting BLE device...")
	if err := client.CancelConnection(); err != nil {
		c.logger.WithError(NormalizeError(err)).Warn("BLE device disconnected with errors")
	}
	c.queue.Async(func() { c.delegate.CentralDidDisconnect(bp, nil) })
}

// Close stops scanning, drops every link and releases the device.
func (c *Central) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.scanCancel != nil {
		c.scanCancel()
		c.scanCancel = nil
	}
	c.scanning = false
	for id, cancel := range c.dials {
		cancel()
		delete(c.dials, id)
	}
	c.mu.Unlock()

	c.peripherals.Range(func(_ string, p *Peripheral) bool {
		if client := p.client(); client != nil && p.detach(client) {
			_ = client.CancelConnection()
		}
		return true
	})

	err := c.dev.Stop()
	if c.ownQueue != nil {
		c.ownQueue.Close()
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return NormalizeError(err)
	}
	return nil
}

var _ device.Central = (*Central)(nil)
