package goble

import (
	"context"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blescope/internal/device"
	"github.com/srg/blescope/internal/groutine"
)

// StartScan begins discovery. Duplicates are reported so RSSI stays fresh.
// While a scan runs, a new call only replaces the service filter.
func (c *Central) StartScan(services []string) {
	filter := device.NormalizeUUIDs(services)

	c.mu.Lock()
	if c.closed || c.state != device.StatePoweredOn {
		state := c.state
		c.mu.Unlock()
		c.logger.WithField("state", state).Debug("Scan requested while Bluetooth is unavailable, ignoring")
		return
	}
	c.filter = filter
	if c.scanning {
		c.mu.Unlock()
		c.logger.WithField("services", filter).Debug("Scan already running, filter updated")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.scanning = true
	c.scanGen++
	gen := c.scanGen
	c.scanCancel = cancel
	c.mu.Unlock()

	c.logger.WithField("services", filter).Info("Starting BLE scan...")
	groutine.Go(ctx, "ble-scan", func(ctx context.Context) {
		err := c.dev.Scan(ctx, true, c.handleAdvertisement)
		c.scanFinished(gen, err)
	})
}

// StopScan ends discovery. Stopping an idle central does nothing.
func (c *Central) StopScan() {
	c.mu.Lock()
	cancel := c.scanCancel
	c.scanCancel = nil
	c.scanning = false
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		c.logger.Info("BLE scan stopped")
	}
}

func (c *Central) scanFinished(gen uint64, err error) {
	c.mu.Lock()
	if c.scanGen == gen {
		c.scanning = false
		if c.scanCancel != nil {
			c.scanCancel()
			c.scanCancel = nil
		}
	}
	c.mu.Unlock()

	if err == nil || isCancellation(err) {
		return
	}
	err = NormalizeError(err)
	c.logger.WithError(err).Error("BLE scan failed")
	if state := device.PowerStateFromError(err); state != device.StateUnknown {
		c.setState(state)
	}
}

// handleAdvertisement runs on the go-ble scan goroutine.
func (c *Central) handleAdvertisement(raw ble.Advertisement) {
	adv := NewBLEAdvertisement(raw)
	id := adv.Addr()
	if id == "" {
		return
	}

	c.mu.Lock()
	filter := c.filter
	scanning := c.scanning
	c.mu.Unlock()
	if !scanning || !adv.Advertises(filter) {
		return
	}

	p := c.peripheral(id, adv.LocalName())
	rssi := adv.RSSI()
	if c.logger.IsLevelEnabled(logrus.TraceLevel) {
		c.logger.WithFields(logrus.Fields{
			"address": id,
			"name":    adv.LocalName(),
			"rssi":    rssi,
		}).Trace("Advertisement received")
	}
	c.queue.Async(func() { c.delegate.CentralDidDiscover(p, adv, rssi) })
}
