package goble

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blescope/internal/device"
	"github.com/srg/blescope/internal/dispatch"
	"github.com/srg/blescope/internal/groutine"
)

// Peripheral implements device.Peripheral for one remote address. GATT
// requests are serialised on a per-link queue because go-ble clients block;
// results are handed to the central's callback executor.
type Peripheral struct {
	id      string
	central *Central
	logger  *logrus.Logger

	mu       sync.RWMutex
	name     string
	delegate device.PeripheralDelegate
	conn     ble.Client
	gatt     *dispatch.Queue
	link     chan struct{}
	services []device.Service
}

func newPeripheral(c *Central, id string) *Peripheral {
	return &Peripheral{id: id, central: c, logger: c.logger}
}

func (p *Peripheral) ID() string { return p.id }

func (p *Peripheral) Name() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.name
}

func (p *Peripheral) setName(name string) {
	p.mu.Lock()
	p.name = name
	p.mu.Unlock()
}

func (p *Peripheral) SetDelegate(d device.PeripheralDelegate) {
	p.mu.Lock()
	p.delegate = d
	p.mu.Unlock()
}

// Services returns the services of the latest discovery.
func (p *Peripheral) Services() []device.Service {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]device.Service(nil), p.services...)
}

func (p *Peripheral) connected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.conn != nil
}

func (p *Peripheral) client() ble.Client {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.conn
}

func (p *Peripheral) linkDone() <-chan struct{} {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.link
}

// attach binds a freshly dialled client and starts its GATT queue.
func (p *Peripheral) attach(client ble.Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conn = client
	p.link = make(chan struct{})
	p.gatt = dispatch.NewQueue("gatt-"+p.id, p.logger)
	p.services = nil
}

// detach unbinds client if it is still the current one. Only the first
// caller for a given link gets true.
func (p *Peripheral) detach(client ble.Client) bool {
	p.mu.Lock()
	if p.conn == nil || p.conn != client {
		p.mu.Unlock()
		return false
	}
	gatt := p.gatt
	close(p.link)
	p.conn = nil
	p.gatt = nil
	p.mu.Unlock()

	// Queued requests still run and fail against the cancelled client; the
	// queue is drained off the caller's goroutine since go-ble calls may block.
	groutine.Go(context.Background(), "gatt-close-"+p.id, func(context.Context) { gatt.Close() })
	return true
}

// deliver hands fn the delegate attached at delivery time.
func (p *Peripheral) deliver(fn func(d device.PeripheralDelegate)) {
	p.central.queue.Async(func() {
		p.mu.RLock()
		d := p.delegate
		p.mu.RUnlock()
		if d != nil {
			fn(d)
		}
	})
}

// exec runs op against the live client on the GATT queue, or calls fail with
// ErrNotConnected when there is no link.
func (p *Peripheral) exec(op string, run func(client ble.Client), fail func(err error)) {
	p.mu.RLock()
	client, gatt := p.conn, p.gatt
	p.mu.RUnlock()

	if client == nil || gatt == nil {
		fail(fmt.Errorf("%s: %w", op, device.ErrNotConnected))
		return
	}
	gatt.Async(func() { run(client) })
}

func (p *Peripheral) DiscoverServices(filter []string) {
	fail := func(err error) {
		p.deliver(func(d device.PeripheralDelegate) { d.DidDiscoverServices(p, nil, err) })
	}
	p.exec("discover services", func(client ble.Client) {
		uuids, err := parseUUIDs(filter)
		if err != nil {
			fail(err)
			return
		}
		raw, err := client.DiscoverServices(uuids)
		if err != nil {
			fail(NormalizeError(err))
			return
		}
		services := make([]device.Service, len(raw))
		for i, s := range raw {
			services[i] = newService(s)
		}
		p.mu.Lock()
		p.services = services
		p.mu.Unlock()

		p.logger.WithFields(logrus.Fields{
			"address":  p.id,
			"services": len(services),
		}).Debug("Services discovered")
		p.deliver(func(d device.PeripheralDelegate) { d.DidDiscoverServices(p, services, nil) })
	}, fail)
}

func (p *Peripheral) DiscoverCharacteristics(filter []string, svc device.Service) {
	fail := func(err error) {
		p.deliver(func(d device.PeripheralDelegate) { d.DidDiscoverCharacteristics(p, svc, nil, err) })
	}
	bs, ok := svc.(*BLEService)
	if !ok {
		fail(&device.NotFoundError{Resource: "service", UUIDs: []string{svc.UUID()}})
		return
	}
	p.exec("discover characteristics", func(client ble.Client) {
		uuids, err := parseUUIDs(filter)
		if err != nil {
			fail(err)
			return
		}
		raw, err := client.DiscoverCharacteristics(uuids, bs.svc)
		if err != nil {
			fail(NormalizeError(err))
			return
		}
		chars := make([]device.Characteristic, len(raw))
		for i, c := range raw {
			chars[i] = newCharacteristic(bs.uuid, c)
		}
		p.deliver(func(d device.PeripheralDelegate) { d.DidDiscoverCharacteristics(p, svc, chars, nil) })
	}, fail)
}

func (p *Peripheral) DiscoverDescriptors(chr device.Characteristic) {
	fail := func(err error) {
		p.deliver(func(d device.PeripheralDelegate) { d.DidDiscoverDescriptors(p, chr, nil, err) })
	}
	bc, ok := chr.(*BLECharacteristic)
	if !ok {
		fail(&device.NotFoundError{Resource: "characteristic", UUIDs: []string{chr.ServiceUUID(), chr.UUID()}})
		return
	}
	p.exec("discover descriptors", func(client ble.Client) {
		raw, err := client.DiscoverDescriptors(nil, bc.chr)
		if err != nil {
			fail(NormalizeError(err))
			return
		}
		descs := make([]device.Descriptor, len(raw))
		for i, d := range raw {
			descs[i] = newDescriptor(bc, d)
		}
		p.deliver(func(d device.PeripheralDelegate) { d.DidDiscoverDescriptors(p, chr, descs, nil) })
	}, fail)
}

func (p *Peripheral) ReadValue(chr device.Characteristic) {
	fail := func(err error) {
		p.deliver(func(d device.PeripheralDelegate) { d.DidUpdateValue(p, chr, nil, err) })
	}
	bc, ok := chr.(*BLECharacteristic)
	if !ok {
		fail(&device.NotFoundError{Resource: "characteristic", UUIDs: []string{chr.ServiceUUID(), chr.UUID()}})
		return
	}
	if !bc.props.Has(device.PropRead) {
		fail(fmt.Errorf("characteristic %s is not readable: %w", bc.uuid, device.ErrUnsupported))
		return
	}
	p.exec("read", func(client ble.Client) {
		value, err := client.ReadCharacteristic(bc.chr)
		if err != nil {
			fail(NormalizeError(err))
			return
		}
		value = bytes.Clone(value)
		p.deliver(func(d device.PeripheralDelegate) { d.DidUpdateValue(p, chr, value, nil) })
	}, fail)
}

// ReadDescriptor reads a descriptor value. On macOS go-ble does not expose
// descriptor handles, so the value cached at discovery is returned when present.
func (p *Peripheral) ReadDescriptor(desc device.Descriptor) {
	fail := func(err error) {
		p.deliver(func(d device.PeripheralDelegate) { d.DidUpdateDescriptorValue(p, desc, nil, err) })
	}
	bd, ok := desc.(*BLEDescriptor)
	if !ok {
		fail(&device.NotFoundError{Resource: "descriptor", UUIDs: []string{desc.CharacteristicUUID(), desc.UUID()}})
		return
	}
	p.exec("read descriptor", func(client ble.Client) {
		var value []byte
		switch {
		case len(bd.desc.Value) > 0:
			value = bd.desc.Value
		case bd.desc.Handle == 0:
			fail(fmt.Errorf("descriptor handle not available: %w", device.ErrUnsupported))
			return
		default:
			var err error
			if value, err = client.ReadDescriptor(bd.desc); err != nil {
				fail(NormalizeError(err))
				return
			}
		}
		value = bytes.Clone(value)
		p.deliver(func(d device.PeripheralDelegate) { d.DidUpdateDescriptorValue(p, desc, value, nil) })
	}, fail)
}

// SetNotify subscribes with notifications, or indications when the
// characteristic only supports those. Incoming values arrive as DidUpdateValue.
func (p *Peripheral) SetNotify(enabled bool, chr device.Characteristic) {
	fail := func(err error) {
		p.deliver(func(d device.PeripheralDelegate) { d.DidUpdateNotificationState(p, chr, !enabled, err) })
	}
	bc, ok := chr.(*BLECharacteristic)
	if !ok {
		fail(&device.NotFoundError{Resource: "characteristic", UUIDs: []string{chr.ServiceUUID(), chr.UUID()}})
		return
	}
	if !bc.props.CanNotify() {
		fail(fmt.Errorf("characteristic %s cannot notify: %w", bc.uuid, device.ErrUnsupported))
		return
	}
	ind := bc.indicate()
	p.exec("set notify", func(client ble.Client) {
		var err error
		if enabled {
			err = client.Subscribe(bc.chr, ind, func(data []byte) {
				value := bytes.Clone(data)
				p.deliver(func(d device.PeripheralDelegate) { d.DidUpdateValue(p, chr, value, nil) })
			})
		} else {
			err = client.Unsubscribe(bc.chr, ind)
		}
		if err != nil {
			fail(NormalizeError(err))
			return
		}
		p.logger.WithFields(logrus.Fields{
			"address":   p.id,
			"char_uuid": bc.uuid,
			"enabled":   enabled,
			"indicate":  ind,
		}).Debug("Notification state changed")
		p.deliver(func(d device.PeripheralDelegate) { d.DidUpdateNotificationState(p, chr, enabled, nil) })
	}, fail)
}

func parseUUIDs(uuids []string) ([]ble.UUID, error) {
	if len(uuids) == 0 {
		return nil, nil
	}
	out := make([]ble.UUID, 0, len(uuids))
	for _, s := range uuids {
		u, err := ble.Parse(device.NormalizeUUID(s))
		if err != nil {
			return nil, fmt.Errorf("invalid UUID %q: %w", s, err)
		}
		out = append(out, u)
	}
	return out, nil
}

var _ device.Peripheral = (*Peripheral)(nil)
