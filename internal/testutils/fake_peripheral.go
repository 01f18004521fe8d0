package testutils

import (
	"fmt"
	"strings"
	"sync"

	"github.com/srg/blescope/internal/device"
	"github.com/srg/blescope/internal/dispatch"
)

// FakeService is a GATT service of a FakePeripheral.
type FakeService struct {
	uuid            string
	primary         bool
	characteristics []*FakeCharacteristic
}

func (s *FakeService) UUID() string    { return s.uuid }
func (s *FakeService) IsPrimary() bool { return s.primary }

// FakeCharacteristic is a GATT characteristic of a FakeService.
type FakeCharacteristic struct {
	uuid        string
	serviceUUID string
	props       device.Properties
	value       []byte
	descriptors []*FakeDescriptor
}

func (c *FakeCharacteristic) UUID() string                  { return c.uuid }
func (c *FakeCharacteristic) ServiceUUID() string           { return c.serviceUUID }
func (c *FakeCharacteristic) Properties() device.Properties { return c.props }

// FakeDescriptor is a GATT descriptor of a FakeCharacteristic.
type FakeDescriptor struct {
	uuid        string
	serviceUUID string
	charUUID    string
	value       []byte
}

func (d *FakeDescriptor) UUID() string               { return d.uuid }
func (d *FakeDescriptor) ServiceUUID() string        { return d.serviceUUID }
func (d *FakeDescriptor) CharacteristicUUID() string { return d.charUUID }

// FakePeripheral is a scriptable device.Peripheral backed by a static GATT
// profile. With AutoRespond set, every request is answered on the configured
// executor; otherwise the test answers with the Deliver* helpers.
type FakePeripheral struct {
	id   string
	name string

	mu          sync.Mutex
	delegate    device.PeripheralDelegate
	queue       device.Executor
	services    []*FakeService
	autoRespond bool
	failNext    map[string]error
	calls       []string
}

// SetName changes the advertised name.
func (p *FakePeripheral) SetName(name string) {
	p.mu.Lock()
	p.name = name
	p.mu.Unlock()
}

// SetAutoRespond toggles automatic answers to requests.
func (p *FakePeripheral) SetAutoRespond(on bool) {
	p.mu.Lock()
	p.autoRespond = on
	p.mu.Unlock()
}

// SetExecutor selects where callbacks run. The default is inline.
func (p *FakePeripheral) SetExecutor(q device.Executor) {
	p.mu.Lock()
	p.queue = q
	p.mu.Unlock()
}

// FailNext makes the next answer for op carry err. Ops are "services",
// "characteristics", "descriptors", "read", "readDescriptor" and "notify".
func (p *FakePeripheral) FailNext(op string, err error) {
	p.mu.Lock()
	p.failNext[op] = err
	p.mu.Unlock()
}

func (p *FakePeripheral) takeErr(op string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.failNext[op]
	delete(p.failNext, op)
	return err
}

// Calls returns a copy of the recorded requests.
func (p *FakePeripheral) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// CountCalls returns how many recorded requests start with prefix.
func (p *FakePeripheral) CountCalls(prefix string) int {
	n := 0
	for _, c := range p.Calls() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// Delegate returns the attached delegate.
func (p *FakePeripheral) Delegate() device.PeripheralDelegate {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.delegate
}

func (p *FakePeripheral) ID() string { return p.id }

func (p *FakePeripheral) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.name
}

func (p *FakePeripheral) SetDelegate(d device.PeripheralDelegate) {
	p.mu.Lock()
	p.delegate = d
	p.mu.Unlock()
}

func (p *FakePeripheral) Services() []device.Service {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]device.Service, len(p.services))
	for i, s := range p.services {
		out[i] = s
	}
	return out
}

func (p *FakePeripheral) request(call string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
	return p.autoRespond
}

func (p *FakePeripheral) DiscoverServices(filter []string) {
	if p.request("DiscoverServices:" + strings.Join(filter, ",")) {
		p.DeliverServices(filter...)
	}
}

func (p *FakePeripheral) DiscoverCharacteristics(filter []string, svc device.Service) {
	if p.request("DiscoverCharacteristics:" + svc.UUID()) {
		p.DeliverCharacteristics(svc.UUID())
	}
}

func (p *FakePeripheral) DiscoverDescriptors(chr device.Characteristic) {
	if p.request("DiscoverDescriptors:" + device.CharacteristicKey(chr.ServiceUUID(), chr.UUID())) {
		p.DeliverDescriptors(chr.ServiceUUID(), chr.UUID())
	}
}

func (p *FakePeripheral) ReadValue(chr device.Characteristic) {
	if p.request("ReadValue:" + device.CharacteristicKey(chr.ServiceUUID(), chr.UUID())) {
		c := p.findCharacteristic(chr.ServiceUUID(), chr.UUID())
		switch {
		case c == nil:
		case !c.props.Has(device.PropRead):
			err := fmt.Errorf("characteristic %s is not readable: %w", c.uuid, device.ErrUnsupported)
			p.deliver(func(d device.PeripheralDelegate) { d.DidUpdateValue(p, c, nil, err) })
		default:
			p.DeliverValue(c.serviceUUID, c.uuid, c.value)
		}
	}
}

func (p *FakePeripheral) ReadDescriptor(d device.Descriptor) {
	if p.request("ReadDescriptor:" + device.DescriptorKey(d.ServiceUUID(), d.CharacteristicUUID(), d.UUID())) {
		p.DeliverDescriptorValue(d.ServiceUUID(), d.CharacteristicUUID(), d.UUID())
	}
}

func (p *FakePeripheral) SetNotify(enabled bool, chr device.Characteristic) {
	verb := "Unsubscribe:"
	if enabled {
		verb = "Subscribe:"
	}
	if p.request(verb + device.CharacteristicKey(chr.ServiceUUID(), chr.UUID())) {
		p.DeliverNotifyState(chr.ServiceUUID(), chr.UUID(), enabled)
	}
}

func (p *FakePeripheral) deliver(fn func(d device.PeripheralDelegate)) {
	p.mu.Lock()
	d, q := p.delegate, p.queue
	p.mu.Unlock()
	if d == nil {
		return
	}
	q.Async(func() { fn(d) })
}

func (p *FakePeripheral) findService(uuid string) *FakeService {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := device.NormalizeUUID(uuid)
	for _, s := range p.services {
		if device.NormalizeUUID(s.uuid) == n {
			return s
		}
	}
	return nil
}

func (p *FakePeripheral) findCharacteristic(svcUUID, charUUID string) *FakeCharacteristic {
	s := p.findService(svcUUID)
	if s == nil {
		return nil
	}
	n := device.NormalizeUUID(charUUID)
	for _, c := range s.characteristics {
		if device.NormalizeUUID(c.uuid) == n {
			return c
		}
	}
	return nil
}

// DeliverServices answers a service discovery, limited to filter when given.
func (p *FakePeripheral) DeliverServices(filter ...string) {
	err := p.takeErr("services")
	var out []device.Service
	if err == nil {
		want := device.NormalizeUUIDs(filter)
		for _, s := range p.Services() {
			if len(want) == 0 || containsString(want, device.NormalizeUUID(s.UUID())) {
				out = append(out, s)
			}
		}
	}
	p.deliver(func(d device.PeripheralDelegate) { d.DidDiscoverServices(p, out, err) })
}

// DeliverCharacteristics answers a characteristic discovery for one service.
func (p *FakePeripheral) DeliverCharacteristics(svcUUID string) {
	err := p.takeErr("characteristics")
	s := p.findService(svcUUID)
	if s == nil {
		return
	}
	var out []device.Characteristic
	if err == nil {
		for _, c := range s.characteristics {
			out = append(out, c)
		}
	}
	p.deliver(func(d device.PeripheralDelegate) { d.DidDiscoverCharacteristics(p, s, out, err) })
}

// DeliverDescriptors answers a descriptor discovery.
func (p *FakePeripheral) DeliverDescriptors(svcUUID, charUUID string) {
	err := p.takeErr("descriptors")
	c := p.findCharacteristic(svcUUID, charUUID)
	if c == nil {
		return
	}
	var out []device.Descriptor
	if err == nil {
		for _, ds := range c.descriptors {
			out = append(out, ds)
		}
	}
	p.deliver(func(d device.PeripheralDelegate) { d.DidDiscoverDescriptors(p, c, out, err) })
}

// DeliverValue reports a read result or a notification.
func (p *FakePeripheral) DeliverValue(svcUUID, charUUID string, value []byte) {
	err := p.takeErr("read")
	c := p.findCharacteristic(svcUUID, charUUID)
	if c == nil {
		return
	}
	if err != nil {
		value = nil
	}
	p.deliver(func(d device.PeripheralDelegate) { d.DidUpdateValue(p, c, value, err) })
}

// DeliverDescriptorValue reports a descriptor read result.
func (p *FakePeripheral) DeliverDescriptorValue(svcUUID, charUUID, descUUID string) {
	err := p.takeErr("readDescriptor")
	c := p.findCharacteristic(svcUUID, charUUID)
	if c == nil {
		return
	}
	for _, ds := range c.descriptors {
		if device.NormalizeUUID(ds.uuid) == device.NormalizeUUID(descUUID) {
			ds := ds
			value := ds.value
			if err != nil {
				value = nil
			}
			p.deliver(func(d device.PeripheralDelegate) { d.DidUpdateDescriptorValue(p, ds, value, err) })
			return
		}
	}
}

// DeliverNotifyState reports a subscription change.
func (p *FakePeripheral) DeliverNotifyState(svcUUID, charUUID string, enabled bool) {
	err := p.takeErr("notify")
	c := p.findCharacteristic(svcUUID, charUUID)
	if c == nil {
		return
	}
	if err != nil {
		enabled = !enabled
	}
	p.deliver(func(d device.PeripheralDelegate) { d.DidUpdateNotificationState(p, c, enabled, err) })
}

func containsString(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func newFakePeripheral(id, name string) *FakePeripheral {
	return &FakePeripheral{
		id:       id,
		name:     name,
		queue:    dispatch.Inline{},
		failNext: make(map[string]error),
	}
}

var _ device.Peripheral = (*FakePeripheral)(nil)
