// Package session drives one peripheral from discovery to streaming values.
//
// A Session connects, walks the GATT database one phase at a time
// (services, characteristics, descriptors, values) and folds every
// discovery result into ordered collections. Consumers follow along through
// an ordered stream of Inserted/Updated/ClearedAll events.
//
// All platform callbacks are filtered by peripheral identity and ignored
// once the session has been torn down.
package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blescope/internal/central"
	"github.com/srg/blescope/internal/device"
	"github.com/srg/blescope/internal/display"
	"github.com/srg/blescope/internal/notify"
	"github.com/srg/blescope/internal/reconcile"
)

// Phase is the connection-level state of a session.
type Phase int

const (
	Discovered Phase = iota
	Connecting
	Connected
	ServicesDiscovered
)

func (p Phase) String() string {
	switch p {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case ServicesDiscovered:
		return "services-discovered"
	default:
		return "discovered"
	}
}

// ServicePhase is the discovery progress of one service of interest.
type ServicePhase int

const (
	ServicePending ServicePhase = iota
	CharacteristicsDiscovered
	DescriptorsDiscovered
	ValuesKnown
)

func (p ServicePhase) String() string {
	switch p {
	case CharacteristicsDiscovered:
		return "characteristics-discovered"
	case DescriptorsDiscovered:
		return "descriptors-discovered"
	case ValuesKnown:
		return "values-known"
	default:
		return "pending"
	}
}

// Central is the part of the coordinator a session needs.
type Central interface {
	Connect(p device.Peripheral)
	Disconnect(p device.Peripheral)
	AddObserver(o *central.Observer)
	RemoveObserver(o *central.Observer)
}

// Options configures a Session.
type Options struct {
	// TargetService limits the walk to one service. Empty walks every service.
	TargetService string
	// ReadDescriptors also reads the value of every discovered descriptor.
	ReadDescriptors bool
	// Notifier receives every characteristic value update while
	// IsBackground reports true.
	Notifier     notify.Notifier
	IsBackground func() bool
	// ValueFormat controls notification bodies.
	ValueFormat display.Format
	// OnEvent receives list changes in order. It is called without locks held.
	OnEvent func(Event)
	// History, when set, records every value of a notifying characteristic.
	History *History
	Logger  *logrus.Logger
}

// Session is the per-peripheral discovery state machine.
type Session struct {
	central Central
	handle  *PeripheralHandle
	opts    Options
	target  string
	logger  *logrus.Logger

	observer *central.Observer

	mu       sync.Mutex
	open     bool
	phase    Phase
	lastErr  error
	services *reconcile.Collection[string, ServiceRecord]
	chars    *reconcile.Collection[string, CharacteristicRecord]
	descs    map[string]*reconcile.Collection[string, DescriptorRecord]
	svcPhase map[string]ServicePhase
	pendRead map[string]string // characteristic key -> service UUID
	pendDesc map[string]string
	changed  chan struct{}
}

// New creates a closed session for handle. Call Open to start it.
func New(c Central, handle *PeripheralHandle, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}
	if opts.IsBackground == nil {
		opts.IsBackground = notify.IsBackground
	}
	s := &Session{
		central: c,
		handle:  handle,
		opts:    opts,
		target:  device.NormalizeUUID(opts.TargetService),
		logger:  logger,
		changed: make(chan struct{}),
	}
	s.resetLocked()
	s.observer = &central.Observer{
		OnPowerStateChanged:      s.powerStateChanged,
		OnPeripheralConnected:    s.peripheralConnected,
		OnPeripheralDisconnected: s.peripheralDisconnected,
		OnConnectFailed:          s.connectFailed,
	}
	return s
}

func (s *Session) resetLocked() []Event {
	var events []Event
	if s.services != nil && s.services.Len() > 0 {
		events = append(events, Event{List: Services, Kind: ClearedAll})
	}
	if s.chars != nil && s.chars.Len() > 0 {
		events = append(events, Event{List: Characteristics, Kind: ClearedAll})
	}
	s.services = reconcile.New(func(r ServiceRecord) string { return r.UUID })
	s.chars = reconcile.New(func(r CharacteristicRecord) string { return r.Key() })
	s.descs = make(map[string]*reconcile.Collection[string, DescriptorRecord])
	s.svcPhase = make(map[string]ServicePhase)
	s.pendRead = make(map[string]string)
	s.pendDesc = make(map[string]string)
	return events
}

func (s *Session) log() *logrus.Entry {
	return s.logger.WithField("peripheral", s.handle.ID())
}

// Handle returns the peripheral this session is bound to.
func (s *Session) Handle() *PeripheralHandle { return s.handle }

// Open clears previous results, registers for central events, attaches as
// the peripheral's delegate and connects. Opening an open session does nothing.
func (s *Session) Open() {
	s.mu.Lock()
	if s.open {
		s.mu.Unlock()
		return
	}
	events := s.resetLocked()
	s.open = true
	s.phase = Discovered
	s.lastErr = nil
	s.signalLocked()
	s.mu.Unlock()

	s.log().Debug("Opening session")
	s.central.AddObserver(s.observer)
	s.handle.Peripheral().SetDelegate(s)
	s.emit(events)
	s.Connect()
}

// Connect requests a connection if the session is open and idle.
func (s *Session) Connect() {
	s.mu.Lock()
	if !s.open || s.phase != Discovered {
		s.mu.Unlock()
		return
	}
	s.phase = Connecting
	s.lastErr = nil
	s.signalLocked()
	s.mu.Unlock()

	s.central.Connect(s.handle.Peripheral())
}

// Teardown unsubscribes every tracked characteristic, detaches from the
// peripheral and the central, requests disconnect and clears all records.
// Only the first call after Open has any effect.
func (s *Session) Teardown() {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return
	}
	s.open = false

	var unsubscribe []device.Characteristic
	for _, rec := range s.chars.Values() {
		unsubscribe = append(unsubscribe, rec.platform)
	}
	s.phase = Discovered
	events := s.resetLocked()
	s.signalLocked()
	s.mu.Unlock()

	p := s.handle.Peripheral()
	for _, chr := range unsubscribe {
		p.SetNotify(false, chr)
	}
	p.SetDelegate(nil)
	s.central.RemoveObserver(s.observer)
	s.central.Disconnect(p)
	s.handle.SetConnected(false)
	s.log().WithField("unsubscribed", len(unsubscribe)).Debug("Session torn down")
	s.emit(events)
}

// Phase returns the connection-level state.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// ServicePhase returns the discovery progress of a service.
func (s *Session) ServicePhase(uuid string) (ServicePhase, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.svcPhase[device.NormalizeUUID(uuid)]
	return p, ok
}

// LastError returns the most recent platform failure since Open or Connect.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// IsOpen reports whether the session is between Open and Teardown.
func (s *Session) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// Services returns the discovered services in discovery order.
func (s *Session) Services() []ServiceRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.services.Values()
}

// Characteristics returns copies of the discovered characteristics in
// discovery order, descriptors included.
func (s *Session) Characteristics() []CharacteristicRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CharacteristicRecord, 0, s.chars.Len())
	for _, rec := range s.chars.Values() {
		out = append(out, s.withDescriptorsLocked(rec))
	}
	return out
}

// Characteristic returns one characteristic by key (service/characteristic UUID).
func (s *Session) Characteristic(key string) (CharacteristicRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.chars.Get(normalizeKey(key))
	if !ok {
		return CharacteristicRecord{}, false
	}
	return s.withDescriptorsLocked(rec), true
}

func (s *Session) withDescriptorsLocked(rec CharacteristicRecord) CharacteristicRecord {
	rec = rec.clone()
	if dc, ok := s.descs[rec.Key()]; ok {
		rec.Descriptors = dc.Values()
	}
	return rec
}

// Changed returns a channel closed at the next state change.
func (s *Session) Changed() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}

// Settled reports whether the walk has finished: services are known and every
// service of interest has reached ValuesKnown.
func (s *Session) Settled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != ServicesDiscovered {
		return false
	}
	for _, p := range s.svcPhase {
		if p != ValuesKnown {
			return false
		}
	}
	return true
}

// SetNotify subscribes to or unsubscribes from a characteristic.
func (s *Session) SetNotify(key string, enabled bool) error {
	s.mu.Lock()
	if !s.open || s.phase < Connected {
		s.mu.Unlock()
		return fmt.Errorf("set notify: %w", device.ErrNotConnected)
	}
	key = normalizeKey(key)
	rec, ok := s.chars.Get(key)
	if !ok {
		s.mu.Unlock()
		return &device.NotFoundError{Resource: "characteristic", UUIDs: strings.SplitN(key, "/", 2)}
	}
	if !rec.Properties.CanNotify() {
		s.mu.Unlock()
		return fmt.Errorf("characteristic %s does not support notifications: %w", key, device.ErrUnsupported)
	}
	s.mu.Unlock()

	s.log().WithFields(logrus.Fields{"characteristic": key, "enabled": enabled}).Debug("Changing notification state")
	s.handle.Peripheral().SetNotify(enabled, rec.platform)
	return nil
}

// ToggleNotify flips the notification state of the characteristic at index.
func (s *Session) ToggleNotify(index int) error {
	s.mu.Lock()
	if index < 0 || index >= s.chars.Len() {
		s.mu.Unlock()
		return &device.NotFoundError{Resource: "characteristic", UUIDs: []string{fmt.Sprintf("#%d", index)}}
	}
	rec := s.chars.At(index)
	s.mu.Unlock()
	return s.SetNotify(rec.Key(), !rec.Notifying)
}

func normalizeKey(key string) string {
	parts := strings.SplitN(key, "/", 2)
	if len(parts) != 2 {
		return device.NormalizeUUID(key)
	}
	return device.CharacteristicKey(parts[0], parts[1])
}

func (s *Session) signalLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *Session) emit(events []Event) {
	if s.opts.OnEvent == nil {
		return
	}
	for _, e := range events {
		s.opts.OnEvent(e)
	}
}

// accept reports whether a callback for p should be processed. Callers hold mu.
func (s *Session) acceptLocked(p device.Peripheral, callback string) bool {
	if !s.open {
		s.log().WithField("callback", callback).Debug("Ignoring callback for closed session")
		return false
	}
	if p == nil || p.ID() != s.handle.ID() {
		other := "<nil>"
		if p != nil {
			other = p.ID()
		}
		s.log().WithFields(logrus.Fields{
			"callback": callback,
			"from":     other,
			"error":    device.ErrIdentityMismatch,
		}).Debug("Discarding callback")
		return false
	}
	return true
}

func (s *Session) failLocked(op string, err error) {
	terr := device.NewTransportError(op, device.NormalizeError(err))
	s.lastErr = terr
	s.log().WithError(terr).Warn("Peripheral operation failed")
	s.signalLocked()
}

func (s *Session) wantsService(uuid string) bool {
	return s.target == "" || s.target == uuid
}

// powerStateChanged drops the link state and every record once the radio
// becomes unusable. The session stays open; PoweredOn does not reconnect.
func (s *Session) powerStateChanged(state device.PowerState) {
	if state.Usable() {
		return
	}
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return
	}
	s.phase = Discovered
	events := s.resetLocked()
	s.signalLocked()
	s.mu.Unlock()

	s.handle.SetConnected(false)
	s.log().WithField("state", state).Warn("Bluetooth unavailable, session records cleared")
	s.emit(events)
}

func (s *Session) peripheralConnected(p device.Peripheral) {
	s.mu.Lock()
	if !s.acceptLocked(p, "connected") {
		s.mu.Unlock()
		return
	}
	s.phase = Connected
	s.lastErr = nil
	s.signalLocked()
	s.mu.Unlock()

	s.handle.SetConnected(true)
	var filter []string
	if s.target != "" {
		filter = []string{s.target}
	}
	s.log().WithField("filter", filter).Debug("Discovering services")
	p.DiscoverServices(filter)
}

func (s *Session) peripheralDisconnected(p device.Peripheral, err error) {
	s.mu.Lock()
	if !s.acceptLocked(p, "disconnected") {
		s.mu.Unlock()
		return
	}
	s.phase = Discovered
	if err != nil {
		s.failLocked("link", err)
	}

	var stopped []int
	for i, rec := range s.chars.Values() {
		if rec.Notifying {
			rec.Notifying = false
			s.chars.Set(rec)
			stopped = append(stopped, i)
		}
	}
	s.signalLocked()
	s.mu.Unlock()

	s.handle.SetConnected(false)
	s.emit(EventsFor(Characteristics, nil, stopped))
}

func (s *Session) connectFailed(p device.Peripheral, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.acceptLocked(p, "connect-failed") {
		return
	}
	s.phase = Discovered
	if err == nil {
		err = errors.New("connection failed")
	}
	s.failLocked("connect", err)
}

// DidDiscoverServices implements device.PeripheralDelegate.
func (s *Session) DidDiscoverServices(p device.Peripheral, services []device.Service, err error) {
	s.mu.Lock()
	if !s.acceptLocked(p, "services") {
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.failLocked("discover services", err)
		s.mu.Unlock()
		return
	}

	incoming := make([]ServiceRecord, 0, len(services))
	var walk []device.Service
	for _, svc := range services {
		rec := newServiceRecord(s.handle, svc)
		incoming = append(incoming, rec)
		if s.wantsService(rec.UUID) {
			s.svcPhase[rec.UUID] = ServicePending
			walk = append(walk, svc)
		}
	}
	res := s.services.Merge(incoming)
	s.phase = ServicesDiscovered
	s.signalLocked()
	s.mu.Unlock()

	s.log().WithFields(logrus.Fields{
		"added":   len(res.Added),
		"updated": len(res.Updated),
	}).Debug("Services discovered")
	s.emit(EventsFor(Services, res.Added, res.Updated))

	for _, svc := range walk {
		p.DiscoverCharacteristics(nil, svc)
	}
}

// DidDiscoverCharacteristics implements device.PeripheralDelegate.
func (s *Session) DidDiscoverCharacteristics(p device.Peripheral, svc device.Service, chars []device.Characteristic, err error) {
	s.mu.Lock()
	if !s.acceptLocked(p, "characteristics") {
		s.mu.Unlock()
		return
	}
	svcUUID := device.NormalizeUUID(svc.UUID())
	if err != nil {
		s.failLocked("discover characteristics", err)
		s.mu.Unlock()
		return
	}
	if _, ok := s.svcPhase[svcUUID]; !ok {
		s.mu.Unlock()
		s.log().WithField("service_uuid", svcUUID).Debug("Ignoring characteristics of a service outside the walk")
		return
	}

	incoming := make([]CharacteristicRecord, 0, len(chars))
	for _, chr := range chars {
		rec := newCharacteristicRecord(chr)
		if prev, ok := s.chars.Get(rec.Key()); ok {
			// Rediscovery refreshes the platform object but keeps what we learned.
			rec.Value, rec.HasValue, rec.Notifying = prev.Value, prev.HasValue, prev.Notifying
		}
		incoming = append(incoming, rec)
	}
	res := s.chars.Merge(incoming)

	// Every new characteristic is read and has its descriptors discovered,
	// whatever its properties. A refused read settles through DidUpdateValue.
	steps := make([]device.Characteristic, 0, len(res.Added))
	for _, idx := range res.Added {
		rec := s.chars.At(idx)
		s.pendDesc[rec.Key()] = svcUUID
		s.pendRead[rec.Key()] = svcUUID
		steps = append(steps, rec.platform)
	}
	s.svcPhase[svcUUID] = CharacteristicsDiscovered
	s.advanceLocked(svcUUID)
	s.signalLocked()
	s.mu.Unlock()

	s.log().WithFields(logrus.Fields{
		"service_uuid": svcUUID,
		"added":        len(res.Added),
		"updated":      len(res.Updated),
	}).Debug("Characteristics discovered")
	s.emit(EventsFor(Characteristics, res.Added, res.Updated))

	for _, chr := range steps {
		p.ReadValue(chr)
		p.DiscoverDescriptors(chr)
	}
}

// DidDiscoverDescriptors implements device.PeripheralDelegate.
func (s *Session) DidDiscoverDescriptors(p device.Peripheral, chr device.Characteristic, descs []device.Descriptor, err error) {
	s.mu.Lock()
	if !s.acceptLocked(p, "descriptors") {
		s.mu.Unlock()
		return
	}
	key := device.CharacteristicKey(chr.ServiceUUID(), chr.UUID())
	svcUUID := device.NormalizeUUID(chr.ServiceUUID())
	delete(s.pendDesc, key)
	if err != nil {
		s.failLocked("discover descriptors", err)
		s.advanceLocked(svcUUID)
		s.mu.Unlock()
		return
	}

	dc, ok := s.descs[key]
	if !ok {
		dc = reconcile.New(func(r DescriptorRecord) string { return r.UUID })
		s.descs[key] = dc
	}
	incoming := make([]DescriptorRecord, 0, len(descs))
	for _, d := range descs {
		rec := newDescriptorRecord(d)
		if prev, ok := dc.Get(rec.UUID); ok {
			rec.Value = prev.Value
		}
		incoming = append(incoming, rec)
	}
	res := dc.Merge(incoming)

	var reads []device.Descriptor
	if s.opts.ReadDescriptors {
		for _, idx := range res.Added {
			reads = append(reads, dc.At(idx).platform)
		}
	}
	s.advanceLocked(svcUUID)
	s.signalLocked()
	s.mu.Unlock()

	s.log().WithFields(logrus.Fields{
		"characteristic": key,
		"descriptors":    len(descs),
	}).Debug("Descriptors discovered")

	for _, d := range reads {
		p.ReadDescriptor(d)
	}
}

// DidUpdateValue implements device.PeripheralDelegate.
func (s *Session) DidUpdateValue(p device.Peripheral, chr device.Characteristic, value []byte, err error) {
	s.mu.Lock()
	if !s.acceptLocked(p, "value") {
		s.mu.Unlock()
		return
	}
	key := device.CharacteristicKey(chr.ServiceUUID(), chr.UUID())
	svcUUID := device.NormalizeUUID(chr.ServiceUUID())
	delete(s.pendRead, key)

	idx := s.chars.IndexOf(key)
	if idx < 0 {
		s.advanceLocked(svcUUID)
		s.mu.Unlock()
		s.log().WithField("characteristic", key).Debug("Value for unknown characteristic")
		return
	}
	if err != nil {
		s.failLocked("read", err)
		s.advanceLocked(svcUUID)
		s.mu.Unlock()
		return
	}

	rec := s.chars.At(idx)
	rec.Value = append([]byte(nil), value...)
	rec.HasValue = true
	s.chars.Set(rec)
	s.advanceLocked(svcUUID)
	s.signalLocked()
	notifying := rec.Notifying
	s.mu.Unlock()

	if notifying && s.opts.History != nil {
		s.opts.History.Record(key, value, time.Now())
	}
	if text, derr := display.Project(value, display.UTF8); derr != nil {
		s.log().WithField("characteristic", key).Debug("Value is not UTF-8 text")
	} else {
		s.log().WithFields(logrus.Fields{"characteristic": key, "text": text}).Debug("Value updated")
	}

	s.emit([]Event{{List: Characteristics, Kind: Updated, Indices: []int{idx}}})

	if s.opts.Notifier != nil && s.opts.IsBackground() {
		body := fmt.Sprintf("%s: %s", rec.Label(), display.MustProject(value, s.opts.ValueFormat))
		if nerr := s.opts.Notifier.Notify(s.handle.DisplayName(), body); nerr != nil {
			s.log().WithError(nerr).Warn("Failed to deliver local notification")
		}
	}
}

// DidUpdateDescriptorValue implements device.PeripheralDelegate.
func (s *Session) DidUpdateDescriptorValue(p device.Peripheral, d device.Descriptor, value []byte, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.acceptLocked(p, "descriptor-value") {
		return
	}
	if err != nil {
		s.failLocked("read descriptor", err)
		return
	}
	key := device.CharacteristicKey(d.ServiceUUID(), d.CharacteristicUUID())
	dc, ok := s.descs[key]
	if !ok {
		return
	}
	rec, ok := dc.Get(device.NormalizeUUID(d.UUID()))
	if !ok {
		return
	}
	rec.Value = append([]byte(nil), value...)
	dc.Set(rec)
	s.signalLocked()
}

// DidUpdateNotificationState implements device.PeripheralDelegate.
func (s *Session) DidUpdateNotificationState(p device.Peripheral, chr device.Characteristic, enabled bool, err error) {
	s.mu.Lock()
	if !s.acceptLocked(p, "notify-state") {
		s.mu.Unlock()
		return
	}
	key := device.CharacteristicKey(chr.ServiceUUID(), chr.UUID())
	if err != nil {
		s.failLocked("set notify", err)
	}
	idx := s.chars.IndexOf(key)
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	rec := s.chars.At(idx)
	if rec.Notifying == enabled {
		s.mu.Unlock()
		return
	}
	rec.Notifying = enabled
	s.chars.Set(rec)
	s.signalLocked()
	s.mu.Unlock()

	s.log().WithFields(logrus.Fields{"characteristic": key, "notifying": enabled}).Info("Notification state changed")
	s.emit([]Event{{List: Characteristics, Kind: Updated, Indices: []int{idx}}})
}

// advanceLocked moves a service forward once nothing is pending for it.
func (s *Session) advanceLocked(svcUUID string) {
	phase, ok := s.svcPhase[svcUUID]
	if !ok {
		return
	}
	if phase == CharacteristicsDiscovered && !pendingFor(s.pendDesc, svcUUID) {
		phase = DescriptorsDiscovered
	}
	if phase == DescriptorsDiscovered && !pendingFor(s.pendRead, svcUUID) {
		phase = ValuesKnown
	}
	s.svcPhase[svcUUID] = phase
}

func pendingFor(pending map[string]string, svcUUID string) bool {
	for _, svc := range pending {
		if svc == svcUUID {
			return true
		}
	}
	return false
}

var _ device.PeripheralDelegate = (*Session)(nil)
