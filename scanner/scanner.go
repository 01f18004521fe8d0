package scanner

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blescope/internal/central"
	"github.com/srg/blescope/internal/device"
	"github.com/srg/blescope/internal/dispatch"
	"github.com/srg/blescope/internal/reconcile"
	"github.com/srg/blescope/internal/session"
)

// ProgressCallback is called when the scan phase changes
type ProgressCallback func(phase string)

// DeviceEventType marks if the peripheral was newly discovered or updated
type DeviceEventType int

const (
	EventNew DeviceEventType = iota
	EventUpdated
)

func (t DeviceEventType) String() string {
	if t == EventNew {
		return "new"
	}
	return "updated"
}

type DeviceEvent struct {
	Type   DeviceEventType
	Handle *session.PeripheralHandle
}

// Central is the part of the coordinator the scanner needs.
type Central interface {
	State() device.PowerState
	Scan(services []string)
	StopScan()
	Connect(p device.Peripheral)
	AddObserver(o *central.Observer)
	RemoveObserver(o *central.Observer)
}

// ScanOptions configures scanning behavior
type ScanOptions struct {
	Duration     time.Duration
	ServiceUUIDs []string
	AllowList    []string
	BlockList    []string
	// AutoConnect connects every newly discovered connectable peripheral.
	AutoConnect bool
	// OnEvent receives peripheral list changes in order, without locks held.
	OnEvent func(session.Event)
}

// DefaultScanOptions returns default scanning options
func DefaultScanOptions() *ScanOptions {
	return &ScanOptions{
		Duration: 10 * time.Second,
	}
}

// Scanner keeps the ordered list of discovered peripherals. It observes the
// coordinator, reconciles sightings by identity and clears the list when the
// radio becomes unusable.
type Scanner struct {
	central  Central
	opts     *ScanOptions
	filter   []string
	logger   *logrus.Logger
	observer *central.Observer
	events   *dispatch.RingChannel[DeviceEvent]

	mu      sync.Mutex
	started bool
	list    *reconcile.Collection[string, *session.PeripheralHandle]
}

// NewScanner creates a scanner over c. A nil opts uses DefaultScanOptions.
func NewScanner(c Central, opts *ScanOptions, logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	if opts == nil {
		opts = DefaultScanOptions()
	}
	s := &Scanner{
		central: c,
		opts:    opts,
		filter:  device.NormalizeUUIDs(opts.ServiceUUIDs),
		logger:  logger,
		events:  dispatch.NewRingChannel[DeviceEvent](100),
		list:    reconcile.New(func(h *session.PeripheralHandle) string { return h.ID() }),
	}
	s.observer = &central.Observer{
		OnPowerStateChanged:      s.powerStateChanged,
		OnPeripheralDiscovered:   s.peripheralDiscovered,
		OnPeripheralConnected:    s.peripheralConnected,
		OnPeripheralDisconnected: s.peripheralDisconnected,
		OnConnectFailed:          s.connectFailed,
	}
	return s
}

// Start registers with the coordinator and scans when the radio is on.
// Otherwise scanning begins at the next PoweredOn report.
func (s *Scanner) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.central.AddObserver(s.observer)
	if state := s.central.State(); state == device.StatePoweredOn {
		s.scan()
	} else {
		s.logger.WithField("state", state).Info("Waiting for Bluetooth before scanning")
	}
}

// Stop stops scanning and unregisters. The list is kept.
func (s *Scanner) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	s.central.StopScan()
	s.central.RemoveObserver(s.observer)
	s.logger.WithField("device_count", s.Len()).Info("BLE scan stopped")
}

// Scan runs a bounded scan: it starts, waits for ctx or opts.Duration and
// stops. A zero Duration scans until ctx is done.
func (s *Scanner) Scan(ctx context.Context, progressCallback ProgressCallback) []*session.PeripheralHandle {
	if progressCallback == nil {
		progressCallback = func(string) {} // No-op callback
	}
	if s.opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Duration)
		defer cancel()
	}

	s.logger.WithField("duration", s.opts.Duration).Info("Starting BLE scan...")
	progressCallback("Scanning")
	s.Start()
	<-ctx.Done()
	s.Stop()

	progressCallback("Processing results")
	return s.Peripherals()
}

func (s *Scanner) scan() {
	s.logger.WithField("services", s.filter).Debug("Requesting scan")
	s.central.Scan(s.filter)
}

// Events returns a lossy feed of sightings. Slow readers lose the oldest.
func (s *Scanner) Events() <-chan DeviceEvent {
	return s.events.C()
}

// Peripherals returns the list in discovery order.
func (s *Scanner) Peripherals() []*session.PeripheralHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list.Values()
}

// Peripheral returns the handle for id.
func (s *Scanner) Peripheral(id string) (*session.PeripheralHandle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list.Get(id)
}

func (s *Scanner) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list.Len()
}

func (s *Scanner) emit(events []session.Event) {
	if s.opts.OnEvent == nil {
		return
	}
	for _, e := range events {
		s.opts.OnEvent(e)
	}
}

func (s *Scanner) powerStateChanged(state device.PowerState) {
	if state == device.StatePoweredOn {
		s.logger.Info("Bluetooth powered on")
		s.mu.Lock()
		started := s.started
		s.mu.Unlock()
		if started {
			s.scan()
		}
		return
	}

	s.mu.Lock()
	cleared := s.list.Clear()
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"state":   state,
		"cleared": len(cleared),
	}).Warn("Bluetooth is not available")
	if len(cleared) > 0 {
		s.emit([]session.Event{{List: session.Peripherals, Kind: session.ClearedAll}})
	}
}

func (s *Scanner) peripheralDiscovered(p device.Peripheral, adv device.Advertisement, rssi int) {
	if !s.shouldInclude(p.ID(), adv) {
		return
	}

	s.mu.Lock()
	h, existing := s.list.Get(p.ID())
	if !existing {
		h = session.NewPeripheralHandle(p)
	}
	h.Update(p, adv, rssi)
	res := s.list.Merge([]*session.PeripheralHandle{h})
	s.mu.Unlock()

	event := DeviceEvent{Type: EventUpdated, Handle: h}
	if !existing {
		event.Type = EventNew
		s.logger.WithFields(logrus.Fields{
			"device":  h.DisplayName(),
			"address": h.ID(),
			"rssi":    rssi,
		}).Info("Discovered new device")
	}
	s.emit(session.EventsFor(session.Peripherals, res.Added, res.Updated))
	s.events.ForceSend(event)

	if !existing && s.opts.AutoConnect && (adv == nil || adv.Connectable()) {
		s.logger.WithField("address", h.ID()).Debug("Auto-connecting")
		s.central.Connect(p)
	}
}

// reload marks the row of p as updated after a link change.
func (s *Scanner) reload(p device.Peripheral, connected bool) {
	s.mu.Lock()
	h, ok := s.list.Get(p.ID())
	idx := s.list.IndexOf(p.ID())
	s.mu.Unlock()
	if !ok {
		return
	}
	h.SetConnected(connected)
	s.emit([]session.Event{{List: session.Peripherals, Kind: session.Updated, Indices: []int{idx}}})
}

func (s *Scanner) peripheralConnected(p device.Peripheral) {
	s.reload(p, true)
}

func (s *Scanner) peripheralDisconnected(p device.Peripheral, err error) {
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"address": p.ID(),
			"error":   err,
		}).Warn("Peripheral disconnected with error")
	}
	s.reload(p, false)
}

func (s *Scanner) connectFailed(p device.Peripheral, err error) {
	s.logger.WithFields(logrus.Fields{
		"address": p.ID(),
		"error":   err,
	}).Error("Failed to connect")
}

// shouldInclude applies the allow, block and service filters.
func (s *Scanner) shouldInclude(addr string, adv device.Advertisement) bool {
	for _, blocked := range s.opts.BlockList {
		if strings.EqualFold(addr, blocked) {
			return false
		}
	}

	if len(s.opts.AllowList) > 0 {
		allowed := false
		for _, a := range s.opts.AllowList {
			if strings.EqualFold(addr, a) {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	if len(s.filter) > 0 {
		if adv == nil {
			return false
		}
		advertised := device.NormalizeUUIDs(adv.Services())
		for _, required := range s.filter {
			for _, u := range advertised {
				if u == required {
					return true
				}
			}
		}
		return false
	}

	return true
}
