package inspector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blescope/internal/central"
	"github.com/srg/blescope/internal/device"
	"github.com/srg/blescope/internal/display"
	"github.com/srg/blescope/internal/session"
	"github.com/srg/blescope/scanner"
)

// ProgressCallback is called when the inspection phase changes
type ProgressCallback func(phase string)

// Coordinator is the part of central.Coordinator an inspection drives.
type Coordinator interface {
	State() device.PowerState
	Scan(services []string)
	StopScan()
	Connect(p device.Peripheral)
	Disconnect(p device.Peripheral)
	AddObserver(o *central.Observer)
	RemoveObserver(o *central.Observer)
}

// InspectOptions defines options for inspecting a BLE device profile
type InspectOptions struct {
	// Timeout bounds the whole inspection: finding, connecting and walking.
	Timeout time.Duration
	// Service limits the walk to one service.
	Service         string
	ReadDescriptors bool
	ValueFormat     display.Format
}

// DefaultInspectOptions returns default inspection options
func DefaultInspectOptions() *InspectOptions {
	return &InspectOptions{Timeout: 30 * time.Second}
}

// Snapshot is the GATT profile of one peripheral.
type Snapshot struct {
	Address  string        `json:"address"`
	Name     string        `json:"name"`
	RSSI     int           `json:"rssi"`
	Complete bool          `json:"complete"`
	Services []ServiceInfo `json:"services"`
}

type ServiceInfo struct {
	UUID            string               `json:"uuid"`
	Name            string               `json:"name,omitempty"`
	Primary         bool                 `json:"primary"`
	Characteristics []CharacteristicInfo `json:"characteristics"`
}

type CharacteristicInfo struct {
	UUID        string           `json:"uuid"`
	Name        string           `json:"name,omitempty"`
	Properties  []string         `json:"properties"`
	Value       string           `json:"value,omitempty"`
	Notifying   bool             `json:"notifying,omitempty"`
	Descriptors []DescriptorInfo `json:"descriptors,omitempty"`
}

type DescriptorInfo struct {
	UUID  string `json:"uuid"`
	Name  string `json:"name,omitempty"`
	Value string `json:"value,omitempty"`
}

// Inspect finds address, walks its GATT profile and tears the session down.
//
// When the walk does not settle before the timeout, the partial snapshot is
// returned together with an error wrapping device.ErrTimeout.
func Inspect(ctx context.Context, coord Coordinator, address string, opts *InspectOptions, logger *logrus.Logger, progressCallback ProgressCallback) (*Snapshot, error) {
	if opts == nil {
		opts = DefaultInspectOptions()
	}
	if logger == nil {
		logger = logrus.New()
	}
	if progressCallback == nil {
		progressCallback = func(string) {} // No-op callback
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	progressCallback("Scanning")
	handle, err := Find(ctx, coord, address, logger)
	if err != nil {
		progressCallback("Failed")
		return nil, err
	}

	progressCallback("Connecting")
	sess := session.New(coord, handle, session.Options{
		TargetService:   opts.Service,
		ReadDescriptors: opts.ReadDescriptors,
		ValueFormat:     opts.ValueFormat,
		Logger:          logger,
	})
	sess.Open()
	defer sess.Teardown()

	if err := WaitSettled(ctx, sess, progressCallback); err != nil {
		progressCallback("Failed")
		if errors.Is(err, device.ErrTimeout) {
			return NewSnapshot(sess, opts.ValueFormat), err
		}
		return nil, err
	}

	progressCallback("Processing results")
	return NewSnapshot(sess, opts.ValueFormat), nil
}

// Find scans until address is sighted and returns its handle. The scan is
// stopped before returning.
func Find(ctx context.Context, coord Coordinator, address string, logger *logrus.Logger) (*session.PeripheralHandle, error) {
	sc := scanner.NewScanner(coord, &scanner.ScanOptions{AllowList: []string{address}}, logger)
	sc.Start()
	defer sc.Stop()

	select {
	case ev := <-sc.Events():
		logger.WithFields(logrus.Fields{
			"address": ev.Handle.ID(),
			"rssi":    ev.Handle.RSSI(),
		}).Debug("Target peripheral found")
		return ev.Handle, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", &device.NotFoundError{Resource: "peripheral", UUIDs: []string{address}}, device.ErrTimeout)
	}
}

// WaitSettled blocks until the walk of sess finishes, fails or ctx ends.
// progressCallback may be nil.
func WaitSettled(ctx context.Context, sess *session.Session, progressCallback ProgressCallback) error {
	if progressCallback == nil {
		progressCallback = func(string) {}
	}
	reported := session.Discovered
	for {
		changed := sess.Changed()
		if sess.Settled() {
			return nil
		}

		phase := sess.Phase()
		if err := sess.LastError(); err != nil {
			// A failed connect or lost link drops back to Discovered; a failed
			// service discovery stays Connected. Neither makes further progress.
			if phase == session.Discovered || phase == session.Connected {
				return err
			}
		}
		if phase > reported {
			reported = phase
			progressCallback(phase.String())
		}

		select {
		case <-changed:
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return ctx.Err()
			}
			return fmt.Errorf("GATT walk did not finish (%s): %w", phase, device.ErrTimeout)
		}
	}
}

// NewSnapshot projects the current records of sess.
func NewSnapshot(sess *session.Session, format display.Format) *Snapshot {
	h := sess.Handle()
	snap := &Snapshot{
		Address:  h.ID(),
		Name:     h.DisplayName(),
		RSSI:     h.RSSI(),
		Complete: sess.Settled(),
		Services: []ServiceInfo{},
	}

	byService := make(map[string][]CharacteristicInfo)
	for _, rec := range sess.Characteristics() {
		info := CharacteristicInfo{
			UUID:       rec.UUID,
			Name:       rec.KnownName,
			Properties: rec.Properties.Names(),
			Notifying:  rec.Notifying,
		}
		if rec.HasValue {
			info.Value = display.MustProject(rec.Value, format)
		}
		for _, d := range rec.Descriptors {
			info.Descriptors = append(info.Descriptors, DescriptorInfo{
				UUID:  d.UUID,
				Name:  d.KnownName,
				Value: display.MustProject(d.Value, format),
			})
		}
		byService[rec.ServiceUUID] = append(byService[rec.ServiceUUID], info)
	}

	for _, svc := range sess.Services() {
		chars := byService[svc.UUID]
		if chars == nil {
			chars = []CharacteristicInfo{}
		}
		snap.Services = append(snap.Services, ServiceInfo{
			UUID:            svc.UUID,
			Name:            svc.KnownName,
			Primary:         svc.Primary,
			Characteristics: chars,
		})
	}
	return snap
}
