package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/blescope/inspector"
	"github.com/srg/blescope/internal/device"
	"github.com/srg/blescope/internal/notify"
	"github.com/srg/blescope/internal/session"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch <device-address>",
	Short: "Subscribe to notifying characteristics of a service",
	Long: `Connects to a BLE device, subscribes to the notifying characteristics of
one service and prints every value update until interrupted.

While the process runs in the background, updates are also delivered as local
notifications (terminal bell and banner) unless notifications are disabled in
the configuration. With --history, the latest values of every characteristic
are kept and printed when the watch ends.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

var (
	watchService     string
	watchChars       []string
	watchHistory     int
	watchDuration    time.Duration
	watchValueFormat string
	watchVerbose     bool
)

func init() {
	watchCmd.Flags().StringVar(&watchService, "service", "", "Service UUID whose characteristics are watched (required)")
	watchCmd.Flags().StringSliceVar(&watchChars, "chars", nil, "Only watch these characteristic UUIDs (default: every notifying one)")
	watchCmd.Flags().IntVar(&watchHistory, "history", -1, "Values kept per characteristic and printed at exit (default from config, 0 disables)")
	watchCmd.Flags().DurationVarP(&watchDuration, "duration", "d", 0, "Stop after this long (0 watches until Ctrl+C)")
	watchCmd.Flags().StringVar(&watchValueFormat, "value-format", "", "Value rendering (auto, hex, utf8; default from config)")
	watchCmd.Flags().BoolVar(&watchVerbose, "verbose", false, "Verbose output (debug logging)")
	_ = watchCmd.MarkFlagRequired("service")
}

func runWatch(cmd *cobra.Command, args []string) error {
	address := args[0]

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	service, err := validateService(watchService)
	if err != nil {
		return err
	}
	var wanted []string
	if len(watchChars) > 0 {
		if wanted, err = device.ValidateUUID(watchChars...); err != nil {
			return fmt.Errorf("invalid characteristic UUID: %w", err)
		}
	}
	format, err := resolveValueFormat(cmd, watchValueFormat, cfg.ValueFormat)
	if err != nil {
		return err
	}
	historySize := cfg.HistorySize
	if watchHistory >= 0 {
		historySize = watchHistory
	}
	logger, err := configureLogger(cmd, "verbose", cfg)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	coord, stop, err := startCentral(cfg, logger)
	if err != nil {
		return err
	}
	defer stop()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if watchDuration > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, watchDuration)
		defer cancelTimeout()
	}

	out := newPrinter(cmd.OutOrStdout())

	findCtx, cancelFind := context.WithTimeout(ctx, cfg.ScanTimeout)
	handle, err := inspector.Find(findCtx, coord, address, logger)
	cancelFind()
	if err != nil {
		return err
	}

	var history *session.History
	if historySize > 0 {
		history = session.NewHistory(uint32(historySize))
	}
	var notifier notify.Notifier
	if cfg.Notifications {
		notifier = notify.Multi{
			notify.NewTerminalNotifier(cmd.ErrOrStderr(), true),
			notify.LogNotifier{Logger: logger},
		}
	}

	var (
		sess      *session.Session
		mu        sync.Mutex
		notifying = make(map[string]bool)
	)
	onEvent := func(e session.Event) {
		if e.List != session.Characteristics || e.Kind != session.Updated {
			return
		}
		recs := sess.Characteristics()
		for _, i := range e.Indices {
			if i >= len(recs) {
				continue
			}
			rec := recs[i]
			mu.Lock()
			toggled := notifying[rec.Key()] != rec.Notifying
			notifying[rec.Key()] = rec.Notifying
			mu.Unlock()

			switch {
			case toggled:
				out.notifyLine(rec)
			case rec.HasValue:
				out.valueLine(time.Now(), rec, format)
			}
		}
	}
	sess = session.New(coord, handle, session.Options{
		TargetService: service,
		Notifier:      notifier,
		ValueFormat:   format,
		OnEvent:       onEvent,
		History:       history,
		Logger:        logger,
	})
	sess.Open()
	defer sess.Teardown()

	settleCtx, cancelSettle := context.WithTimeout(ctx, cfg.ConnectTimeout)
	err = inspector.WaitSettled(settleCtx, sess, nil)
	cancelSettle()
	if err != nil {
		return err
	}

	labels, err := subscribe(sess, service, wanted)
	if err != nil {
		return err
	}
	out.printf(nil, "Watching %s on %s, press Ctrl+C to stop\n", describeUUID(service), handle.DisplayName())

	err = watchLink(ctx, sess)
	if history != nil {
		out.history(history, labels, format)
	}
	return err
}

// subscribe enables notifications on the characteristics of service that
// can notify, limited to wanted when given. It returns their labels by key.
func subscribe(sess *session.Session, service string, wanted []string) (map[string]string, error) {
	labels := make(map[string]string)
	for _, rec := range sess.Characteristics() {
		if rec.ServiceUUID != service || !rec.Properties.CanNotify() {
			continue
		}
		if len(wanted) > 0 && !contains(wanted, rec.UUID) {
			continue
		}
		if err := sess.SetNotify(rec.Key(), true); err != nil {
			return nil, err
		}
		labels[rec.Key()] = rec.Label()
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("service %s has no matching characteristic that supports notifications", describeUUID(service))
	}
	return labels, nil
}

// watchLink blocks until ctx ends or the link drops.
func watchLink(ctx context.Context, sess *session.Session) error {
	for {
		changed := sess.Changed()
		if sess.Phase() == session.Discovered {
			cause := sess.LastError()
			if cause == nil {
				cause = errors.New("peripheral disconnected")
			}
			return fmt.Errorf("%w: %w", ErrConnectionLost, cause)
		}
		select {
		case <-changed:
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil
			}
			return ctx.Err()
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

