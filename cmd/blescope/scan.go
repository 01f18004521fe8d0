package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/blescope/internal/central"
	"github.com/srg/blescope/internal/device"
	"github.com/srg/blescope/internal/session"
	"github.com/srg/blescope/scanner"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for BLE devices",
	Long: `Scan for and display Bluetooth Low Energy devices in the vicinity.

Peripherals are printed as they are discovered or updated; a table of every
discovered peripheral, with name, address, RSSI and advertised services, is
printed when the scan ends. Ctrl+C ends the scan early.`,
	RunE: runScan,
}

var (
	scanDuration  time.Duration
	scanFormat    string
	scanServices  []string
	scanAllowList []string
	scanBlockList []string
	scanVerbose   bool
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 0, "Scan duration (default from config, 0 for indefinite when set explicitly)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "", "Output format (table, json; default from config)")
	scanCmd.Flags().StringSliceVarP(&scanServices, "services", "s", nil, "Filter by service UUIDs")
	scanCmd.Flags().StringSliceVar(&scanAllowList, "allow", nil, "Only show devices with these addresses")
	scanCmd.Flags().StringSliceVar(&scanBlockList, "block", nil, "Hide devices with these addresses")
	scanCmd.Flags().BoolVar(&scanVerbose, "verbose", false, "Verbose output (debug logging)")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	format := cfg.OutputFormat
	if cmd.Flags().Changed("format") {
		format = scanFormat
	}
	if format != "table" && format != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", format)
	}

	duration := cfg.ScanTimeout
	if cmd.Flags().Changed("duration") {
		duration = scanDuration
	}

	var serviceUUIDs []string
	if len(scanServices) > 0 {
		serviceUUIDs, err = device.ValidateUUID(scanServices...)
		if err != nil {
			return fmt.Errorf("invalid service UUID: %w", err)
		}
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

	out := newPrinter(cmd.OutOrStdout())
	table := format == "table"
	if table {
		out.stateLine(coord.State())
	}
	obs := &central.Observer{OnPowerStateChanged: func(state device.PowerState) {
		if table {
			out.stateLine(state)
		}
	}}
	coord.AddObserver(obs)
	defer coord.RemoveObserver(obs)

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts := &scanner.ScanOptions{
		Duration:     duration,
		ServiceUUIDs: serviceUUIDs,
		AllowList:    scanAllowList,
		BlockList:    scanBlockList,
	}
	var s *scanner.Scanner
	if table {
		opts.OnEvent = func(e session.Event) { out.peripheralEvent(e, s.Peripherals()) }
	}
	s = scanner.NewScanner(coord, opts, logger)

	handles := s.Scan(ctx, nil)
	if table {
		out.printf(nil, "\n")
		return out.peripheralTable(handles)
	}
	return out.json(toRows(handles))
}
