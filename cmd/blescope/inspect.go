package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/blescope/inspector"
	"github.com/srg/blescope/internal/display"
)

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect <device-address>",
	Short: "Inspect services, characteristics, and descriptors of a BLE device",
	Long: `Finds a BLE device by address, connects and discovers its services,
characteristics, and descriptors. Every readable characteristic is read once.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

var (
	inspectTimeout     time.Duration
	inspectService     string
	inspectJSON        bool
	inspectValueFormat string
	inspectDescriptors bool
	inspectVerbose     bool
)

func init() {
	inspectCmd.Flags().DurationVar(&inspectTimeout, "timeout", 0, "Overall timeout (default: scan timeout + connect timeout from config)")
	inspectCmd.Flags().StringVar(&inspectService, "service", "", "Only walk this service UUID")
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "Output as JSON")
	inspectCmd.Flags().StringVar(&inspectValueFormat, "value-format", "", "Value rendering (auto, hex, utf8; default from config)")
	inspectCmd.Flags().BoolVar(&inspectDescriptors, "descriptors", false, "Also read descriptor values")
	inspectCmd.Flags().BoolVar(&inspectVerbose, "verbose", false, "Verbose output (debug logging)")
}

// resolveValueFormat prefers the flag over the configured format.
func resolveValueFormat(cmd *cobra.Command, flagValue, configured string) (display.Format, error) {
	if cmd.Flags().Changed("value-format") {
		return display.ParseFormat(flagValue)
	}
	return display.ParseFormat(configured)
}

func runInspect(cmd *cobra.Command, args []string) error {
	address := args[0]

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	format, err := resolveValueFormat(cmd, inspectValueFormat, cfg.ValueFormat)
	if err != nil {
		return err
	}
	if inspectService != "" {
		if _, err := validateService(inspectService); err != nil {
			return err
		}
	}
	logger, err := configureLogger(cmd, "verbose", cfg)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	timeout := inspectTimeout
	if timeout <= 0 {
		timeout = cfg.ScanTimeout + cfg.ConnectTimeout
	}

	coord, stop, err := startCentral(cfg, logger)
	if err != nil {
		return err
	}
	defer stop()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	out := newPrinter(cmd.OutOrStdout())
	var progressCallback inspector.ProgressCallback
	if !inspectJSON && isTerminal(cmd.OutOrStdout()) {
		progress := NewProgressPrinter(cmd.OutOrStdout(), fmt.Sprintf("Inspecting device %s", address), "Scanning", "Processing results", "Failed")
		progress.Start()
		defer progress.Stop()
		progressCallback = progress.Callback()
	}

	snap, err := inspector.Inspect(ctx, coord, address, &inspector.InspectOptions{
		Timeout:         timeout,
		Service:         inspectService,
		ReadDescriptors: inspectDescriptors,
		ValueFormat:     format,
	}, logger, progressCallback)
	if snap != nil {
		if inspectJSON {
			if jerr := out.json(snap); jerr != nil {
				return jerr
			}
		} else {
			out.snapshotTree(snap)
		}
	}
	return err
}
