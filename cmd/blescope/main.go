package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "blescope",
	Short: "Bluetooth Low Energy explorer",
	Long: `Bluetooth Low Energy (BLE) explorer that provides:

- Scan and list nearby BLE peripherals as they are discovered
- Inspect the GATT profile of a peripheral: services, characteristics, descriptors and values
- Watch notifying characteristics, with value history and local notifications

Every command shares one connection to the platform Bluetooth central.`,
	Version: formatVersion(version),
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}

func init() {
	// Silence Cobra's "Error:" prefix - main() prints clean errors
	rootCmd.SilenceErrors = true
	rootCmd.SetVersionTemplate(fmt.Sprintf("blescope %s (commit %s, built %s)\n", formatVersion(version), commit, date))

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(watchCmd)

	// Global flags
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML configuration file")

	// Add -v as a short flag for --version
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
}
