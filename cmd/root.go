package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	rulesFile string
	verbose   bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "usb-resolver",
	Short: "Resolve USB devices to stable logical roles",
	Long: `usb-resolver addresses USB peripherals by logical role instead of
volatile device paths.

OS-assigned paths like /dev/ttyUSB0 or COM3 shift between reboots and
replugs. A rule file maps each role to identifying attributes (vendor and
product IDs, serial number, physical port); usb-resolver tracks which
concrete device currently fills each role as hardware comes and goes.

Start with "usb-resolver discover" to inspect attached devices, write a
rule file, then use "watch" or "tui" to follow role assignments live.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). It only needs to happen
// once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rulesFile, "config", "c", "devices.yaml",
		"Device rule file (YAML, JSON or TOML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Enable debug logging")
}

// newLogger builds the console logger shared by the subcommands. Debug
// output is opt-in via --verbose.
func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		Level(level).
		With().Timestamp().Logger()
}

// fatal prints the error and terminates with a non-zero status.
func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
