package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	usbresolver "github.com/DoraCN/usb-resolver"
	"github.com/spf13/cobra"
)

var watchDebounce time.Duration

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch role attach/detach events in real-time",
	Long: `Watch role assignments change as USB hardware comes and goes.

Loads the rule file, resolves the devices already attached, then streams
an event line for every confirmed role change. Press Ctrl+C to stop.

Examples:
  usb-resolver watch
  usb-resolver watch --config /etc/usb-resolver/devices.yaml
  usb-resolver watch --debounce 500ms`,
	Run: func(cmd *cobra.Command, args []string) {
		rules, err := usbresolver.LoadRules(rulesFile)
		if err != nil {
			fatal("Error loading rules: %v", err)
		}

		logger := newLogger()
		mon, err := usbresolver.NewMonitor(rules,
			usbresolver.WithDebounceWindow(watchDebounce),
			usbresolver.WithLogger(logger),
		)
		if err != nil {
			fatal("Error creating monitor: %v", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigChan
			fmt.Println("\nStopping...")
			cancel()
		}()

		if err := mon.Start(ctx); err != nil {
			fatal("Error starting monitor: %v", err)
		}

		fmt.Printf("Watching %d role(s) from %s\n", len(rules), rulesFile)
		fmt.Println("Press Ctrl+C to stop")

		for ev := range mon.Events() {
			timestamp := time.Now().Format("15:04:05")
			switch ev.Type {
			case usbresolver.Attached:
				fmt.Printf("[%s] + %-12s %s (matched by %s)\n",
					timestamp, ev.Role, ev.Resolved.Device.SystemPath,
					ev.Resolved.MatchMethod)
			case usbresolver.Detached:
				fmt.Printf("[%s] - %-12s\n", timestamp, ev.Role)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().DurationVarP(&watchDebounce, "debounce", "d", 200*time.Millisecond,
		"Detach debounce window")
}
