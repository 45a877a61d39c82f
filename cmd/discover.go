package cmd

import (
	"fmt"
	"os"

	usbresolver "github.com/DoraCN/usb-resolver"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// discoverCmd represents the discover command
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "List attached USB devices and their identifying attributes",
	Long: `List every USB device currently attached to this machine.

The output shows the attributes a rule file can match on: vendor and
product IDs (hex and decimal), serial number, and the physical port path.
Copy the values of the device you care about into your rule file:

  devices:
    - role: imu
      vid: 9025
      pid: 32822
      serial: SN-1

Hubs and other devices without a serial character device are listed too;
they can still be matched by VID/PID or port path.`,
	Run: func(cmd *cobra.Command, args []string) {
		devices, err := usbresolver.Discover()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error discovering devices: %v\n", err)
			os.Exit(1)
		}

		if len(devices) == 0 {
			fmt.Println("No USB devices found")
			return
		}

		tableFormat, _ := cmd.Flags().GetBool("table")
		if tableFormat {
			renderDeviceTable(devices)
		} else {
			renderDeviceList(devices)
		}
	},
}

func init() {
	rootCmd.AddCommand(discoverCmd)

	discoverCmd.Flags().BoolP("table", "t", false, "Display output in a styled table format")
}

// renderDeviceTable renders the inventory in a styled static table format
func renderDeviceTable(devices []usbresolver.RawDeviceInfo) {
	fmt.Printf("Found %d USB device(s):\n\n", len(devices))

	vidWidth := 12
	pidWidth := 12
	serialWidth := 20
	portWidth := 16
	pathWidth := 30

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("99")).
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("240")).
		PaddingBottom(1)

	cellStyle := lipgloss.NewStyle().
		PaddingRight(2)

	header := fmt.Sprintf("%-*s %-*s %-*s %-*s %-*s",
		vidWidth, "VID (dec)",
		pidWidth, "PID (dec)",
		serialWidth, "Serial",
		portWidth, "Port Path",
		pathWidth, "System Path")
	fmt.Println(headerStyle.Render(header))

	for _, dev := range devices {
		serial := dev.Serial
		if serial == "" {
			serial = "-"
		}
		row := fmt.Sprintf("%-*s %-*s %-*s %-*s %-*s",
			vidWidth, fmt.Sprintf("%04x (%d)", dev.VID, dev.VID),
			pidWidth, fmt.Sprintf("%04x (%d)", dev.PID, dev.PID),
			serialWidth, serial,
			portWidth, dev.PortPath,
			pathWidth, dev.SystemPath)
		fmt.Println(cellStyle.Render(row))
	}
}

// renderDeviceList renders the inventory in simple text format
func renderDeviceList(devices []usbresolver.RawDeviceInfo) {
	for _, dev := range devices {
		fmt.Println(dev.String())
	}
}
