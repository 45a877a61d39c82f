// Package usbresolver resolves USB peripherals to stable logical roles and
// tracks their attachment state across hot-plug events.
//
// Device paths like /dev/ttyUSB0 or COM3 are assigned by the operating system
// at enumeration time and shift between reboots, replugs and hubs. This
// library lets applications address devices by role ("imu", "gps",
// "printer") instead: rules describe how to recognize each device, and a
// Monitor watches the bus and reports which concrete device currently fills
// each role.
//
// # Discovery
//
// Enumerate currently attached USB devices without starting a monitor:
//
//	devices, err := usbresolver.Discover()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, dev := range devices {
//	    fmt.Println(dev)
//	}
//
// # Rules
//
// A rule binds a role name to identifying attributes. Vendor and product IDs
// are mandatory; serial number and port path are optional refinements:
//
//	rules := []usbresolver.DeviceRule{
//	    {Role: "imu", VID: 0x0403, PID: 0x6001, Serial: "FT123456"},
//	    {Role: "gps", VID: 0x10c4, PID: 0xea60},
//	}
//
// Rules can also be loaded from a YAML or JSON file:
//
//	rules, err := usbresolver.LoadRules("devices.yaml")
//
// When several attributes are present the strongest match wins: serial
// number, then port path, then vendor/product ID alone.
//
// # Monitoring
//
// Start a monitor and consume role events:
//
//	mon, err := usbresolver.NewMonitor(rules)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := mon.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer mon.Stop()
//
//	for ev := range mon.Events() {
//	    switch ev.Type {
//	    case usbresolver.Attached:
//	        fmt.Printf("%s -> %s\n", ev.Role, ev.Resolved.Device.SystemPath)
//	    case usbresolver.Detached:
//	        fmt.Printf("%s gone\n", ev.Role)
//	    }
//	}
//
// Events already reflect devices present when Start was called, so consumers
// never need a separate baseline pass. Rapid detach/attach flaps inside the
// debounce window are coalesced and produce no events.
//
// # Configuration Options
//
// Functional options tune the monitor:
//
//	mon, err := usbresolver.NewMonitor(rules,
//	    usbresolver.WithDebounceWindow(200*time.Millisecond),
//	    usbresolver.WithPollInterval(time.Second),
//	    usbresolver.WithLogger(logger),
//	)
//
// # Error Handling
//
// The library provides sentinel errors for robust error handling:
//
//	var (
//	    ErrNoRules             // empty rule set
//	    ErrInvalidRule         // rule missing role or vendor/product ID
//	    ErrDuplicateRole       // two rules share a role name
//	    ErrAlreadyRunning      // Start called twice
//	    ErrPlatformInit        // OS watcher could not be set up
//	    ErrPlatformUnsupported // no backend for this OS
//	    // ... and more
//	)
//
// Use errors.Is() for error type checking:
//
//	if errors.Is(err, usbresolver.ErrDuplicateRole) {
//	    // fix the rules file
//	}
//
// # Platform Support
//
// Linux uses a netlink uevent socket with a sysfs polling fallback, macOS
// uses IOKit hot-plug notifications, and Windows polls SetupAPI device
// snapshots. Transient backend faults (socket overflows, failed scans) are
// recovered internally and never surface to consumers.
package usbresolver
