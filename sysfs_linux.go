//go:build linux

package usbresolver

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Serial character-device names a USB function may expose. Same families
// the kernel uses for USB serial adapters and CDC/ACM devices.
var ttyNodePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^ttyUSB\d+$`),
	regexp.MustCompile(`^ttyACM\d+$`),
}

// readSysfsFile reads a single sysfs attribute, returning the trimmed
// content or an empty string when the attribute does not exist. Sysfs
// attributes vanish while a device is being removed, so absence is normal.
func readSysfsFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// readSysfsHexU16 reads a 16-bit hex attribute such as idVendor.
func readSysfsHexU16(path string) (uint16, bool) {
	s := strings.TrimPrefix(readSysfsFile(path), "0x")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, false
	}
	return uint16(v), true
}

// hasDeviceAttributes reports whether a sysfs node is an attribute-bearing
// USB device node. Interface nodes (children of a device) do not carry
// idVendor/idProduct.
func hasDeviceAttributes(sysfsPath string) bool {
	if _, err := os.Stat(filepath.Join(sysfsPath, "idVendor")); err != nil {
		return false
	}
	_, err := os.Stat(filepath.Join(sysfsPath, "idProduct"))
	return err == nil
}

// parseUSBDevice reads the identifying attributes of a USB device node.
// The port path is the sysfs device name, which encodes the physical
// bus/hub chain (e.g. "1-1.4"). When the device exposes a serial
// character-device node, that /dev path becomes the primary system path
// and the sysfs path the secondary one.
func parseUSBDevice(sysfsPath string) (RawDeviceInfo, bool) {
	vid, ok := readSysfsHexU16(filepath.Join(sysfsPath, "idVendor"))
	if !ok {
		return RawDeviceInfo{}, false
	}
	pid, ok := readSysfsHexU16(filepath.Join(sysfsPath, "idProduct"))
	if !ok {
		return RawDeviceInfo{}, false
	}

	info := RawDeviceInfo{
		VID:      vid,
		PID:      pid,
		Serial:   readSysfsFile(filepath.Join(sysfsPath, "serial")),
		PortPath: filepath.Base(sysfsPath),
	}

	if tty := findTTYNode(sysfsPath); tty != "" {
		info.SystemPath = tty
		info.SystemPathAlt = sysfsPath
	} else {
		info.SystemPath = sysfsPath
	}

	return info, true
}

// findTTYNode searches the descendants of a USB device node for the serial
// character-device it exposes, returning the /dev path or "". USB serial
// functions publish the tty either directly under the interface directory
// (ttyUSB0) or below a "tty" subdirectory (CDC/ACM).
func findTTYNode(sysfsPath string) string {
	ifaces, err := os.ReadDir(sysfsPath)
	if err != nil {
		return ""
	}

	base := filepath.Base(sysfsPath)
	for _, iface := range ifaces {
		// Interface nodes are named <device>:<config>.<interface>.
		if !iface.IsDir() || !strings.HasPrefix(iface.Name(), base+":") {
			continue
		}
		ifacePath := filepath.Join(sysfsPath, iface.Name())

		entries, err := os.ReadDir(ifacePath)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if isTTYName(entry.Name()) {
				return "/dev/" + entry.Name()
			}
			if entry.Name() == "tty" {
				if sub, err := os.ReadDir(filepath.Join(ifacePath, "tty")); err == nil {
					for _, s := range sub {
						if isTTYName(s.Name()) {
							return "/dev/" + s.Name()
						}
					}
				}
			}
		}
	}
	return ""
}

func isTTYName(name string) bool {
	for _, pattern := range ttyNodePatterns {
		if pattern.MatchString(name) {
			return true
		}
	}
	return false
}

// resolveDeviceAncestor walks the ancestor chain of a sysfs node until it
// finds the nearest attribute-bearing device node. Kernel events for
// interface nodes carry no vendor/product attributes; the parent device
// does. Returns "" when no ancestor inside root qualifies, in which case
// the event must be dropped.
func resolveDeviceAncestor(root, nodePath string) string {
	p := filepath.Clean(nodePath)
	root = filepath.Clean(root)

	for strings.HasPrefix(p, root) && p != root {
		if hasDeviceAttributes(p) {
			return p
		}
		p = filepath.Dir(p)
	}
	return ""
}

// scanUSBDevices enumerates every attribute-bearing device node below the
// sysfs USB device directory, including root hubs. Interface entries
// (names containing ':') are skipped; the matcher only ever sees physical
// devices.
func scanUSBDevices(devicesDir string) ([]rawDevice, error) {
	entries, err := os.ReadDir(devicesDir)
	if err != nil {
		return nil, err
	}

	var devices []rawDevice
	for _, entry := range entries {
		name := entry.Name()
		if strings.Contains(name, ":") {
			continue
		}

		sysfsPath := filepath.Join(devicesDir, name)
		// Entries here are symlinks into /sys/devices. Resolve them so
		// scan keys line up with the DEVPATH values kernel events carry.
		if resolved, err := filepath.EvalSymlinks(sysfsPath); err == nil {
			sysfsPath = resolved
		}
		if !hasDeviceAttributes(sysfsPath) {
			continue
		}
		info, ok := parseUSBDevice(sysfsPath)
		if !ok {
			continue
		}
		devices = append(devices, rawDevice{key: sysfsPath, info: info})
	}

	// Stable ordering keeps scans comparable across ticks.
	sort.Slice(devices, func(i, j int) bool { return devices[i].key < devices[j].key })

	return devices, nil
}
