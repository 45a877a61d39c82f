package usbresolver

import (
	"strconv"
	"strings"
)

// parseHardwareIDs extracts the vendor and product IDs from a Windows
// hardware ID list. USB hardware IDs look like
// "USB\VID_0403&PID_6010&REV_0700"; the first entry carrying both markers
// wins.
func parseHardwareIDs(ids []string) (vid, pid uint16, ok bool) {
	for _, id := range ids {
		upper := strings.ToUpper(id)

		vidIdx := strings.Index(upper, "VID_")
		pidIdx := strings.Index(upper, "PID_")
		if vidIdx < 0 || pidIdx < 0 {
			continue
		}
		if vidIdx+8 > len(upper) || pidIdx+8 > len(upper) {
			continue
		}

		v, err := strconv.ParseUint(upper[vidIdx+4:vidIdx+8], 16, 16)
		if err != nil {
			continue
		}
		p, err := strconv.ParseUint(upper[pidIdx+4:pidIdx+8], 16, 16)
		if err != nil {
			continue
		}
		return uint16(v), uint16(p), true
	}
	return 0, 0, false
}

// serialFromInstanceID returns the last segment of a device instance ID,
// which holds the serial number for devices that report one (and a
// synthetic location code for those that don't):
// "USB\VID_0403&PID_6010\FT123456" -> "FT123456".
func serialFromInstanceID(instanceID string) string {
	if idx := strings.LastIndexByte(instanceID, '\\'); idx >= 0 {
		return instanceID[idx+1:]
	}
	return ""
}

// comPortFromFriendlyName extracts "COMn" from a friendly name such as
// "USB Serial Port (COM3)". Returns "" when the device exposes no port.
func comPortFromFriendlyName(name string) string {
	start := strings.Index(name, "(COM")
	if start < 0 {
		return ""
	}
	end := strings.IndexByte(name[start:], ')')
	if end < 0 {
		return ""
	}
	return name[start+1 : start+end]
}
