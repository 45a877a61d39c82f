package usbresolver

import "fmt"

// RawDeviceInfo is a snapshot of one physical USB device's identifying
// attributes as reported by the platform watcher. It is produced on every
// scan or hot-plug notification and is not retained beyond the pipeline,
// except for the latest copy held inside a ResolvedDevice.
type RawDeviceInfo struct {
	VID    uint16
	PID    uint16
	Serial string // empty when the device reports no serial number

	// PortPath is the OS-specific topological encoding of the physical
	// port/hub chain (Linux: sysfs device name like "1-1.4", macOS:
	// locationID as hex, Windows: location paths). Only meaningful on the
	// machine where it was captured.
	PortPath string

	// SystemPath is the primary path or identifier used to open the
	// device (Linux: /dev/ttyUSB0 when a serial node exists, otherwise
	// the sysfs path; macOS: the /dev/cu.* callout node; Windows: the
	// device instance ID).
	SystemPath string

	// SystemPathAlt is the optional secondary path (Linux: the sysfs
	// path when SystemPath is a /dev node; macOS: /dev/tty.*; Windows:
	// the COM port name).
	SystemPathAlt string
}

func (d RawDeviceInfo) String() string {
	return fmt.Sprintf("%04x:%04x serial=%q port=%q path=%q",
		d.VID, d.PID, d.Serial, d.PortPath, d.SystemPath)
}

// DeviceRule binds a logical role to one physical device. Rules are loaded
// once by the configuration collaborator and are immutable for the lifetime
// of a monitoring session. Role values must be unique across the rule set.
type DeviceRule struct {
	Role     string `mapstructure:"role" json:"role"`
	VID      uint16 `mapstructure:"vid" json:"vid"`
	PID      uint16 `mapstructure:"pid" json:"pid"`
	Serial   string `mapstructure:"serial" json:"serial,omitempty"`
	PortPath string `mapstructure:"port_path" json:"port_path,omitempty"`
}

// MatchMethod records which rule field produced a match.
type MatchMethod int

const (
	MatchSerial MatchMethod = iota
	MatchPortPath
	MatchVidPid
)

func (m MatchMethod) String() string {
	switch m {
	case MatchSerial:
		return "serial"
	case MatchPortPath:
		return "port_path"
	case MatchVidPid:
		return "vid_pid"
	default:
		return "unknown"
	}
}

// ResolvedDevice is a device that satisfied a rule. It lives as long as the
// role is considered attached and is discarded on confirmed detach.
type ResolvedDevice struct {
	Role        string
	Device      RawDeviceInfo
	MatchMethod MatchMethod
}

// EventType is the kind of a DeviceEvent.
type EventType int

const (
	Attached EventType = iota
	Detached
)

func (t EventType) String() string {
	switch t {
	case Attached:
		return "attached"
	case Detached:
		return "detached"
	default:
		return "unknown"
	}
}

// DeviceEvent is delivered on the monitor's event channel. Attached events
// carry the resolved device; Detached events carry only the role.
type DeviceEvent struct {
	Type     EventType
	Role     string
	Resolved *ResolvedDevice // nil for Detached
}
