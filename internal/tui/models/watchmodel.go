package models

import (
	"fmt"
	"time"

	usbresolver "github.com/DoraCN/usb-resolver"
)

// RoleEventMsg wraps a monitor event for delivery into the Bubble Tea loop.
type RoleEventMsg struct {
	Event usbresolver.DeviceEvent
}

// MonitorClosedMsg signals that the monitor's event channel has closed.
type MonitorClosedMsg struct{}

// RoleStatus is one dashboard row: a configured role and the device
// currently filling it, if any.
type RoleStatus struct {
	Rule     usbresolver.DeviceRule
	Resolved *usbresolver.ResolvedDevice
}

// WatchModel is the dashboard state shared by the TUI components: the
// configured rules in declaration order, the live attachment table, and a
// rolling event log.
type WatchModel struct {
	rules    []usbresolver.DeviceRule
	attached map[string]usbresolver.ResolvedDevice
	log      []string
	maxLog   int
}

func NewWatchModel(rules []usbresolver.DeviceRule, initial map[string]usbresolver.ResolvedDevice) *WatchModel {
	if initial == nil {
		initial = make(map[string]usbresolver.ResolvedDevice)
	}
	return &WatchModel{
		rules:    rules,
		attached: initial,
		maxLog:   100,
	}
}

// Apply folds one monitor event into the attachment table and the log.
func (m *WatchModel) Apply(ev usbresolver.DeviceEvent) {
	timestamp := time.Now().Format("15:04:05")
	switch ev.Type {
	case usbresolver.Attached:
		m.attached[ev.Role] = *ev.Resolved
		m.appendLog(fmt.Sprintf("[%s] + %s  %s", timestamp, ev.Role, ev.Resolved.Device.SystemPath))
	case usbresolver.Detached:
		delete(m.attached, ev.Role)
		m.appendLog(fmt.Sprintf("[%s] - %s", timestamp, ev.Role))
	}
}

func (m *WatchModel) appendLog(line string) {
	m.log = append(m.log, line)
	if len(m.log) > m.maxLog {
		m.log = m.log[len(m.log)-m.maxLog:]
	}
}

// Statuses returns one row per configured rule, in declaration order.
func (m *WatchModel) Statuses() []RoleStatus {
	out := make([]RoleStatus, 0, len(m.rules))
	for _, rule := range m.rules {
		status := RoleStatus{Rule: rule}
		if res, ok := m.attached[rule.Role]; ok {
			resCopy := res
			status.Resolved = &resCopy
		}
		out = append(out, status)
	}
	return out
}

// AttachedCount returns how many roles are currently filled.
func (m *WatchModel) AttachedCount() int {
	return len(m.attached)
}

// RoleCount returns the number of configured roles.
func (m *WatchModel) RoleCount() int {
	return len(m.rules)
}

// Log returns up to n of the most recent event lines, oldest first.
func (m *WatchModel) Log(n int) []string {
	if n <= 0 || len(m.log) <= n {
		return m.log
	}
	return m.log[len(m.log)-n:]
}
