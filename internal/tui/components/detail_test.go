package components

import (
	"strings"
	"testing"

	usbresolver "github.com/DoraCN/usb-resolver"
	"github.com/DoraCN/usb-resolver/internal/tui/models"
)

func attachedStatus() models.RoleStatus {
	return models.RoleStatus{
		Rule: usbresolver.DeviceRule{Role: "imu", VID: 0x0403, PID: 0x6001, Serial: "FT123456"},
		Resolved: &usbresolver.ResolvedDevice{
			Role: "imu",
			Device: usbresolver.RawDeviceInfo{
				VID:        0x0403,
				PID:        0x6001,
				Serial:     "FT123456",
				PortPath:   "1-1.4",
				SystemPath: "/dev/ttyUSB0",
			},
			MatchMethod: usbresolver.MatchSerial,
		},
	}
}

func missingStatus() models.RoleStatus {
	return models.RoleStatus{
		Rule: usbresolver.DeviceRule{Role: "lidar", VID: 0x10c4, PID: 0xea60},
	}
}

func TestDetailViewAttached(t *testing.T) {
	out := DetailView(attachedStatus())

	for _, want := range []string{"imu", "attached", "serial", "0403:6001", "FT123456", "1-1.4", "/dev/ttyUSB0"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected detail view to contain %q, got:\n%s", want, out)
		}
	}
}

func TestDetailViewMissingShowsRuleCriteria(t *testing.T) {
	out := DetailView(missingStatus())

	if !strings.Contains(out, "lidar") {
		t.Errorf("Expected role name in detail view, got:\n%s", out)
	}
	if !strings.Contains(out, "missing") {
		t.Errorf("Expected missing state in detail view, got:\n%s", out)
	}
	if !strings.Contains(out, "10c4:ea60") {
		t.Errorf("Expected rule VID:PID in detail view, got:\n%s", out)
	}
}

func TestRoleTableHighlighted(t *testing.T) {
	rt := NewRoleTable()

	if rt.Highlighted() != nil {
		t.Error("Expected nil highlight for empty table")
	}

	rt.SetStatuses([]models.RoleStatus{missingStatus(), attachedStatus()})

	status := rt.Highlighted()
	if status == nil {
		t.Fatal("Expected a highlighted status")
	}
	if status.Rule.Role != "lidar" {
		t.Errorf("Expected cursor on first row lidar, got %q", status.Rule.Role)
	}
}
