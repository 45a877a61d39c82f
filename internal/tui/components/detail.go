package components

import (
	"fmt"

	"github.com/DoraCN/usb-resolver/internal/tui/models"
	"github.com/DoraCN/usb-resolver/internal/tui/styles"
	"github.com/charmbracelet/lipgloss"
)

// DetailView renders every known attribute of the role under the cursor.
// A missing role shows its rule criteria instead of device attributes, so
// the operator can see what the resolver is waiting for.
func DetailView(status models.RoleStatus) string {
	var rows []string
	row := func(label, value string) {
		if value == "" {
			value = "-"
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top,
			styles.DetailLabelStyle.Render(label), value))
	}

	row("Role", status.Rule.Role)

	if status.Resolved == nil {
		row("State", styles.RoleMissingStyle.Render("missing"))
		row("Wants", fmt.Sprintf("%04x:%04x (%d:%d)",
			status.Rule.VID, status.Rule.PID, status.Rule.VID, status.Rule.PID))
		row("Serial", status.Rule.Serial)
		row("Port Path", status.Rule.PortPath)
		return styles.DetailBorderStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
	}

	dev := status.Resolved.Device
	row("State", styles.RoleAttachedStyle.Render("attached"))
	row("Matched By", status.Resolved.MatchMethod.String())
	row("VID:PID", fmt.Sprintf("%04x:%04x (%d:%d)", dev.VID, dev.PID, dev.VID, dev.PID))
	row("Serial", dev.Serial)
	row("Port Path", dev.PortPath)
	row("Path", dev.SystemPath)
	row("Alt Path", dev.SystemPathAlt)

	return styles.DetailBorderStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}
