package components

import (
	"fmt"

	"github.com/DoraCN/usb-resolver/internal/tui/models"
	"github.com/DoraCN/usb-resolver/internal/tui/styles"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/evertras/bubble-table/table"
)

const (
	columnKeyRole   = "role"
	columnKeyState  = "state"
	columnKeyMethod = "method"
	columnKeyIDs    = "ids"
	columnKeySerial = "serial"
	columnKeyPath   = "path"
)

// RoleTable renders the per-role attachment state as a scrollable table.
type RoleTable struct {
	table    table.Model
	statuses []models.RoleStatus
}

func NewRoleTable() *RoleTable {
	columns := []table.Column{
		table.NewColumn(columnKeyRole, "Role", 14),
		table.NewColumn(columnKeyState, "State", 10),
		table.NewColumn(columnKeyMethod, "Matched By", 11),
		table.NewColumn(columnKeyIDs, "VID:PID", 10),
		table.NewColumn(columnKeySerial, "Serial", 16),
		table.NewFlexColumn(columnKeyPath, "System Path", 1),
	}

	t := table.New(columns).
		Focused(true).
		WithBaseStyle(styles.TableStyle).
		WithPageSize(15)

	return &RoleTable{table: t}
}

// SetStatuses rebuilds the rows from the current role statuses.
func (rt *RoleTable) SetStatuses(statuses []models.RoleStatus) {
	rt.statuses = statuses
	rows := make([]table.Row, 0, len(statuses))
	for _, status := range statuses {
		rows = append(rows, statusRow(status))
	}
	rt.table = rt.table.WithRows(rows)
}

// Highlighted returns the role status under the cursor, or nil when the
// table has no rows.
func (rt *RoleTable) Highlighted() *models.RoleStatus {
	if len(rt.statuses) == 0 {
		return nil
	}
	role, ok := rt.table.HighlightedRow().Data[columnKeyRole].(string)
	if !ok {
		return nil
	}
	for i := range rt.statuses {
		if rt.statuses[i].Rule.Role == role {
			return &rt.statuses[i]
		}
	}
	return nil
}

func statusRow(status models.RoleStatus) table.Row {
	if status.Resolved == nil {
		return table.NewRow(table.RowData{
			columnKeyRole:   status.Rule.Role,
			columnKeyState:  styles.RoleMissingStyle.Render("missing"),
			columnKeyMethod: "-",
			columnKeyIDs:    fmt.Sprintf("%04x:%04x", status.Rule.VID, status.Rule.PID),
			columnKeySerial: "-",
			columnKeyPath:   "-",
		})
	}

	dev := status.Resolved.Device
	serial := dev.Serial
	if serial == "" {
		serial = "-"
	}
	return table.NewRow(table.RowData{
		columnKeyRole:   status.Rule.Role,
		columnKeyState:  styles.RoleAttachedStyle.Render("attached"),
		columnKeyMethod: status.Resolved.MatchMethod.String(),
		columnKeyIDs:    fmt.Sprintf("%04x:%04x", dev.VID, dev.PID),
		columnKeySerial: serial,
		columnKeyPath:   dev.SystemPath,
	})
}

// SetWidth resizes the table to the terminal width.
func (rt *RoleTable) SetWidth(width int) {
	rt.table = rt.table.WithTargetWidth(width)
}

func (rt *RoleTable) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	rt.table, cmd = rt.table.Update(msg)
	return cmd
}

func (rt *RoleTable) View() string {
	return rt.table.View()
}
