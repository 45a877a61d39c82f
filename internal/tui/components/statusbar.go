package components

import (
	"fmt"
	"strings"

	"github.com/DoraCN/usb-resolver/internal/tui/styles"
	"github.com/charmbracelet/lipgloss"
)

// StatusBar is the single-line footer of the dashboard.
type StatusBar struct {
	title     string
	rulesFile string
	width     int
}

func NewStatusBar(title, rulesFile string) *StatusBar {
	return &StatusBar{title: title, rulesFile: rulesFile}
}

func (sb *StatusBar) SetWidth(width int) {
	sb.width = width
}

// Render produces the footer line with attachment counts and a timestamp.
func (sb *StatusBar) Render(attached, total int, timestamp string) string {
	left := styles.TitleStyle.Render(sb.title)
	counts := styles.StatusCountStyle.Render(fmt.Sprintf(" %d/%d attached ", attached, total))
	right := styles.StatusBarStyle.Render(fmt.Sprintf("%s | %s", sb.rulesFile, timestamp))

	used := lipgloss.Width(left) + lipgloss.Width(counts) + lipgloss.Width(right)
	gap := ""
	if sb.width > used {
		gap = styles.StatusBarStyle.Render(strings.Repeat(" ", sb.width-used))
	}

	return lipgloss.JoinHorizontal(lipgloss.Top, left, counts, gap, right)
}
