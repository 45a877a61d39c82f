package styles

import (
	"github.com/DoraCN/usb-resolver/internal/tui/colors"
	"github.com/charmbracelet/lipgloss"
)

var (
	// Header styles
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colors.Mauve).
			Background(colors.Surface0).
			Padding(0, 1)

	// Role state styles
	RoleAttachedStyle = lipgloss.NewStyle().
				Foreground(colors.Green).
				Bold(true)

	RoleMissingStyle = lipgloss.NewStyle().
				Foreground(colors.Red).
				Bold(true)

	UnmatchedStyle = lipgloss.NewStyle().
			Foreground(colors.Overlay0)

	// Content area styles
	ContentBorderStyle = lipgloss.NewStyle().
				BorderTop(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderForeground(colors.Surface1)

	// Table base style
	TableStyle = lipgloss.NewStyle().
			Foreground(colors.Text).
			BorderForeground(colors.Surface1)

	// Detail panel styles
	DetailBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(colors.Lavender).
				Padding(0, 1)

	DetailLabelStyle = lipgloss.NewStyle().
				Foreground(colors.Subtext0).
				Width(12)

	// Status bar styles
	StatusBarStyle = lipgloss.NewStyle().
			Foreground(colors.Subtext0).
			Background(colors.Surface0).
			Padding(0, 1)

	StatusCountStyle = lipgloss.NewStyle().
				Foreground(colors.Teal).
				Background(colors.Surface0).
				Bold(true)

	// Error styles
	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colors.Red).
			Align(lipgloss.Center)
)
