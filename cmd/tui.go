package cmd

import (
	"context"
	"strings"
	"time"

	usbresolver "github.com/DoraCN/usb-resolver"
	"github.com/DoraCN/usb-resolver/internal/tui/components"
	"github.com/DoraCN/usb-resolver/internal/tui/keys"
	"github.com/DoraCN/usb-resolver/internal/tui/models"
	"github.com/DoraCN/usb-resolver/internal/tui/styles"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// tuiCmd represents the tui command
var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Live dashboard of role assignments",
	Long: `Open a full-screen dashboard showing every configured role, the
device currently filling it, and a rolling log of attach/detach events.

Rows turn green when a role's device is attached and red while it is
missing. Press enter for the selected role's full device details, l to
toggle the event log, ? for help, q to quit.

Example usage:
  usb-resolver tui
  usb-resolver tui --config /etc/usb-resolver/devices.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		rules, err := usbresolver.LoadRules(rulesFile)
		if err != nil {
			fatal("Error loading rules: %v", err)
		}

		if err := runWatchTUI(rules); err != nil {
			fatal("Error: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

// watchModel represents the Bubble Tea model for the tui command
type watchModel struct {
	state     *models.WatchModel
	roleTable *components.RoleTable
	statusBar *components.StatusBar
	help      help.Model
	keys      keys.WatchKeys

	showLog    bool
	showDetail bool
	closed     bool
	width      int
	height     int
}

func runWatchTUI(rules []usbresolver.DeviceRule) error {
	// Default logger is a no-op, which is what we want while the
	// alternate screen owns the terminal.
	mon, err := usbresolver.NewMonitor(rules)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := mon.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = mon.Stop() }()

	m := watchModel{
		state:     models.NewWatchModel(rules, mon.Attached()),
		roleTable: components.NewRoleTable(),
		statusBar: components.NewStatusBar("USB Resolver", rulesFile),
		help:      help.New(),
		keys:      keys.NewWatchKeys(),
		showLog:   true,
	}
	m.roleTable.SetStatuses(m.state.Statuses())

	p := tea.NewProgram(&m, tea.WithAltScreen())

	// Pump monitor events into the TUI loop.
	go func() {
		for ev := range mon.Events() {
			p.Send(models.RoleEventMsg{Event: ev})
		}
		p.Send(models.MonitorClosedMsg{})
	}()

	_, err = p.Run()
	return err
}

func (m *watchModel) Init() tea.Cmd {
	return nil
}

func (m *watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.roleTable.SetWidth(msg.Width)
		m.statusBar.SetWidth(msg.Width)
		m.help.Width = msg.Width

	case models.RoleEventMsg:
		m.state.Apply(msg.Event)
		m.roleTable.SetStatuses(m.state.Statuses())

	case models.MonitorClosedMsg:
		m.closed = true

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		case key.Matches(msg, m.keys.ToggleLog):
			m.showLog = !m.showLog
		case key.Matches(msg, m.keys.Details):
			m.showDetail = !m.showDetail
		}
	}

	cmds = append(cmds, m.roleTable.Update(msg))
	return m, tea.Batch(cmds...)
}

func (m *watchModel) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	sections := []string{m.roleTable.View()}

	if m.showDetail {
		if status := m.roleTable.Highlighted(); status != nil {
			sections = append(sections, components.DetailView(*status))
		}
	}

	if m.showLog {
		lines := m.state.Log(8)
		if len(lines) == 0 {
			lines = []string{"(no events yet)"}
		}
		sections = append(sections, styles.ContentBorderStyle.Render(strings.Join(lines, "\n")))
	}

	if m.closed {
		sections = append(sections, styles.ErrorStyle.Render("monitor stopped"))
	}

	timestamp := time.Now().Format("15:04:05")
	sections = append(sections,
		m.statusBar.Render(m.state.AttachedCount(), m.state.RoleCount(), timestamp),
		m.help.View(m.keys),
	)

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}
