// Package tui provides the kitchen board terminal UI for coolwatch.
package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	// Colors
	primaryColor = lipgloss.Color("#7C3AED")
	successColor = lipgloss.Color("#10B981")
	warningColor = lipgloss.Color("#F59E0B")
	errorColor   = lipgloss.Color("#EF4444")
	mutedColor   = lipgloss.Color("#6B7280")
	fgColor      = lipgloss.Color("#F9FAFB")
	cyanColor    = lipgloss.Color("#06B6D4")

	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#374151")).
			Foreground(fgColor).
			Padding(0, 1)

	inputBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1)

	rowStyle = lipgloss.NewStyle().
			Padding(0, 2)

	selectedStyle = lipgloss.NewStyle().
			Background(primaryColor).
			Foreground(fgColor).
			Bold(true).
			Padding(0, 2)

	overdueBanner = lipgloss.NewStyle().
			Background(errorColor).
			Foreground(fgColor).
			Bold(true).
			Padding(0, 1)

	daemonOnlineStyle = lipgloss.NewStyle().
				Foreground(successColor).
				Bold(true)

	daemonOfflineStyle = lipgloss.NewStyle().
				Foreground(errorColor)
)

// App is the main board application model.
type App struct {
	client       *Client
	sessions     []SessionRow
	selectedIdx  int
	input        textinput.Model
	viewport     viewport.Model
	width        int
	height       int
	mode         string // "board", "detail"
	detail       *SessionDetail
	message      string
	filter       string
	filterIdx    int
	loading      bool
	daemonOnline bool
}

var filters = []string{"", "active", "warning", "overdue", "closed", "discarded"}
var filterNames = []string{"ALL", "COOLING", "WARNING", "OVERDUE", "FRIDGE", "BINNED"}

// New creates a new board application.
func New(apiAddr string) *App {
	ti := textinput.New()
	ti.Placeholder = "Type: start <item> [@staff] [#category] | close [temp] | discard"
	ti.Focus()
	ti.CharLimit = 256
	ti.Width = 80

	vp := viewport.New(80, 20)

	return &App{
		client:   NewClient(apiAddr),
		input:    ti,
		viewport: vp,
		mode:     "board",
		loading:  true,
	}
}

// Run starts the board application.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		a.fetchSessions(),
		a.checkDaemon(),
		a.tickCmd(),
	)
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return a, tea.Quit

		case "esc":
			if a.mode == "detail" {
				a.mode = "board"
				a.detail = nil
				return a, a.fetchSessions()
			}

		case "up", "k":
			if a.mode == "board" && a.selectedIdx > 0 {
				a.selectedIdx--
			}

		case "down", "j":
			if a.mode == "board" && a.selectedIdx < len(a.sessions)-1 {
				a.selectedIdx++
			}

		case "tab":
			a.filterIdx = (a.filterIdx + 1) % len(filters)
			a.filter = filters[a.filterIdx]
			return a, a.fetchSessions()

		case "enter":
			cmd := strings.TrimSpace(a.input.Value())
			if cmd != "" {
				a.input.SetValue("")
				return a, a.executeCommand(cmd)
			}
			if a.mode == "board" && len(a.sessions) > 0 {
				row := a.sessions[a.selectedIdx]
				a.mode = "detail"
				return a, a.fetchDetail(row.ID)
			}

		case "r":
			if a.mode == "board" {
				return a, tea.Batch(a.fetchSessions(), a.checkDaemon())
			}
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.input.Width = msg.Width - 4
		a.viewport.Width = msg.Width
		a.viewport.Height = msg.Height - 10

	case sessionsLoadedMsg:
		a.loading = false
		a.sessions = msg.sessions
		if a.selectedIdx >= len(a.sessions) {
			a.selectedIdx = max(0, len(a.sessions)-1)
		}

	case detailLoadedMsg:
		a.detail = msg.detail
		a.viewport.SetContent(a.renderDetailContent())

	case daemonStatusMsg:
		a.daemonOnline = msg.online

	case messageMsg:
		a.message = string(msg)
		cmds = append(cmds, a.fetchSessions())

	case errMsg:
		a.message = "Error: " + msg.err.Error()

	case tickMsg:
		cmds = append(cmds, a.fetchSessions(), a.checkDaemon(), a.tickCmd())
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	cmds = append(cmds, cmd)

	if a.mode == "detail" {
		a.viewport, cmd = a.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}

	return a, tea.Batch(cmds...)
}

// View implements tea.Model
func (a *App) View() string {
	var b strings.Builder

	daemonStatus := daemonOnlineStyle.Render("● DAEMON")
	if !a.daemonOnline {
		daemonStatus = daemonOfflineStyle.Render("○ DAEMON")
	}

	header := titleStyle.Render("COOLWATCH Kitchen Board")
	header += "  " + daemonStatus
	header += "  " + lipgloss.NewStyle().Foreground(cyanColor).Render(time.Now().Format("15:04:05"))

	b.WriteString(header + "\n")
	b.WriteString(strings.Repeat("─", a.width) + "\n")

	if n := a.countOverdue(); n > 0 {
		b.WriteString(overdueBanner.Render(fmt.Sprintf(" %d BATCH(ES) PAST THE 2-HOUR LIMIT ", n)) + "\n")
	}

	contentHeight := a.height - 9
	if contentHeight < 5 {
		contentHeight = 5
	}

	switch a.mode {
	case "board":
		filterLabel := fmt.Sprintf(" Filter: [%s]", filterNames[a.filterIdx])
		b.WriteString(lipgloss.NewStyle().Foreground(mutedColor).Render(filterLabel) + "\n")
		b.WriteString(a.renderBoard(contentHeight - 1))
	case "detail":
		b.WriteString(a.viewport.View())
	}

	if a.message != "" {
		msgStyle := lipgloss.NewStyle().Foreground(successColor)
		if strings.HasPrefix(a.message, "Error") {
			msgStyle = lipgloss.NewStyle().Foreground(errorColor)
		}
		b.WriteString("\n" + msgStyle.Render(a.message))
	} else {
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(inputBoxStyle.Render(a.input.View()))
	b.WriteString("\n")

	var status string
	switch a.mode {
	case "board":
		status = fmt.Sprintf(" Batches: %d | ↑↓:nav | Enter:detail | Tab:filter | r:refresh | Ctrl+C:quit", len(a.sessions))
	default:
		status = " Esc:back | ↑↓:scroll | Ctrl+C:quit"
	}
	b.WriteString(statusBarStyle.Width(a.width).Render(status))

	return b.String()
}

func (a *App) renderBoard(height int) string {
	if a.loading {
		return "\n  Loading batches...\n"
	}
	if len(a.sessions) == 0 {
		return "\n  No batches on the board. Type: start <item> to log one.\n"
	}

	var lines []string
	for i, row := range a.sessions {
		text := fmt.Sprintf("%s  %-24s %-10s %s", a.formatStatus(row.Status), truncate(row.ItemName, 24), row.StaffName, a.formatCountdown(row))

		if i == a.selectedIdx {
			lines = append(lines, selectedStyle.Render("▶ "+stripBadge(row.Status)+"  "+truncate(row.ItemName, 24)+"  "+a.formatCountdown(row)))
		} else {
			lines = append(lines, rowStyle.Render("  "+text))
		}
	}

	if len(lines) > height {
		start := a.selectedIdx - height/2
		if start < 0 {
			start = 0
		}
		end := start + height
		if end > len(lines) {
			end = len(lines)
			start = max(0, end-height)
		}
		lines = lines[start:end]
	}

	return strings.Join(lines, "\n")
}

func (a *App) renderDetailContent() string {
	if a.detail == nil {
		return "\n  Loading..."
	}
	sess := a.detail.Session

	var b strings.Builder
	b.WriteString("\n  " + lipgloss.NewStyle().Bold(true).Render(sess.ItemName) + "\n")
	b.WriteString("  " + strings.Repeat("─", 40) + "\n\n")
	b.WriteString(fmt.Sprintf("  Status:    %s\n", a.formatStatus(sess.Status)))
	b.WriteString(fmt.Sprintf("  Category:  %s\n", sess.Category))
	b.WriteString(fmt.Sprintf("  Staff:     %s\n", sess.StaffName))
	b.WriteString(fmt.Sprintf("  Started:   %s\n", sess.StartedAt.Local().Format("15:04:05")))
	b.WriteString(fmt.Sprintf("  Warn at:   %s\n", sess.SoftDueAt.Local().Format("15:04:05")))
	b.WriteString(fmt.Sprintf("  Limit at:  %s\n", sess.HardDueAt.Local().Format("15:04:05")))
	if sess.ClosedAt != nil {
		b.WriteString(fmt.Sprintf("  Closed:    %s\n", sess.ClosedAt.Local().Format("15:04:05")))
	}
	if sess.ClosingTmp != nil {
		b.WriteString(fmt.Sprintf("  Fridge °C: %.1f\n", *sess.ClosingTmp))
	}

	if len(a.detail.Audit) > 0 {
		b.WriteString("\n  Audit trail\n")
		b.WriteString("  " + strings.Repeat("─", 40) + "\n")
		for _, e := range a.detail.Audit {
			line := fmt.Sprintf("  %s  %-16s %s", e.Timestamp.Local().Format("15:04:05"), e.Action, e.Outcome)
			if e.Details != "" {
				line += "  " + truncate(e.Details, 30)
			}
			b.WriteString(line + "\n")
		}
	}

	return b.String()
}

func (a *App) formatStatus(status string) string {
	switch status {
	case "active":
		return lipgloss.NewStyle().Foreground(cyanColor).Render("❄ COOLING")
	case "warning":
		return lipgloss.NewStyle().Foreground(warningColor).Bold(true).Render("⚠ WARNING")
	case "overdue":
		return lipgloss.NewStyle().Foreground(errorColor).Bold(true).Render("✗ OVERDUE")
	case "closed":
		return lipgloss.NewStyle().Foreground(successColor).Render("✓ FRIDGE")
	case "discarded":
		return lipgloss.NewStyle().Foreground(mutedColor).Render("⊘ BINNED")
	default:
		return status
	}
}

func stripBadge(status string) string {
	switch status {
	case "active":
		return "❄ COOLING"
	case "warning":
		return "⚠ WARNING"
	case "overdue":
		return "✗ OVERDUE"
	case "closed":
		return "✓ FRIDGE"
	case "discarded":
		return "⊘ BINNED"
	default:
		return status
	}
}

// formatCountdown renders the time pressure on a batch relative to now.
func (a *App) formatCountdown(row SessionRow) string {
	now := time.Now()
	switch row.Status {
	case "active":
		return "warn in " + formatDur(row.SoftDueAt.Sub(now))
	case "warning":
		return "limit in " + formatDur(row.HardDueAt.Sub(now))
	case "overdue":
		return "over by " + formatDur(now.Sub(row.HardDueAt))
	case "closed":
		if row.ClosingTmp != nil {
			return fmt.Sprintf("%.1f°C", *row.ClosingTmp)
		}
		return "in fridge"
	case "discarded":
		return "binned"
	}
	return ""
}

func formatDur(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Minute)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%02dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func (a *App) countOverdue() int {
	n := 0
	for _, row := range a.sessions {
		if row.Status == "overdue" {
			n++
		}
	}
	return n
}

// --- Messages and commands ---

type sessionsLoadedMsg struct{ sessions []SessionRow }
type detailLoadedMsg struct{ detail *SessionDetail }
type daemonStatusMsg struct{ online bool }
type messageMsg string
type errMsg struct{ err error }
type tickMsg time.Time

func (a *App) fetchSessions() tea.Cmd {
	return func() tea.Msg {
		sessions, err := a.client.ListSessions(a.filter)
		if err != nil {
			return errMsg{err}
		}
		return sessionsLoadedMsg{sessions}
	}
}

func (a *App) fetchDetail(id string) tea.Cmd {
	return func() tea.Msg {
		detail, err := a.client.GetSessionDetail(id)
		if err != nil {
			return errMsg{err}
		}
		return detailLoadedMsg{detail}
	}
}

func (a *App) checkDaemon() tea.Cmd {
	return func() tea.Msg {
		health, err := a.client.CheckHealth()
		return daemonStatusMsg{online: err == nil && health.OK}
	}
}

func (a *App) tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// executeCommand parses the command bar. Tokens prefixed with @ name the
// staff member, tokens prefixed with # name the category.
func (a *App) executeCommand(input string) tea.Cmd {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return nil
	}
	verb := strings.ToLower(parts[0])
	args := parts[1:]

	switch verb {
	case "start":
		var itemWords []string
		staff := ""
		category := ""
		for _, tok := range args {
			switch {
			case strings.HasPrefix(tok, "@"):
				staff = strings.TrimPrefix(tok, "@")
			case strings.HasPrefix(tok, "#"):
				category = strings.TrimPrefix(tok, "#")
			default:
				itemWords = append(itemWords, tok)
			}
		}
		item := strings.Join(itemWords, " ")
		return func() tea.Msg {
			sess, err := a.client.StartSession(item, category, staff)
			if err != nil {
				return errMsg{err}
			}
			return messageMsg("Started cooling: " + sess.ItemName)
		}

	case "close":
		if len(a.sessions) == 0 {
			return func() tea.Msg { return errMsg{fmt.Errorf("no batch selected")} }
		}
		row := a.sessions[a.selectedIdx]
		var temp *float64
		if len(args) > 0 {
			if v, err := strconv.ParseFloat(args[0], 64); err == nil {
				temp = &v
			}
		}
		return func() tea.Msg {
			sess, err := a.client.CloseSession(row.ID, temp)
			if err != nil {
				return errMsg{err}
			}
			return messageMsg("In the fridge: " + sess.ItemName)
		}

	case "discard":
		if len(a.sessions) == 0 {
			return func() tea.Msg { return errMsg{fmt.Errorf("no batch selected")} }
		}
		row := a.sessions[a.selectedIdx]
		return func() tea.Msg {
			sess, err := a.client.DiscardSession(row.ID)
			if err != nil {
				return errMsg{err}
			}
			return messageMsg("Binned: " + sess.ItemName)
		}

	case "refresh":
		return tea.Batch(a.fetchSessions(), a.checkDaemon())

	default:
		return func() tea.Msg {
			return errMsg{fmt.Errorf("unknown command %q", verb)}
		}
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
