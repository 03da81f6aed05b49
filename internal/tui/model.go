// Package tui is the terminal view of the dashboard. It renders snapshots and forwards
// operator actions; it holds no state of its own beyond cursor and layout.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tender-automation/dashboard/internal/dashboard"
	"github.com/tender-automation/dashboard/internal/job"
	"github.com/tender-automation/dashboard/internal/models"
)

// Backend is the part of the dashboard the view talks to.
type Backend interface {
	Subscribe() (<-chan dashboard.Snapshot, func())
	Select(ctx context.Context, sourceID string) error
	RequestStart(ctx context.Context, sourceID string) error
	Reconnect(ctx context.Context) error
	Download(ctx context.Context, row models.ResultRow) (string, error)
	DownloadURL(row models.ResultRow) (string, error)
}

// writeClipboard is replaced in tests.
var writeClipboard = clipboard.WriteAll

type pane int

const (
	paneSources pane = iota
	paneResults
)

type (
	snapshotMsg dashboard.Snapshot
	closedMsg   struct{}
	statusMsg   struct {
		text string
		err  bool
	}
)

// Model is the bubbletea model.
type Model struct {
	ctx       context.Context
	backend   Backend
	updates   <-chan dashboard.Snapshot
	cancelSub func()

	snap     dashboard.Snapshot
	haveSnap bool
	lastLog  uint64
	logCount int

	focus        pane
	sourceCursor int
	logs         viewport.Model
	results      table.Model
	styles       styles

	width, height int
	status        string
	statusErr     bool
}

// New subscribes to backend and builds the initial model.
func New(ctx context.Context, backend Backend) Model {
	updates, cancel := backend.Subscribe()
	s := newStyles()

	columns := []table.Column{
		{Title: "Tender", Width: 28},
		{Title: "Description", Width: 36},
		{Title: "Deadline", Width: 12},
		{Title: "Forms", Width: 6},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithHeight(6),
	)
	tStyles := table.DefaultStyles()
	tStyles.Header = lipgloss.NewStyle().
		Bold(true).
		Foreground(palette.textMuted).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(palette.border).
		BorderBottom(true).
		Padding(0, 1)
	tStyles.Cell = lipgloss.NewStyle().Padding(0, 1)
	tStyles.Selected = lipgloss.NewStyle().
		Foreground(palette.text).
		Background(palette.selection)
	t.SetStyles(tStyles)

	return Model{
		ctx:       ctx,
		backend:   backend,
		updates:   updates,
		cancelSub: cancel,
		logs:      viewport.New(80, 10),
		results:   t,
		styles:    s,
		status:    "Waiting for dashboard...",
	}
}

func waitForSnapshot(ch <-chan dashboard.Snapshot) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return closedMsg{}
		}
		return snapshotMsg(s)
	}
}

// Init starts listening for snapshots.
func (m Model) Init() tea.Cmd {
	return waitForSnapshot(m.updates)
}

// Update handles one message.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		return m, nil

	case snapshotMsg:
		m.apply(dashboard.Snapshot(msg))
		return m, waitForSnapshot(m.updates)

	case closedMsg:
		return m, tea.Quit

	case statusMsg:
		m.status, m.statusErr = msg.text, msg.err
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) apply(s dashboard.Snapshot) {
	m.snap = s
	if !m.haveSnap {
		m.haveSnap = true
		m.status = ""
	}

	if n := len(s.Sources); n == 0 {
		m.sourceCursor = 0
	} else if m.sourceCursor >= n {
		m.sourceCursor = n - 1
	}

	var last uint64
	if len(s.Logs) > 0 {
		last = s.Logs[len(s.Logs)-1].Seq
	}
	if last != m.lastLog || len(s.Logs) != m.logCount {
		m.lastLog, m.logCount = last, len(s.Logs)
		m.logs.SetContent(m.renderLogs(s.Logs))
		m.logs.GotoBottom()
	}

	rows := make([]table.Row, len(s.Results))
	for i, r := range s.Results {
		rows[i] = table.Row{r.Title, r.Description, r.Deadline, strconv.Itoa(r.AttachmentCount)}
	}
	m.results.SetRows(rows)
	if c := m.results.Cursor(); c >= len(rows) && len(rows) > 0 {
		m.results.SetCursor(len(rows) - 1)
	}
}

func (m *Model) layout() {
	if m.width == 0 {
		return
	}
	inner := m.width - 4
	if inner < 20 {
		inner = 20
	}
	// header, status, four borders, three titles
	avail := m.height - 9
	if avail < 6 {
		avail = 6
	}
	tableHeight := avail / 3
	logHeight := avail - tableHeight - 2

	m.logs.Width = inner
	m.logs.Height = logHeight
	m.results.SetWidth(inner)
	m.results.SetHeight(tableHeight)
	m.logs.SetContent(m.renderLogs(m.snap.Logs))
	m.logs.GotoBottom()
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		m.cancelSub()
		return m, tea.Quit
	case "tab":
		if m.focus == paneSources {
			m.focus = paneResults
			m.results.Focus()
		} else {
			m.focus = paneSources
			m.results.Blur()
		}
		return m, nil
	case "s":
		return m, m.startCmd()
	case "r":
		return m, m.reconnectCmd()
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.logs, cmd = m.logs.Update(msg)
		return m, cmd
	}

	if m.focus == paneSources {
		switch msg.String() {
		case "up", "k":
			if m.sourceCursor > 0 {
				m.sourceCursor--
			}
		case "down", "j":
			if m.sourceCursor < len(m.snap.Sources)-1 {
				m.sourceCursor++
			}
		case "enter", " ":
			return m, m.selectCmd()
		}
		return m, nil
	}

	switch msg.String() {
	case "d":
		return m, m.downloadCmd()
	case "c":
		return m, m.copyLinkCmd()
	}
	var cmd tea.Cmd
	m.results, cmd = m.results.Update(msg)
	return m, cmd
}

func (m Model) cursorSource() (models.SourceOption, bool) {
	if m.sourceCursor < 0 || m.sourceCursor >= len(m.snap.Sources) {
		return models.SourceOption{}, false
	}
	return m.snap.Sources[m.sourceCursor], true
}

func (m Model) selectedRow() (models.ResultRow, bool) {
	c := m.results.Cursor()
	if c < 0 || c >= len(m.snap.Results) {
		return models.ResultRow{}, false
	}
	return m.snap.Results[c], true
}

func (m Model) selectCmd() tea.Cmd {
	src, ok := m.cursorSource()
	if !ok {
		return nil
	}
	ctx, backend := m.ctx, m.backend
	return func() tea.Msg {
		if err := backend.Select(ctx, src.ID); err != nil {
			return statusMsg{text: err.Error(), err: true}
		}
		return statusMsg{text: "Selected " + src.DisplayName}
	}
}

// startCmd starts the selected source, or the one under the cursor when nothing is selected.
func (m Model) startCmd() tea.Cmd {
	id := m.snap.Selected
	if id == "" {
		if src, ok := m.cursorSource(); ok {
			id = src.ID
		}
	}
	ctx, backend := m.ctx, m.backend
	return func() tea.Msg {
		if id != "" {
			if err := backend.Select(ctx, id); err != nil {
				return statusMsg{text: err.Error(), err: true}
			}
		}
		err := backend.RequestStart(ctx, id)
		var pe *job.PreconditionError
		switch {
		case errors.As(err, &pe):
			return statusMsg{text: "Cannot start: " + pe.Reason, err: true}
		case err != nil:
			return statusMsg{text: err.Error(), err: true}
		}
		return statusMsg{text: "Run started for " + id}
	}
}

func (m Model) reconnectCmd() tea.Cmd {
	ctx, backend := m.ctx, m.backend
	return func() tea.Msg {
		if err := backend.Reconnect(ctx); err != nil {
			return statusMsg{text: err.Error(), err: true}
		}
		return statusMsg{text: "Reconnecting..."}
	}
}

func (m Model) downloadCmd() tea.Cmd {
	row, ok := m.selectedRow()
	if !ok {
		return func() tea.Msg { return statusMsg{text: "No result selected", err: true} }
	}
	ctx, backend := m.ctx, m.backend
	return func() tea.Msg {
		loc, err := backend.Download(ctx, row)
		if err != nil {
			return statusMsg{text: "Download failed: " + err.Error(), err: true}
		}
		return statusMsg{text: "Saved to " + loc}
	}
}

func (m Model) copyLinkCmd() tea.Cmd {
	row, ok := m.selectedRow()
	if !ok {
		return func() tea.Msg { return statusMsg{text: "No result selected", err: true} }
	}
	backend := m.backend
	return func() tea.Msg {
		link, err := backend.DownloadURL(row)
		if err != nil {
			return statusMsg{text: err.Error(), err: true}
		}
		if err := writeClipboard(link); err != nil {
			return statusMsg{text: "Clipboard unavailable: " + err.Error(), err: true}
		}
		return statusMsg{text: "Download link copied"}
	}
}

// View renders the screen.
func (m Model) View() string {
	s := m.styles
	var b strings.Builder

	conn := m.snap.Connection
	if conn == "" {
		conn = models.ConnectionDisconnected
	}
	header := fmt.Sprintf("%s  %s  run: %s", s.title.Render("Tender Automation"), s.badge[conn].Render("● "+string(conn)), m.runLabel())
	if m.snap.ReconnectPending {
		header += s.hint.Render("  (reconnect scheduled)")
	}
	b.WriteString(s.topBar.Render(header))
	b.WriteString("\n")

	b.WriteString(m.panel("Sources", m.renderSources(), m.focus == paneSources))
	b.WriteString("\n")
	b.WriteString(m.panel("Activity", m.logs.View(), false))
	b.WriteString("\n")
	b.WriteString(m.panel(fmt.Sprintf("Results (%d)", len(m.snap.Results)), m.renderResults(), m.focus == paneResults))
	b.WriteString("\n")

	if m.status != "" {
		if m.statusErr {
			b.WriteString(s.statusErr.Render(m.status))
		} else {
			b.WriteString(s.statusBar.Render(m.status))
		}
		b.WriteString("\n")
	}
	b.WriteString(s.hint.Render(" tab focus • ↑/↓ move • enter select • s start • d download • c copy link • r reconnect • q quit"))
	return b.String()
}

func (m Model) runLabel() string {
	switch m.snap.Run {
	case models.RunRunning:
		return m.styles.level[models.LevelProgress].Render("running")
	case models.RunCompleted:
		return m.styles.level[models.LevelSuccess].Render("completed")
	default:
		return "idle"
	}
}

func (m Model) panel(title, body string, focused bool) string {
	style := m.styles.panel
	if focused {
		style = m.styles.panelFocused
	}
	if m.width > 0 {
		style = style.Width(m.width - 2)
	}
	return style.Render(m.styles.panelTitle.Render(title) + "\n" + body)
}

func (m Model) renderSources() string {
	if len(m.snap.Sources) == 0 {
		if m.snap.SourcesFinished {
			return m.styles.statusErr.Render("No sources available")
		}
		return m.styles.hint.Render(fmt.Sprintf("Loading sources (attempt %d)...", m.snap.BootstrapAttempt))
	}
	lines := make([]string, len(m.snap.Sources))
	for i, src := range m.snap.Sources {
		marker := "  "
		style := m.styles.listItem
		if src.ID == m.snap.Selected {
			marker = "✓ "
			style = m.styles.listPicked
		}
		if i == m.sourceCursor && m.focus == paneSources {
			style = m.styles.listSel
		}
		lines[i] = style.Render(marker + src.DisplayName + " (" + src.ID + ")")
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderResults() string {
	if len(m.snap.Results) == 0 {
		if m.snap.ResultsLoading {
			return m.styles.hint.Render("Loading results...")
		}
		return m.styles.hint.Render("No results yet")
	}
	return m.results.View()
}

func (m Model) renderLogs(entries []models.LogEntry) string {
	lines := make([]string, len(entries))
	for i, e := range entries {
		style, ok := m.styles.level[e.Level]
		if !ok {
			style = m.styles.level[models.LevelInfo]
		}
		lines[i] = m.styles.timestamp.Render("["+e.Timestamp+"]") + " " + style.Render(e.Message)
	}
	return strings.Join(lines, "\n")
}

// Run shows the TUI until the operator quits or ctx is cancelled.
func Run(ctx context.Context, backend Backend) error {
	p := tea.NewProgram(New(ctx, backend), tea.WithAltScreen())

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			p.Quit()
		case <-stop:
		}
	}()

	_, err := p.Run()
	return err
}
