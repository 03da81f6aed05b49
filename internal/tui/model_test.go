package tui

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tender-automation/dashboard/internal/dashboard"
	"github.com/tender-automation/dashboard/internal/job"
	"github.com/tender-automation/dashboard/internal/models"
)

type fakeBackend struct {
	updates     chan dashboard.Snapshot
	cancelled   bool
	selected    []string
	started     []string
	startErr    error
	reconnects  int
	downloaded  []string
	downloadLoc string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{updates: make(chan dashboard.Snapshot, 1), downloadLoc: "memory://x_forms.zip"}
}

func (f *fakeBackend) Subscribe() (<-chan dashboard.Snapshot, func()) {
	return f.updates, func() { f.cancelled = true }
}

func (f *fakeBackend) Select(_ context.Context, id string) error {
	f.selected = append(f.selected, id)
	return nil
}

func (f *fakeBackend) RequestStart(_ context.Context, id string) error {
	f.started = append(f.started, id)
	return f.startErr
}

func (f *fakeBackend) Reconnect(context.Context) error {
	f.reconnects++
	return nil
}

func (f *fakeBackend) Download(_ context.Context, row models.ResultRow) (string, error) {
	f.downloaded = append(f.downloaded, row.Title)
	return f.downloadLoc, nil
}

func (f *fakeBackend) DownloadURL(row models.ResultRow) (string, error) {
	return "http://backend" + row.DownloadReference, nil
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t *testing.T, m Model, k string) (Model, tea.Msg) {
	t.Helper()
	next, cmd := m.Update(key(k))
	m = next.(Model)
	if cmd == nil {
		return m, nil
	}
	msg := cmd()
	if st, ok := msg.(statusMsg); ok {
		next, _ = m.Update(st)
		m = next.(Model)
	}
	return m, msg
}

func sampleSnapshot() dashboard.Snapshot {
	return dashboard.Snapshot{
		Seq:        1,
		Connection: models.ConnectionConnected,
		Sources: []models.SourceOption{
			{ID: "CANARA", DisplayName: "Canara Bank"},
			{ID: "SBI", DisplayName: "State Bank of India"},
		},
		SourcesFinished: true,
		Run:             models.RunIdle,
		Logs: []models.LogEntry{
			{Seq: 1, Level: models.LevelSuccess, Message: "Connected to server", Timestamp: "10:00:00"},
		},
		Results: []models.ResultRow{
			{Title: "Tender A", Description: "Roof", Deadline: "2026-01-01", AttachmentCount: 2, DownloadReference: "/api/download/Tender A"},
			{Title: "Tender B", Description: "Paint", Deadline: "2026-02-01", AttachmentCount: 1, DownloadReference: "/api/download/Tender B"},
		},
	}
}

func withSnapshot(t *testing.T, m Model, s dashboard.Snapshot) Model {
	t.Helper()
	next, cmd := m.Update(snapshotMsg(s))
	require.NotNil(t, cmd, "model keeps listening after a snapshot")
	return next.(Model)
}

func TestModel_InitWaitsForSnapshot(t *testing.T) {
	fb := newFakeBackend()
	m := New(context.Background(), fb)

	fb.updates <- sampleSnapshot()
	msg := m.Init()()
	snap, ok := msg.(snapshotMsg)
	require.True(t, ok)
	assert.Equal(t, uint64(1), snap.Seq)

	close(fb.updates)
	assert.IsType(t, closedMsg{}, m.Init()())
}

func TestModel_RendersSnapshot(t *testing.T) {
	m := New(context.Background(), newFakeBackend())
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m = withSnapshot(t, next.(Model), sampleSnapshot())

	view := m.View()
	assert.Contains(t, view, "connected")
	assert.Contains(t, view, "Canara Bank")
	assert.Contains(t, view, "Connected to server")
	assert.Contains(t, view, "Tender A")
	assert.Contains(t, view, "Results (2)")
}

func TestModel_LoadingStates(t *testing.T) {
	m := New(context.Background(), newFakeBackend())
	m = withSnapshot(t, m, dashboard.Snapshot{BootstrapAttempt: 2, ResultsLoading: true})

	view := m.View()
	assert.Contains(t, view, "Loading sources (attempt 2)")
	assert.Contains(t, view, "Loading results")

	m = withSnapshot(t, m, dashboard.Snapshot{SourcesFinished: true})
	assert.Contains(t, m.View(), "No sources available")
}

func TestModel_SelectAndStart(t *testing.T) {
	fb := newFakeBackend()
	m := withSnapshot(t, New(context.Background(), fb), sampleSnapshot())

	m, _ = press(t, m, "down")
	m, msg := press(t, m, "enter")
	assert.Equal(t, []string{"SBI"}, fb.selected)
	assert.Equal(t, statusMsg{text: "Selected State Bank of India"}, msg)

	m, _ = press(t, m, "s")
	assert.Equal(t, []string{"SBI"}, fb.started)
	assert.Contains(t, m.View(), "Run started for SBI")
}

func TestModel_StartPreferSelectedSource(t *testing.T) {
	fb := newFakeBackend()
	snap := sampleSnapshot()
	snap.Selected = "CANARA"
	m := withSnapshot(t, New(context.Background(), fb), snap)

	m, _ = press(t, m, "down")
	_, _ = press(t, m, "s")
	assert.Equal(t, []string{"CANARA"}, fb.started)
}

func TestModel_StartRejected(t *testing.T) {
	fb := newFakeBackend()
	fb.startErr = &job.PreconditionError{Reason: "not connected"}
	m := withSnapshot(t, New(context.Background(), fb), sampleSnapshot())

	m, msg := press(t, m, "s")
	assert.Equal(t, statusMsg{text: "Cannot start: not connected", err: true}, msg)
	assert.True(t, m.statusErr)

	fb.startErr = errors.New("dashboard stopped")
	_, msg = press(t, m, "s")
	assert.Equal(t, statusMsg{text: "dashboard stopped", err: true}, msg)
}

func TestModel_DownloadAndCopyLink(t *testing.T) {
	var copied string
	prev := writeClipboard
	writeClipboard = func(s string) error { copied = s; return nil }
	t.Cleanup(func() { writeClipboard = prev })

	fb := newFakeBackend()
	m := withSnapshot(t, New(context.Background(), fb), sampleSnapshot())

	// result keys do nothing until the results pane has focus
	m, _ = press(t, m, "d")
	assert.Empty(t, fb.downloaded)

	m, _ = press(t, m, "tab")
	m, _ = press(t, m, "down")
	m, msg := press(t, m, "d")
	assert.Equal(t, []string{"Tender B"}, fb.downloaded)
	assert.Equal(t, statusMsg{text: "Saved to memory://x_forms.zip"}, msg)

	_, msg = press(t, m, "c")
	assert.Equal(t, statusMsg{text: "Download link copied"}, msg)
	assert.Equal(t, "http://backend/api/download/Tender B", copied)
}

func TestModel_DownloadWithoutResults(t *testing.T) {
	fb := newFakeBackend()
	m := withSnapshot(t, New(context.Background(), fb), dashboard.Snapshot{})

	m, _ = press(t, m, "tab")
	_, msg := press(t, m, "d")
	assert.Equal(t, statusMsg{text: "No result selected", err: true}, msg)
	assert.Empty(t, fb.downloaded)
}

func TestModel_ResultCursorClampsWhenRowsShrink(t *testing.T) {
	m := withSnapshot(t, New(context.Background(), newFakeBackend()), sampleSnapshot())
	m, _ = press(t, m, "tab")
	m, _ = press(t, m, "down")
	require.Equal(t, 1, m.results.Cursor())

	snap := sampleSnapshot()
	snap.Results = snap.Results[:1]
	m = withSnapshot(t, m, snap)
	assert.Equal(t, 0, m.results.Cursor())
}

func TestModel_ReconnectAndQuit(t *testing.T) {
	fb := newFakeBackend()
	m := withSnapshot(t, New(context.Background(), fb), sampleSnapshot())

	m, msg := press(t, m, "r")
	assert.Equal(t, 1, fb.reconnects)
	assert.Equal(t, statusMsg{text: "Reconnecting..."}, msg)

	_, msg = press(t, m, "q")
	assert.Equal(t, tea.Quit(), msg)
	assert.True(t, fb.cancelled)
}
