package dashboard

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tender-automation/dashboard/internal/bootstrap"
	"github.com/tender-automation/dashboard/internal/devserver"
	"github.com/tender-automation/dashboard/internal/job"
	"github.com/tender-automation/dashboard/internal/logger"
	"github.com/tender-automation/dashboard/internal/models"
	"github.com/tender-automation/dashboard/internal/testutil"
)

const waitFor = 5 * time.Second

type harness struct {
	backend *devserver.Server
	server  *httptest.Server
	dash    *Dashboard
	sink    *testutil.MemorySink
}

func newHarness(t *testing.T, mutate func(*devserver.Config)) *harness {
	t.Helper()
	cfg := devserver.DefaultConfig()
	cfg.StepDelay = time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}
	backend := devserver.New(cfg, logger.Discard())
	server := httptest.NewServer(backend.Handler())
	t.Cleanup(server.Close)

	sink := testutil.NewMemorySink()
	dash, err := New(Options{
		BaseURL:        server.URL,
		WebSocketURL:   "ws" + strings.TrimPrefix(server.URL, "http") + "/ws",
		ReconnectDelay: 50 * time.Millisecond,
		Bootstrap: bootstrap.Config{
			InitialDelay: 0,
			RetryDelay:   20 * time.Millisecond,
			MaxAttempts:  4,
		},
		Sink:   sink,
		Logger: logger.Discard(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, dash.Start(ctx))
	t.Cleanup(func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), waitFor)
		defer done()
		assert.NoError(t, dash.Shutdown(shutdownCtx))
		cancel()
	})

	return &harness{backend: backend, server: server, dash: dash, sink: sink}
}

func (h *harness) waitUntil(t *testing.T, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	var last Snapshot
	require.Eventually(t, func() bool {
		s, err := h.dash.Snapshot(context.Background())
		if err != nil {
			return false
		}
		last = s
		return cond(s)
	}, waitFor, 5*time.Millisecond, "last snapshot: %+v", last)
	return last
}

func (h *harness) ready(t *testing.T) Snapshot {
	return h.waitUntil(t, func(s Snapshot) bool {
		return s.Connection == models.ConnectionConnected && len(s.Sources) > 0
	})
}

func messages(entries []models.LogEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Message
	}
	return out
}

func TestStartValidatesOptions(t *testing.T) {
	_, err := New(Options{BaseURL: "http://localhost:8000"})
	assert.Error(t, err, "websocket url required")

	_, err = New(Options{BaseURL: "::bad", WebSocketURL: "ws://localhost:8000/ws"})
	assert.Error(t, err)
}

func TestBootstrapAndConnect(t *testing.T) {
	h := newHarness(t, nil)

	s := h.ready(t)
	assert.Equal(t, "CANARA", s.Sources[0].ID)
	assert.Equal(t, models.RunIdle, s.Run)
	assert.False(t, s.CanStart, "nothing selected")
	assert.Contains(t, messages(s.Logs), "Connected to server")
	assert.Contains(t, messages(s.Logs), "Loaded 2 sources")
}

func TestFullRun(t *testing.T) {
	h := newHarness(t, nil)
	h.ready(t)

	require.NoError(t, h.dash.Select(context.Background(), "CANARA"))
	s := h.waitUntil(t, func(s Snapshot) bool { return s.CanStart })
	assert.Equal(t, "CANARA", s.Selected)

	require.NoError(t, h.dash.RequestStart(context.Background(), "CANARA"))

	s = h.waitUntil(t, func(s Snapshot) bool {
		return s.Run == models.RunCompleted && !s.ResultsLoading && len(s.Results) == 3
	})
	msgs := messages(s.Logs)
	assert.Equal(t, "Starting automation for CANARA", msgs[0], "log cleared before the run")
	assert.NotContains(t, msgs, "Loaded 2 sources")
	assert.Contains(t, msgs, "scraping: 1/4 - Downloading tender 1")
	assert.Contains(t, msgs, "GEM-2025-B-1001.pdf: Contains required forms")
	assert.Contains(t, msgs, "corrigendum.pdf: No forms found")
	assert.Contains(t, msgs, "Found 3 results")

	for i := 1; i < len(s.Logs); i++ {
		assert.Greater(t, s.Logs[i].Seq, s.Logs[i-1].Seq)
	}

	// Running again is allowed after completion.
	err := h.dash.RequestStart(context.Background(), "CANARA")
	assert.NoError(t, err)
	h.waitUntil(t, func(s Snapshot) bool { return s.Run == models.RunCompleted && len(s.Results) == 3 })
	assert.Equal(t, 2, h.backend.Runs())
}

func TestRequestStartPreconditions(t *testing.T) {
	h := newHarness(t, nil)
	h.ready(t)

	err := h.dash.RequestStart(context.Background(), "")
	assert.True(t, errors.Is(err, job.ErrPrecondition))

	err = h.dash.RequestStart(context.Background(), "UNKNOWN")
	assert.True(t, errors.Is(err, job.ErrPrecondition))
	assert.Zero(t, h.backend.Runs())
}

func TestStartFailureReturnsToIdle(t *testing.T) {
	h := newHarness(t, func(c *devserver.Config) { c.FailStart = "portal timeout" })
	h.ready(t)

	require.NoError(t, h.dash.RequestStart(context.Background(), "SBI"))
	s := h.waitUntil(t, func(s Snapshot) bool {
		for _, e := range s.Logs {
			if strings.HasPrefix(e.Message, "Failed to start automation") {
				return true
			}
		}
		return false
	})

	assert.Equal(t, models.RunIdle, s.Run)
	n := 0
	for _, e := range s.Logs {
		if strings.HasPrefix(e.Message, "Failed to start automation") {
			n++
			assert.Equal(t, models.LevelError, e.Level)
			assert.Contains(t, e.Message, "portal timeout")
		}
	}
	assert.Equal(t, 1, n)
	assert.Empty(t, s.Results)
}

func TestReconnectAfterDrop(t *testing.T) {
	h := newHarness(t, nil)
	h.ready(t)

	require.Equal(t, 1, h.backend.Hub().DropAll())

	s := h.waitUntil(t, func(s Snapshot) bool {
		reconnecting := 0
		for _, e := range s.Logs {
			if strings.HasPrefix(e.Message, "Disconnected from server") {
				reconnecting++
			}
		}
		return reconnecting == 1 && s.Connection == models.ConnectionConnected
	})
	assert.False(t, s.ReconnectPending)
	require.Eventually(t, func() bool { return h.backend.Hub().Count() == 1 }, waitFor, 5*time.Millisecond)
}

func TestBinaryFrames(t *testing.T) {
	h := newHarness(t, func(c *devserver.Config) { c.Binary = true })
	h.ready(t)

	require.NoError(t, h.dash.RequestStart(context.Background(), "SBI"))
	s := h.waitUntil(t, func(s Snapshot) bool { return s.Run == models.RunCompleted })
	assert.Contains(t, messages(s.Logs), "Opening tender portal for State Bank of India")
}

func TestDownload(t *testing.T) {
	h := newHarness(t, nil)
	h.ready(t)
	require.NoError(t, h.dash.RequestStart(context.Background(), "CANARA"))
	s := h.waitUntil(t, func(s Snapshot) bool { return len(s.Results) == 3 })

	row := s.Results[2]
	loc, err := h.dash.Download(context.Background(), row)
	require.NoError(t, err)
	assert.Equal(t, "memory://Branch_Renovation 7_forms.zip", loc)
	data, err := h.sink.Get("Branch_Renovation 7_forms.zip")
	require.NoError(t, err)
	assert.Equal(t, "PK", string(data[:2]))

	h.waitUntil(t, func(s Snapshot) bool {
		last := s.Logs[len(s.Logs)-1]
		return last.Level == models.LevelSuccess && strings.HasPrefix(last.Message, "Saved Branch_Renovation 7_forms.zip")
	})

	url, err := h.dash.DownloadURL(row)
	require.NoError(t, err)
	assert.Equal(t, h.server.URL+"/api/download/Branch/Renovation%207", url)
}

func TestSubscribeDeliversSnapshots(t *testing.T) {
	h := newHarness(t, nil)
	updates, cancel := h.dash.Subscribe()
	defer cancel()

	deadline := time.After(waitFor)
	for {
		select {
		case s, ok := <-updates:
			require.True(t, ok)
			if s.Connection == models.ConnectionConnected {
				return
			}
		case <-deadline:
			t.Fatal("never observed a connected snapshot")
		}
	}
}

func TestShutdownClosesChannelAndSubscribers(t *testing.T) {
	h := newHarness(t, nil)
	h.ready(t)
	updates, _ := h.dash.Subscribe()

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, h.dash.Shutdown(ctx))

	for range updates {
	}
	require.Eventually(t, func() bool { return h.backend.Hub().Count() == 0 }, waitFor, 5*time.Millisecond)
	_, err := h.dash.Snapshot(context.Background())
	assert.Error(t, err)
	assert.ErrorIs(t, h.dash.Start(context.Background()), ErrAlreadyStarted)
}
