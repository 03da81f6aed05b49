// Package results fetches the finalized result set and downloads per-row archives.
package results

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tender-automation/dashboard/internal/api"
	"github.com/tender-automation/dashboard/internal/eventloop"
	"github.com/tender-automation/dashboard/internal/logstore"
	"github.com/tender-automation/dashboard/internal/models"
	"github.com/tender-automation/dashboard/internal/telemetry"
)

// Fetcher retrieves the result set.
type Fetcher interface {
	Results(ctx context.Context) ([]models.ResultRow, error)
}

// Loader owns the current result set. All methods must be called from the event loop.
type Loader struct {
	sched   eventloop.Scheduler
	fetcher Fetcher
	logs    logstore.Appender
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	rows    []models.ResultRow
	gen     uint64
	loading bool
	closed  bool
}

// NewLoader creates an empty Loader.
func NewLoader(sched eventloop.Scheduler, fetcher Fetcher, logs logstore.Appender, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Loader{
		sched:   sched,
		fetcher: fetcher,
		logs:    logs,
		logger:  logger.With("component", "results"),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Load fetches the result set and replaces the current one when it arrives.
// A fetch superseded by a later Load or Clear is discarded.
func (l *Loader) Load() {
	if l.closed {
		return
	}
	l.gen++
	gen := l.gen
	l.loading = true

	go func() {
		rows, err := l.fetcher.Results(l.ctx)
		l.sched.Post(func() { l.onResult(gen, rows, err) })
	}()
}

func (l *Loader) onResult(gen uint64, rows []models.ResultRow, err error) {
	if l.closed || gen != l.gen {
		l.logger.Debug("discarding stale results", "gen", gen)
		return
	}
	l.loading = false

	if err != nil {
		l.rows = nil
		telemetry.ResultLoadFailures.Inc()
		telemetry.ResultRows.Set(0)
		l.logger.Warn("results fetch failed", "error", err)
		msg := fmt.Sprintf("Failed to load results: %v", err)
		if api.IsTransient(err) {
			msg += " (backend unreachable, results stay available on the server)"
		}
		l.logs.Append(models.LevelError, msg)
		return
	}

	l.rows = append([]models.ResultRow(nil), rows...)
	telemetry.ResultRows.Set(float64(len(rows)))
	l.logs.Append(models.LevelSuccess, fmt.Sprintf("Found %d results", len(rows)))
}

// Clear drops the current set and any fetch in progress.
func (l *Loader) Clear() {
	l.gen++
	l.rows = nil
	l.loading = false
	telemetry.ResultRows.Set(0)
}

// Rows returns a copy of the current result set.
func (l *Loader) Rows() []models.ResultRow {
	out := make([]models.ResultRow, len(l.rows))
	copy(out, l.rows)
	return out
}

// Loading reports whether a fetch is outstanding.
func (l *Loader) Loading() bool {
	return l.loading
}

// Close cancels any fetch in flight and ignores its outcome.
func (l *Loader) Close() {
	l.closed = true
	l.cancel()
}
