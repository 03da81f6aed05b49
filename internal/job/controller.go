// Package job coordinates the run state of the backend automation job.
//
// The controller gates a start on its preconditions, clears the previous run's
// activity and results, and issues the start command on a background goroutine.
// The outcome is posted back to the event loop. A start result that belongs to an
// earlier run is discarded.
package job

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/tender-automation/dashboard/internal/eventloop"
	"github.com/tender-automation/dashboard/internal/logstore"
	"github.com/tender-automation/dashboard/internal/models"
	"github.com/tender-automation/dashboard/internal/telemetry"
)

// Starter issues the backend start command.
type Starter interface {
	Start(ctx context.Context, sourceID string) error
}

// ConnectionStatus exposes the push channel state.
type ConnectionStatus interface {
	State() models.ConnectionState
}

// SourceCatalog exposes the bootstrapped source list.
type SourceCatalog interface {
	Sources() []models.SourceOption
	Has(id string) bool
}

// ResultsClearer drops the previous run's results.
type ResultsClearer interface {
	Clear()
}

// LogResetter is the activity log as seen by the controller.
type LogResetter interface {
	logstore.Appender
	Clear()
}

// Controller owns RunState. All methods must be called from the event loop.
type Controller struct {
	sched   eventloop.Scheduler
	starter Starter
	conn    ConnectionStatus
	sources SourceCatalog
	logs    LogResetter
	results ResultsClearer
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	state    models.RunState
	runID    string
	selected string
	closed   bool
}

// NewController creates an idle controller. sources may be nil.
func NewController(sched eventloop.Scheduler, starter Starter, conn ConnectionStatus, sources SourceCatalog,
	logs LogResetter, results ResultsClearer, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		sched:   sched,
		starter: starter,
		conn:    conn,
		sources: sources,
		logs:    logs,
		results: results,
		logger:  logger.With("component", "job"),
		ctx:     ctx,
		cancel:  cancel,
		state:   models.RunIdle,
	}
}

// State returns the current run state.
func (c *Controller) State() models.RunState {
	return c.state
}

// RunID identifies the current or most recent run. Empty before the first start.
func (c *Controller) RunID() string {
	return c.runID
}

// Selected returns the operator's current source selection.
func (c *Controller) Selected() string {
	return c.selected
}

// Select records the operator's source selection.
func (c *Controller) Select(sourceID string) {
	c.selected = sourceID
}

// CanStart reports whether RequestStart would currently be accepted for the selection.
func (c *Controller) CanStart() bool {
	return c.check(c.selected) == nil
}

func (c *Controller) check(sourceID string) error {
	switch {
	case c.closed:
		return precondition("shutting down")
	case sourceID == "":
		return precondition("no source selected")
	case c.conn.State() != models.ConnectionConnected:
		return precondition("not connected to server")
	case c.state == models.RunRunning:
		return precondition("a job is already running")
	}
	if c.sources == nil {
		return nil
	}
	if len(c.sources.Sources()) == 0 || c.sources.Has(sourceID) {
		return nil
	}
	return precondition(fmt.Sprintf("unknown source %q", sourceID))
}

// RequestStart begins a run for sourceID. It returns a *PreconditionError without
// touching any state when the run cannot start.
func (c *Controller) RequestStart(sourceID string) error {
	if err := c.check(sourceID); err != nil {
		telemetry.JobStarts.WithLabelValues("rejected").Inc()
		c.logger.Debug("start rejected", "source", sourceID, "error", err)
		return err
	}

	c.logs.Clear()
	c.results.Clear()
	c.selected = sourceID
	c.state = models.RunRunning
	c.runID = uuid.NewString()
	c.logs.Append(models.LevelInfo, fmt.Sprintf("Starting automation for %s", sourceID))
	c.logger.Info("starting job", "source", sourceID, "run_id", c.runID)

	runID := c.runID
	go func() {
		err := c.starter.Start(c.ctx, sourceID)
		c.sched.Post(func() { c.onStartResult(runID, err) })
	}()
	return nil
}

func (c *Controller) onStartResult(runID string, err error) {
	if c.closed || runID != c.runID {
		c.logger.Debug("discarding stale start result", "run_id", runID)
		return
	}
	if err == nil {
		telemetry.JobStarts.WithLabelValues("accepted").Inc()
		c.logger.Info("start acknowledged", "run_id", runID)
		return
	}

	telemetry.JobStarts.WithLabelValues("failed").Inc()
	c.logger.Warn("start failed", "run_id", runID, "error", err)
	c.logs.Append(models.LevelError, fmt.Sprintf("Failed to start automation: %v", err))
	if c.state == models.RunRunning {
		c.state = models.RunIdle
	}
}

// OnCompletion marks the run completed. The backend is authoritative, so this
// applies in any state.
func (c *Controller) OnCompletion() {
	if c.state != models.RunRunning {
		c.logger.Debug("completion while not running", "state", c.state)
	}
	c.state = models.RunCompleted
}

// Close cancels an in-flight start request and ignores its outcome.
func (c *Controller) Close() {
	c.closed = true
	c.cancel()
}
