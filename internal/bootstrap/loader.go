// Package bootstrap loads the selectable source list once at startup.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tender-automation/dashboard/internal/eventloop"
	"github.com/tender-automation/dashboard/internal/logstore"
	"github.com/tender-automation/dashboard/internal/models"
	"github.com/tender-automation/dashboard/internal/telemetry"
)

const (
	DefaultInitialDelay = 1 * time.Second
	DefaultRetryDelay   = 2 * time.Second
	DefaultMaxAttempts  = 4
)

// SourceLister fetches the source list.
type SourceLister interface {
	ListSources(ctx context.Context) ([]models.SourceOption, error)
}

// Config controls the retry policy.
type Config struct {
	InitialDelay time.Duration
	RetryDelay   time.Duration
	MaxAttempts  int // total attempts, including the first
}

// DefaultConfig returns the startup policy: four attempts, two seconds apart.
func DefaultConfig() Config {
	return Config{
		InitialDelay: DefaultInitialDelay,
		RetryDelay:   DefaultRetryDelay,
		MaxAttempts:  DefaultMaxAttempts,
	}
}

type attemptToken struct {
	timer eventloop.Timer
}

// Loader fetches the source list with bounded, strictly sequential retries.
// It runs independently of the push channel. All methods must be called from the event loop.
type Loader struct {
	cfg    Config
	sched  eventloop.Scheduler
	lister SourceLister
	logs   logstore.Appender
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	sources  []models.SourceOption
	attempts int
	pending  *attemptToken
	inFlight bool
	started  bool
	finished bool
	stopped  bool
}

// New creates a Loader. Zero fields in cfg take their defaults.
func New(cfg Config, sched eventloop.Scheduler, lister SourceLister, logs logstore.Appender, logger *slog.Logger) *Loader {
	def := DefaultConfig()
	if cfg.InitialDelay < 0 {
		cfg.InitialDelay = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Loader{
		cfg:    cfg,
		sched:  sched,
		lister: lister,
		logs:   logs,
		logger: logger.With("component", "bootstrap"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start schedules the first attempt after the initial delay. Later calls do nothing.
func (l *Loader) Start() {
	if l.started || l.stopped {
		return
	}
	l.started = true
	l.schedule(l.cfg.InitialDelay)
}

// Stop cancels the pending retry and any request in flight.
func (l *Loader) Stop() {
	l.stopped = true
	if l.pending != nil {
		l.pending.timer.Stop()
		l.pending = nil
	}
	l.cancel()
}

// Sources returns the loaded list. It is empty until a load succeeds.
func (l *Loader) Sources() []models.SourceOption {
	out := make([]models.SourceOption, len(l.sources))
	copy(out, l.sources)
	return out
}

// Has reports whether id is a loaded source.
func (l *Loader) Has(id string) bool {
	for _, s := range l.sources {
		if s.ID == id {
			return true
		}
	}
	return false
}

// Attempts returns how many fetches have been issued.
func (l *Loader) Attempts() int {
	return l.attempts
}

// Finished reports whether the loader succeeded or gave up.
func (l *Loader) Finished() bool {
	return l.finished
}

func (l *Loader) schedule(d time.Duration) {
	token := &attemptToken{}
	token.timer = l.sched.After(d, func() { l.onDue(token) })
	l.pending = token
}

func (l *Loader) onDue(token *attemptToken) {
	if l.stopped || l.pending != token || l.inFlight {
		return
	}
	l.pending = nil
	l.attempts++
	l.inFlight = true

	attempt := l.attempts
	go func() {
		sources, err := l.lister.ListSources(l.ctx)
		l.sched.Post(func() { l.onResult(attempt, sources, err) })
	}()
}

func (l *Loader) onResult(attempt int, sources []models.SourceOption, err error) {
	l.inFlight = false
	if l.stopped {
		return
	}

	if err == nil && len(sources) > 0 {
		l.sources = sources
		l.finished = true
		telemetry.BootstrapAttempts.WithLabelValues("success").Inc()
		l.logger.Info("sources loaded", "count", len(sources), "attempt", attempt)
		l.logs.Append(models.LevelSuccess, fmt.Sprintf("Loaded %d sources", len(sources)))
		return
	}

	if err != nil {
		telemetry.BootstrapAttempts.WithLabelValues("error").Inc()
		l.logger.Warn("source list fetch failed", "attempt", attempt, "error", err)
	} else {
		telemetry.BootstrapAttempts.WithLabelValues("empty").Inc()
		l.logger.Info("source list empty", "attempt", attempt)
	}

	if attempt < l.cfg.MaxAttempts {
		if err != nil {
			l.logs.Append(models.LevelWarning, fmt.Sprintf("Failed to load sources (attempt %d/%d): %v. Retrying in %s...",
				attempt, l.cfg.MaxAttempts, err, l.cfg.RetryDelay))
		} else {
			l.logs.Append(models.LevelWarning, fmt.Sprintf("No sources available yet (attempt %d/%d). Retrying in %s...",
				attempt, l.cfg.MaxAttempts, l.cfg.RetryDelay))
		}
		l.schedule(l.cfg.RetryDelay)
		return
	}

	l.finished = true
	if err != nil {
		l.logs.Append(models.LevelError, fmt.Sprintf("Failed to load sources after %d attempts: %v", attempt, err))
	} else {
		l.logs.Append(models.LevelError, "Failed to load sources: no sources configured")
	}
}
