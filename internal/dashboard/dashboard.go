// Package dashboard wires the connection and state-sync components onto one event loop
// and exposes them to view layers through snapshots and action methods.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tender-automation/dashboard/internal/api"
	"github.com/tender-automation/dashboard/internal/bootstrap"
	"github.com/tender-automation/dashboard/internal/channel"
	"github.com/tender-automation/dashboard/internal/eventloop"
	"github.com/tender-automation/dashboard/internal/job"
	"github.com/tender-automation/dashboard/internal/logstore"
	"github.com/tender-automation/dashboard/internal/models"
	"github.com/tender-automation/dashboard/internal/protocol"
	"github.com/tender-automation/dashboard/internal/results"
	"github.com/tender-automation/dashboard/internal/router"
)

// ErrAlreadyStarted is returned by a second Start.
var ErrAlreadyStarted = errors.New("dashboard already started")

// Options configures a Dashboard.
type Options struct {
	BaseURL          string
	WebSocketURL     string
	ReconnectDelay   time.Duration
	HandshakeTimeout time.Duration
	StartTimeout     time.Duration
	Bootstrap        bootstrap.Config

	// Sink receives downloaded archives. Download fails when it is nil.
	Sink results.Sink
	// Dialer overrides the websocket dialer.
	Dialer     channel.Dialer
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Snapshot is a consistent copy of the dashboard state taken on the loop.
type Snapshot struct {
	Seq uint64 // increases with every published snapshot

	Connection       models.ConnectionState
	ReconnectPending bool

	Sources          []models.SourceOption
	SourcesFinished  bool
	BootstrapAttempt int

	Selected string
	Run      models.RunState
	RunID    string
	CanStart bool

	Logs []models.LogEntry

	Results        []models.ResultRow
	ResultsLoading bool
}

// Dashboard owns the loop and every component on it.
type Dashboard struct {
	loop       *eventloop.Loop
	client     *api.Client
	logs       *logstore.Store
	conn       *channel.Manager
	boot       *bootstrap.Loader
	jobs       *job.Controller
	results    *results.Loader
	router     *router.Router
	downloader *results.Downloader
	logger     *slog.Logger

	subMu   sync.Mutex
	subs    map[int]chan Snapshot
	nextSub int
	seq     uint64 // touched only on the loop

	startOnce sync.Once
	started   atomic.Bool
	runDone   chan struct{}
}

// New builds a dashboard. Nothing runs until Start.
func New(opts Options) (*Dashboard, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var clientOpts []api.Option
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, api.WithHTTPClient(opts.HTTPClient))
	}
	if opts.StartTimeout > 0 {
		clientOpts = append(clientOpts, api.WithStartTimeout(opts.StartTimeout))
	}
	client, err := api.NewClient(opts.BaseURL, clientOpts...)
	if err != nil {
		return nil, err
	}
	if opts.WebSocketURL == "" {
		return nil, errors.New("websocket url is required")
	}

	dialer := opts.Dialer
	if dialer == nil {
		timeout := opts.HandshakeTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		dialer = channel.NewWebsocketDialer(timeout)
	}

	d := &Dashboard{
		loop:    eventloop.New(1024),
		client:  client,
		logs:    logstore.New(),
		logger:  logger.With("component", "dashboard"),
		subs:    make(map[int]chan Snapshot),
		runDone: make(chan struct{}),
	}

	d.results = results.NewLoader(d.loop, client, d.logs, logger)
	d.boot = bootstrap.New(opts.Bootstrap, d.loop, client, d.logs, logger)
	d.conn = channel.NewManager(channel.Config{
		URL:            opts.WebSocketURL,
		ReconnectDelay: opts.ReconnectDelay,
	}, dialer, d.loop, d.logs, channel.HandlerFunc(d.route), logger)
	d.jobs = job.NewController(d.loop, client, d.conn, d.boot, d.logs, d.results, logger)
	d.router = router.New(d.logs, d.jobs, d.results, logger)
	if opts.Sink != nil {
		d.downloader = results.NewDownloader(client, opts.Sink, logger)
	}

	d.loop.OnTick(d.publish)
	return d, nil
}

func (d *Dashboard) route(f protocol.Frame) {
	d.router.Route(f)
}

// Start runs the loop in the background, connects the push channel and begins
// loading sources. Cancelling ctx stops the loop.
func (d *Dashboard) Start(ctx context.Context) error {
	err := ErrAlreadyStarted
	d.startOnce.Do(func() {
		err = nil
		d.started.Store(true)
		go func() {
			defer close(d.runDone)
			if err := d.loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				d.logger.Warn("event loop exited", "error", err)
			}
		}()
		d.loop.Post(func() {
			d.logger.Info("starting", "base_url", d.client.BaseURL())
			d.conn.Connect()
			d.boot.Start()
		})
	})
	return err
}

// Done is closed once the loop has exited.
func (d *Dashboard) Done() <-chan struct{} {
	return d.runDone
}

// Shutdown disconnects, cancels every pending timer and request, and stops the loop.
func (d *Dashboard) Shutdown(ctx context.Context) error {
	defer d.closeSubscribers()
	if !d.started.Load() {
		return nil
	}

	teardown := func() {
		d.conn.Disconnect()
		d.boot.Stop()
		d.jobs.Close()
		d.results.Close()
	}
	err := d.loop.Call(ctx, teardown)
	d.loop.Stop()

	select {
	case <-d.runDone:
	case <-ctx.Done():
		return ctx.Err()
	}
	if errors.Is(err, eventloop.ErrStopped) {
		// The loop exited first, so the components are no longer shared.
		teardown()
		err = nil
	}
	return err
}

// Snapshot returns the current state.
func (d *Dashboard) Snapshot(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	err := d.loop.Call(ctx, func() { s = d.snapshot() })
	return s, err
}

// Select records the operator's source selection.
func (d *Dashboard) Select(ctx context.Context, sourceID string) error {
	return d.loop.Call(ctx, func() { d.jobs.Select(sourceID) })
}

// RequestStart starts a run. Precondition failures come back as *job.PreconditionError.
func (d *Dashboard) RequestStart(ctx context.Context, sourceID string) error {
	var startErr error
	if err := d.loop.Call(ctx, func() { startErr = d.jobs.RequestStart(sourceID) }); err != nil {
		return err
	}
	return startErr
}

// Reconnect asks for an immediate connection attempt. It does nothing while connected.
func (d *Dashboard) Reconnect(ctx context.Context) error {
	return d.loop.Call(ctx, func() { d.conn.Connect() })
}

// Download saves a row's archive to the configured sink and records the outcome in the activity log.
// It blocks the caller, not the loop.
func (d *Dashboard) Download(ctx context.Context, row models.ResultRow) (string, error) {
	if d.downloader == nil {
		return "", errors.New("no download sink configured")
	}
	loc, err := d.downloader.Download(ctx, row)
	d.loop.Post(func() {
		if err != nil {
			d.logs.Append(models.LevelError, fmt.Sprintf("Download failed for %s: %v", row.Title, err))
			return
		}
		d.logs.Append(models.LevelSuccess, fmt.Sprintf("Saved %s to %s", results.ArchiveName(row.Title), loc))
	})
	return loc, err
}

// DownloadURL returns the absolute URL of a row's archive.
func (d *Dashboard) DownloadURL(row models.ResultRow) (string, error) {
	return d.client.ResolveURL(row.DownloadReference)
}

// Subscribe returns a channel that receives the latest snapshot after every change.
// Slow readers only ever see the most recent snapshot. cancel releases the subscription.
func (d *Dashboard) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	d.subMu.Lock()
	id := d.nextSub
	d.nextSub++
	d.subs[id] = ch
	d.subMu.Unlock()

	// Any callback triggers a publish, which delivers the initial snapshot.
	d.loop.Post(func() {})

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			d.subMu.Lock()
			defer d.subMu.Unlock()
			if _, ok := d.subs[id]; ok {
				delete(d.subs, id)
				close(ch)
			}
		})
	}
	return ch, cancel
}

func (d *Dashboard) snapshot() Snapshot {
	d.seq++
	return Snapshot{
		Seq:              d.seq,
		Connection:       d.conn.State(),
		ReconnectPending: d.conn.ReconnectPending(),
		Sources:          d.boot.Sources(),
		SourcesFinished:  d.boot.Finished(),
		BootstrapAttempt: d.boot.Attempts(),
		Selected:         d.jobs.Selected(),
		Run:              d.jobs.State(),
		RunID:            d.jobs.RunID(),
		CanStart:         d.jobs.CanStart(),
		Logs:             d.logs.Entries(),
		Results:          d.results.Rows(),
		ResultsLoading:   d.results.Loading(),
	}
}

// publish runs on the loop after every callback.
func (d *Dashboard) publish() {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	if len(d.subs) == 0 {
		return
	}

	s := d.snapshot()
	for _, ch := range d.subs {
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}

func (d *Dashboard) closeSubscribers() {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	for id, ch := range d.subs {
		delete(d.subs, id)
		close(ch)
	}
}
