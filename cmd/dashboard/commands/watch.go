package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/tender-automation/dashboard/internal/dashboard"
	"github.com/tender-automation/dashboard/internal/models"
)

// ErrRunFailed is returned by watch when the backend rejects or aborts the run.
var ErrRunFailed = errors.New("automation run failed")

// WatchAction starts a run for one source and streams the activity log until it finishes.
func WatchAction(ctx context.Context, cmd *cli.Command) error {
	app, err := NewAppContext(cmd, false)
	if err != nil {
		return err
	}
	defer app.Close()

	app.StartMetrics(ctx)
	dash, stop, err := app.startDashboard(ctx)
	if err != nil {
		return err
	}
	defer stop()

	out := cmd.Root().Writer
	snap, err := watchRun(ctx, dash, cmd.String("source"), out)
	if err != nil {
		return err
	}
	printResults(out, snap.Results)

	if cmd.Bool("download") {
		return downloadRows(ctx, out, dash, snap.Results)
	}
	return nil
}

// runner is the slice of the dashboard that watch drives.
type runner interface {
	Subscribe() (<-chan dashboard.Snapshot, func())
	RequestStart(ctx context.Context, sourceID string) error
	Snapshot(ctx context.Context) (dashboard.Snapshot, error)
}

// watchRun waits for the source list, starts sourceID once the channel is up and
// prints every new log entry. It returns the snapshot in which the run completed
// and its results settled.
func watchRun(ctx context.Context, d runner, sourceID string, out io.Writer) (dashboard.Snapshot, error) {
	updates, cancel := d.Subscribe()
	defer cancel()

	var (
		lastSeq uint64
		runID   string
	)
	for {
		var snap dashboard.Snapshot
		select {
		case <-ctx.Done():
			return dashboard.Snapshot{}, ctx.Err()
		case s, ok := <-updates:
			if !ok {
				return dashboard.Snapshot{}, errors.New("dashboard stopped")
			}
			snap = s
		}

		for _, e := range snap.Logs {
			if e.Seq > lastSeq {
				printEntry(out, e)
				lastSeq = e.Seq
			}
		}

		if runID == "" {
			if snap.SourcesFinished && len(snap.Sources) == 0 {
				return snap, errors.New("no sources available")
			}
			if snap.Connection != models.ConnectionConnected || !snap.SourcesFinished {
				continue
			}
			if err := d.RequestStart(ctx, sourceID); err != nil {
				return snap, err
			}
			current, err := d.Snapshot(ctx)
			if err != nil {
				return snap, err
			}
			runID = current.RunID
			continue
		}

		if snap.RunID != runID {
			continue
		}
		switch snap.Run {
		case models.RunIdle:
			return snap, fmt.Errorf("%w for %s", ErrRunFailed, sourceID)
		case models.RunCompleted:
			if !snap.ResultsLoading {
				return snap, nil
			}
		}
	}
}
