package commands

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/urfave/cli/v3"

	"github.com/tender-automation/dashboard/internal/models"
	"github.com/tender-automation/dashboard/internal/results"
	"github.com/tender-automation/dashboard/internal/storage"
)

// SourcesAction lists the sources the backend offers.
func SourcesAction(ctx context.Context, cmd *cli.Command) error {
	app, err := NewAppContext(cmd, false)
	if err != nil {
		return err
	}
	defer app.Close()

	client, err := app.Client()
	if err != nil {
		return err
	}
	sources, err := client.ListSources(ctx)
	if err != nil {
		return fmt.Errorf("failed to load sources: %w", err)
	}
	printSources(cmd.Root().Writer, sources)
	return nil
}

// ResultsAction lists the results of the last completed run.
func ResultsAction(ctx context.Context, cmd *cli.Command) error {
	app, err := NewAppContext(cmd, false)
	if err != nil {
		return err
	}
	defer app.Close()

	client, err := app.Client()
	if err != nil {
		return err
	}
	rows, err := client.Results(ctx)
	if err != nil {
		return fmt.Errorf("failed to load results: %w", err)
	}
	printResults(cmd.Root().Writer, rows)
	return nil
}

// DownloadAction saves result archives to the configured sink. The argument is a
// tender title or a 1-based row number; --all saves every row.
func DownloadAction(ctx context.Context, cmd *cli.Command) error {
	app, err := NewAppContext(cmd, false)
	if err != nil {
		return err
	}
	defer app.Close()

	client, err := app.Client()
	if err != nil {
		return err
	}
	sink, err := app.Sink(ctx)
	if err != nil {
		return err
	}
	rows, err := client.Results(ctx)
	if err != nil {
		return fmt.Errorf("failed to load results: %w", err)
	}

	var targets []models.ResultRow
	if cmd.Bool("all") {
		targets = rows
	} else {
		if cmd.Args().Len() == 0 {
			return fmt.Errorf("download needs a tender title, a row number or --all")
		}
		row, err := pickRow(rows, cmd.Args().First())
		if err != nil {
			return err
		}
		targets = []models.ResultRow{row}
	}

	return downloadRows(ctx, cmd.Root().Writer, results.NewDownloader(client, sink, app.Logger), targets)
}

func pickRow(rows []models.ResultRow, arg string) (models.ResultRow, error) {
	for _, r := range rows {
		if r.Title == arg {
			return r, nil
		}
	}
	if n, err := strconv.Atoi(arg); err == nil && n >= 1 && n <= len(rows) {
		return rows[n-1], nil
	}
	return models.ResultRow{}, fmt.Errorf("no result matches %q", arg)
}

type rowDownloader interface {
	Download(ctx context.Context, row models.ResultRow) (string, error)
}

func downloadRows(ctx context.Context, w io.Writer, d rowDownloader, rows []models.ResultRow) error {
	failed := 0
	for _, r := range rows {
		loc, err := d.Download(ctx, r)
		if err != nil {
			failed++
			fmt.Fprintf(w, "Download failed for %s: %v\n", r.Title, err)
			continue
		}
		fmt.Fprintf(w, "Saved %s to %s\n", results.ArchiveName(r.Title), loc)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d downloads failed", failed, len(rows))
	}
	return nil
}

// SavedAction lists archives already saved by the local download backend.
func SavedAction(ctx context.Context, cmd *cli.Command) error {
	app, err := NewAppContext(cmd, false)
	if err != nil {
		return err
	}
	defer app.Close()

	sink, err := app.Sink(ctx)
	if err != nil {
		return err
	}
	local, ok := sink.(*storage.LocalSink)
	if !ok {
		return fmt.Errorf("listing saved archives needs the local download backend, not %q", app.Config.Downloads.Backend)
	}
	files, err := local.List(int(cmd.Int("limit")))
	if err != nil {
		return err
	}
	printSaved(cmd.Root().Writer, local.Dir(), files)
	return nil
}
