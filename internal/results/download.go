package results

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/tender-automation/dashboard/internal/models"
	"github.com/tender-automation/dashboard/internal/telemetry"
)

const maxNameRunes = 100

// ArchiveSource opens the archive behind a download reference.
type ArchiveSource interface {
	Download(ctx context.Context, ref string) (io.ReadCloser, error)
}

// Sink persists a downloaded archive and returns where it ended up.
type Sink interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
}

// Downloader saves per-row archives. It holds no loop state and is safe for concurrent use.
type Downloader struct {
	source ArchiveSource
	sink   Sink
	logger *slog.Logger
}

// NewDownloader creates a Downloader.
func NewDownloader(source ArchiveSource, sink Sink, logger *slog.Logger) *Downloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Downloader{source: source, sink: sink, logger: logger.With("component", "download")}
}

// SafeName makes a row title usable as a file name.
func SafeName(title string) string {
	name := strings.NewReplacer("/", "_", "\\", "_").Replace(title)
	if r := []rune(name); len(r) > maxNameRunes {
		name = string(r[:maxNameRunes])
	}
	if strings.TrimSpace(name) == "" {
		name = "result"
	}
	return name
}

// ArchiveName returns the file name used for a row's archive.
func ArchiveName(title string) string {
	return SafeName(title) + "_forms.zip"
}

// Download fetches the row's archive and saves it under ArchiveName.
func (d *Downloader) Download(ctx context.Context, row models.ResultRow) (string, error) {
	if row.DownloadReference == "" {
		telemetry.Downloads.WithLabelValues("failed").Inc()
		return "", errors.New("row has no download reference")
	}

	rc, err := d.source.Download(ctx, row.DownloadReference)
	if err != nil {
		telemetry.Downloads.WithLabelValues("failed").Inc()
		return "", fmt.Errorf("fetching archive for %q: %w", row.Title, err)
	}
	defer rc.Close()

	name := ArchiveName(row.Title)
	location, err := d.sink.Save(ctx, name, rc)
	if err != nil {
		telemetry.Downloads.WithLabelValues("failed").Inc()
		return "", fmt.Errorf("saving %s: %w", name, err)
	}

	telemetry.Downloads.WithLabelValues("saved").Inc()
	d.logger.Info("archive saved", "title", row.Title, "location", location)
	return location, nil
}
