// Package storage persists downloaded result archives.
package storage

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Sink stores a named archive and returns its location.
type Sink interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
}

// FileInfo describes a saved archive.
type FileInfo struct {
	Name     string    `json:"name"`
	Location string    `json:"location"`
	Size     int64     `json:"size"`
	SavedAt  time.Time `json:"saved_at"`
}

// Backend names a sink implementation.
type Backend string

const (
	BackendLocal Backend = "local"
	BackendS3    Backend = "s3"
)

// Options selects and configures a sink.
type Options struct {
	Backend Backend
	Dir     string

	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3PathStyle bool
	S3Prefix    string
}

// NewSink builds the sink named by opts.Backend.
func NewSink(ctx context.Context, opts Options) (Sink, error) {
	switch opts.Backend {
	case BackendLocal, "":
		return NewLocalSink(opts.Dir)
	case BackendS3:
		return NewS3Sink(ctx, opts)
	default:
		return nil, fmt.Errorf("unknown download backend %q", opts.Backend)
	}
}
