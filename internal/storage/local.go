package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// LocalSink writes archives into a directory.
type LocalSink struct {
	dir string
}

// NewLocalSink creates the directory if needed.
func NewLocalSink(dir string) (*LocalSink, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating download directory: %w", err)
	}
	return &LocalSink{dir: dir}, nil
}

// Dir returns the target directory.
func (s *LocalSink) Dir() string {
	return s.dir
}

// Save streams r into a temporary file and renames it to name once complete,
// so a failed download never leaves a truncated archive behind.
func (s *LocalSink) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	if name == "" || filepath.Base(name) != name {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	tmp := filepath.Join(s.dir, "."+uuid.New().String()+".part")

	f, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("creating file: %w", err)
	}

	_, err = io.Copy(f, &ctxReader{ctx: ctx, r: r})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("writing file: %w", err)
	}

	path := filepath.Join(s.dir, name)
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("moving file into place: %w", err)
	}
	return path, nil
}

// List returns the archives in the directory, newest first. Partial downloads are skipped.
func (s *LocalSink) List(limit int) ([]*FileInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading download directory: %w", err)
	}

	list := make([]*FileInfo, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".zip") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		list = append(list, &FileInfo{
			Name:     name,
			Location: filepath.Join(s.dir, name),
			Size:     info.Size(),
			SavedAt:  info.ModTime(),
		})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].SavedAt.Equal(list[j].SavedAt) {
			return list[i].Name < list[j].Name
		}
		return list[i].SavedAt.After(list[j].SavedAt)
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
