package testutil

import (
	"context"
	"errors"
	"io"
	"sync"
)

// MemorySink implements storage.Sink in memory.
type MemorySink struct {
	mu    sync.RWMutex
	files map[string][]byte
	Err   error // returned by Save when set
}

// NewMemorySink creates an empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{files: make(map[string][]byte)}
}

func (m *MemorySink) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = data
	return "memory://" + name, nil
}

// Get returns the stored payload for name.
func (m *MemorySink) Get(name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.files[name]
	if !ok {
		return nil, errors.New("file not found")
	}
	return data, nil
}

// Names lists stored names.
func (m *MemorySink) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.files))
	for name := range m.files {
		names = append(names, name)
	}
	return names
}
