// Package logstore holds the append-only activity log shown to the operator.
package logstore

import (
	"time"

	"github.com/tender-automation/dashboard/internal/models"
)

// TimestampLayout formats entry timestamps for display.
const TimestampLayout = "15:04:05"

// Appender is the write side of the store used by components that report activity.
type Appender interface {
	Append(level models.LogLevel, message string) models.LogEntry
}

// Store is an append-only ordered record of activity entries.
// It is owned by the event loop and is not safe for concurrent use.
type Store struct {
	entries []models.LogEntry
	seq     uint64
	now     func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{now: time.Now}
}

// NewWithClock creates a store that stamps entries using now.
func NewWithClock(now func() time.Time) *Store {
	return &Store{now: now}
}

// Append records a new entry and returns it.
func (s *Store) Append(level models.LogLevel, message string) models.LogEntry {
	s.seq++
	entry := models.LogEntry{
		Seq:       s.seq,
		Level:     level,
		Message:   message,
		Timestamp: s.now().Format(TimestampLayout),
	}
	s.entries = append(s.entries, entry)
	return entry
}

// Entries returns a copy of all entries in arrival order.
func (s *Store) Entries() []models.LogEntry {
	out := make([]models.LogEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len returns the number of entries.
func (s *Store) Len() int {
	return len(s.entries)
}

// Last returns the most recent entry.
func (s *Store) Last() (models.LogEntry, bool) {
	if len(s.entries) == 0 {
		return models.LogEntry{}, false
	}
	return s.entries[len(s.entries)-1], true
}

// Since returns entries with a sequence number greater than seq.
func (s *Store) Since(seq uint64) []models.LogEntry {
	for i, e := range s.entries {
		if e.Seq > seq {
			out := make([]models.LogEntry, len(s.entries)-i)
			copy(out, s.entries[i:])
			return out
		}
	}
	return nil
}

// Clear drops all entries. Sequence numbers keep increasing afterwards.
func (s *Store) Clear() {
	s.entries = nil
}
