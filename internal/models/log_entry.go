// Package models contains domain types for the tender automation dashboard.
package models

import "strings"

// LogLevel represents the severity of an activity log entry.
type LogLevel string

const (
	LevelInfo     LogLevel = "info"
	LevelSuccess  LogLevel = "success"
	LevelWarning  LogLevel = "warning"
	LevelError    LogLevel = "error"
	LevelProgress LogLevel = "progress"
)

// ParseLogLevel maps a wire level onto a known LogLevel. Unknown levels become info.
func ParseLogLevel(s string) LogLevel {
	switch LogLevel(strings.ToLower(strings.TrimSpace(s))) {
	case LevelSuccess:
		return LevelSuccess
	case LevelWarning, "warn":
		return LevelWarning
	case LevelError:
		return LevelError
	case LevelProgress:
		return LevelProgress
	default:
		return LevelInfo
	}
}

// LogEntry is a single human-readable activity record. Entries are immutable once appended.
type LogEntry struct {
	Seq       uint64   `json:"seq"` // Monotonically increasing across the process lifetime
	Level     LogLevel `json:"level"`
	Message   string   `json:"message"`
	Timestamp string   `json:"timestamp"`
}
