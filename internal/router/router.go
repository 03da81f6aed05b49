// Package router turns inbound push-channel frames into state mutations.
package router

import (
	"fmt"
	"log/slog"

	"github.com/tender-automation/dashboard/internal/logstore"
	"github.com/tender-automation/dashboard/internal/models"
	"github.com/tender-automation/dashboard/internal/protocol"
	"github.com/tender-automation/dashboard/internal/telemetry"
)

// CompletionSink receives the job completion transition.
type CompletionSink interface {
	OnCompletion()
}

// ResultsTrigger fetches the finalized result set.
type ResultsTrigger interface {
	Load()
}

// Router dispatches decoded messages. It must be called from the event loop.
type Router struct {
	logs    logstore.Appender
	jobs    CompletionSink
	results ResultsTrigger
	logger  *slog.Logger
}

// New creates a Router.
func New(logs logstore.Appender, jobs CompletionSink, results ResultsTrigger, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		logs:    logs,
		jobs:    jobs,
		results: results,
		logger:  logger.With("component", "router"),
	}
}

// Route decodes a frame and applies it. Malformed frames and unknown types are dropped.
func (r *Router) Route(frame protocol.Frame) {
	msg, err := protocol.Decode(frame)
	if err != nil {
		telemetry.FramesDropped.Inc()
		r.logger.Debug("dropping frame", "error", err)
		return
	}
	telemetry.FramesReceived.WithLabelValues(msg.Type()).Inc()

	switch m := msg.(type) {
	case protocol.Log:
		r.logs.Append(models.ParseLogLevel(m.Level), m.Message)
	case protocol.Progress:
		r.logs.Append(models.LevelProgress, FormatProgress(m))
	case protocol.PDFStatus:
		r.logs.Append(PDFStatusLevel(m.Status), fmt.Sprintf("%s: %s", m.PDFName, m.Reason))
	case protocol.Completion:
		r.jobs.OnCompletion()
		r.logs.Append(models.LevelSuccess, "Automation completed")
		r.results.Load()
	case protocol.Unknown:
		r.logger.Debug("ignoring message", "type", m.Kind)
	}
}

// FormatProgress renders a progress message as "<stage>: <current>/<total> - <note>".
func FormatProgress(p protocol.Progress) string {
	return fmt.Sprintf("%s: %d/%d - %s", p.Stage, p.Current, p.Total, p.Message)
}

// PDFStatusLevel maps a document status onto a log level.
func PDFStatusLevel(status string) models.LogLevel {
	if status == protocol.PDFStatusFiltered {
		return models.LevelSuccess
	}
	return models.LevelWarning
}
