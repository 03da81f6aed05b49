package devserver

import (
	"fmt"
	"time"

	"github.com/tender-automation/dashboard/internal/models"
	"github.com/tender-automation/dashboard/internal/protocol"
)

// timestampLayout mirrors the ISO-8601 stamps the production backend sends.
const timestampLayout = "2006-01-02T15:04:05.000000"

// Script produces the messages one simulated run broadcasts, in order.
// The final message should be a Completion.
type Script func(source models.SourceOption, results []models.ResultRow) []protocol.Message

// DefaultScript walks through scraping and analysis, reports every result row as a
// filtered document plus one skipped document, and completes.
func DefaultScript(source models.SourceOption, results []models.ResultRow) []protocol.Message {
	now := func() string { return time.Now().Format(timestampLayout) }
	total := len(results) + 1

	msgs := []protocol.Message{
		protocol.Log{Level: "info", Message: fmt.Sprintf("Opening tender portal for %s", source.DisplayName), Timestamp: now()},
	}
	for i := 1; i <= total; i++ {
		msgs = append(msgs, protocol.Progress{
			Stage:      "scraping",
			Current:    i,
			Total:      total,
			Percentage: i * 100 / total,
			Message:    fmt.Sprintf("Downloading tender %d", i),
			Timestamp:  now(),
		})
	}
	msgs = append(msgs, protocol.Log{Level: "info", Message: "Starting Analysis...", Timestamp: now()})
	for _, r := range results {
		msgs = append(msgs, protocol.PDFStatus{
			PDFName:   r.Title + ".pdf",
			Status:    protocol.PDFStatusFiltered,
			Reason:    "Contains required forms",
			Details:   map[string]any{"forms": r.AttachmentCount},
			Timestamp: now(),
		})
	}
	msgs = append(msgs,
		protocol.PDFStatus{PDFName: "corrigendum.pdf", Status: protocol.PDFStatusSkipped, Reason: "No forms found", Timestamp: now()},
		protocol.Log{Level: "success", Message: fmt.Sprintf("Analysis complete: %d tenders processed", len(results)), Timestamp: now()},
		protocol.Completion{Timestamp: now()},
	)
	return msgs
}
