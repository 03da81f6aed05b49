package models

// RunState represents the user-visible state of the automation job.
type RunState string

const (
	RunIdle      RunState = "idle"
	RunRunning   RunState = "running"
	RunCompleted RunState = "completed"
)

// SourceOption is a selectable data source returned by the backend.
type SourceOption struct {
	ID          string `json:"id"`
	DisplayName string `json:"name"`
}

// ResultRow is one finalized result returned after a job completes.
type ResultRow struct {
	Title             string `json:"tender_name"`
	Description       string `json:"description"`
	Deadline          string `json:"last_date"`
	AttachmentCount   int    `json:"forms_count"`
	DownloadReference string `json:"download_url"`
}
