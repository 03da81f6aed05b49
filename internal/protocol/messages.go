// Package protocol decodes inbound push-channel frames into typed messages.
package protocol

// Message types sent by the backend.
const (
	TypeLog        = "log"
	TypeProgress   = "progress"
	TypePDFStatus  = "pdf_status"
	TypeCompletion = "completion"
)

// PDF statuses reported in pdf_status messages.
const (
	PDFStatusFiltered = "filtered"
	PDFStatusSkipped  = "skipped"
)

// Message is a decoded inbound message. The concrete type is one of
// Log, Progress, PDFStatus, Completion or Unknown.
type Message interface {
	Type() string
	message()
}

// Log is a free-form activity line emitted by the backend.
type Log struct {
	Level     string
	Message   string
	Timestamp string
}

// Progress reports a counter for a pipeline stage.
type Progress struct {
	Stage      string
	Current    int
	Total      int
	Percentage int
	Message    string
	Timestamp  string
}

// PDFStatus reports the filtering outcome for one document.
type PDFStatus struct {
	PDFName   string
	Status    string
	Reason    string
	Details   map[string]any
	Timestamp string
}

// Completion marks the end of a job run.
type Completion struct {
	Timestamp string
}

// Unknown carries a discriminant this client does not understand.
type Unknown struct {
	Kind string
}

func (Log) Type() string        { return TypeLog }
func (Progress) Type() string   { return TypeProgress }
func (PDFStatus) Type() string  { return TypePDFStatus }
func (Completion) Type() string { return TypeCompletion }
func (u Unknown) Type() string  { return u.Kind }

func (Log) message()        {}
func (Progress) message()   {}
func (PDFStatus) message()  {}
func (Completion) message() {}
func (Unknown) message()    {}
