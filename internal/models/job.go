// Package models defines the shared data types for the extraction platform.
package models

import "time"

// JobStatus is the numeric job state, preserved bit-for-bit at the storage
// boundary for external compatibility.
type JobStatus int

const (
	JobStatusPending        JobStatus = 1
	JobStatusProcessing     JobStatus = 2
	JobStatusExtractionDone JobStatus = 3
	JobStatusError          JobStatus = 4
	JobStatusOCRDone        JobStatus = 5
	JobStatusOCRProcessing  JobStatus = 6
)

func (s JobStatus) String() string {
	switch s {
	case JobStatusPending:
		return "pending"
	case JobStatusProcessing:
		return "processing"
	case JobStatusExtractionDone:
		return "extraction_done"
	case JobStatusError:
		return "error"
	case JobStatusOCRDone:
		return "ocr_done"
	case JobStatusOCRProcessing:
		return "ocr_processing"
	default:
		return "unknown"
	}
}

// JobKind identifies which executor handles a Job.
type JobKind string

const (
	JobKindExtraction JobKind = "extraction"
	JobKindOCRIndex   JobKind = "ocr_index"
	JobKindOCRActe    JobKind = "ocr_acte"
	JobKindREQ        JobKind = "req"
	JobKindRDPRM      JobKind = "rdprm"
)

// ocrCapableKinds lists job kinds that continue into the OCR state machine
// after Extraction succeeds.
var ocrCapableKinds = map[JobKind]bool{
	JobKindOCRIndex: true,
	JobKindOCRActe:  true,
	JobKindREQ:      true,
	JobKindRDPRM:    true,
}

// IsOCRCapable reports whether a job kind continues through the OCR stages
// after extraction succeeds.
func (k JobKind) IsOCRCapable() bool {
	return ocrCapableKinds[k]
}

// DefaultMaxAttempts is the default retry budget for a job kind.
const DefaultMaxAttempts = 3

// SourceDescriptor identifies the document a Job extracts, kind-specific.
type SourceDescriptor struct {
	Type           string            `json:"type"`
	DocumentNumber string            `json:"document_number"`
	Params         map[string]string `json:"params,omitempty"`
}

// Job is a unit of extraction/OCR work.
type Job struct {
	ID               string           `json:"id"`
	Environment      string           `json:"environment"`
	Kind             JobKind          `json:"kind"`
	SourceDescriptor SourceDescriptor `json:"source_descriptor"`
	Status           JobStatus        `json:"status"`
	WorkerID         *string          `json:"worker_id,omitempty"`

	Attempts    int `json:"attempts"`
	MaxAttempts int `json:"max_attempts"`

	ProcessingStartedAt time.Time `json:"processing_started_at,omitempty"`
	CompletedAt         time.Time `json:"completed_at,omitempty"`
	LastError           string    `json:"last_error,omitempty"`
	LastErrorAt         time.Time `json:"last_error_at,omitempty"`

	// OCR-specific fields, populated only for OCR-capable kinds.
	OCRAttempts  int       `json:"ocr_attempts,omitempty"`
	OCRWorkerID  *string   `json:"ocr_worker_id,omitempty"`
	OCRStartedAt time.Time `json:"ocr_started_at,omitempty"`
	ArtifactPath string    `json:"artifact_path,omitempty"`
	RawText      string    `json:"raw_text,omitempty"`
	BoostedText  string    `json:"boosted_text,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// PendingStatusFor returns the pending status a job reverts to on
// retryable failure, depending on whether it was in the Extraction
// or OCR processing stage.
func PendingStatusFor(current JobStatus) JobStatus {
	if current == JobStatusOCRProcessing {
		return JobStatusExtractionDone
	}
	return JobStatusPending
}

// Environment identifies a logical, independently-credentialed job queue.
type Environment struct {
	Name       string `json:"name"`
	OCREnabled bool   `json:"ocr_enabled"`
}

// HealthAuthorMonitor is the synthetic last_error author tag the Health
// Monitor stamps on jobs and workers it reclaims.
const HealthAuthorMonitor = "health_monitor"
