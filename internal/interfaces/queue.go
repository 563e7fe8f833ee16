// Package interfaces defines the service contracts wired between the
// extraction platform's components.
package interfaces

import (
	"context"
	"time"

	"github.com/paraito/registre-extractor/internal/models"
)

// QueueGateway is the sole path components use to read and mutate job
// state. Implementations must make claim operations atomic across
// concurrent worker callers for the same environment.
type QueueGateway interface {
	// Enqueue inserts a new job in JobStatusPending.
	Enqueue(ctx context.Context, job *models.Job) error

	// ClaimNext atomically selects the oldest pending extraction job for
	// the given environment whose kind is in kinds and transitions it to
	// JobStatusProcessing, stamping WorkerID. A nil or empty kinds claims
	// across every kind. Returns nil, nil when the queue is empty.
	ClaimNext(ctx context.Context, environment string, workerID string, kinds []models.JobKind) (*models.Job, error)

	// ClaimNextOCR is ClaimNext's counterpart for the OCR stage: it
	// selects a job in JobStatusExtractionDone whose kind is in kinds
	// and transitions it to JobStatusOCRProcessing.
	ClaimNextOCR(ctx context.Context, environment string, workerID string, kinds []models.JobKind) (*models.Job, error)

	// ReportSuccess marks a job's current stage complete. For an
	// extraction-stage job this sets JobStatusExtractionDone (or
	// JobStatusOCRDone directly if the kind is not OCR-capable); for an
	// OCR-stage job it sets JobStatusOCRDone and persists artifact/text
	// fields out of job.
	ReportSuccess(ctx context.Context, job *models.Job) error

	// ReportFailure records an attempt failure. If attempts remain under
	// the job's budget and cause is retryable (extractorerr.IsRetryable)
	// the job reverts to its pending status per models.PendingStatusFor;
	// otherwise it is marked JobStatusError.
	ReportFailure(ctx context.Context, job *models.Job, cause error) error

	// Heartbeat refreshes a claimed job's liveness marker so the Health
	// Monitor does not consider it stalled.
	Heartbeat(ctx context.Context, environment string, jobID string, workerID string) error

	// ResetStalled reverts jobs claimed longer than threshold ago back
	// to their pending status, incrementing nothing (the claiming
	// worker is presumed dead), and stamps last_error with
	// models.HealthAuthorMonitor. Returns the count reset.
	ResetStalled(ctx context.Context, environment string, threshold time.Duration) (int, error)

	// ListEnvironments returns the environments this gateway serves.
	ListEnvironments(ctx context.Context) ([]models.Environment, error)

	// CountPending returns the number of pending jobs for an environment,
	// used by the Health Monitor for depth reporting.
	CountPending(ctx context.Context, environment string) (int, error)

	// CountErrors returns the number of jobs in JobStatusError for an
	// environment, used by the Health Monitor's anomaly alerting.
	CountErrors(ctx context.Context, environment string) (int, error)
}
