// Package queue implements the Queue Gateway: the single, atomic entry
// point workers and the dispatcher use to claim and resolve jobs across
// every environment.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/paraito/registre-extractor/internal/common"
	"github.com/paraito/registre-extractor/internal/extractorerr"
	"github.com/paraito/registre-extractor/internal/interfaces"
	"github.com/paraito/registre-extractor/internal/models"
	storage "github.com/paraito/registre-extractor/internal/storage/surrealdb"
)

// jobSelectFields lists job_queue columns, aliasing job_id to id for
// struct mapping onto models.Job.
const jobSelectFields = `job_id as id, environment, kind, source_descriptor, status, worker_id,
	attempts, max_attempts, processing_started_at, completed_at, last_error, last_error_at,
	ocr_attempts, ocr_worker_id, ocr_started_at, artifact_path, raw_text, boosted_text, created_at`

// Gateway implements interfaces.QueueGateway on top of a per-environment
// SurrealDB connection set.
type Gateway struct {
	conns  *storage.ConnSet
	logger *common.Logger
}

// NewGateway builds a Gateway over an already-connected ConnSet.
func NewGateway(conns *storage.ConnSet, logger *common.Logger) *Gateway {
	return &Gateway{conns: conns, logger: logger}
}

func (g *Gateway) dbFor(environment string) (*surrealdb.DB, error) {
	db, ok := g.conns.Conn(environment)
	if !ok {
		return nil, fmt.Errorf("unknown environment %q", environment)
	}
	return db, nil
}

func (g *Gateway) Enqueue(ctx context.Context, job *models.Job) error {
	db, err := g.dbFor(job.Environment)
	if err != nil {
		return err
	}

	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Status == 0 {
		job.Status = models.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if job.MaxAttempts == 0 {
		job.MaxAttempts = models.DefaultMaxAttempts
	}

	sql := `UPSERT $rid SET
		job_id = $job_id, environment = $environment, kind = $kind,
		source_descriptor = $source_descriptor, status = $status, worker_id = $worker_id,
		attempts = $attempts, max_attempts = $max_attempts,
		processing_started_at = $processing_started_at, completed_at = $completed_at,
		last_error = $last_error, last_error_at = $last_error_at,
		ocr_attempts = $ocr_attempts, ocr_worker_id = $ocr_worker_id,
		ocr_started_at = $ocr_started_at, artifact_path = $artifact_path,
		raw_text = $raw_text, boosted_text = $boosted_text, created_at = $created_at`
	vars := map[string]any{
		"rid":                   surrealmodels.NewRecordID("job_queue", job.ID),
		"job_id":                job.ID,
		"environment":           job.Environment,
		"kind":                  job.Kind,
		"source_descriptor":     job.SourceDescriptor,
		"status":                job.Status,
		"worker_id":             job.WorkerID,
		"attempts":              job.Attempts,
		"max_attempts":          job.MaxAttempts,
		"processing_started_at": job.ProcessingStartedAt,
		"completed_at":          job.CompletedAt,
		"last_error":            job.LastError,
		"last_error_at":         job.LastErrorAt,
		"ocr_attempts":          job.OCRAttempts,
		"ocr_worker_id":         job.OCRWorkerID,
		"ocr_started_at":        job.OCRStartedAt,
		"artifact_path":         job.ArtifactPath,
		"raw_text":              job.RawText,
		"boosted_text":          job.BoostedText,
		"created_at":            job.CreatedAt,
	}

	if _, err := surrealdb.Query[any](ctx, db, sql, vars); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

// claimOne runs the select-then-conditional-update idiom shared by
// ClaimNext and ClaimNextOCR: select the oldest candidate in fromStatus
// whose kind is in kinds, then update it to toStatus only if it is still
// in fromStatus, which loses the race to any other worker that claimed
// it first. attemptsField names the per-stage retry counter column
// (attempts for extraction claims, ocr_attempts for OCR claims) so each
// stage tracks its own retry budget.
func (g *Gateway) claimOne(ctx context.Context, db *surrealdb.DB, environment string, fromStatus, toStatus models.JobStatus, kinds []models.JobKind, workerField, workerID, startField, attemptsField string) (*models.Job, error) {
	extraWhere := ""
	vars := map[string]any{"env": environment, "from": fromStatus}
	if len(kinds) > 0 {
		extraWhere = " AND kind IN $kinds"
		vars["kinds"] = kinds
	}
	selectSQL := fmt.Sprintf(
		"SELECT %s FROM job_queue WHERE environment = $env AND status = $from%s ORDER BY created_at ASC LIMIT 1",
		jobSelectFields, extraWhere,
	)

	candidates, err := surrealdb.Query[[]models.Job](ctx, db, selectSQL, vars)
	if err != nil {
		return nil, fmt.Errorf("select claim candidate: %w", err)
	}
	if candidates == nil || len(*candidates) == 0 || len((*candidates)[0].Result) == 0 {
		return nil, nil
	}
	candidate := (*candidates)[0].Result[0]

	now := time.Now()
	updateSQL := fmt.Sprintf(
		"UPDATE $rid SET status = $to, %s = $worker, %s = $now, last_heartbeat_at = $now, %s = %s + 1 WHERE status = $from",
		workerField, startField, attemptsField, attemptsField,
	)
	updateVars := map[string]any{
		"rid":    surrealmodels.NewRecordID("job_queue", candidate.ID),
		"to":     toStatus,
		"worker": workerID,
		"now":    now,
		"from":   fromStatus,
	}
	updated, err := surrealdb.Query[[]any](ctx, db, updateSQL, updateVars)
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	if updated == nil || len(*updated) == 0 || len((*updated)[0].Result) == 0 {
		// The row left fromStatus between the select and the update.
		return nil, nil
	}

	candidate.Status = toStatus
	switch toStatus {
	case models.JobStatusProcessing:
		candidate.WorkerID = &workerID
		candidate.ProcessingStartedAt = now
		candidate.Attempts++
	case models.JobStatusOCRProcessing:
		candidate.OCRWorkerID = &workerID
		candidate.OCRStartedAt = now
		candidate.OCRAttempts++
	}
	return &candidate, nil
}

func (g *Gateway) ClaimNext(ctx context.Context, environment string, workerID string, kinds []models.JobKind) (*models.Job, error) {
	db, err := g.dbFor(environment)
	if err != nil {
		return nil, err
	}
	return g.claimOne(ctx, db, environment, models.JobStatusPending, models.JobStatusProcessing, kinds, "worker_id", workerID, "processing_started_at", "attempts")
}

func (g *Gateway) ClaimNextOCR(ctx context.Context, environment string, workerID string, kinds []models.JobKind) (*models.Job, error) {
	db, err := g.dbFor(environment)
	if err != nil {
		return nil, err
	}
	return g.claimOne(ctx, db, environment, models.JobStatusExtractionDone, models.JobStatusOCRProcessing, kinds, "ocr_worker_id", workerID, "ocr_started_at", "ocr_attempts")
}

func (g *Gateway) ReportSuccess(ctx context.Context, job *models.Job) error {
	db, err := g.dbFor(job.Environment)
	if err != nil {
		return err
	}

	nextStatus := models.JobStatusExtractionDone
	if job.Status == models.JobStatusOCRProcessing || !job.Kind.IsOCRCapable() && job.Status == models.JobStatusProcessing {
		nextStatus = models.JobStatusOCRDone
	}

	sql := `UPDATE $rid SET status = $status, completed_at = $now, artifact_path = $artifact,
		raw_text = $raw, boosted_text = $boosted`
	vars := map[string]any{
		"rid":      surrealmodels.NewRecordID("job_queue", job.ID),
		"status":   nextStatus,
		"now":      time.Now(),
		"artifact": job.ArtifactPath,
		"raw":      job.RawText,
		"boosted":  job.BoostedText,
	}
	if _, err := surrealdb.Query[any](ctx, db, sql, vars); err != nil {
		return fmt.Errorf("report job success: %w", err)
	}
	return nil
}

func (g *Gateway) ReportFailure(ctx context.Context, job *models.Job, cause error) error {
	db, err := g.dbFor(job.Environment)
	if err != nil {
		return err
	}

	maxAttempts := job.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = models.DefaultMaxAttempts
	}

	attempts := job.Attempts
	if job.Status == models.JobStatusOCRProcessing {
		attempts = job.OCRAttempts
	}

	status := models.PendingStatusFor(job.Status)
	if attempts >= maxAttempts || !extractorerr.IsRetryable(cause) {
		status = models.JobStatusError
	}

	errStr := ""
	if cause != nil {
		errStr = cause.Error()
	}

	sql := `UPDATE $rid SET status = $status, last_error = $err, last_error_at = $now`
	vars := map[string]any{
		"rid":    surrealmodels.NewRecordID("job_queue", job.ID),
		"status": status,
		"err":    errStr,
		"now":    time.Now(),
	}
	if _, err := surrealdb.Query[any](ctx, db, sql, vars); err != nil {
		return fmt.Errorf("report job failure: %w", err)
	}
	return nil
}

// Heartbeat refreshes last_heartbeat_at, the field ResetStalled compares
// against. It does not touch processing_started_at, which stays fixed so
// the worker's hard deadline can still be measured from claim time.
func (g *Gateway) Heartbeat(ctx context.Context, environment, jobID, workerID string) error {
	db, err := g.dbFor(environment)
	if err != nil {
		return err
	}
	sql := `UPDATE $rid SET last_heartbeat_at = $now WHERE worker_id = $worker OR ocr_worker_id = $worker`
	vars := map[string]any{
		"rid":    surrealmodels.NewRecordID("job_queue", jobID),
		"now":    time.Now(),
		"worker": workerID,
	}
	if _, err := surrealdb.Query[any](ctx, db, sql, vars); err != nil {
		return fmt.Errorf("heartbeat job %s: %w", jobID, err)
	}
	return nil
}

func (g *Gateway) ResetStalled(ctx context.Context, environment string, threshold time.Duration) (int, error) {
	db, err := g.dbFor(environment)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	cutoff := now.Add(-threshold)
	sql := `UPDATE job_queue SET status = $pending, worker_id = NONE, last_error = $marker, last_error_at = $now
		WHERE environment = $env AND status = $processing AND last_heartbeat_at < $cutoff`
	vars := map[string]any{
		"env":        environment,
		"pending":    models.JobStatusPending,
		"processing": models.JobStatusProcessing,
		"cutoff":     cutoff,
		"marker":     models.HealthAuthorMonitor,
		"now":        now,
	}
	reset, err := surrealdb.Query[[]any](ctx, db, sql, vars)
	if err != nil {
		return 0, fmt.Errorf("reset stalled extraction jobs in %s: %w", environment, err)
	}

	ocrSQL := `UPDATE job_queue SET status = $extractionDone, ocr_worker_id = NONE, last_error = $marker, last_error_at = $now
		WHERE environment = $env AND status = $ocrProcessing AND last_heartbeat_at < $cutoff`
	ocrVars := map[string]any{
		"env":            environment,
		"extractionDone": models.JobStatusExtractionDone,
		"ocrProcessing":  models.JobStatusOCRProcessing,
		"cutoff":         cutoff,
		"marker":         models.HealthAuthorMonitor,
		"now":            now,
	}
	ocrReset, err := surrealdb.Query[[]any](ctx, db, ocrSQL, ocrVars)
	if err != nil {
		return 0, fmt.Errorf("reset stalled OCR jobs in %s: %w", environment, err)
	}

	count := 0
	if reset != nil && len(*reset) > 0 {
		count += len((*reset)[0].Result)
	}
	if ocrReset != nil && len(*ocrReset) > 0 {
		count += len((*ocrReset)[0].Result)
	}
	return count, nil
}

func (g *Gateway) ListEnvironments(ctx context.Context) ([]models.Environment, error) {
	envs := g.conns.Environments()
	out := make([]models.Environment, 0, len(envs))
	for _, e := range envs {
		out = append(out, models.Environment{Name: e.Name, OCREnabled: e.OCREnabled})
	}
	return out, nil
}

func (g *Gateway) CountPending(ctx context.Context, environment string) (int, error) {
	db, err := g.dbFor(environment)
	if err != nil {
		return 0, err
	}

	sql := "SELECT count() AS cnt FROM job_queue WHERE environment = $env AND status = $pending GROUP ALL"
	vars := map[string]any{"env": environment, "pending": models.JobStatusPending}

	type countResult struct {
		Cnt int `json:"cnt"`
	}

	results, err := surrealdb.Query[[]countResult](ctx, db, sql, vars)
	if err != nil {
		return 0, fmt.Errorf("count pending jobs in %s: %w", environment, err)
	}
	if results != nil && len(*results) > 0 && len((*results)[0].Result) > 0 {
		return (*results)[0].Result[0].Cnt, nil
	}
	return 0, nil
}

func (g *Gateway) CountErrors(ctx context.Context, environment string) (int, error) {
	db, err := g.dbFor(environment)
	if err != nil {
		return 0, err
	}

	sql := "SELECT count() AS cnt FROM job_queue WHERE environment = $env AND status = $error GROUP ALL"
	vars := map[string]any{"env": environment, "error": models.JobStatusError}

	type countResult struct {
		Cnt int `json:"cnt"`
	}

	results, err := surrealdb.Query[[]countResult](ctx, db, sql, vars)
	if err != nil {
		return 0, fmt.Errorf("count error jobs in %s: %w", environment, err)
	}
	if results != nil && len(*results) > 0 && len((*results)[0].Result) > 0 {
		return (*results)[0].Result[0].Cnt, nil
	}
	return 0, nil
}

var _ interfaces.QueueGateway = (*Gateway)(nil)
