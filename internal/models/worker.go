package models

import "time"

// WorkerStatus is a Worker's lifecycle state.
type WorkerStatus string

const (
	WorkerStatusIdle     WorkerStatus = "idle"
	WorkerStatusBusy     WorkerStatus = "busy"
	WorkerStatusDraining WorkerStatus = "draining"
	WorkerStatusOffline  WorkerStatus = "offline"
)

// Worker is an in-process executor's liveness record.
type Worker struct {
	ID               string       `json:"id"`
	KindCapabilities []JobKind    `json:"kind_capabilities"`
	Status           WorkerStatus `json:"status"`
	LastHeartbeat    time.Time    `json:"last_heartbeat"`
	CurrentJobID     *string      `json:"current_job_id,omitempty"`
	JobsCompleted    int          `json:"jobs_completed"`
	JobsFailed       int          `json:"jobs_failed"`
}

// Capable returns true if the worker can handle the given kind.
func (w *Worker) Capable(kind JobKind) bool {
	for _, k := range w.KindCapabilities {
		if k == kind {
			return true
		}
	}
	return false
}
