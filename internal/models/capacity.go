package models

import "time"

// ResourceProfile is the fixed CPU/RAM cost of running one worker of a kind.
type ResourceProfile struct {
	CPUUnits float64
	RAMUnits float64
}

// CapacityAllocation records the resources reserved for one live worker.
type CapacityAllocation struct {
	WorkerID  string    `json:"worker_id"`
	Kind      JobKind   `json:"kind"`
	CPUUnits  float64   `json:"cpu_units"`
	RAMUnits  float64   `json:"ram_units"`
	StartedAt time.Time `json:"started_at"`
}
