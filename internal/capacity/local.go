// Package capacity implements the Capacity Manager: first-come,
// first-served admission of worker slots against the host's CPU/RAM
// ceilings.
package capacity

import (
	"context"
	"sync"
	"time"

	"github.com/paraito/registre-extractor/internal/interfaces"
	"github.com/paraito/registre-extractor/internal/models"
)

// LocalManager admits workers against in-process ceilings, guarded by a
// mutex. Use this for a single-process supervisor; a multi-process
// deployment should use SharedManager instead so ceilings are enforced
// across the whole host.
type LocalManager struct {
	mu          sync.Mutex
	cpuCeiling  float64
	ramCeiling  float64
	allocations map[string]models.CapacityAllocation
}

// NewLocalManager creates a LocalManager with the given ceilings, withholding
// reserveCPUPercent/reserveRAMPercent of each ceiling for the OS.
func NewLocalManager(cpuCeiling, ramCeiling, reserveCPUPercent, reserveRAMPercent float64) *LocalManager {
	return &LocalManager{
		cpuCeiling:  reservedCeiling(cpuCeiling, reserveCPUPercent),
		ramCeiling:  reservedCeiling(ramCeiling, reserveRAMPercent),
		allocations: make(map[string]models.CapacityAllocation),
	}
}

// reservedCeiling withholds reservePercent of ceiling, the slice an
// operator sets aside for the OS rather than handing to worker admission.
func reservedCeiling(ceiling, reservePercent float64) float64 {
	return ceiling * (1 - reservePercent/100)
}

func (m *LocalManager) Admit(ctx context.Context, workerID string, kind models.JobKind, profile models.ResourceProfile) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var cpuUsed, ramUsed float64
	for _, a := range m.allocations {
		cpuUsed += a.CPUUnits
		ramUsed += a.RAMUnits
	}

	if cpuUsed+profile.CPUUnits > m.cpuCeiling || ramUsed+profile.RAMUnits > m.ramCeiling {
		return false, nil
	}

	m.allocations[workerID] = models.CapacityAllocation{
		WorkerID:  workerID,
		Kind:      kind,
		CPUUnits:  profile.CPUUnits,
		RAMUnits:  profile.RAMUnits,
		StartedAt: time.Now(),
	}
	return true, nil
}

func (m *LocalManager) Release(ctx context.Context, workerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.allocations, workerID)
	return nil
}

func (m *LocalManager) Allocations(ctx context.Context) ([]models.CapacityAllocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.CapacityAllocation, 0, len(m.allocations))
	for _, a := range m.allocations {
		out = append(out, a)
	}
	return out, nil
}

var _ interfaces.CapacityManager = (*LocalManager)(nil)
