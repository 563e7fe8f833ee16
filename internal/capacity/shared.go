package capacity

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/paraito/registre-extractor/internal/common"
	"github.com/paraito/registre-extractor/internal/interfaces"
	"github.com/paraito/registre-extractor/internal/models"
)

// SharedManager admits workers against a host-wide ceiling shared across
// every supervisor process via SurrealDB, summing live allocation rows
// rather than an in-process counter.
type SharedManager struct {
	db         *surrealdb.DB
	logger     *common.Logger
	cpuCeiling float64
	ramCeiling float64
}

// NewSharedManager creates a SharedManager with the given ceilings,
// withholding reserveCPUPercent/reserveRAMPercent of each for the OS.
func NewSharedManager(db *surrealdb.DB, logger *common.Logger, cpuCeiling, ramCeiling, reserveCPUPercent, reserveRAMPercent float64) *SharedManager {
	return &SharedManager{
		db:         db,
		logger:     logger,
		cpuCeiling: reservedCeiling(cpuCeiling, reserveCPUPercent),
		ramCeiling: reservedCeiling(ramCeiling, reserveRAMPercent),
	}
}

func (m *SharedManager) Admit(ctx context.Context, workerID string, kind models.JobKind, profile models.ResourceProfile) (bool, error) {
	cpuUsed, ramUsed, err := m.totals(ctx)
	if err != nil {
		return false, err
	}

	if cpuUsed+profile.CPUUnits > m.cpuCeiling || ramUsed+profile.RAMUnits > m.ramCeiling {
		return false, nil
	}

	sql := `CREATE $rid SET worker_id = $worker, kind = $kind, cpu_units = $cpu, ram_units = $ram, started_at = $now`
	vars := map[string]any{
		"rid":    surrealmodels.NewRecordID("capacity_allocation", workerID),
		"worker": workerID,
		"kind":   kind,
		"cpu":    profile.CPUUnits,
		"ram":    profile.RAMUnits,
		"now":    time.Now(),
	}
	if _, err := surrealdb.Query[any](ctx, m.db, sql, vars); err != nil {
		return false, fmt.Errorf("create capacity allocation for %s: %w", workerID, err)
	}
	return true, nil
}

func (m *SharedManager) totals(ctx context.Context) (cpu float64, ram float64, err error) {
	sql := "SELECT math::sum(cpu_units) AS cpu, math::sum(ram_units) AS ram FROM capacity_allocation GROUP ALL"
	type totalsResult struct {
		CPU float64 `json:"cpu"`
		RAM float64 `json:"ram"`
	}
	results, err := surrealdb.Query[[]totalsResult](ctx, m.db, sql, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("sum capacity allocations: %w", err)
	}
	if results != nil && len(*results) > 0 && len((*results)[0].Result) > 0 {
		r := (*results)[0].Result[0]
		return r.CPU, r.RAM, nil
	}
	return 0, 0, nil
}

func (m *SharedManager) Release(ctx context.Context, workerID string) error {
	rid := surrealmodels.NewRecordID("capacity_allocation", workerID)
	if _, err := surrealdb.Delete[models.CapacityAllocation](ctx, m.db, rid); err != nil {
		return fmt.Errorf("release capacity allocation for %s: %w", workerID, err)
	}
	return nil
}

func (m *SharedManager) Allocations(ctx context.Context) ([]models.CapacityAllocation, error) {
	sql := "SELECT worker_id, kind, cpu_units, ram_units, started_at FROM capacity_allocation"
	results, err := surrealdb.Query[[]models.CapacityAllocation](ctx, m.db, sql, nil)
	if err != nil {
		return nil, fmt.Errorf("list capacity allocations: %w", err)
	}
	if results != nil && len(*results) > 0 {
		return (*results)[0].Result, nil
	}
	return nil, nil
}

var _ interfaces.CapacityManager = (*SharedManager)(nil)
