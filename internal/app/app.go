// Package app wires every component into a running process. Grounded on
// a single-entry wiring function: resolve config, construct clients and
// storage, build services, hand back one struct cmd/extractor-supervisor
// can start and stop.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/paraito/registre-extractor/internal/capacity"
	"github.com/paraito/registre-extractor/internal/clients/anthropic"
	"github.com/paraito/registre-extractor/internal/clients/gemini"
	"github.com/paraito/registre-extractor/internal/common"
	"github.com/paraito/registre-extractor/internal/extractor"
	"github.com/paraito/registre-extractor/internal/health"
	"github.com/paraito/registre-extractor/internal/interfaces"
	"github.com/paraito/registre-extractor/internal/models"
	"github.com/paraito/registre-extractor/internal/ocr"
	"github.com/paraito/registre-extractor/internal/queue"
	"github.com/paraito/registre-extractor/internal/ratelimit"
	"github.com/paraito/registre-extractor/internal/storage/surrealdb"
	"github.com/paraito/registre-extractor/internal/supervisor"
	"github.com/paraito/registre-extractor/internal/worker"
)

// controlEnvironment names the environment whose connection backs the
// host-wide rate limiter and capacity manager. Rate-limit buckets and
// capacity ceilings are process-wide resources, not per-environment
// ones, so they live on a single designated connection rather than one
// per environment; dev is the designated one since every deployment
// configures it.
const controlEnvironment = "dev"

// App holds every initialized component. cmd/extractor-supervisor
// constructs one, calls Run, and calls Close on shutdown.
type App struct {
	Config     *common.Config
	Logger     *common.Logger
	Conns      *surrealdb.ConnSet
	Supervisor *supervisor.Supervisor
	StartTime  time.Time
}

// NewApp loads configuration, connects to every environment, builds the
// Queue Gateway, Rate Limiter, Capacity Manager, Worker Registry,
// Extractor Registry, OCR Pipeline, and Health Monitor, and returns a
// Supervisor ready to run.
func NewApp(configPath string) (*App, error) {
	start := time.Now()

	common.LoadVersionFromFile()

	if configPath == "" {
		configPath = os.Getenv("EXTRACTOR_CONFIG")
	}
	if configPath == "" {
		configPath = "config/extractor.toml"
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = ""
		}
	}

	var config *common.Config
	var err error
	if configPath != "" {
		config, err = common.LoadConfig(configPath)
	} else {
		config, err = common.LoadConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := common.NewLogger(config.Logging.Level)

	ctx := context.Background()

	envConfigs := make([]surrealdb.EnvironmentConfig, 0, len(config.Envs))
	for name, e := range config.Envs {
		envConfigs = append(envConfigs, surrealdb.EnvironmentConfig{
			Name:       name,
			Address:    e.Address,
			Username:   e.Username,
			Password:   e.Password,
			Namespace:  e.Namespace,
			Database:   e.Database,
			OCREnabled: e.OCREnabled,
		})
	}

	conns, err := surrealdb.NewConnSet(ctx, logger, envConfigs)
	if err != nil {
		return nil, fmt.Errorf("failed to connect environments: %w", err)
	}

	controlDB, ok := conns.Conn(controlEnvironment)
	if !ok {
		return nil, fmt.Errorf("control environment %q not configured", controlEnvironment)
	}

	gw := queue.NewGateway(conns, logger)

	limiter, err := ratelimit.NewSharedLimiter(ctx, controlDB, logger, nil)
	if err != nil {
		conns.Close()
		return nil, fmt.Errorf("failed to initialize rate limiter: %w", err)
	}

	capMgr := capacity.NewSharedManager(controlDB, logger, config.Capacity.MaxCPUUnits, config.Capacity.MaxRAMUnits,
		config.Capacity.ReserveCPUPercent, config.Capacity.ReserveRAMPercent)

	workerRegistry := worker.NewRegistry()
	extractorRegistry := extractor.NewRegistry()
	for _, kind := range []models.JobKind{
		models.JobKindExtraction, models.JobKindOCRIndex, models.JobKindOCRActe,
		models.JobKindREQ, models.JobKindRDPRM,
	} {
		extractorRegistry.Register(extractor.NewStub(kind))
	}

	blob := surrealdb.NewBlobStore(controlDB, logger)

	geminiClient, err := gemini.NewClient(ctx, config.Clients.Gemini.APIKey, gemini.WithLogger(logger), gemini.WithModel(config.Clients.Gemini.Model))
	if err != nil {
		conns.Close()
		return nil, fmt.Errorf("failed to initialize gemini client: %w", err)
	}

	var consensus interfaces.VisionClient
	if config.Clients.Anthropic.APIKey != "" {
		opts := []anthropic.ClientOption{anthropic.WithLogger(logger)}
		if config.Clients.Anthropic.Model != "" {
			opts = append(opts, anthropic.WithModel(anthropicsdk.Model(config.Clients.Anthropic.Model)))
		}
		consensus = anthropic.NewClient(config.Clients.Anthropic.APIKey, opts...)
	}

	pipeline := ocr.New(ocr.Config{
		Blob:            blob,
		Renderer:        &ocr.ShellRenderer{},
		Primary:         geminiClient,
		Consensus:       consensus,
		Limiter:         limiter,
		Logger:          logger,
		RequireAllPages: false,
	})

	monitor := health.New(health.Config{
		Queue:               gw,
		Workers:             workerRegistry,
		Capacity:            capMgr,
		Blob:                blob,
		Logger:              logger,
		ScanInterval:        config.Health.GetScanInterval(),
		StaleJobThreshold:   config.Health.GetStaleJobThreshold(),
		DeadWorkerThreshold: config.Health.GetDeadWorkerThreshold(),
		SnapshotInterval:    config.Health.GetSnapshotInterval(),
	})

	sup := supervisor.New(supervisor.Config{
		Queue:      gw,
		Registry:   workerRegistry,
		Capacity:   capMgr,
		Extractors: extractorRegistry,
		OCR:        pipeline,
		Monitor:    monitor,
		Logger:     logger,
		Plan: supervisor.WorkerPlan{
			ExtractionCount: config.Worker.ExtractionCount,
			OCRCount:        config.Worker.OCRCount,
		},
		PollInterval: config.Worker.GetPollInterval(),
	})

	logger.Info().Dur("startup", time.Since(start)).Msg("app initialized")

	return &App{
		Config:     config,
		Logger:     logger,
		Conns:      conns,
		Supervisor: sup,
		StartTime:  start,
	}, nil
}

// Close releases every environment connection.
func (a *App) Close() {
	a.Conns.Close()
}
