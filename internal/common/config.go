// Package common provides shared ambient utilities: configuration,
// logging, startup banners, and version metadata.
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for the extraction platform.
type Config struct {
	Worker   WorkerConfig             `toml:"worker"`
	Capacity CapacityConfig           `toml:"capacity"`
	Health   HealthConfig             `toml:"health"`
	Clients  ClientsConfig            `toml:"clients"`
	Logging  LoggingConfig            `toml:"logging"`
	Envs     map[string]EnvironmentCfg `toml:"environments"`
}

// WorkerConfig controls how many workers of each runtime the Supervisor
// starts and how often they poll the queue.
type WorkerConfig struct {
	ExtractionCount int    `toml:"extraction_count"`
	OCRCount        int    `toml:"ocr_count"`
	PollInterval    string `toml:"poll_interval"`
}

// GetPollInterval parses and returns the poll interval duration.
func (c *WorkerConfig) GetPollInterval() time.Duration {
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil {
		return 2 * time.Second
	}
	return d
}

// CapacityConfig sets the host-wide resource ceilings the Capacity
// Manager admits workers against, and the slice of each withheld for the
// OS rather than handed to worker admission.
type CapacityConfig struct {
	MaxCPUUnits       float64 `toml:"max_cpu_units"`
	MaxRAMUnits       float64 `toml:"max_ram_units"`
	ReserveCPUPercent float64 `toml:"reserve_cpu_percent"`
	ReserveRAMPercent float64 `toml:"reserve_ram_percent"`
}

// HealthConfig controls the Health Monitor's polling cadence and the
// thresholds it uses to reclaim stalled jobs and dead workers.
type HealthConfig struct {
	ScanInterval         string `toml:"scan_interval"`
	StaleJobThreshold    string `toml:"stale_job_threshold"`
	DeadWorkerThreshold  string `toml:"dead_worker_threshold"`
	SnapshotInterval     string `toml:"snapshot_interval"`
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func (c *HealthConfig) GetScanInterval() time.Duration {
	return parseDurationOr(c.ScanInterval, 10*time.Second)
}

func (c *HealthConfig) GetStaleJobThreshold() time.Duration {
	return parseDurationOr(c.StaleJobThreshold, 15*time.Minute)
}

func (c *HealthConfig) GetDeadWorkerThreshold() time.Duration {
	return parseDurationOr(c.DeadWorkerThreshold, 90*time.Second)
}

func (c *HealthConfig) GetSnapshotInterval() time.Duration {
	return parseDurationOr(c.SnapshotInterval, 5*time.Minute)
}

// EnvironmentCfg is one logical environment's connection parameters.
type EnvironmentCfg struct {
	Address    string `toml:"address"`
	Username   string `toml:"username"`
	Password   string `toml:"password"`
	Namespace  string `toml:"namespace"`
	Database   string `toml:"database"`
	OCREnabled bool   `toml:"ocr_enabled"`
}

// ClientsConfig holds API client configurations for the OCR pipeline's
// vision/text calls.
type ClientsConfig struct {
	Gemini    GeminiConfig    `toml:"gemini"`
	Anthropic AnthropicConfig `toml:"anthropic"`
}

// GeminiConfig holds Gemini API configuration.
type GeminiConfig struct {
	APIKey string `toml:"api_key"`
	Model  string `toml:"model"`
}

// AnthropicConfig holds Anthropic API configuration for the consensus
// line-count second model.
type AnthropicConfig struct {
	APIKey string `toml:"api_key"`
	Model  string `toml:"model"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level   string   `toml:"level"`
	Format  string   `toml:"format"`
	Outputs []string `toml:"outputs"`
}

// NewDefaultConfig returns a Config with sensible defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Worker: WorkerConfig{
			ExtractionCount: 3,
			OCRCount:        2,
			PollInterval:    "2s",
		},
		Capacity: CapacityConfig{
			MaxCPUUnits:       4,
			MaxRAMUnits:       8,
			ReserveCPUPercent: 0,
			ReserveRAMPercent: 0,
		},
		Health: HealthConfig{
			ScanInterval:        "10s",
			StaleJobThreshold:   "15m",
			DeadWorkerThreshold: "90s",
			SnapshotInterval:    "5m",
		},
		Clients: ClientsConfig{
			Gemini: GeminiConfig{
				Model: "gemini-2.0-flash",
			},
			Anthropic: AnthropicConfig{
				Model: "claude-3-5-sonnet-latest",
			},
		},
		Logging: LoggingConfig{
			Level:   "info",
			Format:  "json",
			Outputs: []string{"console"},
		},
		Envs: map[string]EnvironmentCfg{
			"dev":     {Namespace: "registre", Database: "dev", OCREnabled: true},
			"staging": {Namespace: "registre", Database: "staging", OCREnabled: true},
			"prod":    {Namespace: "registre", Database: "prod", OCREnabled: true},
		},
	}
}

// LoadConfig loads configuration from files with environment overrides.
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)
	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config. Env
// always wins over the file.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("WORKER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Worker.ExtractionCount = n
		}
	}
	if v := os.Getenv("OCR_WORKER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Worker.OCRCount = n
		}
	}
	if v := os.Getenv("POLL_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Worker.PollInterval = fmt.Sprintf("%dms", n)
		}
	}
	if v := os.Getenv("SERVER_MAX_CPU"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Capacity.MaxCPUUnits = f
		}
	}
	if v := os.Getenv("SERVER_MAX_RAM"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Capacity.MaxRAMUnits = f
		}
	}
	if v := os.Getenv("SERVER_RESERVE_CPU_PERCENT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Capacity.ReserveCPUPercent = f
		}
	}
	if v := os.Getenv("SERVER_RESERVE_RAM_PERCENT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Capacity.ReserveRAMPercent = f
		}
	}
	if v := os.Getenv("STALE_JOB_THRESHOLD_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Health.StaleJobThreshold = fmt.Sprintf("%dms", n)
		}
	}
	if v := os.Getenv("DEAD_WORKER_THRESHOLD_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Health.DeadWorkerThreshold = fmt.Sprintf("%dms", n)
		}
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		config.Clients.Gemini.APIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		config.Clients.Anthropic.APIKey = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}

	applyEnvironmentOverride(config, "DEV")
	applyEnvironmentOverride(config, "STAGING")
	applyEnvironmentOverride(config, "PROD")
}

// applyEnvironmentOverride reads DEV_DB_URL/DEV_DB_SERVICE_KEY/OCR_DEV-style
// variables for one logical environment.
func applyEnvironmentOverride(config *Config, prefix string) {
	name := strings.ToLower(prefix)
	env, ok := config.Envs[name]
	if !ok {
		env = EnvironmentCfg{Namespace: "registre", Database: name}
	}

	if v := os.Getenv(prefix + "_DB_URL"); v != "" {
		env.Address = v
	}
	if v := os.Getenv(prefix + "_DB_SERVICE_KEY"); v != "" {
		env.Password = v
		if env.Username == "" {
			env.Username = "root"
		}
	}
	if v := os.Getenv("OCR_" + prefix); v != "" {
		env.OCREnabled = v == "true" || v == "1"
	}

	config.Envs[name] = env
}

// IsProduction returns true if the named environment is prod.
func IsProduction(environment string) bool {
	env := strings.ToLower(strings.TrimSpace(environment))
	return env == "production" || env == "prod"
}
