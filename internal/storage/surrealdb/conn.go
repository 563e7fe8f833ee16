// Package surrealdb adapts SurrealDB as the backing store for the job
// queue, rate-limit buckets, capacity allocations, and blob artifacts. Each logical environment (dev, staging, prod) gets its
// own connection and namespace/database pair so that a stalled dev
// registry can never starve prod's queue.
package surrealdb

import (
	"context"
	"fmt"

	"github.com/paraito/registre-extractor/internal/common"
	"github.com/surrealdb/surrealdb.go"
)

// EnvironmentConfig is one environment's connection parameters.
type EnvironmentConfig struct {
	Name       string
	Address    string
	Username   string
	Password   string
	Namespace  string
	Database   string
	OCREnabled bool
}

// ConnSet holds one live *surrealdb.DB per configured environment.
type ConnSet struct {
	conns  map[string]*surrealdb.DB
	envs   map[string]EnvironmentConfig
	logger *common.Logger
}

var schemalessTables = []string{
	"job_queue", "rate_bucket", "capacity_allocation", "worker", "artifact",
}

// NewConnSet connects to every configured environment and defines the
// tables each one needs.
func NewConnSet(ctx context.Context, logger *common.Logger, envs []EnvironmentConfig) (*ConnSet, error) {
	cs := &ConnSet{
		conns:  make(map[string]*surrealdb.DB, len(envs)),
		envs:   make(map[string]EnvironmentConfig, len(envs)),
		logger: logger,
	}

	for _, env := range envs {
		db, err := surrealdb.New(env.Address)
		if err != nil {
			return nil, fmt.Errorf("connect to %s SurrealDB: %w", env.Name, err)
		}

		if _, err := db.SignIn(ctx, map[string]interface{}{
			"user": env.Username,
			"pass": env.Password,
		}); err != nil {
			return nil, fmt.Errorf("sign in to %s SurrealDB: %w", env.Name, err)
		}

		if err := db.Use(ctx, env.Namespace, env.Database); err != nil {
			return nil, fmt.Errorf("select namespace/database for %s: %w", env.Name, err)
		}

		for _, table := range schemalessTables {
			sql := fmt.Sprintf("DEFINE TABLE IF NOT EXISTS %s SCHEMALESS", table)
			if _, err := surrealdb.Query[any](ctx, db, sql, nil); err != nil {
				return nil, fmt.Errorf("define table %s in %s: %w", table, env.Name, err)
			}
		}

		cs.conns[env.Name] = db
		cs.envs[env.Name] = env

		logger.Info().
			Str("environment", env.Name).
			Str("namespace", env.Namespace).
			Str("database", env.Database).
			Bool("ocr_enabled", env.OCREnabled).
			Msg("environment storage connected")
	}

	return cs, nil
}

// Conn returns the live connection for an environment, or false if the
// environment is not configured.
func (cs *ConnSet) Conn(environment string) (*surrealdb.DB, bool) {
	db, ok := cs.conns[environment]
	return db, ok
}

// Environments returns the configured environment names in no particular
// order.
func (cs *ConnSet) Environments() []EnvironmentConfig {
	out := make([]EnvironmentConfig, 0, len(cs.envs))
	for _, e := range cs.envs {
		out = append(out, e)
	}
	return out
}

// Close closes every underlying connection.
func (cs *ConnSet) Close() {
	for name, db := range cs.conns {
		if err := db.Close(context.Background()); err != nil {
			cs.logger.Warn().Err(err).Str("environment", name).Msg("error closing SurrealDB connection")
		}
	}
}
