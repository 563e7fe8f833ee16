package surrealdb

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/paraito/registre-extractor/internal/common"
	"github.com/paraito/registre-extractor/internal/interfaces"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// BlobStore implements interfaces.BlobStore using SurrealDB, persisting
// source PDFs, rendered page images, and extracted text as base64
// payloads on an artifact record.
type BlobStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// artifactRecord is the SurrealDB record shape for the artifact table.
type artifactRecord struct {
	Key       string    `json:"key"`
	Data      string    `json:"data"` // base64-encoded
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewBlobStore creates a new BlobStore.
func NewBlobStore(db *surrealdb.DB, logger *common.Logger) *BlobStore {
	return &BlobStore{db: db, logger: logger}
}

// artifactRecordID sanitizes a key into a safe SurrealDB record ID.
func artifactRecordID(key string) string {
	return strings.NewReplacer(".", "_", "/", "_").Replace(key)
}

// maxCBORDocBytes is the maximum encoded document size for SurrealDB's CBOR wire format.
// Documents exceeding this limit cause opaque CBOR errors at the driver level.
const maxCBORDocBytes = 10_000_000

func (s *BlobStore) Put(ctx context.Context, key string, data []byte) error {
	// Base64 encoding expands data by ~33%. Reject early if the encoded size
	// would exceed SurrealDB's CBOR 10MB document limit.
	encodedSize := base64.StdEncoding.EncodedLen(len(data))
	if encodedSize > maxCBORDocBytes {
		return fmt.Errorf("artifact %s too large for storage: %d bytes encoded (limit %d)", key, encodedSize, maxCBORDocBytes)
	}

	now := time.Now()
	sql := `UPSERT $rid SET key = $key, data = $data, created_at = $created_at, updated_at = $updated_at`
	vars := map[string]any{
		"rid":        surrealmodels.NewRecordID("artifact", artifactRecordID(key)),
		"key":        key,
		"data":       base64.StdEncoding.EncodeToString(data),
		"created_at": now,
		"updated_at": now,
	}

	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to put artifact %s: %w", key, err)
	}
	return nil
}

func (s *BlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	rid := surrealmodels.NewRecordID("artifact", artifactRecordID(key))
	record, err := surrealdb.Select[artifactRecord](ctx, s.db, rid)
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact %s: %w", key, err)
	}
	if record == nil {
		return nil, fmt.Errorf("artifact not found: %s", key)
	}

	data, err := base64.StdEncoding.DecodeString(record.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode artifact data: %w", err)
	}
	return data, nil
}

func (s *BlobStore) Delete(ctx context.Context, key string) error {
	rid := surrealmodels.NewRecordID("artifact", artifactRecordID(key))
	if _, err := surrealdb.Delete[artifactRecord](ctx, s.db, rid); err != nil && !isNotFoundError(err) {
		return fmt.Errorf("failed to delete artifact %s: %w", key, err)
	}
	return nil
}

func isNotFoundError(err error) bool {
	return strings.Contains(err.Error(), "not found") || strings.Contains(err.Error(), "no record")
}

// Compile-time check
var _ interfaces.BlobStore = (*BlobStore)(nil)
