package surrealdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlobStore_PutAndGet(t *testing.T) {
	db := testDB(t)
	store := NewBlobStore(db, testLogger())
	ctx := context.Background()

	data := []byte("hello world PDF content")
	require.NoError(t, store.Put(ctx, "dev/req/20250101-12345/source.pdf", data))

	got, err := store.Get(ctx, "dev/req/20250101-12345/source.pdf")
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestBlobStore_Delete(t *testing.T) {
	db := testDB(t)
	store := NewBlobStore(db, testLogger())
	ctx := context.Background()

	data := []byte("temporary page image")
	require.NoError(t, store.Put(ctx, "dev/req/test/page-1.png", data))

	require.NoError(t, store.Delete(ctx, "dev/req/test/page-1.png"))

	_, err := store.Get(ctx, "dev/req/test/page-1.png")
	assert.Error(t, err, "expected error getting deleted artifact")
}

func TestBlobStore_Overwrite(t *testing.T) {
	db := testDB(t)
	store := NewBlobStore(db, testLogger())
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "dev/req/test/page-1.png", []byte("version1")))

	newData := []byte("version2 - updated content")
	require.NoError(t, store.Put(ctx, "dev/req/test/page-1.png", newData))

	got, err := store.Get(ctx, "dev/req/test/page-1.png")
	require.NoError(t, err)
	assert.Equal(t, newData, got)
}

func TestBlobStore_BinaryData(t *testing.T) {
	db := testDB(t)
	store := NewBlobStore(db, testLogger())
	ctx := context.Background()

	data := make([]byte, 256)
	for i := range data {
		data[i] = byte(i)
	}

	require.NoError(t, store.Put(ctx, "dev/req/test/binary.pdf", data))

	got, err := store.Get(ctx, "dev/req/test/binary.pdf")
	require.NoError(t, err)
	assert.Equal(t, data, got, "binary data round-trip failed")
}
