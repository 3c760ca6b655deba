package storage

import (
	"os"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ReignOfTea/protest-dash/internal/errors"
)

func setupTestDB(t *testing.T) *badger.DB {
	t.Helper()

	dir, err := os.MkdirTemp("", "badger-test")
	require.NoError(t, err)

	opts := badger.DefaultOptions(dir).WithInMemory(true)
	opts.Logger = nil // Disable logging for tests
	opts.Dir = ""
	opts.ValueDir = ""

	db, err := badger.Open(opts)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
		os.RemoveAll(dir)
	})

	return db
}

type testEntity struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

func (e *testEntity) GetID() string {
	return e.ID
}

func TestBadgerStore_CRUD(t *testing.T) {
	store := NewBadgerStore(setupTestDB(t), "test")

	t.Run("Create and Get", func(t *testing.T) {
		require.NoError(t, store.Create(&testEntity{ID: "one", Value: "first"}))

		var got testEntity
		require.NoError(t, store.Get("one", &got))
		assert.Equal(t, "first", got.Value)
	})

	t.Run("Create rejects duplicates", func(t *testing.T) {
		require.NoError(t, store.Create(&testEntity{ID: "dup", Value: "a"}))
		err := store.Create(&testEntity{ID: "dup", Value: "b"})
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	})

	t.Run("Get missing is NotFound", func(t *testing.T) {
		var got testEntity
		err := store.Get("never-created", &got)
		assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
	})

	t.Run("Update overwrites", func(t *testing.T) {
		require.NoError(t, store.Create(&testEntity{ID: "upd", Value: "before"}))
		require.NoError(t, store.Update(&testEntity{ID: "upd", Value: "after"}))

		var got testEntity
		require.NoError(t, store.Get("upd", &got))
		assert.Equal(t, "after", got.Value)
	})

	t.Run("Update missing is NotFound", func(t *testing.T) {
		err := store.Update(&testEntity{ID: "ghost", Value: "x"})
		assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
	})

	t.Run("Set upserts", func(t *testing.T) {
		require.NoError(t, store.Set(&testEntity{ID: "ups", Value: "v1"}))
		require.NoError(t, store.Set(&testEntity{ID: "ups", Value: "v2"}))

		var got testEntity
		require.NoError(t, store.Get("ups", &got))
		assert.Equal(t, "v2", got.Value)
	})

	t.Run("Delete removes", func(t *testing.T) {
		require.NoError(t, store.Create(&testEntity{ID: "gone", Value: "x"}))
		require.NoError(t, store.Delete("gone"))

		var got testEntity
		err := store.Get("gone", &got)
		assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
	})
}

func TestBadgerStore_List(t *testing.T) {
	db := setupTestDB(t)
	store := NewBadgerStore(db, "listed")
	other := NewBadgerStore(db, "other")

	require.NoError(t, store.Create(&testEntity{ID: "a", Value: "1"}))
	require.NoError(t, store.Create(&testEntity{ID: "b", Value: "2"}))
	require.NoError(t, other.Create(&testEntity{ID: "c", Value: "3"}))

	var results []testEntity
	require.NoError(t, store.List(&results))

	assert.Len(t, results, 2, "prefixes must not leak across stores")
}

func TestBadgerStore_TTLExpiry(t *testing.T) {
	store := NewBadgerStore(setupTestDB(t), "ttl")

	require.NoError(t, store.CreateWithTTL(&testEntity{ID: "ephemeral", Value: "x"}, 50*time.Millisecond))

	var got testEntity
	require.NoError(t, store.Get("ephemeral", &got))

	time.Sleep(120 * time.Millisecond)

	err := store.Get("ephemeral", &got)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound), "expired entries must read as missing")
}
