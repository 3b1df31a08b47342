package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	var cfg Config
	cfg.Cache.Database = filepath.Join(t.TempDir(), "nested", "cache.db")
	store, err := NewStore(&cfg)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreResponses(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.StoreResponse("abc", []byte("payload"), 100))
	data, ok := store.GetResponse("abc", 50)
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), data)

	_, ok = store.GetResponse("abc", 101)
	assert.False(t, ok, "expired rows are not served")

	require.NoError(t, store.StoreResponse("abc", []byte("newer"), 200))
	data, _ = store.GetResponse("abc", 150)
	assert.Equal(t, []byte("newer"), data, "storing the same hash replaces the row")

	n, err := store.CountResponses()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, store.StoreResponse("old", []byte("x"), 10))
	require.NoError(t, store.DeleteBefore(150))
	n, _ = store.CountResponses()
	assert.Equal(t, 1, n)

	require.NoError(t, store.DeleteAllResponses())
	n, _ = store.CountResponses()
	assert.Equal(t, 0, n)
}

func TestStoreUsers(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.AddUser("admin", "hunter2", 1))
	assert.True(t, store.TestUser("admin", "hunter2"))
	assert.True(t, store.TestUser("admin", "hunter2"), "second check is served by the user cache")
	assert.False(t, store.TestUser("admin", "wrong"))
	assert.False(t, store.TestUser("nobody", "hunter2"))

	assert.Error(t, store.AddUser("", "pw", 1))
	assert.Error(t, store.AddUser("someone", "", 1))
}

func TestStoreUsersPasswordRotation(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.AddUser("admin", "old-secret", 1))
	require.True(t, store.TestUser("admin", "old-secret"))

	require.NoError(t, store.AddUser("admin", "new-secret", 1))
	assert.False(t, store.TestUser("admin", "old-secret"), "a rotated password stops working at once")
	assert.True(t, store.TestUser("admin", "new-secret"))

	_, err := store.db.Exec("DELETE FROM users WHERE user = ?", "admin")
	require.NoError(t, err)
	assert.False(t, store.TestUser("admin", "new-secret"))
}
