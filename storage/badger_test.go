package storage

import (
	"log/slog"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestBadgerStore_SetGetRemove(t *testing.T) {
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	defer db.Close()

	store := NewBadgerStore(db, SessionPrefix)

	// Given an empty store, reading returns absence without error
	_, ok, err := store.Get("access_token")
	req.NoError(err)
	req.False(ok)

	req.NoError(store.Set("access_token", "abc"))
	req.NoError(store.Set("user_id", "u-1"))

	value, ok, err := store.Get("access_token")
	req.NoError(err)
	req.True(ok)
	req.Equal("abc", value)

	keys, err := store.Keys()
	req.NoError(err)
	req.Equal([]string{"access_token", "user_id"}, keys)

	// When removing keys, including one that never existed
	req.NoError(store.Remove("access_token", "user_id", "refresh_token"))

	_, ok, err = store.Get("user_id")
	req.NoError(err)
	req.False(ok)
}

func TestBadgerStore_SurvivesReopen(t *testing.T) {
	req := require.New(t)
	dir := t.TempDir()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	store, err := OpenBadgerStore(dir, log)
	req.NoError(err)
	req.NoError(store.Set("email", "alice@example.com"))
	req.NoError(store.Close())

	reopened, err := OpenBadgerStore(dir, log)
	req.NoError(err)
	defer reopened.Close()

	value, ok, err := reopened.Get("email")
	req.NoError(err)
	req.True(ok)
	req.Equal("alice@example.com", value)
}

func TestBadgerStore_PrefixIsolation(t *testing.T) {
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	defer db.Close()

	first := NewBadgerStore(db, "a:")
	second := NewBadgerStore(db, "b:")
	req.NoError(first.Set("user_id", "alice"))

	_, ok, err := second.Get("user_id")
	req.NoError(err)
	req.False(ok)
	// Close on a borrowed database leaves it usable
	req.NoError(first.Close())
	req.NoError(second.Set("user_id", "bob"))
}

func TestMemoryStore(t *testing.T) {
	req := require.New(t)
	store := NewMemoryStore()
	req.NoError(store.Set("k", "v"))
	v, ok, err := store.Get("k")
	req.NoError(err)
	req.True(ok)
	req.Equal("v", v)
	req.NoError(store.Remove("k", "missing"))
	_, ok, _ = store.Get("k")
	req.False(ok)
}

func TestBadgerStore_Apply(t *testing.T) {
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	defer db.Close()

	store := NewBadgerStore(db, SessionPrefix)
	req.NoError(store.Set("user_id", "old"))
	req.NoError(store.Set("refresh_token", "stale"))

	// When a batch overwrites one key, adds another and drops a third
	err = store.Apply(map[string]string{"user_id": "new", "email": "new@example.com"}, "refresh_token")

	// Then the store holds exactly the new set
	req.NoError(err)
	keys, err := store.Keys()
	req.NoError(err)
	req.Equal([]string{"email", "user_id"}, keys)
	value, _, err := store.Get("user_id")
	req.NoError(err)
	req.Equal("new", value)
}
