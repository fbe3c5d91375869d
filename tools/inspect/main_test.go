package main

import (
	"bytes"
	"chat-client/auth"
	"chat-client/session"
	"chat-client/storage"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func TestCollect_MasksTokens(t *testing.T) {
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	defer db.Close()
	store := storage.NewBadgerStore(db, storage.SessionPrefix)

	access, err := auth.GenerateToken("user-1", auth.KindAccess, []byte("k"), 10*time.Minute)
	req.NoError(err)
	req.NoError(store.Set(session.KeyAccessToken, access))
	req.NoError(store.Set(session.KeyRefreshToken, "opaque-refresh-token"))
	req.NoError(store.Set(session.KeyEmail, "alice@example.com"))

	rows, err := collect(store, time.Now())
	req.NoError(err)
	req.Len(rows, 3)

	byKey := make(map[string]row)
	for _, r := range rows {
		byKey[r.Key] = r
	}
	req.NotContains(byKey[session.KeyAccessToken].Value, access)
	req.Contains(byKey[session.KeyAccessToken].Expires, "in ")
	req.Equal("opaque", byKey[session.KeyRefreshToken].Expires)
	req.Equal("alice@example.com", byKey[session.KeyEmail].Value)

	var out bytes.Buffer
	render(&out, rows)
	req.Contains(out.String(), "alice@example.com")
	req.NotContains(out.String(), access)
}

func TestMask(t *testing.T) {
	req := require.New(t)
	req.Equal("****", mask("abcd"))
	req.Equal("abcdef… (10 chars)", mask("abcdefghij"))
}
