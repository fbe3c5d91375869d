package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// SessionPrefix namespaces the credential keys inside a shared badger database.
const SessionPrefix = "session:"

type BadgerStore struct {
	db     *badger.DB
	prefix string
	owned  bool
}

// NewBadgerStore wraps an already opened database. The caller keeps ownership of db.
func NewBadgerStore(db *badger.DB, prefix string) *BadgerStore {
	return &BadgerStore{db: db, prefix: prefix}
}

// OpenBadgerStore opens (or creates) the database at path and owns it until Close.
func OpenBadgerStore(path string, log *slog.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger at %s: %w", path, err)
	}
	log.Debug("Credential store opened", "path", path)
	return &BadgerStore{db: db, prefix: SessionPrefix, owned: true}, nil
}

func (b *BadgerStore) Get(key string) (string, bool, error) {
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(b.key(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(value), true, nil
}

func (b *BadgerStore) Set(key, value string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(b.key(key), []byte(value))
	})
}

// Remove deletes every key in a single transaction.
func (b *BadgerStore) Remove(keys ...string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		for _, k := range keys {
			if err := txn.Delete(b.key(k)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Apply writes set and deletes remove in one transaction.
func (b *BadgerStore) Apply(set map[string]string, remove ...string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		for k, v := range set {
			if err := txn.Set(b.key(k), []byte(v)); err != nil {
				return err
			}
		}
		for _, k := range remove {
			if err := txn.Delete(b.key(k)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Keys lists the stored keys, without the namespace prefix, in lexicographic order.
func (b *BadgerStore) Keys() ([]string, error) {
	var keys []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(b.prefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, strings.TrimPrefix(string(it.Item().Key()), b.prefix))
		}
		return nil
	})
	return keys, err
}

// Close releases the database when the store opened it itself.
func (b *BadgerStore) Close() error {
	if !b.owned {
		return nil
	}
	return b.db.Close()
}

func (b *BadgerStore) key(k string) []byte {
	return []byte(b.prefix + k)
}
