//go:generate go run go.uber.org/mock/mockgen -source=kv.go -destination=../mocks/mock_key_value_store.go -package=mocks
package storage

// KeyValueStore is the durable client-local storage used for the session credential set.
// Get reports false when the key is absent. Remove ignores keys that do not exist.
type KeyValueStore interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Remove(keys ...string) error
}

// BatchStore is a KeyValueStore able to write and remove several keys atomically.
// A crash never leaves part of a batch behind.
type BatchStore interface {
	KeyValueStore
	Apply(set map[string]string, remove ...string) error
}
