//go:generate go run go.uber.org/mock/mockgen -source=worker.go -destination=../../mocks/mock_worker.go -package=mocks
package workers

import (
	"context"
	"reflect"
	"time"
)

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// SessionKeeper is the part of the session manager the keepalive worker drives.
type SessionKeeper interface {
	Keepalive(ctx context.Context, lead, interval time.Duration) error
	Logout()
}

// WorkerName uses reflection to retrieve the type name of the worker for logging.
func WorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
