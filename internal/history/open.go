package history

import (
	"context"
	"strings"

	"github.com/unkn0wn-root/reqflow/internal/errdef"
)

const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Open returns the store for backend; an empty backend means JSON.
func Open(ctx context.Context, backend, path string, maxEntries int) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendJSON:
		store := NewFileStore(path, maxEntries)
		if err := store.Load(); err != nil {
			return nil, err
		}
		return store, nil
	case BackendSQLite:
		return OpenSQLite(ctx, path, maxEntries)
	default:
		return nil, errdef.New(errdef.CodeConfig, "unknown history backend %q", backend)
	}
}
