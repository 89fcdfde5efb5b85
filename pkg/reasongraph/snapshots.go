package reasongraph

import (
	"context"
	"fmt"

	"github.com/cognicore/reasongraph/pkg/reasongraph/config"
	"github.com/cognicore/reasongraph/pkg/reasongraph/store"
	"github.com/cognicore/reasongraph/pkg/reasongraph/store/memstore"
	"github.com/cognicore/reasongraph/pkg/reasongraph/store/sqlite"
)

// OpenSnapshots opens the snapshot backend selected by cfg.
func OpenSnapshots(ctx context.Context, cfg config.StoreConfig) (store.Snapshotter, error) {
	switch cfg.Driver {
	case "", "memory":
		return memstore.New(), nil
	case "sqlite":
		st, err := sqlite.OpenSQLite(ctx, cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.Path, err)
		}
		return st, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}
