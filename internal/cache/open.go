package cache

import (
	"context"
	"fmt"

	"github.com/rickgao/tradeline/internal/config"
	"github.com/rickgao/tradeline/internal/database"
)

// Open builds the Store selected by cfg.Backend.
func Open(ctx context.Context, cfg config.CacheConfig) (Store, error) {
	switch cfg.Backend {
	case "", "file":
		return OpenFileStore(cfg.Path)
	case "postgres":
		pool, err := database.Connect(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("connect cache database: %w", err)
		}
		s, err := NewPostgresStore(ctx, pool, cfg.Postgres.Table, true)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return s, nil
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
