package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flemzord/seline/internal/config"
	"github.com/flemzord/seline/internal/conversation"
	"github.com/flemzord/seline/modules/memory/postgres"
	"github.com/flemzord/seline/modules/memory/sqlite"
)

// OpenStore opens the configured conversation store. Stores backed by a
// database also implement core.Closer.
func OpenStore(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (conversation.Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		logger.Warn("storage: using in-memory store, history is lost on restart")
		return conversation.NewMemoryStore(), nil
	case config.DriverSQLite, "":
		s, err := sqlite.Open(ctx, cfg.SQLite, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DriverPostgres:
		s, err := postgres.Open(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("app: unknown storage driver %q", cfg.Driver)
	}
}
