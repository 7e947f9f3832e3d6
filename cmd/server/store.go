package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	domain "github.com/pricecycle/backend/internal/domain/automation"
	"github.com/pricecycle/backend/internal/infrastructure/cache"
	"github.com/pricecycle/backend/internal/infrastructure/config"
	"github.com/pricecycle/backend/internal/infrastructure/migration"
	"github.com/pricecycle/backend/internal/infrastructure/persistence"
	"github.com/pricecycle/backend/internal/interfaces/http/handler"
)

// stateBackend is the run state store chosen by store.driver together with
// its health check and teardown.
type stateBackend struct {
	store  domain.StateStore
	checks map[string]handler.HealthCheck
	closer func() error
}

func (b *stateBackend) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer()
}

func openStateStore(cfg *config.Config, log *zap.Logger) (*stateBackend, error) {
	switch cfg.Store.Driver {
	case "", config.StoreMemory:
		log.Warn("Run state is kept in memory and will not survive a restart")
		return &stateBackend{store: cache.NewInMemoryStateStore(), checks: map[string]handler.HealthCheck{}}, nil

	case config.StoreSQLite, config.StorePostgres:
		db, err := persistence.NewDatabase(cfg.Store, persistence.Options{
			Logger:         log,
			EnableTracing:  cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
			DatabaseConfig: cfg.Database,
		})
		if err != nil {
			return nil, err
		}
		if err := prepareSchema(cfg, db, log); err != nil {
			_ = db.Close()
			return nil, err
		}
		return &stateBackend{
			store: persistence.NewGormStateStore(db.DB),
			checks: map[string]handler.HealthCheck{
				"database": func(context.Context) error { return db.Ping() },
			},
			closer: db.Close,
		}, nil

	case config.StoreRedis:
		rs, err := cache.NewRedisStateStore(cfg.Redis)
		if err != nil {
			return nil, err
		}
		return &stateBackend{
			store:  rs,
			checks: map[string]handler.HealthCheck{"redis": rs.Ping},
			closer: rs.Close,
		}, nil

	case config.StoreBadger:
		bs, err := cache.NewBadgerStateStore(cfg.Badger, log)
		if err != nil {
			return nil, err
		}
		return &stateBackend{store: bs, checks: map[string]handler.HealthCheck{}, closer: bs.Close}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

// prepareSchema creates the run state table. Postgres goes through the
// versioned migrations on a connection of their own, sqlite is auto-migrated.
func prepareSchema(cfg *config.Config, db *persistence.Database, log *zap.Logger) error {
	if db.Driver != config.StorePostgres {
		return db.AutoMigrate()
	}
	m, err := migration.NewFromDSN(cfg.Database.DSN(), log)
	if err != nil {
		return err
	}
	return errors.Join(m.Up(), m.Close())
}
