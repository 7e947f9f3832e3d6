package persistence

import (
	"fmt"
	"time"

	"github.com/pricecycle/backend/internal/infrastructure/config"
	"github.com/pricecycle/backend/internal/infrastructure/logger"
	"github.com/pricecycle/backend/internal/infrastructure/persistence/models"
	"github.com/pricecycle/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Database holds the database connection and provides methods for database operations
type Database struct {
	DB     *gorm.DB
	Driver string
}

// Options tune how the connection is opened
type Options struct {
	Logger         *zap.Logger
	EnableTracing  bool
	DatabaseConfig config.DatabaseConfig
}

// NewDatabase opens the database selected by the store driver. Only the
// sqlite and postgres drivers are backed by gorm.
func NewDatabase(store config.StoreConfig, opts Options) (*Database, error) {
	zl := opts.Logger
	if zl == nil {
		zl = zap.NewNop()
	}
	gormLogger := logger.NewGormLogger(zl, logger.MapGormLogLevel(opts.DatabaseConfig.LogLevel))

	var dialector gorm.Dialector
	switch store.Driver {
	case config.StoreSQLite:
		dialector = sqlite.Open(sqliteDSN(store.SQLitePath))
	case config.StorePostgres:
		dialector = postgres.Open(opts.DatabaseConfig.DSN())
	default:
		return nil, fmt.Errorf("store driver %q is not a SQL database", store.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if store.Driver == config.StorePostgres {
		cfg := opts.DatabaseConfig
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
		sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)
	} else {
		// sqlite serializes writers anyway
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if opts.EnableTracing {
		if err := telemetry.RegisterGormTracing(db, store.Driver, zl); err != nil {
			return nil, err
		}
	}

	return &Database{DB: db, Driver: store.Driver}, nil
}

// AutoMigrate creates the run_state table on sqlite. Postgres schemas are
// owned by the migration package.
func (d *Database) AutoMigrate() error {
	if d.Driver != config.StoreSQLite {
		return nil
	}
	return d.DB.AutoMigrate(&models.RunStateRecord{})
}

func sqliteDSN(path string) string {
	if path == "" || path == ":memory:" {
		return ":memory:"
	}
	return path + "?_busy_timeout=5000&_journal_mode=WAL"
}

// Close closes the database connection
func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// Ping checks if the database connection is alive
func (d *Database) Ping() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Ping()
}

// Stats returns database connection pool statistics and an error if unable to retrieve
func (d *Database) Stats() (ConnectionStats, error) {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return ConnectionStats{}, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	stats := sqlDB.Stats()
	return ConnectionStats{
		MaxOpenConnections: stats.MaxOpenConnections,
		OpenConnections:    stats.OpenConnections,
		InUse:              stats.InUse,
		Idle:               stats.Idle,
		WaitCount:          stats.WaitCount,
		WaitDuration:       stats.WaitDuration,
	}, nil
}

// ConnectionStats holds database connection pool statistics
type ConnectionStats struct {
	MaxOpenConnections int
	OpenConnections    int
	InUse              int
	Idle               int
	WaitCount          int64
	WaitDuration       time.Duration
}

// Transaction executes a function within a database transaction
func (d *Database) Transaction(fn func(tx *gorm.DB) error) error {
	return d.DB.Transaction(fn)
}
