package cache

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/pricecycle/backend/internal/domain/automation"
	"github.com/pricecycle/backend/internal/infrastructure/config"
)

const badgerKeyPrefix = "state/"

// BadgerStateStore persists run state in an embedded BadgerDB so a single
// binary survives restarts without an external database.
type BadgerStateStore struct {
	db *badger.DB
}

// badgerLogger routes BadgerDB's internal logging through zap
type badgerLogger struct {
	logger *zap.SugaredLogger
}

func (l *badgerLogger) Errorf(format string, args ...any)   { l.logger.Errorf(format, args...) }
func (l *badgerLogger) Warningf(format string, args ...any) { l.logger.Warnf(format, args...) }
func (l *badgerLogger) Infof(format string, args ...any)    { l.logger.Debugf(format, args...) }
func (l *badgerLogger) Debugf(format string, args ...any)   { l.logger.Debugf(format, args...) }

// NewBadgerStateStore opens (or creates) the database described by cfg.
func NewBadgerStateStore(cfg config.BadgerConfig, logger *zap.Logger) (*BadgerStateStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger path is required for persistent state")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create badger directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path).WithSyncWrites(true)
	}
	opts = opts.WithNumVersionsToKeep(1)
	if logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: logger.Named("badger").Sugar()})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &BadgerStateStore{db: db}, nil
}

// Load implements automation.StateStore
func (s *BadgerStateStore) Load(_ context.Context) (*automation.RunState, error) {
	values := make(map[string][]byte, len(automation.StateKeys))
	err := s.db.View(func(txn *badger.Txn) error {
		for _, key := range automation.StateKeys {
			item, err := txn.Get([]byte(badgerKeyPrefix + key))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			values[key] = value
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load run state: %w", err)
	}
	return automation.DecodeState(values)
}

// Save implements automation.StateStore. All keys are written in one
// transaction.
func (s *BadgerStateStore) Save(_ context.Context, state *automation.RunState) error {
	encoded, err := automation.EncodeState(state)
	if err != nil {
		return err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		for key, value := range encoded {
			if err := txn.Set([]byte(badgerKeyPrefix+key), value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save run state: %w", err)
	}
	return nil
}

// Close flushes and closes the database
func (s *BadgerStateStore) Close() error {
	return s.db.Close()
}

var _ automation.StateStore = (*BadgerStateStore)(nil)
