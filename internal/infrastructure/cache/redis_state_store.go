package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pricecycle/backend/internal/domain/automation"
	"github.com/pricecycle/backend/internal/infrastructure/config"
)

const defaultKeyPrefix = "pricecycle:state:"

// RedisStateStore keeps every logical state key under its own Redis key so
// the run can be inspected with redis-cli. Saves are written in one MULTI/EXEC.
type RedisStateStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisStateStore connects to Redis and verifies the connection.
func NewRedisStateStore(cfg config.RedisConfig) (*RedisStateStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisStateStoreWithClient(client, cfg.KeyPrefix), nil
}

// NewRedisStateStoreWithClient wraps an existing client
func NewRedisStateStoreWithClient(client redis.UniversalClient, keyPrefix string) *RedisStateStore {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &RedisStateStore{client: client, keyPrefix: keyPrefix}
}

// Load implements automation.StateStore
func (s *RedisStateStore) Load(ctx context.Context) (*automation.RunState, error) {
	keys := make([]string, len(automation.StateKeys))
	for i, k := range automation.StateKeys {
		keys[i] = s.keyPrefix + k
	}

	raw, err := s.client.MGet(ctx, keys...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to load run state: %w", err)
	}

	values := make(map[string][]byte, len(raw))
	for i, v := range raw {
		if str, ok := v.(string); ok {
			values[automation.StateKeys[i]] = []byte(str)
		}
	}
	return automation.DecodeState(values)
}

// Save implements automation.StateStore
func (s *RedisStateStore) Save(ctx context.Context, state *automation.RunState) error {
	encoded, err := automation.EncodeState(state)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for key, value := range encoded {
			pipe.Set(ctx, s.keyPrefix+key, value, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save run state: %w", err)
	}
	return nil
}

// Ping checks the connection
func (s *RedisStateStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (s *RedisStateStore) Close() error {
	return s.client.Close()
}

var _ automation.StateStore = (*RedisStateStore)(nil)
