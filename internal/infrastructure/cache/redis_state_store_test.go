//go:build integration

package cache

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/pricecycle/backend/internal/domain/automation"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisStateStore(t *testing.T) {
	ctx := context.Background()
	client := startRedis(t)
	store := NewRedisStateStoreWithClient(client, "test:")
	require.NoError(t, store.Ping(ctx))

	empty, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, automation.PhaseIdle, empty.Phase)

	state := automation.NewIdleState()
	state.Phase = automation.PhaseMonitoring
	state.Meta.RunID = uuid.New()
	require.NoError(t, store.Save(ctx, state))

	raw, err := client.Get(ctx, "test:"+automation.KeyRunPhase).Result()
	require.NoError(t, err)
	assert.Equal(t, `"monitoring"`, raw)

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, automation.PhaseMonitoring, loaded.Phase)
	assert.Equal(t, state.Meta.RunID, loaded.Meta.RunID)
}
