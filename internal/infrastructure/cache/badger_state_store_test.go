package cache

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pricecycle/backend/internal/domain/automation"
	"github.com/pricecycle/backend/internal/infrastructure/config"
)

func TestBadgerStateStore_InMemory(t *testing.T) {
	ctx := context.Background()
	store, err := NewBadgerStateStore(config.BadgerConfig{InMemory: true}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	empty, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, automation.PhaseIdle, empty.Phase)
	assert.Empty(t, empty.Ledger)

	now := time.Now().UTC().Truncate(time.Second)
	state := automation.NewIdleState()
	state.Phase = automation.PhaseMonitoring
	state.Meta.RunID = uuid.New()
	state.Meta.AdjustedAt = &now
	require.NoError(t, store.Save(ctx, state))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, automation.PhaseMonitoring, loaded.Phase)
	require.NotNil(t, loaded.Meta.AdjustedAt)
	assert.True(t, now.Equal(*loaded.Meta.AdjustedAt))
}

func TestBadgerStateStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	cfg := config.BadgerConfig{Path: t.TempDir()}

	store, err := NewBadgerStateStore(cfg, nil)
	require.NoError(t, err)
	state := automation.NewIdleState()
	state.Phase = automation.PhaseRestoring
	require.NoError(t, store.Save(ctx, state))
	require.NoError(t, store.Close())

	reopened, err := NewBadgerStateStore(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	loaded, err := reopened.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, automation.PhaseRestoring, loaded.Phase)
}

func TestNewBadgerStateStore_RequiresPath(t *testing.T) {
	_, err := NewBadgerStateStore(config.BadgerConfig{}, nil)
	require.Error(t, err)
}
