package cache

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricecycle/backend/internal/domain/automation"
)

func TestInMemoryStateStore(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStateStore()

	initial, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, automation.PhaseIdle, initial.Phase)

	l := automation.NewLedger()
	require.NoError(t, l.Record("p1", "Lamp", 1000, 900, false))

	state := automation.NewIdleState()
	state.Phase = automation.PhaseAdjusting
	state.Ledger = l.Snapshot()
	state.Meta.RunID = uuid.New()
	require.NoError(t, store.Save(ctx, state))

	// mutating the saved value must not leak into the store
	state.Ledger[0].AppliedPrice = 1

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, automation.PhaseAdjusting, loaded.Phase)
	assert.Equal(t, state.Meta.RunID, loaded.Meta.RunID)
	require.Len(t, loaded.Ledger, 1)
	assert.Equal(t, int64(900), loaded.Ledger[0].AppliedPrice)
	assert.Equal(t, 1, store.Saves())
}
