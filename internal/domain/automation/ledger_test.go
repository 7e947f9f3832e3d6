package automation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l := NewLedger()
	require.NoError(t, l.Record("p1", "Mug", 1000, 900, false))
	require.NoError(t, l.Record("p2", "Cap", 350, 450, false))
	require.NoError(t, l.Record("p3", "Tee", 2000, 1900, true))
	return l
}

func TestLedger_Record(t *testing.T) {
	l := newTestLedger(t)

	assert.Equal(t, 3, l.Len())

	p1, ok := l.Get("p1")
	require.True(t, ok)
	assert.Equal(t, AdjustmentDiscounted, p1.Adjustment)
	assert.Equal(t, OutcomePending, p1.Outcome)
	assert.False(t, p1.RecordedAt.IsZero())

	p2, _ := l.Get("p2")
	assert.Equal(t, AdjustmentIncreased, p2.Adjustment)

	t.Run("excluded entries are pinned to the original price", func(t *testing.T) {
		p3, _ := l.Get("p3")
		assert.True(t, p3.Excluded)
		assert.Equal(t, int64(2000), p3.AppliedPrice)
		assert.Equal(t, OutcomeExcluded, p3.Outcome)
		assert.Equal(t, AdjustmentNone, p3.Adjustment)
	})

	t.Run("duplicate product id is rejected", func(t *testing.T) {
		err := l.Record("p1", "Mug", 1000, 900, false)
		assert.ErrorIs(t, err, ErrDuplicateLedgerEntry)
		assert.Equal(t, 3, l.Len())
	})
}

func TestLedger_MarkOutcome(t *testing.T) {
	l := newTestLedger(t)

	require.NoError(t, l.MarkOutcome("p1", OutcomeSuccess, nil))
	require.NoError(t, l.MarkOutcome("p2", OutcomeFailed, errors.New("rate limited")))

	p1, _ := l.Get("p1")
	assert.Equal(t, OutcomeSuccess, p1.Outcome)
	assert.Empty(t, p1.Error)

	p2, _ := l.Get("p2")
	assert.Equal(t, OutcomeFailed, p2.Outcome)
	assert.Equal(t, "rate limited", p2.Error)

	t.Run("excluded entries ignore outcomes", func(t *testing.T) {
		require.NoError(t, l.MarkOutcome("p3", OutcomeSuccess, nil))
		p3, _ := l.Get("p3")
		assert.Equal(t, OutcomeExcluded, p3.Outcome)
	})

	t.Run("unknown product", func(t *testing.T) {
		assert.ErrorIs(t, l.MarkOutcome("nope", OutcomeSuccess, nil), ErrLedgerEntryNotFound)
	})

	t.Run("excluded is not a settable outcome", func(t *testing.T) {
		assert.ErrorIs(t, l.MarkOutcome("p1", OutcomeExcluded, nil), ErrInvalidOutcome)
	})
}

func TestLedger_MarkRestored(t *testing.T) {
	l := newTestLedger(t)
	require.NoError(t, l.MarkOutcome("p1", OutcomeSuccess, nil))
	require.NoError(t, l.MarkRestoreFailed("p1", errors.New("timeout")))

	require.NoError(t, l.MarkRestored("p1"))

	p1, _ := l.Get("p1")
	assert.True(t, p1.Restored)
	assert.NotNil(t, p1.RestoredAt)
	assert.Equal(t, p1.OriginalPrice, p1.AppliedPrice)
	assert.Empty(t, p1.RestoreError)

	t.Run("no-op on excluded entries", func(t *testing.T) {
		require.NoError(t, l.MarkRestored("p3"))
		p3, _ := l.Get("p3")
		assert.False(t, p3.Restored)
		assert.Nil(t, p3.RestoredAt)
	})

	t.Run("unknown product", func(t *testing.T) {
		assert.ErrorIs(t, l.MarkRestored("nope"), ErrLedgerEntryNotFound)
	})
}

func TestLedger_RestoreTargets(t *testing.T) {
	l := newTestLedger(t)
	require.NoError(t, l.Record("p4", "Bag", 5000, 4900, false))
	require.NoError(t, l.MarkOutcome("p1", OutcomeSuccess, nil))
	require.NoError(t, l.MarkOutcome("p2", OutcomeFailed, errors.New("boom")))
	require.NoError(t, l.MarkOutcome("p4", OutcomeSuccess, nil))
	require.NoError(t, l.MarkRestored("p4"))

	targets := l.RestoreTargets()

	require.Len(t, targets, 1)
	assert.Equal(t, "p1", targets[0].ProductID)
}

func TestLedger_PendingUpdates(t *testing.T) {
	l := newTestLedger(t)
	require.NoError(t, l.MarkOutcome("p1", OutcomeSuccess, nil))

	pending := l.PendingUpdates()
	require.Len(t, pending, 1)
	assert.Equal(t, "p2", pending[0].ProductID)
}

func TestLedger_SnapshotIsACopy(t *testing.T) {
	l := newTestLedger(t)
	require.NoError(t, l.MarkOutcome("p1", OutcomeSuccess, nil))
	require.NoError(t, l.MarkRestored("p1"))

	snap := l.Snapshot()
	snap[0].AppliedPrice = 1
	*snap[0].RestoredAt = snap[0].RestoredAt.Add(-1)

	p1, _ := l.Get("p1")
	assert.Equal(t, int64(1000), p1.AppliedPrice)
	assert.NotEqual(t, *snap[0].RestoredAt, *p1.RestoredAt)
}

func TestLedgerFromEntries(t *testing.T) {
	l := newTestLedger(t)
	entries := l.Snapshot()
	entries = append(entries, entries[0])

	rebuilt := LedgerFromEntries(entries)

	assert.Equal(t, 3, rebuilt.Len())
	require.NoError(t, rebuilt.MarkOutcome("p2", OutcomeSuccess, nil))
}

func TestLedger_Stats(t *testing.T) {
	l := newTestLedger(t)
	require.NoError(t, l.Record("p4", "Bag", 5000, 4900, false))
	require.NoError(t, l.MarkOutcome("p1", OutcomeSuccess, nil))
	require.NoError(t, l.MarkOutcome("p2", OutcomeFailed, errors.New("boom")))
	require.NoError(t, l.MarkRestored("p1"))

	assert.Equal(t, LedgerStats{
		Processed: 4,
		Adjusted:  1,
		Excluded:  1,
		Failed:    1,
		Pending:   1,
		Restored:  1,
	}, l.Stats())
}
