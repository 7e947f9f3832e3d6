package automation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricecycle/backend/internal/domain/automation"
)

func counterReturning(counts ...int) (OrderCounter, *atomic.Int32) {
	var calls atomic.Int32
	return func(context.Context) (int, error) {
		i := int(calls.Add(1)) - 1
		if i >= len(counts) {
			i = len(counts) - 1
		}
		return counts[i], nil
	}, &calls
}

func TestCoordinator_Triggers(t *testing.T) {
	tests := []struct {
		name      string
		threshold int
		counts    []int
		deadline  time.Duration
		want      automation.TriggerReason
	}{
		{"threshold reached", 2, []int{0, 1, 2}, time.Hour, automation.TriggerThreshold},
		{"zero threshold fires on first poll", 0, []int{0}, time.Hour, automation.TriggerThreshold},
		{"deadline reached", 5, []int{0}, 40 * time.Millisecond, automation.TriggerDeadline},
		{"deadline already passed", 5, []int{0}, -time.Minute, automation.TriggerDeadline},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			count, _ := counterReturning(tt.counts...)
			c := NewCoordinator(CoordinatorConfig{
				Threshold: tt.threshold,
				Interval:  5 * time.Millisecond,
				Deadline:  time.Now().Add(tt.deadline),
				Count:     count,
			})

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			reason, err := c.Run(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, reason)
			assert.True(t, c.Fired())
		})
	}
}

func TestCoordinator_PollErrorsDoNotStopMonitoring(t *testing.T) {
	var calls atomic.Int32
	c := NewCoordinator(CoordinatorConfig{
		Threshold: 1,
		Interval:  5 * time.Millisecond,
		Deadline:  time.Now().Add(time.Hour),
		Count: func(context.Context) (int, error) {
			if calls.Add(1) < 3 {
				return 0, errors.New("orders unavailable")
			}
			return 1, nil
		},
	})

	reason, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, automation.TriggerThreshold, reason)
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestCoordinator_FireOnce(t *testing.T) {
	count, _ := counterReturning(0)
	c := NewCoordinator(CoordinatorConfig{
		Threshold: 10,
		Interval:  time.Hour,
		Deadline:  time.Now().Add(time.Hour),
		Count:     count,
	})

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.Fire(automation.TriggerStopped) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())

	reason, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, automation.TriggerStopped, reason)
	assert.False(t, c.Fire(automation.TriggerDeadline))
}

func TestCoordinator_FireStopsProducers(t *testing.T) {
	count, calls := counterReturning(0)
	c := NewCoordinator(CoordinatorConfig{
		Threshold: 10,
		Interval:  2 * time.Millisecond,
		Deadline:  time.Now().Add(time.Hour),
		Count:     count,
	})

	go func() {
		time.Sleep(20 * time.Millisecond)
		c.Fire(automation.TriggerStopped)
	}()

	reason, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, automation.TriggerStopped, reason)

	after := calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, calls.Load(), "poller kept running after the trigger")
}

func TestCoordinator_ContextCancelled(t *testing.T) {
	count, _ := counterReturning(0)
	c := NewCoordinator(CoordinatorConfig{
		Threshold: 10,
		Interval:  5 * time.Millisecond,
		Deadline:  time.Now().Add(time.Hour),
		Count:     count,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := c.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, c.Fired())
}
