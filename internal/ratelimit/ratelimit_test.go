package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffDelay(t *testing.T) {
	b := NewBackoff(100*time.Millisecond, time.Second, 0)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{30, time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, b.Delay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestBackoffJitterStaysBounded(t *testing.T) {
	b := NewBackoff(100*time.Millisecond, time.Second, 0.5)
	for i := 0; i < 50; i++ {
		d := b.Delay(2)
		assert.GreaterOrEqual(t, d, 200*time.Millisecond)
		assert.LessOrEqual(t, d, 300*time.Millisecond)
	}
}

func TestBackoffSleepHonoursContext(t *testing.T) {
	b := NewBackoff(time.Hour, time.Hour, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := b.Sleep(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestBackoffSleep(t *testing.T) {
	b := NewBackoff(time.Millisecond, time.Millisecond, 0)
	require.NoError(t, b.Sleep(context.Background(), 1))
}

func TestBackoffSleepAtLeast(t *testing.T) {
	t.Run("floor stretches the delay", func(t *testing.T) {
		b := NewBackoff(time.Millisecond, 50*time.Millisecond, 0)
		start := time.Now()
		require.NoError(t, b.SleepAtLeast(context.Background(), 1, 20*time.Millisecond))
		assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	})

	t.Run("floor is capped at max", func(t *testing.T) {
		b := NewBackoff(time.Millisecond, 5*time.Millisecond, 0)
		start := time.Now()
		require.NoError(t, b.SleepAtLeast(context.Background(), 1, time.Hour))
		assert.Less(t, time.Since(start), time.Second)
	})
}

func TestHostLimiter(t *testing.T) {
	t.Run("unlimited", func(t *testing.T) {
		hl := NewHostLimiter(0, 0)
		for i := 0; i < 100; i++ {
			require.NoError(t, hl.Wait(context.Background(), "www.amazon.de"))
		}
	})

	t.Run("per host buckets", func(t *testing.T) {
		hl := NewHostLimiter(0.001, 1)
		require.NoError(t, hl.Wait(context.Background(), "www.amazon.de"))
		require.NoError(t, hl.Wait(context.Background(), "www.amazon.fr"))

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		assert.Error(t, hl.Wait(ctx, "www.amazon.de"))
	})
}
