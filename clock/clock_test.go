package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRealSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := Real().Sleep(ctx, time.Second)
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestRealSleepWaits(t *testing.T) {
	start := time.Now()
	require.NoError(t, Real().Sleep(context.Background(), 5*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
}

func TestFakeAdvancesAndRecords(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)

	var hooked []time.Duration
	f.OnSleep = func(d time.Duration) { hooked = append(hooked, d) }

	require.NoError(t, f.Sleep(context.Background(), 10*time.Millisecond))
	require.NoError(t, f.Sleep(context.Background(), 90*time.Millisecond))

	assert.Equal(t, start.Add(100*time.Millisecond), f.Now())
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 90 * time.Millisecond}, f.Sleeps())
	assert.Equal(t, f.Sleeps(), hooked)
}

func TestFakeCancelled(t *testing.T) {
	f := NewFake(time.Time{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, f.Sleep(ctx, time.Millisecond), context.Canceled)
	assert.Empty(t, f.Sleeps())
}
