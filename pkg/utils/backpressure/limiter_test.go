package backpressure

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzzdr/quant-pricing-engine/pkg/utils/errors"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestTokenBucketRefills(t *testing.T) {
	c := &clock{t: time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)}
	tb := NewTokenBucket(2, 3)
	tb.now = c.now
	tb.last = c.t

	for range 3 {
		assert.True(t, tb.Allow())
	}
	assert.False(t, tb.Allow())

	c.t = c.t.Add(500 * time.Millisecond)
	assert.Equal(t, 1, tb.Tokens())
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())

	// never above the burst
	c.t = c.t.Add(time.Hour)
	assert.Equal(t, 3, tb.Tokens())
}

func TestKeyedLimiterIsPerKey(t *testing.T) {
	c := &clock{t: time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)}
	k := NewKeyedLimiter(1, 1)
	k.now = c.now

	assert.True(t, k.Allow("10.0.0.1"))
	assert.False(t, k.Allow("10.0.0.1"))
	assert.True(t, k.Allow("10.0.0.2"))
	assert.Equal(t, 2, k.Len())

	k.Sweep()
	assert.Equal(t, 2, k.Len())

	c.t = c.t.Add(time.Second)
	k.Sweep()
	assert.Zero(t, k.Len())
	assert.True(t, k.Allow("10.0.0.1"))
}

func TestControllerRejectsOrBlocks(t *testing.T) {
	ctrl := NewController("runs", 1)
	ctx := context.Background()

	require.NoError(t, ctrl.Acquire(ctx, Reject))
	assert.Equal(t, 1, ctrl.InFlight())

	err := ctrl.Acquire(ctx, Reject)
	assert.True(t, errors.HasType(err, errors.ErrorTypeUnavailable))
	assert.EqualValues(t, 1, ctrl.Rejected())

	timeout, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, ctrl.Acquire(timeout, Block), context.DeadlineExceeded)

	acquired := make(chan error)
	go func() { acquired <- ctrl.Acquire(ctx, Block) }()
	ctrl.Release()
	require.NoError(t, <-acquired)
	ctrl.Release()
	assert.Zero(t, ctrl.InFlight())
	assert.Equal(t, "REJECT", Reject.String())
}
