package limits_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hman38705/SwiftRemit/internal/limits"
	"github.com/hman38705/SwiftRemit/pkg/clock"
	"github.com/hman38705/SwiftRemit/pkg/store"
)

func newValidator(now uint64) (*limits.Validator, *clock.Manual) {
	clk := clock.NewManual(now)
	return limits.NewValidator(store.NewMemory(), clk), clk
}

func TestLimitConfiguration(t *testing.T) {
	ctx := context.Background()

	t.Run("should report absent limits as unconfigured", func(t *testing.T) {
		v, _ := newValidator(1_700_000_000)

		_, configured, err := v.Limit(ctx, "USD", "US")
		require.NoError(t, err)
		assert.False(t, configured)
	})

	t.Run("should round-trip a configured limit", func(t *testing.T) {
		v, _ := newValidator(1_700_000_000)

		require.NoError(t, v.SetLimit(ctx, "USD", "US", 5000))

		limit, configured, err := v.Limit(ctx, "USD", "US")
		require.NoError(t, err)
		assert.True(t, configured)
		assert.Equal(t, int64(5000), limit)
	})

	t.Run("should keep pairs independent", func(t *testing.T) {
		v, _ := newValidator(1_700_000_000)

		require.NoError(t, v.SetLimit(ctx, "USD", "US", 5000))

		_, configured, err := v.Limit(ctx, "USD", "KE")
		require.NoError(t, err)
		assert.False(t, configured)
	})
}

func TestCheck(t *testing.T) {
	ctx := context.Background()

	t.Run("should allow unconditionally without a limit and leave no history", func(t *testing.T) {
		v, _ := newValidator(1_700_000_000)

		history, tracked, err := v.Check(ctx, "alice", math.MaxInt64, "USD", "US")
		require.NoError(t, err)
		assert.False(t, tracked)
		assert.Nil(t, history)
	})

	t.Run("should accumulate committed transfers within the window", func(t *testing.T) {
		v, _ := newValidator(1_700_000_000)
		require.NoError(t, v.SetLimit(ctx, "USD", "US", 5000))

		history, tracked, err := v.Check(ctx, "alice", 3000, "USD", "US")
		require.NoError(t, err)
		assert.True(t, tracked)
		require.NoError(t, v.Commit(ctx, "alice", history))

		history, _, err = v.Check(ctx, "alice", 2000, "USD", "US")
		require.NoError(t, err)
		require.NoError(t, v.Commit(ctx, "alice", history))

		_, _, err = v.Check(ctx, "alice", 1, "USD", "US")
		assert.ErrorIs(t, err, limits.ErrLimitExceeded)
	})

	t.Run("should not count unchecked attempts", func(t *testing.T) {
		v, _ := newValidator(1_700_000_000)
		require.NoError(t, v.SetLimit(ctx, "USD", "US", 5000))

		// Rejected check, nothing committed.
		_, _, err := v.Check(ctx, "alice", 6000, "USD", "US")
		assert.ErrorIs(t, err, limits.ErrLimitExceeded)

		// Full capacity still available.
		history, _, err := v.Check(ctx, "alice", 5000, "USD", "US")
		require.NoError(t, err)
		require.NoError(t, v.Commit(ctx, "alice", history))
	})

	t.Run("should scope history per sender", func(t *testing.T) {
		v, _ := newValidator(1_700_000_000)
		require.NoError(t, v.SetLimit(ctx, "USD", "US", 5000))

		history, _, err := v.Check(ctx, "alice", 5000, "USD", "US")
		require.NoError(t, err)
		require.NoError(t, v.Commit(ctx, "alice", history))

		_, _, err = v.Check(ctx, "bob", 5000, "USD", "US")
		require.NoError(t, err)
	})

	t.Run("should aggregate history across currencies", func(t *testing.T) {
		// History is sender-scoped; the pair only selects the ceiling.
		v, _ := newValidator(1_700_000_000)
		require.NoError(t, v.SetLimit(ctx, "USD", "US", 5000))
		require.NoError(t, v.SetLimit(ctx, "EUR", "DE", 5000))

		history, _, err := v.Check(ctx, "alice", 4000, "USD", "US")
		require.NoError(t, err)
		require.NoError(t, v.Commit(ctx, "alice", history))

		_, _, err = v.Check(ctx, "alice", 2000, "EUR", "DE")
		assert.ErrorIs(t, err, limits.ErrLimitExceeded)
	})
}

func TestRollingWindow(t *testing.T) {
	ctx := context.Background()

	t.Run("should prune entries older than 24 hours", func(t *testing.T) {
		v, clk := newValidator(1_700_000_000)
		require.NoError(t, v.SetLimit(ctx, "USD", "US", 5000))

		history, _, err := v.Check(ctx, "alice", 5000, "USD", "US")
		require.NoError(t, err)
		require.NoError(t, v.Commit(ctx, "alice", history))

		clk.Advance(86401)

		history, _, err = v.Check(ctx, "alice", 5000, "USD", "US")
		require.NoError(t, err)
		// The stale entry was dropped, only the new one survives.
		require.Len(t, history, 1)
		assert.Equal(t, clk.Now(), history[0].Timestamp)
	})

	t.Run("should keep entries exactly inside the window", func(t *testing.T) {
		v, clk := newValidator(1_700_000_000)
		require.NoError(t, v.SetLimit(ctx, "USD", "US", 5000))

		history, _, err := v.Check(ctx, "alice", 3000, "USD", "US")
		require.NoError(t, err)
		require.NoError(t, v.Commit(ctx, "alice", history))

		// 86399 seconds later the old entry still counts.
		clk.Advance(86399)
		_, _, err = v.Check(ctx, "alice", 3000, "USD", "US")
		assert.ErrorIs(t, err, limits.ErrLimitExceeded)
	})

	t.Run("should saturate the cutoff on early ledger times", func(t *testing.T) {
		v, _ := newValidator(10)
		require.NoError(t, v.SetLimit(ctx, "USD", "US", 5000))

		history, _, err := v.Check(ctx, "alice", 1000, "USD", "US")
		require.NoError(t, err)
		require.NoError(t, v.Commit(ctx, "alice", history))

		_, _, err = v.Check(ctx, "alice", 4001, "USD", "US")
		assert.ErrorIs(t, err, limits.ErrLimitExceeded)
	})
}

func TestOverflow(t *testing.T) {
	ctx := context.Background()

	t.Run("should fail on history sum overflow", func(t *testing.T) {
		v, _ := newValidator(1_700_000_000)
		require.NoError(t, v.SetLimit(ctx, "USD", "US", math.MaxInt64))

		history, _, err := v.Check(ctx, "alice", math.MaxInt64-1, "USD", "US")
		require.NoError(t, err)
		require.NoError(t, v.Commit(ctx, "alice", history))

		_, _, err = v.Check(ctx, "alice", 2, "USD", "US")
		assert.ErrorIs(t, err, limits.ErrOverflow)
	})
}
