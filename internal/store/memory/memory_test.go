package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pokeden/internal/game"
)

func TestInTxDiscardsFailedWrites(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.InTx(ctx, func(ctx context.Context, tx game.Tx) error {
		_, err := tx.InsertAccount(ctx, game.Account{ID: "a1", Username: "ash", Balance: 10, StorageCapacity: 1})
		require.NoError(t, err)
		require.NoError(t, tx.ClaimIdempotency(ctx, "a1", "k", "test"))
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = s.View(ctx, func(ctx context.Context, tx game.Tx) error {
		_, err := tx.GetAccount(ctx, "a1")
		return err
	})
	require.ErrorIs(t, err, game.ErrAccountNotFound)

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx game.Tx) error {
		return tx.ClaimIdempotency(ctx, "a1", "k", "test")
	}))
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx game.Tx) error {
		if _, err := tx.InsertAccount(ctx, game.Account{ID: "a1", Username: "ash", StorageCapacity: 1}); err != nil {
			return err
		}
		return tx.InsertCreature(ctx, game.Creature{ID: "c1", OwnerID: "a1", Types: []string{"electric"}})
	}))

	var c game.Creature
	require.NoError(t, s.View(ctx, func(ctx context.Context, tx game.Tx) error {
		var err error
		c, err = tx.GetCreature(ctx, "c1")
		return err
	}))
	c.Types[0] = "fire"

	require.NoError(t, s.View(ctx, func(ctx context.Context, tx game.Tx) error {
		got, err := tx.GetCreature(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, []string{"electric"}, got.Types)
		return nil
	}))
}

func TestFinishTradeIsCompareAndSwap(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx game.Tx) error {
		return tx.InsertTrade(ctx, game.Trade{ID: "t1", Status: game.TradePending, CreatedAt: now, UpdatedAt: now})
	}))

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx game.Tx) error {
		return tx.FinishTrade(ctx, "t1", game.TradeRejected, "", now)
	}))
	err := s.InTx(ctx, func(ctx context.Context, tx game.Tx) error {
		return tx.FinishTrade(ctx, "t1", game.TradeAccepted, "", now)
	})
	require.ErrorIs(t, err, game.ErrTradeNotPending)
}

func TestUsernamesAreUnique(t *testing.T) {
	s := New()
	ctx := context.Background()
	err := s.InTx(ctx, func(ctx context.Context, tx game.Tx) error {
		if _, err := tx.InsertAccount(ctx, game.Account{ID: "a1", Username: "Ash"}); err != nil {
			return err
		}
		_, err := tx.InsertAccount(ctx, game.Account{ID: "a2", Username: "ash"})
		return err
	})
	require.ErrorIs(t, err, game.ErrUsernameTaken)
}

func TestPruneIdempotencyKeys(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx game.Tx) error {
		return tx.ClaimIdempotency(ctx, "a1", "old", "test")
	}))
	s.now = func() time.Time { return time.Now().Add(time.Hour) }
	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx game.Tx) error {
		return tx.ClaimIdempotency(ctx, "a1", "new", "test")
	}))

	n, err := s.PruneIdempotencyKeys(ctx, time.Now().Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
