package game

import (
	"context"
	"time"
)

// Tx is the unit-of-work view of the account, creature, item and trade records.
// Reads inside a Store.InTx callback lock the rows they return until the
// callback finishes.
type Tx interface {
	ClaimIdempotency(ctx context.Context, accountID, key, action string) error

	// GetAccount returns ErrAccountNotFound for missing and soft-deleted accounts.
	GetAccount(ctx context.Context, id string) (Account, error)
	FindAccountByUsername(ctx context.Context, username string) (Account, error)
	// UsernameInUse also counts soft-deleted accounts, which keep their name reserved.
	UsernameInUse(ctx context.Context, username string) (bool, error)
	FindAccountByBuddy(ctx context.Context, creatureID string) (Account, bool, error)
	// InsertAccount reports false when an account with the same id already exists.
	InsertAccount(ctx context.Context, a Account) (bool, error)
	SaveAccount(ctx context.Context, a Account) error

	GetItem(ctx context.Context, id string) (Item, error)
	ListItems(ctx context.Context) ([]Item, error)
	UpsertItem(ctx context.Context, it Item) error

	GetCreature(ctx context.Context, id string) (Creature, error)
	ListCreaturesByOwner(ctx context.Context, ownerID string) ([]Creature, error)
	CountCreaturesByOwner(ctx context.Context, ownerID string) (int, error)
	InsertCreature(ctx context.Context, c Creature) error
	// SaveCreature persists owner, buddy back-reference, level and experience. History is append-only.
	SaveCreature(ctx context.Context, c Creature) error
	AppendTradeHistory(ctx context.Context, creatureID string, entry TradeHistoryEntry) error

	GetTrade(ctx context.Context, id string) (Trade, error)
	ListTrades(ctx context.Context, accountID string) ([]Trade, error)
	InsertTrade(ctx context.Context, t Trade) error
	// FinishTrade moves a pending trade to a terminal status and fails with
	// ErrTradeNotPending when the trade already left pending.
	FinishTrade(ctx context.Context, id string, status TradeStatus, offeredCreatureID string, at time.Time) error
}

type Store interface {
	// InTx runs fn atomically. Implementations may call fn more than once when a
	// concurrent writer forces a retry, so fn must not leak partial results.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	View(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	PruneIdempotencyKeys(ctx context.Context, before time.Time) (int64, error)
}
