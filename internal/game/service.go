package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	mathrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"pokeden/internal/species"
)

type SpeciesCatalog interface {
	Lookup(ctx context.Context, identifier string) (species.Info, error)
}

type Randomizer interface {
	Float64() float64
	Intn(n int) int
}

// Recorder receives counters for state changes. metrics.Collectors implements it.
type Recorder interface {
	CatchAttempt(outcome CatchOutcome, cost int64)
	Purchase(total int64)
	TradeEvent(event string)
}

type nopRecorder struct{}

func (nopRecorder) CatchAttempt(CatchOutcome, int64) {}
func (nopRecorder) Purchase(int64)                   {}
func (nopRecorder) TradeEvent(string)                {}

type Service struct {
	store    Store
	catalog  SpeciesCatalog
	tiers    TierTable
	log      *slog.Logger
	recorder Recorder
	now      func() time.Time

	mu   sync.Mutex
	rand Randomizer
}

type Option func(*Service)

func WithRand(r Randomizer) Option {
	return func(s *Service) { s.rand = r }
}

func WithTiers(t TierTable) Option {
	return func(s *Service) { s.tiers = t }
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, catalog SpeciesCatalog, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:    store,
		catalog:  catalog,
		tiers:    DefaultTierTable(),
		log:      logger,
		recorder: nopRecorder{},
		now:      func() time.Time { return time.Now().UTC() },
		rand:     mathrand.New(mathrand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Tiers() TierTable {
	return append(TierTable(nil), s.tiers...)
}

// EnsureAccount creates the account on first sight with the starter balance.
// Existing accounts are read without taking a write lock and left untouched.
func (s *Service) EnsureAccount(ctx context.Context, accountID, email, username string) (Account, error) {
	if strings.TrimSpace(accountID) == "" {
		return Account{}, fmt.Errorf("%w: account id is required", ErrInvalidInput)
	}
	var found Account
	err := s.store.View(ctx, func(ctx context.Context, tx Tx) error {
		a, err := tx.GetAccount(ctx, accountID)
		found = a
		return err
	})
	if err == nil {
		return found, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return Account{}, err
	}

	username = strings.TrimSpace(username)
	if username == "" {
		username = usernameFromEmail(email)
	}
	if !usernameRE.MatchString(username) {
		username = sanitizeUsername(username)
	}

	var out Account
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		existing, err := tx.GetAccount(ctx, accountID)
		if err == nil {
			out = existing
			return nil
		}
		if !errors.Is(err, ErrAccountNotFound) {
			return err
		}

		name := username
		taken, err := tx.UsernameInUse(ctx, name)
		if err != nil {
			return err
		}
		if taken {
			name = uniqueUsername(name)
		}

		now := s.now()
		acct := Account{
			ID:              accountID,
			Username:        name,
			Email:           strings.TrimSpace(strings.ToLower(email)),
			Balance:         StarterBalance,
			StorageCapacity: DefaultStorageCapacity,
			Inventory:       []InventoryEntry{},
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		created, err := tx.InsertAccount(ctx, acct)
		if err != nil {
			return err
		}
		if !created {
			// Soft-deleted accounts keep their id reserved.
			return ErrAccountNotFound
		}
		out = acct
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	return out, nil
}

func uniqueUsername(base string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	if len(base) > 24-len(suffix)-1 {
		base = base[:24-len(suffix)-1]
	}
	return base + "_" + suffix
}

func (s *Service) Profile(ctx context.Context, accountID string) (Profile, error) {
	var out Profile
	err := s.store.View(ctx, func(ctx context.Context, tx Tx) error {
		acct, err := tx.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		count, err := tx.CountCreaturesByOwner(ctx, accountID)
		if err != nil {
			return err
		}
		out = Profile{Account: acct, CreatureCount: count}
		return nil
	})
	return out, err
}

func (s *Service) ListCreatures(ctx context.Context, accountID string) ([]Creature, error) {
	var out []Creature
	err := s.store.View(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.GetAccount(ctx, accountID); err != nil {
			return err
		}
		creatures, err := tx.ListCreaturesByOwner(ctx, accountID)
		out = creatures
		return err
	})
	return out, err
}

func (s *Service) GetCreature(ctx context.Context, creatureID string) (Creature, error) {
	var out Creature
	err := s.store.View(ctx, func(ctx context.Context, tx Tx) error {
		c, err := tx.GetCreature(ctx, creatureID)
		out = c
		return err
	})
	return out, err
}

func (s *Service) ListItems(ctx context.Context) ([]Item, error) {
	var out []Item
	err := s.store.View(ctx, func(ctx context.Context, tx Tx) error {
		items, err := tx.ListItems(ctx)
		out = items
		return err
	})
	return out, err
}

// GetTrade only shows a trade to its two participants.
func (s *Service) GetTrade(ctx context.Context, accountID, tradeID string) (Trade, error) {
	var out Trade
	err := s.store.View(ctx, func(ctx context.Context, tx Tx) error {
		t, err := tx.GetTrade(ctx, tradeID)
		if err != nil {
			return err
		}
		if t.FromAccountID != accountID && t.ToAccountID != accountID {
			return ErrTradeNotFound
		}
		out = t
		return nil
	})
	return out, err
}

func (s *Service) ListTrades(ctx context.Context, accountID string) ([]Trade, error) {
	var out []Trade
	err := s.store.View(ctx, func(ctx context.Context, tx Tx) error {
		trades, err := tx.ListTrades(ctx, accountID)
		out = trades
		return err
	})
	return out, err
}

func (s *Service) LookupSpecies(ctx context.Context, identifier string) (species.Info, error) {
	identifier = NormalizeSpecies(identifier)
	if identifier == "" {
		return species.Info{}, fmt.Errorf("%w: species is required", ErrInvalidInput)
	}
	return s.catalog.Lookup(ctx, identifier)
}

func DefaultItems() []Item {
	return []Item{
		{ID: "poke-ball", Name: "Poke Ball", Type: "ball", Effect: "A basic ball for catching wild creatures.", Price: 200, Rarity: "common"},
		{ID: "great-ball", Name: "Great Ball", Type: "ball", Effect: "A good ball with a higher catch rate.", Price: 600, Rarity: "uncommon"},
		{ID: "ultra-ball", Name: "Ultra Ball", Type: "ball", Effect: "A high-performance ball.", Price: 1200, Rarity: "rare"},
		{ID: "potion", Name: "Potion", Type: "medicine", Effect: "Restores 20 HP.", Price: 300, Rarity: "common"},
		{ID: "super-potion", Name: "Super Potion", Type: "medicine", Effect: "Restores 50 HP.", Price: 700, Rarity: "uncommon"},
		{ID: "revive", Name: "Revive", Type: "medicine", Effect: "Revives a fainted creature with half HP.", Price: 1500, Rarity: "rare"},
		{ID: "rare-candy", Name: "Rare Candy", Type: "boost", Effect: "Raises a creature's level by one.", Price: 4800, Rarity: "epic", Label: "limited"},
	}
}

// SeedItems upserts the shop catalog so price changes apply on restart.
func (s *Service) SeedItems(ctx context.Context, items []Item) error {
	return s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		for _, it := range items {
			if strings.TrimSpace(it.ID) == "" || it.Price < 0 {
				return fmt.Errorf("%w: invalid shop item %q", ErrInvalidInput, it.ID)
			}
			if err := tx.UpsertItem(ctx, it); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Service) PruneIdempotencyKeys(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, fmt.Errorf("%w: retention must be positive", ErrInvalidInput)
	}
	n, err := s.store.PruneIdempotencyKeys(ctx, s.now().Add(-retention))
	if err != nil {
		return 0, err
	}
	s.log.Info("pruned idempotency keys", "deleted", n, "retention", retention.String())
	return n, nil
}

func (s *Service) nextFloat() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rand.Float64()
}

// nextInRange draws uniformly from [lo, hi].
func (s *Service) nextInRange(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo + s.rand.Intn(hi-lo+1)
}

func requireKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: idempotency key is required", ErrInvalidInput)
	}
	return nil
}
