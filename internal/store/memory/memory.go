// Package memory keeps every record in process behind one lock. Each InTx
// works on a deep copy of the state that replaces the live state on success.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"pokeden/internal/game"
)

type idemKey struct {
	accountID string
	key       string
}

type state struct {
	accounts  map[string]game.Account
	creatures map[string]game.Creature
	items     map[string]game.Item
	trades    map[string]game.Trade
	idem      map[idemKey]time.Time
}

func newState() *state {
	return &state{
		accounts:  make(map[string]game.Account),
		creatures: make(map[string]game.Creature),
		items:     make(map[string]game.Item),
		trades:    make(map[string]game.Trade),
		idem:      make(map[idemKey]time.Time),
	}
}

func (s *state) clone() *state {
	out := newState()
	for id, a := range s.accounts {
		out.accounts[id] = cloneAccount(a)
	}
	for id, c := range s.creatures {
		out.creatures[id] = cloneCreature(c)
	}
	for id, it := range s.items {
		out.items[id] = it
	}
	for id, t := range s.trades {
		out.trades[id] = t
	}
	for k, v := range s.idem {
		out.idem[k] = v
	}
	return out
}

type Store struct {
	mu  sync.RWMutex
	cur *state
	now func() time.Time
}

func New() *Store {
	return &Store{cur: newState(), now: func() time.Time { return time.Now().UTC() }}
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx game.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.cur.clone()
	if err := fn(ctx, &tx{st: work, now: s.now}); err != nil {
		return err
	}
	s.cur = work
	return nil
}

// View runs fn against a private copy; writes made by fn are discarded.
func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx game.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	snapshot := s.cur.clone()
	s.mu.RUnlock()
	return fn(ctx, &tx{st: snapshot, now: s.now})
}

func (s *Store) PruneIdempotencyKeys(ctx context.Context, before time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, at := range s.cur.idem {
		if at.Before(before) {
			delete(s.cur.idem, k)
			n++
		}
	}
	return n, nil
}

// SetOwner moves a creature without a trade. Tests use it to simulate
// ownership changes made outside the trade flow.
func (s *Store) SetOwner(creatureID, ownerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cur.creatures[creatureID]
	if !ok {
		return false
	}
	c.OwnerID = ownerID
	s.cur.creatures[creatureID] = c
	return true
}

// SoftDelete marks an account deleted.
func (s *Store) SoftDelete(accountID string, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.cur.accounts[accountID]
	if !ok {
		return false
	}
	a.DeletedAt = &at
	s.cur.accounts[accountID] = a
	return true
}

type tx struct {
	st  *state
	now func() time.Time
}

func (t *tx) ClaimIdempotency(_ context.Context, accountID, key, _ string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return game.ErrInvalidInput
	}
	k := idemKey{accountID: accountID, key: key}
	if _, ok := t.st.idem[k]; ok {
		return game.ErrDuplicateIdempotency
	}
	t.st.idem[k] = t.now()
	return nil
}

func (t *tx) GetAccount(_ context.Context, id string) (game.Account, error) {
	a, ok := t.st.accounts[id]
	if !ok || a.Deleted() {
		return game.Account{}, game.ErrAccountNotFound
	}
	return cloneAccount(a), nil
}

func (t *tx) FindAccountByUsername(_ context.Context, username string) (game.Account, error) {
	for _, a := range t.st.accounts {
		if strings.EqualFold(a.Username, username) && !a.Deleted() {
			return cloneAccount(a), nil
		}
	}
	return game.Account{}, game.ErrAccountNotFound
}

func (t *tx) UsernameInUse(_ context.Context, username string) (bool, error) {
	for _, a := range t.st.accounts {
		if strings.EqualFold(a.Username, username) {
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) FindAccountByBuddy(_ context.Context, creatureID string) (game.Account, bool, error) {
	for _, a := range t.st.accounts {
		if a.BuddyCreatureID == creatureID && !a.Deleted() {
			return cloneAccount(a), true, nil
		}
	}
	return game.Account{}, false, nil
}

func (t *tx) InsertAccount(_ context.Context, a game.Account) (bool, error) {
	if _, ok := t.st.accounts[a.ID]; ok {
		return false, nil
	}
	for _, other := range t.st.accounts {
		if strings.EqualFold(other.Username, a.Username) {
			return false, game.ErrUsernameTaken
		}
	}
	t.st.accounts[a.ID] = cloneAccount(a)
	return true, nil
}

func (t *tx) SaveAccount(_ context.Context, a game.Account) error {
	if _, ok := t.st.accounts[a.ID]; !ok {
		return game.ErrAccountNotFound
	}
	t.st.accounts[a.ID] = cloneAccount(a)
	return nil
}

func (t *tx) GetItem(_ context.Context, id string) (game.Item, error) {
	it, ok := t.st.items[id]
	if !ok {
		return game.Item{}, game.ErrItemNotFound
	}
	return it, nil
}

func (t *tx) ListItems(_ context.Context) ([]game.Item, error) {
	out := make([]game.Item, 0, len(t.st.items))
	for _, it := range t.st.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Price != out[j].Price {
			return out[i].Price < out[j].Price
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *tx) UpsertItem(_ context.Context, it game.Item) error {
	t.st.items[it.ID] = it
	return nil
}

func (t *tx) GetCreature(_ context.Context, id string) (game.Creature, error) {
	c, ok := t.st.creatures[id]
	if !ok {
		return game.Creature{}, game.ErrCreatureNotFound
	}
	return cloneCreature(c), nil
}

func (t *tx) ListCreaturesByOwner(_ context.Context, ownerID string) ([]game.Creature, error) {
	out := []game.Creature{}
	for _, c := range t.st.creatures {
		if c.OwnerID == ownerID {
			out = append(out, cloneCreature(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CaughtAt.Equal(out[j].CaughtAt) {
			return out[i].CaughtAt.Before(out[j].CaughtAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *tx) CountCreaturesByOwner(_ context.Context, ownerID string) (int, error) {
	n := 0
	for _, c := range t.st.creatures {
		if c.OwnerID == ownerID {
			n++
		}
	}
	return n, nil
}

func (t *tx) InsertCreature(_ context.Context, c game.Creature) error {
	t.st.creatures[c.ID] = cloneCreature(c)
	return nil
}

func (t *tx) SaveCreature(_ context.Context, c game.Creature) error {
	cur, ok := t.st.creatures[c.ID]
	if !ok {
		return game.ErrCreatureNotFound
	}
	cur.OwnerID = c.OwnerID
	cur.BuddyOfAccountID = c.BuddyOfAccountID
	cur.Level = c.Level
	cur.Experience = c.Experience
	t.st.creatures[c.ID] = cur
	return nil
}

func (t *tx) AppendTradeHistory(_ context.Context, creatureID string, entry game.TradeHistoryEntry) error {
	c, ok := t.st.creatures[creatureID]
	if !ok {
		return game.ErrCreatureNotFound
	}
	for _, h := range c.History {
		if h.TradeID == entry.TradeID {
			return nil
		}
	}
	c.History = append(c.History, entry)
	t.st.creatures[creatureID] = c
	return nil
}

func (t *tx) GetTrade(_ context.Context, id string) (game.Trade, error) {
	tr, ok := t.st.trades[id]
	if !ok {
		return game.Trade{}, game.ErrTradeNotFound
	}
	return tr, nil
}

func (t *tx) ListTrades(_ context.Context, accountID string) ([]game.Trade, error) {
	out := []game.Trade{}
	for _, tr := range t.st.trades {
		if tr.FromAccountID == accountID || tr.ToAccountID == accountID {
			out = append(out, tr)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *tx) InsertTrade(_ context.Context, tr game.Trade) error {
	t.st.trades[tr.ID] = tr
	return nil
}

func (t *tx) FinishTrade(_ context.Context, id string, status game.TradeStatus, offeredCreatureID string, at time.Time) error {
	tr, ok := t.st.trades[id]
	if !ok {
		return game.ErrTradeNotFound
	}
	if tr.Status != game.TradePending {
		return game.ErrTradeNotPending
	}
	tr.Status = status
	tr.OfferedCreatureID = offeredCreatureID
	tr.UpdatedAt = at
	t.st.trades[id] = tr
	return nil
}

func cloneAccount(a game.Account) game.Account {
	a.Inventory = append([]game.InventoryEntry{}, a.Inventory...)
	if a.DeletedAt != nil {
		at := *a.DeletedAt
		a.DeletedAt = &at
	}
	return a
}

func cloneCreature(c game.Creature) game.Creature {
	c.Types = append([]string(nil), c.Types...)
	c.History = append([]game.TradeHistoryEntry{}, c.History...)
	return c
}
