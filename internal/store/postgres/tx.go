package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"pokeden/internal/game"
)

type pgTx struct {
	tx   pgx.Tx
	lock bool
}

func (t *pgTx) forUpdate() string {
	if t.lock {
		return " FOR UPDATE"
	}
	return ""
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func nullID(id string) any {
	if id == "" {
		return nil
	}
	return id
}

func (t *pgTx) ClaimIdempotency(ctx context.Context, accountID, key, action string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return game.ErrInvalidInput
	}
	if !validID(accountID) {
		return game.ErrAccountNotFound
	}
	cmd, err := t.tx.Exec(ctx, `
		INSERT INTO pokeden.idempotency_keys (account_id, key, action, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (account_id, key) DO NOTHING
	`, accountID, key, action)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return game.ErrDuplicateIdempotency
	}
	return nil
}

const accountColumns = `
	id::text, username, email, balance, storage_capacity,
	COALESCE(buddy_creature_id::text, ''), created_at, updated_at, deleted_at`

func scanAccount(row pgx.Row) (game.Account, error) {
	var a game.Account
	err := row.Scan(&a.ID, &a.Username, &a.Email, &a.Balance, &a.StorageCapacity,
		&a.BuddyCreatureID, &a.CreatedAt, &a.UpdatedAt, &a.DeletedAt)
	return a, err
}

func (t *pgTx) GetAccount(ctx context.Context, id string) (game.Account, error) {
	if !validID(id) {
		return game.Account{}, game.ErrAccountNotFound
	}
	a, err := scanAccount(t.tx.QueryRow(ctx, `
		SELECT`+accountColumns+`
		FROM pokeden.accounts
		WHERE id = $1`+t.forUpdate(), id))
	if errors.Is(err, pgx.ErrNoRows) {
		return game.Account{}, game.ErrAccountNotFound
	}
	if err != nil {
		return game.Account{}, err
	}
	if a.Deleted() {
		return game.Account{}, game.ErrAccountNotFound
	}
	a.Inventory, err = t.inventory(ctx, a.ID)
	if err != nil {
		return game.Account{}, err
	}
	return a, nil
}

func (t *pgTx) inventory(ctx context.Context, accountID string) ([]game.InventoryEntry, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT item_id, name, type, effect, rarity, label, price, quantity
		FROM pokeden.account_items
		WHERE account_id = $1
		ORDER BY position
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []game.InventoryEntry{}
	for rows.Next() {
		var e game.InventoryEntry
		if err := rows.Scan(&e.ItemID, &e.Name, &e.Type, &e.Effect, &e.Rarity, &e.Label, &e.Price, &e.Quantity); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (t *pgTx) FindAccountByUsername(ctx context.Context, username string) (game.Account, error) {
	var id string
	err := t.tx.QueryRow(ctx, `
		SELECT id::text
		FROM pokeden.accounts
		WHERE lower(username) = lower($1) AND deleted_at IS NULL
	`, strings.TrimSpace(username)).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return game.Account{}, game.ErrAccountNotFound
	}
	if err != nil {
		return game.Account{}, err
	}
	return t.GetAccount(ctx, id)
}

func (t *pgTx) UsernameInUse(ctx context.Context, username string) (bool, error) {
	var taken bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM pokeden.accounts WHERE lower(username) = lower($1))
	`, strings.TrimSpace(username)).Scan(&taken)
	return taken, err
}

func (t *pgTx) FindAccountByBuddy(ctx context.Context, creatureID string) (game.Account, bool, error) {
	if !validID(creatureID) {
		return game.Account{}, false, nil
	}
	var id string
	err := t.tx.QueryRow(ctx, `
		SELECT id::text
		FROM pokeden.accounts
		WHERE buddy_creature_id = $1 AND deleted_at IS NULL
	`, creatureID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return game.Account{}, false, nil
	}
	if err != nil {
		return game.Account{}, false, err
	}
	a, err := t.GetAccount(ctx, id)
	if err != nil {
		return game.Account{}, false, err
	}
	return a, true, nil
}

func (t *pgTx) InsertAccount(ctx context.Context, a game.Account) (bool, error) {
	if !validID(a.ID) {
		return false, game.ErrInvalidInput
	}
	cmd, err := t.tx.Exec(ctx, `
		INSERT INTO pokeden.accounts (id, username, email, balance, storage_capacity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, a.ID, a.Username, a.Email, a.Balance, a.StorageCapacity, a.CreatedAt, a.UpdatedAt)
	if isUniqueViolation(err) {
		return false, game.ErrUsernameTaken
	}
	if err != nil {
		return false, err
	}
	if cmd.RowsAffected() == 0 {
		return false, nil
	}
	return true, t.saveInventory(ctx, a.ID, a.Inventory)
}

func (t *pgTx) SaveAccount(ctx context.Context, a game.Account) error {
	cmd, err := t.tx.Exec(ctx, `
		UPDATE pokeden.accounts
		SET balance = $2, storage_capacity = $3, buddy_creature_id = $4, updated_at = $5
		WHERE id = $1
	`, a.ID, a.Balance, a.StorageCapacity, nullID(a.BuddyCreatureID), a.UpdatedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return game.ErrAccountNotFound
	}
	return t.saveInventory(ctx, a.ID, a.Inventory)
}

func (t *pgTx) saveInventory(ctx context.Context, accountID string, inv []game.InventoryEntry) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM pokeden.account_items WHERE account_id = $1`, accountID); err != nil {
		return err
	}
	if len(inv) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i, e := range inv {
		batch.Queue(`
			INSERT INTO pokeden.account_items (account_id, item_id, position, name, type, effect, rarity, label, price, quantity)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, accountID, e.ItemID, i, e.Name, e.Type, e.Effect, e.Rarity, e.Label, e.Price, e.Quantity)
	}
	return t.tx.SendBatch(ctx, batch).Close()
}

func (t *pgTx) GetItem(ctx context.Context, id string) (game.Item, error) {
	var it game.Item
	err := t.tx.QueryRow(ctx, `
		SELECT id, name, type, effect, price, rarity, label
		FROM pokeden.items
		WHERE id = $1
	`, id).Scan(&it.ID, &it.Name, &it.Type, &it.Effect, &it.Price, &it.Rarity, &it.Label)
	if errors.Is(err, pgx.ErrNoRows) {
		return game.Item{}, game.ErrItemNotFound
	}
	return it, err
}

func (t *pgTx) ListItems(ctx context.Context) ([]game.Item, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, name, type, effect, price, rarity, label
		FROM pokeden.items
		ORDER BY price, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []game.Item{}
	for rows.Next() {
		var it game.Item
		if err := rows.Scan(&it.ID, &it.Name, &it.Type, &it.Effect, &it.Price, &it.Rarity, &it.Label); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (t *pgTx) UpsertItem(ctx context.Context, it game.Item) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO pokeden.items (id, name, type, effect, price, rarity, label)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, type = EXCLUDED.type, effect = EXCLUDED.effect,
			price = EXCLUDED.price, rarity = EXCLUDED.rarity, label = EXCLUDED.label
	`, it.ID, it.Name, it.Type, it.Effect, it.Price, it.Rarity, it.Label)
	return err
}

const creatureColumns = `
	id::text, species_name, species_id, types, sprite_url, level, experience,
	owner_id::text, COALESCE(buddy_of_account_id::text, ''), caught_at`

func scanCreature(row pgx.Row) (game.Creature, error) {
	var c game.Creature
	err := row.Scan(&c.ID, &c.SpeciesName, &c.SpeciesID, &c.Types, &c.SpriteURL, &c.Level, &c.Experience,
		&c.OwnerID, &c.BuddyOfAccountID, &c.CaughtAt)
	return c, err
}

func (t *pgTx) GetCreature(ctx context.Context, id string) (game.Creature, error) {
	if !validID(id) {
		return game.Creature{}, game.ErrCreatureNotFound
	}
	c, err := scanCreature(t.tx.QueryRow(ctx, `
		SELECT`+creatureColumns+`
		FROM pokeden.creatures
		WHERE id = $1`+t.forUpdate(), id))
	if errors.Is(err, pgx.ErrNoRows) {
		return game.Creature{}, game.ErrCreatureNotFound
	}
	if err != nil {
		return game.Creature{}, err
	}
	history, err := t.history(ctx, []string{c.ID})
	if err != nil {
		return game.Creature{}, err
	}
	c.History = history[c.ID]
	if c.History == nil {
		c.History = []game.TradeHistoryEntry{}
	}
	return c, nil
}

func (t *pgTx) history(ctx context.Context, creatureIDs []string) (map[string][]game.TradeHistoryEntry, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT creature_id::text, trade_id::text, from_account_id::text, to_account_id::text, traded_at
		FROM pokeden.creature_trade_history
		WHERE creature_id = ANY($1::uuid[])
		ORDER BY traded_at, trade_id
	`, creatureIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string][]game.TradeHistoryEntry, len(creatureIDs))
	for rows.Next() {
		var creatureID string
		var e game.TradeHistoryEntry
		if err := rows.Scan(&creatureID, &e.TradeID, &e.FromAccountID, &e.ToAccountID, &e.TradedAt); err != nil {
			return nil, err
		}
		out[creatureID] = append(out[creatureID], e)
	}
	return out, rows.Err()
}

func (t *pgTx) ListCreaturesByOwner(ctx context.Context, ownerID string) ([]game.Creature, error) {
	out := []game.Creature{}
	if !validID(ownerID) {
		return out, nil
	}
	rows, err := t.tx.Query(ctx, `
		SELECT`+creatureColumns+`
		FROM pokeden.creatures
		WHERE owner_id = $1
		ORDER BY caught_at, id
	`, ownerID)
	if err != nil {
		return nil, err
	}
	ids := []string{}
	for rows.Next() {
		c, err := scanCreature(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, c)
		ids = append(ids, c.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}
	history, err := t.history(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].History = history[out[i].ID]
		if out[i].History == nil {
			out[i].History = []game.TradeHistoryEntry{}
		}
	}
	return out, nil
}

func (t *pgTx) CountCreaturesByOwner(ctx context.Context, ownerID string) (int, error) {
	if !validID(ownerID) {
		return 0, nil
	}
	var n int
	err := t.tx.QueryRow(ctx, `SELECT COUNT(1) FROM pokeden.creatures WHERE owner_id = $1`, ownerID).Scan(&n)
	return n, err
}

func (t *pgTx) InsertCreature(ctx context.Context, c game.Creature) error {
	types := c.Types
	if types == nil {
		types = []string{}
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO pokeden.creatures (id, species_name, species_id, types, sprite_url, level, experience, owner_id, buddy_of_account_id, caught_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, c.ID, c.SpeciesName, c.SpeciesID, types, c.SpriteURL, c.Level, c.Experience, c.OwnerID, nullID(c.BuddyOfAccountID), c.CaughtAt)
	return err
}

func (t *pgTx) SaveCreature(ctx context.Context, c game.Creature) error {
	cmd, err := t.tx.Exec(ctx, `
		UPDATE pokeden.creatures
		SET owner_id = $2, buddy_of_account_id = $3, level = $4, experience = $5
		WHERE id = $1
	`, c.ID, c.OwnerID, nullID(c.BuddyOfAccountID), c.Level, c.Experience)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return game.ErrCreatureNotFound
	}
	return nil
}

func (t *pgTx) AppendTradeHistory(ctx context.Context, creatureID string, e game.TradeHistoryEntry) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO pokeden.creature_trade_history (creature_id, trade_id, from_account_id, to_account_id, traded_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (creature_id, trade_id) DO NOTHING
	`, creatureID, e.TradeID, e.FromAccountID, e.ToAccountID, e.TradedAt)
	return err
}

const tradeColumns = `
	id::text, from_account_id::text, to_account_id::text, creature_id::text,
	COALESCE(offered_creature_id::text, ''), status, created_at, updated_at`

func scanTrade(row pgx.Row) (game.Trade, error) {
	var tr game.Trade
	var status string
	err := row.Scan(&tr.ID, &tr.FromAccountID, &tr.ToAccountID, &tr.CreatureID,
		&tr.OfferedCreatureID, &status, &tr.CreatedAt, &tr.UpdatedAt)
	tr.Status = game.TradeStatus(status)
	return tr, err
}

func (t *pgTx) GetTrade(ctx context.Context, id string) (game.Trade, error) {
	if !validID(id) {
		return game.Trade{}, game.ErrTradeNotFound
	}
	tr, err := scanTrade(t.tx.QueryRow(ctx, `
		SELECT`+tradeColumns+`
		FROM pokeden.trades
		WHERE id = $1`+t.forUpdate(), id))
	if errors.Is(err, pgx.ErrNoRows) {
		return game.Trade{}, game.ErrTradeNotFound
	}
	return tr, err
}

func (t *pgTx) ListTrades(ctx context.Context, accountID string) ([]game.Trade, error) {
	out := []game.Trade{}
	if !validID(accountID) {
		return out, nil
	}
	rows, err := t.tx.Query(ctx, `
		SELECT`+tradeColumns+`
		FROM pokeden.trades
		WHERE from_account_id = $1 OR to_account_id = $1
		ORDER BY created_at DESC, id
		LIMIT 200
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		tr, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

func (t *pgTx) InsertTrade(ctx context.Context, tr game.Trade) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO pokeden.trades (id, from_account_id, to_account_id, creature_id, offered_creature_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, tr.ID, tr.FromAccountID, tr.ToAccountID, tr.CreatureID, nullID(tr.OfferedCreatureID), string(tr.Status), tr.CreatedAt, tr.UpdatedAt)
	return err
}

func (t *pgTx) FinishTrade(ctx context.Context, id string, status game.TradeStatus, offeredCreatureID string, at time.Time) error {
	cmd, err := t.tx.Exec(ctx, `
		UPDATE pokeden.trades
		SET status = $2, offered_creature_id = $3, updated_at = $4
		WHERE id = $1 AND status = 'pending'
	`, id, string(status), nullID(offeredCreatureID), at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return game.ErrTradeNotPending
	}
	return nil
}
