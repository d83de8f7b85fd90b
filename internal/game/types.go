package game

import "time"

type TradeStatus string

const (
	TradePending  TradeStatus = "pending"
	TradeAccepted TradeStatus = "accepted"
	TradeRejected TradeStatus = "rejected"
)

func (s TradeStatus) Terminal() bool {
	return s == TradeAccepted || s == TradeRejected
}

type TradeAction string

const (
	ActionAccept TradeAction = "accept"
	ActionReject TradeAction = "reject"
)

type CatchOutcome string

const (
	OutcomeCaught CatchOutcome = "caught"
	OutcomeFled   CatchOutcome = "fled"
)

type Account struct {
	ID              string           `json:"id"`
	Username        string           `json:"username"`
	Email           string           `json:"email"`
	Balance         int64            `json:"balance"`
	StorageCapacity int              `json:"storage_capacity"`
	BuddyCreatureID string           `json:"buddy_creature_id,omitempty"`
	Inventory       []InventoryEntry `json:"inventory"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
	DeletedAt       *time.Time       `json:"deleted_at,omitempty"`
}

func (a Account) Deleted() bool {
	return a.DeletedAt != nil
}

// InventoryEntry snapshots the item's price, effect and rarity at the time it was first bought.
type InventoryEntry struct {
	ItemID   string `json:"item_id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Effect   string `json:"effect"`
	Rarity   string `json:"rarity"`
	Label    string `json:"label,omitempty"`
	Price    int64  `json:"price"`
	Quantity int64  `json:"quantity"`
}

type Item struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Effect string `json:"effect"`
	Price  int64  `json:"price"`
	Rarity string `json:"rarity"`
	Label  string `json:"label,omitempty"`
}

type Creature struct {
	ID               string              `json:"id"`
	SpeciesName      string              `json:"species_name"`
	SpeciesID        int                 `json:"species_id"`
	Types            []string            `json:"types"`
	SpriteURL        string              `json:"sprite_url,omitempty"`
	Level            int                 `json:"level"`
	Experience       int64               `json:"experience"`
	OwnerID          string              `json:"owner_id"`
	BuddyOfAccountID string              `json:"buddy_of_account_id,omitempty"`
	CaughtAt         time.Time           `json:"caught_at"`
	History          []TradeHistoryEntry `json:"trade_history"`
}

type TradeHistoryEntry struct {
	TradeID       string    `json:"trade_id"`
	FromAccountID string    `json:"from_account_id"`
	ToAccountID   string    `json:"to_account_id"`
	TradedAt      time.Time `json:"traded_at"`
}

type Trade struct {
	ID                string      `json:"id"`
	FromAccountID     string      `json:"from_account_id"`
	ToAccountID       string      `json:"to_account_id"`
	CreatureID        string      `json:"creature_id"`
	OfferedCreatureID string      `json:"offered_creature_id,omitempty"`
	Status            TradeStatus `json:"status"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

type Profile struct {
	Account
	CreatureCount int `json:"creature_count"`
}

type CatchInput struct {
	AccountID      string
	Species        string
	IdempotencyKey string
}

type CatchResult struct {
	Outcome     CatchOutcome `json:"outcome"`
	SpeciesName string       `json:"species_name"`
	SpeciesID   int          `json:"species_id"`
	CaptureRate int          `json:"capture_rate"`
	Cost        int64        `json:"cost"`
	Balance     int64        `json:"balance"`
	Creature    *Creature    `json:"creature,omitempty"`
}

type PurchaseInput struct {
	AccountID      string
	ItemID         string
	Quantity       int64
	IdempotencyKey string
}

type PurchaseResult struct {
	ItemID   string `json:"item_id"`
	Quantity int64  `json:"quantity"`
	Owned    int64  `json:"owned"`
	Total    int64  `json:"total"`
	Balance  int64  `json:"balance"`
}

type CreateTradeInput struct {
	FromAccountID  string
	ToAccountID    string
	ToUsername     string
	CreatureID     string
	IdempotencyKey string
}

type ResolveTradeInput struct {
	TradeID           string
	ActingAccountID   string
	Action            TradeAction
	OfferedCreatureID string
	IdempotencyKey    string
}

type AssignBuddyInput struct {
	AccountID  string
	CreatureID string
}
