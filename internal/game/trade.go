package game

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

func (s *Service) CreateTrade(ctx context.Context, in CreateTradeInput) (Trade, error) {
	var out Trade
	if err := requireKey(in.IdempotencyKey); err != nil {
		return out, err
	}
	in.CreatureID = strings.TrimSpace(in.CreatureID)
	in.ToUsername = strings.TrimSpace(in.ToUsername)
	if in.CreatureID == "" {
		return out, fmt.Errorf("%w: creature id is required", ErrInvalidInput)
	}
	if in.ToAccountID == "" && in.ToUsername == "" {
		return out, fmt.Errorf("%w: trade recipient is required", ErrInvalidInput)
	}

	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.ClaimIdempotency(ctx, in.FromAccountID, in.IdempotencyKey, "create_trade"); err != nil {
			return err
		}
		toID := in.ToAccountID
		if toID == "" {
			to, err := tx.FindAccountByUsername(ctx, in.ToUsername)
			if err != nil {
				return err
			}
			toID = to.ID
		}
		if toID == in.FromAccountID {
			return ErrSelfTrade
		}
		if _, err := lockAccounts(ctx, tx, in.FromAccountID, toID); err != nil {
			return err
		}

		c, err := tx.GetCreature(ctx, in.CreatureID)
		if err != nil {
			return err
		}
		if c.OwnerID != in.FromAccountID {
			return ErrCreatureNotOwned
		}

		now := s.now()
		out = Trade{
			ID:            uuid.NewString(),
			FromAccountID: in.FromAccountID,
			ToAccountID:   toID,
			CreatureID:    c.ID,
			Status:        TradePending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		return tx.InsertTrade(ctx, out)
	})
	if err != nil {
		return Trade{}, err
	}

	s.recorder.TradeEvent("created")
	s.log.Info("trade created",
		"trade_id", out.ID,
		"from_account_id", out.FromAccountID,
		"to_account_id", out.ToAccountID,
		"creature_id", out.CreatureID,
	)
	return out, nil
}

// ResolveTrade accepts or rejects a pending trade on behalf of its recipient.
// On accept the recipient may offer one of its own creatures in return; the
// offered creature is chosen here, not when the trade was created.
func (s *Service) ResolveTrade(ctx context.Context, in ResolveTradeInput) (Trade, error) {
	var out Trade
	in.OfferedCreatureID = strings.TrimSpace(in.OfferedCreatureID)
	switch in.Action {
	case ActionAccept:
	case ActionReject:
		if in.OfferedCreatureID != "" {
			return out, fmt.Errorf("%w: a rejection cannot offer a creature", ErrInvalidInput)
		}
	default:
		return out, fmt.Errorf("%w: action must be accept or reject", ErrInvalidInput)
	}
	if err := requireKey(in.IdempotencyKey); err != nil {
		return out, err
	}

	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.ClaimIdempotency(ctx, in.ActingAccountID, in.IdempotencyKey, "resolve_trade"); err != nil {
			return err
		}
		t, err := tx.GetTrade(ctx, in.TradeID)
		if err != nil {
			return err
		}
		if t.ToAccountID != in.ActingAccountID {
			return ErrNotRecipient
		}
		if t.Status != TradePending {
			return ErrTradeNotPending
		}

		now := s.now()
		if in.Action == ActionReject {
			if err := tx.FinishTrade(ctx, t.ID, TradeRejected, "", now); err != nil {
				return err
			}
			t.Status = TradeRejected
			t.UpdatedAt = now
			out = t
			return nil
		}

		if err := s.acceptTrade(ctx, tx, &t, in.OfferedCreatureID, now); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return Trade{}, err
	}

	s.recorder.TradeEvent(string(out.Status))
	s.log.Info("trade resolved",
		"trade_id", out.ID,
		"action", in.Action,
		"offered_creature_id", out.OfferedCreatureID,
	)
	return out, nil
}

func (s *Service) acceptTrade(ctx context.Context, tx Tx, t *Trade, offeredID string, now time.Time) error {
	accounts, err := lockAccounts(ctx, tx, t.FromAccountID, t.ToAccountID)
	if err != nil {
		return err
	}
	from, to := accounts[t.FromAccountID], accounts[t.ToAccountID]

	creatures, err := lockCreatures(ctx, tx, t.CreatureID, offeredID)
	if err != nil {
		return err
	}
	source, ok := creatures[t.CreatureID]
	if !ok || source.OwnerID != from.ID {
		return ErrOwnershipChanged
	}
	if offeredID == t.CreatureID {
		return ErrSelfTrade
	}

	var offered Creature
	if offeredID != "" {
		// A missing creature is reported as not owned.
		offered, ok = creatures[offeredID]
		if !ok || offered.OwnerID != to.ID {
			return ErrCreatureNotOwned
		}
	} else {
		owned, err := tx.CountCreaturesByOwner(ctx, to.ID)
		if err != nil {
			return err
		}
		if owned >= to.StorageCapacity {
			return fmt.Errorf("%w: recipient has %d of %d slots used", ErrStorageFull, owned, to.StorageCapacity)
		}
	}

	if err := transferCreature(ctx, tx, &source, &from, to.ID, t.ID, now); err != nil {
		return err
	}
	if offeredID != "" {
		if err := transferCreature(ctx, tx, &offered, &to, from.ID, t.ID, now); err != nil {
			return err
		}
	}
	if err := tx.FinishTrade(ctx, t.ID, TradeAccepted, offeredID, now); err != nil {
		return err
	}
	t.Status = TradeAccepted
	t.OfferedCreatureID = offeredID
	t.UpdatedAt = now
	return nil
}

// transferCreature moves c to newOwnerID, dropping any buddy link it had with
// its previous owner, and records the transfer in the creature's history.
func transferCreature(ctx context.Context, tx Tx, c *Creature, prevOwner *Account, newOwnerID, tradeID string, at time.Time) error {
	if prevOwner.BuddyCreatureID == c.ID {
		prevOwner.BuddyCreatureID = ""
		prevOwner.UpdatedAt = at
		if err := tx.SaveAccount(ctx, *prevOwner); err != nil {
			return err
		}
	}
	c.BuddyOfAccountID = ""
	c.OwnerID = newOwnerID
	if err := tx.SaveCreature(ctx, *c); err != nil {
		return err
	}
	entry := TradeHistoryEntry{
		TradeID:       tradeID,
		FromAccountID: prevOwner.ID,
		ToAccountID:   newOwnerID,
		TradedAt:      at,
	}
	if err := tx.AppendTradeHistory(ctx, c.ID, entry); err != nil {
		return err
	}
	c.History = append(c.History, entry)
	return nil
}

// lockAccounts loads accounts in id order so concurrent trades lock rows consistently.
func lockAccounts(ctx context.Context, tx Tx, ids ...string) (map[string]Account, error) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	out := make(map[string]Account, len(sorted))
	for _, id := range sorted {
		if _, ok := out[id]; ok {
			continue
		}
		a, err := tx.GetAccount(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = a
	}
	return out, nil
}

// lockCreatures loads creatures in id order and skips empty or missing ids.
func lockCreatures(ctx context.Context, tx Tx, ids ...string) (map[string]Creature, error) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	out := make(map[string]Creature, len(sorted))
	for _, id := range sorted {
		if id == "" {
			continue
		}
		c, err := tx.GetCreature(ctx, id)
		if errors.Is(err, ErrCreatureNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[id] = c
	}
	return out, nil
}
