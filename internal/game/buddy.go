package game

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// AssignBuddy is a no-op when the creature already is the account's buddy.
func (s *Service) AssignBuddy(ctx context.Context, in AssignBuddyInput) (Account, error) {
	var out Account
	in.CreatureID = strings.TrimSpace(in.CreatureID)
	if in.CreatureID == "" {
		return out, fmt.Errorf("%w: creature id is required", ErrInvalidInput)
	}
	changed := false
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		changed = false
		acct, err := tx.GetAccount(ctx, in.AccountID)
		if err != nil {
			return err
		}
		target, err := tx.GetCreature(ctx, in.CreatureID)
		if errors.Is(err, ErrCreatureNotFound) {
			return ErrCreatureNotOwned
		}
		if err != nil {
			return err
		}
		if target.OwnerID != acct.ID {
			return ErrCreatureNotOwned
		}
		if acct.BuddyCreatureID == target.ID && target.BuddyOfAccountID == acct.ID {
			out = acct
			return nil
		}

		if prevID := acct.BuddyCreatureID; prevID != "" && prevID != target.ID {
			prev, err := tx.GetCreature(ctx, prevID)
			switch {
			case err == nil:
				if prev.BuddyOfAccountID == acct.ID {
					prev.BuddyOfAccountID = ""
					if err := tx.SaveCreature(ctx, prev); err != nil {
						return err
					}
				}
			case !errors.Is(err, ErrCreatureNotFound):
				return err
			}
		}

		acct.BuddyCreatureID = target.ID
		acct.UpdatedAt = s.now()
		if err := tx.SaveAccount(ctx, acct); err != nil {
			return err
		}
		target.BuddyOfAccountID = acct.ID
		if err := tx.SaveCreature(ctx, target); err != nil {
			return err
		}
		out = acct
		changed = true
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	if changed {
		s.log.Info("buddy assigned", "account_id", out.ID, "creature_id", out.BuddyCreatureID)
	}
	return out, nil
}

// UnassignBuddy clears whichever account points at the creature. A creature
// that is nobody's buddy is left as is.
func (s *Service) UnassignBuddy(ctx context.Context, creatureID string) error {
	creatureID = strings.TrimSpace(creatureID)
	if creatureID == "" {
		return fmt.Errorf("%w: creature id is required", ErrInvalidInput)
	}
	var accountID string
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		accountID = ""
		c, err := tx.GetCreature(ctx, creatureID)
		if err != nil {
			return err
		}
		acct, found, err := tx.FindAccountByBuddy(ctx, creatureID)
		if err != nil {
			return err
		}
		if found {
			acct.BuddyCreatureID = ""
			acct.UpdatedAt = s.now()
			if err := tx.SaveAccount(ctx, acct); err != nil {
				return err
			}
			accountID = acct.ID
		}
		if c.BuddyOfAccountID != "" {
			c.BuddyOfAccountID = ""
			return tx.SaveCreature(ctx, c)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if accountID != "" {
		s.log.Info("buddy cleared", "account_id", accountID, "creature_id", creatureID)
	}
	return nil
}

// ClearBuddy unassigns the account's current buddy, if any.
func (s *Service) ClearBuddy(ctx context.Context, accountID string) error {
	var buddyID string
	err := s.store.View(ctx, func(ctx context.Context, tx Tx) error {
		acct, err := tx.GetAccount(ctx, accountID)
		buddyID = acct.BuddyCreatureID
		return err
	})
	if err != nil || buddyID == "" {
		return err
	}
	return s.UnassignBuddy(ctx, buddyID)
}

// Buddy returns the account's buddy creature and false when none is set.
func (s *Service) Buddy(ctx context.Context, accountID string) (Creature, bool, error) {
	var (
		out   Creature
		found bool
	)
	err := s.store.View(ctx, func(ctx context.Context, tx Tx) error {
		acct, err := tx.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if acct.BuddyCreatureID == "" {
			return nil
		}
		c, err := tx.GetCreature(ctx, acct.BuddyCreatureID)
		if errors.Is(err, ErrCreatureNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		out, found = c, true
		return nil
	})
	return out, found, err
}
