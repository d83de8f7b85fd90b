package game

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// AttemptCatch charges the tier cost whether or not the creature is caught.
// The debit and the creature insert commit together.
func (s *Service) AttemptCatch(ctx context.Context, in CatchInput) (CatchResult, error) {
	var out CatchResult
	if err := requireKey(in.IdempotencyKey); err != nil {
		return out, err
	}
	identifier := NormalizeSpecies(in.Species)
	if identifier == "" {
		return out, fmt.Errorf("%w: species is required", ErrInvalidInput)
	}

	info, err := s.catalog.Lookup(ctx, identifier)
	if err != nil {
		return out, err
	}
	tier, err := s.tiers.ForCaptureRate(info.CaptureRate)
	if err != nil {
		return out, err
	}

	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		out = CatchResult{
			SpeciesName: info.Name,
			SpeciesID:   info.ID,
			CaptureRate: info.CaptureRate,
			Cost:        tier.Cost,
		}
		if err := tx.ClaimIdempotency(ctx, in.AccountID, in.IdempotencyKey, "catch"); err != nil {
			return err
		}
		acct, err := tx.GetAccount(ctx, in.AccountID)
		if err != nil {
			return err
		}
		if acct.Balance < tier.Cost {
			return fmt.Errorf("%w: catching %s costs %d, balance is %d", ErrInsufficientFunds, info.Name, tier.Cost, acct.Balance)
		}
		owned, err := tx.CountCreaturesByOwner(ctx, acct.ID)
		if err != nil {
			return err
		}
		if owned >= acct.StorageCapacity {
			return fmt.Errorf("%w: %d of %d slots used", ErrStorageFull, owned, acct.StorageCapacity)
		}

		now := s.now()
		acct.Balance -= tier.Cost
		acct.UpdatedAt = now
		if err := tx.SaveAccount(ctx, acct); err != nil {
			return err
		}
		out.Balance = acct.Balance

		if s.nextFloat() >= float64(info.CaptureRate)/MaxCaptureRate {
			out.Outcome = OutcomeFled
			return nil
		}

		c := Creature{
			ID:          uuid.NewString(),
			SpeciesName: strings.ToLower(info.Name),
			SpeciesID:   info.ID,
			Types:       append([]string(nil), info.Types...),
			SpriteURL:   info.SpriteURL,
			Level:       s.nextInRange(tier.MinLevel, tier.MaxLevel),
			OwnerID:     acct.ID,
			CaughtAt:    now,
			History:     []TradeHistoryEntry{},
		}
		if err := tx.InsertCreature(ctx, c); err != nil {
			return err
		}
		out.Outcome = OutcomeCaught
		out.Creature = &c
		return nil
	})
	if err != nil {
		return CatchResult{}, err
	}

	s.recorder.CatchAttempt(out.Outcome, out.Cost)
	s.log.Info("catch attempted",
		"account_id", in.AccountID,
		"species", out.SpeciesName,
		"cost", out.Cost,
		"outcome", out.Outcome,
		"balance", out.Balance,
	)
	return out, nil
}
