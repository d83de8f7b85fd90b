package game

import (
	"context"
	"fmt"
	"strings"
)

func (s *Service) Purchase(ctx context.Context, in PurchaseInput) (PurchaseResult, error) {
	var out PurchaseResult
	if in.Quantity <= 0 {
		return out, ErrInvalidQuantity
	}
	if err := requireKey(in.IdempotencyKey); err != nil {
		return out, err
	}
	in.ItemID = strings.ToLower(strings.TrimSpace(in.ItemID))

	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		out = PurchaseResult{ItemID: in.ItemID, Quantity: in.Quantity}
		if err := tx.ClaimIdempotency(ctx, in.AccountID, in.IdempotencyKey, "purchase"); err != nil {
			return err
		}
		item, err := tx.GetItem(ctx, in.ItemID)
		if err != nil {
			return err
		}
		total, err := purchaseTotal(item.Price, in.Quantity)
		if err != nil {
			return err
		}
		acct, err := tx.GetAccount(ctx, in.AccountID)
		if err != nil {
			return err
		}
		if acct.Balance < total {
			return fmt.Errorf("%w: %d x %s costs %d, balance is %d", ErrInsufficientFunds, in.Quantity, item.Name, total, acct.Balance)
		}

		acct.Balance -= total
		out.Owned = addToInventory(&acct, item, in.Quantity)
		acct.UpdatedAt = s.now()
		if err := tx.SaveAccount(ctx, acct); err != nil {
			return err
		}
		out.Total = total
		out.Balance = acct.Balance
		return nil
	})
	if err != nil {
		return PurchaseResult{}, err
	}

	s.recorder.Purchase(out.Total)
	s.log.Info("purchase",
		"account_id", in.AccountID,
		"item_id", out.ItemID,
		"quantity", out.Quantity,
		"total", out.Total,
		"balance", out.Balance,
	)
	return out, nil
}

// addToInventory keeps the snapshot taken on first purchase and returns the new quantity.
func addToInventory(acct *Account, item Item, qty int64) int64 {
	for i := range acct.Inventory {
		if acct.Inventory[i].ItemID == item.ID {
			acct.Inventory[i].Quantity += qty
			return acct.Inventory[i].Quantity
		}
	}
	acct.Inventory = append(acct.Inventory, InventoryEntry{
		ItemID:   item.ID,
		Name:     item.Name,
		Type:     item.Type,
		Effect:   item.Effect,
		Rarity:   item.Rarity,
		Label:    item.Label,
		Price:    item.Price,
		Quantity: qty,
	})
	return qty
}
