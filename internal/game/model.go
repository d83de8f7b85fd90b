package game

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
)

const (
	StarterBalance         = int64(5_000)
	DefaultStorageCapacity = 10

	MaxCaptureRate = 255
)

var (
	ErrSelfTrade        = errors.New("cannot trade with yourself")
	ErrInvalidQuantity  = errors.New("quantity must be a positive integer")
	ErrCreatureNotOwned = errors.New("creature is not owned by this account")
	ErrNotRecipient     = errors.New("only the trade recipient can resolve it")
	ErrInvalidInput     = errors.New("invalid input")
	ErrUsernameTaken    = errors.New("username is already taken")

	ErrAccountNotFound  = errors.New("account not found")
	ErrCreatureNotFound = errors.New("creature not found")
	ErrTradeNotFound    = errors.New("trade not found")
	ErrItemNotFound     = errors.New("item not found")

	ErrTradeNotPending  = errors.New("trade is no longer pending")
	ErrOwnershipChanged = errors.New("offered creature changed owner since the trade was created")

	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrStorageFull       = errors.New("creature storage is full")

	ErrDuplicateIdempotency = errors.New("duplicate idempotency key")
	ErrTxConflict           = errors.New("transaction conflict, retry later")
)

var usernameRE = regexp.MustCompile(`^[a-zA-Z0-9_]{3,24}$`)

func ValidateUsername(username string) error {
	if !usernameRE.MatchString(strings.TrimSpace(username)) {
		return fmt.Errorf("%w: username must be 3-24 letters, digits or underscores", ErrInvalidInput)
	}
	return nil
}

// NormalizeSpecies lower-cases and trims a species name or pokedex number.
func NormalizeSpecies(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

func purchaseTotal(price, quantity int64) (int64, error) {
	if quantity <= 0 {
		return 0, ErrInvalidQuantity
	}
	if price < 0 {
		return 0, fmt.Errorf("negative item price %d", price)
	}
	if price > 0 && quantity > math.MaxInt64/price {
		return 0, ErrInvalidQuantity
	}
	return price * quantity, nil
}

func usernameFromEmail(email string) string {
	email = strings.TrimSpace(strings.ToLower(email))
	parts := strings.Split(email, "@")
	if len(parts) == 0 || parts[0] == "" {
		return "trainer"
	}
	return sanitizeUsername(parts[0])
}

func sanitizeUsername(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "trainer"
	}
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			out = append(out, r)
		} else {
			out = append(out, '_')
		}
	}
	res := strings.Trim(string(out), "_")
	if len(res) < 3 {
		res = "trainer_" + res
	}
	if len(res) > 24 {
		res = res[:24]
	}
	return res
}
