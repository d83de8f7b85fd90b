package game

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestValidateUsername(t *testing.T) {
	valid := []string{"ash", "misty_99", "Brock"}
	for _, s := range valid {
		if err := ValidateUsername(s); err != nil {
			t.Fatalf("expected username %q to be valid: %v", s, err)
		}
	}

	invalid := []string{"ab", "has space", "way_too_long_for_a_trainer_name", "dash-name"}
	for _, s := range invalid {
		if err := ValidateUsername(s); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected username %q to fail with ErrInvalidInput, got %v", s, err)
		}
	}
}

func TestSanitizeUsername(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "Red.Trainer", want: "red_trainer"},
		{in: "ab", want: "trainer_ab"},
		{in: "", want: "trainer"},
		{in: "a_very_long_username_that_keeps_going", want: "a_very_long_username_tha"},
	}
	for _, tc := range tests {
		got := sanitizeUsername(tc.in)
		if got != tc.want {
			t.Fatalf("sanitizeUsername(%q) = %q want %q", tc.in, got, tc.want)
		}
		if tc.in != "" && !usernameRE.MatchString(got) {
			t.Fatalf("sanitized %q is not a valid username", got)
		}
	}
}

func TestUsernameFromEmail(t *testing.T) {
	if got := usernameFromEmail("Ash.Ketchum@pallet.town"); got != "ash_ketchum" {
		t.Fatalf("got %q", got)
	}
	if got := usernameFromEmail("@nowhere"); got != "trainer" {
		t.Fatalf("got %q", got)
	}
}

func TestPurchaseTotal(t *testing.T) {
	got, err := purchaseTotal(250, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 1000 {
		t.Fatalf("got %d want 1000", got)
	}

	for _, qty := range []int64{0, -3} {
		if _, err := purchaseTotal(250, qty); !errors.Is(err, ErrInvalidQuantity) {
			t.Fatalf("quantity %d: expected ErrInvalidQuantity, got %v", qty, err)
		}
	}
	if _, err := purchaseTotal(math.MaxInt64/2, 3); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected overflow to fail, got %v", err)
	}
}

func TestDefaultTierTable(t *testing.T) {
	table := DefaultTierTable()
	if err := table.Validate(); err != nil {
		t.Fatalf("default table invalid: %v", err)
	}
	tests := []struct {
		rate int
		cost int64
	}{
		{rate: 0, cost: 5000},
		{rate: 3, cost: 5000},
		{rate: 44, cost: 5000},
		{rate: 45, cost: 3000},
		{rate: 119, cost: 3000},
		{rate: 120, cost: 2000},
		{rate: 189, cost: 2000},
		{rate: 190, cost: 1000},
		{rate: 200, cost: 1000},
		{rate: 255, cost: 1000},
	}
	for _, tc := range tests {
		tier, err := table.ForCaptureRate(tc.rate)
		if err != nil {
			t.Fatalf("rate %d: %v", tc.rate, err)
		}
		if tier.Cost != tc.cost {
			t.Fatalf("rate %d: cost %d want %d", tc.rate, tier.Cost, tc.cost)
		}
	}
	for _, rate := range []int{-1, 256} {
		if _, err := table.ForCaptureRate(rate); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("rate %d: expected ErrInvalidInput, got %v", rate, err)
		}
	}
}

func TestTierCostsDecreaseWithCaptureRate(t *testing.T) {
	table := DefaultTierTable()
	for i := 1; i < len(table); i++ {
		if table[i].Cost >= table[i-1].Cost {
			t.Fatalf("tier %d cost %d is not cheaper than tier %d cost %d", i, table[i].Cost, i-1, table[i-1].Cost)
		}
		if table[i].MaxLevel > table[i-1].MaxLevel {
			t.Fatalf("tier %d level cap %d exceeds rarer tier cap %d", i, table[i].MaxLevel, table[i-1].MaxLevel)
		}
	}
}

func TestParseTierTable(t *testing.T) {
	raw := []byte(`
catch_tiers:
  - max_capture_rate: 255
    cost: 500
    min_level: 1
    max_level: 5
  - max_capture_rate: 99
    cost: 4000
    min_level: 20
    max_level: 40
`)
	table, err := ParseTierTable(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(table) != 2 || table[0].MaxCaptureRate != 99 {
		t.Fatalf("tiers not sorted: %+v", table)
	}

	bad := map[string]string{
		"gap at top":     "catch_tiers:\n  - {max_capture_rate: 200, cost: 10, min_level: 1, max_level: 2}\n",
		"zero cost":      "catch_tiers:\n  - {max_capture_rate: 255, cost: 0, min_level: 1, max_level: 2}\n",
		"inverted level": "catch_tiers:\n  - {max_capture_rate: 255, cost: 10, min_level: 9, max_level: 2}\n",
		"duplicate band": "catch_tiers:\n  - {max_capture_rate: 255, cost: 10, min_level: 1, max_level: 2}\n  - {max_capture_rate: 255, cost: 20, min_level: 1, max_level: 2}\n",
		"empty":          "catch_tiers: []\n",
		"not yaml":       "catch_tiers: [",
	}
	for name, doc := range bad {
		if _, err := ParseTierTable([]byte(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadTierTable(t *testing.T) {
	def, err := LoadTierTable("")
	if err != nil || len(def) != len(DefaultTierTable()) {
		t.Fatalf("expected default table, got %v (%v)", def, err)
	}

	path := filepath.Join(t.TempDir(), "balance.yaml")
	raw := []byte(`catch_tiers:
  - {max_capture_rate: 255, cost: 800, min_level: 2, max_level: 12}
  - {max_capture_rate: 99, cost: 4000, min_level: 20, max_level: 40}
`)
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatal(err)
	}
	table, err := LoadTierTable(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	tier, err := table.ForCaptureRate(100)
	if err != nil || tier.Cost != 800 {
		t.Fatalf("expected rate 100 to cost 800, got %+v (%v)", tier, err)
	}

	if _, err := LoadTierTable(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected missing file to fail")
	}
}
