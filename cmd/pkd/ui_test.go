package main

import "testing"

func TestFormatCoins(t *testing.T) {
	tests := map[int64]string{
		0:        "0 coins",
		999:      "999 coins",
		5000:     "5,000 coins",
		1234567:  "1,234,567 coins",
		-4800:    "-4,800 coins",
		-100_000: "-100,000 coins",
	}
	for in, want := range tests {
		if got := formatCoins(in); got != want {
			t.Fatalf("formatCoins(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestTruncateAndTitle(t *testing.T) {
	if got := truncate("bulbasaur", 6); got != "bul..." {
		t.Fatalf("unexpected truncate: %q", got)
	}
	if got := truncate("eevee", 10); got != "eevee" {
		t.Fatalf("unexpected truncate: %q", got)
	}
	if got := titleCase("pikachu"); got != "Pikachu" {
		t.Fatalf("unexpected title: %q", got)
	}
	if got := titleCase(""); got != "" {
		t.Fatalf("unexpected title: %q", got)
	}
}
