package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"pokeden/internal/game"
	"pokeden/internal/species"

	"github.com/fatih/color"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func promptOptional(label string) (string, error) {
	fmt.Printf("%s: ", label)
	text, err := stdinReader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// promptUsername loops until the answer is empty or a valid trainer name.
func promptUsername(label string) (string, error) {
	for {
		name, err := promptOptional(label)
		if err != nil {
			return "", err
		}
		if name == "" {
			return "", nil
		}
		if err := game.ValidateUsername(name); err != nil {
			printWarn(err.Error())
			continue
		}
		return name, nil
	}
}

func renderProfile(p game.Profile, buddy *game.Creature) {
	accent.Printf("\n== TRAINER %s ==\n", strings.ToUpper(p.Username))
	fmt.Printf("Balance:   %s\n", formatCoins(p.Balance))
	fmt.Printf("Box:       %s\n", storageGauge(p.CreatureCount, p.StorageCapacity))
	if buddy != nil {
		fmt.Printf("Buddy:     %s (Lv %d)\n", titleCase(buddy.SpeciesName), buddy.Level)
	} else {
		fmt.Printf("Buddy:     %s\n", neutral.Sprint("none"))
	}

	fmt.Println()
	accent.Println("Bag")
	if len(p.Inventory) == 0 {
		printInfo("Your bag is empty. Try `pkd shop`.")
		fmt.Println()
		return
	}
	fmt.Printf("%-14s %-18s %6s %10s %-10s\n", "ITEM", "NAME", "QTY", "PAID", "RARITY")
	for _, e := range p.Inventory {
		fmt.Printf("%-14s %-18s %6d %10s %-10s\n",
			truncate(e.ItemID, 14),
			truncate(e.Name, 18),
			e.Quantity,
			formatCoins(e.Price),
			e.Rarity,
		)
	}
	fmt.Println()
}

func renderSpecies(info species.Info) {
	accent.Printf("\n== #%03d %s ==\n", info.ID, titleCase(info.Name))
	fmt.Printf("Types:        %s\n", strings.Join(info.Types, "/"))
	fmt.Printf("Capture rate: %d/%d\n", info.CaptureRate, game.MaxCaptureRate)
	if tier, err := game.DefaultTierTable().ForCaptureRate(info.CaptureRate); err == nil {
		fmt.Printf("Catch cost:   %s (Lv %d-%d)\n", formatCoins(tier.Cost), tier.MinLevel, tier.MaxLevel)
	}
	if info.SpriteURL != "" {
		fmt.Printf("Sprite:       %s\n", info.SpriteURL)
	}
	fmt.Println()
}

func renderCatch(res game.CatchResult) {
	name := titleCase(res.SpeciesName)
	if res.Outcome == game.OutcomeCaught && res.Creature != nil {
		printSuccess(fmt.Sprintf("Gotcha! %s (Lv %d) was caught.", name, res.Creature.Level))
		fmt.Printf("ID:      %s\n", res.Creature.ID)
	} else {
		printWarn(fmt.Sprintf("Oh no! The wild %s fled.", name))
	}
	fmt.Printf("Cost:    %s\n", formatCoins(res.Cost))
	fmt.Printf("Balance: %s\n", formatCoins(res.Balance))
}

func renderShop(items []game.Item) {
	accent.Println("\n== POKE MART ==")
	if len(items) == 0 {
		printInfo("The shop is empty.")
		return
	}
	fmt.Printf("%-14s %-18s %-10s %10s %-10s %s\n", "ID", "NAME", "TYPE", "PRICE", "RARITY", "EFFECT")
	for _, it := range items {
		rarity := it.Rarity
		if it.Label != "" {
			rarity = warn.Sprint(it.Label)
		}
		fmt.Printf("%-14s %-18s %-10s %10s %-10s %s\n",
			it.ID,
			truncate(it.Name, 18),
			truncate(it.Type, 10),
			formatCoins(it.Price),
			rarity,
			truncate(it.Effect, 40),
		)
	}
	fmt.Println()
}

func renderBox(creatures []game.Creature) {
	accent.Println("\n== BOX ==")
	if len(creatures) == 0 {
		printInfo("No creatures yet. Try `pkd catch pikachu`.")
		return
	}
	fmt.Printf("%-36s %-14s %5s %-16s %s\n", "ID", "SPECIES", "LV", "TYPES", "")
	for _, c := range creatures {
		mark := ""
		if c.BuddyOfAccountID != "" {
			mark = success.Sprint("buddy")
		}
		fmt.Printf("%-36s %-14s %5d %-16s %s\n",
			c.ID,
			truncate(titleCase(c.SpeciesName), 14),
			c.Level,
			truncate(strings.Join(c.Types, "/"), 16),
			mark,
		)
	}
	fmt.Println()
}

func renderCreature(c game.Creature) {
	accent.Printf("\n== %s (Lv %d) ==\n", titleCase(c.SpeciesName), c.Level)
	fmt.Printf("ID:        %s\n", c.ID)
	fmt.Printf("Species:   #%03d\n", c.SpeciesID)
	fmt.Printf("Types:     %s\n", strings.Join(c.Types, "/"))
	fmt.Printf("XP:        %d\n", c.Experience)
	fmt.Printf("Caught:    %s\n", c.CaughtAt.Local().Format("2006-01-02 15:04"))
	if len(c.History) > 0 {
		fmt.Println()
		accent.Println("Trade history")
		for _, h := range c.History {
			fmt.Printf("%s  %s -> %s  (%s)\n",
				h.TradedAt.Local().Format("2006-01-02 15:04"),
				truncate(h.FromAccountID, 8),
				truncate(h.ToAccountID, 8),
				h.TradeID,
			)
		}
	}
	fmt.Println()
}

func renderTrades(trades []game.Trade, me string) {
	accent.Println("\n== TRADES ==")
	if len(trades) == 0 {
		printInfo("No trades yet.")
		return
	}
	fmt.Printf("%-36s %-9s %-9s %-36s %s\n", "ID", "DIR", "STATUS", "CREATURE", "CREATED")
	for _, t := range trades {
		dir := "outgoing"
		if t.ToAccountID == me {
			dir = "incoming"
		}
		fmt.Printf("%-36s %-9s %-9s %-36s %s\n",
			t.ID,
			dir,
			colorizeStatus(t.Status),
			t.CreatureID,
			t.CreatedAt.Local().Format("2006-01-02 15:04"),
		)
	}
	fmt.Println()
}

func colorizeStatus(s game.TradeStatus) string {
	switch s {
	case game.TradeAccepted:
		return success.Sprint(string(s))
	case game.TradeRejected:
		return danger.Sprint(string(s))
	default:
		return warn.Sprint(string(s))
	}
}

func storageGauge(count, capacity int) string {
	text := fmt.Sprintf("%d/%d", count, capacity)
	switch {
	case capacity > 0 && count >= capacity:
		return danger.Sprint(text + " (full)")
	case capacity > 0 && count*5 >= capacity*4:
		return warn.Sprint(text)
	default:
		return success.Sprint(text)
	}
}

func formatCoins(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return sign + comma(v) + " coins"
}

func comma(v int64) string {
	s := strconv.FormatInt(v, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
		if len(s) > pre {
			b.WriteByte(',')
		}
	}
	for i := pre; i < len(s); i += 3 {
		b.WriteString(s[i : i+3])
		if i+3 < len(s) {
			b.WriteByte(',')
		}
	}
	return b.String()
}

func titleCase(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
