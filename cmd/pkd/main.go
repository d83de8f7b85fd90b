package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	cl "pokeden/internal/cli"
	"pokeden/internal/config"
	"pokeden/internal/game"
	"pokeden/internal/syncq"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL

	root := &cobra.Command{
		Use:          "pkd",
		Short:        "Pokeden CLI client",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&apiBase, "api", apiBase, "API base URL")

	root.AddCommand(
		newSignupCmd(&apiBase),
		newLoginCmd(&apiBase),
		newLogoutCmd(),
		newMeCmd(&apiBase),
		newDexCmd(&apiBase),
		newCatchCmd(&apiBase),
		newShopCmd(&apiBase),
		newBuyCmd(&apiBase),
		newBoxCmd(&apiBase),
		newTradeCmd(&apiBase),
		newBuddyCmd(&apiBase),
		newSyncCmd(&apiBase),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
}

func requireSession() (cl.Session, error) {
	sess, err := cl.LoadSession()
	if err != nil {
		return cl.Session{}, fmt.Errorf("login required: %w", err)
	}
	return sess, nil
}

func newSignupCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "signup",
		Short: "Create a trainer account",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, err := promptRequired("Email")
			if err != nil {
				return err
			}
			password, err := promptRequired("Password")
			if err != nil {
				return err
			}
			username, err := promptUsername("Trainer name (optional)")
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			session, err := newClient(apiBase).Signup(ctx, email, password, username)
			if err != nil {
				return err
			}
			if strings.TrimSpace(session.AccessToken) == "" {
				printWarn("Signup created. Verify your email, then run `pkd login`.")
				return nil
			}
			if err := cl.SaveSession(cl.Session{
				AccessToken:  session.AccessToken,
				RefreshToken: session.RefreshToken,
				Email:        session.User.Email,
				UserID:       session.User.ID,
				Username:     username,
			}); err != nil {
				return err
			}
			printSuccess("Signup complete. Session saved.")
			return nil
		},
	}
}

func newLoginCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Login to Pokeden",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, err := promptRequired("Email")
			if err != nil {
				return err
			}
			password, err := promptRequired("Password")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			session, err := newClient(apiBase).Login(ctx, email, password)
			if err != nil {
				return err
			}
			if err := cl.SaveSession(cl.Session{
				AccessToken:  session.AccessToken,
				RefreshToken: session.RefreshToken,
				Email:        session.User.Email,
				UserID:       session.User.ID,
				Username:     session.User.Username(),
			}); err != nil {
				return err
			}
			printSuccess("Login successful.")
			return nil
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear local session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.ClearSession(); err != nil {
				return err
			}
			printSuccess("Logged out.")
			return nil
		},
	}
}

func newMeCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show your trainer profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			profile, err := client.Me(ctx, sess.AccessToken)
			if err != nil {
				return err
			}
			buddy, err := client.Buddy(ctx, sess.AccessToken)
			if err != nil {
				return err
			}
			renderProfile(profile, buddy)
			return nil
		},
	}
}

func newDexCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "dex <species>",
		Short: "Look up a species and what it costs to catch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			info, err := newClient(apiBase).Species(ctx, sess.AccessToken, game.NormalizeSpecies(args[0]))
			if err != nil {
				return err
			}
			renderSpecies(info)
			return nil
		},
	}
}

func newCatchCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "catch <species>",
		Short: "Spend currency to attempt a catch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			name := game.NormalizeSpecies(args[0])
			idem := uuid.NewString()
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			res, err := newClient(apiBase).Catch(ctx, sess.AccessToken, name, idem)
			if err != nil {
				return queueOnNetworkError(err, syncq.Command{
					Method:         http.MethodPost,
					Path:           "/v1/catch",
					Body:           cl.CatchBody(name),
					IdempotencyKey: idem,
					Description:    "catch " + name,
				})
			}
			renderCatch(res)
			return nil
		},
	}
}

func newShopCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "shop",
		Short: "List items for sale",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			items, err := newClient(apiBase).Items(ctx, sess.AccessToken)
			if err != nil {
				return err
			}
			renderShop(items)
			return nil
		},
	}
}

func newBuyCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "buy <item> [quantity]",
		Short: "Buy items from the shop",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			itemID := strings.ToLower(strings.TrimSpace(args[0]))
			qty := int64(1)
			if len(args) > 1 {
				qty, err = strconv.ParseInt(strings.TrimSpace(args[1]), 10, 64)
				if err != nil || qty <= 0 {
					return fmt.Errorf("invalid quantity %q", args[1])
				}
			}
			idem := uuid.NewString()
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			res, err := newClient(apiBase).Buy(ctx, sess.AccessToken, itemID, qty, idem)
			if err != nil {
				return queueOnNetworkError(err, syncq.Command{
					Method:         http.MethodPost,
					Path:           cl.BuyPath(itemID),
					Body:           cl.BuyBody(qty),
					IdempotencyKey: idem,
					Description:    fmt.Sprintf("buy %d %s", qty, itemID),
				})
			}
			printSuccess(fmt.Sprintf("Bought %d x %s for %s. You now own %d.", res.Quantity, res.ItemID, formatCoins(res.Total), res.Owned))
			fmt.Printf("Balance: %s\n", formatCoins(res.Balance))
			return nil
		},
	}
}

func newBoxCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "box [creature_id]",
		Short: "List your creatures or inspect one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			if len(args) == 1 {
				c, err := client.Creature(ctx, sess.AccessToken, strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				renderCreature(c)
				return nil
			}
			creatures, err := client.Creatures(ctx, sess.AccessToken)
			if err != nil {
				return err
			}
			renderBox(creatures)
			return nil
		},
	}
}

func newTradeCmd(apiBase *string) *cobra.Command {
	trade := &cobra.Command{
		Use:     "trade",
		Short:   "Trade creatures with other trainers",
		Aliases: []string{"trades"},
	}
	trade.AddCommand(&cobra.Command{
		Use:   "offer <username> <creature_id>",
		Short: "Offer one of your creatures to another trainer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			to := strings.TrimSpace(args[0])
			creatureID := strings.TrimSpace(args[1])
			idem := uuid.NewString()
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			tr, err := newClient(apiBase).CreateTrade(ctx, sess.AccessToken, to, creatureID, idem)
			if err != nil {
				return queueOnNetworkError(err, syncq.Command{
					Method:         http.MethodPost,
					Path:           "/v1/trades",
					Body:           cl.CreateTradeBody(to, creatureID),
					IdempotencyKey: idem,
					Description:    "offer " + creatureID + " to " + to,
				})
			}
			printSuccess(fmt.Sprintf("Trade %s offered to %s.", tr.ID, to))
			return nil
		},
	})
	trade.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List trades you are part of",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			trades, err := newClient(apiBase).Trades(ctx, sess.AccessToken)
			if err != nil {
				return err
			}
			renderTrades(trades, sess.UserID)
			return nil
		},
	})

	var offer string
	accept := &cobra.Command{
		Use:   "accept <trade_id>",
		Short: "Accept a trade, optionally offering a creature back",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return resolveTradeCommand(cmd, apiBase, strings.TrimSpace(args[0]), game.ActionAccept, strings.TrimSpace(offer))
		},
	}
	accept.Flags().StringVar(&offer, "offer", "", "creature id to give in return")
	trade.AddCommand(accept)
	trade.AddCommand(&cobra.Command{
		Use:   "reject <trade_id>",
		Short: "Reject a trade",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return resolveTradeCommand(cmd, apiBase, strings.TrimSpace(args[0]), game.ActionReject, "")
		},
	})
	return trade
}

func resolveTradeCommand(cmd *cobra.Command, apiBase *string, tradeID string, action game.TradeAction, offeredID string) error {
	sess, err := requireSession()
	if err != nil {
		return err
	}
	idem := uuid.NewString()
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	client := newClient(apiBase)

	var tr game.Trade
	var body map[string]any
	if action == game.ActionAccept {
		tr, err = client.AcceptTrade(ctx, sess.AccessToken, tradeID, offeredID, idem)
		body = cl.AcceptTradeBody(offeredID)
	} else {
		tr, err = client.RejectTrade(ctx, sess.AccessToken, tradeID, idem)
	}
	if err != nil {
		return queueOnNetworkError(err, syncq.Command{
			Method:         http.MethodPost,
			Path:           cl.ResolveTradePath(tradeID, action),
			Body:           body,
			IdempotencyKey: idem,
			Description:    string(action) + " trade " + tradeID,
		})
	}
	printSuccess(fmt.Sprintf("Trade %s %s.", tr.ID, tr.Status))
	return nil
}

func newBuddyCmd(apiBase *string) *cobra.Command {
	buddy := &cobra.Command{
		Use:   "buddy",
		Short: "Show your buddy",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			c, err := newClient(apiBase).Buddy(ctx, sess.AccessToken)
			if err != nil {
				return err
			}
			if c == nil {
				printInfo("No buddy yet. Pick one with `pkd buddy set <creature_id>`.")
				return nil
			}
			renderCreature(*c)
			return nil
		},
	}
	buddy.AddCommand(&cobra.Command{
		Use:   "set <creature_id>",
		Short: "Make one of your creatures your buddy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			acct, err := newClient(apiBase).SetBuddy(ctx, sess.AccessToken, strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			printSuccess("Buddy set to " + acct.BuddyCreatureID + ".")
			return nil
		},
	})
	buddy.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Clear your buddy",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if err := newClient(apiBase).ClearBuddy(ctx, sess.AccessToken); err != nil {
				return err
			}
			printSuccess("Buddy cleared.")
			return nil
		},
	})
	return buddy
}

func newSyncCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay writes queued while offline",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			queue, err := syncq.Load()
			if err != nil {
				return err
			}
			if len(queue) == 0 {
				printInfo("Sync queue is empty.")
				return nil
			}
			client := newClient(apiBase)
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()

			remaining := make([]syncq.Command, 0, len(queue))
			replayed := 0
			for _, q := range queue {
				_, err := client.Do(ctx, q.Method, q.Path, sess.AccessToken, q.Body, q.IdempotencyKey)
				switch {
				case err == nil:
					replayed++
				case cl.IsAPIError(err):
					// Answered by the server, so not retried.
					printError(fmt.Sprintf("Dropped %s: %v", describe(q), err))
				default:
					remaining = append(remaining, q)
					printError(fmt.Sprintf("Sync failed for %s: %v", describe(q), err))
				}
			}
			if err := syncq.Save(remaining); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Sync complete: replayed=%d remaining=%d", replayed, len(remaining)))
			return nil
		},
	}
}

// queueOnNetworkError keeps writes that never reached the server. Errors the
// API answered with are returned as is.
func queueOnNetworkError(err error, cmd syncq.Command) error {
	if err == nil {
		return nil
	}
	if cl.IsAPIError(err) {
		return err
	}
	if qerr := syncq.Push(cmd); qerr != nil {
		return fmt.Errorf("request failed (%v) and could not be queued: %w", err, qerr)
	}
	printWarn(fmt.Sprintf("Offline: queued %s. Run `pkd sync` when back online.", describe(cmd)))
	return nil
}

func describe(q syncq.Command) string {
	if q.Description != "" {
		return q.Description
	}
	return q.Method + " " + q.Path
}
