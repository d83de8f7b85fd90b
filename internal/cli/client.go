package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pokeden/internal/auth"
	"pokeden/internal/game"
	"pokeden/internal/species"
)

// APIError is a response the server produced, as opposed to a transport
// failure. Only transport failures are worth queueing for a later replay.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.StatusCode, e.Message)
}

func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) Signup(ctx context.Context, email, password, username string) (auth.Session, error) {
	var out auth.Session
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/signup", "", map[string]any{
		"email":    email,
		"password": password,
		"username": username,
	}, &out, "")
	return out, err
}

func (c *Client) Login(ctx context.Context, email, password string) (auth.Session, error) {
	var out auth.Session
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/login", "", map[string]any{
		"email":    email,
		"password": password,
	}, &out, "")
	return out, err
}

func (c *Client) Me(ctx context.Context, accessToken string) (game.Profile, error) {
	var out game.Profile
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/me", accessToken, nil, &out, "")
	return out, err
}

func (c *Client) Species(ctx context.Context, accessToken, identifier string) (species.Info, error) {
	var out species.Info
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/species/"+url.PathEscape(identifier), accessToken, nil, &out, "")
	return out, err
}

func (c *Client) Catch(ctx context.Context, accessToken, speciesName, idem string) (game.CatchResult, error) {
	var out game.CatchResult
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/catch", accessToken, CatchBody(speciesName), &out, idem)
	return out, err
}

func (c *Client) Items(ctx context.Context, accessToken string) ([]game.Item, error) {
	var out struct {
		Items []game.Item `json:"items"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/items", accessToken, nil, &out, "")
	return out.Items, err
}

func (c *Client) Buy(ctx context.Context, accessToken, itemID string, quantity int64, idem string) (game.PurchaseResult, error) {
	var out game.PurchaseResult
	err := c.jsonRequest(ctx, http.MethodPost, BuyPath(itemID), accessToken, BuyBody(quantity), &out, idem)
	return out, err
}

func (c *Client) Creatures(ctx context.Context, accessToken string) ([]game.Creature, error) {
	var out struct {
		Creatures []game.Creature `json:"creatures"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/creatures", accessToken, nil, &out, "")
	return out.Creatures, err
}

func (c *Client) Creature(ctx context.Context, accessToken, id string) (game.Creature, error) {
	var out game.Creature
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/creatures/"+url.PathEscape(id), accessToken, nil, &out, "")
	return out, err
}

func (c *Client) CreateTrade(ctx context.Context, accessToken, toUsername, creatureID, idem string) (game.Trade, error) {
	var out game.Trade
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/trades", accessToken, CreateTradeBody(toUsername, creatureID), &out, idem)
	return out, err
}

func (c *Client) Trades(ctx context.Context, accessToken string) ([]game.Trade, error) {
	var out struct {
		Trades []game.Trade `json:"trades"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/trades", accessToken, nil, &out, "")
	return out.Trades, err
}

func (c *Client) AcceptTrade(ctx context.Context, accessToken, tradeID, offeredCreatureID, idem string) (game.Trade, error) {
	var out game.Trade
	err := c.jsonRequest(ctx, http.MethodPost, ResolveTradePath(tradeID, game.ActionAccept), accessToken, AcceptTradeBody(offeredCreatureID), &out, idem)
	return out, err
}

func (c *Client) RejectTrade(ctx context.Context, accessToken, tradeID, idem string) (game.Trade, error) {
	var out game.Trade
	err := c.jsonRequest(ctx, http.MethodPost, ResolveTradePath(tradeID, game.ActionReject), accessToken, nil, &out, idem)
	return out, err
}

// Buddy returns nil when no buddy is set.
func (c *Client) Buddy(ctx context.Context, accessToken string) (*game.Creature, error) {
	var out struct {
		Buddy *game.Creature `json:"buddy"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/buddy", accessToken, nil, &out, "")
	return out.Buddy, err
}

func (c *Client) SetBuddy(ctx context.Context, accessToken, creatureID string) (game.Account, error) {
	var out game.Account
	err := c.jsonRequest(ctx, http.MethodPut, "/v1/buddy", accessToken, map[string]any{"creature_id": creatureID}, &out, "")
	return out, err
}

func (c *Client) ClearBuddy(ctx context.Context, accessToken string) error {
	return c.jsonRequest(ctx, http.MethodDelete, "/v1/buddy", accessToken, nil, nil, "")
}

// Do sends a raw request. Used to replay queued writes.
func (c *Client) Do(ctx context.Context, method, path, accessToken string, body map[string]any, idem string) (map[string]any, error) {
	var out map[string]any
	var in any
	if body != nil {
		in = body
	}
	err := c.jsonRequest(ctx, method, path, accessToken, in, &out, idem)
	return out, err
}

func CatchBody(speciesName string) map[string]any {
	return map[string]any{"species": speciesName}
}

func BuyPath(itemID string) string {
	return "/v1/items/" + url.PathEscape(itemID) + "/buy"
}

func BuyBody(quantity int64) map[string]any {
	return map[string]any{"quantity": quantity}
}

func CreateTradeBody(toUsername, creatureID string) map[string]any {
	return map[string]any{"to_username": toUsername, "creature_id": creatureID}
}

func ResolveTradePath(tradeID string, action game.TradeAction) string {
	return "/v1/trades/" + url.PathEscape(tradeID) + "/" + string(action)
}

func AcceptTradeBody(offeredCreatureID string) map[string]any {
	if offeredCreatureID == "" {
		return nil
	}
	return map[string]any{"offered_creature_id": offeredCreatureID}
}

func (c *Client) jsonRequest(ctx context.Context, method, path, accessToken string, in any, out any, idem string) error {
	var body io.Reader
	if m, ok := in.(map[string]any); ok && m == nil {
		in = nil
	}
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	if idem != "" {
		req.Header.Set("Idempotency-Key", idem)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := strings.TrimSpace(string(raw))
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
			msg = payload.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
