package species

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const DefaultBaseURL = "https://pokeapi.co/api/v2"

var (
	ErrSpeciesNotFound    = errors.New("species not found")
	ErrCatalogUnavailable = errors.New("species catalog unavailable")
)

type Info struct {
	ID          int      `json:"id"`
	Name        string   `json:"name"`
	Types       []string `json:"types"`
	CaptureRate int      `json:"capture_rate"`
	SpriteURL   string   `json:"sprite_url,omitempty"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient builds a PokeAPI-compatible client. A nil limiter disables throttling.
func NewClient(baseURL string, limiter *rate.Limiter) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter: limiter,
	}
}

func (c *Client) Lookup(ctx context.Context, identifier string) (Info, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if identifier == "" {
		return Info{}, ErrSpeciesNotFound
	}

	body, err := c.get(ctx, "/pokemon/"+url.PathEscape(identifier))
	if err != nil {
		return Info{}, err
	}
	doc := gjson.ParseBytes(body)
	info := Info{
		ID:        int(doc.Get("id").Int()),
		Name:      doc.Get("name").String(),
		SpriteURL: doc.Get("sprites.front_default").String(),
	}
	if info.ID <= 0 || info.Name == "" {
		return Info{}, fmt.Errorf("%w: malformed pokemon payload for %q", ErrCatalogUnavailable, identifier)
	}
	for _, t := range doc.Get("types.#.type.name").Array() {
		info.Types = append(info.Types, t.String())
	}

	body, err = c.get(ctx, fmt.Sprintf("/pokemon-species/%d", info.ID))
	if err != nil {
		return Info{}, err
	}
	captureRate := gjson.GetBytes(body, "capture_rate")
	if captureRate.Type != gjson.Number {
		return Info{}, fmt.Errorf("%w: species %d has no capture_rate", ErrCatalogUnavailable, info.ID)
	}
	info.CaptureRate = int(captureRate.Int())
	if info.CaptureRate < 0 || info.CaptureRate > 255 {
		return Info{}, fmt.Errorf("%w: species %d capture_rate %d out of range", ErrCatalogUnavailable, info.ID, info.CaptureRate)
	}
	return info, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrSpeciesNotFound
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrCatalogUnavailable, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrCatalogUnavailable, err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: invalid json from %s", ErrCatalogUnavailable, path)
	}
	return body, nil
}
