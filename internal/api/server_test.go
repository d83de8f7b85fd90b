package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pokeden/internal/auth"
	"pokeden/internal/game"
	"pokeden/internal/metrics"
	"pokeden/internal/species"
	"pokeden/internal/store/memory"
)

type fakeAuth struct {
	users map[string]auth.SupabaseUser
}

func (f *fakeAuth) SignUp(_ context.Context, email, _, username string) (auth.Session, error) {
	id := "user-" + strings.Split(email, "@")[0]
	u := auth.SupabaseUser{ID: id, Email: email, UserMetadata: map[string]any{"username": username}}
	f.users["tok-"+id] = u
	return auth.Session{AccessToken: "tok-" + id, User: u}, nil
}

func (f *fakeAuth) Login(_ context.Context, email, _ string) (auth.Session, error) {
	id := "user-" + strings.Split(email, "@")[0]
	u, ok := f.users["tok-"+id]
	if !ok {
		return auth.Session{}, errors.New("invalid login credentials")
	}
	return auth.Session{AccessToken: "tok-" + id, User: u}, nil
}

func (f *fakeAuth) VerifyAccessToken(_ context.Context, token string) (auth.SupabaseUser, error) {
	u, ok := f.users[token]
	if !ok {
		return auth.SupabaseUser{}, auth.ErrInvalidToken
	}
	return u, nil
}

type catalogFunc func(ctx context.Context, id string) (species.Info, error)

func (f catalogFunc) Lookup(ctx context.Context, id string) (species.Info, error) { return f(ctx, id) }

type alwaysCatch struct{}

func (alwaysCatch) Float64() float64 { return 0 }
func (alwaysCatch) Intn(int) int     { return 0 }

func testCatalog(_ context.Context, id string) (species.Info, error) {
	switch id {
	case "rattata":
		return species.Info{ID: 19, Name: "rattata", Types: []string{"normal"}, CaptureRate: 255}, nil
	case "mewtwo":
		return species.Info{ID: 150, Name: "mewtwo", Types: []string{"psychic"}, CaptureRate: 3}, nil
	case "missingno":
		return species.Info{}, fmt.Errorf("%w: status 503", species.ErrCatalogUnavailable)
	}
	return species.Info{}, species.ErrSpeciesNotFound
}

type harness struct {
	t   *testing.T
	srv *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	svc := game.NewService(memory.New(), catalogFunc(testCatalog), nil, game.WithRand(alwaysCatch{}))
	require.NoError(t, svc.SeedItems(context.Background(), game.DefaultItems()))
	s := New(nil, &fakeAuth{users: map[string]auth.SupabaseUser{}}, svc, metrics.New())
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &harness{t: t, srv: srv}
}

func (h *harness) do(method, path, token, idemKey string, body any, out any) int {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, h.srv.URL+path, &buf)
	require.NoError(h.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}
	resp, err := h.srv.Client().Do(req)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(h.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (h *harness) signup(name string) string {
	h.t.Helper()
	var session auth.Session
	status := h.do(http.MethodPost, "/v1/auth/signup", "", "", map[string]string{
		"email": name + "@example.com", "password": "pikapika", "username": name,
	}, &session)
	require.Equal(h.t, http.StatusCreated, status)
	return session.AccessToken
}

func (h *harness) catch(token, speciesName string) game.Creature {
	h.t.Helper()
	var res game.CatchResult
	status := h.do(http.MethodPost, "/v1/catch", token, "", map[string]string{"species": speciesName}, &res)
	require.Equal(h.t, http.StatusCreated, status)
	require.NotNil(h.t, res.Creature)
	return *res.Creature
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)
	var body map[string]any
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/healthz", "", "", nil, &body))
	assert.Equal(t, true, body["ok"])

	resp, err := h.srv.Client().Get(h.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthRequired(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/v1/me", "", "", nil, nil))
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/v1/me", "bogus", "", nil, nil))
}

func TestSignupRejectsBadUsername(t *testing.T) {
	h := newHarness(t)
	status := h.do(http.MethodPost, "/v1/auth/signup", "", "", map[string]string{
		"email": "x@example.com", "password": "pw", "username": "no spaces!",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestCatchFlow(t *testing.T) {
	h := newHarness(t)
	tok := h.signup("ash")

	var me game.Profile
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/v1/me", tok, "", nil, &me))
	assert.Equal(t, "ash", me.Username)
	assert.Equal(t, game.StarterBalance, me.Balance)

	var res game.CatchResult
	status := h.do(http.MethodPost, "/v1/catch", tok, "catch-1", map[string]string{"species": "Rattata"}, &res)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, game.OutcomeCaught, res.Outcome)
	assert.Equal(t, int64(1000), res.Cost)
	assert.Equal(t, int64(4000), res.Balance)

	// A replayed key is refused and charges nothing.
	status = h.do(http.MethodPost, "/v1/catch", tok, "catch-1", map[string]string{"species": "rattata"}, nil)
	assert.Equal(t, http.StatusConflict, status)

	var box struct {
		Creatures []game.Creature `json:"creatures"`
	}
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/v1/creatures", tok, "", nil, &box))
	require.Len(t, box.Creatures, 1)

	var one game.Creature
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/v1/creatures/"+box.Creatures[0].ID, tok, "", nil, &one))
	assert.Equal(t, "rattata", one.SpeciesName)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/v1/creatures/nope", tok, "", nil, nil))
}

func TestCatchErrors(t *testing.T) {
	h := newHarness(t)
	tok := h.signup("gary")

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodPost, "/v1/catch", tok, "", map[string]string{"species": "agumon"}, nil))
	assert.Equal(t, http.StatusBadGateway, h.do(http.MethodPost, "/v1/catch", tok, "", map[string]string{"species": "missingno"}, nil))
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/v1/catch", tok, "", map[string]any{"species": "rattata", "extra": 1}, nil))

	// One legendary attempt costs the whole starter balance; the second cannot be afforded.
	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, "/v1/catch", tok, "", map[string]string{"species": "mewtwo"}, nil))
	assert.Equal(t, http.StatusUnprocessableEntity, h.do(http.MethodPost, "/v1/catch", tok, "", map[string]string{"species": "mewtwo"}, nil))
}

func TestSpeciesLookup(t *testing.T) {
	h := newHarness(t)
	tok := h.signup("oak")
	var info species.Info
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/v1/species/rattata", tok, "", nil, &info))
	assert.Equal(t, 255, info.CaptureRate)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/v1/species/digimon", tok, "", nil, nil))
}

func TestShopAndBuy(t *testing.T) {
	h := newHarness(t)
	tok := h.signup("misty")

	var shop struct {
		Items []game.Item `json:"items"`
	}
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/v1/items", tok, "", nil, &shop))
	assert.NotEmpty(t, shop.Items)

	var res game.PurchaseResult
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/v1/items/poke-ball/buy", tok, "", nil, &res))
	assert.Equal(t, int64(1), res.Quantity)
	assert.Equal(t, int64(4800), res.Balance)

	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/v1/items/poke-ball/buy", tok, "", map[string]int64{"quantity": 3}, &res))
	assert.Equal(t, int64(4), res.Owned)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/v1/items/poke-ball/buy", tok, "", map[string]int64{"quantity": 0}, nil))
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodPost, "/v1/items/master-ball/buy", tok, "", nil, nil))
	assert.Equal(t, http.StatusUnprocessableEntity, h.do(http.MethodPost, "/v1/items/rare-candy/buy", tok, "", map[string]int64{"quantity": 2}, nil))
}

func TestTradeFlow(t *testing.T) {
	h := newHarness(t)
	ash := h.signup("ash")
	brock := h.signup("brock")
	x := h.catch(ash, "rattata")
	y := h.catch(brock, "rattata")

	var tr game.Trade
	status := h.do(http.MethodPost, "/v1/trades", ash, "", map[string]string{"to_username": "brock", "creature_id": x.ID}, &tr)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, game.TradePending, tr.Status)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/v1/trades/"+tr.ID+"/accept", ash, "", nil, nil))

	var seen game.Trade
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/v1/trades/"+tr.ID, brock, "", nil, &seen))
	assert.Equal(t, x.ID, seen.CreatureID)

	var done game.Trade
	status = h.do(http.MethodPost, "/v1/trades/"+tr.ID+"/accept", brock, "", map[string]string{"offered_creature_id": y.ID}, &done)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, game.TradeAccepted, done.Status)

	assert.Equal(t, http.StatusConflict, h.do(http.MethodPost, "/v1/trades/"+tr.ID+"/reject", brock, "", nil, nil))

	var got game.Creature
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/v1/creatures/"+x.ID, brock, "", nil, &got))
	require.Len(t, got.History, 1)
	assert.Equal(t, tr.ID, got.History[0].TradeID)

	var list struct {
		Trades []game.Trade `json:"trades"`
	}
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/v1/trades", ash, "", nil, &list))
	assert.Len(t, list.Trades, 1)
}

func TestTradeValidation(t *testing.T) {
	h := newHarness(t)
	ash := h.signup("ash")
	h.signup("brock")
	x := h.catch(ash, "rattata")

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/v1/trades", ash, "", map[string]string{"to_username": "ash", "creature_id": x.ID}, nil))
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodPost, "/v1/trades", ash, "", map[string]string{"to_username": "nobody", "creature_id": x.ID}, nil))
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/v1/trades/missing", ash, "", nil, nil))
}

func TestBuddyEndpoints(t *testing.T) {
	h := newHarness(t)
	tok := h.signup("dawn")
	c := h.catch(tok, "rattata")

	var empty map[string]any
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/v1/buddy", tok, "", nil, &empty))
	assert.Nil(t, empty["buddy"])

	var acct game.Account
	require.Equal(t, http.StatusOK, h.do(http.MethodPut, "/v1/buddy", tok, "", map[string]string{"creature_id": c.ID}, &acct))
	assert.Equal(t, c.ID, acct.BuddyCreatureID)

	var got struct {
		Buddy *game.Creature `json:"buddy"`
	}
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/v1/buddy", tok, "", nil, &got))
	require.NotNil(t, got.Buddy)
	assert.Equal(t, c.ID, got.Buddy.ID)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPut, "/v1/buddy", tok, "", map[string]string{"creature_id": "someone-elses"}, nil))
	require.Equal(t, http.StatusOK, h.do(http.MethodDelete, "/v1/buddy", tok, "", nil, nil))
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/v1/buddy", tok, "", nil, &empty))
	assert.Nil(t, empty["buddy"])
}

func TestWriteDomainError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{game.ErrSelfTrade, http.StatusBadRequest},
		{game.ErrNotRecipient, http.StatusBadRequest},
		{fmt.Errorf("%w: bad", game.ErrInvalidInput), http.StatusBadRequest},
		{game.ErrTradeNotFound, http.StatusNotFound},
		{species.ErrSpeciesNotFound, http.StatusNotFound},
		{game.ErrOwnershipChanged, http.StatusConflict},
		{game.ErrTxConflict, http.StatusConflict},
		{game.ErrStorageFull, http.StatusUnprocessableEntity},
		{species.ErrCatalogUnavailable, http.StatusBadGateway},
		{auth.ErrInvalidToken, http.StatusUnauthorized},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		writeDomainError(rec, tt.err)
		if rec.Code != tt.want {
			t.Fatalf("%v: expected %d, got %d", tt.err, tt.want, rec.Code)
		}
	}
}

func TestBearerToken(t *testing.T) {
	tests := map[string]string{
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"Basic abc":    "",
		"":             "",
		"Bearer":       "",
	}
	for in, want := range tests {
		if got := bearerToken(in); got != want {
			t.Fatalf("bearerToken(%q) = %q, want %q", in, got, want)
		}
	}
}
