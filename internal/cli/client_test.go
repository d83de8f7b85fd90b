package cli

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pokeden/internal/game"
)

func TestCatchSendsKeyAndToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/catch", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.Equal(t, "key-1", r.Header.Get("Idempotency-Key"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "pikachu", body["species"])
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(game.CatchResult{Outcome: game.OutcomeFled, Cost: 1000, Balance: 4000})
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL+"/").Catch(context.Background(), "tok", "pikachu", "key-1")
	require.NoError(t, err)
	assert.Equal(t, game.OutcomeFled, res.Outcome)
	assert.Equal(t, int64(4000), res.Balance)
}

func TestAPIErrorCarriesServerMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"error":"insufficient funds"}`)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Buy(context.Background(), "tok", "rare-candy", 5, "k")
	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "insufficient funds", apiErr.Message)
	assert.True(t, IsAPIError(err))
}

func TestTransportErrorIsNotAPIError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	_, err := NewClient(base).Me(context.Background(), "tok")
	require.Error(t, err)
	assert.False(t, IsAPIError(err))
}

func TestAcceptWithoutOfferSendsNoBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/trades/t1/accept", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		require.Empty(t, raw)
		_ = json.NewEncoder(w).Encode(game.Trade{ID: "t1", Status: game.TradeAccepted})
	}))
	defer srv.Close()

	tr, err := NewClient(srv.URL).AcceptTrade(context.Background(), "tok", "t1", "", "k")
	require.NoError(t, err)
	assert.Equal(t, game.TradeAccepted, tr.Status)
}

func TestBuddyNull(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"buddy":null}`)
	}))
	defer srv.Close()

	b, err := NewClient(srv.URL).Buddy(context.Background(), "tok")
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestSessionRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	_, err := LoadSession()
	require.ErrorIs(t, err, ErrNoSession)

	require.NoError(t, SaveSession(Session{AccessToken: "tok", UserID: "u1", Username: "ash"}))
	s, err := LoadSession()
	require.NoError(t, err)
	assert.Equal(t, "ash", s.Username)

	require.NoError(t, ClearSession())
	require.NoError(t, ClearSession())
	_, err = LoadSession()
	require.ErrorIs(t, err, ErrNoSession)
}
