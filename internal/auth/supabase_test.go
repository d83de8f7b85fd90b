package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "super-secret-jwt-token-with-at-least-32-characters"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func TestVerifyAccessTokenLocal(t *testing.T) {
	remoteCalls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		remoteCalls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewSupabaseClient(srv.URL, "anon", testSecret)
	tok := signToken(t, testSecret, jwt.MapClaims{
		"sub":           "5f0c7a8e-3b2d-4c1e-9a6f-0d2b4e6a8c10",
		"email":         "ash@pallet.town",
		"exp":           time.Now().Add(time.Hour).Unix(),
		"user_metadata": map[string]any{"username": "ash"},
	})

	user, err := c.VerifyAccessToken(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, "5f0c7a8e-3b2d-4c1e-9a6f-0d2b4e6a8c10", user.ID)
	assert.Equal(t, "ash@pallet.town", user.Email)
	assert.Equal(t, "ash", user.Username())
	assert.Zero(t, remoteCalls)
}

func TestVerifyAccessTokenFallsBackToSupabase(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/v1/user", r.URL.Path)
		require.Equal(t, "anon", r.Header.Get("apikey"))
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(SupabaseUser{ID: "u1", Email: "misty@cerulean.city"})
	}))
	defer srv.Close()

	c := NewSupabaseClient(srv.URL, "anon", testSecret)
	user, err := c.VerifyAccessToken(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)

	_, err = c.VerifyAccessToken(context.Background(), "bad")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyLocalRejects(t *testing.T) {
	c := NewSupabaseClient("http://unused", "anon", testSecret)
	tests := map[string]string{
		"wrong secret": signToken(t, "another-secret-another-secret-another", jwt.MapClaims{"sub": "u1", "exp": time.Now().Add(time.Hour).Unix()}),
		"expired":      signToken(t, testSecret, jwt.MapClaims{"sub": "u1", "exp": time.Now().Add(-time.Hour).Unix()}),
		"no expiry":    signToken(t, testSecret, jwt.MapClaims{"sub": "u1"}),
		"no subject":   signToken(t, testSecret, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}),
	}
	for name, tok := range tests {
		if _, err := c.verifyLocal(tok); err == nil {
			t.Fatalf("%s: expected local verification to fail", name)
		}
	}
}

func TestSignUpSendsUsername(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/v1/signup", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		data, _ := body["data"].(map[string]any)
		require.Equal(t, "brock", data["username"])
		_ = json.NewEncoder(w).Encode(Session{AccessToken: "tok", User: SupabaseUser{ID: "u2"}})
	}))
	defer srv.Close()

	s, err := NewSupabaseClient(srv.URL, "anon", "").SignUp(context.Background(), "brock@pewter.city", "pw", "brock")
	require.NoError(t, err)
	assert.Equal(t, "tok", s.AccessToken)
	assert.Equal(t, "u2", s.User.ID)
}
