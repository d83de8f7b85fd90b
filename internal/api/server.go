package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"pokeden/internal/auth"
	"pokeden/internal/game"
	"pokeden/internal/metrics"
	"pokeden/internal/species"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type contextKey string

const userContextKey contextKey = "user"

type UserContext struct {
	UserID   string
	Email    string
	Username string
	Token    string
}

// Authenticator is the subset of the Supabase client the server needs.
type Authenticator interface {
	SignUp(ctx context.Context, email, password, username string) (auth.Session, error)
	Login(ctx context.Context, email, password string) (auth.Session, error)
	VerifyAccessToken(ctx context.Context, accessToken string) (auth.SupabaseUser, error)
}

type Server struct {
	log     *slog.Logger
	auth    Authenticator
	game    *game.Service
	metrics *metrics.Collectors
	mux     *chi.Mux
}

// New wires the router. collectors may be nil, in which case /metrics is not
// mounted and requests are not instrumented.
func New(logger *slog.Logger, authClient Authenticator, gameSvc *game.Service, collectors *metrics.Collectors) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		log:     logger,
		auth:    authClient,
		game:    gameSvc,
		metrics: collectors,
		mux:     chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if s.metrics != nil {
		r.Use(s.metrics.Instrument)
	}
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/signup", s.handleSignup)
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/me", s.handleMe)
			r.Get("/species/{identifier}", s.handleSpecies)
			r.Post("/catch", s.handleCatch)

			r.Get("/items", s.handleItems)
			r.Post("/items/{item_id}/buy", s.handleBuy)

			r.Get("/creatures", s.handleCreatures)
			r.Get("/creatures/{id}", s.handleCreature)

			r.Post("/trades", s.handleCreateTrade)
			r.Get("/trades", s.handleTrades)
			r.Get("/trades/{id}", s.handleTrade)
			r.Post("/trades/{id}/accept", s.handleAcceptTrade)
			r.Post("/trades/{id}/reject", s.handleRejectTrade)

			r.Get("/buddy", s.handleBuddy)
			r.Put("/buddy", s.handleSetBuddy)
			r.Delete("/buddy", s.handleClearBuddy)
		})
	})
}

// authMiddleware verifies the bearer token and makes sure the caller has a
// game account, so tokens minted elsewhere still get one on first use.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		user, err := s.auth.VerifyAccessToken(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, fmt.Sprintf("invalid token: %v", err))
			return
		}
		if _, err := s.game.EnsureAccount(r.Context(), user.ID, user.Email, user.Username()); err != nil {
			if errors.Is(err, game.ErrAccountNotFound) {
				writeError(w, http.StatusUnauthorized, "account has been deleted")
				return
			}
			s.log.Error("ensure account failed", "user_id", user.ID, "err", err)
			writeDomainError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey, UserContext{
			UserID:   user.ID,
			Email:    user.Email,
			Username: user.Username(),
			Token:    token,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFromContext(ctx context.Context) (UserContext, error) {
	v := ctx.Value(userContextKey)
	user, ok := v.(UserContext)
	if !ok || user.UserID == "" {
		return UserContext{}, errors.New("missing auth context")
	}
	return user, nil
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Username string `json:"username"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	in.Username = strings.TrimSpace(in.Username)
	if in.Username != "" {
		if err := game.ValidateUsername(in.Username); err != nil {
			writeDomainError(w, err)
			return
		}
	}
	session, err := s.auth.SignUp(r.Context(), strings.TrimSpace(in.Email), strings.TrimSpace(in.Password), in.Username)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if session.User.ID != "" {
		if _, err := s.game.EnsureAccount(r.Context(), session.User.ID, session.User.Email, in.Username); err != nil {
			writeDomainError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	session, err := s.auth.Login(r.Context(), strings.TrimSpace(in.Email), strings.TrimSpace(in.Password))
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if _, err := s.game.EnsureAccount(r.Context(), session.User.ID, session.User.Email, session.User.Username()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	out, err := s.game.Profile(r.Context(), user.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSpecies(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.LookupSpecies(r.Context(), chi.URLParam(r, "identifier"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCatch(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Species string `json:"species"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := s.game.AttemptCatch(r.Context(), game.CatchInput{
		AccountID:      user.UserID,
		Species:        in.Species,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	status := http.StatusOK
	if result.Outcome == game.OutcomeCaught {
		status = http.StatusCreated
	}
	writeJSON(w, status, result)
}

func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.ListItems(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	in := struct {
		Quantity int64 `json:"quantity"`
	}{Quantity: 1}
	if err := decodeOptionalJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := s.game.Purchase(r.Context(), game.PurchaseInput{
		AccountID:      user.UserID,
		ItemID:         chi.URLParam(r, "item_id"),
		Quantity:       in.Quantity,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCreatures(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	out, err := s.game.ListCreatures(r.Context(), user.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"creatures": out})
}

func (s *Server) handleCreature(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.GetCreature(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateTrade(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		ToAccountID string `json:"to_account_id"`
		ToUsername  string `json:"to_username"`
		CreatureID  string `json:"creature_id"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.CreateTrade(r.Context(), game.CreateTradeInput{
		FromAccountID:  user.UserID,
		ToAccountID:    in.ToAccountID,
		ToUsername:     in.ToUsername,
		CreatureID:     in.CreatureID,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	out, err := s.game.ListTrades(r.Context(), user.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": out})
}

func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	out, err := s.game.GetTrade(r.Context(), user.UserID, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAcceptTrade(w http.ResponseWriter, r *http.Request) {
	var in struct {
		OfferedCreatureID string `json:"offered_creature_id"`
	}
	if err := decodeOptionalJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.resolveTrade(w, r, game.ActionAccept, in.OfferedCreatureID)
}

func (s *Server) handleRejectTrade(w http.ResponseWriter, r *http.Request) {
	s.resolveTrade(w, r, game.ActionReject, "")
}

func (s *Server) resolveTrade(w http.ResponseWriter, r *http.Request, action game.TradeAction, offeredID string) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	out, err := s.game.ResolveTrade(r.Context(), game.ResolveTradeInput{
		TradeID:           chi.URLParam(r, "id"),
		ActingAccountID:   user.UserID,
		Action:            action,
		OfferedCreatureID: offeredID,
		IdempotencyKey:    idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleBuddy(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	c, ok, err := s.game.Buddy(r.Context(), user.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"buddy": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"buddy": c})
}

func (s *Server) handleSetBuddy(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		CreatureID string `json:"creature_id"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.AssignBuddy(r.Context(), game.AssignBuddyInput{
		AccountID:  user.UserID,
		CreatureID: in.CreatureID,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleClearBuddy(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err := s.game.ClearBuddy(r.Context(), user.UserID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrInvalidInput),
		errors.Is(err, game.ErrInvalidQuantity),
		errors.Is(err, game.ErrSelfTrade),
		errors.Is(err, game.ErrNotRecipient),
		errors.Is(err, game.ErrCreatureNotOwned):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, game.ErrAccountNotFound),
		errors.Is(err, game.ErrCreatureNotFound),
		errors.Is(err, game.ErrTradeNotFound),
		errors.Is(err, game.ErrItemNotFound),
		errors.Is(err, species.ErrSpeciesNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, game.ErrTradeNotPending),
		errors.Is(err, game.ErrOwnershipChanged),
		errors.Is(err, game.ErrUsernameTaken),
		errors.Is(err, game.ErrDuplicateIdempotency),
		errors.Is(err, game.ErrTxConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, game.ErrInsufficientFunds), errors.Is(err, game.ErrStorageFull):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, species.ErrCatalogUnavailable):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

// decodeOptionalJSON is decodeJSON for endpoints where the body may be omitted.
func decodeOptionalJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return nil
	}
	if err := decodeJSON(r, out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func idempotencyKey(r *http.Request) string {
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" {
		return key
	}
	return uuid.NewString()
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
