package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler handles login and logout requests
type Handler struct {
	store    *TokenStore
	username string
	password string
	log      zerolog.Logger
}

// NewHandler creates an auth handler.
// With empty credentials the login endpoint always rejects; pair this with
// a disabled middleware so the API stays open in dev setups.
func NewHandler(store *TokenStore, username, password string, log zerolog.Logger) *Handler {
	return &Handler{
		store:    store,
		username: username,
		password: password,
		log:      log.With().Str("handler", "auth").Logger(),
	}
}

// RegisterRoutes registers the auth routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/login", h.HandleLogin)
	r.Post("/auth/logout", h.HandleLogout)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HandleLogin handles POST /api/auth/login
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if !h.credentialsMatch(req.Username, req.Password) {
		h.log.Warn().Str("username", req.Username).Msg("Rejected login attempt")
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	token, expiry := h.store.Issue()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(loginResponse{Token: token, ExpiresAt: expiry})
}

// HandleLogout handles POST /api/auth/logout
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	token := BearerToken(r)
	if token == "" || !h.store.Revoke(token) {
		http.Error(w, "Unknown token", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]bool{"revoked": true})
}

// credentialsMatch compares credentials in constant time
func (h *Handler) credentialsMatch(username, password string) bool {
	if h.username == "" {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(h.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(h.password)) == 1
	return userOK && passOK
}

// BearerToken extracts the bearer token from the Authorization header
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
