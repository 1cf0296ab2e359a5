// Package handlers provides passthrough HTTP handlers that relay requests
// to the upstream IB gateway unchanged.
package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/dchernov/ibfolio/internal/clients/ibgateway"
)

// Handler relays whitelisted routes to the upstream gateway
type Handler struct {
	client *ibgateway.Client
	log    zerolog.Logger
}

// NewHandler creates a new gateway passthrough handler
func NewHandler(client *ibgateway.Client, log zerolog.Logger) *Handler {
	return &Handler{
		client: client,
		log:    log.With().Str("handler", "gateway").Logger(),
	}
}

// proxy builds a handler that forwards to a fixed upstream path.
// Path parameters named in the upstream template are substituted from the
// route; the query string passes through unchanged.
func (h *Handler) proxy(method, upstreamTemplate string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		upstream := upstreamTemplate
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			for i, key := range rctx.URLParams.Keys {
				upstream = strings.ReplaceAll(upstream, "{"+key+"}", rctx.URLParams.Values[i])
			}
		}
		if r.URL.RawQuery != "" {
			upstream += "?" + r.URL.RawQuery
		}

		var body io.Reader
		if method != http.MethodGet {
			body = r.Body
		}

		status, header, respBody, err := h.client.Forward(r.Context(), method, upstream, body)
		if err != nil {
			h.log.Warn().Err(err).Str("path", upstream).Msg("Passthrough failed")
			if errors.Is(err, ibgateway.ErrUnavailable) {
				http.Error(w, "Upstream gateway unavailable", http.StatusServiceUnavailable)
				return
			}
			http.Error(w, "Upstream gateway error", http.StatusBadGateway)
			return
		}

		contentType := header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/json"
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(status)
		if _, err := w.Write(respBody); err != nil {
			h.log.Error().Err(err).Msg("Failed to write passthrough response")
		}
	}
}

// RegisterRoutes registers the passthrough routes.
// Only read-only portfolio and market-data surfaces are exposed, plus the
// session endpoints needed to keep the gateway authenticated.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/gateway", func(r chi.Router) {
		r.Get("/accounts", h.proxy(http.MethodGet, "/portfolio/accounts"))
		r.Get("/accounts/{accountId}/meta", h.proxy(http.MethodGet, "/portfolio/{accountId}/meta"))
		r.Get("/accounts/{accountId}/ledger", h.proxy(http.MethodGet, "/portfolio/{accountId}/ledger"))
		r.Get("/accounts/{accountId}/summary", h.proxy(http.MethodGet, "/portfolio/{accountId}/summary"))
		r.Get("/accounts/{accountId}/allocation", h.proxy(http.MethodGet, "/portfolio/{accountId}/allocation"))
		r.Get("/accounts/{accountId}/positions/{page}", h.proxy(http.MethodGet, "/portfolio/{accountId}/positions/{page}"))

		r.Get("/search", h.proxy(http.MethodGet, "/iserver/secdef/search"))
		r.Get("/marketdata/snapshot", h.proxy(http.MethodGet, "/iserver/marketdata/snapshot"))
		r.Get("/marketdata/history", h.proxy(http.MethodGet, "/iserver/marketdata/history"))

		r.Get("/auth/status", h.proxy(http.MethodGet, "/iserver/auth/status"))
		r.Post("/auth/reauthenticate", h.proxy(http.MethodPost, "/iserver/reauthenticate"))
		r.Post("/tickle", h.proxy(http.MethodPost, "/tickle"))
	})
}
