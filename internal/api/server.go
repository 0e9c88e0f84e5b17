// Package api exposes the command boundary over a local HTTP API. Each
// handler takes typed, validated arguments and returns either a success
// payload or a single error string; storage detail never crosses the
// boundary.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"muppetd/internal/apperrors"
	"muppetd/internal/keycache"
	"muppetd/internal/memoryidx"
	"muppetd/internal/metrics"
	"muppetd/internal/search"
	"muppetd/internal/storage"
	"muppetd/internal/vault"
)

const (
	maxRequestBytes = 64 << 10
	maxMessageBytes = 512 << 10
)

type Server struct {
	store   *storage.Store
	keys    *keycache.Cache
	vault   *vault.Vault
	search  *search.Client
	memory  *memoryidx.Client
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

type Config struct {
	Store   *storage.Store
	Keys    *keycache.Cache
	Vault   *vault.Vault
	Search  *search.Client
	Memory  *memoryidx.Client
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

func New(cfg Config) *Server {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global()
	}
	return &Server{
		store:   cfg.Store,
		keys:    cfg.Keys,
		vault:   cfg.Vault,
		search:  cfg.Search,
		memory:  cfg.Memory,
		logger:  cfg.Logger,
		metrics: m,
	}
}

// Register attaches every boundary route to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/conversations", s.handle("create_conversation", s.createConversation))
	mux.HandleFunc("GET /api/conversations", s.handle("list_conversations", s.listConversations))
	mux.HandleFunc("GET /api/conversations/{id}", s.handle("get_conversation", s.getConversation))
	mux.HandleFunc("PATCH /api/conversations/{id}/title", s.handle("update_conversation_title", s.updateConversationTitle))
	mux.HandleFunc("DELETE /api/conversations/{id}", s.handle("delete_conversation", s.deleteConversation))

	mux.HandleFunc("GET /api/conversations/{id}/messages", s.handle("list_messages", s.listMessages))
	mux.HandleFunc("POST /api/conversations/{id}/messages", s.handle("append_message", s.appendMessage))

	mux.HandleFunc("PUT /api/settings/search-key", s.handle("set_search_key", s.setSearchKey))
	mux.HandleFunc("GET /api/settings/search-key", s.handle("get_search_key", s.getSearchKey))
	mux.HandleFunc("DELETE /api/settings/search-key", s.handle("delete_search_key", s.deleteSearchKey))

	mux.HandleFunc("POST /api/search", s.handle("web_search", s.webSearch))
	mux.HandleFunc("POST /api/memory/index", s.handle("memory_index", s.memoryIndex))
	mux.HandleFunc("POST /api/memory/query", s.handle("memory_query", s.memoryQuery))

	mux.HandleFunc("PUT /api/vault/secrets/{name}", s.handle("put_vault_secret", s.putVaultSecret))
	mux.HandleFunc("GET /api/vault/secrets/{name}", s.handle("get_vault_secret", s.getVaultSecret))
	mux.HandleFunc("DELETE /api/vault/secrets/{name}", s.handle("delete_vault_secret", s.deleteVaultSecret))
}

// handle wraps a command handler with request logging, metrics, and the
// error-to-status mapping.
func (s *Server) handle(op string, fn func(http.ResponseWriter, *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log := s.logger.With().
			Str("request_id", uuid.NewString()).
			Str("op", op).
			Logger()

		s.metrics.CommandsTotal.Inc()
		err := fn(w, r)
		if err != nil {
			s.metrics.CommandErrors.Inc()
			status, msg := mapError(err)
			if status >= http.StatusInternalServerError {
				log.Error().Err(err).Msg("command failed")
			} else {
				log.Debug().Err(err).Int("status", status).Msg("command rejected")
			}
			writeJSON(w, status, map[string]string{"error": msg})
			return
		}
		log.Debug().Dur("took", time.Since(start)).Msg("command ok")
	}
}

// mapError decides what crosses the boundary. Validation text is
// caller-correctable and passes through verbatim; everything else collapses
// to an opaque message after being logged server-side.
func mapError(err error) (int, string) {
	var ae *apperrors.AppError
	if errors.As(err, &ae) {
		switch ae.Code {
		case apperrors.CodeInvalidArgument:
			return http.StatusBadRequest, ae.Message
		case apperrors.CodeNotFound:
			return http.StatusNotFound, "not found"
		}
	}
	return http.StatusInternalServerError, "operation failed"
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// decodeJSON enforces the JSON-only mutation contract and the request size
// cap, then decodes into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	ct := r.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "application/json") {
		return apperrors.InvalidArg("Content-Type must be application/json")
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperrors.InvalidArg("invalid JSON body")
	}
	return nil
}
