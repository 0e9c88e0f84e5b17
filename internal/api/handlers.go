package api

import (
	"errors"
	"net/http"

	"muppetd/internal/apperrors"
	"muppetd/internal/memoryidx"
	"muppetd/internal/search"
	"muppetd/internal/storage"
	"muppetd/internal/vault"
)

// Conversations.

func (s *Server) createConversation(w http.ResponseWriter, r *http.Request) error {
	var body struct {
		Title *string `json:"title"`
	}
	if err := decodeJSON(w, r, maxRequestBytes, &body); err != nil {
		return err
	}

	c, err := s.store.CreateConversation(r.Context(), body.Title)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, c)
	return nil
}

func (s *Server) listConversations(w http.ResponseWriter, r *http.Request) error {
	out, err := s.store.ListConversations(r.Context())
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, out)
	return nil
}

func (s *Server) getConversation(w http.ResponseWriter, r *http.Request) error {
	c, err := s.store.GetConversation(r.Context(), r.PathValue("id"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, c)
	return nil
}

func (s *Server) updateConversationTitle(w http.ResponseWriter, r *http.Request) error {
	var body struct {
		Title *string `json:"title"`
	}
	if err := decodeJSON(w, r, maxRequestBytes, &body); err != nil {
		return err
	}
	if body.Title == nil {
		return apperrors.InvalidArg("title is required")
	}

	if err := s.store.UpdateConversationTitle(r.Context(), r.PathValue("id"), *body.Title); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	return nil
}

func (s *Server) deleteConversation(w http.ResponseWriter, r *http.Request) error {
	if err := s.store.DeleteConversation(r.Context(), r.PathValue("id")); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	return nil
}

// Messages.

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) error {
	out, err := s.store.ListMessages(r.Context(), r.PathValue("id"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, out)
	return nil
}

func (s *Server) appendMessage(w http.ResponseWriter, r *http.Request) error {
	var body struct {
		Role      string  `json:"role"`
		Content   string  `json:"content"`
		Model     *string `json:"model"`
		TokensIn  *int64  `json:"tokens_in"`
		TokensOut *int64  `json:"tokens_out"`
	}
	if err := decodeJSON(w, r, maxMessageBytes, &body); err != nil {
		return err
	}

	m, err := s.store.AppendMessage(r.Context(), storage.AppendMessageParams{
		ConversationID: r.PathValue("id"),
		Role:           body.Role,
		Content:        body.Content,
		Model:          body.Model,
		TokensIn:       body.TokensIn,
		TokensOut:      body.TokensOut,
	})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, m)
	return nil
}

// Search API key.

func (s *Server) setSearchKey(w http.ResponseWriter, r *http.Request) error {
	var body struct {
		Value string `json:"value"`
	}
	if err := decodeJSON(w, r, maxRequestBytes, &body); err != nil {
		return err
	}
	if body.Value == "" {
		return apperrors.InvalidArg("value is required")
	}

	if err := s.keys.Set(r.Context(), body.Value); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	return nil
}

func (s *Server) getSearchKey(w http.ResponseWriter, r *http.Request) error {
	writeJSON(w, http.StatusOK, map[string]bool{"present": s.keys.Has()})
	return nil
}

func (s *Server) deleteSearchKey(w http.ResponseWriter, r *http.Request) error {
	if err := s.keys.Delete(r.Context()); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	return nil
}

// External service passthroughs.

func (s *Server) webSearch(w http.ResponseWriter, r *http.Request) error {
	var req search.Request
	if err := decodeJSON(w, r, maxRequestBytes, &req); err != nil {
		return err
	}

	s.metrics.SearchRequests.Inc()
	apiKey, _ := s.keys.Get()
	resp, err := s.search.Search(r.Context(), apiKey, req)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, resp)
	return nil
}

func (s *Server) memoryIndex(w http.ResponseWriter, r *http.Request) error {
	var req memoryidx.IndexRequest
	if err := decodeJSON(w, r, maxRequestBytes, &req); err != nil {
		return err
	}

	s.metrics.MemoryRequests.Inc()
	resp, err := s.memory.Index(r.Context(), req)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, resp)
	return nil
}

func (s *Server) memoryQuery(w http.ResponseWriter, r *http.Request) error {
	var req memoryidx.QueryRequest
	if err := decodeJSON(w, r, maxRequestBytes, &req); err != nil {
		return err
	}

	s.metrics.MemoryRequests.Inc()
	resp, err := s.memory.Query(r.Context(), req)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, resp)
	return nil
}

// Vault secrets.

func (s *Server) putVaultSecret(w http.ResponseWriter, r *http.Request) error {
	var body struct {
		Value string `json:"value"`
	}
	if err := decodeJSON(w, r, maxRequestBytes, &body); err != nil {
		return err
	}
	if body.Value == "" {
		return apperrors.InvalidArg("value is required")
	}

	if err := s.vault.Put(r.PathValue("name"), body.Value); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	return nil
}

func (s *Server) getVaultSecret(w http.ResponseWriter, r *http.Request) error {
	value, err := s.vault.Get(r.PathValue("name"))
	if err != nil {
		if errors.Is(err, vault.ErrSecretNotFound) {
			return apperrors.NotFound("secret not found")
		}
		return err
	}
	writeJSON(w, http.StatusOK, map[string]string{"value": value})
	return nil
}

func (s *Server) deleteVaultSecret(w http.ResponseWriter, r *http.Request) error {
	if err := s.vault.Delete(r.PathValue("name")); err != nil {
		if errors.Is(err, vault.ErrSecretNotFound) {
			return apperrors.NotFound("secret not found")
		}
		return err
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	return nil
}
