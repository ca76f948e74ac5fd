package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/openautogroup/lotview/internal/auth"
	"github.com/openautogroup/lotview/internal/store"
)

// TokensHandler manages external API tokens. Master+ only; the raw token
// value appears exactly once, in the create response.
type TokensHandler struct {
	stores *store.Stores
	logger *slog.Logger
}

func NewTokensHandler(st *store.Stores, logger *slog.Logger) *TokensHandler {
	return &TokensHandler{stores: st, logger: logger}
}

func (h *TokensHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api-tokens", h.gate(h.handleList))
	mux.HandleFunc("POST /api-tokens", h.gate(h.handleCreate))
	mux.HandleFunc("DELETE /api-tokens/{id}", h.gate(h.handleRevoke))
}

func (h *TokensHandler) gate(next http.HandlerFunc) http.HandlerFunc {
	return auth.RequireRole(store.RoleMaster, auth.RequireDealership(next))
}

func (h *TokensHandler) handleList(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	tokens, err := h.stores.APITokens.ListByDealership(r.Context(), id.DealershipID)
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tokens": tokens})
}

func (h *TokensHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	var req struct {
		Name        string     `json:"name"`
		Permissions []string   `json:"permissions"`
		ExpiresAt   *time.Time `json:"expiresAt"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Name == "" {
		writeErr(w, http.StatusBadRequest, "name is required")
		return
	}
	if len(req.Permissions) == 0 {
		writeErr(w, http.StatusBadRequest, "permissions is required")
		return
	}
	for _, p := range req.Permissions {
		if !store.ValidCapability(p) {
			writeErr(w, http.StatusBadRequest, "unknown permission: "+p)
			return
		}
	}

	raw, hash, prefix, err := auth.GenerateAPIToken(req.Name)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "Internal error")
		return
	}
	tok := &store.ExternalAPIToken{
		DealershipID: id.DealershipID,
		TokenName:    req.Name,
		TokenHash:    hash,
		TokenPrefix:  prefix,
		Permissions:  req.Permissions,
		ExpiresAt:    req.ExpiresAt,
		IsActive:     true,
	}
	if err := h.stores.APITokens.Create(r.Context(), tok); err != nil {
		writeStoreErr(w, err)
		return
	}
	h.logger.Info("api token created", "dealership", id.DealershipID, "name", req.Name)
	writeJSON(w, http.StatusCreated, map[string]any{"token": raw, "record": tok})
}

func (h *TokensHandler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	tid, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "Invalid token id")
		return
	}
	if err := h.stores.APITokens.Revoke(r.Context(), tid, id.DealershipID); err != nil {
		writeStoreErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
