package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/openautogroup/lotview/internal/auth"
	"github.com/openautogroup/lotview/internal/convo"
	"github.com/openautogroup/lotview/internal/store"
)

// ConversationsHandler serves the dashboard messaging API.
type ConversationsHandler struct {
	stores *store.Stores
	convo  *convo.Service
	logger *slog.Logger
}

func NewConversationsHandler(st *store.Stores, svc *convo.Service, logger *slog.Logger) *ConversationsHandler {
	return &ConversationsHandler{stores: st, convo: svc, logger: logger}
}

func (h *ConversationsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /all-conversations", h.gate(h.handleListAll))
	mux.HandleFunc("POST /conversations/{id}/send-message", h.gate(h.handleSendMessage))
	mux.HandleFunc("GET /conversations/{id}/messages", h.gate(h.handleMessages))
	mux.HandleFunc("GET /messenger-conversations", h.gate(h.handleListMessenger))
	mux.HandleFunc("POST /messenger-conversations/{id}/reply", h.gate(h.handleSendMessage))
	mux.HandleFunc("POST /messenger-conversations/{id}/toggle-ai", h.gate(h.handleToggleAI))
	mux.HandleFunc("PATCH /messenger-conversations/{id}/metadata", h.gate(h.handleMetadata))
}

func (h *ConversationsHandler) gate(next http.HandlerFunc) http.HandlerFunc {
	return auth.RequireRole(store.RoleSalesperson, auth.RequireDealership(next))
}

func (h *ConversationsHandler) handleListAll(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, "")
}

func (h *ConversationsHandler) handleListMessenger(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, store.ChannelMessenger)
}

func (h *ConversationsHandler) list(w http.ResponseWriter, r *http.Request, channel store.Channel) {
	id := auth.FromContext(r.Context())
	list, err := h.stores.Conversations.List(r.Context(), id.DealershipID, channel,
		queryInt(r, "page", "1"), queryInt(r, "limit", "50"))
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *ConversationsHandler) load(w http.ResponseWriter, r *http.Request) (*store.Conversation, *auth.Identity, bool) {
	id := auth.FromContext(r.Context())
	cid, err := pathID(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, "Invalid conversation id")
		return nil, nil, false
	}
	conv, err := h.stores.Conversations.Get(r.Context(), cid, id.DealershipID)
	if err != nil {
		writeStoreErr(w, err)
		return nil, nil, false
	}
	return conv, id, true
}

func (h *ConversationsHandler) handleMessages(w http.ResponseWriter, r *http.Request) {
	conv, id, ok := h.load(w, r)
	if !ok {
		return
	}
	msgs, err := h.stores.Messages.ListByConversation(r.Context(), conv.ID, id.DealershipID,
		queryInt(r, "limit", "100"))
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	if err := h.stores.Messages.MarkRead(r.Context(), conv.ID, id.DealershipID); err != nil {
		h.logger.Warn("mark read failed", "conversation", conv.ID, "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversation": conv, "messages": msgs})
}

func (h *ConversationsHandler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	conv, id, ok := h.load(w, r)
	if !ok {
		return
	}
	var req struct {
		Message string `json:"message"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Message == "" {
		writeErr(w, http.StatusBadRequest, "message is required")
		return
	}

	d, err := h.stores.Dealerships.Get(r.Context(), id.DealershipID)
	if err != nil {
		writeStoreErr(w, err)
		return
	}

	msg, err := h.convo.SendOutbound(r.Context(), d, conv, req.Message, id.User.Name, store.SourceLotview)
	if err != nil {
		h.logger.Error("outbound send failed", "conversation", conv.ID, "error", err)
		writeErr(w, http.StatusBadGateway, "Message could not be delivered")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": msg})
}

func (h *ConversationsHandler) handleToggleAI(w http.ResponseWriter, r *http.Request) {
	conv, _, ok := h.load(w, r)
	if !ok {
		return
	}
	var req struct {
		AIEnabled   *bool `json:"aiEnabled"`
		AIWatchMode *bool `json:"aiWatchMode"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.AIEnabled != nil {
		conv.AIEnabled = *req.AIEnabled
	}
	if req.AIWatchMode != nil {
		conv.AIWatchMode = *req.AIWatchMode
	}
	if err := h.stores.Conversations.Update(r.Context(), conv); err != nil {
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (h *ConversationsHandler) handleMetadata(w http.ResponseWriter, r *http.Request) {
	conv, _, ok := h.load(w, r)
	if !ok {
		return
	}
	var meta store.ConversationMetadata
	if err := decodeJSON(r, &meta); err != nil {
		writeErr(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if meta.AssignedToUserID != nil {
		conv.AssignedToUserID = meta.AssignedToUserID
	}
	if meta.LeadStatus != nil {
		conv.LeadStatus = *meta.LeadStatus
	}
	if meta.PipelineStage != nil {
		conv.PipelineStage = *meta.PipelineStage
	}
	if meta.Tags != nil {
		conv.Tags = *meta.Tags
	}
	if err := h.stores.Conversations.Update(r.Context(), conv); err != nil {
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}
