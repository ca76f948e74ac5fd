package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/openautogroup/lotview/internal/auth"
	"github.com/openautogroup/lotview/internal/convo"
	"github.com/openautogroup/lotview/internal/inventory"
	"github.com/openautogroup/lotview/internal/store"
)

// WebhooksHandler receives external events: CRM message webhooks, call
// events, DMS inventory pushes, and signed scrape triggers.
type WebhooksHandler struct {
	stores  *store.Stores
	convo   *convo.Service
	scraper *inventory.Service
	logger  *slog.Logger
	rate    *keyedLimiter
}

func NewWebhooksHandler(st *store.Stores, convoSvc *convo.Service, scraper *inventory.Service, logger *slog.Logger) *WebhooksHandler {
	return &WebhooksHandler{
		stores:  st,
		convo:   convoSvc,
		scraper: scraper,
		logger:  logger,
		rate:    newKeyedLimiter(300, 30),
	}
}

func (h *WebhooksHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhooks/trigger-scrape", limitByIP(h.rate, h.handleTriggerScrape))
	mux.HandleFunc("POST /ghl/webhook", limitByIP(h.rate, h.handleGHLWebhook))
	mux.HandleFunc("POST /ghl/call-webhook", limitByIP(h.rate, h.handleGHLCallWebhook))
	mux.HandleFunc("POST /pbs/webhook", limitByIP(h.rate, h.handlePBSWebhook))
}

// handleTriggerScrape starts a scrape for the signed dealership. The
// signature uses the per-dealership scrape webhook secret over
// "timestamp.body" and must be within the replay window.
func (h *WebhooksHandler) handleTriggerScrape(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	var req struct {
		DealershipID int64 `json:"dealershipId"`
	}
	if err := json.Unmarshal(body, &req); err != nil || req.DealershipID <= 0 {
		writeErr(w, http.StatusBadRequest, "dealershipId is required")
		return
	}

	d, err := h.stores.Dealerships.Get(r.Context(), req.DealershipID)
	if err != nil {
		writeStoreErr(w, err)
		return
	}

	sig := r.Header.Get("X-Scrape-Signature")
	tsMs, _ := strconv.ParseInt(r.Header.Get("X-Scrape-Timestamp"), 10, 64)
	if !auth.VerifyWebhookSignature(d.ScrapeWebhookSecret, sig, tsMs, body, time.Now()) {
		writeErr(w, http.StatusUnauthorized, "Invalid webhook signature")
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if _, err := h.scraper.Scrape(ctx, d, store.TriggerWebhook); err != nil {
			h.logger.Error("webhook scrape failed", "dealership", d.ID, "error", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]any{"success": true})
}

// ghlPayload is the CRM's message webhook shape. Type may be numeric or
// string, and field names vary between message kinds.
type ghlPayload struct {
	Type       any    `json:"type"`
	LocationID string `json:"locationId"`
	PageID     string `json:"pageId"`
	ContactID  string `json:"contactId"`
	MessageID  string `json:"messageId"`
	GHLID      string `json:"id"`
	Body       string `json:"body"`
	Message    string `json:"message"`
	Direction  string `json:"direction"`
	Sender     string `json:"senderName"`
	Timestamp  int64  `json:"timestamp"`
}

func (h *WebhooksHandler) handleGHLWebhook(w http.ResponseWriter, r *http.Request) {
	var p ghlPayload
	if err := decodeJSON(r, &p); err != nil {
		writeErr(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	channel, err := convo.NormalizeChannel(p.Type)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	ev := &convo.InboundEvent{
		Channel:           channel,
		LocationID:        p.LocationID,
		PageID:            p.PageID,
		ParticipantID:     p.ContactID,
		ExternalMessageID: p.MessageID,
		GHLMessageID:      p.GHLID,
		Body:              firstNonEmpty(p.Body, p.Message),
		Direction:         normalizeDirection(p.Direction),
		SenderName:        p.Sender,
		SentAt:            webhookTime(p.Timestamp),
		Source:            store.SourceCRM,
	}

	res, err := h.convo.ProcessInbound(r.Context(), ev)
	if err != nil {
		if errors.Is(err, convo.ErrUnknownLocation) {
			writeErr(w, http.StatusNotFound, "Unknown location")
			return
		}
		h.logger.Error("ghl webhook failed", "location", p.LocationID, "error", err)
		writeErr(w, http.StatusInternalServerError, "Internal error")
		return
	}
	if res.Duplicate {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "duplicate": true})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"conversationId": res.ConversationID,
		"messageId":      res.MessageID,
	})
}

// handleGHLCallWebhook records call events as SMS-channel system messages so
// the thread shows the call happened.
func (h *WebhooksHandler) handleGHLCallWebhook(w http.ResponseWriter, r *http.Request) {
	var p struct {
		LocationID string `json:"locationId"`
		ContactID  string `json:"contactId"`
		CallID     string `json:"callId"`
		Status     string `json:"status"`
		Duration   int    `json:"duration"`
		Timestamp  int64  `json:"timestamp"`
	}
	if err := decodeJSON(r, &p); err != nil {
		writeErr(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	body := "Phone call"
	if p.Status != "" {
		body += " (" + p.Status + ")"
	}
	ev := &convo.InboundEvent{
		Channel:           store.ChannelSMS,
		LocationID:        p.LocationID,
		ParticipantID:     p.ContactID,
		ExternalMessageID: p.CallID,
		Body:              body,
		Direction:         store.DirectionInbound,
		SentAt:            webhookTime(p.Timestamp),
		Source:            store.SourceCRM,
	}
	res, err := h.convo.ProcessInbound(r.Context(), ev)
	if err != nil {
		if errors.Is(err, convo.ErrUnknownLocation) {
			writeErr(w, http.StatusNotFound, "Unknown location")
			return
		}
		writeErr(w, http.StatusInternalServerError, "Internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "duplicate": res.Duplicate})
}

// handlePBSWebhook ingests DMS inventory pushes: the payload is a bulk
// import addressed by dealership id, signed with the scrape webhook secret.
func (h *WebhooksHandler) handlePBSWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	var req struct {
		DealershipID int64                     `json:"dealershipId"`
		Vehicles     []inventory.ImportVehicle `json:"vehicles"`
	}
	if err := json.Unmarshal(body, &req); err != nil || req.DealershipID <= 0 {
		writeErr(w, http.StatusBadRequest, "dealershipId is required")
		return
	}

	d, err := h.stores.Dealerships.Get(r.Context(), req.DealershipID)
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	sig := r.Header.Get("X-Pbs-Signature")
	tsMs, _ := strconv.ParseInt(r.Header.Get("X-Pbs-Timestamp"), 10, 64)
	if !auth.VerifyWebhookSignature(d.ScrapeWebhookSecret, sig, tsMs, body, time.Now()) {
		writeErr(w, http.StatusUnauthorized, "Invalid webhook signature")
		return
	}

	importer := inventory.NewImporter(h.stores.Vehicles)
	res, err := importer.Import(r.Context(), d.ID, req.Vehicles, true)
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"imported": res.Imported,
		"updated":  res.Updated,
		"failed":   res.Failed,
	})
}

func normalizeDirection(s string) store.Direction {
	if s == string(store.DirectionOutbound) {
		return store.DirectionOutbound
	}
	return store.DirectionInbound
}

func webhookTime(ms int64) time.Time {
	if ms <= 0 {
		return time.Now().UTC()
	}
	return time.UnixMilli(ms).UTC()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
