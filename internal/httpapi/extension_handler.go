package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/openautogroup/lotview/internal/auth"
	"github.com/openautogroup/lotview/internal/posting"
	"github.com/openautogroup/lotview/internal/store"
)

// ExtensionHandler serves the browser extension: inventory for the picker,
// one-time posting tokens, post report-backs, bulk auto-post and limits.
type ExtensionHandler struct {
	stores  *store.Stores
	posting *posting.Service
	logger  *slog.Logger
}

func NewExtensionHandler(st *store.Stores, postingSvc *posting.Service, logger *slog.Logger) *ExtensionHandler {
	return &ExtensionHandler{stores: st, posting: postingSvc, logger: logger}
}

func (h *ExtensionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /extension/inventory", auth.RequireDealership(h.handleInventory))
	mux.HandleFunc("POST /extension/posting-token", h.user(h.handlePostingToken))
	mux.HandleFunc("POST /extension/postings", h.user(h.handleReportPosting))
	mux.HandleFunc("POST /extension/auto-post", h.user(h.handleAutoPost))
	mux.HandleFunc("GET /extension/limits", h.user(h.handleLimits))
}

func (h *ExtensionHandler) user(next http.HandlerFunc) http.HandlerFunc {
	return auth.RequireRole(store.RoleSalesperson, auth.RequireDealership(next))
}

// handleInventory returns postable vehicles with hosted image URLs
// preferred over external ones.
func (h *ExtensionHandler) handleInventory(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	list, err := h.stores.Vehicles.List(r.Context(), id.DealershipID, store.VehicleListOpts{
		Page:   queryInt(r, "page", "0"),
		Limit:  queryInt(r, "limit", "0"),
		Search: r.URL.Query().Get("search"),
	})
	if err != nil {
		writeStoreErr(w, err)
		return
	}

	type extVehicle struct {
		store.Vehicle
		DisplayImages []string `json:"displayImages"`
	}
	out := make([]extVehicle, 0, len(list.Items))
	for _, v := range list.Items {
		out = append(out, extVehicle{Vehicle: v, DisplayImages: v.DisplayImages()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out, "total": list.Total})
}

func (h *ExtensionHandler) handlePostingToken(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	var req struct {
		VehicleID int64  `json:"vehicleId"`
		Platform  string `json:"platform"`
	}
	if err := decodeJSON(r, &req); err != nil || req.VehicleID <= 0 || req.Platform == "" {
		writeErr(w, http.StatusBadRequest, "vehicleId and platform are required")
		return
	}

	tok, err := h.posting.MintToken(r.Context(), id.User, id.DealershipID, req.VehicleID, req.Platform)
	if err != nil {
		if errors.Is(err, posting.ErrDailyCapReached) {
			writeErr(w, http.StatusTooManyRequests, "Daily posting limit reached")
			return
		}
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":     tok.Token,
		"expiresAt": tok.ExpiresAt,
	})
}

// handleReportPosting records a publish outcome. The one-time token is
// burned only on success; a failure report leaves it live so the user can
// retry until the TTL expires.
func (h *ExtensionHandler) handleReportPosting(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	var req struct {
		Token      string `json:"token"`
		VehicleID  int64  `json:"vehicleId"`
		Platform   string `json:"platform"`
		AccountID  string `json:"accountId"`
		Success    bool   `json:"success"`
		ListingURL string `json:"listingUrl"`
		Error      string `json:"error"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Token == "" {
		writeErr(w, http.StatusBadRequest, "token is required")
		return
	}

	if !req.Success {
		if _, err := h.posting.CheckToken(r.Context(), req.Token, id.User.ID, req.VehicleID, req.Platform); err != nil {
			writeErr(w, http.StatusUnauthorized, "Invalid or expired posting token")
			return
		}
		h.logger.Warn("extension post failed", "user", id.User.ID, "vehicle", req.VehicleID, "error", req.Error)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "recorded": "failure"})
		return
	}

	tok, err := h.posting.ConsumeToken(r.Context(), req.Token, id.User.ID, req.VehicleID, req.Platform)
	if err != nil {
		writeErr(w, http.StatusUnauthorized, "Invalid or expired posting token")
		return
	}
	if err := h.posting.ReportSuccess(r.Context(), tok, id.DealershipID, req.AccountID, req.ListingURL); err != nil {
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "recorded": "posted"})
}

func (h *ExtensionHandler) handleAutoPost(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	var req struct {
		VehicleIDs []int64 `json:"vehicleIds"`
		AccountID  string  `json:"accountId"`
		TemplateID string  `json:"templateId"`
		Priority   int     `json:"priority"`
	}
	if err := decodeJSON(r, &req); err != nil || len(req.VehicleIDs) == 0 {
		writeErr(w, http.StatusBadRequest, "vehicleIds is required")
		return
	}

	items, err := h.posting.Enqueue(r.Context(), id.User, id.DealershipID, req.VehicleIDs, req.AccountID, req.TemplateID, req.Priority)
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"queued": len(items), "items": items})
}

func (h *ExtensionHandler) handleLimits(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	d, err := h.stores.Dealerships.Get(r.Context(), id.DealershipID)
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	dailyCap := d.PostingDailyCap
	if dailyCap <= 0 {
		dailyCap = store.DefaultPostingDailyCap
	}
	used, err := h.stores.PostingQueue.DailySlotsUsed(r.Context(), id.User.ID, id.DealershipID, time.Now().UTC())
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	remaining := dailyCap - used
	if remaining < 0 {
		remaining = 0
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"dailyCap":  dailyCap,
		"used":      used,
		"remaining": remaining,
	})
}
