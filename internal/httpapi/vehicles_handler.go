package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openautogroup/lotview/internal/adapters"
	"github.com/openautogroup/lotview/internal/auth"
	"github.com/openautogroup/lotview/internal/inventory"
	"github.com/openautogroup/lotview/internal/store"
)

// VehiclesHandler serves the dashboard inventory API. Mutations require
// master+; rescrape is available to managers.
type VehiclesHandler struct {
	stores  *store.Stores
	scraper *inventory.Service
	ai      *adapters.AI
	vin     *inventory.VINDecoder
	logger  *slog.Logger
}

func NewVehiclesHandler(st *store.Stores, scraper *inventory.Service, ai *adapters.AI, vin *inventory.VINDecoder, logger *slog.Logger) *VehiclesHandler {
	return &VehiclesHandler{stores: st, scraper: scraper, ai: ai, vin: vin, logger: logger}
}

func (h *VehiclesHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /vehicles", auth.RequireDealership(h.handleList))
	mux.HandleFunc("GET /vehicles/{id}", auth.RequireDealership(h.handleGet))
	mux.HandleFunc("POST /vehicles", h.master(h.handleCreate))
	mux.HandleFunc("PATCH /vehicles/{id}", h.master(h.handleUpdate))
	mux.HandleFunc("DELETE /vehicles/{id}", h.master(h.handleDelete))
	mux.HandleFunc("POST /vehicles/{id}/force-rescrape", h.manager(h.handleForceRescrape))
	mux.HandleFunc("POST /vehicles/{id}/generate-description", h.master(h.handleGenerateDescription))
	mux.HandleFunc("GET /vehicles/decode-vin/{vin}", h.manager(h.handleDecodeVIN))
}

func (h *VehiclesHandler) master(next http.HandlerFunc) http.HandlerFunc {
	return auth.RequireRole(store.RoleMaster, auth.RequireDealership(next))
}

func (h *VehiclesHandler) manager(next http.HandlerFunc) http.HandlerFunc {
	return auth.RequireRole(store.RoleManager, auth.RequireDealership(next))
}

func (h *VehiclesHandler) handleList(w http.ResponseWriter, r *http.Request) {
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
	writeJSON(w, http.StatusOK, list)
}

func (h *VehiclesHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	vid, err := pathID(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, "Invalid vehicle id")
		return
	}
	v, err := h.stores.Vehicles.Get(r.Context(), vid, id.DealershipID)
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *VehiclesHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	var v store.Vehicle
	if err := decodeJSON(r, &v); err != nil {
		writeErr(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if v.Make == "" || v.Model == "" {
		writeErr(w, http.StatusBadRequest, "make and model are required")
		return
	}
	v.ID = 0
	v.DealershipID = id.DealershipID
	if err := h.stores.Vehicles.Create(r.Context(), &v); err != nil {
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, &v)
}

func (h *VehiclesHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	vid, err := pathID(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, "Invalid vehicle id")
		return
	}
	v, err := h.stores.Vehicles.Get(r.Context(), vid, id.DealershipID)
	if err != nil {
		writeStoreErr(w, err)
		return
	}

	var patch struct {
		Price             *int64    `json:"price"`
		Odometer          *int64    `json:"odometer"`
		Description       *string   `json:"description"`
		ManualHeadline    *string   `json:"manualHeadline"`
		ManualSubheadline *string   `json:"manualSubheadline"`
		ManualDescription *string   `json:"manualDescription"`
		Location          *string   `json:"location"`
		Badges            *[]string `json:"badges"`
		SocialTemplates   *string   `json:"socialTemplates"`
	}
	if err := decodeJSON(r, &patch); err != nil {
		writeErr(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if patch.Price != nil {
		v.Price = *patch.Price
	}
	if patch.Odometer != nil {
		v.Odometer = *patch.Odometer
	}
	if patch.Description != nil {
		v.Description = *patch.Description
	}
	if patch.Location != nil {
		v.Location = *patch.Location
	}
	if patch.Badges != nil {
		v.Badges = *patch.Badges
	}
	if patch.SocialTemplates != nil {
		v.SocialTemplates = *patch.SocialTemplates
	}
	// Touching any manual field flips the preservation flag so the next
	// scrape leaves the copy alone.
	if patch.ManualHeadline != nil {
		v.ManualHeadline = *patch.ManualHeadline
		v.IsManuallyEdited = true
	}
	if patch.ManualSubheadline != nil {
		v.ManualSubheadline = *patch.ManualSubheadline
		v.IsManuallyEdited = true
	}
	if patch.ManualDescription != nil {
		v.ManualDescription = *patch.ManualDescription
		v.IsManuallyEdited = true
	}

	if err := h.stores.Vehicles.Update(r.Context(), v); err != nil {
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *VehiclesHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	vid, err := pathID(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, "Invalid vehicle id")
		return
	}
	if err := h.stores.Vehicles.Delete(r.Context(), vid, id.DealershipID); err != nil {
		writeStoreErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *VehiclesHandler) handleForceRescrape(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	vid, err := pathID(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, "Invalid vehicle id")
		return
	}
	if _, err := h.stores.Vehicles.Get(r.Context(), vid, id.DealershipID); err != nil {
		writeStoreErr(w, err)
		return
	}
	d, err := h.stores.Dealerships.Get(r.Context(), id.DealershipID)
	if err != nil {
		writeStoreErr(w, err)
		return
	}

	// The scrape outlives the request; the run row tracks progress.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if _, err := h.scraper.Scrape(ctx, d, store.TriggerManual); err != nil {
			h.logger.Error("manual rescrape failed", "dealership", d.ID, "error", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]any{"success": true, "message": "Rescrape started"})
}

func (h *VehiclesHandler) handleGenerateDescription(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	vid, err := pathID(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, "Invalid vehicle id")
		return
	}
	v, err := h.stores.Vehicles.Get(r.Context(), vid, id.DealershipID)
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	d, err := h.stores.Dealerships.Get(r.Context(), id.DealershipID)
	if err != nil {
		writeStoreErr(w, err)
		return
	}

	desc, err := h.ai.DescribeVehicle(r.Context(), d, v)
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	// Generated copy lands in the social templates blob. The manual fields
	// and their preservation flag stay untouched; only a human edit flips
	// isManuallyEdited.
	v.SocialTemplates = desc
	if err := h.stores.Vehicles.Update(r.Context(), v); err != nil {
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"socialTemplates": desc, "vehicle": v})
}

func (h *VehiclesHandler) handleDecodeVIN(w http.ResponseWriter, r *http.Request) {
	vin := strings.ToUpper(r.PathValue("vin"))
	if !inventory.ValidVIN(vin) {
		writeErr(w, http.StatusBadRequest, "Invalid VIN")
		return
	}
	details, err := h.vin.Decode(r.Context(), vin)
	if err != nil {
		h.logger.Warn("vin decode failed", "vin", vin, "error", err)
		writeErr(w, http.StatusBadGateway, "VIN could not be decoded")
		return
	}
	writeJSON(w, http.StatusOK, details)
}
