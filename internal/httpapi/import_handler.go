package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/openautogroup/lotview/internal/auth"
	"github.com/openautogroup/lotview/internal/inventory"
	"github.com/openautogroup/lotview/internal/store"
)

// ImportHandler is the machine-facing inventory API, authenticated with
// oag_ tokens and gated per capability.
type ImportHandler struct {
	stores   *store.Stores
	importer *inventory.Importer
	logger   *slog.Logger
}

func NewImportHandler(st *store.Stores, importer *inventory.Importer, logger *slog.Logger) *ImportHandler {
	return &ImportHandler{stores: st, importer: importer, logger: logger}
}

func (h *ImportHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /import/vehicles", h.cap(store.CapImportVehicles, h.handleImport))
	mux.HandleFunc("GET /import/vehicles", h.cap(store.CapReadVehicles, h.handleList))
	mux.HandleFunc("DELETE /import/vehicles/{id}", h.cap(store.CapDeleteVehicles, h.handleDeleteByID))
	mux.HandleFunc("DELETE /import/vehicles/vin/{vin}", h.cap(store.CapDeleteVehicles, h.handleDeleteByVIN))
	mux.HandleFunc("POST /import/vehicles/sync", h.cap(store.CapDeleteVehicles, h.handleSync))
}

func (h *ImportHandler) cap(capability string, next http.HandlerFunc) http.HandlerFunc {
	return auth.RequireCapability([]string{capability}, next)
}

func (h *ImportHandler) handleImport(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())

	// The payload is either a bare array or {vehicles: [...], updateExisting}.
	raw, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	var records []inventory.ImportVehicle
	updateExisting := false
	if json.Unmarshal(raw, &records) != nil {
		var wrapped struct {
			Vehicles       []inventory.ImportVehicle `json:"vehicles"`
			UpdateExisting bool                      `json:"updateExisting"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			writeErr(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		records = wrapped.Vehicles
		updateExisting = wrapped.UpdateExisting
	}

	res, err := h.importer.Import(r.Context(), id.DealershipID, records, updateExisting)
	if err != nil {
		if errors.Is(err, inventory.ErrBatchTooLarge) {
			writeErr(w, http.StatusBadRequest, err.Error())
			return
		}
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"imported": res.Imported,
		"updated":  res.Updated,
		"failed":   res.Failed,
		"errors":   res.Errors,
	})
}

func (h *ImportHandler) handleList(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	list, err := h.stores.Vehicles.List(r.Context(), id.DealershipID, store.VehicleListOpts{
		Page:  queryInt(r, "page", "0"),
		Limit: queryInt(r, "limit", "0"),
	})
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *ImportHandler) handleDeleteByID(w http.ResponseWriter, r *http.Request) {
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

func (h *ImportHandler) handleDeleteByVIN(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	vin := strings.ToUpper(strings.TrimSpace(r.PathValue("vin")))
	if !inventory.ValidVIN(vin) {
		writeErr(w, http.StatusBadRequest, "Invalid VIN")
		return
	}
	if err := h.stores.Vehicles.DeleteByVIN(r.Context(), vin, id.DealershipID); err != nil {
		writeStoreErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ImportHandler) handleSync(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	var req struct {
		VINs          []string `json:"vins"`
		DryRun        bool     `json:"dryRun"`
		ConfirmDelete bool     `json:"confirmDelete"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := h.importer.Sync(r.Context(), id.DealershipID, req.VINs, req.DryRun, req.ConfirmDelete)
	if err != nil {
		if errors.Is(err, store.ErrInvalid) {
			writeErr(w, http.StatusBadRequest, "vins must be a non-empty array")
			return
		}
		if errors.Is(err, inventory.ErrConfirmRequired) {
			writeErr(w, http.StatusBadRequest, err.Error())
			return
		}
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
