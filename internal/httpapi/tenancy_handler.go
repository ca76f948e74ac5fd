package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/openautogroup/lotview/internal/store"
)

// TenancyHandler resolves public dealership descriptors for the storefront:
// which tenant a subdomain or id maps to, without exposing secrets.
type TenancyHandler struct {
	stores *store.Stores
}

func NewTenancyHandler(st *store.Stores) *TenancyHandler {
	return &TenancyHandler{stores: st}
}

func (h *TenancyHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /tenancy/resolve", h.handleResolve)
}

// publicDealership is the storefront-safe projection.
type publicDealership struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	Subdomain string `json:"subdomain"`
}

func (h *TenancyHandler) handleResolve(w http.ResponseWriter, r *http.Request) {
	var d *store.Dealership
	var err error

	if sub := strings.ToLower(r.URL.Query().Get("subdomain")); sub != "" {
		d, err = h.stores.Dealerships.GetBySubdomain(r.Context(), sub)
	} else if idStr := r.URL.Query().Get("dealershipId"); idStr != "" {
		var id int64
		id, err = strconv.ParseInt(idStr, 10, 64)
		if err == nil && id > 0 {
			d, err = h.stores.Dealerships.Get(r.Context(), id)
		}
	} else {
		writeErr(w, http.StatusBadRequest, "subdomain or dealershipId is required")
		return
	}

	if err != nil || d == nil || !d.IsActive {
		// Unknown and inactive tenants are indistinguishable.
		writeJSON(w, http.StatusOK, map[string]any{"dealership": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"dealership": publicDealership{
		ID:        d.ID,
		Name:      d.Name,
		Slug:      d.Slug,
		Subdomain: d.Subdomain,
	}})
}
