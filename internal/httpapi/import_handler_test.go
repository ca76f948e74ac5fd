package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openautogroup/lotview/internal/auth"
	"github.com/openautogroup/lotview/internal/inventory"
	"github.com/openautogroup/lotview/internal/store"
)

func importTestMux(t *testing.T) (*http.ServeMux, *fakeVehicles) {
	t.Helper()
	vehicles := newFakeVehicles()
	st := &store.Stores{Vehicles: vehicles}
	h := NewImportHandler(st, inventory.NewImporter(vehicles), testLogger())
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return mux, vehicles
}

func tokenIdentity(dealershipID int64, caps ...string) *auth.Identity {
	return &auth.Identity{
		Kind: auth.AuthAPIToken,
		APIToken: &store.ExternalAPIToken{
			DealershipID: dealershipID,
			TokenName:    "dms-feed",
			Permissions:  caps,
			IsActive:     true,
		},
		DealershipID: dealershipID,
	}
}

func TestImport_BareArrayPayload(t *testing.T) {
	mux, vehicles := importTestMux(t)

	rec := httptest.NewRecorder()
	req := asIdentity(jsonRequest(http.MethodPost, "/import/vehicles", []map[string]any{
		{"vin": "2T3H1RFV8MC123456", "year": 2021, "make": "Toyota", "model": "RAV4", "price": 31000},
		{"vin": "BADVIN", "year": 2020, "make": "Honda", "model": "Civic"},
	}), tokenIdentity(1, store.CapImportVehicles))
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["imported"] != float64(1) || body["failed"] != float64(1) {
		t.Errorf("body = %v", body)
	}
	if n, _ := vehicles.Count(req.Context(), 1); n != 1 {
		t.Errorf("stored = %d, want 1", n)
	}
}

func TestImport_WrappedPayloadUpdatesExisting(t *testing.T) {
	mux, vehicles := importTestMux(t)
	vehicles.Create(httptest.NewRequest(http.MethodGet, "/", nil).Context(), &store.Vehicle{
		DealershipID: 1, VIN: "2T3H1RFV8MC123456", Make: "Toyota", Model: "RAV4", Price: 31000,
	})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, asIdentity(jsonRequest(http.MethodPost, "/import/vehicles", map[string]any{
		"updateExisting": true,
		"vehicles": []map[string]any{
			{"vin": "2T3H1RFV8MC123456", "year": 2021, "make": "Toyota", "model": "RAV4", "price": 29995},
		},
	}), tokenIdentity(1, store.CapImportVehicles)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody(t, rec)["updated"]; got != float64(1) {
		t.Errorf("updated = %v, want 1", got)
	}
}

func TestImport_CapabilityGates(t *testing.T) {
	mux, _ := importTestMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, jsonRequest(http.MethodPost, "/import/vehicles", []map[string]any{}))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, asIdentity(jsonRequest(http.MethodPost, "/import/vehicles", []map[string]any{
		{"vin": "2T3H1RFV8MC123456", "year": 2021, "make": "Toyota", "model": "RAV4"},
	}), tokenIdentity(1, store.CapReadVehicles)))
	if rec.Code != http.StatusForbidden {
		t.Errorf("read-only token import status = %d, want 403", rec.Code)
	}
}

func TestImportDeleteByVIN(t *testing.T) {
	mux, vehicles := importTestMux(t)
	vehicles.Create(httptest.NewRequest(http.MethodGet, "/", nil).Context(), &store.Vehicle{
		DealershipID: 1, VIN: "2T3H1RFV8MC123456", Make: "Toyota", Model: "RAV4",
	})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, asIdentity(jsonRequest(http.MethodDelete, "/import/vehicles/vin/2t3h1rfv8mc123456", nil),
		tokenIdentity(1, store.CapDeleteVehicles)))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, lowercase VINs must normalize", rec.Code)
	}
}

func TestImportSync_ConfirmGate(t *testing.T) {
	mux, vehicles := importTestMux(t)
	ctx := httptest.NewRequest(http.MethodGet, "/", nil).Context()
	for _, vin := range []string{"2T3H1RFV8MC123456", "1HGCM82633A004352", "5YJ3E1EA7KF317000"} {
		vehicles.Create(ctx, &store.Vehicle{DealershipID: 1, VIN: vin, Make: "x", Model: "y"})
	}

	// Keeping one of three would delete over half the inventory.
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, asIdentity(jsonRequest(http.MethodPost, "/import/vehicles/sync", map[string]any{
		"vins": []string{"2T3H1RFV8MC123456"},
	}), tokenIdentity(1, store.CapDeleteVehicles)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unconfirmed mass delete status = %d, want 400", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, asIdentity(jsonRequest(http.MethodPost, "/import/vehicles/sync", map[string]any{
		"vins":          []string{"2T3H1RFV8MC123456"},
		"confirmDelete": true,
	}), tokenIdentity(1, store.CapDeleteVehicles)))
	if rec.Code != http.StatusOK {
		t.Fatalf("confirmed sync status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody(t, rec)["deletedCount"]; got != float64(2) {
		t.Errorf("deletedCount = %v, want 2", got)
	}
	if n, _ := vehicles.Count(ctx, 1); n != 1 {
		t.Errorf("remaining = %d, want 1", n)
	}
}

func TestImportSync_EmptyVINsRejected(t *testing.T) {
	mux, _ := importTestMux(t)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, asIdentity(jsonRequest(http.MethodPost, "/import/vehicles/sync", map[string]any{
		"vins": []string{},
	}), tokenIdentity(1, store.CapDeleteVehicles)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
