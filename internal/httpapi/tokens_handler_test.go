package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/openautogroup/lotview/internal/auth"
	"github.com/openautogroup/lotview/internal/store"
)

type fakeAPITokens struct {
	store.APITokenStore
	tokens map[uuid.UUID]*store.ExternalAPIToken
}

func newFakeAPITokens() *fakeAPITokens {
	return &fakeAPITokens{tokens: map[uuid.UUID]*store.ExternalAPIToken{}}
}

func (f *fakeAPITokens) Create(ctx context.Context, t *store.ExternalAPIToken) error {
	t.ID = uuid.Must(uuid.NewV7())
	t.CreatedAt = time.Now()
	cp := *t
	f.tokens[t.ID] = &cp
	return nil
}

func (f *fakeAPITokens) CandidatesByPrefix(ctx context.Context, prefix string) ([]store.ExternalAPIToken, error) {
	var out []store.ExternalAPIToken
	for _, t := range f.tokens {
		if t.IsActive && t.TokenPrefix == prefix {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeAPITokens) ListByDealership(ctx context.Context, dealershipID int64) ([]store.ExternalAPIToken, error) {
	var out []store.ExternalAPIToken
	for _, t := range f.tokens {
		if t.DealershipID == dealershipID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeAPITokens) TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	if t, ok := f.tokens[id]; ok {
		t.LastUsedAt = &at
	}
	return nil
}

func (f *fakeAPITokens) Revoke(ctx context.Context, id uuid.UUID, dealershipID int64) error {
	t, ok := f.tokens[id]
	if !ok || t.DealershipID != dealershipID {
		return store.ErrNotFound
	}
	t.IsActive = false
	return nil
}

func tokensTestMux(t *testing.T) (*http.ServeMux, *fakeAPITokens) {
	t.Helper()
	apiTokens := newFakeAPITokens()
	h := NewTokensHandler(&store.Stores{APITokens: apiTokens}, testLogger())
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return mux, apiTokens
}

func TestTokenCreate_RawValidatesOnce(t *testing.T) {
	mux, apiTokens := tokensTestMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, asIdentity(jsonRequest(http.MethodPost, "/api-tokens", map[string]any{
		"name":        "DMS Feed",
		"permissions": []string{store.CapImportVehicles, store.CapReadVehicles},
	}), masterIdentity(1)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	body := decodeBody(t, rec)
	raw, _ := body["token"].(string)
	if !strings.HasPrefix(raw, "oag_") {
		t.Fatalf("raw token = %q, want oag_ prefix", raw)
	}
	record, _ := body["record"].(map[string]any)
	if _, leaked := record["tokenHash"]; leaked {
		t.Error("token hash must never leave the server")
	}
	if prefix, _ := record["tokenPrefix"].(string); !strings.HasPrefix(raw, prefix) {
		t.Errorf("tokenPrefix %q is not a prefix of the raw token", prefix)
	}

	// The raw value resolves through the prefix-then-bcrypt lookup the
	// resolver uses, and carries its capabilities.
	tok, err := auth.ValidateAPIToken(context.Background(), apiTokens, raw, time.Now())
	if err != nil {
		t.Fatalf("created token does not validate: %v", err)
	}
	if !tok.HasPermission(store.CapImportVehicles) || tok.HasPermission(store.CapDeleteVehicles) {
		t.Errorf("permissions = %v", tok.Permissions)
	}
}

func TestTokenCreate_UnknownPermissionRejected(t *testing.T) {
	mux, _ := tokensTestMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, asIdentity(jsonRequest(http.MethodPost, "/api-tokens", map[string]any{
		"name":        "bad",
		"permissions": []string{"rm:everything"},
	}), masterIdentity(1)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestTokenRevoke_TenantScoped(t *testing.T) {
	mux, apiTokens := tokensTestMux(t)
	tok := &store.ExternalAPIToken{DealershipID: 1, TokenName: "feed", IsActive: true}
	apiTokens.Create(context.Background(), tok)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, asIdentity(jsonRequest(http.MethodDelete, "/api-tokens/"+tok.ID.String(), nil), masterIdentity(2)))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("cross-tenant revoke status = %d, want 404", rec.Code)
	}
	if !apiTokens.tokens[tok.ID].IsActive {
		t.Fatal("cross-tenant revoke must not deactivate the token")
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, asIdentity(jsonRequest(http.MethodDelete, "/api-tokens/"+tok.ID.String(), nil), masterIdentity(1)))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("revoke status = %d", rec.Code)
	}
	if apiTokens.tokens[tok.ID].IsActive {
		t.Error("token still active after revoke")
	}
}
