package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openautogroup/lotview/internal/auth"
	"github.com/openautogroup/lotview/internal/store"
)

type captureMailer struct {
	to, url string
}

func (m *captureMailer) SendPasswordReset(to, resetURL string) error {
	m.to, m.url = to, resetURL
	return nil
}

const loginSecret = "auth-handler-test-secret"

func authTestMux(t *testing.T, users *fakeUsers, mailer *captureMailer) *http.ServeMux {
	t.Helper()
	st := &store.Stores{Users: users}
	h := NewAuthHandler(st, loginSecret, "https://app.lotview.test/", mailer, testLogger())
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return mux
}

func seedUser(t *testing.T, password string) *fakeUsers {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatal(err)
	}
	did := int64(4)
	return &fakeUsers{users: map[int64]*store.User{
		1: {ID: 1, Email: "sales@dealer.test", PasswordHash: hash, Role: store.RoleSalesperson, DealershipID: &did, IsActive: true},
	}}
}

func TestLogin_Success(t *testing.T) {
	mux := authTestMux(t, seedUser(t, "hunter2hunter2"), &captureMailer{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, jsonRequest(http.MethodPost, "/auth/login", map[string]string{
		"email":    "  Sales@Dealer.Test ",
		"password": "hunter2hunter2",
	}))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["success"] != true {
		t.Error("success flag missing")
	}
	token, _ := body["token"].(string)
	claims, err := auth.VerifyJWT(loginSecret, token)
	if err != nil {
		t.Fatalf("returned token does not verify: %v", err)
	}
	if claims.UserID != 1 || claims.Email != "sales@dealer.test" {
		t.Errorf("claims = %+v", claims)
	}
	user, _ := body["user"].(map[string]any)
	if _, leaked := user["PasswordHash"]; leaked {
		t.Error("password hash must never appear in the response")
	}
}

func TestLogin_BadCredentials(t *testing.T) {
	users := seedUser(t, "hunter2hunter2")
	inactive, _ := auth.HashPassword("rightpassword")
	users.users[2] = &store.User{ID: 2, Email: "gone@dealer.test", PasswordHash: inactive, IsActive: false}
	mux := authTestMux(t, users, &captureMailer{})

	tests := []struct {
		name, email, password string
	}{
		{"wrong password", "sales@dealer.test", "nope"},
		{"unknown email", "nobody@dealer.test", "hunter2hunter2"},
		{"disabled account", "gone@dealer.test", "rightpassword"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, jsonRequest(http.MethodPost, "/auth/login", map[string]string{
				"email": tt.email, "password": tt.password,
			}))
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
			// Every failure mode gets the same answer.
			if got := decodeBody(t, rec)["error"]; got != "Invalid email or password" {
				t.Errorf("error = %q", got)
			}
		})
	}
}

func TestMe(t *testing.T) {
	users := seedUser(t, "hunter2hunter2")
	mux := authTestMux(t, users, &captureMailer{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, jsonRequest(http.MethodGet, "/auth/me", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous /auth/me status = %d, want 401", rec.Code)
	}

	rec = httptest.NewRecorder()
	req := asIdentity(jsonRequest(http.MethodGet, "/auth/me", nil),
		&auth.Identity{Kind: auth.AuthJWT, User: users.users[1], DealershipID: 4})
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	user, _ := decodeBody(t, rec)["user"].(map[string]any)
	if user["email"] != "sales@dealer.test" {
		t.Errorf("user = %v", user)
	}
}

func TestForgotPassword_NeverRevealsAccounts(t *testing.T) {
	users := seedUser(t, "hunter2hunter2")
	users.resets = map[int64]*store.PasswordResetToken{}
	mailer := &captureMailer{}
	mux := authTestMux(t, users, mailer)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, jsonRequest(http.MethodPost, "/auth/forgot-password", map[string]string{"email": "nobody@dealer.test"}))
	if rec.Code != http.StatusOK {
		t.Fatalf("unknown email status = %d, want 200", rec.Code)
	}
	if mailer.to != "" {
		t.Error("no email may be sent for an unknown account")
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, jsonRequest(http.MethodPost, "/auth/forgot-password", map[string]string{"email": "sales@dealer.test"}))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if mailer.to != "sales@dealer.test" {
		t.Fatalf("mailer.to = %q", mailer.to)
	}
	const prefix = "https://app.lotview.test/reset-password/"
	if len(mailer.url) <= len(prefix) || mailer.url[:len(prefix)] != prefix {
		t.Errorf("reset URL = %q", mailer.url)
	}
}

func TestImpersonate_SuperAdminOnly(t *testing.T) {
	users := seedUser(t, "hunter2hunter2")
	mux := authTestMux(t, users, &captureMailer{})

	rec := httptest.NewRecorder()
	req := asIdentity(jsonRequest(http.MethodPost, "/auth/impersonate", map[string]int64{"userId": 1}),
		&auth.Identity{Kind: auth.AuthJWT, User: users.users[1]})
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("salesperson impersonate status = %d, want 403", rec.Code)
	}
}
