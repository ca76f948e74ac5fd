package httpapi

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openautogroup/lotview/internal/adapters"
	"github.com/openautogroup/lotview/internal/auth"
	"github.com/openautogroup/lotview/internal/store"
)

const resetTokenTTL = time.Hour

// AuthHandler serves login, session introspection, password reset and
// impersonation.
type AuthHandler struct {
	stores    *store.Stores
	jwtSecret string
	baseURL   string
	mailer    adapters.Mailer
	logger    *slog.Logger
	loginRate *keyedLimiter
}

func NewAuthHandler(st *store.Stores, jwtSecret, baseURL string, mailer adapters.Mailer, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		stores:    st,
		jwtSecret: jwtSecret,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		mailer:    mailer,
		logger:    logger,
		loginRate: newKeyedLimiter(10, 5),
	}
}

func (h *AuthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/login", limitByIP(h.loginRate, h.handleLogin))
	mux.HandleFunc("GET /auth/me", h.handleMe)
	mux.HandleFunc("POST /auth/logout", h.handleLogout)
	mux.HandleFunc("POST /auth/forgot-password", limitByIP(h.loginRate, h.handleForgotPassword))
	mux.HandleFunc("GET /auth/reset-password/{token}", h.handleCheckResetToken)
	mux.HandleFunc("POST /auth/reset-password", h.handleResetPassword)
	mux.HandleFunc("POST /auth/impersonate", auth.RequireRole(store.RoleSuperAdmin, h.handleImpersonate))
	mux.HandleFunc("POST /auth/impersonate/stop", h.handleStopImpersonate)
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	u, err := h.stores.Users.GetByEmail(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil || !u.IsActive || !auth.CheckPassword(u.PasswordHash, req.Password) {
		// Same answer for unknown email, wrong password and disabled account.
		writeErr(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	token, err := auth.IssueJWT(h.jwtSecret, u, 0, time.Now())
	if err != nil {
		h.logger.Error("jwt issue failed", "user", u.ID, "error", err)
		writeErr(w, http.StatusInternalServerError, "Internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "user": u, "success": true})
}

func (h *AuthHandler) handleMe(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	if id.User == nil {
		writeErr(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	resp := map[string]any{"user": id.User}
	if id.Impersonation != nil {
		resp["impersonating"] = true
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleLogout exists for client symmetry; JWTs are stateless so there is
// nothing server-side to revoke.
func (h *AuthHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *AuthHandler) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// The response never reveals whether the account exists.
	resp := map[string]any{"success": true, "message": "If that account exists, a reset email was sent."}

	u, err := h.stores.Users.GetByEmail(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil || !u.IsActive {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	raw, hash, err := auth.NewResetToken()
	if err != nil {
		h.logger.Error("reset token mint failed", "error", err)
		writeJSON(w, http.StatusOK, resp)
		return
	}
	if err := h.stores.Users.CreateResetToken(r.Context(), &store.PasswordResetToken{
		UserID:    u.ID,
		TokenHash: hash,
		ExpiresAt: time.Now().Add(resetTokenTTL),
	}); err != nil {
		h.logger.Error("reset token store failed", "user", u.ID, "error", err)
		writeJSON(w, http.StatusOK, resp)
		return
	}

	resetURL := fmt.Sprintf("%s/reset-password/%s", h.baseURL, raw)
	if err := h.mailer.SendPasswordReset(u.Email, resetURL); err != nil {
		h.logger.Error("reset email failed", "user", u.ID, "error", err)
	}
	writeJSON(w, http.StatusOK, resp)
}

// findResetToken bcrypt-compares the raw token against active candidates.
func (h *AuthHandler) findResetToken(r *http.Request, raw string) (*store.PasswordResetToken, error) {
	candidates, err := h.stores.Users.ActiveResetTokens(r.Context(), time.Now())
	if err != nil {
		return nil, err
	}
	for i := range candidates {
		if auth.CheckResetToken(candidates[i].TokenHash, raw) {
			return &candidates[i], nil
		}
	}
	return nil, store.ErrNotFound
}

func (h *AuthHandler) handleCheckResetToken(w http.ResponseWriter, r *http.Request) {
	if _, err := h.findResetToken(r, r.PathValue("token")); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"valid": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true})
}

func (h *AuthHandler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Password) < 8 {
		writeErr(w, http.StatusBadRequest, "Password must be at least 8 characters")
		return
	}

	tok, err := h.findResetToken(r, req.Token)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "Invalid or expired reset token")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "Internal error")
		return
	}
	if err := h.stores.Users.SetPassword(r.Context(), tok.UserID, hash); err != nil {
		writeStoreErr(w, err)
		return
	}
	if err := h.stores.Users.MarkResetTokenUsed(r.Context(), tok.ID); err != nil {
		h.logger.Error("mark reset token used failed", "token", tok.ID, "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *AuthHandler) handleImpersonate(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	var req struct {
		UserID int64 `json:"userId"`
	}
	if err := decodeJSON(r, &req); err != nil || req.UserID <= 0 {
		writeErr(w, http.StatusBadRequest, "userId is required")
		return
	}

	target, err := h.stores.Users.Get(r.Context(), req.UserID)
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	if target.Role == store.RoleSuperAdmin {
		writeErr(w, http.StatusForbidden, "Cannot impersonate a super admin")
		return
	}

	sess, err := h.stores.Audit.StartImpersonation(r.Context(), id.User.ID, target.ID)
	if err != nil {
		writeStoreErr(w, err)
		return
	}

	token, err := auth.IssueJWT(h.jwtSecret, target, id.User.ID, time.Now())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "Internal error")
		return
	}
	h.logger.Info("impersonation started", "superAdmin", id.User.ID, "target", target.ID)
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "user": target, "sessionId": sess.ID})
}

func (h *AuthHandler) handleStopImpersonate(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	if id.Impersonation == nil {
		writeErr(w, http.StatusBadRequest, "No active impersonation")
		return
	}
	if err := h.stores.Audit.EndImpersonation(r.Context(), id.Impersonation.ID); err != nil {
		writeStoreErr(w, err)
		return
	}

	admin, err := h.stores.Users.Get(r.Context(), id.Impersonation.SuperAdminID)
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	token, err := auth.IssueJWT(h.jwtSecret, admin, 0, time.Now())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "Internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "user": admin})
}
