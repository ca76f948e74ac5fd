package auth

import (
	"encoding/json"
	"net/http"

	"github.com/openautogroup/lotview/internal/store"
)

// RequireRole admits sessions whose role is min or higher. API-token and
// extension callers are rejected; those surfaces have their own gates.
func RequireRole(min store.Role, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := FromContext(r.Context())
		if id.User == nil {
			unauthorized(w, "Authentication required")
			return
		}
		if !id.User.Role.AtLeast(min) {
			forbidden(w, "Insufficient permissions")
			return
		}
		next(w, r)
	}
}

// RequireCapability admits API-token callers whose token carries every
// listed capability.
func RequireCapability(caps []string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := FromContext(r.Context())
		if id.APIToken == nil {
			unauthorized(w, "API token required")
			return
		}
		for _, c := range caps {
			if !id.APIToken.HasPermission(c) {
				forbidden(w, "Token lacks required permission: "+c)
				return
			}
		}
		next(w, r)
	}
}

// RequireDealership admits only callers with a resolved tenant. Super admins
// without an X-Dealership-Id selection get a 400 telling them to pick one.
func RequireDealership(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := FromContext(r.Context())
		if id.DealershipID <= 0 {
			if id.IsSuperAdmin() {
				badRequest(w, "Dealership selection required: set the x-dealership-id header")
				return
			}
			unauthorized(w, "Authentication required")
			return
		}
		next(w, r)
	}
}

// RequireExtension admits extension-signed requests only.
func RequireExtension(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := FromContext(r.Context())
		if id.Kind != AuthExtension {
			unauthorized(w, "Extension signature required")
			return
		}
		next(w, r)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"error": msg})
}

func unauthorized(w http.ResponseWriter, msg string) { writeError(w, http.StatusUnauthorized, msg) }
func forbidden(w http.ResponseWriter, msg string)    { writeError(w, http.StatusForbidden, msg) }
func badRequest(w http.ResponseWriter, msg string)   { writeError(w, http.StatusBadRequest, msg) }
