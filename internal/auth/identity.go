package auth

import (
	"context"

	"github.com/openautogroup/lotview/internal/store"
)

type ctxKey int

const identityKey ctxKey = 0

// AuthKind records which resolution step produced the identity.
type AuthKind string

const (
	AuthAPIToken  AuthKind = "api_token"
	AuthExtension AuthKind = "extension"
	AuthJWT       AuthKind = "jwt"
	AuthSubdomain AuthKind = "subdomain"
	AuthNone      AuthKind = ""
)

// Identity is the resolved caller of a request: a user, an API token, or an
// anonymous visitor on a dealership subdomain. DealershipID is 0 when no
// tenant was resolved.
type Identity struct {
	Kind          AuthKind
	User          *store.User
	APIToken      *store.ExternalAPIToken
	DealershipID  int64
	Impersonation *store.ImpersonationSession
}

// Role returns the caller's role, or "" for non-user identities.
func (id *Identity) Role() store.Role {
	if id == nil || id.User == nil {
		return ""
	}
	return id.User.Role
}

// IsSuperAdmin reports whether the caller is a super admin.
func (id *Identity) IsSuperAdmin() bool {
	return id.Role() == store.RoleSuperAdmin
}

// HasCapability reports whether the caller's API token carries cap.
func (id *Identity) HasCapability(cap string) bool {
	return id != nil && id.APIToken != nil && id.APIToken.HasPermission(cap)
}

// WithIdentity stores the identity in the context.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext returns the request identity; never nil.
func FromContext(ctx context.Context) *Identity {
	if id, ok := ctx.Value(identityKey).(*Identity); ok && id != nil {
		return id
	}
	return &Identity{}
}
