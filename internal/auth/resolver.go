package auth

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/openautogroup/lotview/internal/store"
)

// Request headers recognized by the resolver.
const (
	HeaderExtensionSignature  = "X-Extension-Signature"
	HeaderExtensionTimestamp  = "X-Extension-Timestamp"
	HeaderExtensionDealership = "X-Extension-Dealership"
	HeaderDealershipOverride  = "X-Dealership-Id"
)

const maxSignedBody = 1 << 20 // 1 MiB cap on bodies buffered for HMAC checks

// Resolver turns an incoming request into an Identity. Resolution tries, in
// order: external API token, extension HMAC, session JWT, dealership
// subdomain. A super admin may additionally select a tenant with the
// X-Dealership-Id header; for every other caller that header is ignored.
type Resolver struct {
	JWTSecret  string
	BaseDomain string
	Stores     *store.Stores
	Logger     *slog.Logger

	// now is swappable in tests.
	now func() time.Time
}

func NewResolver(jwtSecret, baseDomain string, st *store.Stores, logger *slog.Logger) *Resolver {
	return &Resolver{
		JWTSecret:  jwtSecret,
		BaseDomain: strings.ToLower(baseDomain),
		Stores:     st,
		Logger:     logger,
		now:        time.Now,
	}
}

// Middleware resolves the caller and stores the Identity in the request
// context. Resolution failures for presented credentials are terminal (401);
// absent credentials leave an anonymous identity and the route's own gates
// decide whether that is acceptable.
func (rv *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := rv.resolve(w, r)
		if !ok {
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

func (rv *Resolver) resolve(w http.ResponseWriter, r *http.Request) (*Identity, bool) {
	ctx := r.Context()
	now := rv.now()

	// 1. External API token (oag_...) in the Authorization header.
	bearer := bearerToken(r)
	if LooksLikeAPIToken(bearer) {
		tok, err := ValidateAPIToken(ctx, rv.Stores.APITokens, bearer, now)
		if err != nil {
			unauthorized(w, "Invalid API token")
			return nil, false
		}
		return &Identity{Kind: AuthAPIToken, APIToken: tok, DealershipID: tok.DealershipID}, true
	}

	// 2. Browser-extension HMAC headers, keyed per dealership.
	if sig := r.Header.Get(HeaderExtensionSignature); sig != "" {
		id, ok := rv.resolveExtension(w, r, sig, now)
		return id, ok
	}

	// 3. Session JWT.
	if bearer != "" {
		id, ok := rv.resolveJWT(w, r, bearer)
		return id, ok
	}

	// 4. Dealership subdomain, for unauthenticated customer routes.
	if sub := rv.subdomain(r.Host); sub != "" {
		d, err := rv.Stores.Dealerships.GetBySubdomain(ctx, sub)
		if err == nil && d.IsActive {
			return &Identity{Kind: AuthSubdomain, DealershipID: d.ID}, true
		}
	}

	return &Identity{}, true
}

func (rv *Resolver) resolveJWT(w http.ResponseWriter, r *http.Request, raw string) (*Identity, bool) {
	claims, err := VerifyJWT(rv.JWTSecret, raw)
	if err != nil {
		unauthorized(w, "Invalid or expired session")
		return nil, false
	}
	u, err := rv.Stores.Users.Get(r.Context(), claims.UserID)
	if err != nil || !u.IsActive {
		unauthorized(w, "Invalid or expired session")
		return nil, false
	}

	id := &Identity{Kind: AuthJWT, User: u}
	if u.DealershipID != nil {
		id.DealershipID = *u.DealershipID
	}

	// Impersonation: the session's actions count against the active
	// impersonation record, and the tenant becomes the target user's.
	if claims.ImpersonatorID != 0 && u.Role == store.RoleSuperAdmin {
		rv.Logger.Warn("impersonator token carries super_admin role", "user", u.ID)
	}
	if claims.ImpersonatorID != 0 {
		if sess, err := rv.Stores.Audit.ActiveImpersonation(r.Context(), claims.ImpersonatorID); err == nil {
			id.Impersonation = sess
		}
	}

	// 5. Explicit tenant selection is a super-admin privilege.
	if hdr := r.Header.Get(HeaderDealershipOverride); hdr != "" && u.Role == store.RoleSuperAdmin {
		did, err := strconv.ParseInt(hdr, 10, 64)
		if err != nil || did <= 0 {
			badRequest(w, "Invalid x-dealership-id header")
			return nil, false
		}
		id.DealershipID = did
	}
	return id, true
}

func (rv *Resolver) resolveExtension(w http.ResponseWriter, r *http.Request, sig string, now time.Time) (*Identity, bool) {
	did, err := strconv.ParseInt(r.Header.Get(HeaderExtensionDealership), 10, 64)
	if err != nil || did <= 0 {
		unauthorized(w, "Invalid extension signature")
		return nil, false
	}
	tsMs, err := strconv.ParseInt(r.Header.Get(HeaderExtensionTimestamp), 10, 64)
	if err != nil {
		unauthorized(w, "Invalid extension signature")
		return nil, false
	}
	d, err := rv.Stores.Dealerships.Get(r.Context(), did)
	if err != nil || !d.IsActive || d.ExtensionSigningKey == "" {
		unauthorized(w, "Invalid extension signature")
		return nil, false
	}

	body, err := bufferBody(r)
	if err != nil {
		badRequest(w, "Request body too large")
		return nil, false
	}
	if !VerifyExtensionSignature(d.ExtensionSigningKey, sig, r.Method, r.URL.Path, tsMs, body, now) {
		unauthorized(w, "Invalid extension signature")
		return nil, false
	}
	return &Identity{Kind: AuthExtension, DealershipID: did}, true
}

// subdomain extracts the tenant label from hosts of the form
// <slug>.<base-domain>. Hosts that are the bare base domain, or unrelated to
// it, yield "".
func (rv *Resolver) subdomain(host string) string {
	if rv.BaseDomain == "" {
		return ""
	}
	if h, _, ok := strings.Cut(host, ":"); ok {
		host = h
	}
	host = strings.ToLower(host)
	label, ok := strings.CutSuffix(host, "."+rv.BaseDomain)
	if !ok || label == "" || strings.Contains(label, ".") {
		return ""
	}
	return label
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(tok)
	}
	return ""
}

// bufferBody reads the full body so it can be both HMAC-verified and later
// decoded by the handler.
func bufferBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBody+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxSignedBody {
		return nil, io.ErrShortBuffer
	}
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}
