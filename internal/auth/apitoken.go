package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/openautogroup/lotview/internal/store"
)

// APITokenScheme is the leading identifier of every external API token.
const APITokenScheme = "oag"

// GenerateAPIToken mints a raw token of the form oag_<short>_<random> plus
// its bcrypt hash and indexed prefix. The raw value is returned to the
// caller exactly once; storage holds only hash and prefix.
func GenerateAPIToken(shortName string) (raw, hash, prefix string, err error) {
	short := sanitizeShortName(shortName)

	buf := make([]byte, 24)
	if _, err = rand.Read(buf); err != nil {
		return "", "", "", err
	}
	raw = fmt.Sprintf("%s_%s_%s", APITokenScheme, short, base64.RawURLEncoding.EncodeToString(buf))

	h, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", "", "", err
	}
	return raw, string(h), TokenPrefix(raw), nil
}

// TokenPrefix returns the indexed lookup prefix: everything up to and
// including the second underscore.
func TokenPrefix(raw string) string {
	first := strings.Index(raw, "_")
	if first < 0 {
		return raw
	}
	second := strings.Index(raw[first+1:], "_")
	if second < 0 {
		return raw
	}
	return raw[:first+1+second+1]
}

// LooksLikeAPIToken reports whether a bearer value has the API-token shape.
func LooksLikeAPIToken(raw string) bool {
	return strings.HasPrefix(raw, APITokenScheme+"_")
}

// ValidateAPIToken resolves a raw token: prefix lookup narrows candidates,
// then a bcrypt compare against each. Expired or inactive tokens fail.
func ValidateAPIToken(ctx context.Context, tokens store.APITokenStore, raw string, now time.Time) (*store.ExternalAPIToken, error) {
	candidates, err := tokens.CandidatesByPrefix(ctx, TokenPrefix(raw))
	if err != nil {
		return nil, err
	}
	for i := range candidates {
		t := &candidates[i]
		if bcrypt.CompareHashAndPassword([]byte(t.TokenHash), []byte(raw)) != nil {
			continue
		}
		if t.ExpiresAt != nil && !t.ExpiresAt.After(now) {
			return nil, store.ErrNotFound
		}
		// Best-effort; validation does not depend on the timestamp write.
		tokens.TouchLastUsed(ctx, t.ID, now)
		return t, nil
	}
	return nil, store.ErrNotFound
}

func sanitizeShortName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
		if b.Len() == 8 {
			break
		}
	}
	if b.Len() == 0 {
		return "token"
	}
	return b.String()
}
