package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/openautogroup/lotview/internal/store"
)

// Claims is the JWT payload for platform sessions. ImpersonatorID is set
// only on tokens minted for an impersonation session.
type Claims struct {
	UserID         int64      `json:"uid"`
	Email          string     `json:"email"`
	Role           store.Role `json:"role"`
	DealershipID   *int64     `json:"dealershipId,omitempty"`
	ImpersonatorID int64      `json:"impersonatorId,omitempty"`
	jwt.RegisteredClaims
}

// TokenTTL is the session lifetime.
const TokenTTL = 24 * time.Hour

// IssueJWT mints a signed HS256 session token for the user.
func IssueJWT(secret string, u *store.User, impersonatorID int64, now time.Time) (string, error) {
	claims := Claims{
		UserID:         u.ID,
		Email:          u.Email,
		Role:           u.Role,
		DealershipID:   u.DealershipID,
		ImpersonatorID: impersonatorID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", u.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// VerifyJWT parses and validates a session token.
func VerifyJWT(secret, raw string) (*Claims, error) {
	claims := &Claims{}
	t, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !t.Valid {
		return nil, jwt.ErrTokenUnverifiable
	}
	return claims, nil
}
