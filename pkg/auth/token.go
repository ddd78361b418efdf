package auth

import (
	"fmt"
	"time"

	"github.com/brightline-dev/storefront-backend/pkg/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessClaims carries the identity fields the API trusts from a bearer
// token. Session issuance lives in the identity service; this package
// only verifies.
type AccessClaims struct {
	UserID uuid.UUID `json:"uid"`
	jwt.RegisteredClaims
}

// ParseAccessToken verifies signature, issuer and expiry, returning the claims.
func ParseAccessToken(cfg config.JWTConfig, raw string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(cfg.Secret), nil
	}, jwt.WithIssuer(cfg.Issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("parse access token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid access token")
	}
	if claims.UserID == uuid.Nil {
		return nil, fmt.Errorf("access token missing user id")
	}
	return claims, nil
}

// MintAccessToken signs a short-lived token; used by tests and dev tooling.
func MintAccessToken(cfg config.JWTConfig, userID uuid.UUID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}
