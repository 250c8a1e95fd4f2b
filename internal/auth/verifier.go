package auth

import (
	"errors"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/crm-access/internal/domain"
)

// TokenVerifier checks structure, expiry and signature of session tokens.
type TokenVerifier struct {
	codec  *TokenCodec
	parser *jwt.Parser
}

// NewTokenVerifier shares the codec's secret and clock.
func NewTokenVerifier(codec *TokenCodec) *TokenVerifier {
	return &TokenVerifier{
		codec: codec,
		// Expiry is checked against the codec clock with exp <= now semantics.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}
}

// Verify returns the embedded identity, or ErrMalformedToken, ErrExpired or
// ErrInvalidSignature. A token past its exp reports ErrExpired whatever its
// signature; the unverified claims are never returned. The HMAC comparison
// is constant-time.
func (v *TokenVerifier) Verify(tokenString string) (domain.Identity, error) {
	decoded, err := v.codec.Decode(tokenString)
	if err != nil {
		return domain.Identity{}, ErrMalformedToken
	}
	unverified := decoded.Claims
	if unverified.UserID <= 0 || unverified.ExpiresAt == nil || unverified.IssuedAt == nil {
		return domain.Identity{}, ErrMalformedToken
	}
	if !unverified.ExpiresAt.Time.After(v.codec.now()) {
		return domain.Identity{}, ErrExpired
	}

	claims := &Claims{}
	if _, err := v.parser.ParseWithClaims(tokenString, claims, v.keyFunc); err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return domain.Identity{}, ErrMalformedToken
		}
		return domain.Identity{}, ErrInvalidSignature
	}
	return domain.Identity{
		UserID:    claims.UserID,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (v *TokenVerifier) keyFunc(*jwt.Token) (interface{}, error) {
	return v.codec.secret, nil
}
