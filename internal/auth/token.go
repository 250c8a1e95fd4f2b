package auth

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/crm-access/internal/domain"
)

const (
	// MinSecretLength is the shortest HMAC secret a codec accepts.
	MinSecretLength = 32
	// DefaultTokenTTL is the session lifetime when none is configured.
	DefaultTokenTTL = 7 * 24 * time.Hour
)

// Claims describes the JWT payload. Only the user id travels in the token;
// roles and permissions are always resolved from the store.
type Claims struct {
	UserID int64 `json:"userId"`
	jwt.RegisteredClaims
}

// TokenCodec encodes and decodes signed session tokens. It holds no mutable
// state and is safe for concurrent use.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// CodecOption customises a TokenCodec.
type CodecOption func(*TokenCodec)

// WithClock overrides the time source used for iat/exp and expiry checks.
func WithClock(now func() time.Time) CodecOption {
	return func(c *TokenCodec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewTokenCodec builds a codec. Secrets shorter than MinSecretLength are rejected.
func NewTokenCodec(secret string, ttl time.Duration, opts ...CodecOption) (*TokenCodec, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("signing secret must be at least %d bytes", MinSecretLength)
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	codec := &TokenCodec{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}
	for _, opt := range opts {
		opt(codec)
	}
	return codec, nil
}

// TTL returns the lifetime of issued tokens.
func (c *TokenCodec) TTL() time.Duration {
	return c.ttl
}

// Issue builds an identity for userID valid from now for the codec TTL and encodes it.
func (c *TokenCodec) Issue(userID int64) (string, domain.Identity, error) {
	now := c.now().UTC().Truncate(time.Second)
	identity := domain.Identity{
		UserID:    userID,
		IssuedAt:  now,
		ExpiresAt: now.Add(c.ttl),
	}
	token, err := c.Encode(identity)
	if err != nil {
		return "", domain.Identity{}, err
	}
	return token, identity, nil
}

// Encode signs the identity as header.payload.signature. The output depends
// only on the identity and the secret.
func (c *TokenCodec) Encode(identity domain.Identity) (string, error) {
	if identity.UserID <= 0 {
		return "", errors.New("user id is required")
	}
	claims := &Claims{
		UserID: identity.UserID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(identity.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(identity.ExpiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// DecodedToken is a structurally valid token whose signature is not yet checked.
type DecodedToken struct {
	Header       map[string]any
	Claims       *Claims
	SigningInput string
	Signature    []byte
}

// Decode splits and decodes the three token segments without verifying them.
func (c *TokenCodec) Decode(tokenString string) (*DecodedToken, error) {
	claims := &Claims{}
	token, parts, err := c.parser.ParseUnverified(tokenString, claims)
	if err != nil {
		return nil, ErrMalformedToken
	}
	signature, err := c.parser.DecodeSegment(parts[2])
	if err != nil {
		return nil, ErrMalformedToken
	}
	return &DecodedToken{
		Header:       token.Header,
		Claims:       claims,
		SigningInput: parts[0] + "." + parts[1],
		Signature:    signature,
	}, nil
}
