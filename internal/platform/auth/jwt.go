package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	// ErrTokenExpired signals that the bearer token is past its expiry.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenInvalid signals that the bearer token failed signature or claim checks.
	ErrTokenInvalid = errors.New("auth: token invalid")
)

// Token is a verified bearer token.
type Token struct {
	Subject string
	Claims  map[string]any
}

// TokenVerifier verifies raw bearer tokens.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*Token, error)
}

// JWTVerifierConfig configures HS256 verification against a shared secret.
type JWTVerifierConfig struct {
	Secret    string
	Issuer    string
	Audience  string
	ClockSkew time.Duration
	Clock     func() time.Time
}

// JWTVerifier validates HS256 tokens issued by the platform auth service.
type JWTVerifier struct {
	secret   []byte
	issuer   string
	audience string
	skew     time.Duration
	clock    func() time.Time
	parser   *jwt.Parser
}

var _ TokenVerifier = (*JWTVerifier)(nil)

// NewJWTVerifier constructs a verifier. The secret is required.
func NewJWTVerifier(cfg JWTVerifierConfig) (*JWTVerifier, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("auth: jwt secret is required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	skew := cfg.ClockSkew
	if skew < 0 {
		skew = 0
	}
	return &JWTVerifier{
		secret:   []byte(secret),
		issuer:   strings.TrimSpace(cfg.Issuer),
		audience: strings.TrimSpace(cfg.Audience),
		skew:     skew,
		clock:    clock,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}, nil
}

// Verify checks the signature and the time, issuer and audience claims.
func (v *JWTVerifier) Verify(_ context.Context, raw string) (*Token, error) {
	claims := jwt.MapClaims{}
	_, err := v.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	now := v.clock().UTC()
	if !claims.VerifyExpiresAt(now.Add(-v.skew).Unix(), true) {
		return nil, ErrTokenExpired
	}
	if !claims.VerifyNotBefore(now.Add(v.skew).Unix(), false) {
		return nil, fmt.Errorf("%w: token not yet valid", ErrTokenInvalid)
	}
	if !claims.VerifyIssuedAt(now.Add(v.skew).Unix(), false) {
		return nil, fmt.Errorf("%w: token issued in the future", ErrTokenInvalid)
	}
	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return nil, fmt.Errorf("%w: unexpected issuer", ErrTokenInvalid)
	}
	if v.audience != "" && !claims.VerifyAudience(v.audience, true) {
		return nil, fmt.Errorf("%w: unexpected audience", ErrTokenInvalid)
	}

	subject, _ := claims["sub"].(string)
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, fmt.Errorf("%w: subject missing", ErrTokenInvalid)
	}
	return &Token{Subject: subject, Claims: claims}, nil
}
