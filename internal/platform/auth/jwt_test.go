package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const testSecret = "unit-test-signing-secret"

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func signTestToken(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func newTestVerifier(t *testing.T) *JWTVerifier {
	t.Helper()
	verifier, err := NewJWTVerifier(JWTVerifierConfig{
		Secret:    testSecret,
		Issuer:    "https://auth.unmi.test",
		Audience:  "unmi-api",
		ClockSkew: 30 * time.Second,
		Clock:     func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	return verifier
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":  "user-42",
		"iss":  "https://auth.unmi.test",
		"aud":  "unmi-api",
		"exp":  testNow.Add(time.Hour).Unix(),
		"iat":  testNow.Add(-time.Minute).Unix(),
		"role": "admin",
	}
}

func TestNewJWTVerifierRequiresSecret(t *testing.T) {
	if _, err := NewJWTVerifier(JWTVerifierConfig{Secret: " "}); err == nil {
		t.Fatal("expected error without secret")
	}
}

func TestJWTVerifierAcceptsValidToken(t *testing.T) {
	verifier := newTestVerifier(t)

	token, err := verifier.Verify(context.Background(), signTestToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims()))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if token.Subject != "user-42" {
		t.Fatalf("unexpected subject %q", token.Subject)
	}
	if token.Claims["role"] != "admin" {
		t.Fatalf("expected role claim, got %v", token.Claims)
	}
}

func TestJWTVerifierToleratesClockSkew(t *testing.T) {
	verifier := newTestVerifier(t)
	claims := validClaims()
	claims["exp"] = testNow.Add(-10 * time.Second).Unix()

	if _, err := verifier.Verify(context.Background(), signTestToken(t, jwt.SigningMethodHS256, []byte(testSecret), claims)); err != nil {
		t.Fatalf("token inside skew should pass, got %v", err)
	}
}

func TestJWTVerifierRejections(t *testing.T) {
	verifier := newTestVerifier(t)

	cases := []struct {
		name   string
		mutate func(jwt.MapClaims)
		method jwt.SigningMethod
		key    any
		want   error
	}{
		{name: "expired", mutate: func(c jwt.MapClaims) { c["exp"] = testNow.Add(-time.Hour).Unix() }, want: ErrTokenExpired},
		{name: "missing expiry", mutate: func(c jwt.MapClaims) { delete(c, "exp") }, want: ErrTokenExpired},
		{name: "not yet valid", mutate: func(c jwt.MapClaims) { c["nbf"] = testNow.Add(time.Hour).Unix() }, want: ErrTokenInvalid},
		{name: "wrong issuer", mutate: func(c jwt.MapClaims) { c["iss"] = "https://evil.test" }, want: ErrTokenInvalid},
		{name: "wrong audience", mutate: func(c jwt.MapClaims) { c["aud"] = "other-api" }, want: ErrTokenInvalid},
		{name: "missing subject", mutate: func(c jwt.MapClaims) { delete(c, "sub") }, want: ErrTokenInvalid},
		{name: "wrong secret", key: []byte("another-secret"), want: ErrTokenInvalid},
		{name: "wrong algorithm", method: jwt.SigningMethodHS512, want: ErrTokenInvalid},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			claims := validClaims()
			if tc.mutate != nil {
				tc.mutate(claims)
			}
			method := tc.method
			if method == nil {
				method = jwt.SigningMethodHS256
			}
			key := tc.key
			if key == nil {
				key = []byte(testSecret)
			}

			_, err := verifier.Verify(context.Background(), signTestToken(t, method, key, claims))
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	if _, err := verifier.Verify(context.Background(), "not-a-jwt"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for garbage, got %v", err)
	}
}
