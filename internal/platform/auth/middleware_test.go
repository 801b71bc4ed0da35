package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type stubTokenVerifier struct {
	token    *Token
	err      error
	received string
}

func (s *stubTokenVerifier) Verify(_ context.Context, raw string) (*Token, error) {
	s.received = raw
	if s.err != nil {
		return nil, s.err
	}
	return s.token, nil
}

func decodeAuthError(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON body: %v", err)
	}
	code, _ := body["error"].(string)
	return code
}

func TestRequireAuth_AllowsValidToken(t *testing.T) {
	verifier := &stubTokenVerifier{
		token: &Token{
			Subject: "uid-123",
			Claims: map[string]any{
				"role":   []any{"User", "admin", "admin"},
				"locale": "es-ES",
				"email":  "owner@example.com",
			},
		},
	}
	authn := NewAuthenticator(verifier)

	handlerCalled := false
	handler := authn.RequireAuth(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true

		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatalf("expected identity in context")
		}
		if identity.UID != "uid-123" {
			t.Fatalf("unexpected uid: %s", identity.UID)
		}
		if len(identity.Roles) != 2 || !identity.HasRole(RoleAdmin) || !identity.HasRole(RoleUser) {
			t.Fatalf("expected deduplicated roles, got %v", identity.Roles)
		}
		if identity.Locale != "es-ES" || identity.Email != "owner@example.com" {
			t.Fatalf("unexpected identity %+v", identity)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer token-value")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if !handlerCalled {
		t.Fatalf("expected handler to be called")
	}
	if verifier.received != "token-value" {
		t.Fatalf("expected verifier to receive token-value, got %s", verifier.received)
	}
}

func TestRequireAuth_Rejections(t *testing.T) {
	cases := []struct {
		name       string
		header     string
		verifier   *stubTokenVerifier
		roles      []string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "missing header",
			verifier:   &stubTokenVerifier{},
			wantStatus: http.StatusUnauthorized,
			wantCode:   "unauthenticated",
		},
		{
			name:       "basic scheme",
			header:     "Basic dXNlcjpwYXNz",
			verifier:   &stubTokenVerifier{},
			wantStatus: http.StatusUnauthorized,
			wantCode:   "unauthenticated",
		},
		{
			name:       "expired token",
			header:     "Bearer expired",
			verifier:   &stubTokenVerifier{err: ErrTokenExpired},
			wantStatus: http.StatusUnauthorized,
			wantCode:   "token_expired",
		},
		{
			name:       "invalid token",
			header:     "bearer forged",
			verifier:   &stubTokenVerifier{err: ErrTokenInvalid},
			wantStatus: http.StatusUnauthorized,
			wantCode:   "invalid_token",
		},
		{
			name:   "missing admin role",
			header: "Bearer user-token",
			verifier: &stubTokenVerifier{token: &Token{
				Subject: "uid-1",
				Claims:  map[string]any{"role": "user"},
			}},
			roles:      []string{RoleAdmin},
			wantStatus: http.StatusForbidden,
			wantCode:   "insufficient_role",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			authn := NewAuthenticator(tc.verifier)
			handler := authn.RequireAuth(tc.roles...)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				t.Fatalf("handler should not execute")
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, rr.Code)
			}
			if code := decodeAuthError(t, rr); code != tc.wantCode {
				t.Fatalf("expected %s, got %s", tc.wantCode, code)
			}
		})
	}
}

func TestRequireAuth_MissingRoleUsesFallback(t *testing.T) {
	verifier := &stubTokenVerifier{
		token: &Token{Subject: "uid-456", Claims: map[string]any{}},
	}

	authn := NewAuthenticator(verifier)

	handler := authn.RequireAuth()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatalf("expected identity in context")
		}
		if len(identity.Roles) != 1 || identity.Roles[0] != RoleUser {
			t.Fatalf("expected fallback role %q, got %v", RoleUser, identity.Roles)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer missing-role-token")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
}

type deadlineVerifier struct {
	token    *Token
	deadline time.Duration
}

func (d *deadlineVerifier) Verify(ctx context.Context, _ string) (*Token, error) {
	if dl, ok := ctx.Deadline(); ok {
		d.deadline = time.Until(dl)
	}
	return d.token, nil
}

func TestRequireAuth_Options(t *testing.T) {
	verifier := &deadlineVerifier{token: &Token{
		Subject: "uid-789",
		Claims: map[string]any{
			"https://unmi.example/roles": []any{"Admin"},
			"role":                       "user",
		},
	}}
	authn := NewAuthenticator(verifier,
		WithRoleClaim("https://unmi.example/roles"),
		WithFallbackRole("Viewer"),
		WithVerificationTimeout(200*time.Millisecond),
	)

	var roles []string
	handler := authn.RequireAuth(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, _ := IdentityFromContext(r.Context())
		roles = identity.Roles
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer custom-claim-token")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if len(roles) != 1 || roles[0] != RoleAdmin {
		t.Fatalf("expected roles from custom claim, got %v", roles)
	}
	if verifier.deadline <= 0 || verifier.deadline > 200*time.Millisecond {
		t.Fatalf("expected verification bounded by configured timeout, got %s", verifier.deadline)
	}

	verifier.token = &Token{Subject: "uid-790", Claims: map[string]any{"role": "admin"}}
	handler = authn.RequireAuth()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, _ := IdentityFromContext(r.Context())
		roles = identity.Roles
		w.WriteHeader(http.StatusNoContent)
	}))
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent || len(roles) != 1 || roles[0] != "viewer" {
		t.Fatalf("expected configured fallback role, got %d %v", rr.Code, roles)
	}
}
