package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Anthobetto/UNMI-sub001/internal/platform/auth"
)

// stubVerifier accepts "<uid>" or "<uid>:admin" as bearer tokens.
type stubVerifier struct{}

func (stubVerifier) Verify(_ context.Context, raw string) (*auth.Token, error) {
	claims := map[string]any{"email": raw + "@example.com"}
	uid, isAdmin := strings.CutSuffix(raw, ":admin")
	if isAdmin {
		claims["role"] = auth.RoleAdmin
	}
	if uid == "" {
		return nil, auth.ErrTokenInvalid
	}
	return &auth.Token{Subject: uid, Claims: claims}, nil
}

func newTestAuthenticator() *auth.Authenticator {
	return auth.NewAuthenticator(stubVerifier{})
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, newJSONRequest(t, method, path, token, body))
	return rr
}

func serve(h http.Handler, req *http.Request) *http.Response {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr.Result()
}

func newJSONRequest(t *testing.T, method, path, token string, body any) *http.Request {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

type errorBody struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Status  int            `json:"status"`
	Details map[string]any `json:"details"`
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rr.Body.String(), err)
	}
	return body
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
}
