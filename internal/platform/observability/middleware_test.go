package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Anthobetto/UNMI-sub001/internal/platform/requestctx"
)

func TestClientIP(t *testing.T) {
	cases := []struct {
		name      string
		remote    string
		forwarded string
		want      string
	}{
		{name: "remote address", remote: "10.0.0.7:5123", want: "10.0.0.7"},
		{name: "first forwarded hop", remote: "10.0.0.7:5123", forwarded: "203.0.113.9, 10.0.0.1", want: "203.0.113.9"},
		{name: "garbage forwarded header", remote: "10.0.0.7:5123", forwarded: "unknown", want: "10.0.0.7"},
		{name: "ipv6 remote", remote: "[2001:db8::1]:443", want: "2001:db8::1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			if tc.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tc.forwarded)
			}
			if got := ClientIP(req); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestEventLoggerPrefersRequestLogger(t *testing.T) {
	fallbackCore, fallbackLogs := observer.New(zapcore.DebugLevel)
	requestCore, requestLogs := observer.New(zapcore.DebugLevel)

	logEvent := EventLogger(zap.New(fallbackCore))

	logEvent(context.Background(), "checkout.session.created", map[string]any{"sessionId": "cs_1"})
	ctx := requestctx.WithLogger(context.Background(), zap.New(requestCore))
	logEvent(ctx, "checkout.session.failed", map[string]any{"error": "declined", "cause": "rejected"})

	if fallbackLogs.Len() != 1 || requestLogs.Len() != 1 {
		t.Fatalf("expected one entry per logger, got %d / %d", fallbackLogs.Len(), requestLogs.Len())
	}
	info := fallbackLogs.All()[0]
	if info.Level != zapcore.InfoLevel || info.ContextMap()["sessionId"] != "cs_1" || info.ContextMap()["event"] != "checkout.session.created" {
		t.Fatalf("unexpected info entry %+v", info)
	}
	warn := requestLogs.All()[0]
	if warn.Level != zapcore.WarnLevel || warn.ContextMap()["cause"] != "rejected" {
		t.Fatalf("unexpected warn entry %+v", warn)
	}
}

func TestRequestLoggerRecordsResponseSize(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	var scoped *zap.Logger
	handler := RequestLoggerMiddleware("unmi-test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scoped = FromContext(r.Context())
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/templates", nil)
	req = req.WithContext(WithLogger(req.Context(), zap.New(core)))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if scoped == nil || scoped == requestctx.NoopLogger() {
		t.Fatal("expected request-scoped logger in handler context")
	}
	completed := logs.FilterMessage("request completed").All()
	if len(completed) != 1 {
		t.Fatalf("expected one completion entry, got %d", len(completed))
	}
	fields := completed[0].ContextMap()
	if fields["bytes"] != int64(len(`{"ok":true}`)) || fields["status"] != int64(http.StatusCreated) {
		t.Fatalf("unexpected completion fields %v", fields)
	}
	if fields["method"] != http.MethodPost {
		t.Fatalf("expected request fields on completion entry, got %v", fields)
	}
}

func TestTraceMiddlewareContinuesTraceparent(t *testing.T) {
	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"

	var got requestctx.TraceInfo
	handler := TraceMiddleware("unmi-prod")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = requestctx.Trace(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/pricing/tiers", nil)
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if got.TraceID != traceID || got.ProjectID != "unmi-prod" || !got.Sampled {
		t.Fatalf("unexpected trace info %+v", got)
	}
	if rr.Header().Get("traceparent") == "" {
		t.Fatalf("expected traceparent on response")
	}
}

func TestRecoveryMiddlewareReturnsJSON(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	handler := RecoveryMiddleware(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "internal_server_error" {
		t.Fatalf("unexpected body %v", body)
	}
	if logs.FilterMessage("panic recovered").Len() != 1 {
		t.Fatalf("expected panic to be logged")
	}
}
