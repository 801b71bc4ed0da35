package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Anthobetto/UNMI-sub001/internal/platform/requestctx"
)

func TestWriteErrorEnvelope(t *testing.T) {
	ctx := requestctx.WithTrace(context.Background(), requestctx.TraceInfo{TraceID: "4bf92f3577b34da6a3ce929d0e0e4736"})
	rr := httptest.NewRecorder()

	WriteError(ctx, rr, NewError("price_not_configured", "no price\nfor plan", http.StatusUnprocessableEntity).
		WithDetails(map[string]any{"planTypes": []string{"basic_location"}}))

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "price_not_configured" || body["status"] != float64(422) {
		t.Fatalf("unexpected envelope %v", body)
	}
	if strings.Contains(body["message"].(string), "\n") {
		t.Fatalf("message must be single line, got %q", body["message"])
	}
	if body["trace_id"] != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Fatalf("expected trace id from context, got %v", body["trace_id"])
	}
	details, ok := body["details"].(map[string]any)
	if !ok || details["planTypes"] == nil {
		t.Fatalf("expected nested details, got %v", body["details"])
	}
}

func TestWriteErrorOmitsEmptyDetails(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(context.Background(), rr, NewError("internal", "boom", 0))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 default, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if _, ok := body["details"]; ok {
		t.Fatalf("details should be omitted, got %v", body)
	}
}

func TestWriteJSONDisablesCaching(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteJSON(rr, http.StatusCreated, map[string]string{"id": "tmpl_01"})

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
	if rr.Header().Get("Cache-Control") != "no-store" || rr.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("unexpected headers %v", rr.Header())
	}
	if strings.TrimSpace(rr.Body.String()) != `{"id":"tmpl_01"}` {
		t.Fatalf("unexpected body %q", rr.Body.String())
	}
}
