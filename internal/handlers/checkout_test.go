package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/Anthobetto/UNMI-sub001/internal/domain"
	"github.com/Anthobetto/UNMI-sub001/internal/platform/idempotency"
	"github.com/Anthobetto/UNMI-sub001/internal/services"
)

type stubCheckoutService struct {
	single      services.CheckoutParams
	multi       services.MultiSelectionParams
	buildErr    error
	createErr   error
	idemKey     string
	createCalls int
	reconcile   domain.PriceReconciliation
	reconcileID domain.TierID
}

func (s *stubCheckoutService) BuildCheckoutRequest(params services.CheckoutParams) (domain.CheckoutRequest, error) {
	s.single = params
	if s.buildErr != nil {
		return domain.CheckoutRequest{}, s.buildErr
	}
	return domain.CheckoutRequest{PlanType: string(params.TierID), LineItems: []domain.CheckoutLineItem{{PriceRef: "price_1", Quantity: 1}}}, nil
}

func (s *stubCheckoutService) BuildMultiSelectionRequest(params services.MultiSelectionParams) (domain.CheckoutRequest, error) {
	s.multi = params
	if s.buildErr != nil {
		return domain.CheckoutRequest{}, s.buildErr
	}
	return domain.CheckoutRequest{PlanType: "multi", LineItems: []domain.CheckoutLineItem{{PriceRef: "price_2", Quantity: 2}}}, nil
}

func (s *stubCheckoutService) CreateCheckoutSession(_ context.Context, _ domain.CheckoutRequest, key string) (domain.CheckoutSession, error) {
	s.createCalls++
	s.idemKey = key
	if s.createErr != nil {
		return domain.CheckoutSession{}, s.createErr
	}
	return domain.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.example.com/c/cs_test_1"}, nil
}

func (s *stubCheckoutService) ReconcilePlanPrice(_ context.Context, tierID domain.TierID) (domain.PriceReconciliation, error) {
	s.reconcileID = tierID
	if s.buildErr != nil {
		return domain.PriceReconciliation{}, s.buildErr
	}
	return s.reconcile, nil
}

func newCheckoutRouter(svc services.CheckoutService, opts ...CheckoutOption) http.Handler {
	r := chi.NewRouter()
	r.Route("/checkout", NewCheckoutHandlers(newTestAuthenticator(), svc, opts...).Routes)
	return r
}

func TestCheckoutSessionRequiresAuthentication(t *testing.T) {
	rr := doJSON(t, newCheckoutRouter(&stubCheckoutService{}), http.MethodPost, "/checkout/session", "", map[string]any{"tierId": "basic"})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestCheckoutSessionSinglePlan(t *testing.T) {
	svc := &stubCheckoutService{}
	router := newCheckoutRouter(svc)

	req := map[string]any{"tierId": "professional", "dailyMessages": 25, "locations": 4, "departments": 5, "metadata": map[string]string{"campaign": "spring"}}
	rr := doJSON(t, router, http.MethodPost, "/checkout/session", "user-1", req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var got checkoutSessionResponse
	decodeJSON(t, rr, &got)
	if got.ID != "cs_test_1" || got.URL != "https://checkout.example.com/c/cs_test_1" {
		t.Fatalf("unexpected response %+v", got)
	}
	if svc.single.UserID != "user-1" || svc.single.TierID != "professional" || svc.single.Locations != 4 {
		t.Fatalf("unexpected params %+v", svc.single)
	}
	if svc.single.CustomerEmail != "user-1@example.com" {
		t.Fatalf("expected identity email fallback, got %q", svc.single.CustomerEmail)
	}
	if svc.single.Metadata["campaign"] != "spring" {
		t.Fatalf("expected caller metadata to be forwarded, got %v", svc.single.Metadata)
	}
	if len(svc.idemKey) <= len("checkout:user-1:") || svc.idemKey[:len("checkout:user-1:")] != "checkout:user-1:" {
		t.Fatalf("expected generated provider key scoped to user, got %q", svc.idemKey)
	}
}

func TestCheckoutSessionMultiSelection(t *testing.T) {
	svc := &stubCheckoutService{}
	rr := doJSON(t, newCheckoutRouter(svc), http.MethodPost, "/checkout/session", "user-1", map[string]any{
		"selections": []map[string]any{{"planType": "basic", "quantity": 2}, {"planType": "chatbot_pro"}},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(svc.multi.Selections) != 2 || svc.multi.Selections[1].PlanType != "chatbot_pro" {
		t.Fatalf("unexpected selections %+v", svc.multi.Selections)
	}
}

func TestCheckoutSessionValidation(t *testing.T) {
	svc := &stubCheckoutService{}
	router := newCheckoutRouter(svc)

	cases := []struct {
		name  string
		body  map[string]any
		field string
	}{
		{name: "no plan", body: map[string]any{}, field: "tierId"},
		{name: "bad email", body: map[string]any{"tierId": "basic", "customerEmail": "nope"}, field: "customerEmail"},
		{name: "selection without plan", body: map[string]any{"selections": []map[string]any{{"quantity": 1}}}, field: "selections[0].planType"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := doJSON(t, router, http.MethodPost, "/checkout/session", "user-1", tc.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rr.Code)
			}
			body := decodeError(t, rr)
			fields, _ := body.Details["fields"].(map[string]any)
			if _, ok := fields[tc.field]; !ok {
				t.Fatalf("expected %s in field details, got %+v", tc.field, body.Details)
			}
		})
	}
	if svc.createCalls != 0 {
		t.Fatalf("invalid requests must not reach the provider")
	}
}

func TestCheckoutSessionErrorMapping(t *testing.T) {
	cases := []struct {
		name      string
		svc       *stubCheckoutService
		status    int
		code      string
		detailKey string
	}{
		{
			name:      "missing price",
			svc:       &stubCheckoutService{buildErr: &services.PriceNotConfiguredError{PlanTypes: []string{"basic_location"}}},
			status:    http.StatusUnprocessableEntity,
			code:      "price_not_configured",
			detailKey: "planTypes",
		},
		{
			name:      "provider failure",
			svc:       &stubCheckoutService{createErr: &services.CheckoutSessionError{Cause: services.CheckoutFailureNetwork}},
			status:    http.StatusBadGateway,
			code:      "checkout_session_failed",
			detailKey: "cause",
		},
		{
			name:      "unknown tier",
			svc:       &stubCheckoutService{buildErr: &services.TierError{TierID: "gold", Err: services.ErrInvalidTier}},
			status:    http.StatusBadRequest,
			code:      "invalid_tier",
			detailKey: "tierId",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := doJSON(t, newCheckoutRouter(tc.svc), http.MethodPost, "/checkout/session", "user-1", map[string]any{"tierId": "basic"})
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			body := decodeError(t, rr)
			if body.Error != tc.code {
				t.Fatalf("expected %s, got %+v", tc.code, body)
			}
			if _, ok := body.Details[tc.detailKey]; !ok {
				t.Fatalf("expected %s detail, got %+v", tc.detailKey, body.Details)
			}
		})
	}
}

func TestCheckoutSessionIdempotentReplay(t *testing.T) {
	svc := &stubCheckoutService{}
	router := newCheckoutRouter(svc, WithCheckoutIdempotency(idempotency.Middleware(idempotency.NewMemoryStore()), "Idempotency-Key"))

	send := func() *http.Response {
		req := newJSONRequest(t, http.MethodPost, "/checkout/session", "user-1", map[string]any{"tierId": "basic"})
		req.Header.Set("Idempotency-Key", "order-42")
		return serve(router, req)
	}

	first := send()
	second := send()
	if first.StatusCode != http.StatusOK || second.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 twice, got %d and %d", first.StatusCode, second.StatusCode)
	}
	if second.Header.Get("X-Idempotent-Replay") != "true" {
		t.Fatal("expected second response to be a replay")
	}
	if svc.createCalls != 1 {
		t.Fatalf("expected one provider call, got %d", svc.createCalls)
	}
	if svc.idemKey != "checkout:user-1:order-42" {
		t.Fatalf("expected scoped provider key, got %q", svc.idemKey)
	}

	req := newJSONRequest(t, http.MethodPost, "/checkout/session", "user-1", map[string]any{"tierId": "basic"})
	if resp := serve(router, req); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without idempotency key, got %d", resp.StatusCode)
	}
}
