package handlers

import (
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/Anthobetto/UNMI-sub001/internal/domain"
	"github.com/Anthobetto/UNMI-sub001/internal/services"
)

func newAdminRouter(svc services.CheckoutService) http.Handler {
	r := chi.NewRouter()
	r.Route("/admin", NewAdminPricingHandlers(newTestAuthenticator(), svc).Routes)
	return r
}

func TestAdminReconcileRequiresAdmin(t *testing.T) {
	router := newAdminRouter(&stubCheckoutService{})

	if rr := doJSON(t, router, http.MethodGet, "/admin/pricing/reconcile/basic", "", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if rr := doJSON(t, router, http.MethodGet, "/admin/pricing/reconcile/basic", "user-1", nil); rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestAdminReconcileReportsDrift(t *testing.T) {
	svc := &stubCheckoutService{reconcile: domain.PriceReconciliation{
		TierID:        "professional",
		PriceRef:      "price_pro",
		CatalogAmount: 4900,
		ProviderPrice: 3900,
		Currency:      "eur",
		Matches:       false,
	}}
	rr := doJSON(t, newAdminRouter(svc), http.MethodGet, "/admin/pricing/reconcile/professional", "ops:admin", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var got reconcileResponse
	decodeJSON(t, rr, &got)
	if got.TierID != "professional" || got.CatalogAmount != 4900 || got.ProviderPrice != 3900 || got.Matches {
		t.Fatalf("unexpected response %+v", got)
	}
	if svc.reconcileID != "professional" {
		t.Fatalf("expected tier id to reach the service, got %q", svc.reconcileID)
	}
}

func TestAdminReconcileUnknownTier(t *testing.T) {
	svc := &stubCheckoutService{buildErr: &services.TierError{TierID: "gold", Err: services.ErrTierNotFound}}
	rr := doJSON(t, newAdminRouter(svc), http.MethodGet, "/admin/pricing/reconcile/gold", "ops:admin", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if body := decodeError(t, rr); body.Error != "tier_not_found" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestAdminReconcileCustomRole(t *testing.T) {
	r := chi.NewRouter()
	r.Route("/admin", NewAdminPricingHandlers(newTestAuthenticator(), &stubCheckoutService{}, WithAdminRole("billing")).Routes)

	if rr := doJSON(t, r, http.MethodGet, "/admin/pricing/reconcile/basic", "ops:admin", nil); rr.Code != http.StatusForbidden {
		t.Fatalf("expected admin role to be insufficient, got %d", rr.Code)
	}
}
