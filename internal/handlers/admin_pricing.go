package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/Anthobetto/UNMI-sub001/internal/domain"
	"github.com/Anthobetto/UNMI-sub001/internal/platform/auth"
	"github.com/Anthobetto/UNMI-sub001/internal/services"
)

// AdminPricingHandlers exposes operator tooling for catalog and provider price drift.
type AdminPricingHandlers struct {
	authn    *auth.Authenticator
	checkout services.CheckoutService
	role     string
}

// AdminOption customises AdminPricingHandlers.
type AdminOption func(*AdminPricingHandlers)

// WithAdminRole overrides the role required for admin endpoints.
func WithAdminRole(role string) AdminOption {
	return func(h *AdminPricingHandlers) {
		if role = strings.TrimSpace(role); role != "" {
			h.role = role
		}
	}
}

// NewAdminPricingHandlers constructs admin pricing handlers restricted to the admin role.
func NewAdminPricingHandlers(authn *auth.Authenticator, checkout services.CheckoutService, opts ...AdminOption) *AdminPricingHandlers {
	h := &AdminPricingHandlers{authn: authn, checkout: checkout, role: auth.RoleAdmin}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers admin pricing endpoints under the provided router.
func (h *AdminPricingHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = group.With(h.authn.RequireAuth(h.role))
	}
	group.Get("/pricing/reconcile/{tierId}", h.reconcile)
}

type reconcileResponse struct {
	TierID        string `json:"tierId"`
	PriceRef      string `json:"priceRef"`
	CatalogAmount int64  `json:"catalogAmount"`
	ProviderPrice int64  `json:"providerAmount"`
	Currency      string `json:"currency"`
	Matches       bool   `json:"matches"`
}

func (h *AdminPricingHandlers) reconcile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tierID := domain.TierID(strings.TrimSpace(chi.URLParam(r, "tierId")))
	result, err := h.checkout.ReconcilePlanPrice(ctx, tierID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, reconcileResponse{
		TierID:        string(result.TierID),
		PriceRef:      result.PriceRef,
		CatalogAmount: result.CatalogAmount,
		ProviderPrice: result.ProviderPrice,
		Currency:      result.Currency,
		Matches:       result.Matches,
	})
}
