package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	domain "github.com/Anthobetto/UNMI-sub001/internal/domain"
	"github.com/Anthobetto/UNMI-sub001/internal/platform/auth"
	"github.com/Anthobetto/UNMI-sub001/internal/platform/httpx"
	"github.com/Anthobetto/UNMI-sub001/internal/services"
)

const (
	maxCheckoutRequestBody   = 8 * 1024
	defaultIdempotencyHeader = "Idempotency-Key"
	maxProviderKeyLength     = 255
)

// CheckoutHandlers exposes checkout related endpoints for authenticated users.
type CheckoutHandlers struct {
	authn             *auth.Authenticator
	checkout          services.CheckoutService
	idempotency       func(http.Handler) http.Handler
	idempotencyHeader string
}

// CheckoutOption customises CheckoutHandlers.
type CheckoutOption func(*CheckoutHandlers)

// WithCheckoutIdempotency wraps session creation with the idempotency middleware reading header.
func WithCheckoutIdempotency(mw func(http.Handler) http.Handler, header string) CheckoutOption {
	return func(h *CheckoutHandlers) {
		h.idempotency = mw
		if header = strings.TrimSpace(header); header != "" {
			h.idempotencyHeader = header
		}
	}
}

// NewCheckoutHandlers constructs checkout handlers guarded by bearer authentication.
func NewCheckoutHandlers(authn *auth.Authenticator, checkout services.CheckoutService, opts ...CheckoutOption) *CheckoutHandlers {
	h := &CheckoutHandlers{
		authn:             authn,
		checkout:          checkout,
		idempotencyHeader: defaultIdempotencyHeader,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers checkout endpoints under the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = group.With(h.authn.RequireAuth())
	}
	if h.idempotency != nil {
		group = group.With(h.idempotency)
	}
	group.Post("/session", h.createSession)
}

type checkoutSelectionRequest struct {
	PlanType string `json:"planType" validate:"required"`
	Quantity int64  `json:"quantity" validate:"gte=0"`
}

type checkoutSessionRequest struct {
	TierID        string                     `json:"tierId" validate:"required_without=Selections"`
	DailyMessages int                        `json:"dailyMessages" validate:"gte=0"`
	Locations     int                        `json:"locations" validate:"gte=0"`
	Departments   int                        `json:"departments" validate:"gte=0"`
	Selections    []checkoutSelectionRequest `json:"selections" validate:"omitempty,max=10,dive"`
	CustomerEmail string                     `json:"customerEmail" validate:"omitempty,email"`
	CustomerID    string                     `json:"customerId" validate:"omitempty,max=255"`
	SuccessURL    string                     `json:"successUrl" validate:"omitempty,url"`
	CancelURL     string                     `json:"cancelUrl" validate:"omitempty,url"`
	Metadata      map[string]string          `json:"metadata" validate:"omitempty,max=20"`
}

type checkoutSessionResponse struct {
	URL string `json:"url"`
	ID  string `json:"id"`
}

func (h *CheckoutHandlers) createSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	var req checkoutSessionRequest
	if !decodeRequest(w, r, maxCheckoutRequestBody, &req) {
		return
	}

	email := strings.TrimSpace(req.CustomerEmail)
	if email == "" {
		email = identity.Email
	}

	var (
		checkoutReq domain.CheckoutRequest
		err         error
	)
	if len(req.Selections) > 0 {
		selections := make([]domain.PlanSelection, 0, len(req.Selections))
		for _, sel := range req.Selections {
			selections = append(selections, domain.PlanSelection{PlanType: sel.PlanType, Quantity: sel.Quantity})
		}
		checkoutReq, err = h.checkout.BuildMultiSelectionRequest(services.MultiSelectionParams{
			UserID:        identity.UID,
			CustomerEmail: email,
			CustomerID:    req.CustomerID,
			Selections:    selections,
			SuccessURL:    req.SuccessURL,
			CancelURL:     req.CancelURL,
			Metadata:      req.Metadata,
		})
	} else {
		checkoutReq, err = h.checkout.BuildCheckoutRequest(services.CheckoutParams{
			UserID:        identity.UID,
			CustomerEmail: email,
			CustomerID:    req.CustomerID,
			TierID:        domain.TierID(strings.TrimSpace(req.TierID)),
			DailyMessages: req.DailyMessages,
			Locations:     req.Locations,
			Departments:   req.Departments,
			SuccessURL:    req.SuccessURL,
			CancelURL:     req.CancelURL,
			Metadata:      req.Metadata,
		})
	}
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	session, err := h.checkout.CreateCheckoutSession(ctx, checkoutReq, h.providerIdempotencyKey(r, identity.UID))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, checkoutSessionResponse{URL: session.URL, ID: session.ID})
}

// providerIdempotencyKey scopes the client key to the caller so two users never share a provider
// key. Requests without a client key get a fresh one.
func (h *CheckoutHandlers) providerIdempotencyKey(r *http.Request, uid string) string {
	key := strings.TrimSpace(r.Header.Get(h.idempotencyHeader))
	if key == "" {
		key = ulid.Make().String()
	}
	full := "checkout:" + uid + ":" + key
	if len(full) > maxProviderKeyLength {
		sum := sha256.Sum256([]byte(full))
		return "checkout:" + hex.EncodeToString(sum[:])
	}
	return full
}
