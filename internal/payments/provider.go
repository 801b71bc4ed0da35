package payments

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrProviderRejected indicates the provider answered the call with an error.
	ErrProviderRejected = errors.New("payments: provider rejected request")
	// ErrProviderUnavailable indicates the provider could not be reached or did not answer.
	ErrProviderUnavailable = errors.New("payments: provider unavailable")
)

// LineItem is a recurring price reference billed at the given quantity.
type LineItem struct {
	PriceRef string
	Quantity int64
}

// CheckoutSessionRequest contains everything needed to open a hosted subscription checkout.
type CheckoutSessionRequest struct {
	LineItems         []LineItem
	CustomerEmail     string
	ClientReferenceID string
	SuccessURL        string
	CancelURL         string
	Metadata          map[string]string
	IdempotencyKey    string
}

// CheckoutSession is the provider-side session produced for a request.
type CheckoutSession struct {
	ID        string
	URL       string
	ExpiresAt time.Time
}

// Price is the provider's stored definition of a price reference.
type Price struct {
	ID         string
	UnitAmount int64
	Currency   string
	Interval   string
	Active     bool
}

// Provider is the payment collaborator used by checkout. Implementations must not apply their
// own timeouts or retries; the caller's context governs both.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error)
	RetrievePrice(ctx context.Context, priceRef string) (Price, error)
}
