package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const metricNamespace = "github.com/Anthobetto/UNMI-sub001/internal/payments"

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type stripePriceAPI interface {
	Get(id string, params *stripe.PriceParams) (*stripe.Price, error)
}

type stripeClients struct {
	sessions stripeSessionAPI
	prices   stripePriceAPI
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey    string
	AccountID string
	Backends  *stripe.Backends
	Logger    StripeLogger
	Clock     func() time.Time
	Meter     metric.Meter
	Clients   *stripeClients
}

// StripeProvider implements Provider with Stripe Checkout in subscription mode.
type StripeProvider struct {
	api     stripeClients
	account string
	clock   func() time.Time
	logger  StripeLogger
	latency metric.Float64Histogram
}

var _ Provider = (*StripeProvider)(nil)

// NewStripeProvider constructs a Stripe Provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Clients == nil {
		return nil, errors.New("stripe: api key is required")
	}

	var clients stripeClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		backends := cfg.Backends
		if backends == nil {
			backends = NewStripeBackends(StripeBackendConfig{})
		}
		sc := client.New(apiKey, backends)
		clients = stripeClients{
			sessions: sc.CheckoutSessions,
			prices:   sc.Prices,
		}
	}
	if clients.sessions == nil || clients.prices == nil {
		return nil, errors.New("stripe: incomplete client configuration")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	meter := cfg.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(metricNamespace)
	}
	latency, err := meter.Float64Histogram(
		"payments.stripe.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency in milliseconds for Stripe API calls"),
	)
	if err != nil {
		return nil, fmt.Errorf("stripe: register latency metric: %w", err)
	}

	return &StripeProvider{
		api:     clients,
		account: strings.TrimSpace(cfg.AccountID),
		clock: func() time.Time {
			return clock().UTC()
		},
		logger:  logger,
		latency: latency,
	}, nil
}

// CreateCheckoutSession creates a subscription-mode Stripe Checkout session.
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
	if p == nil {
		return CheckoutSession{}, errors.New("stripe: provider is nil")
	}
	if len(req.LineItems) == 0 {
		return CheckoutSession{}, errors.New("stripe: at least one line item is required")
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	if email := strings.TrimSpace(req.CustomerEmail); email != "" {
		params.CustomerEmail = stripe.String(email)
	}
	if ref := strings.TrimSpace(req.ClientReferenceID); ref != "" {
		params.ClientReferenceID = stripe.String(ref)
	}
	if len(req.Metadata) > 0 {
		params.Metadata = copyMetadata(req.Metadata)
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: copyMetadata(req.Metadata),
		}
	}

	params.LineItems = make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.LineItems))
	for _, item := range req.LineItems {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			Price:    stripe.String(item.PriceRef),
			Quantity: stripe.Int64(max(item.Quantity, 1)),
		})
	}

	start := p.clock()
	session, err := p.api.sessions.New(params)
	p.observe(ctx, "checkout_session.create", start, err)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("stripe: create checkout session: %w", classifyStripeError(err))
	}

	p.logger(ctx, "payments.stripe.session.created", map[string]any{
		"sessionId": session.ID,
		"lineItems": len(params.LineItems),
	})

	out := CheckoutSession{ID: session.ID, URL: session.URL}
	if session.ExpiresAt != 0 {
		out.ExpiresAt = time.Unix(session.ExpiresAt, 0).UTC()
	}
	return out, nil
}

// RetrievePrice fetches a price definition by id.
func (p *StripeProvider) RetrievePrice(ctx context.Context, priceRef string) (Price, error) {
	if p == nil {
		return Price{}, errors.New("stripe: provider is nil")
	}
	priceRef = strings.TrimSpace(priceRef)
	if priceRef == "" {
		return Price{}, errors.New("stripe: price reference is required")
	}

	params := &stripe.PriceParams{}
	params.Context = ctx
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}

	start := p.clock()
	price, err := p.api.prices.Get(priceRef, params)
	p.observe(ctx, "price.retrieve", start, err)
	if err != nil {
		return Price{}, fmt.Errorf("stripe: retrieve price %s: %w", priceRef, classifyStripeError(err))
	}

	out := Price{
		ID:         price.ID,
		UnitAmount: price.UnitAmount,
		Currency:   strings.ToLower(string(price.Currency)),
		Active:     price.Active,
	}
	if price.Recurring != nil {
		out.Interval = string(price.Recurring.Interval)
	}
	return out, nil
}

func (p *StripeProvider) observe(ctx context.Context, operation string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	elapsed := p.clock().Sub(start)
	p.latency.Record(ctx, float64(elapsed)/float64(time.Millisecond), metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}

// classifyStripeError tags API errors as rejections and everything else as unavailability while
// keeping the original error in the chain.
func classifyStripeError(err error) error {
	var apiErr *stripe.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %w", ErrProviderRejected, err)
	}
	return fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
}

func copyMetadata(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
