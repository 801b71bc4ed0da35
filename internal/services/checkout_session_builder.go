package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	domain "github.com/Anthobetto/UNMI-sub001/internal/domain"
	"github.com/Anthobetto/UNMI-sub001/internal/payments"
)

const (
	// CheckoutSessionPlaceholder is substituted by the payment provider once the session exists.
	CheckoutSessionPlaceholder = "{CHECKOUT_SESSION_ID}"

	metadataUserID      = "userId"
	metadataPlanType    = "planType"
	metadataLocations   = "locations"
	metadataDepartments = "departments"

	locationPlanSuffix   = "_location"
	departmentPlanSuffix = "_department"

	checkoutEventSessionCreated = "checkout.session.created"
)

// CheckoutPaymentProvider is the payment collaborator used by the builder.
type CheckoutPaymentProvider interface {
	CreateCheckoutSession(ctx context.Context, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error)
	RetrievePrice(ctx context.Context, priceRef string) (payments.Price, error)
}

// CheckoutEvent is emitted after a session has been created.
type CheckoutEvent struct {
	Type         string    `json:"type"`
	SessionID    string    `json:"sessionId"`
	UserID       string    `json:"userId"`
	PlanType     string    `json:"planType"`
	TotalMonthly string    `json:"totalMonthly,omitempty"`
	OccurredAt   time.Time `json:"occurredAt"`
}

// CheckoutEventPublisher forwards checkout events to downstream consumers.
type CheckoutEventPublisher interface {
	PublishCheckoutEvent(ctx context.Context, event CheckoutEvent) (string, error)
}

// CheckoutSessionBuilderDeps wires the builder.
type CheckoutSessionBuilderDeps struct {
	Calculator      *PricingCalculator
	Provider        CheckoutPaymentProvider
	PriceRefs       map[string]string
	FrontendBaseURL string
	Events          CheckoutEventPublisher
	Clock           func() time.Time
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

// CheckoutParams requests a single-plan subscription checkout.
type CheckoutParams struct {
	UserID        string
	CustomerEmail string
	CustomerID    string
	TierID        domain.TierID
	DailyMessages int
	Locations     int
	Departments   int
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
}

// MultiSelectionParams requests a checkout composed of several independent plans.
type MultiSelectionParams struct {
	UserID        string
	CustomerEmail string
	CustomerID    string
	Selections    []domain.PlanSelection
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
}

// CheckoutSessionBuilder turns plan choices into provider checkout requests.
type CheckoutSessionBuilder struct {
	calculator *PricingCalculator
	provider   CheckoutPaymentProvider
	priceRefs  map[string]string
	successURL string
	cancelURL  string
	events     CheckoutEventPublisher
	now        func() time.Time
	logger     func(context.Context, string, map[string]any)
}

// NewCheckoutSessionBuilder validates dependencies and normalises the price mapping.
func NewCheckoutSessionBuilder(deps CheckoutSessionBuilderDeps) (*CheckoutSessionBuilder, error) {
	if deps.Calculator == nil {
		return nil, errors.New("checkout session builder: calculator is required")
	}
	if deps.Provider == nil {
		return nil, errors.New("checkout session builder: payment provider is required")
	}
	base := strings.TrimRight(strings.TrimSpace(deps.FrontendBaseURL), "/")
	if base == "" {
		return nil, errors.New("checkout session builder: frontend base url is required")
	}

	refs := make(map[string]string, len(deps.PriceRefs))
	for plan, ref := range deps.PriceRefs {
		plan = strings.ToLower(strings.TrimSpace(plan))
		ref = strings.TrimSpace(ref)
		if plan == "" || ref == "" {
			continue
		}
		refs[plan] = ref
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &CheckoutSessionBuilder{
		calculator: deps.Calculator,
		provider:   deps.Provider,
		priceRefs:  refs,
		successURL: base + "/dashboard?session_id=" + CheckoutSessionPlaceholder,
		cancelURL:  base + "/pricing?canceled=true",
		events:     deps.Events,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// BuildCheckoutRequest prices the tier with clamped counts and maps it to line items: the base
// plan plus paid extra locations and departments.
func (b *CheckoutSessionBuilder) BuildCheckoutRequest(params CheckoutParams) (domain.CheckoutRequest, error) {
	userID := strings.TrimSpace(params.UserID)
	if userID == "" {
		return domain.CheckoutRequest{}, fmt.Errorf("%w: user id is required", ErrCheckoutInvalidInput)
	}

	quote, err := b.calculator.CalculateMonthly(params.TierID, params.DailyMessages, params.Locations, params.Departments)
	if err != nil {
		return domain.CheckoutRequest{}, err
	}
	tier := quote.Tier
	planType := string(tier.ID)

	wanted := []domain.PlanSelection{{PlanType: planType, Quantity: 1}}
	if tier.LocationPricing() == domain.LocationPricingAdditive {
		if extra := quote.Locations - tier.IncludedLocations; extra > 0 {
			wanted = append(wanted, domain.PlanSelection{PlanType: planType + locationPlanSuffix, Quantity: int64(extra)})
		}
	}
	if extra := quote.Departments - tier.IncludedDepartments; extra > 0 {
		wanted = append(wanted, domain.PlanSelection{PlanType: planType + departmentPlanSuffix, Quantity: int64(extra)})
	}

	items, err := b.resolveLineItems(wanted)
	if err != nil {
		return domain.CheckoutRequest{}, err
	}

	metadata := mergeMetadata(params.Metadata, map[string]string{
		metadataUserID:      userID,
		metadataPlanType:    planType,
		metadataLocations:   strconv.Itoa(quote.Locations),
		metadataDepartments: strconv.Itoa(quote.Departments),
	})

	return domain.CheckoutRequest{
		CustomerEmail: strings.TrimSpace(params.CustomerEmail),
		CustomerID:    strings.TrimSpace(params.CustomerID),
		PlanType:      planType,
		Selections:    []domain.PlanSelection{{PlanType: planType, Quantity: 1}},
		LineItems:     items,
		Metadata:      metadata,
		SuccessURL:    b.orDefault(params.SuccessURL, b.successURL),
		CancelURL:     b.orDefault(params.CancelURL, b.cancelURL),
		Quote:         &quote,
	}, nil
}

// BuildMultiSelectionRequest builds a checkout covering several plans at once, one line item per
// selection.
func (b *CheckoutSessionBuilder) BuildMultiSelectionRequest(params MultiSelectionParams) (domain.CheckoutRequest, error) {
	userID := strings.TrimSpace(params.UserID)
	if userID == "" {
		return domain.CheckoutRequest{}, fmt.Errorf("%w: user id is required", ErrCheckoutInvalidInput)
	}
	if len(params.Selections) == 0 {
		return domain.CheckoutRequest{}, fmt.Errorf("%w: at least one selection is required", ErrCheckoutInvalidInput)
	}

	selections := make([]domain.PlanSelection, 0, len(params.Selections))
	planTypes := make([]string, 0, len(params.Selections))
	for i, sel := range params.Selections {
		plan := strings.ToLower(strings.TrimSpace(sel.PlanType))
		if plan == "" {
			return domain.CheckoutRequest{}, fmt.Errorf("%w: selections[%d].planType is required", ErrCheckoutInvalidInput, i)
		}
		selections = append(selections, domain.PlanSelection{PlanType: plan, Quantity: max(sel.Quantity, 1)})
		planTypes = append(planTypes, plan)
	}

	items, err := b.resolveLineItems(selections)
	if err != nil {
		return domain.CheckoutRequest{}, err
	}

	planType := strings.Join(planTypes, "+")
	metadata := mergeMetadata(params.Metadata, map[string]string{
		metadataUserID:   userID,
		metadataPlanType: planType,
	})

	return domain.CheckoutRequest{
		CustomerEmail: strings.TrimSpace(params.CustomerEmail),
		CustomerID:    strings.TrimSpace(params.CustomerID),
		PlanType:      planType,
		Selections:    selections,
		LineItems:     items,
		Metadata:      metadata,
		SuccessURL:    b.orDefault(params.SuccessURL, b.successURL),
		CancelURL:     b.orDefault(params.CancelURL, b.cancelURL),
	}, nil
}

// CreateCheckoutSession hands a built request to the payment provider. Provider failures are
// logged in full and returned as a *CheckoutSessionError with a generic message.
func (b *CheckoutSessionBuilder) CreateCheckoutSession(ctx context.Context, req domain.CheckoutRequest, idempotencyKey string) (domain.CheckoutSession, error) {
	if len(req.LineItems) == 0 {
		return domain.CheckoutSession{}, fmt.Errorf("%w: request has no line items", ErrCheckoutInvalidInput)
	}

	lineItems := make([]payments.LineItem, 0, len(req.LineItems))
	for _, item := range req.LineItems {
		lineItems = append(lineItems, payments.LineItem{PriceRef: item.PriceRef, Quantity: item.Quantity})
	}

	session, err := b.provider.CreateCheckoutSession(ctx, payments.CheckoutSessionRequest{
		LineItems:         lineItems,
		CustomerEmail:     req.CustomerEmail,
		ClientReferenceID: req.CustomerID,
		SuccessURL:        req.SuccessURL,
		CancelURL:         req.CancelURL,
		Metadata:          req.Metadata,
		IdempotencyKey:    strings.TrimSpace(idempotencyKey),
	})
	if err == nil && strings.TrimSpace(session.URL) == "" {
		err = fmt.Errorf("%w: session %q returned without url", payments.ErrProviderRejected, session.ID)
	}
	if err != nil {
		cause := CheckoutFailureNetwork
		if errors.Is(err, payments.ErrProviderRejected) {
			cause = CheckoutFailureRejected
		}
		b.logger(ctx, "checkout.session.failed", map[string]any{
			"cause":    string(cause),
			"planType": req.PlanType,
			"userId":   req.Metadata[metadataUserID],
			"error":    err.Error(),
		})
		return domain.CheckoutSession{}, &CheckoutSessionError{Cause: cause}
	}

	b.logger(ctx, checkoutEventSessionCreated, map[string]any{
		"sessionId": session.ID,
		"planType":  req.PlanType,
		"userId":    req.Metadata[metadataUserID],
	})
	b.publish(ctx, req, session)

	return domain.CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

// ReconcilePlanPrice compares the catalog base price of a tier with the provider's stored unit
// amount for its configured price reference.
func (b *CheckoutSessionBuilder) ReconcilePlanPrice(ctx context.Context, tierID domain.TierID) (domain.PriceReconciliation, error) {
	tier, err := b.calculator.Catalog().GetTier(tierID)
	if err != nil {
		return domain.PriceReconciliation{}, err
	}
	items, err := b.resolveLineItems([]domain.PlanSelection{{PlanType: string(tier.ID), Quantity: 1}})
	if err != nil {
		return domain.PriceReconciliation{}, err
	}
	ref := items[0].PriceRef

	price, err := b.provider.RetrievePrice(ctx, ref)
	if err != nil {
		b.logger(ctx, "checkout.price.retrieve_failed", map[string]any{
			"tierId":   string(tier.ID),
			"priceRef": ref,
			"error":    err.Error(),
		})
		return domain.PriceReconciliation{}, fmt.Errorf("checkout: retrieve price for %s: %w", tier.ID, err)
	}

	catalogAmount := MinorUnits(tier.BasePrice)
	return domain.PriceReconciliation{
		TierID:        tier.ID,
		PriceRef:      ref,
		CatalogAmount: catalogAmount,
		ProviderPrice: price.UnitAmount,
		Currency:      price.Currency,
		Matches:       catalogAmount == price.UnitAmount,
	}, nil
}

func (b *CheckoutSessionBuilder) resolveLineItems(selections []domain.PlanSelection) ([]domain.CheckoutLineItem, error) {
	items := make([]domain.CheckoutLineItem, 0, len(selections))
	var missing []string
	for _, sel := range selections {
		ref, ok := b.priceRefs[strings.ToLower(sel.PlanType)]
		if !ok {
			missing = append(missing, sel.PlanType)
			continue
		}
		items = append(items, domain.CheckoutLineItem{PlanType: sel.PlanType, PriceRef: ref, Quantity: sel.Quantity})
	}
	if len(missing) > 0 {
		return nil, &PriceNotConfiguredError{PlanTypes: missing}
	}
	return items, nil
}

func (b *CheckoutSessionBuilder) publish(ctx context.Context, req domain.CheckoutRequest, session payments.CheckoutSession) {
	if b.events == nil {
		return
	}
	event := CheckoutEvent{
		Type:       checkoutEventSessionCreated,
		SessionID:  session.ID,
		UserID:     req.Metadata[metadataUserID],
		PlanType:   req.PlanType,
		OccurredAt: b.now(),
	}
	if req.Quote != nil {
		event.TotalMonthly = req.Quote.TotalMonthly.StringFixed(2)
	}
	if _, err := b.events.PublishCheckoutEvent(ctx, event); err != nil {
		b.logger(ctx, "checkout.event.publish_failed", map[string]any{
			"sessionId": session.ID,
			"error":     err.Error(),
		})
	}
}

func (b *CheckoutSessionBuilder) orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}

// mergeMetadata copies trimmed caller entries and then applies reserved keys, which always win.
func mergeMetadata(caller map[string]string, reserved map[string]string) map[string]string {
	out := make(map[string]string, len(caller)+len(reserved))
	for key, value := range caller {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		out[key] = strings.TrimSpace(value)
	}
	for key, value := range reserved {
		out[key] = value
	}
	return out
}
