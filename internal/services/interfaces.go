package services

import (
	"context"

	domain "github.com/Anthobetto/UNMI-sub001/internal/domain"
	"github.com/Anthobetto/UNMI-sub001/internal/platform/pagination"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	SystemHealthReport = domain.SystemHealthReport
	SystemHealthCheck  = domain.SystemHealthCheck
)

// PricingService exposes the read-only pricing operations served to the public API.
type PricingService interface {
	ListTiers() []domain.PricingTier
	GetTier(id domain.TierID) (domain.PricingTier, error)
	CalculateMonthly(tierID domain.TierID, dailyMessages, locations, departments int) (domain.PricingCalculation, error)
	CalculateBundleDiscount(cmd BundleDiscountCommand) (domain.BundleDiscount, error)
	RecommendTier(usage UsageProfile) domain.PricingTier
	RecommendTierFromUtilization(currentTierID domain.TierID, messagesUsed, messageLimit int) (domain.PricingTier, bool, error)
}

// CheckoutService assembles and creates provider checkout sessions.
type CheckoutService interface {
	BuildCheckoutRequest(params CheckoutParams) (domain.CheckoutRequest, error)
	BuildMultiSelectionRequest(params MultiSelectionParams) (domain.CheckoutRequest, error)
	CreateCheckoutSession(ctx context.Context, req domain.CheckoutRequest, idempotencyKey string) (domain.CheckoutSession, error)
	ReconcilePlanPrice(ctx context.Context, tierID domain.TierID) (domain.PriceReconciliation, error)
}

// MessageTemplateService validates and stores tenant message templates.
type MessageTemplateService interface {
	Validate(content string, variables []string) error
	SaveTemplate(ctx context.Context, cmd SaveTemplateCommand) (domain.MessageTemplate, error)
	GetTemplate(ctx context.Context, ownerID, templateID string) (domain.MessageTemplate, error)
	ListTemplates(ctx context.Context, ownerID string, params pagination.Params) (pagination.Page[domain.MessageTemplate], error)
}

// ReadinessService produces the dependency report behind /readyz.
type ReadinessService interface {
	Report(ctx context.Context) (SystemHealthReport, error)
}

var (
	_ CheckoutService        = (*CheckoutSessionBuilder)(nil)
	_ MessageTemplateService = (*TemplateService)(nil)
)
