package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DaysPerBillingMonth is the month length used to turn daily message volume into monthly volume.
const DaysPerBillingMonth = 30

// AnnualDiscountFactor is applied to twelve monthly totals to obtain the yearly price.
var AnnualDiscountFactor = decimal.RequireFromString("0.90")

// TierID identifies a pricing tier within the catalog.
type TierID string

// LocationPricingMode describes how additional locations are charged for a tier.
type LocationPricingMode string

const (
	// LocationPricingAdditive charges a flat price per location beyond the included quota.
	LocationPricingAdditive LocationPricingMode = "additive"
	// LocationPricingMultiplicative marks up the subtotal for every location after the first.
	LocationPricingMultiplicative LocationPricingMode = "multiplicative"
)

// PricingTier is an immutable catalog entry. Exactly one of ExtraLocationPrice and
// LocationMultiplier is set.
type PricingTier struct {
	ID                   TierID
	Name                 string
	BasePrice            decimal.Decimal
	MinMessages          *int
	IncludedMessages     int
	MaxMessages          int
	MessageRate          decimal.Decimal
	IncludedLocations    int
	MaxLocations         int
	ExtraLocationPrice   *decimal.Decimal
	LocationMultiplier   *decimal.Decimal
	IncludedDepartments  int
	MaxDepartments       int
	ExtraDepartmentPrice decimal.Decimal
}

// LocationPricing reports which location model the tier uses.
func (t PricingTier) LocationPricing() LocationPricingMode {
	if t.LocationMultiplier != nil {
		return LocationPricingMultiplicative
	}
	return LocationPricingAdditive
}

// MessageFloor is the lowest daily message volume the tier bills for.
func (t PricingTier) MessageFloor() int {
	if t.MinMessages != nil {
		return *t.MinMessages
	}
	return t.IncludedMessages
}

// MonthlyMessageLimit is the tier's message cap over a billing month.
func (t PricingTier) MonthlyMessageLimit() int {
	return t.MaxMessages * DaysPerBillingMonth
}

// PricingCalculation is the breakdown of a single monthly quote. Counts are the clamped values
// that were actually billed.
type PricingCalculation struct {
	Tier             PricingTier
	DailyMessages    int
	Locations        int
	Departments      int
	BasePrice        decimal.Decimal
	MessagesCost     decimal.Decimal
	LocationsCost    decimal.Decimal
	DepartmentsCost  decimal.Decimal
	LocationDiscount decimal.Decimal
	TotalMonthly     decimal.Decimal
	TotalYearly      decimal.Decimal
}

// BundleDiscount compares adding locations to a subscription against linear per-location scaling.
type BundleDiscount struct {
	CurrentPrice decimal.Decimal
	NewPrice     decimal.Decimal
	LinearPrice  decimal.Decimal
	Discount     decimal.Decimal
	PercentSaved decimal.Decimal
}

// PlanSelection is one line of a composite checkout.
type PlanSelection struct {
	PlanType string
	Quantity int64
}

// CheckoutLineItem pairs a provider price reference with a quantity.
type CheckoutLineItem struct {
	PlanType string
	PriceRef string
	Quantity int64
}

// CheckoutRequest is handed to the payment provider to open a hosted checkout session.
type CheckoutRequest struct {
	CustomerEmail string
	CustomerID    string
	PlanType      string
	Selections    []PlanSelection
	LineItems     []CheckoutLineItem
	Metadata      map[string]string
	SuccessURL    string
	CancelURL     string
	Quote         *PricingCalculation
}

// CheckoutSession is the subset of the provider session the caller needs to redirect.
type CheckoutSession struct {
	ID  string
	URL string
}

// PriceReconciliation compares a catalog base price with the price stored at the provider.
type PriceReconciliation struct {
	TierID        TierID
	PriceRef      string
	CatalogAmount int64
	ProviderPrice int64
	Currency      string
	Matches       bool
}

// TemplateVariableSet is a template body with its ordered declared variables.
type TemplateVariableSet struct {
	Content   string
	Variables []string
}

// MessageTemplate is a stored recovery message template.
type MessageTemplate struct {
	ID        string
	OwnerID   string
	Name      string
	Language  string
	Channel   string
	Content   string
	Variables []string
	CreatedAt time.Time
	UpdatedAt time.Time
}
