package services

import (
	"errors"

	"github.com/shopspring/decimal"

	domain "github.com/Anthobetto/UNMI-sub001/internal/domain"
)

// BundleDiscountEngine compares multi-location bundles with linear per-location pricing.
type BundleDiscountEngine struct {
	calculator *PricingCalculator
}

// BundleDiscountCommand describes a request to add locations to an existing subscription.
type BundleDiscountCommand struct {
	TierID              domain.TierID
	DailyMessages       int
	CurrentLocations    int
	AdditionalLocations int
	// Departments defaults to one when zero.
	Departments int
}

// NewBundleDiscountEngine wires the engine to a calculator.
func NewBundleDiscountEngine(calculator *PricingCalculator) (*BundleDiscountEngine, error) {
	if calculator == nil {
		return nil, errors.New("bundle discount engine: calculator is required")
	}
	return &BundleDiscountEngine{calculator: calculator}, nil
}

// CalculateBundleDiscount prices the current and enlarged location counts and reports how much
// the bundle saves against linear scaling of the current price.
func (e *BundleDiscountEngine) CalculateBundleDiscount(cmd BundleDiscountCommand) (domain.BundleDiscount, error) {
	if cmd.CurrentLocations <= 0 {
		return domain.BundleDiscount{}, &InputError{Field: "currentLocations", Value: cmd.CurrentLocations, Err: ErrDivisionByZero}
	}
	if cmd.AdditionalLocations < 0 {
		return domain.BundleDiscount{}, &InputError{Field: "additionalLocations", Value: cmd.AdditionalLocations, Err: ErrInvalidUsage}
	}
	departments := cmd.Departments
	if departments <= 0 {
		departments = 1
	}

	current, err := e.calculator.CalculateMonthly(cmd.TierID, cmd.DailyMessages, cmd.CurrentLocations, departments)
	if err != nil {
		return domain.BundleDiscount{}, err
	}
	totalLocations := cmd.CurrentLocations + cmd.AdditionalLocations
	next, err := e.calculator.CalculateMonthly(cmd.TierID, cmd.DailyMessages, totalLocations, departments)
	if err != nil {
		return domain.BundleDiscount{}, err
	}

	linear := current.TotalMonthly.
		Mul(decimal.NewFromInt(int64(totalLocations))).
		Div(decimal.NewFromInt(int64(cmd.CurrentLocations)))
	discount := RoundMoney(linear.Sub(next.TotalMonthly))

	percent := decimal.Zero
	if !linear.IsZero() {
		percent = discount.Div(linear).Mul(decimalHundred).Round(1)
	}

	return domain.BundleDiscount{
		CurrentPrice: current.TotalMonthly,
		NewPrice:     next.TotalMonthly,
		LinearPrice:  RoundMoney(linear),
		Discount:     discount,
		PercentSaved: percent,
	}, nil
}

// CalculateVolumeDiscountPercent is the flat upsell heuristic keyed on total location count. It
// is independent of the catalog.
func CalculateVolumeDiscountPercent(totalLocations int) int {
	switch {
	case totalLocations >= 10:
		return 30
	case totalLocations >= 5:
		return 20
	case totalLocations >= 3:
		return 15
	case totalLocations >= 2:
		return 10
	default:
		return 0
	}
}
