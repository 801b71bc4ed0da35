package services

import (
	"errors"

	"github.com/shopspring/decimal"

	domain "github.com/Anthobetto/UNMI-sub001/internal/domain"
)

const moneyPlaces = 2

var (
	daysPerMonth   = decimal.NewFromInt(domain.DaysPerBillingMonth)
	monthsPerYear  = decimal.NewFromInt(12)
	decimalOne     = decimal.NewFromInt(1)
	decimalHundred = decimal.NewFromInt(100)
)

// PricingCalculator quotes monthly and yearly prices from the tier catalog. It holds no
// mutable state and is safe for concurrent use.
type PricingCalculator struct {
	catalog *TierCatalog
}

// NewPricingCalculator constructs a calculator over the provided catalog.
func NewPricingCalculator(catalog *TierCatalog) (*PricingCalculator, error) {
	if catalog == nil {
		return nil, errors.New("pricing calculator: catalog is required")
	}
	return &PricingCalculator{catalog: catalog}, nil
}

// Catalog exposes the catalog the calculator prices against.
func (c *PricingCalculator) Catalog() *TierCatalog {
	return c.catalog
}

// CalculateMonthly prices a tier for the given usage. Counts outside the tier bounds are clamped
// silently; callers compare the returned counts with their inputs when they need to detect it.
func (c *PricingCalculator) CalculateMonthly(tierID domain.TierID, dailyMessages, locations, departments int) (domain.PricingCalculation, error) {
	tier, err := c.catalog.GetTier(tierID)
	if err != nil {
		return domain.PricingCalculation{}, &TierError{TierID: tierID, Err: ErrInvalidTier}
	}
	return quoteTier(tier, dailyMessages, locations, departments), nil
}

func quoteTier(tier domain.PricingTier, dailyMessages, locations, departments int) domain.PricingCalculation {
	dailyMessages = clampInt(dailyMessages, tier.MessageFloor(), tier.MaxMessages)
	locations = clampInt(locations, 1, tier.MaxLocations)
	departments = clampInt(departments, 1, tier.MaxDepartments)

	base := RoundMoney(tier.BasePrice)

	extraMessages := decimal.NewFromInt(int64(maxInt(0, dailyMessages-tier.IncludedMessages)))
	messagesCost := RoundMoney(extraMessages.Mul(daysPerMonth).Mul(tier.MessageRate))

	locationsCost, locationDiscount := locationCharge(tier, locations, base.Add(messagesCost))

	extraDepartments := decimal.NewFromInt(int64(maxInt(0, departments-tier.IncludedDepartments)))
	departmentsCost := RoundMoney(extraDepartments.Mul(tier.ExtraDepartmentPrice))

	totalMonthly := RoundMoney(base.Add(messagesCost).Add(locationsCost).Add(departmentsCost))

	return domain.PricingCalculation{
		Tier:             tier,
		DailyMessages:    dailyMessages,
		Locations:        locations,
		Departments:      departments,
		BasePrice:        base,
		MessagesCost:     messagesCost,
		LocationsCost:    locationsCost,
		DepartmentsCost:  departmentsCost,
		LocationDiscount: locationDiscount,
		TotalMonthly:     totalMonthly,
		TotalYearly:      YearlyTotal(totalMonthly),
	}
}

// locationCharge returns the location cost and, for multiplicative tiers, the saving relative to
// billing a full subtotal for every extra location.
func locationCharge(tier domain.PricingTier, locations int, subtotal decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	if tier.LocationPricing() == domain.LocationPricingMultiplicative {
		additional := decimal.NewFromInt(int64(locations - 1))
		markup := decimalOne.Add(additional.Mul(*tier.LocationMultiplier))
		cost := RoundMoney(subtotal.Mul(markup).Sub(subtotal))
		saving := RoundMoney(additional.Mul(subtotal).Sub(cost))
		if saving.IsNegative() {
			saving = decimal.Zero
		}
		return cost, saving
	}

	extra := decimal.NewFromInt(int64(maxInt(0, locations-tier.IncludedLocations)))
	price := decimal.Zero
	if tier.ExtraLocationPrice != nil {
		price = *tier.ExtraLocationPrice
	}
	return RoundMoney(extra.Mul(price)), decimal.Zero
}

// YearlyTotal applies twelve months and the annual discount to a monthly total.
func YearlyTotal(monthly decimal.Decimal) decimal.Decimal {
	return RoundMoney(monthly.Mul(monthsPerYear).Mul(domain.AnnualDiscountFactor))
}

// RoundMoney rounds to cents, ties away from zero.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(moneyPlaces)
}

// MinorUnits converts an amount to an integer count of cents.
func MinorUnits(d decimal.Decimal) int64 {
	return RoundMoney(d).Mul(decimalHundred).IntPart()
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
