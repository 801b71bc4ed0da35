package services

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/Anthobetto/UNMI-sub001/internal/domain"
)

func newTestCalculator(t *testing.T) *PricingCalculator {
	t.Helper()
	calc, err := NewPricingCalculator(mustDefaultCatalog(t))
	require.NoError(t, err)
	return calc
}

func assertMoney(t *testing.T, field string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(decimal.RequireFromString(want)) {
		t.Errorf("%s: expected %s, got %s", field, want, got.StringFixed(2))
	}
}

func TestCalculateMonthly(t *testing.T) {
	calc := newTestCalculator(t)

	cases := []struct {
		name                             string
		tier                             domain.TierID
		messages, locations, departments int
		wantMessages, wantLocations      int
		wantDepartments                  int
		messagesCost, locationsCost      string
		departmentsCost, discount        string
		monthly, yearly                  string
	}{
		{
			name: "professional at message cap", tier: "professional",
			messages: 30, locations: 1, departments: 1,
			wantMessages: 30, wantLocations: 1, wantDepartments: 1,
			messagesCost: "30", locationsCost: "0", departmentsCost: "0", discount: "0",
			monthly: "150", yearly: "1620",
		},
		{
			name: "professional with extras", tier: "professional",
			messages: 25, locations: 4, departments: 5,
			wantMessages: 25, wantLocations: 4, wantDepartments: 5,
			messagesCost: "15", locationsCost: "120", departmentsCost: "30", discount: "0",
			monthly: "285", yearly: "3078",
		},
		{
			name: "basic hard cap and extras", tier: "basic",
			messages: 100, locations: 2, departments: 2,
			wantMessages: 10, wantLocations: 2, wantDepartments: 2,
			messagesCost: "0", locationsCost: "25", departmentsCost: "10", discount: "0",
			monthly: "84", yearly: "907.20",
		},
		{
			name: "enterprise multiplicative locations", tier: "enterprise",
			messages: 100, locations: 3, departments: 10,
			wantMessages: 100, wantLocations: 3, wantDepartments: 10,
			messagesCost: "120", locationsCost: "125.70", departmentsCost: "0", discount: "712.30",
			monthly: "544.70", yearly: "5882.76",
		},
		{
			name: "counts below bounds are raised", tier: "professional",
			messages: 0, locations: 0, departments: -3,
			wantMessages: 20, wantLocations: 1, wantDepartments: 1,
			messagesCost: "0", locationsCost: "0", departmentsCost: "0", discount: "0",
			monthly: "120", yearly: "1296",
		},
		{
			name: "counts above bounds are lowered", tier: "professional",
			messages: 500, locations: 99, departments: 99,
			wantMessages: 30, wantLocations: 10, wantDepartments: 10,
			messagesCost: "30", locationsCost: "360", departmentsCost: "105", discount: "0",
			monthly: "615", yearly: "6642",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := calc.CalculateMonthly(tc.tier, tc.messages, tc.locations, tc.departments)
			require.NoError(t, err)

			assert.Equal(t, tc.wantMessages, got.DailyMessages)
			assert.Equal(t, tc.wantLocations, got.Locations)
			assert.Equal(t, tc.wantDepartments, got.Departments)
			assert.Equal(t, tc.tier, got.Tier.ID)
			assertMoney(t, "messagesCost", got.MessagesCost, tc.messagesCost)
			assertMoney(t, "locationsCost", got.LocationsCost, tc.locationsCost)
			assertMoney(t, "departmentsCost", got.DepartmentsCost, tc.departmentsCost)
			assertMoney(t, "locationDiscount", got.LocationDiscount, tc.discount)
			assertMoney(t, "totalMonthly", got.TotalMonthly, tc.monthly)
			assertMoney(t, "totalYearly", got.TotalYearly, tc.yearly)
		})
	}
}

func TestCalculateMonthlyUnknownTier(t *testing.T) {
	calc := newTestCalculator(t)

	_, err := calc.CalculateMonthly("gold", 10, 1, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTier))

	var tierErr *TierError
	require.True(t, errors.As(err, &tierErr))
	assert.Equal(t, domain.TierID("gold"), tierErr.TierID)
}

func TestCalculateMonthlyIsDeterministic(t *testing.T) {
	calc := newTestCalculator(t)

	first, err := calc.CalculateMonthly("professional", 30, 1, 1)
	require.NoError(t, err)
	second, err := calc.CalculateMonthly("professional", 30, 1, 1)
	require.NoError(t, err)

	assert.Equal(t, first.TotalMonthly.String(), second.TotalMonthly.String())
	assert.Equal(t, first.TotalYearly.String(), second.TotalYearly.String())
}

func TestCalculateMonthlyInvariants(t *testing.T) {
	calc := newTestCalculator(t)

	for _, tier := range calc.Catalog().ListTiers() {
		for messages := -5; messages <= tier.MaxMessages+5; messages += 5 {
			for locations := 0; locations <= tier.MaxLocations+1; locations++ {
				for departments := 0; departments <= tier.MaxDepartments+1; departments += 3 {
					got, err := calc.CalculateMonthly(tier.ID, messages, locations, departments)
					require.NoError(t, err)

					if got.TotalMonthly.LessThan(tier.BasePrice) {
						t.Fatalf("%s: total %s below base %s", tier.ID, got.TotalMonthly, tier.BasePrice)
					}
					if !got.TotalYearly.Equal(RoundMoney(got.TotalMonthly.Mul(decimal.NewFromInt(12)).Mul(decimal.RequireFromString("0.9")))) {
						t.Fatalf("%s: yearly %s does not match monthly %s", tier.ID, got.TotalYearly, got.TotalMonthly)
					}

					clamped, err := calc.CalculateMonthly(tier.ID, got.DailyMessages, got.Locations, got.Departments)
					require.NoError(t, err)
					if !clamped.TotalMonthly.Equal(got.TotalMonthly) {
						t.Fatalf("%s: clamping is not idempotent for (%d,%d,%d)", tier.ID, messages, locations, departments)
					}
				}
			}
		}
	}
}

func TestRoundMoneyTiesAwayFromZero(t *testing.T) {
	cases := map[string]string{
		"0.005":  "0.01",
		"1.005":  "1.01",
		"2.675":  "2.68",
		"-0.005": "-0.01",
		"0.0049": "0",
		"10.1":   "10.10",
	}
	for in, want := range cases {
		got := RoundMoney(decimal.RequireFromString(in))
		assert.Truef(t, got.Equal(decimal.RequireFromString(want)), "round(%s): expected %s, got %s", in, want, got)
	}
}

func TestCalculateMonthlyRoundsHalfCentUp(t *testing.T) {
	locationPrice := decimal.RequireFromString("0")
	catalog, err := NewTierCatalog("test", []domain.PricingTier{
		{
			ID: "micro", Name: "Micro",
			BasePrice: decimal.RequireFromString("1.00"), IncludedMessages: 0, MaxMessages: 10,
			MessageRate:       decimal.RequireFromString("0.0005"),
			IncludedLocations: 1, MaxLocations: 1, ExtraLocationPrice: &locationPrice,
			IncludedDepartments: 1, MaxDepartments: 1, ExtraDepartmentPrice: decimal.Zero,
		},
		{
			ID: "macro", Name: "Macro",
			BasePrice: decimal.RequireFromString("2.00"), IncludedMessages: 0, MaxMessages: 10,
			MessageRate:       decimal.Zero,
			IncludedLocations: 1, MaxLocations: 1, ExtraLocationPrice: &locationPrice,
			IncludedDepartments: 1, MaxDepartments: 1, ExtraDepartmentPrice: decimal.Zero,
		},
	})
	require.NoError(t, err)
	calc, err := NewPricingCalculator(catalog)
	require.NoError(t, err)

	got, err := calc.CalculateMonthly("micro", 1, 1, 1)
	require.NoError(t, err)
	// 1 * 30 * 0.0005 = 0.015
	assertMoney(t, "messagesCost", got.MessagesCost, "0.02")
	assertMoney(t, "totalMonthly", got.TotalMonthly, "1.02")
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(12000), MinorUnits(decimal.RequireFromString("120")))
	assert.Equal(t, int64(4901), MinorUnits(decimal.RequireFromString("49.005")))
}
