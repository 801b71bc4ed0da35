package services

import (
	"errors"

	domain "github.com/Anthobetto/UNMI-sub001/internal/domain"
)

type pricingService struct {
	catalog     *TierCatalog
	calculator  *PricingCalculator
	bundles     *BundleDiscountEngine
	recommender *TierRecommender
}

var _ PricingService = (*pricingService)(nil)

// NewPricingService composes the catalog-backed pricing components behind one facade.
func NewPricingService(catalog *TierCatalog) (PricingService, error) {
	if catalog == nil {
		return nil, errors.New("pricing service: catalog is required")
	}
	calculator, err := NewPricingCalculator(catalog)
	if err != nil {
		return nil, err
	}
	bundles, err := NewBundleDiscountEngine(calculator)
	if err != nil {
		return nil, err
	}
	recommender, err := NewTierRecommender(catalog)
	if err != nil {
		return nil, err
	}
	return &pricingService{
		catalog:     catalog,
		calculator:  calculator,
		bundles:     bundles,
		recommender: recommender,
	}, nil
}

func (s *pricingService) ListTiers() []domain.PricingTier {
	return s.catalog.ListTiers()
}

func (s *pricingService) GetTier(id domain.TierID) (domain.PricingTier, error) {
	return s.catalog.GetTier(id)
}

func (s *pricingService) CalculateMonthly(tierID domain.TierID, dailyMessages, locations, departments int) (domain.PricingCalculation, error) {
	return s.calculator.CalculateMonthly(tierID, dailyMessages, locations, departments)
}

func (s *pricingService) CalculateBundleDiscount(cmd BundleDiscountCommand) (domain.BundleDiscount, error) {
	return s.bundles.CalculateBundleDiscount(cmd)
}

func (s *pricingService) RecommendTier(usage UsageProfile) domain.PricingTier {
	return s.recommender.RecommendTier(usage)
}

func (s *pricingService) RecommendTierFromUtilization(currentTierID domain.TierID, messagesUsed, messageLimit int) (domain.PricingTier, bool, error) {
	return s.recommender.RecommendTierFromUtilization(currentTierID, messagesUsed, messageLimit)
}
