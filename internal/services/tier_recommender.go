package services

import (
	"errors"

	domain "github.com/Anthobetto/UNMI-sub001/internal/domain"
)

const (
	upgradeUtilizationPercent   = 80
	downgradeUtilizationPercent = 30
)

// UsageProfile is the usage a tenant reports when asking for a tier suggestion. Departments is
// ignored when zero or negative.
type UsageProfile struct {
	DailyMessages int
	Locations     int
	Departments   int
}

// TierRecommender suggests tiers from usage signals.
type TierRecommender struct {
	catalog *TierCatalog
}

// NewTierRecommender builds a recommender over the catalog.
func NewTierRecommender(catalog *TierCatalog) (*TierRecommender, error) {
	if catalog == nil {
		return nil, errors.New("tier recommender: catalog is required")
	}
	return &TierRecommender{catalog: catalog}, nil
}

// RecommendTier walks the catalog in ascending order and returns the first tier that covers the
// usage. The entry tier must cover it within its included quotas, middle tiers within their
// maximums, and the top tier always matches.
func (r *TierRecommender) RecommendTier(usage UsageProfile) domain.PricingTier {
	tiers := r.catalog.tiers
	last := len(tiers) - 1
	for i, tier := range tiers[:last] {
		if i == 0 {
			if usage.DailyMessages <= tier.IncludedMessages &&
				usage.Locations <= tier.IncludedLocations &&
				(usage.Departments <= 0 || usage.Departments <= tier.IncludedDepartments) {
				return cloneTier(tier)
			}
			continue
		}
		if usage.DailyMessages <= tier.MaxMessages &&
			usage.Locations <= tier.MaxLocations &&
			(usage.Departments <= 0 || usage.Departments <= tier.MaxDepartments) {
			return cloneTier(tier)
		}
	}
	return cloneTier(tiers[last])
}

// RecommendTierFromUtilization suggests the closest upgrade above 80% utilization and the
// closest downgrade that still fits below 30%. The boolean is false when the current tier
// should be kept or no tier qualifies.
func (r *TierRecommender) RecommendTierFromUtilization(currentTierID domain.TierID, messagesUsed, messageLimit int) (domain.PricingTier, bool, error) {
	current, ok := r.catalog.index(currentTierID)
	if !ok {
		return domain.PricingTier{}, false, &TierError{TierID: currentTierID, Err: ErrTierNotFound}
	}
	if messageLimit <= 0 {
		return domain.PricingTier{}, false, &InputError{Field: "messageLimit", Value: messageLimit, Err: ErrInvalidUsage}
	}
	if messagesUsed < 0 {
		return domain.PricingTier{}, false, &InputError{Field: "messagesUsed", Value: messagesUsed, Err: ErrInvalidUsage}
	}

	tiers := r.catalog.tiers
	used := int64(messagesUsed) * 100
	limit := int64(messageLimit)

	switch {
	case used > upgradeUtilizationPercent*limit:
		for _, tier := range tiers[current+1:] {
			if tier.MonthlyMessageLimit() > messageLimit {
				return cloneTier(tier), true, nil
			}
		}
	case used < downgradeUtilizationPercent*limit:
		for i := current - 1; i >= 0; i-- {
			if tiers[i].MonthlyMessageLimit() > messagesUsed {
				return cloneTier(tiers[i]), true, nil
			}
		}
	}
	return domain.PricingTier{}, false, nil
}
