package services

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	domain "github.com/Anthobetto/UNMI-sub001/internal/domain"
)

//go:embed catalog/tiers.yaml
var defaultCatalogDocument []byte

// TierCatalog is the read-only set of pricing tiers, ordered ascending by base price.
type TierCatalog struct {
	version string
	tiers   []domain.PricingTier
	byID    map[domain.TierID]int
}

type catalogDocument struct {
	Version string           `yaml:"version"`
	Tiers   []tierDefinition `yaml:"tiers"`
}

type tierDefinition struct {
	ID                   string `yaml:"id"`
	Name                 string `yaml:"name"`
	BasePrice            string `yaml:"basePrice"`
	MinMessages          *int   `yaml:"minMessages"`
	IncludedMessages     int    `yaml:"includedMessages"`
	MaxMessages          int    `yaml:"maxMessages"`
	MessageRate          string `yaml:"messageRate"`
	IncludedLocations    int    `yaml:"includedLocations"`
	MaxLocations         int    `yaml:"maxLocations"`
	ExtraLocationPrice   string `yaml:"extraLocationPrice"`
	LocationMultiplier   string `yaml:"locationMultiplier"`
	IncludedDepartments  int    `yaml:"includedDepartments"`
	MaxDepartments       int    `yaml:"maxDepartments"`
	ExtraDepartmentPrice string `yaml:"extraDepartmentPrice"`
}

// DefaultTierCatalog loads the catalog compiled into the binary.
func DefaultTierCatalog() (*TierCatalog, error) {
	return LoadTierCatalog(bytes.NewReader(defaultCatalogDocument))
}

// LoadTierCatalog parses a YAML catalog document and validates it.
func LoadTierCatalog(r io.Reader) (*TierCatalog, error) {
	if r == nil {
		return nil, errors.New("tier catalog: reader is required")
	}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc catalogDocument
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("tier catalog: decode: %w", err)
	}

	var problems []string
	tiers := make([]domain.PricingTier, 0, len(doc.Tiers))
	for i, def := range doc.Tiers {
		label := strings.TrimSpace(def.ID)
		if label == "" {
			label = fmt.Sprintf("#%d", i)
		}
		tier, errs := def.toTier(label)
		problems = append(problems, errs...)
		tiers = append(tiers, tier)
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCatalog, strings.Join(problems, "; "))
	}
	return NewTierCatalog(doc.Version, tiers)
}

func (d tierDefinition) toTier(label string) (domain.PricingTier, []string) {
	var problems []string
	amount := func(field, raw string, required bool) *decimal.Decimal {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			if required {
				problems = append(problems, fmt.Sprintf("%s.%s is required", label, field))
			}
			return nil
		}
		value, err := decimal.NewFromString(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s.%s is not a decimal: %q", label, field, raw))
			return nil
		}
		return &value
	}

	tier := domain.PricingTier{
		ID:                  domain.TierID(strings.TrimSpace(d.ID)),
		Name:                strings.TrimSpace(d.Name),
		MinMessages:         d.MinMessages,
		IncludedMessages:    d.IncludedMessages,
		MaxMessages:         d.MaxMessages,
		IncludedLocations:   d.IncludedLocations,
		MaxLocations:        d.MaxLocations,
		IncludedDepartments: d.IncludedDepartments,
		MaxDepartments:      d.MaxDepartments,
	}
	if v := amount("basePrice", d.BasePrice, true); v != nil {
		tier.BasePrice = *v
	}
	if v := amount("messageRate", d.MessageRate, true); v != nil {
		tier.MessageRate = *v
	}
	if v := amount("extraDepartmentPrice", d.ExtraDepartmentPrice, true); v != nil {
		tier.ExtraDepartmentPrice = *v
	}
	tier.ExtraLocationPrice = amount("extraLocationPrice", d.ExtraLocationPrice, false)
	tier.LocationMultiplier = amount("locationMultiplier", d.LocationMultiplier, false)
	return tier, problems
}

// NewTierCatalog validates the tiers and builds the id index. Tiers must already be in
// ascending price order; the catalog never reorders them.
func NewTierCatalog(version string, tiers []domain.PricingTier) (*TierCatalog, error) {
	if problems := validateTiers(tiers); len(problems) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCatalog, strings.Join(problems, "; "))
	}

	catalog := &TierCatalog{
		version: strings.TrimSpace(version),
		tiers:   make([]domain.PricingTier, len(tiers)),
		byID:    make(map[domain.TierID]int, len(tiers)),
	}
	for i, tier := range tiers {
		catalog.tiers[i] = cloneTier(tier)
		catalog.byID[tier.ID] = i
	}
	return catalog, nil
}

func validateTiers(tiers []domain.PricingTier) []string {
	if len(tiers) < 2 {
		return []string{"at least two tiers are required"}
	}

	var problems []string
	seen := make(map[domain.TierID]struct{}, len(tiers))
	for i, tier := range tiers {
		label := string(tier.ID)
		if label == "" {
			label = fmt.Sprintf("#%d", i)
			problems = append(problems, fmt.Sprintf("%s.id is required", label))
		} else if _, dup := seen[tier.ID]; dup {
			problems = append(problems, fmt.Sprintf("%s.id is duplicated", label))
		}
		seen[tier.ID] = struct{}{}

		if tier.Name == "" {
			problems = append(problems, fmt.Sprintf("%s.name is required", label))
		}
		if tier.BasePrice.IsNegative() || tier.MessageRate.IsNegative() || tier.ExtraDepartmentPrice.IsNegative() {
			problems = append(problems, fmt.Sprintf("%s has a negative price or rate", label))
		}
		if tier.IncludedMessages < 0 || tier.IncludedMessages > tier.MaxMessages {
			problems = append(problems, fmt.Sprintf("%s.includedMessages must be within [0, maxMessages]", label))
		}
		if tier.MinMessages != nil && (*tier.MinMessages < 0 || *tier.MinMessages > tier.MaxMessages) {
			problems = append(problems, fmt.Sprintf("%s.minMessages must be within [0, maxMessages]", label))
		}
		if tier.IncludedLocations < 1 || tier.IncludedLocations > tier.MaxLocations {
			problems = append(problems, fmt.Sprintf("%s.includedLocations must be within [1, maxLocations]", label))
		}
		if tier.IncludedDepartments < 1 || tier.IncludedDepartments > tier.MaxDepartments {
			problems = append(problems, fmt.Sprintf("%s.includedDepartments must be within [1, maxDepartments]", label))
		}

		switch {
		case tier.ExtraLocationPrice != nil && tier.LocationMultiplier != nil:
			problems = append(problems, fmt.Sprintf("%s defines both extraLocationPrice and locationMultiplier", label))
		case tier.ExtraLocationPrice == nil && tier.LocationMultiplier == nil:
			problems = append(problems, fmt.Sprintf("%s defines neither extraLocationPrice nor locationMultiplier", label))
		case tier.ExtraLocationPrice != nil && tier.ExtraLocationPrice.IsNegative():
			problems = append(problems, fmt.Sprintf("%s.extraLocationPrice must not be negative", label))
		case tier.LocationMultiplier != nil && tier.LocationMultiplier.IsNegative():
			problems = append(problems, fmt.Sprintf("%s.locationMultiplier must not be negative", label))
		}

		if i == 0 {
			continue
		}
		prev := tiers[i-1]
		if !tier.BasePrice.GreaterThan(prev.BasePrice) {
			problems = append(problems, fmt.Sprintf("%s.basePrice must be greater than %s.basePrice", label, prev.ID))
		}
		if tier.IncludedMessages < prev.IncludedMessages ||
			tier.IncludedLocations < prev.IncludedLocations ||
			tier.IncludedDepartments < prev.IncludedDepartments {
			problems = append(problems, fmt.Sprintf("%s has a lower included quota than %s", label, prev.ID))
		}
	}
	return problems
}

// Version returns the catalog revision label.
func (c *TierCatalog) Version() string {
	return c.version
}

// ListTiers returns the tiers in ascending price order.
func (c *TierCatalog) ListTiers() []domain.PricingTier {
	out := make([]domain.PricingTier, len(c.tiers))
	for i, tier := range c.tiers {
		out[i] = cloneTier(tier)
	}
	return out
}

// GetTier looks a tier up by id.
func (c *TierCatalog) GetTier(id domain.TierID) (domain.PricingTier, error) {
	idx, ok := c.index(id)
	if !ok {
		return domain.PricingTier{}, &TierError{TierID: id, Err: ErrTierNotFound}
	}
	return cloneTier(c.tiers[idx]), nil
}

func (c *TierCatalog) index(id domain.TierID) (int, bool) {
	idx, ok := c.byID[domain.TierID(strings.TrimSpace(string(id)))]
	return idx, ok
}

func cloneTier(t domain.PricingTier) domain.PricingTier {
	if t.MinMessages != nil {
		v := *t.MinMessages
		t.MinMessages = &v
	}
	if t.ExtraLocationPrice != nil {
		v := *t.ExtraLocationPrice
		t.ExtraLocationPrice = &v
	}
	if t.LocationMultiplier != nil {
		v := *t.LocationMultiplier
		t.LocationMultiplier = &v
	}
	return t
}
