package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/Anthobetto/UNMI-sub001/internal/domain"
	"github.com/Anthobetto/UNMI-sub001/internal/platform/httpx"
	"github.com/Anthobetto/UNMI-sub001/internal/services"
)

const maxPricingRequestBody = 4 * 1024

// PricingHandlers exposes the public pricing calculator endpoints.
type PricingHandlers struct {
	pricing services.PricingService
}

// NewPricingHandlers constructs pricing handlers.
func NewPricingHandlers(pricing services.PricingService) *PricingHandlers {
	return &PricingHandlers{pricing: pricing}
}

// Routes registers pricing endpoints under the provided router.
func (h *PricingHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/tiers", h.listTiers)
	r.Get("/tiers/{tierId}", h.getTier)
	r.Post("/quote", h.quote)
	r.Post("/bundle-discount", h.bundleDiscount)
	r.Get("/volume-discount", h.volumeDiscount)
	r.Post("/recommendation", h.recommend)
	r.Post("/recommendation/utilization", h.recommendFromUtilization)
}

type messagesPayload struct {
	Included int    `json:"included"`
	Max      int    `json:"max"`
	Min      *int   `json:"min,omitempty"`
	Rate     string `json:"rate"`
}

type locationsPayload struct {
	Included   int     `json:"included"`
	Max        int     `json:"max"`
	Pricing    string  `json:"pricing"`
	ExtraPrice *string `json:"extraPrice,omitempty"`
	Multiplier *string `json:"multiplier,omitempty"`
}

type departmentsPayload struct {
	Included   int    `json:"included"`
	Max        int    `json:"max"`
	ExtraPrice string `json:"extraPrice"`
}

type tierPayload struct {
	ID                  string             `json:"id"`
	Name                string             `json:"name"`
	BasePrice           string             `json:"basePrice"`
	MonthlyMessageLimit int                `json:"monthlyMessageLimit"`
	Messages            messagesPayload    `json:"messages"`
	Locations           locationsPayload   `json:"locations"`
	Departments         departmentsPayload `json:"departments"`
}

type quoteRequest struct {
	TierID        string `json:"tierId" validate:"required"`
	DailyMessages int    `json:"dailyMessages" validate:"gte=0"`
	Locations     int    `json:"locations" validate:"gte=0"`
	Departments   int    `json:"departments" validate:"gte=0"`
}

type quoteResponse struct {
	TierID           string `json:"tierId"`
	DailyMessages    int    `json:"dailyMessages"`
	Locations        int    `json:"locations"`
	Departments      int    `json:"departments"`
	BasePrice        string `json:"basePrice"`
	MessagesCost     string `json:"messagesCost"`
	LocationsCost    string `json:"locationsCost"`
	DepartmentsCost  string `json:"departmentsCost"`
	LocationDiscount string `json:"locationDiscount"`
	TotalMonthly     string `json:"totalMonthly"`
	TotalYearly      string `json:"totalYearly"`
}

type bundleDiscountRequest struct {
	TierID              string `json:"tierId" validate:"required"`
	DailyMessages       int    `json:"dailyMessages" validate:"gte=0"`
	CurrentLocations    int    `json:"currentLocations"`
	AdditionalLocations int    `json:"additionalLocations" validate:"gte=0"`
	Departments         int    `json:"departments" validate:"gte=0"`
}

type bundleDiscountResponse struct {
	CurrentPrice string `json:"currentPrice"`
	NewPrice     string `json:"newPrice"`
	LinearPrice  string `json:"linearPrice"`
	Discount     string `json:"discount"`
	PercentSaved string `json:"percentSaved"`
}

type volumeDiscountResponse struct {
	Locations int `json:"locations"`
	Percent   int `json:"percent"`
}

type recommendationRequest struct {
	DailyMessages int `json:"dailyMessages" validate:"gte=0"`
	Locations     int `json:"locations" validate:"gte=0"`
	Departments   int `json:"departments" validate:"gte=0"`
}

type utilizationRequest struct {
	CurrentTierID string `json:"currentTierId" validate:"required"`
	MessagesUsed  int    `json:"messagesUsed"`
	MessageLimit  int    `json:"messageLimit"`
}

type recommendationResponse struct {
	Recommended bool         `json:"recommended"`
	Tier        *tierPayload `json:"tier,omitempty"`
}

func (h *PricingHandlers) listTiers(w http.ResponseWriter, r *http.Request) {
	tiers := h.pricing.ListTiers()
	items := make([]tierPayload, 0, len(tiers))
	for _, tier := range tiers {
		items = append(items, newTierPayload(tier))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items})
}

func (h *PricingHandlers) getTier(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "tierId"))
	tier, err := h.pricing.GetTier(domain.TierID(id))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newTierPayload(tier))
}

func (h *PricingHandlers) quote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if !decodeRequest(w, r, maxPricingRequestBody, &req) {
		return
	}
	calc, err := h.pricing.CalculateMonthly(domain.TierID(strings.TrimSpace(req.TierID)), req.DailyMessages, req.Locations, req.Departments)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newQuoteResponse(calc))
}

func (h *PricingHandlers) bundleDiscount(w http.ResponseWriter, r *http.Request) {
	var req bundleDiscountRequest
	if !decodeRequest(w, r, maxPricingRequestBody, &req) {
		return
	}
	result, err := h.pricing.CalculateBundleDiscount(services.BundleDiscountCommand{
		TierID:              domain.TierID(strings.TrimSpace(req.TierID)),
		DailyMessages:       req.DailyMessages,
		CurrentLocations:    req.CurrentLocations,
		AdditionalLocations: req.AdditionalLocations,
		Departments:         req.Departments,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, bundleDiscountResponse{
		CurrentPrice: money(result.CurrentPrice),
		NewPrice:     money(result.NewPrice),
		LinearPrice:  money(result.LinearPrice),
		Discount:     money(result.Discount),
		PercentSaved: result.PercentSaved.String(),
	})
}

func (h *PricingHandlers) volumeDiscount(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("locations"))
	locations, err := strconv.Atoi(raw)
	if err != nil || locations < 0 {
		httpx.WriteError(r.Context(), w, httpx.NewError("validation_failed", "locations must be a non-negative integer", http.StatusBadRequest).
			WithDetails(map[string]any{"fields": map[string]any{"locations": "must be a non-negative integer"}}))
		return
	}
	writeJSONResponse(w, http.StatusOK, volumeDiscountResponse{
		Locations: locations,
		Percent:   services.CalculateVolumeDiscountPercent(locations),
	})
}

func (h *PricingHandlers) recommend(w http.ResponseWriter, r *http.Request) {
	var req recommendationRequest
	if !decodeRequest(w, r, maxPricingRequestBody, &req) {
		return
	}
	tier := newTierPayload(h.pricing.RecommendTier(services.UsageProfile{
		DailyMessages: req.DailyMessages,
		Locations:     req.Locations,
		Departments:   req.Departments,
	}))
	writeJSONResponse(w, http.StatusOK, recommendationResponse{Recommended: true, Tier: &tier})
}

func (h *PricingHandlers) recommendFromUtilization(w http.ResponseWriter, r *http.Request) {
	var req utilizationRequest
	if !decodeRequest(w, r, maxPricingRequestBody, &req) {
		return
	}
	tier, ok, err := h.pricing.RecommendTierFromUtilization(domain.TierID(strings.TrimSpace(req.CurrentTierID)), req.MessagesUsed, req.MessageLimit)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	resp := recommendationResponse{Recommended: ok}
	if ok {
		payload := newTierPayload(tier)
		resp.Tier = &payload
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func newTierPayload(tier domain.PricingTier) tierPayload {
	payload := tierPayload{
		ID:                  string(tier.ID),
		Name:                tier.Name,
		BasePrice:           money(tier.BasePrice),
		MonthlyMessageLimit: tier.MonthlyMessageLimit(),
		Messages: messagesPayload{
			Included: tier.IncludedMessages,
			Max:      tier.MaxMessages,
			Rate:     tier.MessageRate.String(),
		},
		Locations: locationsPayload{
			Included: tier.IncludedLocations,
			Max:      tier.MaxLocations,
			Pricing:  string(tier.LocationPricing()),
		},
		Departments: departmentsPayload{
			Included:   tier.IncludedDepartments,
			Max:        tier.MaxDepartments,
			ExtraPrice: money(tier.ExtraDepartmentPrice),
		},
	}
	if tier.MinMessages != nil {
		minimum := *tier.MinMessages
		payload.Messages.Min = &minimum
	}
	if tier.ExtraLocationPrice != nil {
		price := money(*tier.ExtraLocationPrice)
		payload.Locations.ExtraPrice = &price
	}
	if tier.LocationMultiplier != nil {
		multiplier := tier.LocationMultiplier.String()
		payload.Locations.Multiplier = &multiplier
	}
	return payload
}

func newQuoteResponse(calc domain.PricingCalculation) quoteResponse {
	return quoteResponse{
		TierID:           string(calc.Tier.ID),
		DailyMessages:    calc.DailyMessages,
		Locations:        calc.Locations,
		Departments:      calc.Departments,
		BasePrice:        money(calc.BasePrice),
		MessagesCost:     money(calc.MessagesCost),
		LocationsCost:    money(calc.LocationsCost),
		DepartmentsCost:  money(calc.DepartmentsCost),
		LocationDiscount: money(calc.LocationDiscount),
		TotalMonthly:     money(calc.TotalMonthly),
		TotalYearly:      money(calc.TotalYearly),
	}
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}
