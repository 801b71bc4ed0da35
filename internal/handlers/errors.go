package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/Anthobetto/UNMI-sub001/internal/payments"
	"github.com/Anthobetto/UNMI-sub001/internal/platform/httpx"
	"github.com/Anthobetto/UNMI-sub001/internal/services"
)

var templateErrorCodes = []struct {
	kind error
	code string
}{
	{services.ErrContentTooLong, "content_too_long"},
	{services.ErrDuplicateVariable, "duplicate_variable"},
	{services.ErrUndeclaredVariable, "undeclared_variable"},
	{services.ErrUnusedDeclaration, "unused_declaration"},
	{services.ErrVariableOrderMismatch, "variable_order_mismatch"},
}

// writeServiceError renders service failures with a stable code and structured details.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	httpx.WriteError(ctx, w, serviceError(err))
}

func serviceError(err error) httpx.Error {
	var (
		tierErr     *services.TierError
		inputErr    *services.InputError
		priceErr    *services.PriceNotConfiguredError
		sessionErr  *services.CheckoutSessionError
		templateErr *services.TemplateValidationError
	)

	switch {
	case errors.As(err, &tierErr):
		details := map[string]any{"tierId": string(tierErr.TierID)}
		if errors.Is(err, services.ErrTierNotFound) {
			return httpx.NewError("tier_not_found", err.Error(), http.StatusNotFound).WithDetails(details)
		}
		return httpx.NewError("invalid_tier", err.Error(), http.StatusBadRequest).WithDetails(details)
	case errors.As(err, &inputErr):
		code := "invalid_usage"
		if errors.Is(err, services.ErrDivisionByZero) {
			code = "division_by_zero"
		}
		return httpx.NewError(code, err.Error(), http.StatusBadRequest).
			WithDetails(map[string]any{"field": inputErr.Field, "value": inputErr.Value})
	case errors.As(err, &priceErr):
		return httpx.NewError("price_not_configured", err.Error(), http.StatusUnprocessableEntity).
			WithDetails(map[string]any{"planTypes": priceErr.PlanTypes})
	case errors.As(err, &sessionErr):
		return httpx.NewError("checkout_session_failed", sessionErr.Error(), http.StatusBadGateway).
			WithDetails(map[string]any{"cause": string(sessionErr.Cause)})
	case errors.As(err, &templateErr):
		return templateValidationError(templateErr)
	case errors.Is(err, services.ErrCheckoutInvalidInput), errors.Is(err, services.ErrTemplateInvalidInput):
		return httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest)
	case errors.Is(err, services.ErrTemplateNotFound):
		return httpx.NewError("template_not_found", "template not found", http.StatusNotFound)
	case errors.Is(err, services.ErrTemplateRepositoryUnavailable):
		return httpx.NewError("template_store_unavailable", "template storage unavailable", http.StatusServiceUnavailable)
	case errors.Is(err, payments.ErrProviderRejected):
		return httpx.NewError("payment_provider_rejected", "payment provider rejected the request", http.StatusBadGateway)
	case errors.Is(err, payments.ErrProviderUnavailable):
		return httpx.NewError("payment_provider_unavailable", "payment provider unavailable", http.StatusBadGateway)
	case errors.Is(err, context.DeadlineExceeded):
		return httpx.NewError("deadline_exceeded", "request timed out", http.StatusGatewayTimeout)
	default:
		return httpx.NewError("internal_error", "failed to process request", http.StatusInternalServerError)
	}
}

func templateValidationError(err *services.TemplateValidationError) httpx.Error {
	code := "template_invalid"
	for _, candidate := range templateErrorCodes {
		if errors.Is(err, candidate.kind) {
			code = candidate.code
			break
		}
	}
	details := map[string]any{}
	if len(err.Variables) > 0 {
		details["variables"] = err.Variables
	}
	if errors.Is(err, services.ErrContentTooLong) {
		details["length"] = err.Length
		details["limit"] = err.Limit
	}
	return httpx.NewError(code, err.Error(), http.StatusUnprocessableEntity).WithDetails(details)
}
