package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Anthobetto/UNMI-sub001/internal/domain"
)

var (
	// ErrInvalidTier indicates a pricing request referenced a tier id the catalog does not define.
	ErrInvalidTier = errors.New("pricing: invalid tier")
	// ErrTierNotFound indicates a catalog lookup for an unknown tier id.
	ErrTierNotFound = errors.New("tier catalog: tier not found")
	// ErrInvalidCatalog indicates the catalog definition violates an authoring rule.
	ErrInvalidCatalog = errors.New("tier catalog: invalid definition")
	// ErrDivisionByZero indicates a degenerate input that would divide by zero.
	ErrDivisionByZero = errors.New("pricing: division by zero")
	// ErrInvalidUsage indicates a usage figure that cannot be evaluated.
	ErrInvalidUsage = errors.New("pricing: invalid usage")
	// ErrPriceNotConfigured indicates no provider price reference exists for a plan.
	ErrPriceNotConfigured = errors.New("checkout: price not configured")
	// ErrCheckoutInvalidInput indicates the checkout request itself is malformed.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutSessionCreationFailed indicates the payment provider did not produce a session.
	ErrCheckoutSessionCreationFailed = errors.New("checkout: session creation failed")

	// ErrContentTooLong indicates a template body longer than the platform limit.
	ErrContentTooLong = errors.New("template: content too long")
	// ErrDuplicateVariable indicates a placeholder used more than once.
	ErrDuplicateVariable = errors.New("template: duplicate variable")
	// ErrUndeclaredVariable indicates a placeholder missing from the declared list.
	ErrUndeclaredVariable = errors.New("template: undeclared variable")
	// ErrUnusedDeclaration indicates a declared variable that never appears in the body.
	ErrUnusedDeclaration = errors.New("template: unused declaration")
	// ErrVariableOrderMismatch indicates declared variables listed in a different order than the body uses them.
	ErrVariableOrderMismatch = errors.New("template: variable order mismatch")
)

// TierError carries the tier id that failed a lookup.
type TierError struct {
	TierID domain.TierID
	Err    error
}

func (e *TierError) Error() string {
	return fmt.Sprintf("%v: %q", e.Err, string(e.TierID))
}

func (e *TierError) Unwrap() error { return e.Err }

// InputError names the offending field of a numeric input.
type InputError struct {
	Field string
	Value int
	Err   error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%v: %s must be positive, got %d", e.Err, e.Field, e.Value)
}

func (e *InputError) Unwrap() error { return e.Err }

// PriceNotConfiguredError lists plan keys that have no provider price reference.
type PriceNotConfiguredError struct {
	PlanTypes []string
}

func (e *PriceNotConfiguredError) Error() string {
	return fmt.Sprintf("%v for plan %s", ErrPriceNotConfigured, strings.Join(e.PlanTypes, ", "))
}

func (e *PriceNotConfiguredError) Unwrap() error { return ErrPriceNotConfigured }

// CheckoutFailureCause discriminates provider failures.
type CheckoutFailureCause string

const (
	// CheckoutFailureNetwork means the provider could not be reached.
	CheckoutFailureNetwork CheckoutFailureCause = "network"
	// CheckoutFailureRejected means the provider answered but did not create a usable session.
	CheckoutFailureRejected CheckoutFailureCause = "rejected"
)

// CheckoutSessionError is returned when session creation fails. Its message never includes
// provider output.
type CheckoutSessionError struct {
	Cause CheckoutFailureCause
}

func (e *CheckoutSessionError) Error() string {
	return "checkout: unable to create checkout session, please try again later"
}

func (e *CheckoutSessionError) Unwrap() error { return ErrCheckoutSessionCreationFailed }

// TemplateValidationError describes the first failed template check.
type TemplateValidationError struct {
	Kind      error
	Variables []string
	Length    int
	Limit     int
}

func (e *TemplateValidationError) Error() string {
	if errors.Is(e.Kind, ErrContentTooLong) {
		return fmt.Sprintf("%v: %d characters exceeds limit of %d", e.Kind, e.Length, e.Limit)
	}
	if len(e.Variables) == 0 {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%v: %s", e.Kind, strings.Join(e.Variables, ", "))
}

func (e *TemplateValidationError) Unwrap() error { return e.Kind }
