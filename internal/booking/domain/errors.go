package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/smallbiznis/staybook/internal/brand"
)

var (
	ErrValidation          = errors.New("validation_error")
	ErrBrandRule           = errors.New("brand_rule_violation")
	ErrInvalidBrand        = brand.ErrUnknownBrand
	ErrAvailabilityChanged = errors.New("availability_changed")
	ErrNotFound            = errors.New("booking_not_found")
	ErrKeyReused           = errors.New("idempotency_key_reused")
)

type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "invalid booking request: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func (e *ValidationError) Add(field, code, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Code: code, Message: message})
}

func (e *ValidationError) Empty() bool { return len(e.Fields) == 0 }

// RuleViolationError is returned when the stay length falls outside the
// brand's inclusive night range.
type RuleViolationError struct {
	Brand     brand.Brand
	Nights    int
	MinNights int
	MaxNights int
}

func (e *RuleViolationError) Error() string {
	return fmt.Sprintf("%s bookings must be between %d and %d nights, got %d",
		e.Brand, e.MinNights, e.MaxNights, e.Nights)
}

func (e *RuleViolationError) Unwrap() error { return ErrBrandRule }
