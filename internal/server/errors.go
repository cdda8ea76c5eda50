package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	bookingdomain "github.com/smallbiznis/staybook/internal/booking/domain"
	"github.com/smallbiznis/staybook/internal/channelmanager"
	"github.com/smallbiznis/staybook/internal/idempotency"
	paymentdomain "github.com/smallbiznis/staybook/internal/payment/domain"
	"github.com/smallbiznis/staybook/internal/writerlock"
)

// Error codes returned in the body of every failed request.
const (
	CodeWriterLockViolation     = "WRITER_LOCK_VIOLATION"
	CodeModeNotConfigured       = "OPERATION_MODE_NOT_CONFIGURED"
	CodeIdempotencyKeyRequired  = "IDEMPOTENCY_KEY_REQUIRED"
	CodeIdempotencyKeyInvalid   = "IDEMPOTENCY_KEY_INVALID"
	CodeIdempotencyKeyReused    = "IDEMPOTENCY_KEY_REUSED"
	CodeIdempotencyInProgress   = "IDEMPOTENCY_REQUEST_IN_PROGRESS"
	CodeIdempotencyUnavailable  = "IDEMPOTENCY_STORE_UNAVAILABLE"
	CodeValidation              = "VALIDATION_ERROR"
	CodeBrandRuleViolation      = "BRAND_RULE_VIOLATION"
	CodeInvalidBrand            = "INVALID_BRAND"
	CodeAvailabilityChanged     = "AVAILABILITY_CHANGED"
	CodeUpstreamUnavailable     = "UPSTREAM_UNAVAILABLE"
	CodeUpstreamTimeout         = "UPSTREAM_TIMEOUT"
	CodeWebhookUnauthorized     = "WEBHOOK_UNAUTHORIZED"
	CodeInvalidPayload          = "INVALID_PAYLOAD"
	CodeBookingNotFound         = "BOOKING_NOT_FOUND"
	CodePaymentNotFound         = "PAYMENT_NOT_FOUND"
	CodePaymentProviderNotFound = "PAYMENT_PROVIDER_NOT_FOUND"
	CodePaymentAmountMismatch   = "PAYMENT_AMOUNT_MISMATCH"
	CodeBookingAlreadyPaid      = "BOOKING_ALREADY_PAID"
	CodeRateLimited             = "RATE_LIMITED"
	CodeInternal                = "INTERNAL_ERROR"
)

// Error types feed the request logger; routine ones are logged at debug.
const (
	errorTypeAuthority      = "authority"
	errorTypeIdempotency    = "idempotency"
	errorTypeValidation     = "validation_error"
	errorTypeBusinessRule   = "business_rule"
	errorTypeRace           = "race"
	errorTypeUpstream       = "upstream"
	errorTypeAuthentication = "authentication"
	errorTypeNotFound       = "not_found"
	errorTypeRateLimited    = "rate_limited"
	errorTypeInternal       = "internal"
)

var (
	ErrInvalidRequest        = errors.New("invalid_request")
	errIdempotencyKeyReused  = errors.New("idempotency_key_reused")
	errIdempotencyInProgress = errors.New("idempotency_request_in_progress")
	errRateLimited           = errors.New("rate_limited")
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`

	Brand            string `json:"brand,omitempty"`
	Mode             string `json:"mode,omitempty"`
	DesignatedWriter string `json:"designatedWriter,omitempty"`
	RejectedBy       string `json:"rejectedBy,omitempty"`
}

type mappedError struct {
	status    int
	errorType string
	body      errorResponse
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		renderError(c, lastErr.Err)
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func renderError(c *gin.Context, err error) {
	m := mapError(err)
	c.Header("Content-Type", "application/json")
	c.AbortWithStatusJSON(m.status, m.body)
}

func invalidRequestError(message string) error {
	return &bookingdomain.ValidationError{Fields: []bookingdomain.FieldError{
		{Field: "request", Code: "invalid_request", Message: message},
	}}
}

func classifyErrorForLog(err error) (string, string) {
	m := mapError(err)
	return m.errorType, m.body.Code
}

func mapError(err error) mappedError {
	var violation *writerlock.ViolationError
	if errors.As(err, &violation) {
		return mappedError{
			status:    http.StatusConflict,
			errorType: errorTypeAuthority,
			body: errorResponse{
				Code:             CodeWriterLockViolation,
				Message:          violation.Error(),
				Brand:            violation.Brand.String(),
				Mode:             string(violation.Mode),
				DesignatedWriter: string(violation.DesignatedWriter),
				RejectedBy:       string(violation.RejectedBy),
			},
		}
	}

	var verr *bookingdomain.ValidationError
	if errors.As(err, &verr) {
		fields := make([]ValidationError, 0, len(verr.Fields))
		for _, f := range verr.Fields {
			fields = append(fields, ValidationError{Field: f.Field, Code: f.Code, Message: f.Message})
		}
		return newMapped(http.StatusBadRequest, errorTypeValidation, CodeValidation, "validation error", fields...)
	}

	var rule *bookingdomain.RuleViolationError
	if errors.As(err, &rule) {
		return newMapped(http.StatusBadRequest, errorTypeBusinessRule, CodeBrandRuleViolation, rule.Error(),
			ValidationError{Field: "checkOut", Code: "nights_out_of_range", Message: rule.Error()})
	}

	switch {
	case errors.Is(err, writerlock.ErrModeNotConfigured):
		return newMapped(http.StatusServiceUnavailable, errorTypeInternal, CodeModeNotConfigured, "operation mode is not configured for this brand")

	case errors.Is(err, idempotency.ErrKeyRequired):
		return newMapped(http.StatusBadRequest, errorTypeIdempotency, CodeIdempotencyKeyRequired, "Idempotency-Key header is required")
	case errors.Is(err, idempotency.ErrKeyInvalid):
		return newMapped(http.StatusBadRequest, errorTypeIdempotency, CodeIdempotencyKeyInvalid,
			"Idempotency-Key must be 8 to 255 printable ASCII characters")
	case errors.Is(err, errIdempotencyKeyReused), errors.Is(err, bookingdomain.ErrKeyReused):
		return newMapped(http.StatusUnprocessableEntity, errorTypeIdempotency, CodeIdempotencyKeyReused,
			"Idempotency-Key was already used with a different request body")
	case errors.Is(err, errIdempotencyInProgress):
		return newMapped(http.StatusConflict, errorTypeIdempotency, CodeIdempotencyInProgress,
			"a request with this Idempotency-Key is still being processed")
	case errors.Is(err, idempotency.ErrStoreUnavailable):
		return newMapped(http.StatusServiceUnavailable, errorTypeUpstream, CodeIdempotencyUnavailable, "idempotency store unavailable")
	case errors.Is(err, idempotency.ErrInvalidBody):
		return newMapped(http.StatusBadRequest, errorTypeValidation, CodeValidation, "validation error",
			ValidationError{Field: "request", Code: "invalid_json", Message: "request body must be a single JSON document"})

	case errors.Is(err, bookingdomain.ErrInvalidBrand):
		return newMapped(http.StatusBadRequest, errorTypeValidation, CodeInvalidBrand, "brand must be one of COBNB, COLIVE")
	case errors.Is(err, bookingdomain.ErrValidation), errors.Is(err, ErrInvalidRequest):
		return newMapped(http.StatusBadRequest, errorTypeValidation, CodeValidation, "validation error")
	case errors.Is(err, bookingdomain.ErrAvailabilityChanged), errors.Is(err, channelmanager.ErrRoomTaken):
		return newMapped(http.StatusConflict, errorTypeRace, CodeAvailabilityChanged, "the room is no longer available for these dates")
	case errors.Is(err, channelmanager.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return newMapped(http.StatusGatewayTimeout, errorTypeUpstream, CodeUpstreamTimeout, "channel manager timed out")
	case errors.Is(err, channelmanager.ErrUnavailable):
		return newMapped(http.StatusBadGateway, errorTypeUpstream, CodeUpstreamUnavailable, "channel manager unavailable")
	case errors.Is(err, bookingdomain.ErrNotFound):
		return newMapped(http.StatusNotFound, errorTypeNotFound, CodeBookingNotFound, "booking not found")

	case errors.Is(err, paymentdomain.ErrUnauthorized):
		return newMapped(http.StatusUnauthorized, errorTypeAuthentication, CodeWebhookUnauthorized, "unauthorized")
	case errors.Is(err, paymentdomain.ErrInvalidPayload):
		return newMapped(http.StatusBadRequest, errorTypeValidation, CodeInvalidPayload, "invalid webhook payload")
	case errors.Is(err, paymentdomain.ErrInvalidRequest):
		return newMapped(http.StatusBadRequest, errorTypeValidation, CodeValidation, err.Error())
	case errors.Is(err, paymentdomain.ErrLedgerEntryNotFound):
		return newMapped(http.StatusNotFound, errorTypeNotFound, CodePaymentNotFound, "payment not found")
	case errors.Is(err, paymentdomain.ErrProviderNotFound):
		return newMapped(http.StatusNotFound, errorTypeNotFound, CodePaymentProviderNotFound, "payment provider not found")
	case errors.Is(err, paymentdomain.ErrAmountMismatch):
		return newMapped(http.StatusUnprocessableEntity, errorTypeBusinessRule, CodePaymentAmountMismatch,
			"reported amount does not match the ledger")
	case errors.Is(err, paymentdomain.ErrAlreadyPaid):
		return newMapped(http.StatusConflict, errorTypeBusinessRule, CodeBookingAlreadyPaid, "booking is already paid")

	case errors.Is(err, errRateLimited):
		return newMapped(http.StatusTooManyRequests, errorTypeRateLimited, CodeRateLimited, "too many requests")

	default:
		return newMapped(http.StatusInternalServerError, errorTypeInternal, CodeInternal, "internal server error")
	}
}

func newMapped(status int, errorType, code, message string, fields ...ValidationError) mappedError {
	return mappedError{
		status:    status,
		errorType: errorType,
		body:      errorResponse{Code: code, Message: message, Errors: fields},
	}
}
