package domain

import "errors"

var (
	ErrLedgerEntryNotFound = errors.New("payment_not_found")
	ErrAmountMismatch      = errors.New("payment_amount_mismatch")
	ErrInvalidPayload      = errors.New("invalid_payload")
	ErrInvalidRequest      = errors.New("invalid_payment_request")
	ErrUnauthorized        = errors.New("webhook_unauthorized")
	ErrProviderNotFound    = errors.New("payment_provider_not_found")
	ErrAlreadyPaid         = errors.New("booking_already_paid")
)
