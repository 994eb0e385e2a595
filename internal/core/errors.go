package core

import "errors"

var (
	ErrValidation            = errors.New("validation failed")
	ErrInvalidSignature      = errors.New("invalid webhook signature")
	ErrMalformedPayload      = errors.New("malformed webhook payload")
	ErrOrderNotFound         = errors.New("order not found")
	ErrSubscriberNotFound    = errors.New("subscriber not found")
	ErrForbidden             = errors.New("forbidden")
	ErrProviderNotConfigured = errors.New("payment provider not configured")
)
