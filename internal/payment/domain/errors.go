package domain

import "errors"

var (
	ErrInvalidUserID      = errors.New("invalid_user_id")
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrInvalidOrderID     = errors.New("invalid_order_id")
	ErrInvalidPaymentID   = errors.New("invalid_payment_id")
	ErrInvalidPagination  = errors.New("invalid_pagination")
	ErrInvalidSignature   = errors.New("invalid_signature")
	ErrInvalidProvider    = errors.New("invalid_provider")
	ErrInvalidPayload     = errors.New("invalid_payload")
	ErrInvalidEvent       = errors.New("invalid_event")
	ErrInvalidConfig      = errors.New("invalid_provider_config")
	ErrInvalidTransition  = errors.New("invalid_status_transition")
	ErrProviderNotFound   = errors.New("provider_not_found")
	ErrNotFound           = errors.New("payment_not_found")
	ErrGatewayUnavailable = errors.New("gateway_unavailable")
	ErrGatewayRejected    = errors.New("gateway_rejected")
	ErrStorage            = errors.New("storage_error")
	ErrInconsistent       = errors.New("payment_inconsistent")
	ErrRateLimited        = errors.New("rate_limited")

	ErrEventIgnored          = errors.New("event_ignored")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
)
