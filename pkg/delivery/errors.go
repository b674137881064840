package delivery

import "errors"

var (
	// Validation.
	ErrMissingID            = errors.New("notification id is required")
	ErrUnknownChannel       = errors.New("notification channel is unknown")
	ErrMissingRecipient     = errors.New("notification recipient is required")
	ErrMissingContent       = errors.New("notification requires content or a template reference")
	ErrInvalidMaxRetries    = errors.New("max retries must not be negative")
	ErrRetryCountExceedsMax = errors.New("retry count exceeds max retries")
	ErrInvalidDestination   = errors.New("recipient address is not valid for the channel")

	// Processing.
	ErrNotificationNotFound = errors.New("notification not found")
	ErrAttemptNotFound      = errors.New("delivery attempt not found")
	ErrInvalidState         = errors.New("notification is not in a processable state")
	ErrDeliveryInFlight     = errors.New("delivery already in flight for this notification")
	ErrRateLimitExceeded    = errors.New("rate limit exceeded for recipient")
	ErrRetriesExhausted     = errors.New("notification has no retries left")
	ErrDeliveryFailed       = errors.New("delivery failed")
	ErrStorageRequired      = errors.New("storage is required")
	ErrDispatchersRequired  = errors.New("dispatcher registry is required")

	// Bulk.
	ErrEmptyGroup   = errors.New("bulk group contains no notifications")
	ErrGroupTooBig  = errors.New("bulk group exceeds the configured maximum")
	ErrMissingGroup = errors.New("bulk group id is required")
)

// Retry reason strings surfaced on the notification while it waits.
const (
	ReasonRateLimited        = "rate limited"
	ReasonProvidersExhausted = "all providers failed"
	ReasonPermanentRejection = "rejected permanently by providers"
	ReasonTemplateInvalid    = "template rendering failed"
	ReasonRetriesExhausted   = "retries exhausted"
)
