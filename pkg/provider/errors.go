package provider

import "errors"

var (
	ErrInvalidDestination  = errors.New("invalid destination address")
	ErrProviderUnavailable = errors.New("provider is not configured")
	ErrEmptyBody           = errors.New("message body is empty")
)
