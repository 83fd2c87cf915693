package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrProviderFailure   = errors.New("provider failure")
	ErrHostMisconfigured = errors.New("asset host misconfigured")
)
