package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrRateLimited      = errors.New("rate limited")
	ErrUnsupportedVenue = errors.New("unsupported venue")
	ErrInvalidSymbol    = errors.New("invalid symbol")
	ErrFeatureDisabled  = errors.New("feature disabled")
	ErrUpstream         = errors.New("upstream error")
)
