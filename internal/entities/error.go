package entities

import "errors"

var (
	// ErrValidation marks a malformed or non-positive rate observation.
	ErrValidation = errors.New("invalid rate observation")
	// ErrEmptyInput is returned when there is nothing to seed gap filling with.
	ErrEmptyInput = errors.New("no observations")
	// ErrInvalidBaseCurrency is returned when a base currency cannot be triangulated.
	ErrInvalidBaseCurrency = errors.New("invalid base currency")

	ErrNotFound      = errors.New("entity not found")
	ErrRedisTimeout  = errors.New("timeout waiting for Redis message")
	ErrRedisCanceled = errors.New("redis subscription canceled")
)
