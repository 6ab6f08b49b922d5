package domain

import "errors"

var (
	// ErrDomainNotFound signals an unknown domain name.
	ErrDomainNotFound = errors.New("domain not found")
	// ErrDomainInactive signals a write against a deactivated domain.
	ErrDomainInactive = errors.New("domain is inactive")
	// ErrInvalidDomain signals an invalid domain definition.
	ErrInvalidDomain = errors.New("invalid domain")
	// ErrAlreadyExists signals a duplicate resource.
	ErrAlreadyExists = errors.New("already exists")
	// ErrDimensionMismatch signals a vector of the wrong dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrDegenerateInput signals a zero-norm vector or empty text.
	ErrDegenerateInput = errors.New("degenerate input")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrPersistence signals a snapshot read or write failure.
	ErrPersistence = errors.New("persistence failure")
)
