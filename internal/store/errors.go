package store

import "errors"

var (
	// ErrNotFound means the target id resolves to no live row.
	ErrNotFound = errors.New("memory not found")
	// ErrMissingParameter means a required discriminator was omitted.
	ErrMissingParameter = errors.New("missing parameter")
	// ErrInvalidArgument covers unknown categories and sort keys.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrProviderFailure wraps embedding provider errors. The provider's own
	// error stays in the chain.
	ErrProviderFailure = errors.New("embedding provider failure")
	// ErrStorageFailure wraps metadata or vector engine I/O errors.
	ErrStorageFailure = errors.New("storage failure")
)
