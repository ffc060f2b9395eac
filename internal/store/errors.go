package store

import "errors"

// Sentinel errors for store operations. Operational failures (ErrNotFound,
// ErrAlreadyExists) are returned to callers directly. ErrInvalidShape is
// recovered internally by the repair pass and never escapes GetDocument.
// ErrBackendUnavailable marks writes rejected because the key-value area
// itself failed.
var (
	// ErrNotFound indicates an operation referenced a bookmark id or tag
	// name that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a tag creation collided with an existing
	// tag under the same normalized name.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidShape indicates the persisted document failed structural
	// validation and required repair or initialization.
	ErrInvalidShape = errors.New("invalid document shape")

	// ErrBackendUnavailable indicates the key-value area is inaccessible.
	ErrBackendUnavailable = errors.New("storage backend unavailable")
)
