package store

import "errors"

// Sentinel errors surfaced by every store implementation. Handlers map these
// to HTTP status codes; business logic branches on them with errors.Is.
var (
	// ErrNotFound is returned for missing rows and for rows that exist but
	// belong to another dealership. The two cases are indistinguishable so a
	// caller cannot confirm existence across tenants.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned on unique-constraint violations.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalid is returned when input fails a store-level invariant
	// (e.g. an empty keep-set passed to a bulk delete).
	ErrInvalid = errors.New("invalid input")
)
