// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// handlers and the show core to distinguish between different failure
// scenarios without inspecting driver-specific errors.
package repository

import "errors"

// ErrNotFound is returned when a lookup misses: unknown session code,
// inactive session, missing membership or cue sheet. Handlers should
// translate this into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an insert collides with existing state,
// such as a duplicate session code or username. Callers either retry
// (code generation) or translate this into an HTTP 409 response.
var ErrConflict = errors.New("conflict")
