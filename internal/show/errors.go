// Package show implements the live coordination core: session registry,
// membership, the per-session cue state machine, presence tracking and
// announcement fan-out.  All mutable state lives in per-session rooms;
// the durable store behind the repository interfaces stays the system
// of record and every mutation is written through before it is
// acknowledged or published.
package show

import (
	"errors"
	"fmt"

	"github.com/stagekit/showcall/internal/repository"
)

// ErrUnauthorized is returned when a session password is missing or wrong.
var ErrUnauthorized = errors.New("unauthorized")

// ErrForbidden is returned when the caller's role lacks the capability
// for the attempted operation.  The command is rejected before any
// state is touched.
var ErrForbidden = errors.New("forbidden")

// ErrInvalidTransition rejects a cue transition that is illegal from
// the current phase (e.g. Go while not on standby).  Recoverable: the
// caller receives the current state and can resync.
var ErrInvalidTransition = errors.New("invalid transition")

// ErrEndOfShow rejects Next at the last cue; state is unchanged.
var ErrEndOfShow = errors.New("end of show")

// ErrAtStart rejects Previous/Undo at the first cue; state is unchanged.
var ErrAtStart = errors.New("at start")

// ErrAlreadyEnrolled is returned when an identity tries to enroll in a
// session it already belongs to under a different role.  Changing role
// requires an explicit switch, never a second membership.
var ErrAlreadyEnrolled = errors.New("already enrolled with a different role")

// ErrCodeExhausted is returned when every code generation attempt
// collided with an active session.  Rare; treated as a retryable
// infrastructure fault and logged loudly.
var ErrCodeExhausted = errors.New("session code space exhausted")

// ErrSessionClosed rejects commands against a session that has been
// closed while the connection was up.
var ErrSessionClosed = errors.New("session closed")

// ErrInvalidArgument rejects malformed command payloads (empty
// announcement, unknown role name) before any component is touched.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrNoCueSheet is a cue lookup miss: the session has no active sheet
// yet, so there is no cue for the machine to point at.
var ErrNoCueSheet = fmt.Errorf("no active cue sheet: %w", repository.ErrNotFound)

// ErrorCode maps a core error to its wire code, shared by the HTTP
// handlers and the gateway's error frames.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrEndOfShow):
		return "end_of_show"
	case errors.Is(err, ErrAtStart):
		return "at_start"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrAlreadyEnrolled):
		return "already_enrolled"
	case errors.Is(err, ErrCodeExhausted):
		return "code_exhausted"
	case errors.Is(err, ErrSessionClosed):
		return "session_closed"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, repository.ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
