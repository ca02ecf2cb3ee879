// ABOUTME: Routing error taxonomy and its mapping onto wire error codes
// ABOUTME: AlreadyClaimedError carries the winning rep's name and matches ErrAlreadyClaimed

package routing

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthentication means the connection handshake carried no valid identity.
	ErrAuthentication = errors.New("authentication failed")

	// ErrAlreadyClaimed means another rep owns the conversation.
	ErrAlreadyClaimed = errors.New("conversation already claimed")

	// ErrNotAssigned means the rep does not own the conversation.
	ErrNotAssigned = errors.New("conversation not assigned to you")

	// ErrInvalidReference means a customer or rep id does not resolve.
	ErrInvalidReference = errors.New("unknown customer or sales rep")

	// ErrPersistence means delivery happened but the store write failed.
	ErrPersistence = errors.New("message delivered but may not survive a restart")

	// ErrAccessDenied means the event is not allowed for the sender's role.
	ErrAccessDenied = errors.New("access denied")

	// ErrInvalidFrame means an inbound frame failed to decode or validate.
	ErrInvalidFrame = errors.New("invalid frame")
)

// AlreadyClaimedError reports who won a claim race.
type AlreadyClaimedError struct {
	CustomerID string
	By         string
}

func (e *AlreadyClaimedError) Error() string {
	return fmt.Sprintf("This conversation is already handled by %s", e.By)
}

// Is makes errors.Is(err, ErrAlreadyClaimed) true.
func (e *AlreadyClaimedError) Is(target error) bool {
	return target == ErrAlreadyClaimed
}

// Wire error codes.
const (
	CodeAuthentication   = "authentication_failure"
	CodeAlreadyClaimed   = "already_claimed"
	CodeNotAssigned      = "not_assigned"
	CodeInvalidReference = "invalid_reference"
	CodePersistence      = "persistence_failure"
	CodeAccessDenied     = "access_denied"
	CodeInvalidFrame     = "invalid_frame"
	CodeInternal         = "internal_error"
)

// ErrorCode maps an error onto its wire code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrAuthentication):
		return CodeAuthentication
	case errors.Is(err, ErrAlreadyClaimed):
		return CodeAlreadyClaimed
	case errors.Is(err, ErrNotAssigned):
		return CodeNotAssigned
	case errors.Is(err, ErrInvalidReference):
		return CodeInvalidReference
	case errors.Is(err, ErrPersistence):
		return CodePersistence
	case errors.Is(err, ErrAccessDenied):
		return CodeAccessDenied
	case errors.Is(err, ErrInvalidFrame):
		return CodeInvalidFrame
	default:
		return CodeInternal
	}
}

// errorEvent converts an error into the typed event sent back to the caller.
// Internal errors are not echoed verbatim.
func errorEvent(err error) Event {
	code := ErrorCode(err)
	msg := err.Error()
	switch code {
	case CodeInternal:
		msg = "internal error"
	case CodePersistence:
		msg = ErrPersistence.Error()
	}
	return Event{Name: EventError, Data: ErrorPayload{Code: code, Message: msg}}
}
