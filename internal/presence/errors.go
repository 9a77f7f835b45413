package presence

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// Configuration errors fail fast before any network call is attempted.
var (
	ErrMissingUser    = errors.New("presence: user identity is required")
	ErrMissingTrip    = errors.New("presence: trip id is required")
	ErrMissingClient  = errors.New("presence: realtime client is not configured")
	ErrMaxReconnects  = errors.New("presence: max reconnection attempts reached, manual recovery required")
	ErrSessionStopped = errors.New("presence: session already stopped")
)

// PersistenceKind categorizes durable-store failures into user-displayable
// buckets. Persistence is best-effort relative to the realtime transport, so
// these never tear down a session; they only surface through Err().
type PersistenceKind string

const (
	PersistencePermission  PersistenceKind = "PERMISSION_DENIED"
	PersistenceSessionGone PersistenceKind = "SESSION_EXPIRED"
	PersistenceReferential PersistenceKind = "INVALID_REFERENCE"
	PersistenceNotFound    PersistenceKind = "NOT_FOUND"
	PersistenceUnknown     PersistenceKind = "UNKNOWN"
)

// PersistenceError wraps a durable upsert failure with its category and a
// message safe to show to the user.
type PersistenceError struct {
	Kind    PersistenceKind
	Message string
	Err     error
}

func (e *PersistenceError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ClassifyPersistenceError maps a raw database error into a PersistenceError
// by message pattern. Postgres surfaces row-level security and permission
// failures as 42501, foreign key violations as 23503.
func ClassifyPersistenceError(err error) *PersistenceError {
	if err == nil {
		return nil
	}

	msg := strings.ToLower(err.Error())

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound) || strings.Contains(msg, "record not found"):
		return &PersistenceError{
			Kind:    PersistenceNotFound,
			Message: "Presence record not found",
			Err:     err,
		}
	case strings.Contains(msg, "row-level security") ||
		strings.Contains(msg, "permission denied") ||
		strings.Contains(msg, "42501"):
		return &PersistenceError{
			Kind:    PersistencePermission,
			Message: "You don't have permission to update presence for this trip",
			Err:     err,
		}
	case strings.Contains(msg, "jwt expired") ||
		strings.Contains(msg, "token is expired") ||
		strings.Contains(msg, "session expired") ||
		strings.Contains(msg, "invalid authorization"):
		return &PersistenceError{
			Kind:    PersistenceSessionGone,
			Message: "Your session has expired, please sign in again",
			Err:     err,
		}
	case strings.Contains(msg, "foreign key") ||
		strings.Contains(msg, "violates foreign key constraint") ||
		strings.Contains(msg, "23503"):
		return &PersistenceError{
			Kind:    PersistenceReferential,
			Message: "Presence record references a trip or user that no longer exists",
			Err:     err,
		}
	default:
		return &PersistenceError{
			Kind:    PersistenceUnknown,
			Message: "Failed to save presence, it will retry on the next heartbeat",
			Err:     err,
		}
	}
}
