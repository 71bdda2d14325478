package domain

import (
	"errors"
	"fmt"
)

// Domain errors. Callers match them with errors.Is; every layer wraps with %w.
var (
	ErrLinkNotFound = errors.New("link not found")
	// ErrLinkInactive is reported as a not-found to visitors.
	ErrLinkInactive       = fmt.Errorf("%w: link is inactive", ErrLinkNotFound)
	ErrLinkExpired        = errors.New("link has expired")
	ErrPasswordRequired   = errors.New("password required")
	ErrBadPassword        = errors.New("incorrect password")
	ErrTooManyAttempts    = errors.New("too many password attempts")
	ErrCodeConflict       = errors.New("short code already in use")
	ErrInvalidCode        = errors.New("short code must be 1-20 letters or digits and not a reserved word")
	ErrInvalidURL         = errors.New("invalid destination URL")
	ErrInvalidExpiry      = errors.New("expiry must be between 1 and 365 days")
	ErrCodeSpaceExhausted = errors.New("could not find a free short code")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrNotOwner           = errors.New("link is not owned by requester")
	ErrUnauthenticated    = errors.New("authentication required")
	ErrDayNotElapsed      = errors.New("day has not fully elapsed")
	ErrInvalidDateRange   = errors.New("invalid date range")
)
