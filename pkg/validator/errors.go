package validator

import "errors"

var (
	ErrEmptyURL          = errors.New("URL cannot be empty")
	ErrInvalidURL        = errors.New("invalid URL format")
	ErrInvalidScheme     = errors.New("URL must use http or https scheme")
	ErrInvalidHost       = errors.New("URL must have a valid host")
	ErrURLTooLong        = errors.New("URL must be at most 2048 characters")
	ErrSelfReference     = errors.New("URL must not point back at this service")
	ErrInvalidCodeLength = errors.New("short code must be 1-20 characters")
	ErrInvalidCodeFormat = errors.New("short code must contain only letters and digits")
	ErrReservedCode      = errors.New("short code is reserved")
)
