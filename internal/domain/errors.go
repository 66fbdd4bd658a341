package domain

import "errors"

// Domain errors
var (
	ErrDuplicateEntry      = errors.New("duplicate entry")
	ErrInvalidRegistration = errors.New("invalid registration")
	ErrResultNotFound      = errors.New("result not found")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrInternalError       = errors.New("internal server error")
)

// IsUserError checks if an error should be surfaced verbatim to the
// submitting participant rather than hidden behind a generic message.
func IsUserError(err error) bool {
	return errors.Is(err, ErrDuplicateEntry) || errors.Is(err, ErrInvalidRegistration)
}
