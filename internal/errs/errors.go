package errs

import "errors"

// Sentinel errors for the core engines. Services wrap these with
// fmt.Errorf("%w: ...") and handlers map them to HTTP codes.
var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrMixedClient       = errors.New("tasks belong to different clients")
	ErrEmptySelection    = errors.New("empty selection")
	ErrStorage           = errors.New("storage error")
)
