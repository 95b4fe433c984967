package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrConnection         = errors.New("connection error")
	ErrLoginFailed        = errors.New("login failed")
	ErrLoggedOut          = errors.New("logged out by server")
	ErrFrameTooLarge      = errors.New("frame exceeds 32-bit length")
	ErrMalformedRecord    = errors.New("malformed record")
	ErrUnknownValue       = errors.New("unknown enumerated value")
	ErrMalformedControl   = errors.New("malformed control message")
	ErrUnsupportedBetType = errors.New("selection has no bet type code")
	ErrLockHeld           = errors.New("lock already held")
)
