package service

import "errors"

var (
	ErrCopyNotFound         = errors.New("copy not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrForbidden            = errors.New("access denied")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrRateLimited          = errors.New("too many failed attempts, try again later")
	ErrRegistrationFailed   = errors.New("registration failed: username or email already exists")
	ErrInvalidInput         = errors.New("invalid input")
	ErrInternalServer       = errors.New("internal server error")
)
