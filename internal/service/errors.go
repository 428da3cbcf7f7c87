package service

import (
	"errors"

	"github.com/vedran77/duet/internal/domain"
)

var (
	ErrInvalidCredential  = errors.New("missing, malformed or expired credential")
	ErrRestricted         = errors.New("account is restricted from sending messages")
	ErrEmptyPayload       = domain.ErrEmptyPayload
	ErrUploadRejected     = errors.New("upload rejected")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")

	ErrCannotMessageSelf = errors.New("cannot send a message to yourself")
	ErrRateLimited       = errors.New("too many messages, slow down")

	ErrEmailTaken    = errors.New("email already taken")
	ErrUsernameTaken = errors.New("username already taken")
	ErrInvalidLogin  = errors.New("invalid email or password")
)

var codes = []struct {
	err  error
	code string
}{
	{ErrInvalidCredential, "INVALID_CREDENTIAL"},
	{ErrRestricted, "RESTRICTED"},
	{ErrEmptyPayload, "EMPTY_PAYLOAD"},
	{ErrUploadRejected, "UPLOAD_REJECTED"},
	{ErrStorageUnavailable, "STORAGE_UNAVAILABLE"},
	{ErrNotFound, "NOT_FOUND"},
	{ErrForbidden, "FORBIDDEN"},
	{ErrCannotMessageSelf, "CANNOT_MESSAGE_SELF"},
	{ErrRateLimited, "RATE_LIMITED"},
	{ErrEmailTaken, "EMAIL_TAKEN"},
	{ErrUsernameTaken, "USERNAME_TAKEN"},
	{ErrInvalidLogin, "INVALID_LOGIN"},
}

// Code returns the stable error code both transports report for err.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "INTERNAL_ERROR"
}

// Message returns the client-facing text for err. Wrapped detail stays in
// the logs; only rejections that describe the request itself keep it.
func Message(err error) string {
	for _, c := range codes {
		if !errors.Is(err, c.err) {
			continue
		}
		switch c.err {
		case ErrUploadRejected, ErrNotFound, ErrForbidden:
			return err.Error()
		}
		return c.err.Error()
	}
	return "internal server error"
}
