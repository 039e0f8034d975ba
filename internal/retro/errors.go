package retro

import "errors"

type Code string

const (
	CodeUnauthenticated Code = "UNAUTHENTICATED"
	CodeForbidden       Code = "FORBIDDEN"
	CodeVoteLimit       Code = "VOTE_LIMIT"
	CodeAlreadyVoted    Code = "ALREADY_VOTED"
	CodeNotFound        Code = "NOT_FOUND"
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeServerError     Code = "SERVER_ERROR"
)

// Error is a failure reported to the connection that sent the intent.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

func newError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// CodeOf returns the code carried by err, or SERVER_ERROR for anything else.
func CodeOf(err error) Code {
	var retroErr *Error
	if errors.As(err, &retroErr) {
		return retroErr.Code
	}
	return CodeServerError
}
