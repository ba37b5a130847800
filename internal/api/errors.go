package api

import (
	stderrors "errors"
	"fmt"

	"github.com/valyala/fasthttp"

	"github.com/pelusa-v/pelusa-chat-client.git/internal/chat"
)

// Error is a request the server answered but refused, either with an HTTP
// error status or an envelope with success=false.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("api: %s (status %d)", e.Message, e.Status)
}

// Is makes rejected-credential and rejected-token responses match
// chat.ErrAuthRejected under errors.Is.
func (e *Error) Is(target error) bool {
	if target != chat.ErrAuthRejected {
		return false
	}
	return e.Status == fasthttp.StatusUnauthorized || e.Status == fasthttp.StatusForbidden
}

// IsAuth reports whether err is a rejected-credential or rejected-token
// response.
func IsAuth(err error) bool {
	return stderrors.Is(err, chat.ErrAuthRejected)
}
