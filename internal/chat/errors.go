package chat

import "github.com/pkg/errors"

// ErrAuthRejected is matched (via errors.Is) by transport errors meaning the
// server refused the credentials or token.
var ErrAuthRejected = errors.New("authentication rejected")

// ErrNoSelection is returned by conversation operations that need a selected
// counterpart when there is none.
var ErrNoSelection = errors.New("no counterpart selected")

// ErrNotAuthenticated is returned by operations that require a session when
// there is none.
var ErrNotAuthenticated = errors.New("not authenticated")
