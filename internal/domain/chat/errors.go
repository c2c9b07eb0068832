package chat

import "errors"

// ErrEmptyMessage is returned for a blank chat message.
var ErrEmptyMessage = errors.New("message must not be empty")
