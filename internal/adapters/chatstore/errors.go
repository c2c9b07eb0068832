package chatstore

import "errors"

// Sentinel errors for this package.
var (
	ErrEmptyUserID = errors.New("user id must not be empty")
	ErrClosed      = errors.New("chat store closed")
	ErrEmptyAddr   = errors.New("redis address is required")
)
