package chunker

import "errors"

// ErrInvalidSize is returned for a non-positive size or an overlap not
// smaller than the size.
var ErrInvalidSize = errors.New("invalid chunk size")
