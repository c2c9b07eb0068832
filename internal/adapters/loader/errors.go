package loader

import "errors"

// Sentinel errors for this package.
var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrNotFound        = errors.New("file not found")
	ErrNoFiles         = errors.New("no files provided")
	ErrEmptyDocument   = errors.New("document has no text")
	ErrTooLarge        = errors.New("document too large")
	ErrExtract         = errors.New("text extraction failed")
)
