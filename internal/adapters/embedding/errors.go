package embedding

import "errors"

// Sentinel errors for this package.
var (
	ErrMissingAPIKey     = errors.New("gemini api key is required")
	ErrDimensionMismatch = errors.New("embedding count does not match input")
)
