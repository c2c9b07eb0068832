package llm

import "errors"

// Sentinel errors for this package.
var (
	ErrEmptyResponse = errors.New("model returned no text")
	ErrNoJSON        = errors.New("no json object in model output")
	ErrMissingAPIKey = errors.New("gemini api key is required")
)
