package tracing

import (
	"errors"
	"fmt"
)

// Sentinel errors for this package.
var (
	ErrClosed = errors.New("tracer closed")
)

// statusError is a non-2xx answer from LangSmith.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("langsmith returned status %d", e.code)
}
