// Package worker runs the asynchronous document indexing workers.
package worker

import (
	"github.com/okian/queryai/pkg/logger"
)

// Option configures an indexing worker.
type Option func(*InMemoryWorker)

// WithName labels the worker's log lines; the pool numbers them worker-N.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger replaces the package logger, e.g. with the service's named
// logger so job failures carry the service prefix.
func WithLogger(log logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if log != nil {
			w.logger = log
		}
	}
}
