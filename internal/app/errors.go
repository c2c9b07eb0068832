package service

import "errors"

var (
	// ErrNotStarted is returned by operations called before Start.
	ErrNotStarted = errors.New("service not started")
	// ErrEmptyQuery is returned when a question, query or message is blank.
	ErrEmptyQuery = errors.New("empty query")
	// ErrNoDocuments is returned when process_query receives no files.
	ErrNoDocuments = errors.New("no documents provided")
	// ErrQueueFull is returned when the ingestion queue cannot take a job.
	ErrQueueFull = errors.New("ingestion queue full")
	// ErrJobNotFound is returned for unknown ingestion job ids.
	ErrJobNotFound = errors.New("job not found")
)
