package vectorstore

import "errors"

// Sentinel errors for this package.
var (
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrNoEmbedding       = errors.New("chunk has no embedding")
	ErrMissingID         = errors.New("chunk has no id")
	ErrClosed            = errors.New("vector store closed")
)
