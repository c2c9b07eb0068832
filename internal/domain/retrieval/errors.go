package retrieval

import "errors"

// Sentinel errors for this package.
var (
	ErrEmptyQuestion = errors.New("question must not be empty")
	ErrRetrieve      = errors.New("retrieve clauses")
	ErrGenerate      = errors.New("generate answer")
)
