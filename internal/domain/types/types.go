// Package types contains result shapes shared by the service and the API.
package types

import (
	model "github.com/okian/queryai/internal/domain/model"
)

// Query types reported by the combined endpoint.
const (
	TypeClaimProcessing = "claim_processing"
	TypeGeneralQuery    = "general_query"
)

// SourceDocument is a chunk used to build an answer.
type SourceDocument struct {
	Content string  `json:"content"`
	Source  string  `json:"source"`
	Score   float64 `json:"score"`
}

// RetrievalContext is an answer with the documents it was built from.
type RetrievalContext struct {
	Answer          string           `json:"answer"`
	SourceDocuments []SourceDocument `json:"source_documents"`
	Query           string           `json:"query"`
}

// QueryAnswer is the result of the question answering pipeline.
// SearchStrategy lists the phrases the answer was retrieved with.
type QueryAnswer struct {
	Answer         string            `json:"answer"`
	ParsedQuery    model.ParsedQuery `json:"parsed_query"`
	SearchStrategy []string          `json:"search_strategy"`
}

// ProcessResult is a claim decision made against uploaded documents.
type ProcessResult struct {
	Decision      string              `json:"decision"`
	Amount        *int64              `json:"amount"`
	Justification string              `json:"justification"`
	ClauseMapping []model.ClauseMatch `json:"clause_mapping"`
}

// JobRef acknowledges one uploaded document.
type JobRef struct {
	JobID     string          `json:"job_id"`
	Filename  string          `json:"filename"`
	Status    model.JobStatus `json:"status"`
	Duplicate bool            `json:"duplicate"`
}

// CombinedAnswer is an answer optionally paired with a claim decision.
type CombinedAnswer struct {
	Answer   string          `json:"answer"`
	Type     string          `json:"type"`
	Decision *model.Decision `json:"decision,omitempty"`
	Summary  string          `json:"summary,omitempty"`
}

// Stats summarises the service state.
type Stats struct {
	Model              string `json:"model"`
	EmbeddingModel     string `json:"embedding_model"`
	VectorStore        string `json:"vector_store"`
	IndexedChunks      int    `json:"indexed_chunks"`
	QueueSize          int    `json:"queue_size"`
	QueueCapacity      int    `json:"queue_capacity"`
	WorkerCount        int    `json:"worker_count"`
	ActiveUsers        int    `json:"active_users"`
	RememberedDocs     int64  `json:"remembered_documents"`
	TracingEnabled     bool   `json:"tracing_enabled"`
	MaxContextMessages int    `json:"max_context_messages"`
}

// FromScored converts search hits into source documents.
func FromScored(hits []model.ScoredChunk) []SourceDocument {
	out := make([]SourceDocument, 0, len(hits))
	for _, h := range hits {
		out = append(out, SourceDocument{Content: h.Content, Source: h.Source, Score: h.Score})
	}
	return out
}
