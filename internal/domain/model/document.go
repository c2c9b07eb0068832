package model

import "time"

// Document is the extracted text of one source file.
type Document struct {
	ID          string `json:"id"`
	Source      string `json:"source"`
	Text        string `json:"-"`
	Fingerprint string `json:"fingerprint"`
}

// Chunk is a slice of a document with its embedding.
type Chunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Source     string    `json:"source"`
	Position   int       `json:"position"`
	Content    string    `json:"content"`
	Embedding  []float32 `json:"-"`
}

// ScoredChunk is a search hit.
type ScoredChunk struct {
	Chunk
	Score float64 `json:"score"`
}

// Chat roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one turn of a conversation.
type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// JobStatus is the lifecycle state of an ingestion job.
type JobStatus string

// Ingestion job states.
const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobIndexed    JobStatus = "indexed"
	JobFailed     JobStatus = "failed"
	// JobSkipped marks an upload whose text was already indexed.
	JobSkipped JobStatus = "skipped"
)

// IngestJob tracks the indexing of one document.
type IngestJob struct {
	ID        string    `json:"job_id"`
	Document  Document  `json:"document"`
	Status    JobStatus `json:"status"`
	Chunks    int       `json:"chunks"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
