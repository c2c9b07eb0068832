package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/queryai/internal/adapters/mq/queue"
	"github.com/okian/queryai/internal/adapters/vectorstore"
	"github.com/okian/queryai/internal/domain/dedupe"
	model "github.com/okian/queryai/internal/domain/model"
	"github.com/okian/queryai/internal/domain/types"
	"github.com/okian/queryai/pkg/logger"
	"github.com/okian/queryai/pkg/metrics"
)

// IngestFile extracts the text of an uploaded file and queues it for
// indexing. Unsupported or unreadable files fail before anything is queued.
func (s *Service) IngestFile(ctx context.Context, name string, r io.Reader) (types.JobRef, error) {
	if err := s.ready(); err != nil {
		return types.JobRef{}, err
	}
	doc, err := s.loader.Load(ctx, name, r)
	if err != nil {
		metrics.RecordDocumentFailed("load")
		return types.JobRef{}, err
	}
	return s.submit(ctx, doc)
}

func (s *Service) submit(ctx context.Context, doc model.Document) (types.JobRef, error) {
	if doc.Fingerprint == "" {
		doc.Fingerprint = dedupe.Fingerprint(doc.Text)
	}
	doc.ID = dedupe.DocumentID(doc.Fingerprint)

	duplicate := s.deduper.SeenAndRecord(ctx, doc.Fingerprint)
	if !duplicate {
		// the deduper is in memory; the store remembers across restarts
		stored, err := s.store.HasDocument(ctx, doc.ID)
		if err != nil {
			s.deduper.Unrecord(ctx, doc.Fingerprint)
			return types.JobRef{}, fmt.Errorf("check %s: %w", doc.Source, err)
		}
		duplicate = stored
	}
	if duplicate {
		metrics.RecordDocumentDuplicate()
		s.logger.Debug(ctx, "duplicate document skipped",
			logger.String("source", doc.Source),
			logger.String("fingerprint", doc.Fingerprint),
		)
		return types.JobRef{Filename: doc.Source, Status: model.JobSkipped, Duplicate: true}, nil
	}

	now := time.Now().UTC()
	job := model.IngestJob{
		ID:        uuid.NewString(),
		Document:  doc,
		Status:    model.JobQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.jobs.add(job)

	if err := s.queue.EnqueueErr(ctx, job); err != nil {
		s.jobs.remove(job.ID)
		s.deduper.Unrecord(ctx, doc.Fingerprint)
		if errors.Is(err, queue.ErrFull) {
			return types.JobRef{}, fmt.Errorf("%w: %s", ErrQueueFull, doc.Source)
		}
		return types.JobRef{}, fmt.Errorf("enqueue %s: %w", doc.Source, err)
	}

	s.logger.Info(ctx, "document queued",
		logger.String("job_id", job.ID),
		logger.String("source", doc.Source),
	)
	return types.JobRef{JobID: job.ID, Filename: doc.Source, Status: model.JobQueued}, nil
}

// Job returns the state of an ingestion job.
func (s *Service) Job(_ context.Context, id string) (model.IngestJob, error) {
	if err := s.ready(); err != nil {
		return model.IngestJob{}, err
	}
	job, ok := s.jobs.get(id)
	if !ok {
		return model.IngestJob{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return job, nil
}

// seed queues the configured startup documents. Failures are logged only.
func (s *Service) seed(ctx context.Context) {
	if len(s.seedDocuments) == 0 {
		return
	}
	docs, err := s.loader.LoadFiles(ctx, s.seedDocuments)
	if err != nil {
		s.logger.Warn(ctx, "seed documents skipped", logger.Error(err))
		return
	}
	for _, doc := range docs {
		if _, err := s.submit(ctx, doc); err != nil {
			s.logger.Warn(ctx, "seed document not queued", logger.String("source", doc.Source), logger.Error(err))
		}
	}
}

// embedChunks fills in the embedding of every chunk.
func (s *Service) embedChunks(ctx context.Context, chunks []model.Chunk) error {
	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Content
	}
	vectors, err := s.emb.EmbedDocuments(ctx, texts)
	if err != nil {
		return err
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedded %d of %d chunks", len(vectors), len(chunks))
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}
	return nil
}

// indexInto splits, embeds and stores a document.
func (s *Service) indexInto(ctx context.Context, store vectorstore.Store, doc model.Document) (int, error) {
	chunks := s.splitter.Split(doc)
	if len(chunks) == 0 {
		return 0, nil
	}
	if err := s.embedChunks(ctx, chunks); err != nil {
		metrics.RecordDocumentFailed("embed")
		return 0, fmt.Errorf("embed %s: %w", doc.Source, err)
	}
	if err := store.Add(ctx, chunks); err != nil {
		metrics.RecordDocumentFailed("store")
		return 0, fmt.Errorf("store %s: %w", doc.Source, err)
	}
	return len(chunks), nil
}

// indexer feeds queued documents into the persistent store.
type indexer struct {
	svc *Service
}

func (ix *indexer) Index(ctx context.Context, doc model.Document) (int, error) {
	n, err := ix.svc.indexInto(ctx, ix.svc.store, doc)
	if err != nil {
		return 0, err
	}
	metrics.RecordDocumentIngested(n)
	if total, err := ix.svc.store.Count(ctx); err == nil {
		metrics.UpdateVectorStoreSize(total)
	}
	return n, nil
}

// jobRegistry keeps recent ingestion jobs for status lookups and reports
// worker transitions into them. The oldest finished jobs are evicted first.
type jobRegistry struct {
	mu      sync.RWMutex
	jobs    map[string]*model.IngestJob
	order   []string
	limit   int
	deduper dedupe.Deduper
	now     func() time.Time
}

func newJobRegistry(limit int, deduper dedupe.Deduper) *jobRegistry {
	return &jobRegistry{
		jobs:    make(map[string]*model.IngestJob),
		limit:   limit,
		deduper: deduper,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (r *jobRegistry) add(job model.IngestJob) { //nolint:gocritic // hugeParam
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = &job
	r.order = append(r.order, job.ID)
	r.evict()
}

// evict drops finished jobs from the front until the registry fits.
func (r *jobRegistry) evict() {
	for len(r.jobs) > r.limit {
		evicted := false
		for i, id := range r.order {
			j, ok := r.jobs[id]
			if ok && (j.Status == model.JobQueued || j.Status == model.JobProcessing) {
				continue
			}
			delete(r.jobs, id)
			r.order = append(r.order[:i], r.order[i+1:]...)
			evicted = true
			break
		}
		if !evicted {
			return
		}
	}
}

func (r *jobRegistry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *jobRegistry) get(id string) (model.IngestJob, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	if !ok {
		return model.IngestJob{}, false
	}
	return *j, true
}

// Report implements worker.Reporter. A failed job forgets its fingerprint so
// the same document can be uploaded again.
func (r *jobRegistry) Report(ctx context.Context, jobID string, status model.JobStatus, chunks int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok {
		return
	}

	// unrecord before the failure becomes visible to Job
	if status == model.JobFailed && r.deduper != nil {
		r.deduper.Unrecord(ctx, j.Document.Fingerprint)
	}
	j.Status = status
	j.Chunks = chunks
	j.UpdatedAt = r.now()
	if status == model.JobIndexed || status == model.JobFailed {
		// the text is only needed until the worker has run
		j.Document.Text = ""
	}
	if err != nil {
		j.Error = err.Error()
	}
}
