// Package chunker splits document text into overlapping chunks for
// embedding.
package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	model "github.com/okian/queryai/internal/domain/model"
)

// Default splitter configuration.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// Option applies a configuration option to the Splitter.
type Option func(*Splitter)

// WithChunkSize sets the maximum chunk length in characters.
func WithChunkSize(size int) Option {
	return func(s *Splitter) {
		s.size = size
	}
}

// WithChunkOverlap sets how many trailing characters consecutive chunks share.
func WithChunkOverlap(overlap int) Option {
	return func(s *Splitter) {
		s.overlap = overlap
	}
}

// WithSeparators sets the separators tried from coarse to fine.
func WithSeparators(seps ...string) Option {
	return func(s *Splitter) {
		if len(seps) > 0 {
			s.separators = seps
		}
	}
}

// Splitter is a recursive character splitter.
type Splitter struct {
	size       int
	overlap    int
	separators []string
}

// New creates a Splitter. It fails when the overlap is not smaller than the size.
func New(opts ...Option) (*Splitter, error) {
	s := &Splitter{
		size:       DefaultChunkSize,
		overlap:    DefaultChunkOverlap,
		separators: defaultSeparators,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.size <= 0 || s.overlap < 0 || s.overlap >= s.size {
		return nil, fmt.Errorf("%w: size %d overlap %d", ErrInvalidSize, s.size, s.overlap)
	}
	return s, nil
}

// Split turns a document into chunks with stable ids.
func (s *Splitter) Split(doc model.Document) []model.Chunk {
	texts := s.SplitText(doc.Text)
	chunks := make([]model.Chunk, 0, len(texts))
	for i, t := range texts {
		chunks = append(chunks, model.Chunk{
			ID:         fmt.Sprintf("%s-%04d", doc.ID, i),
			DocumentID: doc.ID,
			Source:     doc.Source,
			Position:   i,
			Content:    t,
		})
	}
	return chunks
}

// SplitText splits text into trimmed, non-empty chunks.
func (s *Splitter) SplitText(text string) []string {
	return s.split(text, s.separators)
}

func (s *Splitter) split(text string, separators []string) []string {
	sep := separators[len(separators)-1]
	var rest []string
	for i, candidate := range separators {
		if candidate == "" || strings.Contains(text, candidate) {
			sep = candidate
			rest = separators[i+1:]
			break
		}
	}

	var parts []string
	if sep == "" {
		parts = runeParts(text)
	} else {
		parts = strings.Split(text, sep)
	}

	var out, good []string
	for _, p := range parts {
		if p == "" {
			continue
		}
		if length(p) < s.size {
			good = append(good, p)
			continue
		}
		if len(good) > 0 {
			out = append(out, s.merge(good, sep)...)
			good = nil
		}
		if len(rest) == 0 {
			if t := strings.TrimSpace(p); t != "" {
				out = append(out, t)
			}
			continue
		}
		out = append(out, s.split(p, rest)...)
	}
	if len(good) > 0 {
		out = append(out, s.merge(good, sep)...)
	}
	return out
}

// merge packs small parts into chunks, carrying up to overlap characters
// of the previous chunk into the next one.
func (s *Splitter) merge(parts []string, sep string) []string {
	sepLen := length(sep)
	var out, current []string
	total := 0

	joinCost := func() int {
		if len(current) > 0 {
			return sepLen
		}
		return 0
	}

	for _, p := range parts {
		l := length(p)
		if total+l+joinCost() > s.size && len(current) > 0 {
			if doc := strings.TrimSpace(strings.Join(current, sep)); doc != "" {
				out = append(out, doc)
			}
			for total > s.overlap || (total+l+joinCost() > s.size && total > 0) {
				drop := length(current[0])
				if len(current) > 1 {
					drop += sepLen
				}
				total -= drop
				current = current[1:]
			}
		}
		current = append(current, p)
		total += l
		if len(current) > 1 {
			total += sepLen
		}
	}
	if doc := strings.TrimSpace(strings.Join(current, sep)); doc != "" {
		out = append(out, doc)
	}
	return out
}

func length(s string) int {
	return utf8.RuneCountInString(s)
}

func runeParts(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
