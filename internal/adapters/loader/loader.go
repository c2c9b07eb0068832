// Package loader extracts plain text from uploaded or on-disk documents.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/okian/queryai/internal/domain/dedupe"
	model "github.com/okian/queryai/internal/domain/model"
	"github.com/okian/queryai/pkg/logger"
)

const defaultMaxBytes = 50 << 20

// extractor turns raw file bytes into text.
type extractor func(ctx context.Context, data []byte) (string, error)

// Option applies a configuration option to the Loader.
type Option func(*Loader)

// WithMaxBytes caps the size of a single document.
func WithMaxBytes(n int64) Option {
	return func(l *Loader) {
		if n > 0 {
			l.maxBytes = n
		}
	}
}

// Loader dispatches on file extension.
type Loader struct {
	maxBytes   int64
	extractors map[string]extractor
	log        logger.Logger
}

// New creates a Loader supporting pdf, docx, eml, html, xlsx, txt and md.
func New(opts ...Option) *Loader {
	l := &Loader{
		maxBytes: defaultMaxBytes,
		extractors: map[string]extractor{
			".pdf":  extractPDF,
			".docx": extractDOCX,
			".eml":  extractEML,
			".html": extractHTML,
			".htm":  extractHTML,
			".xlsx": extractXLSX,
			".txt":  extractText,
			".md":   extractText,
		},
		log: logger.Get().Named("loader"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Supported reports whether name has a known extension.
func (l *Loader) Supported(name string) bool {
	_, ok := l.extractors[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Extensions lists the supported extensions.
func (l *Loader) Extensions() []string {
	out := make([]string, 0, len(l.extractors))
	for ext := range l.extractors {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Load reads a single document from r. name is used for the extension and
// as the source label.
func (l *Loader) Load(ctx context.Context, name string, r io.Reader) (model.Document, error) {
	ext := strings.ToLower(filepath.Ext(name))
	extract, ok := l.extractors[ext]
	if !ok {
		return model.Document{}, fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}

	data, err := io.ReadAll(io.LimitReader(r, l.maxBytes+1))
	if err != nil {
		return model.Document{}, fmt.Errorf("read %s: %w", name, err)
	}
	if int64(len(data)) > l.maxBytes {
		return model.Document{}, fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, name, l.maxBytes)
	}

	text, err := extract(ctx, data)
	if err != nil {
		return model.Document{}, fmt.Errorf("%w: %s: %w", ErrExtract, name, err)
	}
	text = normalize(text)
	if text == "" {
		return model.Document{}, fmt.Errorf("%w: %s", ErrEmptyDocument, name)
	}

	fp := dedupe.Fingerprint(text)
	return model.Document{
		ID:          dedupe.DocumentID(fp),
		Source:      filepath.Base(name),
		Text:        text,
		Fingerprint: fp,
	}, nil
}

// LoadFile reads a document from disk.
func (l *Loader) LoadFile(ctx context.Context, path string) (model.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return model.Document{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return model.Document{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return l.Load(ctx, path, f)
}

// LoadFiles reads every file it can. Files that are missing, unsupported or
// empty are logged and skipped.
func (l *Loader) LoadFiles(ctx context.Context, paths []string) ([]model.Document, error) {
	if len(paths) == 0 {
		return nil, ErrNoFiles
	}
	docs := make([]model.Document, 0, len(paths))
	for _, p := range paths {
		doc, err := l.LoadFile(ctx, p)
		if err != nil {
			l.log.Warn(ctx, "skipping file", logger.String("path", p), logger.Error(err))
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// normalize trims trailing spaces on every line and collapses runs of
// blank lines to one.
func normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t ")
		if strings.TrimSpace(line) == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func extractText(_ context.Context, data []byte) (string, error) {
	return string(data), nil
}
