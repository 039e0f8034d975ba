package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"retro/api/internal/store"
)

// Service provides session export functionality
type Service struct {
	store     store.SnapshotReader
	archiver  Archiver
	logger    *slog.Logger
	renderPDF func(ctx context.Context, html, name string) (*Result, error)
}

type Option func(*Service)

// WithArchiver stores every export that asks for it.
func WithArchiver(a Archiver) Option {
	return func(s *Service) { s.archiver = a }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPDFRenderer replaces the headless Chrome renderer.
func WithPDFRenderer(fn func(ctx context.Context, html, name string) (*Result, error)) Option {
	return func(s *Service) { s.renderPDF = fn }
}

// NewService creates a new export service
func NewService(st store.SnapshotReader, opts ...Option) *Service {
	s := &Service{
		store:     st,
		logger:    slog.New(slog.DiscardHandler),
		renderPDF: renderPDF,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Archiving reports whether exports can be archived.
func (s *Service) Archiving() bool {
	return s.archiver != nil
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	snap, err := store.LoadSnapshot(ctx, s.store, req.SessionID)
	if err != nil {
		return nil, err
	}
	doc := BuildDocument(snap)
	name := "retro-" + doc.SessionID

	var result *Result
	switch req.Format {
	case FormatJSON, "":
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode document: %w", err)
		}
		result = &Result{Data: data, Filename: sanitizeFilename(name) + ".json", MimeType: "application/json"}
	case FormatHTML:
		html, err := RenderHTML(doc)
		if err != nil {
			return nil, fmt.Errorf("render template: %w", err)
		}
		result = &Result{Data: []byte(html), Filename: sanitizeFilename(name) + ".html", MimeType: "text/html; charset=utf-8"}
	case FormatPDF:
		html, err := RenderHTML(doc)
		if err != nil {
			return nil, fmt.Errorf("render template: %w", err)
		}
		result, err = s.renderPDF(ctx, html, name)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}

	if req.Archive && s.archiver != nil {
		key, err := s.archiver.Store(ctx, doc.SessionID, result)
		if err != nil {
			// the export itself is still served
			s.logger.Warn("export archive failed", "session_id", doc.SessionID, "error", err)
		} else {
			result.ArchiveKey = key
		}
	}
	return result, nil
}
