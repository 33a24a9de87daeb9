// Package extract converts stored files into plain text for chunking.
package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Result is the outcome of extracting one file.
type Result struct {
	// Text is the extracted plain text. Empty when Skipped.
	Text string
	// Skipped is true when content was intentionally not extracted (oversized
	// media, unconfigured transcription, unsupported format). The file is still
	// registered as a zero-chunk document.
	Skipped bool
	// Note explains why extraction was skipped.
	Note string
}

// PageResult is the outcome of extracting one page of a paginated document.
// A non-nil Err means the page failed; callers treat its text as empty and
// continue with the remaining pages.
type PageResult struct {
	Page int
	Text string
	Err  error
}

// Transcriber converts an audio or video file into a transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (string, error)
}

// Extractor extracts plain text from document files, selected by extension.
type Extractor struct {
	transcriber    Transcriber
	maxMediaBytes  int64
	sheetCharLimit int
	logger         *zap.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithTranscriber sets the speech-to-text backend for media files.
// Without one, media files are registered but not transcribed.
func WithTranscriber(t Transcriber) Option {
	return func(e *Extractor) { e.transcriber = t }
}

// WithMaxMediaMB sets the transcription size ceiling in megabytes.
func WithMaxMediaMB(mb int) Option {
	return func(e *Extractor) {
		if mb > 0 {
			e.maxMediaBytes = int64(mb) * 1024 * 1024
		}
	}
}

// WithSheetCharLimit caps the total text emitted from spreadsheets.
func WithSheetCharLimit(limit int) Option {
	return func(e *Extractor) {
		if limit > 0 {
			e.sheetCharLimit = limit
		}
	}
}

// WithLogger sets a logger for per-page warnings and skip events.
func WithLogger(l *zap.Logger) Option {
	return func(e *Extractor) { e.logger = l }
}

// NewExtractor returns an Extractor with the given options applied.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		maxMediaBytes:  25 * 1024 * 1024,
		sheetCharLimit: 2_000_000,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// mediaExts are the extensions routed to the transcription service.
var mediaExts = map[string]bool{
	".mp3": true, ".mp4": true, ".m4a": true, ".wav": true,
	".mpga": true, ".mpeg": true, ".webm": true, ".mov": true,
}

// IsMedia reports whether ext (with leading dot) is an audio/video format.
func IsMedia(ext string) bool {
	return mediaExts[strings.ToLower(ext)]
}

// IsPaginated reports whether ext is a paginated format that should be
// extracted page by page via StreamPages.
func IsPaginated(ext string) bool {
	return strings.ToLower(ext) == ".pdf"
}

// Extract reads the file at path and returns its text content based on the
// file extension. Paginated formats are supported here as a convenience by
// concatenating all pages; callers that need bounded memory should use
// StreamPages instead. Unrecognized extensions return a skipped Result so the
// file is still registered as a zero-chunk document.
func (e *Extractor) Extract(ctx context.Context, path string) (Result, error) {
	ext := strings.ToLower(filepath.Ext(path))

	if IsMedia(ext) {
		return e.extractMedia(ctx, path)
	}

	if IsPaginated(ext) {
		var b strings.Builder
		_, err := e.StreamPages(path, func(p PageResult) error {
			if p.Err == nil {
				b.WriteString(p.Text)
			}
			return nil
		})
		if err != nil {
			return Result{}, err
		}
		return Result{Text: b.String()}, nil
	}

	if ext == ".odt" || ext == ".rtf" {
		text, err := extractOffice(path)
		if err != nil {
			return Result{}, err
		}
		return Result{Text: text}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("read file: %w", err)
	}

	switch ext {
	case ".docx":
		text, err := extractDOCX(content)
		if err != nil {
			return Result{}, err
		}
		return Result{Text: text}, nil
	case ".xlsx":
		text, err := extractExcel(content, e.sheetCharLimit)
		if err != nil {
			return Result{}, err
		}
		return Result{Text: text}, nil
	case ".csv", ".tsv":
		text, err := extractCSV(content, ext, e.sheetCharLimit)
		if err != nil {
			return Result{}, err
		}
		return Result{Text: text}, nil
	case ".txt", ".md", ".rst":
		return Result{Text: extractPlain(content)}, nil
	default:
		e.logger.Info("unsupported file type registered without content",
			zap.String("path", path), zap.String("ext", ext))
		return Result{Skipped: true, Note: fmt.Sprintf("unsupported file type %q", ext)}, nil
	}
}
