// Package server provides the HTTP API for Ask Veeva.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/electrohub/askveeva/internal/config"
	"github.com/electrohub/askveeva/internal/ingest"
	"github.com/electrohub/askveeva/internal/jobs"
	"github.com/electrohub/askveeva/internal/objectstore"
	"github.com/electrohub/askveeva/internal/search"
	"github.com/electrohub/askveeva/internal/storage"
)

// Queue accepts ingestion tasks for asynchronous execution.
type Queue interface {
	Enqueue(task jobs.Task) error
}

// ObjectUploads is the multipart upload surface of the object store. Nil when
// object storage is not configured.
type ObjectUploads interface {
	CreateMultipartUpload(ctx context.Context, object string) (string, error)
	UploadPart(ctx context.Context, object, uploadID string, partNumber int, r io.Reader, size int64) (*objectstore.Part, error)
	CompleteMultipartUpload(ctx context.Context, object, uploadID string, parts []*objectstore.Part) error
	AbortMultipartUpload(ctx context.Context, object, uploadID string) error
}

// uploadSession tracks one in-progress multipart upload.
type uploadSession struct {
	object   string
	uploadID string
	mu       sync.Mutex
	parts    []*objectstore.Part
}

// Server is the HTTP server for the Ask Veeva API.
type Server struct {
	store    storage.Store
	engine   *search.Engine
	pipeline *ingest.Pipeline
	runner   *ingest.Runner
	queue    Queue
	objects  ObjectUploads
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server

	uploadsMu sync.Mutex
	uploads   map[string]*uploadSession
}

// NewServer creates a server with the given dependencies. objects may be nil,
// disabling the multipart upload routes.
func NewServer(
	store storage.Store,
	engine *search.Engine,
	pipeline *ingest.Pipeline,
	runner *ingest.Runner,
	queue Queue,
	objects ObjectUploads,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		store:    store,
		engine:   engine,
		pipeline: pipeline,
		runner:   runner,
		queue:    queue,
		objects:  objects,
		config:   cfg,
		logger:   logger,
		uploads:  make(map[string]*uploadSession),
	}
}

// Router builds the chi router with all API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/ingest/archive", s.handleIngestArchive)
	r.Post("/api/v1/ingest/files", s.handleIngestFiles)

	r.Post("/api/v1/uploads", s.handleCreateUpload)
	r.Put("/api/v1/uploads/{id}/parts/{n}", s.handleUploadPart)
	r.Post("/api/v1/uploads/{id}/complete", s.handleCompleteUpload)
	r.Delete("/api/v1/uploads/{id}", s.handleAbortUpload)

	r.Get("/api/v1/jobs/{id}", s.handleGetJob)

	r.Post("/api/v1/search", s.handleSearch)
	r.Post("/api/v1/ask", s.handleAsk)

	r.Get("/api/v1/documents", s.handleListDocuments)
	r.Get("/api/v1/documents/{id}", s.handleGetDocument)
	r.Get("/api/v1/documents/{id}/chunks", s.handleGetDocumentChunks)
	r.Delete("/api/v1/documents/{id}", s.handleDeleteDocument)

	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
