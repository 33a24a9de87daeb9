package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/electrohub/askveeva/internal/models"
	"github.com/electrohub/askveeva/internal/objectstore"
)

// maxFormMemory caps how much of a multipart body chi keeps in memory;
// larger uploads spill to temp files.
const maxFormMemory = 32 << 20

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// queuedJobResponse is the 202 body for all ingestion submissions.
func (s *Server) respondQueued(w http.ResponseWriter, jobID string) {
	s.respondJSON(w, http.StatusAccepted, map[string]string{
		"job_id": jobID,
		"status": string(models.JobQueued),
	})
}

func (s *Server) createJob(ctx context.Context, kind string) (string, error) {
	jobID := uuid.NewString()
	if err := s.store.CreateJob(ctx, &models.Job{ID: jobID, Kind: kind}); err != nil {
		return "", err
	}
	return jobID, nil
}

func (s *Server) saveUpload(src multipart.File, dest string) error {
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, src); err != nil {
		return err
	}
	return out.Close()
}

func (s *Server) handleIngestArchive(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("archive")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "multipart field 'archive' is required")
		return
	}
	defer file.Close()

	if err := os.MkdirAll(s.config.Ingest.ScratchDir, 0o755); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jobID, err := s.createJob(r.Context(), models.JobKindArchive)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	dest := filepath.Join(s.config.Ingest.ScratchDir, jobID+".zip")
	if err := s.saveUpload(file, dest); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	originName := header.Filename
	if err := s.queue.Enqueue(func() {
		defer os.Remove(dest)
		// The request context ends with the response; the job runs on its own.
		_ = s.runner.RunArchive(context.Background(), jobID, dest, originName)
	}); err != nil {
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.logger.Info("archive queued", zap.String("job_id", jobID), zap.String("archive", originName))
	s.respondQueued(w, jobID)
}

func (s *Server) handleIngestFiles(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		s.respondError(w, http.StatusBadRequest, "multipart field 'files' is required")
		return
	}

	jobID, err := s.createJob(r.Context(), models.JobKindFileSet)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	dir := filepath.Join(s.config.Ingest.ScratchDir, jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for _, header := range files {
		src, err := header.Open()
		if err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		err = s.saveUpload(src, filepath.Join(dir, filepath.Base(header.Filename)))
		src.Close()
		if err != nil {
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	if err := s.queue.Enqueue(func() {
		_ = s.runner.RunFileSet(context.Background(), jobID, dir)
	}); err != nil {
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.logger.Info("file set queued", zap.String("job_id", jobID), zap.Int("files", len(files)))
	s.respondQueued(w, jobID)
}

type createUploadRequest struct {
	Filename string `json:"filename"`
}

func (s *Server) handleCreateUpload(w http.ResponseWriter, r *http.Request) {
	if s.objects == nil {
		s.respondError(w, http.StatusNotImplemented, "object storage not configured")
		return
	}
	var req createUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Filename == "" {
		s.respondError(w, http.StatusBadRequest, "filename is required")
		return
	}

	id := uuid.NewString()
	object := fmt.Sprintf("uploads/%s/%s", id, filepath.Base(req.Filename))
	uploadID, err := s.objects.CreateMultipartUpload(r.Context(), object)
	if err != nil {
		s.logger.Error("multipart upload creation failed", zap.Error(err))
		s.respondError(w, http.StatusBadGateway, err.Error())
		return
	}

	s.uploadsMu.Lock()
	s.uploads[id] = &uploadSession{object: object, uploadID: uploadID}
	s.uploadsMu.Unlock()

	s.respondJSON(w, http.StatusCreated, map[string]string{
		"upload_id": id,
		"object":    object,
	})
}

func (s *Server) uploadSessionByID(id string) *uploadSession {
	s.uploadsMu.Lock()
	defer s.uploadsMu.Unlock()
	return s.uploads[id]
}

func (s *Server) handleUploadPart(w http.ResponseWriter, r *http.Request) {
	if s.objects == nil {
		s.respondError(w, http.StatusNotImplemented, "object storage not configured")
		return
	}
	session := s.uploadSessionByID(chi.URLParam(r, "id"))
	if session == nil {
		s.respondError(w, http.StatusNotFound, "upload not found")
		return
	}
	partNumber, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil || partNumber < 1 {
		s.respondError(w, http.StatusBadRequest, "part number must be a positive integer")
		return
	}
	if r.ContentLength < 0 {
		s.respondError(w, http.StatusLengthRequired, "Content-Length is required")
		return
	}

	part, err := s.objects.UploadPart(r.Context(), session.object, session.uploadID, partNumber, r.Body, r.ContentLength)
	if err != nil {
		s.logger.Error("part upload failed", zap.Int("part", partNumber), zap.Error(err))
		s.respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	session.mu.Lock()
	session.parts = append(session.parts, part)
	session.mu.Unlock()

	s.respondJSON(w, http.StatusOK, part)
}

func (s *Server) handleCompleteUpload(w http.ResponseWriter, r *http.Request) {
	if s.objects == nil {
		s.respondError(w, http.StatusNotImplemented, "object storage not configured")
		return
	}
	id := chi.URLParam(r, "id")
	session := s.uploadSessionByID(id)
	if session == nil {
		s.respondError(w, http.StatusNotFound, "upload not found")
		return
	}
	session.mu.Lock()
	parts := append([]*objectstore.Part(nil), session.parts...)
	session.mu.Unlock()
	if len(parts) == 0 {
		s.respondError(w, http.StatusBadRequest, "no parts uploaded")
		return
	}

	if err := s.objects.CompleteMultipartUpload(r.Context(), session.object, session.uploadID, parts); err != nil {
		s.logger.Error("multipart completion failed", zap.Error(err))
		s.respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.uploadsMu.Lock()
	delete(s.uploads, id)
	s.uploadsMu.Unlock()

	jobID, err := s.createJob(r.Context(), models.JobKindRemoteObject)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	object := session.object
	if err := s.queue.Enqueue(func() {
		_ = s.runner.RunRemoteObject(context.Background(), jobID, object)
	}); err != nil {
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.logger.Info("remote archive queued", zap.String("job_id", jobID), zap.String("object", object))
	s.respondQueued(w, jobID)
}

func (s *Server) handleAbortUpload(w http.ResponseWriter, r *http.Request) {
	if s.objects == nil {
		s.respondError(w, http.StatusNotImplemented, "object storage not configured")
		return
	}
	id := chi.URLParam(r, "id")
	session := s.uploadSessionByID(id)
	if session == nil {
		s.respondError(w, http.StatusNotFound, "upload not found")
		return
	}
	if err := s.objects.AbortMultipartUpload(r.Context(), session.object, session.uploadID); err != nil {
		s.logger.Error("multipart abort failed", zap.Error(err))
		s.respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.uploadsMu.Lock()
	delete(s.uploads, id)
	s.uploadsMu.Unlock()
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "aborted"})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.store.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusNotFound, "job not found")
		return
	}
	s.respondJSON(w, http.StatusOK, job)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if query.Query == "" {
		s.respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	s.logger.Debug("search request", zap.String("query", query.Query), zap.Int("limit", query.Limit))
	response, err := s.engine.Search(r.Context(), &query)
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

type askRequest struct {
	Question string `json:"question"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Question == "" {
		s.respondError(w, http.StatusBadRequest, "question is required")
		return
	}
	response, err := s.engine.Ask(r.Context(), req.Question)
	if err != nil {
		s.logger.Error("ask failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > s.config.Search.MaxLimit {
		limit = s.config.Search.DefaultLimit
	}
	docs, err := s.store.ListDocuments(r.Context(), offset, limit)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if docs == nil {
		docs = []*models.Document{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusNotFound, "document not found")
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleGetDocumentChunks(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetDocument(r.Context(), id); err != nil {
		s.respondError(w, http.StatusNotFound, "document not found")
		return
	}
	chunks, err := s.store.GetChunksByDocID(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if chunks == nil {
		chunks = []*models.Chunk{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"chunks": chunks})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetDocument(r.Context(), id); err != nil {
		s.respondError(w, http.StatusNotFound, "document not found")
		return
	}
	if err := s.pipeline.DeleteDocument(r.Context(), id); err != nil {
		s.logger.Error("deletion failed", zap.String("doc_id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docCount, err := s.store.CountDocuments(ctx)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	chunkCount, err := s.store.CountChunks(ctx)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jobCount, err := s.store.CountJobs(ctx)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"documents": docCount,
		"chunks":    chunkCount,
		"jobs":      jobCount,
		"config": map[string]any{
			"chunk_size":           s.config.Ingest.ChunkSize,
			"chunk_overlap":        s.config.Ingest.ChunkOverlap,
			"embedding_model":      s.config.AI.EmbeddingModel,
			"embedding_dimensions": s.config.AI.EmbeddingDimensions,
			"max_concurrent_jobs":  s.config.Ingest.MaxConcurrentJobs,
			"object_storage":       s.objects != nil,
		},
	})
}
