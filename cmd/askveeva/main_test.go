package main

import (
	"archive/zip"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func writeTestArchive(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docs.zip")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w := zip.NewWriter(f)
	mw, err := w.Create("doc.txt")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := mw.Write([]byte("content")); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestUploadArchive(t *testing.T) {
	var gotField string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/ingest/archive" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if _, _, err := r.FormFile("archive"); err == nil {
			gotField = "archive"
		}
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{"job_id": "j-123", "status": "queued"})
	}))
	defer srv.Close()

	jobID, err := uploadArchive(srv.URL, writeTestArchive(t))
	if err != nil {
		t.Fatal(err)
	}
	if jobID != "j-123" {
		t.Errorf("job id = %s", jobID)
	}
	if gotField != "archive" {
		t.Error("archive form field not sent")
	}
}

func TestUploadArchiveServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := uploadArchive(srv.URL, writeTestArchive(t)); err == nil {
		t.Fatal("5xx response must surface as error")
	}
}

func TestFetchJob(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/jobs/j-9" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "j-9", "kind": "archive", "status": "done",
			"total_files": 4, "processed_files": 4,
		})
	}))
	defer srv.Close()

	job, err := fetchJob(srv.URL, "j-9")
	if err != nil {
		t.Fatal(err)
	}
	if !job.Terminal() || job.ProcessedFiles != 4 {
		t.Errorf("job = %+v", job)
	}
}
