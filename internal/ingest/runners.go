package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/electrohub/askveeva/internal/storage"
)

// zipMagic is the local-file-header signature every ZIP archive starts with.
var zipMagic = []byte{'P', 'K', 0x03, 0x04}

// ObjectDownloader fetches an object from remote storage into a local file.
type ObjectDownloader interface {
	DownloadToFile(ctx context.Context, object, path string) error
}

// Runner executes ingestion jobs: it drives the job state machine, walks the
// job's files through the pipeline, and reports progress.
type Runner struct {
	store         storage.Store
	pipeline      *Pipeline
	objects       ObjectDownloader
	scratchDir    string
	progressEvery int
	filePause     time.Duration
	logger        *zap.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithObjectDownloader enables remote-object jobs.
func WithObjectDownloader(d ObjectDownloader) RunnerOption {
	return func(r *Runner) { r.objects = d }
}

// WithProgressEvery sets how many files are processed between progress commits.
func WithProgressEvery(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.progressEvery = n
		}
	}
}

// WithFilePause sets the pause between consecutive files, throttling load on
// the embedding service during large archives.
func WithFilePause(d time.Duration) RunnerOption {
	return func(r *Runner) { r.filePause = d }
}

// NewRunner creates a job runner writing temporary files under scratchDir.
func NewRunner(store storage.Store, pipeline *Pipeline, scratchDir string, logger *zap.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		store:         store,
		pipeline:      pipeline,
		scratchDir:    scratchDir,
		progressEvery: 5,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunArchive ingests every supported file inside the ZIP at archivePath.
// originName is the archive's original filename, recorded in each member's
// storage path. The archive file itself is not removed.
func (r *Runner) RunArchive(ctx context.Context, jobID, archivePath, originName string) error {
	return r.run(ctx, jobID, func(ctx context.Context) error {
		return r.processArchive(ctx, jobID, archivePath, originName)
	})
}

// RunFileSet ingests every file under dir, then removes dir. Used for direct
// multi-file uploads the server has already written to scratch space.
func (r *Runner) RunFileSet(ctx context.Context, jobID, dir string) error {
	return r.run(ctx, jobID, func(ctx context.Context) error {
		defer os.RemoveAll(dir)
		files, err := collectFiles(dir)
		if err != nil {
			return err
		}
		return r.processFiles(ctx, jobID, files, "")
	})
}

// RunRemoteObject downloads a completed multipart archive from object storage
// and ingests it like a local archive. The local copy is always removed.
func (r *Runner) RunRemoteObject(ctx context.Context, jobID, object string) error {
	return r.run(ctx, jobID, func(ctx context.Context) error {
		if r.objects == nil {
			return fmt.Errorf("object storage is not configured")
		}
		local := filepath.Join(r.scratchDir, jobID+".zip")
		if err := os.MkdirAll(r.scratchDir, 0o755); err != nil {
			return err
		}
		defer os.Remove(local)
		if err := r.objects.DownloadToFile(ctx, object, local); err != nil {
			return err
		}
		return r.processArchive(ctx, jobID, local, filepath.Base(object))
	})
}

// run drives the job state machine around work: queued -> running, then
// done on success or error (with the message recorded) on failure.
func (r *Runner) run(ctx context.Context, jobID string, work func(context.Context) error) error {
	if err := r.store.MarkJobRunning(ctx, jobID); err != nil {
		return err
	}
	if err := work(ctx); err != nil {
		r.logger.Error("ingestion job failed", zap.String("job_id", jobID), zap.Error(err))
		if markErr := r.store.MarkJobError(ctx, jobID, err.Error()); markErr != nil {
			r.logger.Error("failed to record job error", zap.String("job_id", jobID), zap.Error(markErr))
		}
		return err
	}
	return nil
}

func (r *Runner) processArchive(ctx context.Context, jobID, archivePath, originName string) error {
	if err := checkZipMagic(archivePath); err != nil {
		return err
	}
	scratch := filepath.Join(r.scratchDir, jobID)
	defer os.RemoveAll(scratch)
	files, err := extractArchive(archivePath, scratch)
	if err != nil {
		return err
	}
	return r.processFiles(ctx, jobID, files, originName)
}

// processFiles ingests files in order, committing progress every
// progressEvery files and once at the end. The first failing file aborts the
// job; documents already ingested stay in place.
func (r *Runner) processFiles(ctx context.Context, jobID string, files []string, originName string) error {
	if err := r.store.SetJobTotal(ctx, jobID, len(files)); err != nil {
		return err
	}
	processed := 0
	for i, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		storagePath := filepath.Base(path)
		if originName != "" {
			storagePath = originName + "/" + filepath.Base(path)
		}
		if _, err := r.pipeline.IngestFile(ctx, path, storagePath); err != nil {
			return fmt.Errorf("file %s: %w", filepath.Base(path), err)
		}
		processed++
		if processed%r.progressEvery == 0 {
			if err := r.store.UpdateJobProgress(ctx, jobID, processed); err != nil {
				return err
			}
		}
		if r.filePause > 0 && i < len(files)-1 {
			select {
			case <-time.After(r.filePause):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return r.store.MarkJobDone(ctx, jobID, processed)
}

// checkZipMagic rejects files that do not start with the ZIP local-file-header
// signature before any extraction work.
func checkZipMagic(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()
	header := make([]byte, len(zipMagic))
	if _, err := io.ReadFull(f, header); err != nil {
		return fmt.Errorf("not a ZIP archive")
	}
	if !bytes.Equal(header, zipMagic) {
		return fmt.Errorf("not a ZIP archive")
	}
	return nil
}

// extractArchive unpacks the ZIP at archivePath into destDir and returns the
// extracted file paths sorted by archive member name. Directory entries,
// hidden files, and resource-fork noise are skipped. Member paths are
// validated against escaping destDir.
func extractArchive(archivePath, destDir string) ([]string, error) {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer reader.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, err
	}

	var files []string
	for _, member := range reader.File {
		if member.FileInfo().IsDir() {
			continue
		}
		name := filepath.Base(member.Name)
		if strings.HasPrefix(name, ".") || strings.Contains(member.Name, "__MACOSX") {
			continue
		}
		dest := filepath.Join(destDir, name)
		if !strings.HasPrefix(dest, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return nil, fmt.Errorf("archive member escapes extraction dir: %s", member.Name)
		}
		if err := extractMember(member, dest); err != nil {
			return nil, fmt.Errorf("extract %s: %w", member.Name, err)
		}
		files = append(files, dest)
	}
	sort.Strings(files)
	return files, nil
}

func extractMember(member *zip.File, dest string) error {
	src, err := member.Open()
	if err != nil {
		return err
	}
	defer src.Close()
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

// collectFiles lists regular files directly under dir, sorted by name.
func collectFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read upload dir: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}
