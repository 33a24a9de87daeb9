// Package main is the Ask Veeva CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/electrohub/askveeva/internal/chunker"
	"github.com/electrohub/askveeva/internal/config"
	"github.com/electrohub/askveeva/internal/embedding"
	"github.com/electrohub/askveeva/internal/extract"
	"github.com/electrohub/askveeva/internal/ingest"
	"github.com/electrohub/askveeva/internal/jobs"
	"github.com/electrohub/askveeva/internal/keyword"
	"github.com/electrohub/askveeva/internal/models"
	"github.com/electrohub/askveeva/internal/objectstore"
	"github.com/electrohub/askveeva/internal/search"
	"github.com/electrohub/askveeva/internal/server"
	"github.com/electrohub/askveeva/internal/storage"
	"github.com/electrohub/askveeva/internal/transcribe"
	"github.com/electrohub/askveeva/internal/watcher"
	"github.com/electrohub/askveeva/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/askveeva/config.yaml"

const defaultServerURL = "http://localhost:8088"

// loadConfig loads config from path. When path is the default, a config.yaml
// in the current directory takes precedence so running from the project dir
// picks up the local config.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	switch os.Args[1] {
	case "server":
		runServer()
	case "ingest":
		runIngest()
	case "search":
		runSearch()
	case "ask":
		runAsk()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("askveeva version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: askveeva <command> [flags]

Commands:
  server    Run the ingestion and search API server
  ingest    Upload a ZIP archive to a running server
  search    Search indexed document chunks
  ask       Ask a question over the indexed documents
  status    Show corpus counts and configuration
  version   Print the version`)
}

// components holds the wired application services.
type components struct {
	Store     storage.Store
	Keyword   keyword.Index
	Embedder  embedding.Embedder
	Pipeline  *ingest.Pipeline
	Runner    *ingest.Runner
	Scheduler *jobs.Scheduler
	Engine    *search.Engine
	Objects   *objectstore.Store
}

// Close releases component resources in reverse dependency order.
func (c *components) Close() {
	if c.Keyword != nil {
		_ = c.Keyword.Close()
	}
	if c.Store != nil {
		_ = c.Store.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*components, error) {
	dbURL := cfg.Database.URL
	if dbURL == "" {
		return nil, fmt.Errorf("database url is not configured (set database.url or DATABASE_URL)")
	}
	store, err := storage.NewPostgres(ctx, dbURL, cfg.AI.EmbeddingDimensions)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	kw, err := keyword.NewBleveIndex(cfg.Search.KeywordIndexPath)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("keyword index: %w", err)
	}

	embedder, err := embedding.NewOpenAIEmbedder(cfg.AI.BaseURL, cfg.AI.APIKey, cfg.AI.EmbeddingModel, cfg.AI.EmbeddingDimensions)
	if err != nil {
		kw.Close()
		store.Close()
		return nil, fmt.Errorf("embedder: %w", err)
	}

	extractOpts := []extract.Option{
		extract.WithMaxMediaMB(cfg.Ingest.MaxMediaMB),
		extract.WithSheetCharLimit(cfg.Ingest.SheetCharLimit),
		extract.WithLogger(logger),
	}
	if cfg.AI.APIKey != "" || cfg.AI.BaseURL != "" {
		extractOpts = append(extractOpts,
			extract.WithTranscriber(transcribe.NewOpenAI(cfg.AI.BaseURL, cfg.AI.APIKey, cfg.AI.TranscribeModel)))
	}
	extractor := extract.NewExtractor(extractOpts...)

	pipeline := ingest.NewPipeline(store, embedder, kw, extractor,
		chunker.New(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap), cfg.Ingest.EmbedBatchSize, logger)

	var objects *objectstore.Store
	if cfg.ObjectStore.Endpoint != "" {
		objects, err = objectstore.New(ctx, &cfg.ObjectStore)
		if err != nil {
			kw.Close()
			store.Close()
			return nil, fmt.Errorf("object store: %w", err)
		}
	}

	runnerOpts := []ingest.RunnerOption{
		ingest.WithProgressEvery(cfg.Ingest.ProgressEvery),
		ingest.WithFilePause(time.Duration(cfg.Ingest.FilePauseMS) * time.Millisecond),
	}
	if objects != nil {
		runnerOpts = append(runnerOpts, ingest.WithObjectDownloader(objects))
	}
	runner := ingest.NewRunner(store, pipeline, cfg.Ingest.ScratchDir, logger, runnerOpts...)

	scheduler, err := jobs.NewScheduler(cfg.Ingest.MaxConcurrentJobs, jobs.WithLogger(logger))
	if err != nil {
		kw.Close()
		store.Close()
		return nil, fmt.Errorf("scheduler: %w", err)
	}

	llm, err := newChatModel(cfg)
	if err != nil {
		logger.Warn("chat model unavailable, /api/v1/ask disabled", zap.Error(err))
	}
	engine := search.NewEngine(store, embedder, kw, llm, &cfg.Search, logger)

	return &components{
		Store:     store,
		Keyword:   kw,
		Embedder:  embedder,
		Pipeline:  pipeline,
		Runner:    runner,
		Scheduler: scheduler,
		Engine:    engine,
		Objects:   objects,
	}, nil
}

func newChatModel(cfg *config.Config) (*openai.LLM, error) {
	token := cfg.AI.APIKey
	if token == "" {
		token = "none"
	}
	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithModel(cfg.AI.ChatModel),
	}
	if cfg.AI.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.AI.BaseURL))
	}
	return openai.New(opts...)
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedPath),
		zap.Bool("debug", debugMode))

	ctx := context.Background()
	comps, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer comps.Close()

	var dropWatcher *watcher.Watcher
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if cfg.Watch.Directory != "" {
		runner := comps.Runner
		store := comps.Store
		scheduler := comps.Scheduler
		dropWatcher = watcher.New(cfg.Watch.Directory, func(path string) {
			job := &models.Job{ID: uuid.NewString(), Kind: models.JobKindArchive}
			if err := store.CreateJob(context.Background(), job); err != nil {
				logger.Warn("failed to create job for dropped archive", zap.String("path", path), zap.Error(err))
				return
			}
			err := scheduler.Enqueue(func() {
				defer os.Remove(path)
				_ = runner.RunArchive(context.Background(), job.ID, path, filepath.Base(path))
			})
			if err != nil {
				logger.Warn("failed to queue dropped archive", zap.String("path", path), zap.Error(err))
			}
		}, watcher.WithLogger(logger))
		if err := dropWatcher.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start drop watcher", zap.Error(err))
		}
	}

	var uploads server.ObjectUploads
	if comps.Objects != nil {
		uploads = comps.Objects
	}
	srv := server.NewServer(comps.Store, comps.Engine, comps.Pipeline, comps.Runner,
		comps.Scheduler, uploads, cfg, logger)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if dropWatcher != nil {
		dropWatcher.Stop()
	}
	watchCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := comps.Scheduler.Shutdown(shutdownCtx); err != nil {
		logger.Warn("jobs still running at shutdown", zap.Error(err))
	}
	_ = srv.Stop(shutdownCtx)
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	wait := fs.Bool("wait", false, "poll the job until it finishes")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: askveeva ingest [flags] <archive.zip>")
		os.Exit(1)
	}
	archivePath := fs.Arg(0)

	jobID, err := uploadArchive(*serverURL, archivePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("queued job %s\n", jobID)
	if !*wait {
		return
	}
	for {
		time.Sleep(2 * time.Second)
		job, err := fetchJob(*serverURL, jobID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Job poll failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s: %d/%d files\n", job.Status, job.ProcessedFiles, job.TotalFiles)
		if job.Terminal() {
			if job.Status == models.JobError {
				fmt.Fprintf(os.Stderr, "job failed: %s\n", job.Error)
				os.Exit(1)
			}
			return
		}
	}
}

func uploadArchive(serverURL, archivePath string) (string, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("archive", filepath.Base(archivePath))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	resp, err := http.Post(serverURL+"/api/v1/ingest/archive", mw.FormDataContentType(), &body)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var queued struct {
		JobID string `json:"job_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&queued); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return queued.JobID, nil
}

func fetchJob(serverURL, jobID string) (*models.Job, error) {
	resp, err := http.Get(serverURL + "/api/v1/jobs/" + jobID)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var job models.Job
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return nil, err
	}
	return &job, nil
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	limit := fs.Int("limit", 10, "number of results")
	keywordWeight := fs.Float64("keyword-weight", 0, "keyword score weight (0 disables keyword search)")
	semanticWeight := fs.Float64("semantic-weight", 0, "semantic score weight (both zero = semantic only)")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: askveeva search [flags] <query>")
		os.Exit(1)
	}
	query := &models.SearchQuery{
		Query:          strings.TrimSpace(strings.Join(fs.Args(), " ")),
		Limit:          *limit,
		KeywordWeight:  *keywordWeight,
		SemanticWeight: *semanticWeight,
	}

	body, err := json.Marshal(query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	resp, err := http.Post(*serverURL+"/api/v1/search", "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Search failed: server returned %d: %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}
	var response models.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%d results (%dms)\n\n", response.Total, response.QueryTime)
	for i, m := range response.Results {
		fmt.Printf("%d. %s (chunk %d, score %.3f)\n", i+1, m.Filename, m.ChunkIndex, m.Score)
		fmt.Printf("   %s\n\n", utils.Truncate(strings.ReplaceAll(m.Content, "\n", " "), 200))
	}
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: askveeva ask [flags] <question>")
		os.Exit(1)
	}
	question := strings.TrimSpace(strings.Join(fs.Args(), " "))

	body, err := json.Marshal(map[string]string{"question": question})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
		os.Exit(1)
	}
	resp, err := http.Post(*serverURL+"/api/v1/ask", "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Ask failed: server returned %d: %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}
	var answer models.AskResponse
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(answer.Answer)
	if len(answer.Sources) > 0 {
		fmt.Println("\nSources:")
		for _, src := range answer.Sources {
			fmt.Printf("  - %s (chunk %d, score %.3f)\n", src.Filename, src.ChunkIndex, src.Score)
		}
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	resp, err := http.Get(*serverURL + "/api/v1/status")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Status failed: server returned %d: %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}

	if *outputFormat == "json" {
		fmt.Println(string(data))
		return
	}
	var status struct {
		Documents int64          `json:"documents"`
		Chunks    int64          `json:"chunks"`
		Jobs      int64          `json:"jobs"`
		Config    map[string]any `json:"config"`
	}
	if err := json.Unmarshal(data, &status); err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("documents: %d\nchunks: %d\njobs: %d\n", status.Documents, status.Chunks, status.Jobs)
	if len(status.Config) > 0 {
		fmt.Println("config:")
		for k, v := range status.Config {
			fmt.Printf("  %s: %v\n", k, v)
		}
	}
}
