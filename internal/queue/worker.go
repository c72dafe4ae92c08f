package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/observability"
	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/pipeline"
	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/storage"
	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/types"
)

// ArchiveName is the zip bundled in the job directory when a job asks for one
const ArchiveName = "transcripts.zip"

var (
	// ErrQueueFull is returned when the job buffer is at capacity
	ErrQueueFull = errors.New("job queue is full")
	// ErrPoolStopped is returned when enqueueing after Shutdown
	ErrPoolStopped = errors.New("worker pool stopped")
)

// BatchRunner runs a batch through the transcription pipeline
type BatchRunner interface {
	ProcessBatch(ctx context.Context, b pipeline.Batch) (*pipeline.BatchResult, error)
}

// Uploader copies finished artifacts to remote storage and returns a link
type Uploader interface {
	Upload(ctx context.Context, folder string, paths []string) (string, error)
}

// MetadataStore persists job and artifact rows
type MetadataStore interface {
	SaveJob(rec storage.JobRecord) error
	SaveArtifacts(jobID string, file *types.FileResult) error
}

// WorkerPool manages a pool of workers processing transcription jobs
type WorkerPool struct {
	jobQueue     chan *Job
	workerCount  int
	runner       BatchRunner
	localStorage *storage.LocalStorage
	uploader     Uploader
	db           MetadataStore
	logger       zerolog.Logger
	retryBackoff func(attempt int) time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	jobs    map[string]*Job
	stopped bool
}

// NewWorkerPool creates a new worker pool. uploader and db may be nil.
func NewWorkerPool(
	workerCount int,
	runner BatchRunner,
	localStorage *storage.LocalStorage,
	uploader Uploader,
	db MetadataStore,
	logger zerolog.Logger,
) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		jobQueue:     make(chan *Job, 100), // Buffer of 100 jobs
		workerCount:  workerCount,
		runner:       runner,
		localStorage: localStorage,
		uploader:     uploader,
		db:           db,
		logger:       logger,
		retryBackoff: func(attempt int) time.Duration {
			return time.Duration(attempt*attempt) * time.Second
		},
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*Job),
	}
}

// Start initializes all workers
func (wp *WorkerPool) Start() {
	wp.logger.Info().Int("workers", wp.workerCount).Msg("Starting worker pool")
	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Shutdown stops accepting jobs and waits for queued ones. When ctx expires first the
// running batches are cancelled.
func (wp *WorkerPool) Shutdown(ctx context.Context) error {
	wp.mu.Lock()
	if !wp.stopped {
		wp.stopped = true
		close(wp.jobQueue)
	}
	wp.mu.Unlock()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		wp.cancel()
		return nil
	case <-ctx.Done():
		wp.cancel()
		<-done
		return ctx.Err()
	}
}

// EnqueueJob registers a job and adds it to the queue without blocking
func (wp *WorkerPool) EnqueueJob(job *Job) error {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if wp.stopped {
		return ErrPoolStopped
	}

	job.setStatus(types.StatusQueued)
	select {
	case wp.jobQueue <- job:
	default:
		return ErrQueueFull
	}
	wp.jobs[job.ID] = job
	observability.SetQueueDepth(len(wp.jobQueue))

	wp.logger.Info().
		Str("job_id", job.ID).
		Str("source", job.SourceType).
		Str("name", job.RequestName).
		Int("files", len(job.Files)).
		Msg("Job enqueued")
	return nil
}

// Get returns a registered job
func (wp *WorkerPool) Get(id string) (*Job, bool) {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	job, ok := wp.jobs[id]
	return job, ok
}

// List returns snapshots of all registered jobs, newest first
func (wp *WorkerPool) List() []Status {
	wp.mu.RLock()
	out := make([]Status, 0, len(wp.jobs))
	for _, job := range wp.jobs {
		out = append(out, job.Snapshot())
	}
	wp.mu.RUnlock()

	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	return out
}

// worker processes jobs from the queue
func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()
	logger := wp.logger.With().Int("worker", id).Logger()
	logger.Debug().Msg("Worker started")

	for job := range wp.jobQueue {
		observability.SetQueueDepth(len(wp.jobQueue))
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error().
						Str("job_id", job.ID).
						Str("stack", string(debug.Stack())).
						Msgf("PANIC processing job: %v", r)
					job.fail(fmt.Errorf("worker panic: %v", r))
					observability.RecordJob(types.StatusFailed)
				}
			}()

			wp.processJob(logger.With().Str("job_id", job.ID).Logger(), job)
		}()
	}
}

// processJob handles the complete batch lifecycle of one job
func (wp *WorkerPool) processJob(logger zerolog.Logger, job *Job) {
	logger.Info().Msg("Processing job")
	job.setStatus(types.StatusProcessing)
	defer wp.cleanupUploads(logger, job)

	// Step 1: job directory
	outDir, err := wp.localStorage.JobDir(job.ID, job.RequestName, job.CreatedAt)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create job directory")
		job.fail(err)
		observability.RecordJob(types.StatusFailed)
		return
	}
	job.mu.Lock()
	job.outputDir = outDir
	job.mu.Unlock()

	// Step 2: run the batch
	batch := pipeline.Batch{
		Files:      job.Files,
		OutputDir:  outDir,
		Options:    job.Options,
		StartClock: job.StartClock,
	}
	if job.Archive {
		batch.Archive = filepath.Join(outDir, ArchiveName)
	}
	result, err := wp.runner.ProcessBatch(wp.ctx, batch)
	status := types.StatusFailed
	if result != nil {
		status = result.Status()
	}

	job.mu.Lock()
	job.result = result
	if err != nil {
		job.err = err.Error()
		status = types.StatusFailed
	}
	job.mu.Unlock()

	// Step 3: upload to Google Drive (with retry)
	var driveURL string
	if wp.uploader != nil && result != nil && len(result.Outputs) > 0 {
		driveURL = wp.uploadWithRetry(logger, job, result)
	}

	completedAt := time.Now()
	job.mu.Lock()
	job.gdriveURL = driveURL
	job.completedAt = completedAt
	job.mu.Unlock()

	// Step 4: manifest next to the artifacts
	manifest := &storage.Manifest{
		JobID:       job.ID,
		RequestName: job.RequestName,
		SourceType:  job.SourceType,
		Status:      status,
		Options:     job.Options,
		StartClock:  job.StartClock,
		Model:       job.Options.ModelSize,
		GDriveURL:   driveURL,
		CreatedAt:   job.CreatedAt,
		CompletedAt: completedAt,
	}
	if err != nil {
		manifest.Error = err.Error()
	}
	if result != nil {
		manifest.Files = result.Files
		manifest.Warnings = result.Warnings
		manifest.Archive = result.Archive
	}
	if _, err := wp.localStorage.SaveManifest(outDir, manifest); err != nil {
		logger.Error().Err(err).Msg("Failed to save manifest")
	}

	// Step 5: save metadata to database
	if wp.db != nil {
		wp.saveMetadata(logger, job, manifest, outDir, result)
	}

	job.setStatus(status)
	observability.RecordJob(status)
	logger.Info().
		Str("status", status).
		Str("dir", outDir).
		Str("gdrive", driveURL).
		Msg("Job finished")
}

func (wp *WorkerPool) uploadWithRetry(logger zerolog.Logger, job *Job, result *pipeline.BatchResult) string {
	paths := append([]string(nil), result.Outputs...)
	if result.Archive != "" {
		paths = append(paths, result.Archive)
	}
	folder := filepath.Base(job.OutputDir())

	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		var url string
		url, err = wp.uploader.Upload(wp.ctx, folder, paths)
		if err == nil {
			return url
		}
		logger.Warn().Err(err).Int("attempt", attempt).Msg("Google Drive upload failed")
		if attempt < 3 {
			select {
			case <-time.After(wp.retryBackoff(attempt)):
			case <-wp.ctx.Done():
				return ""
			}
		}
	}
	logger.Warn().Msg("Google Drive upload failed after 3 attempts, keeping local copy only")
	job.mu.Lock()
	if job.result != nil {
		job.result.Warnings = append(job.result.Warnings, fmt.Sprintf("google drive upload failed: %v", err))
	}
	job.mu.Unlock()
	return ""
}

func (wp *WorkerPool) saveMetadata(logger zerolog.Logger, job *Job, m *storage.Manifest, outDir string, result *pipeline.BatchResult) {
	rec := storage.JobRecord{
		JobID:       job.ID,
		RequestName: job.RequestName,
		SourceType:  job.SourceType,
		Status:      m.Status,
		Error:       m.Error,
		ModelSize:   job.Options.ModelSize,
		LocalDir:    outDir,
		GDriveURL:   m.GDriveURL,
		ArchivePath: m.Archive,
		FileCount:   len(job.Files),
		CreatedAt:   job.CreatedAt,
		CompletedAt: m.CompletedAt,
	}
	if result != nil {
		rec.FailedCount = result.Failed
	}
	if err := wp.db.SaveJob(rec); err != nil {
		logger.Error().Err(err).Msg("Database save failed")
		return
	}
	if result == nil {
		return
	}
	for _, fr := range result.Files {
		if fr.Error != "" {
			continue
		}
		if err := wp.db.SaveArtifacts(job.ID, fr); err != nil {
			logger.Error().Err(err).Str("file", filepath.Base(fr.Source)).Msg("Artifact save failed")
		}
	}
}

// cleanupUploads removes the uploaded sources of a job
func (wp *WorkerPool) cleanupUploads(logger zerolog.Logger, job *Job) {
	if job.UploadDir != "" {
		if err := os.RemoveAll(job.UploadDir); err != nil {
			logger.Warn().Err(err).Str("dir", job.UploadDir).Msg("Failed to cleanup upload directory")
		}
		return
	}
	for _, path := range job.Files {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn().Err(err).Str("path", path).Msg("Failed to cleanup temp file")
		}
	}
}
