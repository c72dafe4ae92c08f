package handlers

import (
	"errors"
	"fmt"
	"mime/multipart"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/media"
	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/queue"
	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/storage"
	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/types"
)

// UploadHandler accepts a batch of waveform files and queues one job for them
type UploadHandler struct {
	workerPool *queue.WorkerPool
	tempDir    string
	maxSizeMB  int
	maxFiles   int
	defaults   types.ProcessingOptions
	logger     zerolog.Logger
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(workerPool *queue.WorkerPool, tempDir string, maxSizeMB, maxFiles int, defaults types.ProcessingOptions, logger zerolog.Logger) *UploadHandler {
	return &UploadHandler{
		workerPool: workerPool,
		tempDir:    tempDir,
		maxSizeMB:  maxSizeMB,
		maxFiles:   maxFiles,
		defaults:   defaults,
		logger:     logger,
	}
}

// Handle processes the upload request
func (h *UploadHandler) Handle(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "Expected a multipart form",
			"code":  "ERR_INVALID_BODY",
		})
	}

	files := slices.Concat(form.File["files"], form.File["file"])
	if len(files) == 0 {
		return c.Status(400).JSON(fiber.Map{
			"error": "No file uploaded",
			"code":  "ERR_NO_FILE",
		})
	}
	if h.maxFiles > 0 && len(files) > h.maxFiles {
		return c.Status(400).JSON(fiber.Map{
			"error": fmt.Sprintf("Too many files (max %d)", h.maxFiles),
			"code":  "ERR_TOO_MANY_FILES",
		})
	}

	// Validate every file before anything touches the disk
	maxSize := int64(h.maxSizeMB) * 1024 * 1024
	names := make([]string, len(files))
	seen := make(map[string]bool, len(files))
	for i, file := range files {
		if file.Size > maxSize {
			return c.Status(400).JSON(fiber.Map{
				"error": fmt.Sprintf("File %s too large (max %dMB)", file.Filename, h.maxSizeMB),
				"code":  "ERR_FILE_TOO_LARGE",
			})
		}
		if !media.ValidateAudioFormat(file.Filename) {
			return c.Status(400).JSON(fiber.Map{
				"error": fmt.Sprintf("Unsupported audio format: %s (only .wav)", file.Filename),
				"code":  "ERR_INVALID_FORMAT",
			})
		}
		name := storage.SanitizeFilename(filepath.Base(file.Filename))
		key := strings.ToLower(strings.TrimSuffix(name, filepath.Ext(name)))
		if seen[key] {
			return c.Status(400).JSON(fiber.Map{
				"error": fmt.Sprintf("Duplicate file name in batch: %s", file.Filename),
				"code":  "ERR_DUPLICATE_NAME",
			})
		}
		seen[key] = true
		names[i] = name
	}

	opts, err := parseFormOptions(c, h.defaults)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": err.Error(),
			"code":  "ERR_INVALID_OPTIONS",
		})
	}

	archive := false
	if v := c.FormValue("archive"); v != "" {
		if archive, err = formBool(v); err != nil {
			return c.Status(400).JSON(fiber.Map{
				"error": "archive must be a boolean",
				"code":  "ERR_INVALID_OPTIONS",
			})
		}
	}

	requestName := strings.TrimSpace(c.FormValue("name"))
	if requestName == "" {
		requestName = "untitled"
	}

	jobID := uuid.New().String()
	uploadDir := filepath.Join(h.tempDir, jobID)
	paths, err := h.saveFiles(c, uploadDir, files, names)
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to save uploaded files")
		os.RemoveAll(uploadDir)
		return c.Status(500).JSON(fiber.Map{
			"error": "Failed to save file",
			"code":  "ERR_SAVE_FAILED",
		})
	}

	job := queue.NewJob(jobID, requestName, types.SourceUpload, paths, uploadDir, opts)
	job.StartClock = strings.TrimSpace(c.FormValue("start_clock"))
	job.Archive = archive

	return enqueue(c, h.workerPool, job, "Files uploaded successfully, processing started")
}

func (h *UploadHandler) saveFiles(c *fiber.Ctx, dir string, files []*multipart.FileHeader, names []string) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	paths := make([]string, len(files))
	for i, file := range files {
		paths[i] = filepath.Join(dir, names[i])
		if err := c.SaveFile(file, paths[i]); err != nil {
			return nil, err
		}
	}
	return paths, nil
}

// enqueue hands the job to the pool and writes the queued response
func enqueue(c *fiber.Ctx, wp *queue.WorkerPool, job *queue.Job, message string) error {
	if err := wp.EnqueueJob(job); err != nil {
		os.RemoveAll(job.UploadDir)
		status := 503
		code := "ERR_QUEUE_FULL"
		if errors.Is(err, queue.ErrPoolStopped) {
			code = "ERR_SHUTTING_DOWN"
		}
		return c.Status(status).JSON(fiber.Map{
			"error": err.Error(),
			"code":  code,
		})
	}

	return c.JSON(fiber.Map{
		"job_id":  job.ID,
		"status":  strings.ToLower(types.StatusQueued),
		"files":   len(job.Files),
		"message": message,
	})
}
