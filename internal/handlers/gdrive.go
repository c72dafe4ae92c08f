package handlers

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/media"
	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/queue"
	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/storage"
	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/types"
)

var (
	driveFilePattern = regexp.MustCompile(`/file/d/([a-zA-Z0-9_-]+)`)
	driveIDPattern   = regexp.MustCompile(`[?&]id=([a-zA-Z0-9_-]+)`)
	driveBarePattern = regexp.MustCompile(`^([a-zA-Z0-9_-]{25,40})$`)
)

// GDriveHandler downloads a shared Drive waveform and queues it as a one-file job
type GDriveHandler struct {
	workerPool   *queue.WorkerPool
	tempDir      string
	maxSizeMB    int
	defaults     types.ProcessingOptions
	httpClient   *http.Client
	downloadBase string
	logger       zerolog.Logger
}

// NewGDriveHandler creates a new Google Drive handler
func NewGDriveHandler(workerPool *queue.WorkerPool, tempDir string, maxSizeMB int, defaults types.ProcessingOptions, logger zerolog.Logger) *GDriveHandler {
	return &GDriveHandler{
		workerPool:   workerPool,
		tempDir:      tempDir,
		maxSizeMB:    maxSizeMB,
		defaults:     defaults,
		httpClient:   &http.Client{Timeout: 10 * time.Minute},
		downloadBase: "https://drive.google.com/uc?export=download&id=",
		logger:       logger,
	}
}

// GDriveRequest represents the request body. Options fields that are omitted keep the server defaults.
type GDriveRequest struct {
	URL        string                  `json:"url"`
	Name       string                  `json:"name"`
	StartClock string                  `json:"start_clock"`
	Archive    bool                    `json:"archive"`
	Options    types.ProcessingOptions `json:"options"`
}

// Handle processes Google Drive link requests
func (h *GDriveHandler) Handle(c *fiber.Ctx) error {
	req := GDriveRequest{Options: h.defaults}
	req.Options.Temperatures = slices.Clone(h.defaults.Temperatures)
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "Invalid request body",
			"code":  "ERR_INVALID_BODY",
		})
	}

	if req.URL == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "URL is required",
			"code":  "ERR_NO_URL",
		})
	}

	fileID := extractGDriveFileID(req.URL)
	if fileID == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "Invalid Google Drive URL",
			"code":  "ERR_INVALID_URL",
		})
	}

	if err := req.Options.Validate(); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": err.Error(),
			"code":  "ERR_INVALID_OPTIONS",
		})
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "gdrive_" + fileID
	}
	fileName := storage.SanitizeFilename(strings.TrimSuffix(name, filepath.Ext(name))) + ".wav"

	jobID := uuid.New().String()
	uploadDir := filepath.Join(h.tempDir, jobID)
	tempPath := filepath.Join(uploadDir, fileName)

	h.logger.Info().Str("job_id", jobID).Str("file_id", fileID).Msg("Downloading from Google Drive")
	if status, code, err := h.download(c, fileID, tempPath); err != nil {
		h.logger.Warn().Err(err).Str("file_id", fileID).Msg("Google Drive download failed")
		os.RemoveAll(uploadDir)
		return c.Status(status).JSON(fiber.Map{
			"error": err.Error(),
			"code":  code,
		})
	}

	job := queue.NewJob(jobID, name, types.SourceGDrive, []string{tempPath}, uploadDir, req.Options)
	job.StartClock = strings.TrimSpace(req.StartClock)
	job.Archive = req.Archive

	return enqueue(c, h.workerPool, job, "Google Drive file downloaded, processing started")
}

// download fetches the file and returns the HTTP status and code to report on failure
func (h *GDriveHandler) download(c *fiber.Ctx, fileID, dst string) (int, string, error) {
	req, err := http.NewRequestWithContext(c.UserContext(), http.MethodGet, h.downloadBase+fileID, nil)
	if err != nil {
		return 500, "ERR_DOWNLOAD_FAILED", err
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return 502, "ERR_DOWNLOAD_FAILED", fmt.Errorf("failed to download file from Google Drive: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 400, "ERR_FILE_NOT_ACCESSIBLE", fmt.Errorf("file not accessible (may be private or doesn't exist): HTTP %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return 500, "ERR_SAVE_FAILED", err
	}
	out, err := os.Create(dst)
	if err != nil {
		return 500, "ERR_SAVE_FAILED", fmt.Errorf("failed to save downloaded file: %w", err)
	}

	maxSize := int64(h.maxSizeMB) * 1024 * 1024
	n, err := io.Copy(out, io.LimitReader(resp.Body, maxSize+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 500, "ERR_WRITE_FAILED", fmt.Errorf("failed to write downloaded file: %w", err)
	}
	if n > maxSize {
		return 400, "ERR_FILE_TOO_LARGE", fmt.Errorf("file too large (max %dMB)", h.maxSizeMB)
	}
	if !media.IsWAVFile(dst) {
		return 400, "ERR_INVALID_FORMAT", fmt.Errorf("downloaded file is not a WAV recording")
	}
	return 0, "", nil
}

// extractGDriveFileID extracts the file ID from various Google Drive URL formats
func extractGDriveFileID(url string) string {
	// https://drive.google.com/file/d/{ID}/view
	if matches := driveFilePattern.FindStringSubmatch(url); len(matches) > 1 {
		return matches[1]
	}

	// https://drive.google.com/open?id={ID}
	if matches := driveIDPattern.FindStringSubmatch(url); len(matches) > 1 {
		return matches[1]
	}

	// Direct ID (25-40 characters)
	if matches := driveBarePattern.FindStringSubmatch(url); len(matches) > 1 {
		return matches[1]
	}

	return ""
}
