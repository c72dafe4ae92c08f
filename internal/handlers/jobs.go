package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/queue"
	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/storage"
)

// JobHistory reads jobs that finished before the current process started
type JobHistory interface {
	GetJob(jobID string) (map[string]interface{}, error)
	ListJobs(limit int) ([]map[string]interface{}, error)
	ListArtifacts(jobID string) ([]map[string]interface{}, error)
}

// JobsHandler serves job status and artifact downloads
type JobsHandler struct {
	workerPool *queue.WorkerPool
	history    JobHistory
}

// NewJobsHandler creates a jobs handler; history may be nil
func NewJobsHandler(workerPool *queue.WorkerPool, history JobHistory) *JobsHandler {
	return &JobsHandler{workerPool: workerPool, history: history}
}

// List returns live jobs and, when available, the persisted history
func (h *JobsHandler) List(c *fiber.Ctx) error {
	resp := fiber.Map{"jobs": h.workerPool.List()}
	if h.history != nil {
		limit := c.QueryInt("limit", 50)
		history, err := h.history.ListJobs(limit)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error(), "code": "ERR_DB"})
		}
		resp["history"] = history
	}
	return c.JSON(resp)
}

// Get returns one job, live or persisted
func (h *JobsHandler) Get(c *fiber.Ctx) error {
	id := c.Params("id")
	if job, ok := h.workerPool.Get(id); ok {
		return c.JSON(job.Snapshot())
	}

	if h.history != nil {
		if job, err := h.history.GetJob(id); err == nil {
			if artifacts, err := h.history.ListArtifacts(id); err == nil {
				job["artifacts"] = artifacts
			}
			return c.JSON(job)
		}
	}
	return jobNotFound(c)
}

// File downloads one artifact of a job by base name
func (h *JobsHandler) File(c *fiber.Ctx) error {
	dir, ok := h.jobDir(c.Params("id"))
	if !ok {
		return jobNotFound(c)
	}

	path, err := storage.ResolveArtifact(dir, c.Params("name"))
	if err != nil {
		if errors.Is(err, storage.ErrArtifactNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "Artifact not found", "code": "ERR_ARTIFACT_NOT_FOUND"})
		}
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Download(path)
}

// Archive downloads the zip bundle of a job
func (h *JobsHandler) Archive(c *fiber.Ctx) error {
	id := c.Params("id")
	var archive string
	if job, ok := h.workerPool.Get(id); ok {
		archive = job.ArchivePath()
	} else if h.history != nil {
		if job, err := h.history.GetJob(id); err == nil {
			archive, _ = job["archive_path"].(string)
		} else {
			return jobNotFound(c)
		}
	} else {
		return jobNotFound(c)
	}

	if archive == "" {
		return c.Status(404).JSON(fiber.Map{"error": "Job has no archive", "code": "ERR_NO_ARCHIVE"})
	}
	return c.Download(archive)
}

func (h *JobsHandler) jobDir(id string) (string, bool) {
	if job, ok := h.workerPool.Get(id); ok {
		dir := job.OutputDir()
		return dir, dir != ""
	}
	if h.history != nil {
		if job, err := h.history.GetJob(id); err == nil {
			dir, _ := job["local_dir"].(string)
			return dir, dir != ""
		}
	}
	return "", false
}

func jobNotFound(c *fiber.Ctx) error {
	return c.Status(404).JSON(fiber.Map{
		"error": "Job not found",
		"code":  "ERR_JOB_NOT_FOUND",
	})
}
