package queue

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/pipeline"
	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/types"
)

// Job represents one batch transcription request
type Job struct {
	ID          string
	RequestName string
	SourceType  string
	// Files are the uploaded sources in processing order; UploadDir owns them
	Files      []string
	UploadDir  string
	Options    types.ProcessingOptions
	StartClock string
	Archive    bool
	CreatedAt  time.Time

	mu          sync.RWMutex
	status      string
	err         string
	outputDir   string
	result      *pipeline.BatchResult
	gdriveURL   string
	completedAt time.Time
}

// NewJob creates a new job with default values
func NewJob(id, requestName, sourceType string, files []string, uploadDir string, opts types.ProcessingOptions) *Job {
	return &Job{
		ID:          id,
		RequestName: requestName,
		SourceType:  sourceType,
		Files:       files,
		UploadDir:   uploadDir,
		Options:     opts,
		CreatedAt:   time.Now(),
		status:      types.StatusQueued,
	}
}

// Status is a point-in-time view of a job, safe to serialize
type Status struct {
	ID          string              `json:"job_id"`
	RequestName string              `json:"request_name"`
	SourceType  string              `json:"source_type"`
	Status      string              `json:"status"`
	Error       string              `json:"error,omitempty"`
	FileCount   int                 `json:"file_count"`
	Failed      int                 `json:"failed"`
	Files       []*types.FileResult `json:"files,omitempty"`
	Outputs     []string            `json:"outputs,omitempty"`
	Warnings    []string            `json:"warnings,omitempty"`
	Archive     string              `json:"archive,omitempty"`
	GDriveURL   string              `json:"gdrive_url,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
}

// Done reports whether the status is terminal
func (s Status) Done() bool {
	switch s.Status {
	case types.StatusCompleted, types.StatusPartial, types.StatusFailed:
		return true
	}
	return false
}

// Snapshot returns the current state of the job. Outputs are reported as base names.
func (j *Job) Snapshot() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()

	s := Status{
		ID:          j.ID,
		RequestName: j.RequestName,
		SourceType:  j.SourceType,
		Status:      j.status,
		Error:       j.err,
		FileCount:   len(j.Files),
		GDriveURL:   j.gdriveURL,
		CreatedAt:   j.CreatedAt,
	}
	if !j.completedAt.IsZero() {
		at := j.completedAt
		s.CompletedAt = &at
	}
	if j.result != nil {
		s.Failed = j.result.Failed
		s.Files = j.result.Files
		s.Warnings = j.result.Warnings
		for _, p := range j.result.Outputs {
			s.Outputs = append(s.Outputs, filepath.Base(p))
		}
		if j.result.Archive != "" {
			s.Archive = filepath.Base(j.result.Archive)
		}
	}
	return s
}

// OutputDir returns the job directory once processing has started
func (j *Job) OutputDir() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.outputDir
}

// ArchivePath returns the bundled zip, if one was created
func (j *Job) ArchivePath() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.result == nil {
		return ""
	}
	return j.result.Archive
}

func (j *Job) setStatus(status string) {
	j.mu.Lock()
	j.status = status
	j.mu.Unlock()
}

func (j *Job) fail(err error) {
	j.mu.Lock()
	j.status = types.StatusFailed
	j.err = err.Error()
	j.completedAt = time.Now()
	j.mu.Unlock()
}
