package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/types"
)

// ManifestName is the per-job metadata file written next to the artifacts
const ManifestName = "_meta.json"

// ErrArtifactNotFound is returned when a requested artifact is not inside the job directory
var ErrArtifactNotFound = errors.New("artifact not found")

// Manifest describes one finished job directory
type Manifest struct {
	JobID       string                  `json:"job_id"`
	RequestName string                  `json:"request_name"`
	SourceType  string                  `json:"source_type"`
	Status      string                  `json:"status"`
	Error       string                  `json:"error,omitempty"`
	Options     types.ProcessingOptions `json:"options"`
	StartClock  string                  `json:"start_clock,omitempty"`
	Model       string                  `json:"model_used"`
	Files       []*types.FileResult     `json:"files"`
	Warnings    []string                `json:"warnings,omitempty"`
	Archive     string                  `json:"archive,omitempty"`
	GDriveURL   string                  `json:"gdrive_url,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
	CompletedAt time.Time               `json:"completed_at"`
}

// LocalStorage lays out job output directories on the local filesystem
type LocalStorage struct {
	outputDir string
}

// NewLocalStorage creates a new local storage handler
func NewLocalStorage(outputDir string) *LocalStorage {
	return &LocalStorage{
		outputDir: outputDir,
	}
}

// OutputDir returns the storage root
func (ls *LocalStorage) OutputDir() string {
	return ls.outputDir
}

// JobDir creates the dated directory for a job: outputs/2025/01/23/20250123_143022_<name>_<id8>
func (ls *LocalStorage) JobDir(jobID, requestName string, at time.Time) (string, error) {
	dateDir := filepath.Join(ls.outputDir,
		fmt.Sprintf("%d", at.Year()),
		fmt.Sprintf("%02d", at.Month()),
		fmt.Sprintf("%02d", at.Day()))

	short := jobID
	if len(short) > 8 {
		short = short[:8]
	}
	dir := filepath.Join(dateDir, fmt.Sprintf("%s_%s_%s", at.Format("20060102_150405"), SanitizeFilename(requestName), short))

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create job directory: %w", err)
	}
	return dir, nil
}

// SaveManifest writes the manifest into dir and returns its path
func (ls *LocalStorage) SaveManifest(dir string, m *Manifest) (string, error) {
	metaJSON, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal manifest: %w", err)
	}

	metaPath := filepath.Join(dir, ManifestName)
	if err := os.WriteFile(metaPath, metaJSON, 0644); err != nil {
		return "", fmt.Errorf("failed to save manifest: %w", err)
	}
	return metaPath, nil
}

// LoadManifest reads the manifest of a job directory
func (ls *LocalStorage) LoadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}

// ResolveArtifact returns the path of name inside dir, refusing anything that is
// not a plain file name directly under dir
func ResolveArtifact(dir, name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." || name == ManifestName {
		return "", fmt.Errorf("%w: %q", ErrArtifactNotFound, name)
	}
	path := filepath.Join(dir, name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("%w: %q", ErrArtifactNotFound, name)
	}
	return path, nil
}

// SanitizeFilename replaces path separators and reserved characters with underscores
func SanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
		"\"", "_", "<", "_", ">", "_", "|", "_", "\x00", "_",
	)
	result := strings.Trim(replacer.Replace(strings.TrimSpace(name)), ". ")
	if result == "" {
		result = "untitled"
	}
	if r := []rune(result); len(r) > 100 {
		result = string(r[:100]) // Limit length
	}
	return result
}
