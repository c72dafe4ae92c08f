package cleanup

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// tempAudioSuffix marks intermediate audio written next to the artifacts
const tempAudioSuffix = ".tmp.wav"

// Scheduler removes stale uploads and intermediate audio left behind by crashed runs
type Scheduler struct {
	tempDir   string
	outputDir string
	interval  time.Duration
	maxAge    time.Duration
	logger    zerolog.Logger
	stopChan  chan struct{}
	now       func() time.Time
}

// NewScheduler creates a new cleanup scheduler
func NewScheduler(tempDir, outputDir string, intervalMinutes, maxAgeHours int, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		tempDir:   tempDir,
		outputDir: outputDir,
		interval:  time.Duration(intervalMinutes) * time.Minute,
		maxAge:    time.Duration(maxAgeHours) * time.Hour,
		logger:    logger,
		stopChan:  make(chan struct{}),
		now:       time.Now,
	}
}

// Start runs one sweep immediately, then one per interval
func (s *Scheduler) Start() {
	s.logger.Info().Msg("Running initial temp file cleanup")
	s.RunOnce()

	ticker := time.NewTicker(s.interval)
	go func() {
		for {
			select {
			case <-ticker.C:
				s.RunOnce()
			case <-s.stopChan:
				ticker.Stop()
				return
			}
		}
	}()

	s.logger.Info().
		Dur("interval", s.interval).
		Dur("max_age", s.maxAge).
		Msg("Cleanup scheduler started")
}

// Stop stops the cleanup scheduler
func (s *Scheduler) Stop() {
	close(s.stopChan)
	s.logger.Info().Msg("Cleanup scheduler stopped")
}

// RunOnce sweeps both directories and returns how many files were deleted
func (s *Scheduler) RunOnce() (int, int64) {
	var count int
	var size int64

	// every old file under the upload root
	n, b := s.sweep(s.tempDir, func(string) bool { return true })
	count, size = count+n, size+b
	s.removeEmptyDirs(s.tempDir)

	// only intermediate audio under the artifact root
	if s.outputDir != "" {
		n, b = s.sweep(s.outputDir, func(path string) bool {
			return strings.HasSuffix(path, tempAudioSuffix)
		})
		count, size = count+n, size+b
	}

	if count > 0 {
		s.logger.Info().
			Int("files", count).
			Float64("freed_mb", float64(size)/(1024*1024)).
			Msg("Cleanup complete")
	}
	return count, size
}

func (s *Scheduler) sweep(root string, match func(path string) bool) (int, int64) {
	now := s.now()
	var count int
	var size int64

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Skip files we can't access
		}
		if d.IsDir() || !match(path) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}

		age := now.Sub(info.ModTime())
		if age <= s.maxAge {
			return nil
		}
		if err := os.Remove(path); err != nil {
			s.logger.Warn().Err(err).Str("path", path).Msg("Failed to delete old file")
			return nil
		}
		count++
		size += info.Size()
		s.logger.Debug().
			Str("file", filepath.Base(path)).
			Dur("age", age.Round(time.Hour)).
			Int64("size_kb", info.Size()/1024).
			Msg("Deleted old temp file")
		return nil
	})
	if err != nil {
		s.logger.Error().Err(err).Str("root", root).Msg("Error during cleanup")
	}
	return count, size
}

// removeEmptyDirs drops per-job upload directories that no longer hold files
func (s *Scheduler) removeEmptyDirs(root string) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		if children, err := os.ReadDir(dir); err == nil && len(children) == 0 {
			info, err := e.Info()
			if err == nil && s.now().Sub(info.ModTime()) > s.maxAge {
				os.Remove(dir)
			}
		}
	}
}

// EnsureDirs creates the directories if they don't exist
func EnsureDirs(logger zerolog.Logger, dirs ...string) error {
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
		logger.Debug().Str("dir", dir).Msg("Directory ready")
	}
	return nil
}
