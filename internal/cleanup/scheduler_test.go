package cleanup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string, age time.Duration) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("data"), 0644))
	at := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, at, at))
}

func TestRunOnce_RemovesStaleFiles(t *testing.T) {
	tempDir, outDir := t.TempDir(), t.TempDir()

	staleUpload := filepath.Join(tempDir, "job-1", "call1.wav")
	freshUpload := filepath.Join(tempDir, "job-2", "call2.wav")
	leakedTemp := filepath.Join(outDir, "2025", "01", "23", "job", "call1.L.tmp.wav")
	oldArtifact := filepath.Join(outDir, "2025", "01", "23", "job", "call1__agente.txt")

	touch(t, staleUpload, 48*time.Hour)
	touch(t, freshUpload, time.Minute)
	touch(t, leakedTemp, 48*time.Hour)
	touch(t, oldArtifact, 48*time.Hour)

	s := NewScheduler(tempDir, outDir, 30, 24, zerolog.Nop())
	count, size := s.RunOnce()

	assert.Equal(t, 2, count)
	assert.Equal(t, int64(8), size)
	assert.NoFileExists(t, staleUpload)
	assert.NoFileExists(t, leakedTemp)
	assert.FileExists(t, freshUpload)
	assert.FileExists(t, oldArtifact)
}

func TestRunOnce_RemovesEmptyUploadDirs(t *testing.T) {
	tempDir := t.TempDir()
	empty := filepath.Join(tempDir, "job-1")
	require.NoError(t, os.MkdirAll(empty, 0755))
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(empty, old, old))

	s := NewScheduler(tempDir, "", 30, 24, zerolog.Nop())
	count, _ := s.RunOnce()
	assert.Zero(t, count)
	assert.NoDirExists(t, empty)
}

func TestStartStop(t *testing.T) {
	s := NewScheduler(t.TempDir(), t.TempDir(), 1, 1, zerolog.Nop())
	s.Start()
	s.Stop()
}

func TestEnsureDirs(t *testing.T) {
	root := t.TempDir()
	a, b := filepath.Join(root, "temp"), filepath.Join(root, "outputs", "x")
	require.NoError(t, EnsureDirs(zerolog.Nop(), a, b))
	assert.DirExists(t, a)
	assert.DirExists(t, b)
}
