package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/types"
)

func TestJobDir_DatedLayout(t *testing.T) {
	root := t.TempDir()
	ls := NewLocalStorage(root)
	at := time.Date(2025, 1, 23, 14, 30, 22, 0, time.UTC)

	dir, err := ls.JobDir("0f8fad5b-d9cb-469f-a165-70867728950e", "fila/atendimento:1", at)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "2025", "01", "23", "20250123_143022_fila_atendimento_1_0f8fad5b"), dir)
	assert.DirExists(t, dir)
}

func TestManifest_RoundTrip(t *testing.T) {
	ls := NewLocalStorage(t.TempDir())
	dir := t.TempDir()
	m := &Manifest{
		JobID:  "job-1",
		Status: types.StatusPartial,
		Files: []*types.FileResult{
			{Source: "call1.wav", Outputs: []string{"call1.txt"}},
			{Source: "bad.wav", Error: "decoder exploded"},
		},
		Options: types.DefaultProcessingOptions(),
	}

	path, err := ls.SaveManifest(dir, m)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ManifestName), path)

	got, err := ls.LoadManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, "job-1", got.JobID)
	require.Len(t, got.Files, 2)
	assert.Equal(t, "decoder exploded", got.Files[1].Error)
	assert.Equal(t, "Agente", got.Options.LeftLabel)
}

func TestResolveArtifact(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "call1.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestName), []byte("{}"), 0644))

	path, err := ResolveArtifact(dir, "call1.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "call1.txt"), path)

	for _, name := range []string{"", "..", "../call1.txt", "sub/call1.txt", "missing.srt", ManifestName} {
		_, err := ResolveArtifact(dir, name)
		assert.ErrorIs(t, err, ErrArtifactNotFound, name)
	}
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "a_b_c", SanitizeFilename("a/b\\c"))
	assert.Equal(t, "untitled", SanitizeFilename("  ..  "))
	assert.Equal(t, "ligação 01", SanitizeFilename("ligação 01"))
	assert.Len(t, []rune(SanitizeFilename(strings.Repeat("é", 150))), 100)
}

func TestMetadataDB_Jobs(t *testing.T) {
	db, err := NewMetadataDB(filepath.Join(t.TempDir(), "meta.db"))
	require.NoError(t, err)
	defer db.Close()

	created := time.Now().Add(-time.Minute).UTC()
	rec := JobRecord{
		JobID:       "job-1",
		RequestName: "calls",
		SourceType:  types.SourceUpload,
		Status:      types.StatusProcessing,
		ModelSize:   "small",
		LocalDir:    "/out/job-1",
		CreatedAt:   created,
	}
	require.NoError(t, db.SaveJob(rec))

	job, err := db.GetJob("job-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusProcessing, job["status"])
	assert.Equal(t, "", job["gdrive_url"])
	assert.NotContains(t, job, "completed_at")

	rec.Status = types.StatusCompleted
	rec.FileCount = 2
	rec.GDriveURL = "https://drive.google.com/drive/folders/abc"
	rec.CompletedAt = time.Now().UTC()
	require.NoError(t, db.SaveJob(rec))

	jobs, err := db.ListJobs(10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, types.StatusCompleted, jobs[0]["status"])
	assert.Equal(t, 2, jobs[0]["file_count"])
	assert.Contains(t, jobs[0], "completed_at")

	_, err = db.GetJob("missing")
	assert.Error(t, err)
}

func TestMetadataDB_Artifacts(t *testing.T) {
	db, err := NewMetadataDB(filepath.Join(t.TempDir(), "meta.db"))
	require.NoError(t, err)
	defer db.Close()

	fr := &types.FileResult{
		Source: "call1.wav",
		Channels: []types.ChannelResult{
			{Channel: types.ChannelLeft, Label: "Agente", Segments: 3, Words: 12, Paths: []string{"/o/c__agente.txt", "/o/c__agente.srt", "/o/c__agente.vtt"}},
			{Channel: types.ChannelRight, Label: "Cliente", Segments: 1, Words: 2, Paths: []string{"/o/c__cliente.txt", "/o/c__cliente.srt", "/o/c__cliente.vtt"}},
		},
	}
	require.NoError(t, db.SaveArtifacts("job-1", fr))

	artifacts, err := db.ListArtifacts("job-1")
	require.NoError(t, err)
	require.Len(t, artifacts, 6)
	assert.Equal(t, ".txt", artifacts[0]["format"])
	assert.Equal(t, "Agente", artifacts[0]["label"])
	assert.Equal(t, types.ChannelRight, artifacts[5]["channel"])
	assert.Equal(t, ".vtt", artifacts[5]["format"])
	assert.Equal(t, 2, artifacts[5]["words"])
}

// fakeDrive answers list calls with no matches and hands out sequential ids on create
type fakeDrive struct {
	mu      sync.Mutex
	next    int
	queries []string
	uploads int
}

func (f *fakeDrive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	if r.Method == http.MethodGet {
		f.queries = append(f.queries, r.URL.Query().Get("q"))
		_ = json.NewEncoder(w).Encode(map[string]any{"files": []any{}})
		return
	}
	if strings.Contains(r.URL.Path, "/upload/") {
		f.uploads++
	}
	f.next++
	_ = json.NewEncoder(w).Encode(map[string]any{"id": fmt.Sprintf("id-%d", f.next)})
}

func TestDriveClient_Upload(t *testing.T) {
	fake := &fakeDrive{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ctx := context.Background()
	svc, err := drive.NewService(ctx, option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	dc, err := newDriveClient(ctx, svc, "Transcricoes")
	require.NoError(t, err)

	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"call1.txt", "call1.srt", "call1.vtt"} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(name), 0644))
		paths = append(paths, p)
	}

	link, err := dc.Upload(ctx, "calls_0f8fad5b", paths)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link, "https://drive.google.com/drive/folders/"))
	assert.Equal(t, 3, fake.uploads)
	// root, year, month, day, job folder
	require.Len(t, fake.queries, 5)
	assert.Contains(t, fake.queries[0], "name='Transcricoes'")
	assert.Contains(t, fake.queries[4], "name='calls_0f8fad5b'")
}

func TestEscapeQuery(t *testing.T) {
	assert.Equal(t, `name\'s`, escapeQuery("name's"))
}
