package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/types"
)

func TestProcessBatch_ContinuesPastFailures(t *testing.T) {
	srcDir, outDir := t.TempDir(), t.TempDir()
	good := writeSource(t, srcDir, "call1.wav")
	bad := writeSource(t, srcDir, "broken.wav")
	other := writeSource(t, srcDir, "call2.wav")

	p, _ := newTestProcessor(&fakeTools{}, &fakeEngine{failOn: "broken"})
	res, err := p.ProcessBatch(context.Background(), Batch{
		Files:     []string{good, bad, other},
		OutputDir: outDir,
		Options:   types.DefaultProcessingOptions(),
	})
	require.NoError(t, err)

	require.Len(t, res.Files, 3)
	assert.Equal(t, 1, res.Failed)
	assert.NotEmpty(t, res.Files[1].Error)
	assert.Len(t, res.Outputs, 6)
	assert.Equal(t, filepath.Join(outDir, "call1.txt"), res.Outputs[0])
	assert.Equal(t, filepath.Join(outDir, "call2.txt"), res.Outputs[3])
	assert.Equal(t, types.StatusPartial, res.Status())
}

func TestProcessBatch_InvalidStartClockIsWarning(t *testing.T) {
	srcDir, outDir := t.TempDir(), t.TempDir()
	src := writeSource(t, srcDir, "call1.wav")

	p, _ := newTestProcessor(&fakeTools{}, &fakeEngine{})
	res, err := p.ProcessBatch(context.Background(), Batch{
		Files:      []string{src},
		OutputDir:  outDir,
		Options:    types.DefaultProcessingOptions(),
		StartClock: "not-a-date",
	})
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "start clock ignored")
	assert.Equal(t, "[00:00:00] Speaker: hello", readFile(t, res.Outputs[0]))
	assert.Equal(t, types.StatusCompleted, res.Status())
}

func TestProcessBatch_StartClockWallTimes(t *testing.T) {
	srcDir, outDir := t.TempDir(), t.TempDir()
	src := writeSource(t, srcDir, "call1.wav")

	engine := &fakeEngine{segments: map[string][]types.Segment{
		"call1.wav": {{Start: 65, End: 66, Text: "ok"}},
	}}
	p, _ := newTestProcessor(&fakeTools{}, engine)
	res, err := p.ProcessBatch(context.Background(), Batch{
		Files:      []string{src},
		OutputDir:  outDir,
		Options:    types.DefaultProcessingOptions(),
		StartClock: "2024-03-01T14:30:00-03:00",
	})
	require.NoError(t, err)
	assert.Equal(t, "[00:01:05 | 14:31:05 -03:00] Speaker: ok", readFile(t, res.Outputs[0]))
}

func TestProcessBatch_InvalidOptions(t *testing.T) {
	p, _ := newTestProcessor(&fakeTools{}, &fakeEngine{})
	opts := types.DefaultProcessingOptions()
	opts.BeamSize = 0

	res, err := p.ProcessBatch(context.Background(), Batch{Files: []string{"x.wav"}, OutputDir: t.TempDir(), Options: opts})
	assert.ErrorIs(t, err, types.ErrInvalidOption)
	assert.Empty(t, res.Files)
}

func TestProcessBatch_CancelledContext(t *testing.T) {
	srcDir, outDir := t.TempDir(), t.TempDir()
	src := writeSource(t, srcDir, "call1.wav")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p, _ := newTestProcessor(&fakeTools{}, &fakeEngine{})
	res, err := p.ProcessBatch(ctx, Batch{Files: []string{src}, OutputDir: outDir, Options: types.DefaultProcessingOptions()})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.Files)
	assert.Equal(t, types.StatusFailed, res.Status())
}

func TestProcessBatch_Archive(t *testing.T) {
	srcDir, outDir := t.TempDir(), t.TempDir()
	src := writeSource(t, srcDir, "call1.wav")
	archive := filepath.Join(t.TempDir(), "transcripts.zip")

	p, _ := newTestProcessor(&fakeTools{stereo: true}, &fakeEngine{})
	res, err := p.ProcessBatch(context.Background(), Batch{
		Files:     []string{src},
		OutputDir: outDir,
		Options:   types.DefaultProcessingOptions(),
		Archive:   archive,
	})
	require.NoError(t, err)
	assert.Equal(t, archive, res.Archive)

	zr, err := zip.OpenReader(archive)
	require.NoError(t, err)
	defer zr.Close()
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{
		"call1__agente.txt", "call1__agente.srt", "call1__agente.vtt",
		"call1__cliente.txt", "call1__cliente.srt", "call1__cliente.vtt",
	}, names)
}

func TestProcessBatch_SameStemsGetDistinctNames(t *testing.T) {
	root, outDir := t.TempDir(), t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "b"), 0755))
	first := writeSource(t, filepath.Join(root, "a"), "call.wav")
	second := writeSource(t, filepath.Join(root, "b"), "call.wav")
	archive := filepath.Join(t.TempDir(), "transcripts.zip")

	p, _ := newTestProcessor(&fakeTools{}, &fakeEngine{})
	res, err := p.ProcessBatch(context.Background(), Batch{
		Files:     []string{first, second},
		OutputDir: outDir,
		Options:   types.DefaultProcessingOptions(),
		Archive:   archive,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(outDir, "call.txt"), filepath.Join(outDir, "call.srt"), filepath.Join(outDir, "call.vtt"),
		filepath.Join(outDir, "call_2.txt"), filepath.Join(outDir, "call_2.srt"), filepath.Join(outDir, "call_2.vtt"),
	}, res.Outputs)
	assert.Len(t, listDir(t, outDir), 6)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "call.wav written as call_2")
	assert.Equal(t, archive, res.Archive)
	assert.Equal(t, types.StatusCompleted, res.Status())
}

func TestProcessBatch_SplitNameCollidesWithOtherStem(t *testing.T) {
	srcDir, outDir := t.TempDir(), t.TempDir()
	stereo := writeSource(t, srcDir, "call.wav")
	clash := writeSource(t, srcDir, "CALL__Agente.wav")

	p, _ := newTestProcessor(&fakeTools{stereo: true}, &fakeEngine{})
	res, err := p.ProcessBatch(context.Background(), Batch{
		Files:     []string{stereo, clash},
		OutputDir: outDir,
		Options:   types.DefaultProcessingOptions(),
	})
	require.NoError(t, err)

	require.Len(t, res.Outputs, 12)
	seen := make(map[string]bool)
	for _, out := range res.Outputs {
		key := strings.ToLower(out)
		assert.False(t, seen[key], "duplicate output %s", out)
		seen[key] = true
	}
	assert.Equal(t, filepath.Join(outDir, "CALL__Agente_2__agente.txt"), res.Outputs[6])
	assert.Len(t, listDir(t, outDir), 12)
}

func TestBatchStems(t *testing.T) {
	split := types.DefaultProcessingOptions()
	mono := split
	mono.SplitChannels = false

	tests := []struct {
		name  string
		files []string
		opts  types.ProcessingOptions
		want  []string
	}{
		{"distinct", []string{"a/call1.wav", "a/call2.wav"}, split, []string{"call1", "call2"}},
		{"same stem", []string{"a/call.wav", "b/call.wav", "c/call.wav"}, split, []string{"call", "call_2", "call_3"}},
		{"case only", []string{"a/Call.wav", "b/call.WAV"}, mono, []string{"Call", "call_2"}},
		{"mono stem vs split name", []string{"call.wav", "call__cliente.wav"}, split, []string{"call", "call__cliente_2"}},
		{"no split, no clash", []string{"call.wav", "call__cliente.wav"}, mono, []string{"call", "call__cliente"}},
		{"renamed stem taken", []string{"call.wav", "call_2.wav", "call.wav"}, mono, []string{"call", "call_2", "call_3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, batchStems(tt.files, tt.opts))
		})
	}
}
