package output

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/timefmt"
	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/types"
)

func seq(segs ...types.Segment) types.SegmentSeq {
	return func(yield func(types.Segment, error) bool) {
		for _, s := range segs {
			if !yield(s, nil) {
				return
			}
		}
	}
}

func read(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestWriteOutputs_Formats(t *testing.T) {
	base := filepath.Join(t.TempDir(), "call1")
	tr, err := WriteOutputs(base, seq(
		types.Segment{Start: 0, End: 1, Text: " hello "},
		types.Segment{Start: 61.5, End: 63.25, Text: "how are you"},
	), "Agent", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, tr.Segments)
	assert.Equal(t, 4, tr.Words)
	assert.Equal(t, []string{base + ".txt", base + ".srt", base + ".vtt"}, tr.Paths())

	assert.Equal(t,
		"[00:00:00] Agent: hello\n[00:01:01] Agent: how are you",
		read(t, tr.TXT))
	assert.Equal(t,
		"1\n00:00:00,000 --> 00:00:01,000\nAgent: hello\n\n"+
			"2\n00:01:01,500 --> 00:01:03,250\nAgent: how are you\n",
		read(t, tr.SRT))
	assert.Equal(t,
		"WEBVTT\n\n00:00:00.000 --> 00:00:01.000\nAgent: hello\n\n"+
			"00:01:01.500 --> 00:01:03.250\nAgent: how are you\n",
		read(t, tr.VTT))
}

func TestWriteOutputs_DefaultSpeakerAndWallClock(t *testing.T) {
	clock, err := timefmt.ParseStartClock("2024-05-01T14:32:05-03:00")
	require.NoError(t, err)

	base := filepath.Join(t.TempDir(), "mono")
	tr, err := WriteOutputs(base, seq(types.Segment{Start: 2, End: 3, Text: "oi"}), "", clock)
	require.NoError(t, err)

	assert.Equal(t, "[00:00:02 | 14:32:07 -03:00] Speaker: oi", read(t, tr.TXT))
	assert.Contains(t, read(t, tr.SRT), "Speaker [14:32:07 -03:00]: oi")
	assert.Contains(t, read(t, tr.VTT), "Speaker [14:32:07 -03:00]: oi")
}

func TestWriteOutputs_AllEmpty(t *testing.T) {
	base := filepath.Join(t.TempDir(), "silence")
	tr, err := WriteOutputs(base, seq(
		types.Segment{Start: 0, End: 1, Text: ""},
		types.Segment{Start: 1, End: 2, Text: "   \t"},
	), "Agent", nil)
	require.NoError(t, err)
	assert.Zero(t, tr.Segments)

	assert.Empty(t, read(t, tr.TXT))
	assert.Empty(t, read(t, tr.SRT))
	assert.Equal(t, "WEBVTT\n", read(t, tr.VTT))
}

func TestWriteOutputs_ContiguousIndexes(t *testing.T) {
	base := filepath.Join(t.TempDir(), "gaps")
	tr, err := WriteOutputs(base, seq(
		types.Segment{Start: 0, End: 1, Text: ""},
		types.Segment{Start: 1, End: 2, Text: "a"},
		types.Segment{Start: 2, End: 3, Text: " "},
		types.Segment{Start: 3, End: 4, Text: "b"},
		types.Segment{Start: 4, End: 5, Text: ""},
		types.Segment{Start: 5, End: 6, Text: "c"},
	), "X", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, tr.Segments)

	blocks := strings.Split(strings.TrimSuffix(read(t, tr.SRT), "\n"), "\n\n")
	require.Len(t, blocks, 3)
	for i, b := range blocks {
		assert.True(t, strings.HasPrefix(b, []string{"1\n", "2\n", "3\n"}[i]), b)
	}
}

func TestWriteOutputs_SRTAndVTTRangesMatch(t *testing.T) {
	base := filepath.Join(t.TempDir(), "ranges")
	tr, err := WriteOutputs(base, seq(
		types.Segment{Start: 0.123, End: 4.5, Text: "one"},
		types.Segment{Start: 3700.9, End: 3702.001, Text: "two"},
	), "", nil)
	require.NoError(t, err)

	rangeRe := regexp.MustCompile(`\d{2}:\d{2}:\d{2}[,.]\d{3} --> \d{2}:\d{2}:\d{2}[,.]\d{3}`)
	srt := rangeRe.FindAllString(read(t, tr.SRT), -1)
	vtt := rangeRe.FindAllString(read(t, tr.VTT), -1)
	require.Len(t, srt, 2)
	require.Len(t, vtt, 2)
	for i := range srt {
		assert.NotContains(t, vtt[i], ",")
		assert.Equal(t, strings.ReplaceAll(srt[i], ",", "."), vtt[i])
	}
}

func TestWriteOutputs_SequenceErrorWritesNothing(t *testing.T) {
	base := filepath.Join(t.TempDir(), "broken")
	boom := errors.New("decoder crashed")
	_, err := WriteOutputs(base, func(yield func(types.Segment, error) bool) {
		if !yield(types.Segment{Start: 0, End: 1, Text: "a"}, nil) {
			return
		}
		yield(types.Segment{}, boom)
	}, "", nil)
	require.ErrorIs(t, err, boom)

	_, statErr := os.Stat(base + ".txt")
	assert.True(t, os.IsNotExist(statErr))
}

func TestWriteOutputs_Overwrites(t *testing.T) {
	base := filepath.Join(t.TempDir(), "again")
	require.NoError(t, os.WriteFile(base+".txt", []byte("stale content that is longer"), 0644))

	tr, err := WriteOutputs(base, seq(types.Segment{Start: 0, End: 1, Text: "new"}), "A", nil)
	require.NoError(t, err)
	assert.Equal(t, "[00:00:00] A: new", read(t, tr.TXT))
}

func TestBundleArchive(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.srt")
	require.NoError(t, os.WriteFile(a, []byte("alpha"), 0644))
	require.NoError(t, os.WriteFile(b, []byte("beta"), 0644))

	zipPath := filepath.Join(dir, "batch.zip")
	require.NoError(t, BundleArchive(zipPath, []string{a, b}))

	zr, err := zip.OpenReader(zipPath)
	require.NoError(t, err)
	defer zr.Close()

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"a.txt", "b.srt"}, names)
}

func TestBundleArchive_Duplicate(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.MkdirAll(sub, 0755))
	a := filepath.Join(dir, "x.txt")
	b := filepath.Join(sub, "x.txt")
	require.NoError(t, os.WriteFile(a, []byte("1"), 0644))
	require.NoError(t, os.WriteFile(b, []byte("2"), 0644))

	zipPath := filepath.Join(dir, "dup.zip")
	assert.Error(t, BundleArchive(zipPath, []string{a, b}))
	_, err := os.Stat(zipPath)
	assert.True(t, os.IsNotExist(err))
}
