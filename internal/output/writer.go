package output

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/timefmt"
	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/types"
)

// DefaultSpeaker labels segments when no channel label is given
const DefaultSpeaker = "Speaker"

const vttHeader = "WEBVTT\n"

// Triple describes the .txt/.srt/.vtt files written for one channel
type Triple struct {
	TXT      string
	SRT      string
	VTT      string
	Segments int
	Words    int
	LastEnd  float64
}

// Paths returns the artifact paths in .txt, .srt, .vtt order
func (t Triple) Paths() []string {
	return []string{t.TXT, t.SRT, t.VTT}
}

// WriteOutputs renders segments into basePath+".txt", ".srt" and ".vtt".
// Whitespace-only segments are dropped from all three files and never consume an index.
// Nothing is written if the sequence fails.
func WriteOutputs(basePath string, segments types.SegmentSeq, speaker string, clock *timefmt.StartClock) (Triple, error) {
	label := strings.TrimSpace(speaker)
	if label == "" {
		label = DefaultSpeaker
	}

	var (
		txtLines []string
		srtLines []string
		vttLines = []string{vttHeader}
		idx      = 1
		words    int
		lastEnd  float64
	)

	for seg, err := range segments {
		if err != nil {
			return Triple{}, fmt.Errorf("read segments: %w", err)
		}
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}

		relStart := timefmt.Relative(seg.Start)
		relEnd := timefmt.Relative(seg.End)
		wall, hasWall := timefmt.WallClock(clock, seg.Start)

		header := relStart[:8]
		subtitle := label + ": " + text
		if hasWall {
			header += " | " + wall
			subtitle = label + " [" + wall + "]: " + text
		}

		txtLines = append(txtLines, "["+header+"] "+label+": "+text)
		srtLines = append(srtLines,
			strconv.Itoa(idx),
			relStart+" --> "+relEnd,
			subtitle,
			"",
		)
		vttLines = append(vttLines,
			strings.ReplaceAll(relStart, ",", ".")+" --> "+strings.ReplaceAll(relEnd, ",", "."),
			subtitle,
			"",
		)

		idx++
		words += len(strings.Fields(text))
		lastEnd = seg.End
	}

	t := Triple{
		TXT:      basePath + types.FormatTXT,
		SRT:      basePath + types.FormatSRT,
		VTT:      basePath + types.FormatVTT,
		Segments: idx - 1,
		Words:    words,
		LastEnd:  lastEnd,
	}

	files := []struct {
		path  string
		lines []string
	}{
		{t.TXT, txtLines},
		{t.SRT, srtLines},
		{t.VTT, vttLines},
	}
	for _, f := range files {
		if err := os.WriteFile(f.path, []byte(strings.Join(f.lines, "\n")), 0644); err != nil {
			return Triple{}, fmt.Errorf("failed to write %s: %w", f.path, err)
		}
	}

	return t, nil
}
