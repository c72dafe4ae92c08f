package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/types"
)

func sourceStem(src string) string {
	return strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
}

// batchStems picks one artifact stem per file so that no two files of a batch can write
// the same base name, compared case-insensitively. Every name a file may produce is
// claimed (mono and both split channels) since stereo is only known after probing.
// A colliding file gets "_2", "_3", ... appended to its stem.
func batchStems(files []string, opts types.ProcessingOptions) []string {
	claimed := make(map[string]bool)
	stems := make([]string, len(files))
	for i, src := range files {
		base := sourceStem(src)
		stem := base
		for n := 2; anyClaimed(claimed, artifactBases(stem, opts)); n++ {
			stem = fmt.Sprintf("%s_%d", base, n)
		}
		for _, name := range artifactBases(stem, opts) {
			claimed[strings.ToLower(name)] = true
		}
		stems[i] = stem
	}
	return stems
}

func artifactBases(stem string, opts types.ProcessingOptions) []string {
	names := []string{stem}
	if opts.SplitChannels {
		l, r := ChannelBases("", stem, opts.LeftLabel, opts.RightLabel)
		names = append(names, l, r)
	}
	return names
}

func anyClaimed(claimed map[string]bool, names []string) bool {
	for _, name := range names {
		if claimed[strings.ToLower(name)] {
			return true
		}
	}
	return false
}

// ChannelBases returns the artifact base paths for the left and right channels of stem.
// Names are "<stem>__<label>" with the label slugged; "<stem>__L" and "<stem>__R" are
// used when a slug is empty or both slugs are equal.
func ChannelBases(outDir, stem, leftLabel, rightLabel string) (string, string) {
	l, r := Slug(leftLabel), Slug(rightLabel)
	if l == "" || r == "" || l == r {
		l, r = "L", "R"
	}
	return filepath.Join(outDir, stem+"__"+l), filepath.Join(outDir, stem+"__"+r)
}

// Slug lowercases s and collapses every run of non letters/digits into one underscore
func Slug(s string) string {
	var b strings.Builder
	pending := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pending && b.Len() > 0 {
				b.WriteByte('_')
			}
			pending = false
			b.WriteRune(r)
			continue
		}
		pending = true
	}
	return b.String()
}
