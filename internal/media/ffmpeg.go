package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/rs/zerolog"
)

// Runner executes an external command and returns its combined output
type Runner interface {
	CombinedOutput(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) CombinedOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// LoudnessTarget configures the loudnorm filter
type LoudnessTarget struct {
	IntegratedLUFS float64
	TruePeakDB     float64
	LoudnessRange  float64
}

// DefaultLoudnessTarget is broadcast-style normalization
func DefaultLoudnessTarget() LoudnessTarget {
	return LoudnessTarget{IntegratedLUFS: -16, TruePeakDB: -1.5, LoudnessRange: 11}
}

// FilterGraph renders the target as an ffmpeg audio filter
func (t LoudnessTarget) FilterGraph() string {
	return fmt.Sprintf("loudnorm=I=%g:TP=%g:LRA=%g", t.IntegratedLUFS, t.TruePeakDB, t.LoudnessRange)
}

// FFmpeg wraps the ffmpeg/ffprobe binaries
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
	runner      Runner
	logger      zerolog.Logger
}

// Option configures FFmpeg
type Option func(*FFmpeg)

// WithRunner replaces the command runner
func WithRunner(r Runner) Option {
	return func(f *FFmpeg) { f.runner = r }
}

// WithBinaries sets explicit ffmpeg and ffprobe paths
func WithBinaries(ffmpegPath, ffprobePath string) Option {
	return func(f *FFmpeg) {
		if ffmpegPath != "" {
			f.ffmpegPath = ffmpegPath
		}
		if ffprobePath != "" {
			f.ffprobePath = ffprobePath
		}
	}
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(f *FFmpeg) { f.logger = l }
}

// NewFFmpeg creates an audio engine wrapper using binaries from PATH by default
func NewFFmpeg(opts ...Option) *FFmpeg {
	f := &FFmpeg{
		ffmpegPath:  "ffmpeg",
		ffprobePath: "ffprobe",
		runner:      execRunner{},
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type probeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Channels  int    `json:"channels"`
	} `json:"streams"`
}

// ProbeChannels returns the channel count of the first audio stream.
// PCM WAV headers are read directly; anything else goes through ffprobe.
func (f *FFmpeg) ProbeChannels(ctx context.Context, path string) (int, error) {
	if n, ok := wavChannels(path); ok {
		return n, nil
	}

	output, err := f.runner.CombinedOutput(ctx, f.ffprobePath,
		"-v", "error",
		"-show_entries", "stream=codec_type,channels",
		"-of", "json",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w\nOutput: %s", err, string(output))
	}

	var parsed probeOutput
	if err := json.Unmarshal(output, &parsed); err != nil {
		return 0, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	for _, st := range parsed.Streams {
		if st.CodecType == "audio" {
			if st.Channels == 0 {
				return 1, nil
			}
			return st.Channels, nil
		}
	}
	return 0, fmt.Errorf("no audio stream in %s", path)
}

func wavChannels(path string) (int, bool) {
	if !ValidateAudioFormat(path) {
		return 0, false
	}
	file, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer file.Close()

	d := wav.NewDecoder(file)
	d.ReadInfo()
	if d.Err() != nil || !d.IsValidFile() || d.NumChans == 0 {
		return 0, false
	}
	return int(d.NumChans), true
}

// IsWAVFile reports whether the content at path carries a RIFF/WAVE header
func IsWAVFile(path string) bool {
	file, err := os.Open(path)
	if err != nil {
		return false
	}
	defer file.Close()
	return wav.NewDecoder(file).IsValidFile()
}

// IsStereo reports whether path has exactly two channels. Probe failures count as not stereo.
func (f *FFmpeg) IsStereo(ctx context.Context, path string) bool {
	n, err := f.ProbeChannels(ctx, path)
	if err != nil {
		f.logger.Debug().Err(err).Str("file", path).Msg("Channel probe failed, treating as mono")
		return false
	}
	return n == 2
}

// SplitStereo writes the left channel to leftPath and the right channel to rightPath
func (f *FFmpeg) SplitStereo(ctx context.Context, inputPath, leftPath, rightPath string) error {
	output, err := f.runner.CombinedOutput(ctx, f.ffmpegPath,
		"-y",
		"-i", inputPath,
		"-filter_complex", "[0:a:0]channelsplit=channel_layout=stereo[L][R]",
		"-map", "[L]", leftPath,
		"-map", "[R]", rightPath,
	)
	if err != nil {
		return fmt.Errorf("ffmpeg split failed: %w\nOutput: %s", err, string(output))
	}
	return nil
}

// NormalizeLoudness applies single-pass loudnorm and writes outputPath
func (f *FFmpeg) NormalizeLoudness(ctx context.Context, inputPath, outputPath string, target LoudnessTarget) error {
	output, err := f.runner.CombinedOutput(ctx, f.ffmpegPath,
		"-y",
		"-i", inputPath,
		"-af", target.FilterGraph(),
		outputPath,
	)
	if err != nil {
		return fmt.Errorf("ffmpeg loudnorm failed: %w\nOutput: %s", err, string(output))
	}
	return nil
}

// ValidateAudioFormat checks if the file is a waveform container
func ValidateAudioFormat(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".wav" || ext == ".wave"
}
