package types

import (
	"errors"
	"fmt"
	"iter"
	"path/filepath"
	"slices"
	"time"

	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/timefmt"
)

// Job status constants
const (
	StatusQueued     = "QUEUED"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusPartial    = "PARTIAL"
	StatusFailed     = "FAILED"
)

// Source type constants
const (
	SourceUpload = "upload"
	SourceGDrive = "gdrive"
	SourceLocal  = "local"
)

// Output formats, in the order artifacts are reported
const (
	FormatTXT = ".txt"
	FormatSRT = ".srt"
	FormatVTT = ".vtt"
)

// Logical channels of a source file
const (
	ChannelMono  = "mono"
	ChannelLeft  = "left"
	ChannelRight = "right"
)

// ModelSizes lists the faster-whisper model sizes that can be loaded
var ModelSizes = []string{"tiny", "base", "small", "medium", "large-v3"}

// ErrInvalidOption is wrapped by every ProcessingOptions validation failure
var ErrInvalidOption = errors.New("invalid option")

// Segment represents one timed utterance yielded by the engine
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// SegmentSeq is a single-pass sequence of segments. A non-nil error ends the sequence.
type SegmentSeq = iter.Seq2[Segment, error]

// TranscriptionInfo is the metadata the engine reports before decoding segments
type TranscriptionInfo struct {
	Language            string  `json:"language"`
	LanguageProbability float64 `json:"language_probability"`
	Duration            float64 `json:"duration"`
	DurationAfterVAD    float64 `json:"duration_after_vad"`
}

// VADParameters tune the voice-activity filter
type VADParameters struct {
	MinSilenceDurationMs int `json:"min_silence_duration_ms"`
	SpeechPadMs          int `json:"speech_pad_ms"`
}

// TranscriptionConfig is the immutable bundle for one transcription call
type TranscriptionConfig struct {
	Language                  string    `json:"language,omitempty"`
	VADFilter                 bool      `json:"vad_filter"`
	VADMinSilenceMs           int       `json:"-"`
	VADSpeechPadMs            int       `json:"-"`
	BeamSize                  int       `json:"beam_size"`
	BestOf                    int       `json:"best_of"`
	Temperatures              []float64 `json:"temperature"`
	CompressionRatioThreshold float64   `json:"compression_ratio_threshold"`
	LogProbThreshold          float64   `json:"log_prob_threshold"`
	NoSpeechThreshold         float64   `json:"no_speech_threshold"`
	ConditionOnPreviousText   bool      `json:"condition_on_previous_text"`
}

// VADParameters returns nil when VAD is disabled
func (c TranscriptionConfig) VADParameters() *VADParameters {
	if !c.VADFilter {
		return nil
	}
	return &VADParameters{
		MinSilenceDurationMs: c.VADMinSilenceMs,
		SpeechPadMs:          c.VADSpeechPadMs,
	}
}

// ProcessingOptions is the per-batch user intent
type ProcessingOptions struct {
	ModelSize                 string    `json:"model_size" yaml:"model_size"`
	Language                  string    `json:"language" yaml:"language"`
	Normalize                 bool      `json:"normalize" yaml:"normalize"`
	SplitChannels             bool      `json:"split_channels" yaml:"split_channels"`
	LeftLabel                 string    `json:"left_label" yaml:"left_label"`
	RightLabel                string    `json:"right_label" yaml:"right_label"`
	VAD                       bool      `json:"vad" yaml:"vad"`
	VADMinSilenceMs           int       `json:"vad_min_silence_ms" yaml:"vad_min_silence_ms"`
	VADSpeechPadMs            int       `json:"vad_speech_pad_ms" yaml:"vad_speech_pad_ms"`
	BeamSize                  int       `json:"beam_size" yaml:"beam_size"`
	BestOf                    int       `json:"best_of" yaml:"best_of"`
	Temperatures              []float64 `json:"temperatures" yaml:"temperatures"`
	CompressionRatioThreshold float64   `json:"compression_ratio_threshold" yaml:"compression_ratio_threshold"`
	LogProbThreshold          float64   `json:"log_prob_threshold" yaml:"log_prob_threshold"`
	NoSpeechThreshold         float64   `json:"no_speech_threshold" yaml:"no_speech_threshold"`
	ConditionOnPreviousText   bool      `json:"condition_on_previous_text" yaml:"condition_on_previous_text"`
	ParallelChannels          bool      `json:"parallel_channels" yaml:"parallel_channels"`

	// StartClock stamps segments with wall-clock time when set
	StartClock *timefmt.StartClock `json:"-" yaml:"-" ignored:"true"`
}

// DefaultProcessingOptions returns the built-in processing defaults
func DefaultProcessingOptions() ProcessingOptions {
	return ProcessingOptions{
		ModelSize:                 "large-v3",
		Language:                  "pt",
		Normalize:                 false,
		SplitChannels:             true,
		LeftLabel:                 "Agente",
		RightLabel:                "Cliente",
		VAD:                       true,
		VADMinSilenceMs:           600,
		VADSpeechPadMs:            200,
		BeamSize:                  8,
		BestOf:                    5,
		Temperatures:              []float64{0.0, 0.2, 0.4, 0.6},
		CompressionRatioThreshold: 2.4,
		LogProbThreshold:          -1.2,
		NoSpeechThreshold:         0.45,
		ConditionOnPreviousText:   false,
	}
}

// Validate checks ranges of the user-facing options
func (o ProcessingOptions) Validate() error {
	if !slices.Contains(ModelSizes, o.ModelSize) {
		return fmt.Errorf("%w: model size %q (want one of %v)", ErrInvalidOption, o.ModelSize, ModelSizes)
	}
	if o.BeamSize < 1 || o.BeamSize > 16 {
		return fmt.Errorf("%w: beam size %d out of range 1-16", ErrInvalidOption, o.BeamSize)
	}
	if o.BestOf < 1 || o.BestOf > 10 {
		return fmt.Errorf("%w: best of %d out of range 1-10", ErrInvalidOption, o.BestOf)
	}
	if o.VAD && (o.VADMinSilenceMs < 0 || o.VADSpeechPadMs < 0) {
		return fmt.Errorf("%w: negative VAD durations", ErrInvalidOption)
	}
	if len(o.Temperatures) == 0 {
		return fmt.Errorf("%w: empty temperature schedule", ErrInvalidOption)
	}
	return nil
}

// TranscriptionConfig derives the engine configuration. Language "auto" means autodetect.
func (o ProcessingOptions) TranscriptionConfig() TranscriptionConfig {
	lang := o.Language
	if lang == "auto" {
		lang = ""
	}
	return TranscriptionConfig{
		Language:                  lang,
		VADFilter:                 o.VAD,
		VADMinSilenceMs:           o.VADMinSilenceMs,
		VADSpeechPadMs:            o.VADSpeechPadMs,
		BeamSize:                  o.BeamSize,
		BestOf:                    o.BestOf,
		Temperatures:              slices.Clone(o.Temperatures),
		CompressionRatioThreshold: o.CompressionRatioThreshold,
		LogProbThreshold:          o.LogProbThreshold,
		NoSpeechThreshold:         o.NoSpeechThreshold,
		ConditionOnPreviousText:   o.ConditionOnPreviousText,
	}
}

// Artifact is one transcript file produced for a channel
type Artifact struct {
	Path     string `json:"path"`
	Format   string `json:"format"`
	Channel  string `json:"channel"`
	Label    string `json:"label,omitempty"`
	Segments int    `json:"segments"`
	Words    int    `json:"words"`
}

// ChannelResult summarises the transcript triple of one logical channel
type ChannelResult struct {
	Channel  string            `json:"channel"`
	Label    string            `json:"label,omitempty"`
	Info     TranscriptionInfo `json:"info"`
	Segments int               `json:"segments"`
	Words    int               `json:"words"`
	Duration float64           `json:"duration"`
	Paths    []string          `json:"paths"`
}

// FileResult is the outcome of one source file's pipeline run
type FileResult struct {
	Source      string          `json:"source"`
	Outputs     []string        `json:"outputs"`
	Channels    []ChannelResult `json:"channels"`
	Normalized  bool            `json:"normalized"`
	Split       bool            `json:"split"`
	Warnings    []string        `json:"warnings,omitempty"`
	Error       string          `json:"error,omitempty"`
	ProcessedAt time.Time       `json:"processed_at"`
}

// Artifacts flattens the channel triples
func (r *FileResult) Artifacts() []Artifact {
	var out []Artifact
	for _, ch := range r.Channels {
		for _, p := range ch.Paths {
			out = append(out, Artifact{
				Path:     p,
				Format:   filepath.Ext(p),
				Channel:  ch.Channel,
				Label:    ch.Label,
				Segments: ch.Segments,
				Words:    ch.Words,
			})
		}
	}
	return out
}
