package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/media"
	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/observability"
	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/output"
	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/timefmt"
	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/transcription"
	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/types"
)

// AudioTools is the audio engine surface the pipeline needs
type AudioTools interface {
	IsStereo(ctx context.Context, path string) bool
	SplitStereo(ctx context.Context, inputPath, leftPath, rightPath string) error
	NormalizeLoudness(ctx context.Context, inputPath, outputPath string, target media.LoudnessTarget) error
}

// EngineSource leases the shared transcription engine for a model size. release is
// called once every channel of a file has been transcribed.
type EngineSource interface {
	Acquire(modelSize string) (engine transcription.Engine, release func(), err error)
}

// Processor runs the normalize, split, transcribe, cleanup pipeline for source files
type Processor struct {
	tools    AudioTools
	engines  EngineSource
	loudness media.LoudnessTarget
	logger   zerolog.Logger
}

// ProcessorOption configures a Processor
type ProcessorOption func(*Processor)

// WithLoudnessTarget overrides the normalization targets
func WithLoudnessTarget(t media.LoudnessTarget) ProcessorOption {
	return func(p *Processor) { p.loudness = t }
}

// NewProcessor creates a pipeline processor
func NewProcessor(tools AudioTools, engines EngineSource, logger zerolog.Logger, opts ...ProcessorOption) *Processor {
	p := &Processor{
		tools:    tools,
		engines:  engines,
		loudness: media.DefaultLoudnessTarget(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// channelJob is one logical channel to transcribe
type channelJob struct {
	channel string
	label   string
	audio   string
	base    string
}

// ProcessFile transcribes one source file into outDir and returns the artifact paths in
// channel order. Temporary audio is always removed. Only engine and write failures are returned.
func (p *Processor) ProcessFile(ctx context.Context, src, outDir string, opts types.ProcessingOptions) (*types.FileResult, error) {
	return p.processFile(ctx, src, sourceStem(src), outDir, opts)
}

// processFile names every artifact and temp file after stem instead of the source name
func (p *Processor) processFile(ctx context.Context, src, stem, outDir string, opts types.ProcessingOptions) (*types.FileResult, error) {
	logger := p.logger.With().Str("file", filepath.Base(src)).Logger()
	res := &types.FileResult{Source: src, ProcessedAt: time.Now()}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return res, fmt.Errorf("failed to create output directory: %w", err)
	}

	engine, release, err := p.engines.Acquire(opts.ModelSize)
	if err != nil {
		return res, err
	}
	defer release()

	work := src
	var temps []string
	defer func() { p.cleanup(logger, temps) }()

	// Step 1: normalize, falling back to the source audio
	if opts.Normalize {
		normalized := filepath.Join(outDir, stem+".norm.tmp.wav")
		temps = append(temps, normalized)
		if err := p.tools.NormalizeLoudness(ctx, src, normalized, p.loudness); err != nil {
			logger.Warn().Err(err).Msg("Loudness normalization failed, using source audio")
			res.Warnings = append(res.Warnings, fmt.Sprintf("normalization failed for %s: %v", filepath.Base(src), err))
			observability.RecordStage("normalize", observability.OutcomeDegraded)
		} else {
			work = normalized
			res.Normalized = true
			observability.RecordStage("normalize", observability.OutcomeOK)
		}
	}

	// Step 2: split stereo, falling back to a single channel
	jobs := []channelJob{{
		channel: types.ChannelMono,
		audio:   work,
		base:    filepath.Join(outDir, stem),
	}}
	if opts.SplitChannels && p.tools.IsStereo(ctx, work) {
		left := filepath.Join(outDir, stem+".L.tmp.wav")
		right := filepath.Join(outDir, stem+".R.tmp.wav")
		temps = append(temps, left, right)

		if err := p.tools.SplitStereo(ctx, work, left, right); err != nil {
			logger.Warn().Err(err).Msg("Channel split failed, transcribing as a single channel")
			res.Warnings = append(res.Warnings, fmt.Sprintf("channel split failed for %s: %v", filepath.Base(src), err))
			observability.RecordStage("split", observability.OutcomeDegraded)
		} else {
			leftBase, rightBase := ChannelBases(outDir, stem, opts.LeftLabel, opts.RightLabel)
			jobs = []channelJob{
				{channel: types.ChannelLeft, label: opts.LeftLabel, audio: left, base: leftBase},
				{channel: types.ChannelRight, label: opts.RightLabel, audio: right, base: rightBase},
			}
			res.Split = true
			observability.RecordStage("split", observability.OutcomeOK)
		}
	} else if opts.SplitChannels {
		observability.RecordStage("split", observability.OutcomeSkipped)
	}

	// Step 3: transcribe each channel
	cfg := opts.TranscriptionConfig()
	channels := make([]types.ChannelResult, len(jobs))
	if opts.ParallelChannels && len(jobs) > 1 {
		g, gctx := errgroup.WithContext(ctx)
		for i, job := range jobs {
			g.Go(func() error {
				cr, err := p.transcribeChannel(gctx, logger, engine, job, cfg, opts.StartClock)
				channels[i] = cr
				return err
			})
		}
		err = g.Wait()
	} else {
		for i, job := range jobs {
			channels[i], err = p.transcribeChannel(ctx, logger, engine, job, cfg, opts.StartClock)
			if err != nil {
				break
			}
		}
	}
	if err != nil {
		observability.RecordStage("transcribe", observability.OutcomeFailed)
		res.Error = err.Error()
		return res, err
	}
	observability.RecordStage("transcribe", observability.OutcomeOK)

	res.Channels = channels
	for _, ch := range channels {
		res.Outputs = append(res.Outputs, ch.Paths...)
	}

	logger.Info().
		Bool("normalized", res.Normalized).
		Bool("split", res.Split).
		Int("artifacts", len(res.Outputs)).
		Msg("File processed")
	return res, nil
}

func (p *Processor) transcribeChannel(
	ctx context.Context,
	logger zerolog.Logger,
	engine transcription.Engine,
	job channelJob,
	cfg types.TranscriptionConfig,
	clock *timefmt.StartClock,
) (types.ChannelResult, error) {
	start := time.Now()
	cr := types.ChannelResult{Channel: job.channel, Label: job.label}

	stream, err := engine.Transcribe(ctx, job.audio, cfg)
	if err != nil {
		return cr, fmt.Errorf("transcription of %s channel failed: %w", job.channel, err)
	}
	defer stream.Close()
	cr.Info = stream.Info()

	triple, err := output.WriteOutputs(job.base, stream.Segments(), job.label, clock)
	if err != nil {
		return cr, fmt.Errorf("transcription of %s channel failed: %w", job.channel, err)
	}

	cr.Segments = triple.Segments
	cr.Words = triple.Words
	cr.Duration = cr.Info.Duration
	if cr.Duration == 0 {
		cr.Duration = triple.LastEnd
	}
	cr.Paths = triple.Paths()

	elapsed := time.Since(start)
	observability.ObserveChannel(job.channel, elapsed.Seconds(), triple.Segments)
	logger.Debug().
		Str("channel", job.channel).
		Str("language", cr.Info.Language).
		Int("segments", triple.Segments).
		Dur("elapsed", elapsed).
		Msg("Channel transcribed")
	return cr, nil
}

// cleanup removes temporary audio; failures are logged and ignored
func (p *Processor) cleanup(logger zerolog.Logger, paths []string) {
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Debug().Err(err).Str("path", path).Msg("Failed to remove temp file")
		}
	}
}
