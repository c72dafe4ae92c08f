package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/config"
	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/media"
	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/observability"
	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/pipeline"
	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/transcription"
	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/types"
)

// cliFlags holds the parsed command line. opts only matters for flags the user set;
// everything else comes from the config file defaults.
type cliFlags struct {
	configPath string
	outDir     string
	startClock string
	archive    string
	logLevel   string
	pretty     bool
	jsonOut    bool
	opts       types.ProcessingOptions
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd builds the transcribe command
func NewRootCmd() *cobra.Command {
	return newRootCmd(&cliFlags{})
}

func newRootCmd(f *cliFlags) *cobra.Command {
	d := types.DefaultProcessingOptions()

	c := &cobra.Command{
		Use:   "transcribe [flags] FILE...",
		Short: "Transcribe WAV call recordings into TXT, SRT and VTT",
		Long: `transcribe runs a batch of WAV recordings through loudness normalization,
stereo channel split and faster-whisper transcription.

A stereo call produces one transcript triple per channel, named
<stem>__<label>.txt|.srt|.vtt. Mono files produce <stem>.txt|.srt|.vtt.
A failing file is reported and the batch continues.`,
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, f, args)
		},
	}

	fs := c.Flags()
	fs.StringVar(&f.configPath, "config", "config/config.yaml", "config file")
	fs.StringVarP(&f.outDir, "out", "o", "", "output directory (default: storage.output_dir)")
	fs.StringVar(&f.startClock, "start-clock", "", "recording start as ISO-8601, e.g. 2025-01-23T14:30:00-03:00")
	fs.StringVar(&f.archive, "archive", "", "also bundle every transcript into this zip file")
	fs.StringVar(&f.logLevel, "log-level", "", "log level (default: logging.level)")
	fs.BoolVar(&f.pretty, "pretty", false, "human readable logs")
	fs.BoolVar(&f.jsonOut, "json", false, "print the batch result as JSON")

	fs.StringVarP(&f.opts.ModelSize, "model", "m", d.ModelSize, fmt.Sprintf("model size %v", types.ModelSizes))
	fs.StringVarP(&f.opts.Language, "language", "l", d.Language, `language hint, "auto" to detect`)
	fs.BoolVar(&f.opts.Normalize, "normalize", d.Normalize, "normalize loudness before transcription")
	fs.BoolVar(&f.opts.SplitChannels, "split", d.SplitChannels, "transcribe stereo channels separately")
	fs.StringVar(&f.opts.LeftLabel, "left-label", d.LeftLabel, "speaker label of the left channel")
	fs.StringVar(&f.opts.RightLabel, "right-label", d.RightLabel, "speaker label of the right channel")
	fs.BoolVar(&f.opts.ParallelChannels, "parallel", d.ParallelChannels, "transcribe both channels concurrently")
	fs.BoolVar(&f.opts.VAD, "vad", d.VAD, "voice activity detection")
	fs.IntVar(&f.opts.VADMinSilenceMs, "vad-min-silence-ms", d.VADMinSilenceMs, "VAD minimum silence")
	fs.IntVar(&f.opts.VADSpeechPadMs, "vad-speech-pad-ms", d.VADSpeechPadMs, "VAD speech padding")
	fs.IntVar(&f.opts.BeamSize, "beam-size", d.BeamSize, "beam size (1-16)")
	fs.IntVar(&f.opts.BestOf, "best-of", d.BestOf, "candidates when sampling (1-10)")
	fs.Float64SliceVar(&f.opts.Temperatures, "temperatures", d.Temperatures, "temperature fallback schedule")
	fs.Float64Var(&f.opts.CompressionRatioThreshold, "compression-ratio-threshold", d.CompressionRatioThreshold, "")
	fs.Float64Var(&f.opts.LogProbThreshold, "log-prob-threshold", d.LogProbThreshold, "")
	fs.Float64Var(&f.opts.NoSpeechThreshold, "no-speech-threshold", d.NoSpeechThreshold, "")
	fs.BoolVar(&f.opts.ConditionOnPreviousText, "condition-on-previous-text", d.ConditionOnPreviousText, "")

	return c
}

// options overlays the flags the user set on base
func (f *cliFlags) options(base types.ProcessingOptions, changed func(name string) bool) types.ProcessingOptions {
	opts := base
	opts.Temperatures = slices.Clone(base.Temperatures)

	set := func(name string, apply func()) {
		if changed(name) {
			apply()
		}
	}
	set("model", func() { opts.ModelSize = f.opts.ModelSize })
	set("language", func() { opts.Language = f.opts.Language })
	set("normalize", func() { opts.Normalize = f.opts.Normalize })
	set("split", func() { opts.SplitChannels = f.opts.SplitChannels })
	set("left-label", func() { opts.LeftLabel = f.opts.LeftLabel })
	set("right-label", func() { opts.RightLabel = f.opts.RightLabel })
	set("parallel", func() { opts.ParallelChannels = f.opts.ParallelChannels })
	set("vad", func() { opts.VAD = f.opts.VAD })
	set("vad-min-silence-ms", func() { opts.VADMinSilenceMs = f.opts.VADMinSilenceMs })
	set("vad-speech-pad-ms", func() { opts.VADSpeechPadMs = f.opts.VADSpeechPadMs })
	set("beam-size", func() { opts.BeamSize = f.opts.BeamSize })
	set("best-of", func() { opts.BestOf = f.opts.BestOf })
	set("temperatures", func() { opts.Temperatures = slices.Clone(f.opts.Temperatures) })
	set("compression-ratio-threshold", func() { opts.CompressionRatioThreshold = f.opts.CompressionRatioThreshold })
	set("log-prob-threshold", func() { opts.LogProbThreshold = f.opts.LogProbThreshold })
	set("no-speech-threshold", func() { opts.NoSpeechThreshold = f.opts.NoSpeechThreshold })
	set("condition-on-previous-text", func() { opts.ConditionOnPreviousText = f.opts.ConditionOnPreviousText })
	return opts
}

func run(cmd *cobra.Command, f *cliFlags, files []string) error {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	changed := cmd.Flags().Changed

	level := cfg.Logging.Level
	if changed("log-level") {
		level = f.logLevel
	}
	logger := observability.InitLogger(level, f.pretty || cfg.Logging.Pretty)

	opts := f.options(cfg.Defaults, changed)
	if err := opts.Validate(); err != nil {
		return err
	}

	outDir := f.outDir
	if outDir == "" {
		outDir = cfg.Storage.OutputDir
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ff := media.NewFFmpeg(
		media.WithBinaries(cfg.Engine.FFmpeg, cfg.Engine.FFprobe),
		media.WithLogger(logger),
	)
	manager := transcription.NewManager(
		transcription.WorkerFactory(transcription.WorkerConfig{
			Python:      cfg.Engine.Python,
			Device:      cfg.Engine.Device,
			ComputeType: cfg.Engine.ComputeType,
			ModelDir:    cfg.Engine.ModelDir,
		}, logger),
		logger,
	)
	defer manager.Close()

	processor := pipeline.NewProcessor(ff, manager, logger,
		pipeline.WithLoudnessTarget(cfg.Loudness.Target()),
	)

	return runBatch(ctx, cmd.OutOrStdout(), processor, pipeline.Batch{
		Files:      files,
		OutputDir:  outDir,
		Options:    opts,
		StartClock: f.startClock,
		Archive:    f.archive,
	}, f.jsonOut)
}

// BatchProcessor runs one batch
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, b pipeline.Batch) (*pipeline.BatchResult, error)
}

// runBatch processes the batch, reports it on w and turns failed files into an error
// so the process exits non-zero
func runBatch(ctx context.Context, w io.Writer, p BatchProcessor, b pipeline.Batch, jsonOut bool) error {
	res, err := p.ProcessBatch(ctx, b)
	if res != nil {
		if jsonOut {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(res); encErr != nil {
				return encErr
			}
		} else {
			printResult(w, res)
		}
	}
	if err != nil {
		return err
	}

	switch res.Status() {
	case types.StatusFailed:
		return fmt.Errorf("all %d files failed", len(b.Files))
	case types.StatusPartial:
		return fmt.Errorf("%d of %d files failed", res.Failed, len(res.Files))
	}
	return nil
}

func printResult(w io.Writer, res *pipeline.BatchResult) {
	for _, fr := range res.Files {
		name := filepath.Base(fr.Source)
		if fr.Error != "" {
			fmt.Fprintf(w, "FAILED  %s: %s\n", name, fr.Error)
			continue
		}
		fmt.Fprintf(w, "OK      %s\n", name)
		for _, out := range fr.Outputs {
			fmt.Fprintf(w, "        %s\n", out)
		}
	}
	for _, warn := range res.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}
	if res.Archive != "" {
		fmt.Fprintf(w, "archive: %s\n", res.Archive)
	}
}
