package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/observability"
	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/output"
	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/timefmt"
	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/types"
)

// Batch is an ordered set of source files sharing one set of options
type Batch struct {
	Files     []string
	OutputDir string
	Options   types.ProcessingOptions
	// StartClock is an optional ISO-8601 recording start; invalid values only produce a warning
	StartClock string
	// Archive, when set, is the zip path bundling every artifact of the batch
	Archive string
}

// BatchResult collects per-file outcomes in input order
type BatchResult struct {
	Files    []*types.FileResult `json:"files"`
	Outputs  []string            `json:"outputs"`
	Warnings []string            `json:"warnings,omitempty"`
	Archive  string              `json:"archive,omitempty"`
	Failed   int                 `json:"failed"`
}

// Status summarises the batch as a job status
func (r *BatchResult) Status() string {
	switch {
	case len(r.Files) == 0:
		return types.StatusFailed
	case r.Failed == 0:
		return types.StatusCompleted
	case r.Failed == len(r.Files):
		return types.StatusFailed
	default:
		return types.StatusPartial
	}
}

// ProcessBatch runs every file to completion, cleanup included, before starting the next.
// A failing file is recorded and the batch continues. The returned error is for invalid
// options or a cancelled context; the partial result is still returned then.
func (p *Processor) ProcessBatch(ctx context.Context, b Batch) (*BatchResult, error) {
	res := &BatchResult{}
	opts := b.Options
	if err := opts.Validate(); err != nil {
		return res, err
	}

	if b.StartClock != "" {
		clock, err := timefmt.ParseStartClock(b.StartClock)
		if err != nil {
			p.logger.Warn().Err(err).Msg("Ignoring start clock")
			res.Warnings = append(res.Warnings, fmt.Sprintf("start clock ignored: %v", err))
			opts.StartClock = nil
		} else {
			opts.StartClock = clock
		}
	}

	stems := batchStems(b.Files, opts)
	for i, src := range b.Files {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		if stems[i] != sourceStem(src) {
			p.logger.Warn().Str("file", src).Str("stem", stems[i]).Msg("Output name already used in batch, renaming")
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("%s written as %s: output name already used in batch", filepath.Base(src), stems[i]))
		}

		fr, err := p.processFile(ctx, src, stems[i], b.OutputDir, opts)
		res.Files = append(res.Files, fr)
		res.Warnings = append(res.Warnings, fr.Warnings...)
		if err != nil {
			p.logger.Error().Err(err).Str("file", filepath.Base(src)).Msg("File failed")
			fr.Error = err.Error()
			res.Failed++
			observability.RecordFile(observability.OutcomeFailed)
			continue
		}
		res.Outputs = append(res.Outputs, fr.Outputs...)
		observability.RecordFile(observability.OutcomeOK)
	}

	if b.Archive != "" && len(res.Outputs) > 0 {
		if err := output.BundleArchive(b.Archive, res.Outputs); err != nil {
			p.logger.Warn().Err(err).Msg("Failed to bundle archive")
			res.Warnings = append(res.Warnings, fmt.Sprintf("archive not created: %v", err))
		} else {
			res.Archive = b.Archive
		}
	}

	return res, nil
}
