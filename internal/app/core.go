// Package app wires the pipeline stack shared by the server and the CLI.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nikhilbhutani/transcriptionsvc/internal/audio"
	"github.com/nikhilbhutani/transcriptionsvc/internal/config"
	"github.com/nikhilbhutani/transcriptionsvc/internal/device"
	"github.com/nikhilbhutani/transcriptionsvc/internal/pipeline"
	"github.com/nikhilbhutani/transcriptionsvc/internal/scratch"
	"github.com/nikhilbhutani/transcriptionsvc/internal/separator"
	"github.com/nikhilbhutani/transcriptionsvc/internal/stt"
)

// Core holds the components every entry point needs to run the pipeline.
type Core struct {
	Scratch  *scratch.Manager
	Device   string
	Executor *pipeline.Executor
	Prober   audio.Prober
}

// NewCore resolves the compute device once and builds the stage backends
// selected by cfg.
func NewCore(ctx context.Context, cfg *config.Config) (*Core, error) {
	sm, err := scratch.New(cfg.Upload.TempDir)
	if err != nil {
		return nil, err
	}

	dev := device.Resolve(ctx, cfg.Separation.Device, nil)

	tr, err := stt.New(cfg.STT, sm)
	if err != nil {
		return nil, fmt.Errorf("build transcriber: %w", err)
	}
	sep := separator.NewDemucs(cfg.Separation.Bin, sm, nil)

	slog.Info("pipeline configured",
		"device", dev,
		"separator", sep.Name(),
		"separator_model", cfg.Separation.Model,
		"transcriber", tr.Name(),
		"scratch_dir", sm.Dir(),
	)

	return &Core{
		Scratch: sm,
		Device:  dev,
		Executor: pipeline.NewExecutor(sep, tr, sm, pipeline.Options{
			SeparationModel: cfg.Separation.Model,
			Device:          dev,
		}),
		Prober: audio.NewFileProber(cfg.Upload.FFprobeBin, nil),
	}, nil
}
