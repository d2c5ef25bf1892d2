package separator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nikhilbhutani/transcriptionsvc/internal/cmdrun"
	"github.com/nikhilbhutani/transcriptionsvc/internal/scratch"
)

// Demucs runs the demucs CLI as a child process in two-stem mode and keeps
// only the vocals stem.
type Demucs struct {
	bin     string
	scratch *scratch.Manager
	runner  cmdrun.Runner
}

func NewDemucs(bin string, sm *scratch.Manager, runner cmdrun.Runner) *Demucs {
	if bin == "" {
		bin = "demucs"
	}
	if runner == nil {
		runner = cmdrun.ExecRunner{}
	}
	return &Demucs{bin: bin, scratch: sm, runner: runner}
}

func (d *Demucs) Name() string { return "demucs" }

func (d *Demucs) Separate(ctx context.Context, req Request) (string, error) {
	if req.Model == "" {
		return "", errors.New("separation model is required")
	}

	outDir, err := d.scratch.AllocateDir(req.RequestID)
	if err != nil {
		return "", err
	}
	defer d.scratch.Release(outDir)

	args := []string{
		"--two-stems", "vocals",
		"-n", req.Model,
		"-d", req.Device,
		"-o", outDir,
		"--filename", "{stem}.{ext}",
		req.InputPath,
	}
	if _, err := d.runner.Run(ctx, d.bin, args...); err != nil {
		return "", fmt.Errorf("demucs: %w", err)
	}

	stem := filepath.Join(outDir, req.Model, "vocals.wav")
	if _, err := os.Stat(stem); err != nil {
		return "", fmt.Errorf("demucs completed but vocals stem is missing: %w", err)
	}

	vocals, err := d.scratch.Allocate(req.RequestID, "wav")
	if err != nil {
		return "", err
	}
	if err := os.Rename(stem, vocals); err != nil {
		d.scratch.Release(vocals)
		return "", fmt.Errorf("move vocals stem: %w", err)
	}
	return vocals, nil
}
