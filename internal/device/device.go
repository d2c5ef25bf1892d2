// Package device picks the compute device handed to the model stages.
package device

import (
	"context"
	"log/slog"
	"time"

	"github.com/nikhilbhutani/transcriptionsvc/internal/cmdrun"
)

const (
	CUDA = "cuda"
	CPU  = "cpu"
	Auto = "auto"
)

// Resolve returns preference unless it is "auto", in which case it returns
// "cuda" when nvidia-smi can list at least one GPU and "cpu" otherwise.
// Call it once at startup.
func Resolve(ctx context.Context, preference string, runner cmdrun.Runner) string {
	if preference != "" && preference != Auto {
		return preference
	}
	if runner == nil {
		runner = cmdrun.ExecRunner{}
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := runner.Run(ctx, "nvidia-smi", "--query-gpu=name", "--format=csv,noheader")
	if err != nil || res.Stdout == "" {
		slog.Info("no accelerator detected, using cpu", "error", err)
		return CPU
	}
	slog.Info("accelerator detected", "device", CUDA, "gpus", res.Stdout)
	return CUDA
}
