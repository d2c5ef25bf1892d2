// Package pipeline runs the separation and transcription stages for one
// request.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/nikhilbhutani/transcriptionsvc/internal/models"
	"github.com/nikhilbhutani/transcriptionsvc/internal/scratch"
	"github.com/nikhilbhutani/transcriptionsvc/internal/separator"
	"github.com/nikhilbhutani/transcriptionsvc/internal/stt"
)

const (
	StageSeparation    = "separation"
	StageTranscription = "transcription"
)

// Mode tells whether every requested stage took effect.
type Mode string

const (
	ModeFull     Mode = "full"
	ModeDegraded Mode = "degraded"
)

// SeparationStatus is what actually happened in the separation stage.
type SeparationStatus string

const (
	SeparationApplied SeparationStatus = "applied"
	SeparationSkipped SeparationStatus = "skipped"
	SeparationFailed  SeparationStatus = "failed"
)

// MethodNone is reported as the separation method when the original audio
// was transcribed.
const MethodNone = "none"

// Request is one validated upload sitting in scratch storage.
type Request struct {
	RequestID   string
	AudioPath   string
	DurationSec float64
	SampleRate  int
	Config      models.TranscriptionConfig
}

// Result is produced once per successful or degraded run.
type Result struct {
	Mode          Mode
	Text          string
	Language      string
	Segments      []models.Segment
	Separation    models.SeparationInfo
	Transcription models.TranscriptionInfo
	Timings       models.TimingInfo

	// SeparationErr is set when Mode is ModeDegraded.
	SeparationErr error
}

// StageError is returned when a fatal stage fails.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

type Options struct {
	SeparationModel string
	Device          string
	Logger          *slog.Logger
}

// Executor is shared by all worker slots and holds no per-request state.
type Executor struct {
	separator   separator.Separator
	transcriber stt.Transcriber
	scratch     *scratch.Manager
	opts        Options
}

func NewExecutor(sep separator.Separator, tr stt.Transcriber, sm *scratch.Manager, opts Options) *Executor {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Executor{separator: sep, transcriber: tr, scratch: sm, opts: opts}
}

// Run executes separation (when enabled) and then transcription. Separation
// failures degrade the run to the original audio; transcription failures are
// returned as *StageError. Any vocals file created here is released before
// Run returns.
func (e *Executor) Run(ctx context.Context, req Request) (*Result, error) {
	log := e.opts.Logger.With("request_id", req.RequestID)
	start := time.Now()

	res := &Result{
		Mode: ModeFull,
		Separation: models.SeparationInfo{
			Enabled: req.Config.EnableSeparation,
			Status:  string(SeparationSkipped),
			Method:  MethodNone,
		},
	}

	input := req.AudioPath
	if req.Config.EnableSeparation {
		sepStart := time.Now()
		vocals, err := e.separate(ctx, req)
		res.Timings.Separation = time.Since(sepStart).Milliseconds()
		if vocals != "" {
			defer e.release(log, vocals)
		}

		res.Separation.Model = e.opts.SeparationModel
		if err != nil {
			log.Warn("vocal separation failed, transcribing original audio",
				"error", err,
				"error_type", fmt.Sprintf("%T", errors.Unwrap(err)),
			)
			res.Mode = ModeDegraded
			res.SeparationErr = err
			res.Separation.Status = string(SeparationFailed)
		} else {
			input = vocals
			res.Separation.Status = string(SeparationApplied)
			res.Separation.Method = e.separator.Name()
		}
	}

	spec := req.Config.ModelSpec()
	res.Transcription = models.TranscriptionInfo{
		Model:     req.Config.ModelSize,
		ModelSpec: spec,
		Device:    e.opts.Device,
		Backend:   e.transcriber.Name(),
	}

	loadStart := time.Now()
	var model stt.Model
	err := guard(StageTranscription, func() error {
		var err error
		model, err = e.transcriber.Load(ctx, spec, e.opts.Device)
		return err
	})
	res.Timings.Load = time.Since(loadStart).Milliseconds()
	if err != nil {
		return nil, err
	}

	trStart := time.Now()
	var out *stt.Transcript
	err = guard(StageTranscription, func() error {
		var err error
		out, err = model.Transcribe(ctx, input)
		return err
	})
	res.Timings.Transcription = time.Since(trStart).Milliseconds()
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, &StageError{Stage: StageTranscription, Err: errors.New("backend returned no transcript")}
	}

	res.Text = out.Text
	res.Segments = out.Segments
	if res.Segments == nil {
		res.Segments = []models.Segment{}
	}
	res.Language = out.Language
	if res.Language == "" {
		res.Language = req.Config.LanguageHint
	}
	res.Timings.Total = time.Since(start).Milliseconds()

	log.Info("pipeline finished",
		"mode", res.Mode,
		"separation", res.Separation.Status,
		"segments", len(res.Segments),
		"total_ms", res.Timings.Total,
	)
	return res, nil
}

func (e *Executor) separate(ctx context.Context, req Request) (string, error) {
	if e.separator == nil {
		return "", &StageError{Stage: StageSeparation, Err: errors.New("no separator configured")}
	}
	var vocals string
	err := guard(StageSeparation, func() error {
		var err error
		vocals, err = e.separator.Separate(ctx, separator.Request{
			RequestID: req.RequestID,
			InputPath: req.AudioPath,
			Model:     e.opts.SeparationModel,
			Device:    e.opts.Device,
		})
		return err
	})
	if err != nil {
		// A backend may hand back a path alongside an error.
		return vocals, err
	}
	if vocals == "" {
		return "", &StageError{Stage: StageSeparation, Err: errors.New("separator returned no output path")}
	}
	return vocals, nil
}

func (e *Executor) release(log *slog.Logger, path string) {
	if e.scratch == nil {
		return
	}
	if err := e.scratch.Release(path); err != nil {
		log.Error("release vocals failed", "path", path, "error", err)
	}
}

// guard runs fn and turns both errors and panics into a *StageError.
func guard(stage string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("stage panicked", "stage", stage, "panic", r, "stack", string(debug.Stack()))
			err = &StageError{Stage: stage, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if err := fn(); err != nil {
		return &StageError{Stage: stage, Err: err}
	}
	return nil
}
