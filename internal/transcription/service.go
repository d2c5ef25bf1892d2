// Package transcription turns an upload into a transcription response:
// validation, scratch storage, probing, a pooled pipeline run, assembly and
// telemetry.
package transcription

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/nikhilbhutani/transcriptionsvc/internal/audio"
	"github.com/nikhilbhutani/transcriptionsvc/internal/models"
	"github.com/nikhilbhutani/transcriptionsvc/internal/pipeline"
	"github.com/nikhilbhutani/transcriptionsvc/internal/scratch"
	"github.com/nikhilbhutani/transcriptionsvc/internal/worker"
)

// Executor runs one pipeline request. *pipeline.Executor implements it.
type Executor interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// Dispatcher bounds concurrent runs. *worker.Pool implements it.
type Dispatcher interface {
	Do(ctx context.Context, task worker.Task) error
}

type Options struct {
	MaxFileSize      int64
	SupportedFormats []string
}

type Service struct {
	scratch  *scratch.Manager
	prober   audio.Prober
	pool     Dispatcher
	executor Executor
	recorder Recorder
	opts     Options
}

func NewService(sm *scratch.Manager, prober audio.Prober, pool Dispatcher, exec Executor, rec Recorder, opts Options) *Service {
	return &Service{
		scratch:  sm,
		prober:   prober,
		pool:     pool,
		executor: exec,
		recorder: rec,
		opts:     opts,
	}
}

// Upload is a complete request as read by a caller that already has the
// config in hand.
type Upload struct {
	RequestID string
	Filename  string
	Body      io.Reader
	Config    models.TranscriptionConfig
}

// Staged is an upload copied into scratch storage. Close releases every file
// created for the request.
type Staged struct {
	RequestID string
	Path      string
	Size      int64

	scope *scratch.Scope
}

func (st *Staged) Close() error {
	return st.scope.Close()
}

// Transcribe stages, runs and releases one upload.
func (s *Service) Transcribe(ctx context.Context, up Upload) (*models.TranscriptionResponse, error) {
	st, err := s.Stage(ctx, up.RequestID, up.Filename, up.Body)
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return s.Run(ctx, st, up.Config)
}

// Stage validates the file name and copies body into scratch storage,
// enforcing the size limit. Nothing is left on disk when it fails.
func (s *Service) Stage(ctx context.Context, requestID, filename string, body io.Reader) (*Staged, error) {
	ext, err := audio.ValidateFileName(filename, s.opts.SupportedFormats)
	if err != nil {
		s.Reject(ctx, requestID, err)
		return nil, err
	}

	scope := s.scratch.Scope(requestID)
	st, err := s.copyUpload(scope, requestID, ext, body)
	if err != nil {
		scope.Close()
		if IsRejection(err) {
			s.Reject(ctx, requestID, err)
		} else {
			s.record(ctx, requestID, models.RunFailed, err, nil, nil)
		}
		return nil, err
	}
	return st, nil
}

func (s *Service) copyUpload(scope *scratch.Scope, requestID, ext string, body io.Reader) (*Staged, error) {
	path, err := scope.Allocate(ext)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open scratch file: %w", err)
	}
	n, err := audio.CopyLimited(f, body, s.opts.MaxFileSize)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close scratch file: %w", cerr)
	}
	if err != nil {
		return nil, err
	}
	return &Staged{RequestID: requestID, Path: path, Size: n, scope: scope}, nil
}

// Run probes the staged file and, when it decodes, runs the pipeline in a
// worker slot. Decode failures never reach the pool.
func (s *Service) Run(ctx context.Context, st *Staged, cfg models.TranscriptionConfig) (*models.TranscriptionResponse, error) {
	log := slog.With("request_id", st.RequestID)

	info, err := s.prober.Probe(ctx, st.Path)
	if err != nil {
		log.Info("audio probe failed", "error", err)
		s.Reject(ctx, st.RequestID, err)
		return nil, err
	}
	log.Info("audio accepted",
		"bytes", st.Size,
		"duration_sec", info.DurationSec,
		"sample_rate", info.SampleRate,
		"model_spec", cfg.ModelSpec(),
		"separation", cfg.EnableSeparation,
	)

	req := pipeline.Request{
		RequestID:   st.RequestID,
		AudioPath:   st.Path,
		DurationSec: info.DurationSec,
		SampleRate:  info.SampleRate,
		Config:      cfg,
	}

	var res *pipeline.Result
	err = s.pool.Do(ctx, func(ctx context.Context) error {
		r, err := s.executor.Run(ctx, req)
		res = r
		return err
	})
	if err != nil {
		log.Error("transcription failed", "error", err)
		s.record(ctx, st.RequestID, models.RunFailed, err, &req, nil)
		return nil, err
	}

	resp, err := Assemble(RequestMeta{
		RequestID:   st.RequestID,
		DurationSec: info.DurationSec,
		SampleRate:  info.SampleRate,
	}, res)
	if err != nil {
		log.Error("assemble response failed", "error", err)
		s.record(ctx, st.RequestID, models.RunFailed, err, &req, res)
		return nil, err
	}

	outcome := models.RunCompleted
	if res.Mode == pipeline.ModeDegraded {
		outcome = models.RunDegraded
	}
	s.record(ctx, st.RequestID, outcome, res.SeparationErr, &req, res)
	return resp, nil
}

// Reject records a request that failed validation or decoding.
func (s *Service) Reject(ctx context.Context, requestID string, err error) {
	s.record(ctx, requestID, models.RunRejected, err, nil, nil)
}

func (s *Service) record(ctx context.Context, requestID string, outcome models.RunOutcome, err error, req *pipeline.Request, res *pipeline.Result) {
	if s.recorder == nil {
		return
	}
	rec := models.RunRecord{
		RequestID: requestID,
		Outcome:   outcome,
		CreatedAt: time.Now().UTC(),
	}
	if err != nil {
		rec.Detail = err.Error()
		if outcome != models.RunDegraded {
			rec.ErrorCategory = Categorize(err)
		}
	}
	if req != nil {
		rec.ModelSpec = req.Config.ModelSpec()
		rec.DurationSec = req.DurationSec
	}
	if res != nil {
		rec.Timings = res.Timings
	}

	// Telemetry outlives a cancelled request but not a stuck sink.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.recorder.Record(rctx, rec); err != nil {
		slog.Warn("record run failed", "request_id", requestID, "error", err)
	}
}
