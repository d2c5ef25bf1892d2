package transcription

import (
	"errors"
	"fmt"

	"github.com/nikhilbhutani/transcriptionsvc/internal/models"
	"github.com/nikhilbhutani/transcriptionsvc/internal/pipeline"
)

// ErrInconsistentResult means upstream code produced a result the response
// contract cannot carry. It is an internal bug, never a caller error.
var ErrInconsistentResult = errors.New("inconsistent pipeline result")

// RequestMeta is the request-level data the response echoes back.
type RequestMeta struct {
	RequestID   string
	DurationSec float64
	SampleRate  int
}

// Assemble builds the response body from a pipeline result. It performs no
// I/O and fails only when request-level fields are missing or invalid.
func Assemble(meta RequestMeta, res *pipeline.Result) (*models.TranscriptionResponse, error) {
	if res == nil {
		return nil, fmt.Errorf("%w: missing result", ErrInconsistentResult)
	}
	if meta.RequestID == "" {
		return nil, fmt.Errorf("%w: missing request id", ErrInconsistentResult)
	}
	if meta.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate %d", ErrInconsistentResult, meta.SampleRate)
	}
	if meta.DurationSec < 0 {
		return nil, fmt.Errorf("%w: duration %.3f", ErrInconsistentResult, meta.DurationSec)
	}
	t := res.Timings
	if t.Load < 0 || t.Separation < 0 || t.Transcription < 0 || t.Total < 0 {
		return nil, fmt.Errorf("%w: negative timing %+v", ErrInconsistentResult, t)
	}

	// Segments are copied as the backend emitted them, timestamp quirks
	// included.
	segments := make([]models.Segment, len(res.Segments))
	copy(segments, res.Segments)

	return &models.TranscriptionResponse{
		RequestID:   meta.RequestID,
		DurationSec: meta.DurationSec,
		SampleRate:  meta.SampleRate,
		Pipeline: models.PipelineInfo{
			Separation:    res.Separation,
			Transcription: res.Transcription,
		},
		Text:      res.Text,
		Language:  res.Language,
		TimingsMs: res.Timings,
		Segments:  segments,
	}, nil
}
