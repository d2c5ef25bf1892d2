package transcription

import (
	"context"
	"errors"

	"github.com/nikhilbhutani/transcriptionsvc/internal/models"
)

// Recorder persists one RunRecord per request.
type Recorder interface {
	Record(ctx context.Context, rec models.RunRecord) error
}

// MultiRecorder fans a record out to every sink and joins their errors.
type MultiRecorder []Recorder

func (m MultiRecorder) Record(ctx context.Context, rec models.RunRecord) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Record(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
