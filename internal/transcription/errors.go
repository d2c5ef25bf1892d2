package transcription

import (
	"errors"

	"github.com/nikhilbhutani/transcriptionsvc/internal/audio"
	"github.com/nikhilbhutani/transcriptionsvc/internal/models"
)

// Error categories reported to callers and stored with each run.
const (
	CategoryInvalidConfig    = "invalid_config"
	CategoryInvalidFile      = "invalid_file"
	CategoryInvalidFormat    = "invalid_format"
	CategoryFileTooLarge     = "file_too_large"
	CategoryUndecodable      = "unable_to_decode"
	CategoryProcessingFailed = "processing_failed"
)

// Categorize maps an error from this package onto its category.
func Categorize(err error) string {
	switch {
	case errors.Is(err, models.ErrInvalidConfig):
		return CategoryInvalidConfig
	case errors.Is(err, audio.ErrMissingFilename):
		return CategoryInvalidFile
	case errors.Is(err, audio.ErrUnsupportedFormat):
		return CategoryInvalidFormat
	case errors.Is(err, audio.ErrFileTooLarge):
		return CategoryFileTooLarge
	case errors.Is(err, audio.ErrUndecodable):
		return CategoryUndecodable
	default:
		return CategoryProcessingFailed
	}
}

// IsRejection reports whether err was raised before the request reached
// the worker pool.
func IsRejection(err error) bool {
	return err != nil && Categorize(err) != CategoryProcessingFailed
}
