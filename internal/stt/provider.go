package stt

import (
	"context"
	"fmt"
	"strings"

	"github.com/nikhilbhutani/transcriptionsvc/internal/config"
	"github.com/nikhilbhutani/transcriptionsvc/internal/models"
	"github.com/nikhilbhutani/transcriptionsvc/internal/scratch"
)

// Transcript is what a speech-to-text backend produces for one file.
type Transcript struct {
	Text     string
	Language string
	Segments []models.Segment
}

// Model is a prepared transcription model bound to a device.
type Model interface {
	Transcribe(ctx context.Context, audioPath string) (*Transcript, error)
}

// Transcriber prepares models. Load and Model.Transcribe are timed
// separately by the caller. The CLI and HTTP backends keep weights in
// another process, so their Load only resolves names and the weight load is
// counted in Transcribe.
type Transcriber interface {
	Load(ctx context.Context, modelSpec, device string) (Model, error)
	Name() string
}

// New builds the backend selected by cfg.Backend.
func New(cfg config.STTConfig, sm *scratch.Manager) (Transcriber, error) {
	switch cfg.Backend {
	case "openai":
		return NewOpenAI(OpenAIConfig{
			APIKey:  cfg.OpenAIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
		}), nil
	case "whisper-cli":
		return NewWhisperCLI(cfg.WhisperBin, sm, nil), nil
	default:
		return nil, fmt.Errorf("unsupported stt backend: %s", cfg.Backend)
	}
}

// SplitModelSpec splits "small.en" into its size and language parts.
func SplitModelSpec(spec string) (size, language string) {
	size, language, _ = strings.Cut(spec, ".")
	return size, language
}

func cleanSegments(segs []models.Segment) []models.Segment {
	out := make([]models.Segment, 0, len(segs))
	for _, s := range segs {
		s.Text = strings.TrimSpace(s.Text)
		out = append(out, s)
	}
	return out
}
