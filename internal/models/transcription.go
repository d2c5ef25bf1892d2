package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfig is returned when a TranscriptionConfig cannot be built
// from caller input.
var ErrInvalidConfig = errors.New("invalid transcription config")

// TranscriptionConfig holds the per-request options accepted from the caller.
// It is passed by value and never mutated after ParseTranscriptionConfig.
type TranscriptionConfig struct {
	LanguageHint     string `json:"language_hint"`
	EnableSeparation bool   `json:"enable_separation"`
	Diarize          bool   `json:"diarize"` // accepted, not acted on
	ModelSize        string `json:"model_size"`
	TargetSR         int    `json:"target_sr"`
}

// DefaultTranscriptionConfig returns the documented defaults.
func DefaultTranscriptionConfig() TranscriptionConfig {
	return TranscriptionConfig{
		LanguageHint:     "en",
		EnableSeparation: true,
		Diarize:          false,
		ModelSize:        "small",
		TargetSR:         16000,
	}
}

// ParseTranscriptionConfig builds a config from a JSON document. Missing
// fields and JSON nulls keep their defaults, unknown fields are ignored, and
// blank input yields the defaults.
func ParseTranscriptionConfig(raw string) (TranscriptionConfig, error) {
	cfg := DefaultTranscriptionConfig()
	if strings.TrimSpace(raw) == "" {
		return cfg, nil
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	if err := dec.Decode(&cfg); err != nil {
		return TranscriptionConfig{}, fmt.Errorf("%w: invalid JSON configuration: %v", ErrInvalidConfig, err)
	}
	if dec.More() {
		return TranscriptionConfig{}, fmt.Errorf("%w: trailing data after JSON object", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return TranscriptionConfig{}, err
	}
	return cfg, nil
}

func (c TranscriptionConfig) Validate() error {
	if strings.TrimSpace(c.LanguageHint) == "" {
		return fmt.Errorf("%w: language_hint must not be empty", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.ModelSize) == "" {
		return fmt.Errorf("%w: model_size must not be empty", ErrInvalidConfig)
	}
	if c.TargetSR <= 0 {
		return fmt.Errorf("%w: target_sr must be positive, got %d", ErrInvalidConfig, c.TargetSR)
	}
	return nil
}

// ModelSpec is the transcription model identifier, e.g. "small.en".
func (c TranscriptionConfig) ModelSpec() string {
	return c.ModelSize + "." + c.LanguageHint
}

// Segment is one timestamped span of transcribed speech, in seconds.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// TimingInfo reports stage durations in whole milliseconds. Total is
// measured on its own and is not the sum of the other fields.
type TimingInfo struct {
	Load          int64 `json:"load"`
	Separation    int64 `json:"separation"`
	Transcription int64 `json:"transcription"`
	Total         int64 `json:"total"`
}

type SeparationInfo struct {
	Enabled bool   `json:"enabled"`
	Status  string `json:"status"`
	Method  string `json:"method"`
	Model   string `json:"model,omitempty"`
}

type TranscriptionInfo struct {
	Model     string `json:"model"`
	ModelSpec string `json:"model_spec"`
	Device    string `json:"device"`
	Backend   string `json:"backend"`
}

type PipelineInfo struct {
	Separation    SeparationInfo    `json:"separation"`
	Transcription TranscriptionInfo `json:"transcription"`
}

// TranscriptionResponse is the body returned for a successful or degraded run.
type TranscriptionResponse struct {
	RequestID   string       `json:"request_id"`
	DurationSec float64      `json:"duration_sec"`
	SampleRate  int          `json:"sample_rate"`
	Pipeline    PipelineInfo `json:"pipeline"`
	Text        string       `json:"text"`
	Language    string       `json:"language"`
	TimingsMs   TimingInfo   `json:"timings_ms"`
	Segments    []Segment    `json:"segments"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	RequestID  string `json:"request_id"`
	Error      string `json:"error"`
	Detail     string `json:"detail"`
	StatusCode int    `json:"status_code"`
}
