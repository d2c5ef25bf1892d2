package stt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/nikhilbhutani/transcriptionsvc/internal/models"
)

// OpenAIConfig holds configuration for the OpenAI-compatible backend.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // default: the public OpenAI API
	Model   string // default: "whisper-1" against OpenAI, the model spec elsewhere
}

// OpenAI transcribes through the /audio/transcriptions endpoint of OpenAI or
// any compatible server (whisper.cpp server, faster-whisper-server).
type OpenAI struct {
	cfg OpenAIConfig
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.BaseURL == "" && cfg.Model == "" {
		cfg.Model = openai.Whisper1
	}
	return &OpenAI{cfg: cfg}
}

func (o *OpenAI) Name() string { return "openai-whisper" }

// Load builds a client bound to the resolved model name. The device is
// decided by the serving side and only logged here.
func (o *OpenAI) Load(ctx context.Context, modelSpec, device string) (Model, error) {
	if modelSpec == "" {
		return nil, errors.New("model spec is required")
	}
	clientCfg := openai.DefaultConfig(o.cfg.APIKey)
	if o.cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(o.cfg.BaseURL, "/")
	}

	model := o.cfg.Model
	if model == "" {
		model = modelSpec
	}
	_, lang := SplitModelSpec(modelSpec)

	slog.Debug("openai transcriber ready", "model", model, "language", lang, "device", device)
	return &openAIModel{
		client:   openai.NewClientWithConfig(clientCfg),
		model:    model,
		language: lang,
	}, nil
}

type openAIModel struct {
	client   *openai.Client
	model    string
	language string
}

func (m *openAIModel) Transcribe(ctx context.Context, audioPath string) (*Transcript, error) {
	req := openai.AudioRequest{
		Model:    m.model,
		FilePath: audioPath,
		Language: m.language,
		Format:   openai.AudioResponseFormatVerboseJSON,
	}

	start := time.Now()
	resp, err := m.client.CreateTranscription(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai transcription: %w", err)
	}
	slog.Debug("openai transcription finished", "model", m.model, "took", time.Since(start), "segments", len(resp.Segments))

	segs := make([]models.Segment, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		segs = append(segs, models.Segment{Start: s.Start, End: s.End, Text: s.Text})
	}
	lang := resp.Language
	if lang == "" {
		lang = m.language
	}
	return &Transcript{
		Text:     strings.TrimSpace(resp.Text),
		Language: lang,
		Segments: cleanSegments(segs),
	}, nil
}
