package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"github.com/nikhilbhutani/transcriptionsvc/internal/cmdrun"
	"github.com/nikhilbhutani/transcriptionsvc/internal/device"
	"github.com/nikhilbhutani/transcriptionsvc/internal/models"
	"github.com/nikhilbhutani/transcriptionsvc/internal/scratch"
)

// English-only checkpoints published for the openai-whisper CLI.
var englishOnlySizes = []string{"tiny", "base", "small", "medium"}

// WhisperCLI runs the openai-whisper command line tool in a child process
// and reads its JSON output.
type WhisperCLI struct {
	bin      string
	scratch  *scratch.Manager
	runner   cmdrun.Runner
	lookPath func(file string) (string, error)
}

func NewWhisperCLI(bin string, sm *scratch.Manager, runner cmdrun.Runner) *WhisperCLI {
	if bin == "" {
		bin = "whisper"
	}
	if runner == nil {
		runner = cmdrun.ExecRunner{}
	}
	return &WhisperCLI{bin: bin, scratch: sm, runner: runner, lookPath: exec.LookPath}
}

func (w *WhisperCLI) Name() string { return "whisper-cli" }

// Load resolves the binary and the checkpoint name for spec.
func (w *WhisperCLI) Load(ctx context.Context, modelSpec, dev string) (Model, error) {
	size, lang := SplitModelSpec(modelSpec)
	if size == "" {
		return nil, fmt.Errorf("invalid model spec %q", modelSpec)
	}
	path, err := w.lookPath(w.bin)
	if err != nil {
		return nil, fmt.Errorf("whisper binary %q not found: %w", w.bin, err)
	}

	model := size
	if lang == "en" && slices.Contains(englishOnlySizes, size) {
		model = size + ".en"
	}
	return &whisperCLIModel{
		w:        w,
		path:     path,
		model:    model,
		language: lang,
		device:   dev,
	}, nil
}

type whisperCLIModel struct {
	w        *WhisperCLI
	path     string
	model    string
	language string
	device   string
}

type whisperJSON struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

func (m *whisperCLIModel) Transcribe(ctx context.Context, audioPath string) (*Transcript, error) {
	outDir, err := m.w.scratch.AllocateDir("whisper")
	if err != nil {
		return nil, err
	}
	defer m.w.scratch.Release(outDir)

	args := []string{
		audioPath,
		"--model", m.model,
		"--device", m.device,
		"--output_format", "json",
		"--output_dir", outDir,
		"--verbose", "False",
	}
	if m.language != "" {
		args = append(args, "--language", m.language)
	}
	if m.device != device.CUDA {
		args = append(args, "--fp16", "False")
	}

	if _, err := m.w.runner.Run(ctx, m.path, args...); err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	data, err := os.ReadFile(filepath.Join(outDir, base+".json"))
	if err != nil {
		return nil, fmt.Errorf("read whisper output: %w", err)
	}

	var out whisperJSON
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse whisper output: %w", err)
	}

	segs := make([]models.Segment, 0, len(out.Segments))
	for _, s := range out.Segments {
		segs = append(segs, models.Segment{Start: s.Start, End: s.End, Text: s.Text})
	}
	lang := out.Language
	if lang == "" {
		lang = m.language
	}
	return &Transcript{
		Text:     strings.TrimSpace(out.Text),
		Language: lang,
		Segments: cleanSegments(segs),
	}, nil
}
