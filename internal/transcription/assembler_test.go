package transcription

import (
	"context"
	"errors"
	"testing"

	"github.com/nikhilbhutani/transcriptionsvc/internal/audio"
	"github.com/nikhilbhutani/transcriptionsvc/internal/models"
	"github.com/nikhilbhutani/transcriptionsvc/internal/pipeline"
)

func sampleResult() *pipeline.Result {
	return &pipeline.Result{
		Mode:     pipeline.ModeFull,
		Text:     "hello world",
		Language: "en",
		Segments: []models.Segment{{Start: 0, End: 5, Text: "hello world"}},
		Separation: models.SeparationInfo{
			Enabled: true, Status: "applied", Method: "demucs", Model: "htdemucs_ft",
		},
		Transcription: models.TranscriptionInfo{Model: "small", ModelSpec: "small.en", Device: "cpu", Backend: "whisper-cli"},
		Timings:       models.TimingInfo{Load: 10, Separation: 200, Transcription: 300, Total: 515},
	}
}

func TestAssemble(t *testing.T) {
	res := sampleResult()
	resp, err := Assemble(RequestMeta{RequestID: "req-1", DurationSec: 5, SampleRate: 16000}, res)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if resp.RequestID != "req-1" || resp.DurationSec != 5 || resp.SampleRate != 16000 {
		t.Fatalf("metadata = %+v", resp)
	}
	if resp.Pipeline.Separation != res.Separation || resp.Pipeline.Transcription != res.Transcription {
		t.Fatalf("pipeline = %+v", resp.Pipeline)
	}
	if resp.TimingsMs != res.Timings || resp.Text != "hello world" || resp.Language != "en" {
		t.Fatalf("response = %+v", resp)
	}

	// The response owns its segment slice.
	res.Segments[0].Text = "changed"
	if resp.Segments[0].Text != "hello world" {
		t.Fatal("response shares segment storage with the result")
	}
}

func TestAssembleEmptySegments(t *testing.T) {
	res := sampleResult()
	res.Segments = nil
	resp, err := Assemble(RequestMeta{RequestID: "req-1", SampleRate: 16000}, res)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if resp.Segments == nil || len(resp.Segments) != 0 {
		t.Fatalf("segments = %#v, want empty list", resp.Segments)
	}
}

func TestAssemblePassesSegmentsThrough(t *testing.T) {
	res := sampleResult()
	res.Segments = []models.Segment{
		{Start: 0, End: 2, Text: "first"},
		{Start: 2.00, End: 1.98, Text: "reversed"},
		{Start: 1.5, End: 3, Text: "overlaps"},
	}
	resp, err := Assemble(RequestMeta{RequestID: "req-1", DurationSec: 3, SampleRate: 16000}, res)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if len(resp.Segments) != 3 {
		t.Fatalf("segments = %+v", resp.Segments)
	}
	for i, want := range res.Segments {
		if resp.Segments[i] != want {
			t.Errorf("segment %d = %+v, want %+v", i, resp.Segments[i], want)
		}
	}
}

func TestAssembleRejectsInconsistentInput(t *testing.T) {
	meta := RequestMeta{RequestID: "req-1", DurationSec: 5, SampleRate: 16000}
	cases := map[string]func() (RequestMeta, *pipeline.Result){
		"nil result":      func() (RequestMeta, *pipeline.Result) { return meta, nil },
		"no request id":   func() (RequestMeta, *pipeline.Result) { m := meta; m.RequestID = ""; return m, sampleResult() },
		"zero rate":       func() (RequestMeta, *pipeline.Result) { m := meta; m.SampleRate = 0; return m, sampleResult() },
		"negative length": func() (RequestMeta, *pipeline.Result) { m := meta; m.DurationSec = -1; return m, sampleResult() },
		"negative timing": func() (RequestMeta, *pipeline.Result) {
			r := sampleResult()
			r.Timings.Load = -1
			return meta, r
		},
	}
	for name, build := range cases {
		t.Run(name, func(t *testing.T) {
			m, r := build()
			if _, err := Assemble(m, r); !errors.Is(err, ErrInconsistentResult) {
				t.Fatalf("error = %v, want ErrInconsistentResult", err)
			}
		})
	}
}

func TestCategorize(t *testing.T) {
	cases := map[error]string{
		models.ErrInvalidConfig:     CategoryInvalidConfig,
		audio.ErrMissingFilename:    CategoryInvalidFile,
		audio.ErrUnsupportedFormat:  CategoryInvalidFormat,
		audio.ErrFileTooLarge:       CategoryFileTooLarge,
		audio.ErrUndecodable:        CategoryUndecodable,
		errors.New("anything else"): CategoryProcessingFailed,
	}
	for err, want := range cases {
		if got := Categorize(err); got != want {
			t.Errorf("Categorize(%v) = %q, want %q", err, got, want)
		}
	}
}

func TestMultiRecorderJoinsErrors(t *testing.T) {
	ok := &memRecorder{}
	bad := &memRecorder{err: errors.New("redis down")}
	m := MultiRecorder{ok, nil, bad}

	err := m.Record(context.Background(), models.RunRecord{RequestID: "req-1"})
	if err == nil || err.Error() != "redis down" {
		t.Fatalf("error = %v", err)
	}
	if len(ok.records) != 1 || len(bad.records) != 1 {
		t.Fatal("every sink should receive the record")
	}
}
