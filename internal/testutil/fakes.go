package testutil

import (
	"context"
	"os"
	"sync"

	"github.com/nikhilbhutani/transcriptionsvc/internal/scratch"
	"github.com/nikhilbhutani/transcriptionsvc/internal/separator"
	"github.com/nikhilbhutani/transcriptionsvc/internal/stt"
)

// FakeSeparator copies its input into a scratch file, or fails with Err.
type FakeSeparator struct {
	Scratch *scratch.Manager
	Err     error
	Panic   bool

	mu       sync.Mutex
	requests []separator.Request
	outputs  []string
}

func (f *FakeSeparator) Name() string { return "fake-separator" }

func (f *FakeSeparator) Separate(ctx context.Context, req separator.Request) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.Panic {
		panic("separator exploded")
	}
	if f.Err != nil {
		return "", f.Err
	}
	data, err := os.ReadFile(req.InputPath)
	if err != nil {
		return "", err
	}
	out, err := f.Scratch.Allocate(req.RequestID, "wav")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(out, data, 0o600); err != nil {
		return "", err
	}
	f.mu.Lock()
	f.outputs = append(f.outputs, out)
	f.mu.Unlock()
	return out, nil
}

func (f *FakeSeparator) Requests() []separator.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]separator.Request(nil), f.requests...)
}

// Outputs lists the vocals paths handed out so far.
func (f *FakeSeparator) Outputs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.outputs...)
}

// FakeTranscriber returns Transcript for every file, or fails with LoadErr
// or Err.
type FakeTranscriber struct {
	Transcript stt.Transcript
	LoadErr    error
	Err        error
	Panic      bool

	mu     sync.Mutex
	specs  []string
	inputs []string
}

func (f *FakeTranscriber) Name() string { return "fake-transcriber" }

func (f *FakeTranscriber) Load(ctx context.Context, modelSpec, device string) (stt.Model, error) {
	f.mu.Lock()
	f.specs = append(f.specs, modelSpec)
	f.mu.Unlock()
	if f.LoadErr != nil {
		return nil, f.LoadErr
	}
	return fakeModel{f}, nil
}

// Specs lists the model specs passed to Load.
func (f *FakeTranscriber) Specs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.specs...)
}

// Inputs lists the audio paths passed to Transcribe.
func (f *FakeTranscriber) Inputs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.inputs...)
}

type fakeModel struct {
	f *FakeTranscriber
}

func (m fakeModel) Transcribe(ctx context.Context, audioPath string) (*stt.Transcript, error) {
	m.f.mu.Lock()
	m.f.inputs = append(m.f.inputs, audioPath)
	m.f.mu.Unlock()

	if m.f.Panic {
		panic("transcriber exploded")
	}
	if m.f.Err != nil {
		return nil, m.f.Err
	}
	out := m.f.Transcript
	return &out, nil
}
