package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nikhilbhutani/transcriptionsvc/internal/audio"
	"github.com/nikhilbhutani/transcriptionsvc/internal/auth"
	"github.com/nikhilbhutani/transcriptionsvc/internal/config"
	"github.com/nikhilbhutani/transcriptionsvc/internal/models"
	"github.com/nikhilbhutani/transcriptionsvc/internal/pipeline"
	"github.com/nikhilbhutani/transcriptionsvc/internal/scratch"
	"github.com/nikhilbhutani/transcriptionsvc/internal/stt"
	"github.com/nikhilbhutani/transcriptionsvc/internal/testutil"
	"github.com/nikhilbhutani/transcriptionsvc/internal/transcription"
	"github.com/nikhilbhutani/transcriptionsvc/internal/worker"
)

const testJWTSecret = "router-test-secret"

type server struct {
	h    http.Handler
	sm   *scratch.Manager
	pool *worker.Pool
	sep  *testutil.FakeSeparator
	tr   *testutil.FakeTranscriber
}

func newServer(t *testing.T, maxMB int) *server {
	t.Helper()
	cfg := config.Default()
	cfg.Upload.MaxFileSizeMB = maxMB
	cfg.Upload.TempDir = t.TempDir()
	cfg.Admin.JWTSecret = testJWTSecret

	sm, err := scratch.New(cfg.Upload.TempDir)
	if err != nil {
		t.Fatalf("scratch: %v", err)
	}
	s := &server{
		sm:   sm,
		pool: worker.NewPool(2, 0),
		sep:  &testutil.FakeSeparator{Scratch: sm},
		tr: &testutil.FakeTranscriber{Transcript: stt.Transcript{
			Text:     "hello world",
			Language: "en",
			Segments: []models.Segment{{Start: 0, End: 5, Text: "hello world"}},
		}},
	}
	t.Cleanup(func() { s.pool.Shutdown(context.Background()) })

	exec := pipeline.NewExecutor(s.sep, s.tr, sm, pipeline.Options{SeparationModel: cfg.Separation.Model, Device: "cpu"})
	svc := transcription.NewService(sm, audio.NewFileProber("", nil), s.pool, exec, nil, transcription.Options{
		MaxFileSize:      cfg.MaxFileSizeBytes(),
		SupportedFormats: cfg.Upload.SupportedFormats,
	})
	s.h = NewRouter(Deps{Config: &cfg, Version: "test", Service: svc, Pool: s.pool}).Setup()
	return s
}

type part struct {
	field, filename, content string
}

func multipartBody(t *testing.T, parts ...part) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		if p.filename != "" || p.field == "file" {
			w, err := mw.CreateFormFile(p.field, p.filename)
			if err != nil {
				t.Fatalf("create part: %v", err)
			}
			w.Write([]byte(p.content))
			continue
		}
		if err := mw.WriteField(p.field, p.content); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func (s *server) post(t *testing.T, parts ...part) *httptest.ResponseRecorder {
	t.Helper()
	body, ctype := multipartBody(t, parts...)
	req := httptest.NewRequest(http.MethodPost, "/v1/transcribe", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	s.h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var out models.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if out.RequestID == "" || out.RequestID != rec.Header().Get("X-Request-ID") {
		t.Fatalf("error body request id %q, header %q", out.RequestID, rec.Header().Get("X-Request-ID"))
	}
	if out.StatusCode != rec.Code {
		t.Fatalf("status_code %d, HTTP %d", out.StatusCode, rec.Code)
	}
	return out
}

func (s *server) assertClean(t *testing.T) {
	t.Helper()
	if names := testutil.DirEntries(t, s.sm.Dir()); len(names) != 0 {
		t.Fatalf("scratch files left: %v", names)
	}
}

func TestTranscribeOK(t *testing.T) {
	s := newServer(t, 10)
	rec := s.post(t,
		part{field: "config", content: `{"language_hint": "en", "enable_separation": true}`},
		part{field: "file", filename: "speech.wav", content: string(testutil.WAV(5, 16000))},
	)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	var resp models.TranscriptionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Text != "hello world" || resp.DurationSec != 5.0 || resp.SampleRate != 16000 {
		t.Fatalf("response = %+v", resp)
	}
	if len(resp.Segments) != 1 || resp.Segments[0] != (models.Segment{Start: 0, End: 5, Text: "hello world"}) {
		t.Fatalf("segments = %+v", resp.Segments)
	}
	if resp.RequestID != rec.Header().Get("X-Request-ID") {
		t.Fatalf("request id %q vs header %q", resp.RequestID, rec.Header().Get("X-Request-ID"))
	}
	if resp.Pipeline.Separation.Method != "fake-separator" || resp.Pipeline.Transcription.ModelSpec != "small.en" {
		t.Fatalf("pipeline = %+v", resp.Pipeline)
	}
	s.assertClean(t)
}

func TestTranscribeWithoutConfigUsesDefaults(t *testing.T) {
	s := newServer(t, 10)
	rec := s.post(t, part{field: "file", filename: "speech.wav", content: string(testutil.WAV(1, 16000))})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if specs := s.tr.Specs(); len(specs) != 1 || specs[0] != "small.en" {
		t.Fatalf("specs = %v", specs)
	}
}

func TestTranscribeDegradedStillOK(t *testing.T) {
	s := newServer(t, 10)
	s.sep.Err = errors.New("separator out of memory")

	rec := s.post(t, part{field: "file", filename: "speech.wav", content: string(testutil.WAV(5, 16000))})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var resp models.TranscriptionResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Text != "hello world" || !resp.Pipeline.Separation.Enabled || resp.Pipeline.Separation.Status != "failed" {
		t.Fatalf("response = %+v", resp)
	}
	s.assertClean(t)
}

func TestTranscribeErrors(t *testing.T) {
	cases := []struct {
		name     string
		maxMB    int
		parts    []part
		status   int
		category string
	}{
		{
			name:     "text file",
			maxMB:    10,
			parts:    []part{{field: "file", filename: "notes.txt", content: "hello"}},
			status:   http.StatusBadRequest,
			category: "invalid_format",
		},
		{
			name:  "bad config before file",
			maxMB: 10,
			parts: []part{
				{field: "config", content: "invalid json string"},
				{field: "file", filename: "speech.wav", content: string(testutil.WAV(1, 16000))},
			},
			status:   http.StatusBadRequest,
			category: "invalid_config",
		},
		{
			name:  "bad config after file",
			maxMB: 10,
			parts: []part{
				{field: "file", filename: "speech.wav", content: string(testutil.WAV(1, 16000))},
				{field: "config", content: `{"target_sr": -1}`},
			},
			status:   http.StatusBadRequest,
			category: "invalid_config",
		},
		{
			name:     "missing file part",
			maxMB:    10,
			parts:    []part{{field: "config", content: `{}`}},
			status:   http.StatusBadRequest,
			category: "invalid_file",
		},
		{
			name:     "empty file name",
			maxMB:    10,
			parts:    []part{{field: "file", filename: "", content: "abc"}},
			status:   http.StatusBadRequest,
			category: "invalid_file",
		},
		{
			name:     "too large",
			maxMB:    1,
			parts:    []part{{field: "file", filename: "big.mp3", content: strings.Repeat("x", 3<<20)}},
			status:   http.StatusRequestEntityTooLarge,
			category: "file_too_large",
		},
		{
			name:     "zero bytes",
			maxMB:    10,
			parts:    []part{{field: "file", filename: "empty.wav", content: ""}},
			status:   http.StatusUnprocessableEntity,
			category: "unable_to_decode",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newServer(t, tc.maxMB)
			rec := s.post(t, tc.parts...)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d; body = %s", rec.Code, tc.status, rec.Body)
			}
			if got := decodeError(t, rec); got.Error != tc.category {
				t.Fatalf("category = %q, want %q", got.Error, tc.category)
			}
			if st := s.pool.Stats(); st.Submitted != 0 {
				t.Fatalf("rejected request reached the pool: %+v", st)
			}
			s.assertClean(t)
		})
	}
}

func TestTranscribeProcessingFailure(t *testing.T) {
	s := newServer(t, 10)
	s.tr.Err = errors.New("CUDA error: device-side assert triggered")

	rec := s.post(t, part{field: "file", filename: "speech.wav", content: string(testutil.WAV(1, 16000))})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	body := decodeError(t, rec)
	if body.Error != "processing_failed" || !strings.Contains(body.Detail, "device-side assert") {
		t.Fatalf("body = %+v", body)
	}
	s.assertClean(t)
}

func TestTranscribeRejectsNonMultipart(t *testing.T) {
	s := newServer(t, 10)
	req := httptest.NewRequest(http.MethodPost, "/v1/transcribe/", strings.NewReader(`{"file": "x"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	decodeError(t, rec)
}

func TestHealthEndpoints(t *testing.T) {
	s := newServer(t, 10)

	cases := map[string]string{
		"/health": `"service":"audio-transcription"`,
		"/":       `"message":"Audio Transcription Service"`,
		"/readyz": `"pool":{"size":2`,
	}
	for path, want := range cases {
		rec := httptest.NewRecorder()
		s.h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), want) {
			t.Errorf("GET %s = %d %s, want %s", path, rec.Code, rec.Body, want)
		}
	}
}

func TestStatsAndAdmin(t *testing.T) {
	s := newServer(t, 10)
	s.post(t, part{field: "file", filename: "speech.wav", content: string(testutil.WAV(1, 16000))})

	rec := httptest.NewRecorder()
	s.h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))
	var body struct {
		Pool worker.Stats `json:"pool"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Pool.Size != 2 || body.Pool.Completed != 1 {
		t.Fatalf("pool stats = %+v", body.Pool)
	}

	rec = httptest.NewRecorder()
	s.h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/admin/runs", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("admin without token = %d, want 401", rec.Code)
	}

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		Role: auth.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "ops",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/v1/admin/runs", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	s.h.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("admin without database = %d, want 503", rec.Code)
	}
}

func TestAdminNotMountedWithoutSecret(t *testing.T) {
	s := newServer(t, 10)
	cfg := config.Default()
	cfg.Upload.TempDir = t.TempDir()
	h := NewRouter(Deps{Config: &cfg, Version: "test", Pool: s.pool}).Setup()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/admin/runs", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
