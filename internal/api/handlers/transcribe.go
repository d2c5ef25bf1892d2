package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nikhilbhutani/transcriptionsvc/internal/audio"
	"github.com/nikhilbhutani/transcriptionsvc/internal/models"
	"github.com/nikhilbhutani/transcriptionsvc/internal/transcription"
)

const (
	fileField   = "file"
	configField = "config"

	maxConfigBytes = 64 << 10
	// Room for multipart boundaries, headers and the config part.
	multipartOverhead = 1 << 20
)

// TranscriptionService is the part of *transcription.Service the handler
// drives.
type TranscriptionService interface {
	Stage(ctx context.Context, requestID, filename string, body io.Reader) (*transcription.Staged, error)
	Run(ctx context.Context, st *transcription.Staged, cfg models.TranscriptionConfig) (*models.TranscriptionResponse, error)
	Reject(ctx context.Context, requestID string, err error)
}

type TranscribeHandler struct {
	svc         TranscriptionService
	maxFileSize int64
}

func NewTranscribeHandler(svc TranscriptionService, maxFileSize int64) *TranscribeHandler {
	return &TranscribeHandler{svc: svc, maxFileSize: maxFileSize}
}

// Transcribe reads a multipart upload with a "file" part and an optional
// JSON "config" part. Parts are streamed: the file goes straight to scratch
// storage and the config is validated as soon as it arrives.
func (h *TranscribeHandler) Transcribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := chimiddleware.GetReqID(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize+multipartOverhead)
	mr, err := r.MultipartReader()
	if err != nil {
		h.fail(w, reqID, http.StatusBadRequest, "invalid_request", fmt.Sprintf("expected multipart/form-data body: %v", err))
		return
	}

	var (
		staged *transcription.Staged
		cfg    = models.DefaultTranscriptionConfig()
	)
	defer func() {
		if staged != nil {
			staged.Close()
		}
	}()

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			if errors.As(err, new(*http.MaxBytesError)) {
				h.respondErr(w, reqID, fmt.Errorf("%w: %v", audio.ErrFileTooLarge, err))
				return
			}
			h.fail(w, reqID, http.StatusBadRequest, "invalid_request", fmt.Sprintf("malformed multipart body: %v", err))
			return
		}

		switch part.FormName() {
		case fileField:
			if staged != nil {
				part.Close()
				h.fail(w, reqID, http.StatusBadRequest, transcription.CategoryInvalidFile, "exactly one file part is allowed")
				return
			}
			staged, err = h.svc.Stage(ctx, reqID, part.FileName(), part)
			if err != nil {
				part.Close()
				h.respondErr(w, reqID, err)
				return
			}
		case configField:
			cfg, err = readConfig(part)
			if err != nil {
				part.Close()
				h.svc.Reject(ctx, reqID, err)
				h.respondErr(w, reqID, err)
				return
			}
		default:
			if _, err := io.Copy(io.Discard, part); err != nil {
				part.Close()
				h.respondErr(w, reqID, fmt.Errorf("%w: %v", audio.ErrFileTooLarge, err))
				return
			}
		}
		part.Close()
	}

	if staged == nil {
		err := fmt.Errorf("%w: missing %q part", audio.ErrMissingFilename, fileField)
		h.svc.Reject(ctx, reqID, err)
		h.respondErr(w, reqID, err)
		return
	}

	resp, err := h.svc.Run(ctx, staged, cfg)
	if err != nil {
		h.respondErr(w, reqID, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func readConfig(part io.Reader) (models.TranscriptionConfig, error) {
	data, err := io.ReadAll(io.LimitReader(part, maxConfigBytes+1))
	if err != nil {
		return models.TranscriptionConfig{}, fmt.Errorf("%w: read config: %v", models.ErrInvalidConfig, err)
	}
	if len(data) > maxConfigBytes {
		return models.TranscriptionConfig{}, fmt.Errorf("%w: config larger than %d bytes", models.ErrInvalidConfig, maxConfigBytes)
	}
	return models.ParseTranscriptionConfig(string(data))
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(category string) int {
	switch category {
	case transcription.CategoryInvalidConfig, transcription.CategoryInvalidFile, transcription.CategoryInvalidFormat:
		return http.StatusBadRequest
	case transcription.CategoryFileTooLarge:
		return http.StatusRequestEntityTooLarge
	case transcription.CategoryUndecodable:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *TranscribeHandler) respondErr(w http.ResponseWriter, reqID string, err error) {
	category := transcription.Categorize(err)
	h.fail(w, reqID, statusFor(category), category, err.Error())
}

func (h *TranscribeHandler) fail(w http.ResponseWriter, reqID string, status int, category, detail string) {
	if status >= http.StatusInternalServerError {
		slog.Error("transcription request failed", "request_id", reqID, "status", status, "error", category, "detail", detail)
	} else {
		slog.Info("transcription request rejected", "request_id", reqID, "status", status, "error", category, "detail", detail)
	}
	writeError(w, reqID, status, category, detail)
}
