// Package audio validates uploads and reads basic stream properties.
package audio

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"slices"
	"strings"
)

var (
	ErrMissingFilename   = errors.New("no filename provided")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrFileTooLarge      = errors.New("file too large")
	ErrUndecodable       = errors.New("unable to decode audio")
)

// ValidateFileName returns the lower-case extension of name when it is in
// supported.
func ValidateFileName(name string, supported []string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", ErrMissingFilename
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if ext == "" || !slices.Contains(supported, ext) {
		return "", fmt.Errorf("%w: %q. Supported: %s", ErrUnsupportedFormat, ext, strings.Join(supported, ", "))
	}
	return ext, nil
}

// CopyLimited copies src into dst and fails with ErrFileTooLarge as soon as
// more than maxBytes are seen. It never reads more than maxBytes+1 bytes. A
// body cut off by http.MaxBytesReader is reported the same way.
func CopyLimited(dst io.Writer, src io.Reader, maxBytes int64) (int64, error) {
	n, err := io.Copy(dst, io.LimitReader(src, maxBytes+1))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return n, fmt.Errorf("%w: request body exceeds %d bytes", ErrFileTooLarge, mbe.Limit)
		}
		return n, fmt.Errorf("read upload: %w", err)
	}
	if n > maxBytes {
		return n, fmt.Errorf("%w: exceeds limit of %.0fMB", ErrFileTooLarge, float64(maxBytes)/1024/1024)
	}
	return n, nil
}
