// Package scratch hands out per-request temporary paths and guarantees their
// removal.
package scratch

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const maxIDLen = 64

// Manager allocates unique paths under a single base directory.
type Manager struct {
	dir string
}

// New creates the base directory if needed.
func New(dir string) (*Manager, error) {
	if dir == "" {
		return nil, errors.New("scratch directory is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve scratch dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	return &Manager{dir: abs}, nil
}

func (m *Manager) Dir() string { return m.dir }

// Allocate creates an empty file named after the request id plus a random
// component. The file is opened with O_EXCL, so a path is never handed out
// twice while it exists.
func (m *Manager) Allocate(requestID, ext string) (string, error) {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	for attempt := 0; attempt < 3; attempt++ {
		name := sanitize(requestID) + "_" + uuid.NewString()
		if ext != "" {
			name += "." + ext
		}
		path := filepath.Join(m.dir, name)

		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("allocate scratch file: %w", err)
		}
		if err := f.Close(); err != nil {
			_ = os.Remove(path)
			return "", fmt.Errorf("allocate scratch file: %w", err)
		}
		return path, nil
	}
	return "", errors.New("allocate scratch file: name collision")
}

// AllocateDir creates a fresh private directory for tools that write a tree
// of outputs.
func (m *Manager) AllocateDir(requestID string) (string, error) {
	path, err := os.MkdirTemp(m.dir, sanitize(requestID)+"_*")
	if err != nil {
		return "", fmt.Errorf("allocate scratch dir: %w", err)
	}
	return path, nil
}

// Release deletes a file or directory. A missing path is not an error.
func (m *Manager) Release(path string) error {
	if path == "" {
		return nil
	}
	if err := os.RemoveAll(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("release %s: %w", path, err)
	}
	return nil
}

// Scope tracks paths allocated for one request so a single deferred Close
// releases all of them.
type Scope struct {
	m         *Manager
	requestID string

	mu    sync.Mutex
	paths []string
}

func (m *Manager) Scope(requestID string) *Scope {
	return &Scope{m: m, requestID: requestID}
}

func (s *Scope) Allocate(ext string) (string, error) {
	path, err := s.m.Allocate(s.requestID, ext)
	if err != nil {
		return "", err
	}
	s.track(path)
	return path, nil
}

func (s *Scope) AllocateDir() (string, error) {
	path, err := s.m.AllocateDir(s.requestID)
	if err != nil {
		return "", err
	}
	s.track(path)
	return path, nil
}

// Release removes one path early; Close skips it afterwards.
func (s *Scope) Release(path string) error {
	s.mu.Lock()
	for i, p := range s.paths {
		if p == path {
			s.paths = append(s.paths[:i], s.paths[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	return s.m.Release(path)
}

// Close releases every tracked path in reverse allocation order. Failures are
// logged and the first one is returned.
func (s *Scope) Close() error {
	s.mu.Lock()
	paths := s.paths
	s.paths = nil
	s.mu.Unlock()

	var first error
	for i := len(paths) - 1; i >= 0; i-- {
		if err := s.m.Release(paths[i]); err != nil {
			slog.Error("scratch release failed", "request_id", s.requestID, "path", paths[i], "error", err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

func (s *Scope) track(path string) {
	s.mu.Lock()
	s.paths = append(s.paths, path)
	s.mu.Unlock()
}

// sanitize keeps request ids usable as file name prefixes.
func sanitize(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
		if b.Len() >= maxIDLen {
			break
		}
	}
	if b.Len() == 0 {
		return "req"
	}
	return b.String()
}
