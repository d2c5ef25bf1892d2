package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("BACKGROUND_WORKERS", "")
	t.Setenv("MAX_FILE_SIZE_MB", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Pool.Workers != 4 {
		t.Fatalf("workers = %d, want 4", cfg.Pool.Workers)
	}
	if cfg.Upload.MaxFileSizeMB != 100 {
		t.Fatalf("max file size = %d, want 100", cfg.Upload.MaxFileSizeMB)
	}
	want := []string{"wav", "mp3", "m4a", "flac", "ogg"}
	if !reflect.DeepEqual(cfg.Upload.SupportedFormats, want) {
		t.Fatalf("formats = %v, want %v", cfg.Upload.SupportedFormats, want)
	}
	if cfg.Separation.Model != "htdemucs_ft" {
		t.Fatalf("separator model = %q", cfg.Separation.Model)
	}
	if cfg.RequestTimeout() != 0 {
		t.Fatalf("request timeout = %v, want disabled", cfg.RequestTimeout())
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("BACKGROUND_WORKERS", "2")
	t.Setenv("MAX_FILE_SIZE_MB", "5")
	t.Setenv("SUPPORTED_FORMATS", " WAV, flac ,")
	t.Setenv("REQUEST_TIMEOUT_SEC", "30")
	t.Setenv("SERVER_PORT", "9000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Pool.Workers != 2 {
		t.Fatalf("workers = %d, want 2", cfg.Pool.Workers)
	}
	if cfg.MaxFileSizeBytes() != 5*1024*1024 {
		t.Fatalf("max bytes = %d", cfg.MaxFileSizeBytes())
	}
	if !reflect.DeepEqual(cfg.Upload.SupportedFormats, []string{"wav", "flac"}) {
		t.Fatalf("formats = %v", cfg.Upload.SupportedFormats)
	}
	if cfg.RequestTimeout() != 30*time.Second {
		t.Fatalf("timeout = %v", cfg.RequestTimeout())
	}
	if cfg.Addr() != "0.0.0.0:9000" {
		t.Fatalf("addr = %q", cfg.Addr())
	}
}

func TestLoadInvalidInt(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("BACKGROUND_WORKERS", "many")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "BACKGROUND_WORKERS") {
		t.Fatalf("expected BACKGROUND_WORKERS error, got %v", err)
	}
}

func TestLoadTOMLFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[pool]
workers = 8

[separation]
model = "htdemucs"

[stt]
backend = "whisper-cli"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("BACKGROUND_WORKERS", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Pool.Workers != 3 {
		t.Fatalf("env should win over file: workers = %d", cfg.Pool.Workers)
	}
	if cfg.Separation.Model != "htdemucs" {
		t.Fatalf("model = %q, want htdemucs", cfg.Separation.Model)
	}
	if cfg.STT.Backend != "whisper-cli" {
		t.Fatalf("backend = %q", cfg.STT.Backend)
	}
	if cfg.Upload.MaxFileSizeMB != 100 {
		t.Fatalf("unset file keys should keep defaults, got %d", cfg.Upload.MaxFileSizeMB)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Pool.Workers = 0
	cfg.STT.Backend = "carrier-pigeon"
	cfg.Separation.Device = "tpu"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"BACKGROUND_WORKERS", "STT_BACKEND", "COMPUTE_DEVICE"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %s", err, want)
		}
	}
}

func TestSlogLevel(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "warn"
	if got := cfg.SlogLevel(); got != slog.LevelWarn {
		t.Fatalf("level = %v, want WARN", got)
	}
	cfg.Log.Level = "nonsense"
	if got := cfg.SlogLevel(); got != slog.LevelInfo {
		t.Fatalf("level = %v, want INFO", got)
	}
	cfg.Log.Debug = true
	if got := cfg.SlogLevel(); got != slog.LevelDebug {
		t.Fatalf("level = %v, want DEBUG", got)
	}
}
