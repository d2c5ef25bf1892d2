package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is built once at startup and treated as read-only afterwards.
type Config struct {
	Server     ServerConfig     `toml:"server"`
	Log        LogConfig        `toml:"log"`
	Pool       PoolConfig       `toml:"pool"`
	Upload     UploadConfig     `toml:"upload"`
	Separation SeparationConfig `toml:"separation"`
	STT        STTConfig        `toml:"stt"`
	Database   DatabaseConfig   `toml:"database"`
	Redis      RedisConfig      `toml:"redis"`
	Admin      AdminConfig      `toml:"admin"`
}

type ServerConfig struct {
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

type LogConfig struct {
	Level string `toml:"level"`
	Debug bool   `toml:"debug"`
}

type PoolConfig struct {
	Workers           int `toml:"workers"`
	RequestTimeoutSec int `toml:"request_timeout_sec"` // 0 disables the per-run deadline
}

type UploadConfig struct {
	MaxFileSizeMB    int      `toml:"max_file_size_mb"`
	SupportedFormats []string `toml:"supported_formats"`
	TempDir          string   `toml:"temp_dir"`
	FFprobeBin       string   `toml:"ffprobe_bin"`
}

type SeparationConfig struct {
	Model  string `toml:"model"`
	Bin    string `toml:"bin"`    // default: "demucs"
	Device string `toml:"device"` // "auto", "cuda" or "cpu"
}

type STTConfig struct {
	Backend       string `toml:"backend"` // "openai" or "whisper-cli"
	OpenAIKey     string `toml:"openai_key"`
	OpenAIBaseURL string `toml:"openai_base_url"`
	OpenAIModel   string `toml:"openai_model"` // empty: use "{model_size}.{language}"
	WhisperBin    string `toml:"whisper_bin"`
}

type DatabaseConfig struct {
	URL            string `toml:"url"`
	MaxConns       int    `toml:"max_conns"`
	MinConns       int    `toml:"min_conns"`
	MigrationsPath string `toml:"migrations_path"` // empty: use the embedded schema
}

type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

type AdminConfig struct {
	JWTSecret string `toml:"jwt_secret"` // empty: admin routes are not mounted
}

// Default returns the configuration used when neither a file nor the
// environment overrides a value.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8000,
			AllowedOrigins: []string{"*"},
		},
		Log: LogConfig{Level: "INFO"},
		Pool: PoolConfig{
			Workers: 4,
		},
		Upload: UploadConfig{
			MaxFileSizeMB:    100,
			SupportedFormats: []string{"wav", "mp3", "m4a", "flac", "ogg"},
			TempDir:          filepath.Join(os.TempDir(), "transcriptionsvc"),
			FFprobeBin:       "ffprobe",
		},
		Separation: SeparationConfig{
			Model:  "htdemucs_ft",
			Bin:    "demucs",
			Device: "auto",
		},
		STT: STTConfig{
			Backend:    "openai",
			WhisperBin: "whisper",
		},
		Database: DatabaseConfig{
			MaxConns: 10,
			MinConns: 1,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
	}
}

// Load starts from Default, applies the TOML file named by CONFIG_FILE when
// set, and finally applies environment variables.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	var err error

	cfg.Server.Host = getEnv("SERVER_HOST", cfg.Server.Host)
	if cfg.Server.Port, err = getEnvInt("SERVER_PORT", cfg.Server.Port); err != nil {
		return fmt.Errorf("invalid SERVER_PORT: %w", err)
	}
	cfg.Server.AllowedOrigins = getEnvList("CORS_ALLOWED_ORIGINS", cfg.Server.AllowedOrigins)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	if cfg.Log.Debug, err = getEnvBool("DEBUG", cfg.Log.Debug); err != nil {
		return fmt.Errorf("invalid DEBUG: %w", err)
	}

	if cfg.Pool.Workers, err = getEnvInt("BACKGROUND_WORKERS", cfg.Pool.Workers); err != nil {
		return fmt.Errorf("invalid BACKGROUND_WORKERS: %w", err)
	}
	if cfg.Pool.RequestTimeoutSec, err = getEnvInt("REQUEST_TIMEOUT_SEC", cfg.Pool.RequestTimeoutSec); err != nil {
		return fmt.Errorf("invalid REQUEST_TIMEOUT_SEC: %w", err)
	}

	if cfg.Upload.MaxFileSizeMB, err = getEnvInt("MAX_FILE_SIZE_MB", cfg.Upload.MaxFileSizeMB); err != nil {
		return fmt.Errorf("invalid MAX_FILE_SIZE_MB: %w", err)
	}
	cfg.Upload.SupportedFormats = getEnvList("SUPPORTED_FORMATS", cfg.Upload.SupportedFormats)
	cfg.Upload.TempDir = getEnv("TEMP_DIR", cfg.Upload.TempDir)
	cfg.Upload.FFprobeBin = getEnv("FFPROBE_BIN", cfg.Upload.FFprobeBin)

	cfg.Separation.Model = getEnv("SEPARATOR_MODEL", cfg.Separation.Model)
	cfg.Separation.Bin = getEnv("SEPARATOR_BIN", cfg.Separation.Bin)
	cfg.Separation.Device = getEnv("COMPUTE_DEVICE", cfg.Separation.Device)

	cfg.STT.Backend = getEnv("STT_BACKEND", cfg.STT.Backend)
	cfg.STT.OpenAIKey = getEnv("OPENAI_API_KEY", cfg.STT.OpenAIKey)
	cfg.STT.OpenAIBaseURL = getEnv("STT_OPENAI_BASE_URL", cfg.STT.OpenAIBaseURL)
	cfg.STT.OpenAIModel = getEnv("STT_OPENAI_MODEL", cfg.STT.OpenAIModel)
	cfg.STT.WhisperBin = getEnv("STT_WHISPER_BIN", cfg.STT.WhisperBin)

	cfg.Database.URL = getEnv("DATABASE_URL", cfg.Database.URL)
	if cfg.Database.MaxConns, err = getEnvInt("DB_MAX_CONNS", cfg.Database.MaxConns); err != nil {
		return fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}
	if cfg.Database.MinConns, err = getEnvInt("DB_MIN_CONNS", cfg.Database.MinConns); err != nil {
		return fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}
	cfg.Database.MigrationsPath = getEnv("MIGRATIONS_PATH", cfg.Database.MigrationsPath)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	if cfg.Redis.DB, err = getEnvInt("REDIS_DB", cfg.Redis.DB); err != nil {
		return fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg.Admin.JWTSecret = getEnv("ADMIN_JWT_SECRET", cfg.Admin.JWTSecret)

	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// MaxFileSizeBytes is the upload limit in bytes.
func (c *Config) MaxFileSizeBytes() int64 {
	return int64(c.Upload.MaxFileSizeMB) * 1024 * 1024
}

// RequestTimeout is the per-run deadline, zero when disabled.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Pool.RequestTimeoutSec) * time.Second
}

// SlogLevel maps the configured level name onto slog.
func (c *Config) SlogLevel() slog.Level {
	if c.Log.Debug {
		return slog.LevelDebug
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(c.Log.Level))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func (c *Config) Validate() error {
	var problems []string
	if c.Pool.Workers < 1 {
		problems = append(problems, "BACKGROUND_WORKERS must be >= 1")
	}
	if c.Pool.RequestTimeoutSec < 0 {
		problems = append(problems, "REQUEST_TIMEOUT_SEC must be >= 0")
	}
	if c.Upload.MaxFileSizeMB < 0 {
		problems = append(problems, "MAX_FILE_SIZE_MB must be >= 0")
	}
	if len(c.Upload.SupportedFormats) == 0 {
		problems = append(problems, "SUPPORTED_FORMATS must not be empty")
	}
	if c.Upload.TempDir == "" {
		problems = append(problems, "TEMP_DIR must not be empty")
	}
	switch c.STT.Backend {
	case "openai", "whisper-cli":
	default:
		problems = append(problems, fmt.Sprintf("unsupported STT_BACKEND %q", c.STT.Backend))
	}
	switch c.Separation.Device {
	case "auto", "cuda", "cpu":
	default:
		problems = append(problems, fmt.Sprintf("unsupported COMPUTE_DEVICE %q", c.Separation.Device))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseBool(v)
}

// getEnvList splits a comma separated value, normalising entries to lower case.
func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
