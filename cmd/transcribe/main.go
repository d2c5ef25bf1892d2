package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nikhilbhutani/transcriptionsvc/internal/app"
	"github.com/nikhilbhutani/transcriptionsvc/internal/config"
	"github.com/nikhilbhutani/transcriptionsvc/internal/models"
	"github.com/nikhilbhutani/transcriptionsvc/internal/transcription"
	"github.com/nikhilbhutani/transcriptionsvc/internal/worker"
)

var version = "0.1.0"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "transcribe",
	Short: "Run audio files through the separation and transcription pipeline",
}

func init() {
	rootCmd.AddCommand(
		fileCmd(),
		versionCmd(),
	)
}

func fileCmd() *cobra.Command {
	var (
		language     string
		modelSize    string
		noSeparation bool
		rawConfig    string
		output       string
	)

	cmd := &cobra.Command{
		Use:   "file <path>",
		Short: "Transcribe a local audio file and print the JSON result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var overrides configOverrides
			if cmd.Flags().Changed("language") {
				overrides.language = &language
			}
			if cmd.Flags().Changed("model") {
				overrides.modelSize = &modelSize
			}
			overrides.noSeparation = noSeparation

			cfg, err := buildConfig(rawConfig, overrides)
			if err != nil {
				return err
			}
			return transcribeFile(cmd.Context(), args[0], cfg, output)
		},
	}

	cmd.Flags().StringVarP(&language, "language", "l", "en", "language hint")
	cmd.Flags().StringVarP(&modelSize, "model", "m", "small", "model size")
	cmd.Flags().BoolVar(&noSeparation, "no-separation", false, "skip vocal separation")
	cmd.Flags().StringVar(&rawConfig, "config", "", "transcription config as JSON; flags override its fields")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the result to this file instead of stdout")
	return cmd
}

// configOverrides holds the flags the user set explicitly.
type configOverrides struct {
	language     *string
	modelSize    *string
	noSeparation bool
}

// buildConfig applies flag overrides on top of the JSON config and validates
// the merged result.
func buildConfig(raw string, o configOverrides) (models.TranscriptionConfig, error) {
	cfg, err := models.ParseTranscriptionConfig(raw)
	if err != nil {
		return models.TranscriptionConfig{}, err
	}
	if o.language != nil {
		cfg.LanguageHint = *o.language
	}
	if o.modelSize != nil {
		cfg.ModelSize = *o.modelSize
	}
	if o.noSeparation {
		cfg.EnableSeparation = false
	}
	if err := cfg.Validate(); err != nil {
		return models.TranscriptionConfig{}, err
	}
	return cfg, nil
}

func transcribeFile(ctx context.Context, path string, tc models.TranscriptionConfig, output string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	core, err := app.NewCore(ctx, cfg)
	if err != nil {
		return err
	}

	pool := worker.NewPool(1, cfg.RequestTimeout())
	defer pool.Shutdown(context.Background())

	svc := transcription.NewService(core.Scratch, core.Prober, pool, core.Executor, nil, transcription.Options{
		MaxFileSize:      cfg.MaxFileSizeBytes(),
		SupportedFormats: cfg.Upload.SupportedFormats,
	})

	resp, err := svc.Transcribe(ctx, transcription.Upload{
		RequestID: uuid.NewString(),
		Filename:  filepath.Base(path),
		Body:      f,
		Config:    tc,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", transcription.Categorize(err), err)
	}

	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	data = append(data, '\n')

	if output == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
