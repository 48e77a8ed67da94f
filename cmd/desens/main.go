package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/straja-ai/desens/internal/config"
	"github.com/straja-ai/desens/internal/log"
	"github.com/straja-ai/desens/internal/publish"
	"github.com/straja-ai/desens/internal/render"
	"github.com/straja-ai/desens/internal/sanitizer"
	"github.com/straja-ai/desens/internal/telemetry"
	"github.com/straja-ai/desens/internal/workbench"
)

var version = "dev"

var (
	configPath string
	verbose    bool
	jsonOutput bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "desens",
		Short: "Client and regression workbench for a text desensitization service",
		Long: `desens submits texts and files to a desensitization service, shows the
normalized result (sanitized text, risk score, decision, detected entities)
and runs labeled datasets against the service to report which cases still
detect the expected entity types.

Examples:
  desens sanitize "John Smith, SSN 123-45-6789"
  desens sanitize-file contract.pdf
  desens regress testset.json --json
  desens weights set SSN=6 EMAIL=2
  desens serve --addr 127.0.0.1:8090`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "desens.yaml", "path to config yaml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "write JSON instead of the terminal view")

	rootCmd.AddCommand(
		newSanitizeCmd(),
		newSanitizeFileCmd(),
		newRegressCmd(),
		newWeightsCmd(),
		newHealthCmd(),
		newServeCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		var shown renderedError
		if !errors.As(err, &shown) {
			fmt.Fprintln(os.Stderr, "desens:", err)
		}
		os.Exit(1)
	}
}

// renderedError marks a failure the output sink already displayed.
type renderedError struct{ err error }

func (e renderedError) Error() string { return e.err.Error() }
func (e renderedError) Unwrap() error { return e.err }

// app carries everything a command needs once configuration is loaded.
type app struct {
	cfg     *config.Config
	logger  *log.Logger
	client  *sanitizer.HTTPClient
	tel     *telemetry.Provider
	emitter *publish.Emitter
}

func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := log.New(verbose || cfg.Logging.Debug, cfg.Logging.Level)

	tel, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:  cfg.Telemetry.Enabled,
		Endpoint: cfg.Telemetry.Endpoint,
		Protocol: cfg.Telemetry.Protocol,
		Service:  cfg.Telemetry.ServiceName,
		Version:  version,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	emitter, err := publish.FromConfig(cfg.Publish, logger)
	if err != nil {
		tel.Shutdown(ctx)
		return nil, err
	}

	client := sanitizer.NewHTTP(sanitizer.Options{
		BaseURL:          cfg.Service.BaseURL,
		APIKey:           cfg.Service.APIKey,
		Timeout:          cfg.Service.Timeout,
		MaxResponseBytes: cfg.Service.MaxResponseBytes,
	})
	logger.Debug("configured", log.Redacted("service", client.BaseURL()))

	return &app{cfg: cfg, logger: logger, client: client, tel: tel, emitter: emitter}, nil
}

func (a *app) sink(w io.Writer) render.Sink {
	if jsonOutput {
		return render.NewJSON(w)
	}
	return render.NewTerminal(w)
}

func (a *app) workbench(sink render.Sink) *workbench.Workbench {
	opts := workbench.Options{
		Client:      a.client,
		Sink:        sink,
		Logger:      a.logger,
		Telemetry:   a.tel,
		Concurrency: a.cfg.Regression.Concurrency,
	}
	if a.emitter != nil {
		opts.Observers = append(opts.Observers, publish.Observer{Emitter: a.emitter})
	}
	return workbench.New(opts)
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.emitter.Close(ctx)
	a.tel.Shutdown(ctx)
	_ = a.logger.Sync()
}
