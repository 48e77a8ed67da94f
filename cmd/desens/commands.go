package main

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/straja-ai/desens/internal/auth"
	"github.com/straja-ai/desens/internal/present"
	"github.com/straja-ai/desens/internal/regression"
	"github.com/straja-ai/desens/internal/render"
	"github.com/straja-ai/desens/internal/server"
)

func newSanitizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sanitize [text]",
		Short: "Sanitize one text (reads stdin when no argument or \"-\" is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := textArg(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			if _, err := a.workbench(a.sink(cmd.OutOrStdout())).SubmitText(cmd.Context(), text); err != nil {
				return renderedError{err}
			}
			return nil
		},
	}
}

func newSanitizeFileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sanitize-file <path>",
		Short: "Upload one document (pdf, docx, image, text) for sanitization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			if _, err := a.workbench(a.sink(cmd.OutOrStdout())).SubmitFile(cmd.Context(), args[0], f); err != nil {
				return renderedError{err}
			}
			return nil
		},
	}
}

func newRegressCmd() *cobra.Command {
	var (
		reportPath  string
		concurrency int
		strict      bool
	)
	cmd := &cobra.Command{
		Use:   "regress <dataset.json>",
		Short: "Run a labeled dataset against the service and report pass/fail per case",
		Long: `Runs every case of a JSON dataset through the service. A case passes when
every expected entity type appears among the detected types. Extra
detections do not fail a case.

The dataset is an array of {"id", "text", "expected_entities"} objects.
Use "-" to read it from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, closeIn, err := openInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			defer closeIn()

			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			if cmd.Flags().Changed("concurrency") {
				a.cfg.Regression.Concurrency = concurrency
			}
			if reportPath == "" {
				reportPath = a.cfg.Regression.ReportPath
			}

			rep, err := a.workbench(a.sink(cmd.OutOrStdout())).RunDataset(cmd.Context(), in)
			if err != nil {
				return renderedError{err}
			}
			if reportPath != "" {
				if err := writeReport(reportPath, rep); err != nil {
					return fmt.Errorf("write report: %w", err)
				}
				a.logger.Info("report written", zap.String("path", reportPath))
			}
			if strict && rep.PassedCount < rep.TotalCount {
				return fmt.Errorf("%d of %d cases failed", rep.TotalCount-rep.PassedCount, rep.TotalCount)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&reportPath, "report", "o", "", "also write the JSON report to this path")
	cmd.Flags().IntVar(&concurrency, "concurrency", 1, "cases evaluated in parallel (1 = sequential)")
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when any case fails")
	return cmd
}

func newWeightsCmd() *cobra.Command {
	weightsCmd := &cobra.Command{
		Use:   "weights",
		Short: "Manage the service's per-entity risk weights",
	}
	weightsCmd.AddCommand(&cobra.Command{
		Use:   "set TYPE=WEIGHT...",
		Short: "Replace the risk weights (types not listed fall back to the default weight)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			weights, err := parseWeights(args)
			if err != nil {
				return err
			}
			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			status, err := a.client.UpdateWeights(cmd.Context(), weights)
			if err != nil {
				return err
			}
			if !status.OK() {
				return fmt.Errorf("service rejected weights: %s", status.Message)
			}
			fmt.Fprintln(cmd.OutOrStdout(), status.Message)
			return nil
		},
	})
	return weightsCmd
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the service is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			h, err := a.client.Health(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", h.Service, h.Status)
			return nil
		},
	}
}

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the workbench JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			authz, err := auth.NewFromConfig(a.cfg.Server)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ln, err := net.Listen("tcp", a.cfg.Server.Addr)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", a.cfg.Server.Addr, err)
			}
			srv := server.New(a.cfg.Server, a.workbench(render.Discard{}), authz, a.logger)
			if !authz.Enabled() {
				a.logger.Warn("no API clients configured; workbench API is unauthenticated")
			}
			return srv.Start(ctx, ln)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}

func textArg(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimRight(string(b), "\r\n"), nil
}

func openInput(stdin io.Reader, path string) (io.Reader, func(), error) {
	if path == "-" {
		return stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

func parseWeights(args []string) (map[string]float64, error) {
	out := make(map[string]float64, len(args))
	for _, arg := range args {
		typ, raw, ok := strings.Cut(arg, "=")
		typ = strings.TrimSpace(typ)
		if !ok || typ == "" {
			return nil, fmt.Errorf("weight %q: expected TYPE=WEIGHT", arg)
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("weight %q: %w", arg, err)
		}
		if w < 0 {
			return nil, fmt.Errorf("weight %q: must not be negative", arg)
		}
		out[strings.ToUpper(typ)] = w
	}
	return out, nil
}

func writeReport(path string, rep *regression.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	werr := render.NewJSON(f).Report(present.Report(rep), present.Document(rep))
	return errors.Join(werr, f.Close())
}
