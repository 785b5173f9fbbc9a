package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dunamismax/docflow/internal/auth"
	"github.com/dunamismax/docflow/internal/config"
	"github.com/dunamismax/docflow/internal/gateway"
	"github.com/dunamismax/docflow/internal/telemetry"
	"github.com/spf13/cobra"
)

type app struct {
	baseURL    string
	noFallback bool
	token      string
	timeout    time.Duration
	verbose    bool

	cfg      config.Config
	client   *gateway.Client
	shutdown telemetry.ShutdownFunc
	stdout   io.Writer
	stderr   io.Writer
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "docflow",
		Short:         "Client for the document analysis gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if a.shutdown == nil {
				return nil
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return a.shutdown(ctx)
		},
	}

	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&a.baseURL, "base-url", "", "gateway base URL (default $DOCFLOW_API_BASE_URL)")
	flags.BoolVar(&a.noFallback, "no-fallback", false, "fail instead of answering with mock data")
	flags.StringVar(&a.token, "token", "", "bearer ID token (default $DOCFLOW_ID_TOKEN)")
	flags.DurationVar(&a.timeout, "timeout", 0, "per-request timeout (default $DOCFLOW_HTTP_TIMEOUT)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "log requests to stderr")

	root.AddCommand(
		newJobsCommand(a),
		newUploadCommand(a),
		newDownloadCommand(a),
		newAnalyzeCommand(a),
	)
	return root
}

func (a *app) setup(ctx context.Context) error {
	a.cfg = config.Load()

	logger := log.New(io.Discard, "", 0)
	if a.verbose {
		logger = log.New(a.stderr, "[docflow] ", log.LstdFlags|log.Lmsgprefix)
	}

	shutdown, err := telemetry.SetupTracing(ctx, a.cfg.Telemetry, logger)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	a.shutdown = shutdown

	gw := gateway.Config{
		BaseURL:         a.cfg.Gateway.BaseURL,
		Timeout:         a.cfg.Gateway.Timeout,
		MockBucketURL:   a.cfg.Gateway.MockBucketURL,
		UploadFolder:    a.cfg.Gateway.UploadFolder,
		DisableFallback: !a.cfg.Gateway.Fallback || a.noFallback,
	}
	if strings.TrimSpace(a.baseURL) != "" {
		gw.BaseURL = a.baseURL
	}
	if a.timeout > 0 {
		gw.Timeout = a.timeout
	}

	opts := []gateway.Option{gateway.WithLogger(logger)}
	if strings.TrimSpace(a.token) != "" {
		opts = append(opts, gateway.WithSessionProvider(auth.Static{Token: a.token}))
	} else if provider := a.cfg.Auth.SessionProvider(); provider != nil {
		opts = append(opts, gateway.WithSessionProvider(provider))
	}

	a.client = gateway.NewClient(gw, opts...)
	return nil
}

// report prints where a result came from, plus any live failure behind it.
func report[T any](a *app, res gateway.Result[T]) {
	fmt.Fprintf(a.stderr, "source: %s\n", res.Source)
	if res.Err != nil {
		fmt.Fprintf(a.stderr, "warning: %v\n", res.Err)
	}
	if res.Fallback() {
		fmt.Fprintln(a.stderr, "note: the gateway did not answer; output is local mock data")
	}
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeOutput writes data to path, or to stdout for "" and "-".
func (a *app) writeOutput(path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := a.stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
