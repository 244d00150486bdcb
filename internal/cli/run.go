package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/ocyss/asyncpool/internal/config"
	"github.com/ocyss/asyncpool/internal/job"
	"github.com/ocyss/asyncpool/internal/logging"
	"github.com/ocyss/asyncpool/internal/report"
	"github.com/ocyss/asyncpool/progress"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// ErrRecordsFailed is returned by run when the job finished but some records failed.
var ErrRecordsFailed = errors.New("some records failed")

func runJob(cmd *cobra.Command, opts *options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	level := logging.Level(cfg.Log.Level)
	if opts.verbose {
		level = logging.LevelDebug
	}
	logger := logging.Setup(logging.Config{
		Level:  level,
		Pretty: cfg.Log.Pretty,
		Output: cmd.ErrOrStderr(),
	})

	reporters := progress.Multi{progress.NewLogged(1000, &logger)}
	var bar *progress.Bar
	if !opts.noProgress {
		bar = progress.NewBar(cfg.Job.Name, cmd.ErrOrStderr())
		reporters = append(reporters, bar)
	}

	runner, err := job.New(cfg,
		job.WithLogger(logger),
		job.WithProgress(reporters),
		job.WithOutput(cmd.OutOrStdout()),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		res    *job.Report
		runErr error
	)
	jobDone := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Addr != "" {
		ln, err := net.Listen("tcp", cfg.Metrics.Addr)
		if err != nil {
			return fmt.Errorf("metrics listener: %w", err)
		}
		logger.Info().Str("addr", ln.Addr().String()).Msg("Serving metrics on /metrics")
		g.Go(func() error {
			return serveMetrics(gctx, ln, jobDone, logger)
		})
	}

	g.Go(func() error {
		defer close(jobDone)
		res, runErr = runner.Run(gctx)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	if bar != nil {
		_ = bar.Finish()
	}

	if res != nil {
		// Results go to stdout with the stdout sink; keep the report apart.
		out := cmd.OutOrStdout()
		if cfg.Sink.Type == config.SinkStdout {
			out = cmd.ErrOrStderr()
		}
		if err := report.Render(out, res, opts.maxFailures); err != nil {
			return err
		}
	}

	switch {
	case runErr != nil:
		return runErr
	case !res.OK():
		return fmt.Errorf("%w: %s", ErrRecordsFailed, res.Ledger.Summary())
	}
	return nil
}

// serveMetrics serves the Prometheus registry on ln until ctx ends or done
// is closed.
func serveMetrics(ctx context.Context, ln net.Listener, done <-chan struct{}, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
	case <-done:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Metrics server shutdown failed")
		return err
	}
	return nil
}

func validateJob(cmd *cobra.Command, opts *options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	printJob(cmd.OutOrStdout(), opts.configPath, cfg)
	return nil
}

func printJob(w io.Writer, path string, cfg *config.Config) {
	green := color.New(color.FgGreen)
	_, _ = green.Fprintf(w, "✓ %s is valid\n", path)
	_, _ = fmt.Fprintf(w, "  job:          %s (%s mode)\n", cfg.Job.Name, cfg.Job.Mode)
	_, _ = fmt.Fprintf(w, "  concurrency:  %d\n", cfg.Job.Concurrency)
	_, _ = fmt.Fprintf(w, "  transforms:   %d\n", len(cfg.Job.Transforms))
	_, _ = fmt.Fprintf(w, "  sink:         %s (batches of %d)\n", cfg.Sink.Type, cfg.Sink.BatchSize)
	if cfg.Job.Retry.Enabled() {
		_, _ = fmt.Fprintf(w, "  retry:        %d attempts\n", cfg.Job.Retry.Attempts)
	}
}
