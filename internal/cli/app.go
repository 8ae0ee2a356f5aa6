package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"giftmatch/internal/blob"
	"giftmatch/internal/config"
	"giftmatch/internal/core"
	"giftmatch/internal/match"
	"giftmatch/internal/report"
	"giftmatch/pkg/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// app is the per-invocation wiring: configuration, logger, store and service.
type app struct {
	cfg       config.Config
	logger    *slog.Logger
	service   *core.Service
	formatter *OutputFormatter
	closers   []func() error
	metrics   *core.PrometheusMetricsRecorder
}

func openApp(ctx context.Context, cmd *cobra.Command, opts *RootOptions) (*app, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load config", err)
	}
	level, _ := cfg.LogLevel()
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	a := &app{
		cfg:       cfg,
		logger:    logger,
		formatter: &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()},
	}
	store, closeStore, err := core.OpenPersistentStore(ctx, cfg.StorageOptions())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open storage", err)
	}
	a.closers = append(a.closers, closeStore)
	logger.Debug("storage ready", "driver", cfg.Storage.Driver)

	strategy, err := match.ParseStrategy(cfg.Generator.Strategy)
	if err != nil {
		_ = a.close()
		return nil, WrapExitError(ExitCommandError, "load config", err)
	}
	serviceOpts := []core.ServiceOption{
		core.WithLogger(logger),
		core.WithGeneratorOptions(match.WithAttempts(cfg.Generator.Attempts), match.WithStrategy(strategy)),
	}
	if cfg.Metrics.Textfile != "" {
		a.metrics = core.NewPrometheusMetricsRecorder(prometheus.NewRegistry())
		serviceOpts = append(serviceOpts, core.WithMetricsRecorder(a.metrics))
	}
	if cfg.Metrics.TraceFile != "" {
		f, err := os.OpenFile(cfg.Metrics.TraceFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			_ = a.close()
			return nil, WrapExitError(ExitCommandError, "open trace file", err)
		}
		a.closers = append(a.closers, f.Close)
		serviceOpts = append(serviceOpts, core.WithTracer(core.NewJSONTracer(f)))
	}
	a.service = core.NewService(store, serviceOpts...)
	return a, nil
}

// close flushes metrics and releases resources in reverse order.
func (a *app) close() error {
	var errs []error
	if a.metrics != nil {
		if err := a.metrics.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
			errs = append(errs, fmt.Errorf("write metrics: %w", err))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// withApp opens the app, runs fn and closes the app, keeping fn's error when
// both fail.
func withApp(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx, cmd, opts)
	if err != nil {
		return err
	}
	runErr := fn(ctx, a)
	if err := a.close(); err != nil {
		a.logger.Error("shutdown failed", "error", err)
		if runErr == nil {
			runErr = WrapExitError(ExitCommandError, "shutdown", err)
		}
	}
	return runErr
}

func (a *app) settings() domain.Settings {
	return a.cfg.MatchSettings()
}

// document renders report for the participants in scope.
func (a *app) document(ctx context.Context, settings domain.Settings, r domain.Report) (report.Document, core.Graph, error) {
	graph, err := a.service.Graph(ctx, settings)
	if err != nil {
		return report.Document{}, core.Graph{}, err
	}
	participants := make([]domain.Participant, 0, len(graph.Nodes))
	for _, n := range graph.Nodes {
		participants = append(participants, domain.Participant{ID: n.ID, Name: n.Label, Group: n.Group})
	}
	fieldName := ""
	if table, ok := a.service.Store().GetTable(settings.TableID); ok {
		if f, ok := table.FindField(settings.AssignmentFieldID); ok {
			fieldName = f.Name
		}
	}
	p := report.NewPresenter(participants, graph.Groups, fieldName)
	return p.Document(r, report.GroupIndex(participants)), graph, nil
}

func (a *app) openBlob(ctx context.Context) (blob.Store, error) {
	return blob.Open(ctx, a.cfg.BlobOptions())
}

func textDocument(doc report.Document) func(io.Writer) error {
	return func(w io.Writer) error { return report.WriteText(w, doc) }
}

// commandError classifies service errors: unusable settings are reported
// with their message alone.
func commandError(message string, err error) error {
	var settingsErr *domain.SettingsError
	if errors.As(err, &settingsErr) {
		return WrapExitError(ExitCommandError, "check settings", settingsErr)
	}
	return WrapExitError(ExitCommandError, message, err)
}
