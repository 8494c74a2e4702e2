package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/afero"

	"github.com/efebarandurmaz/gendocs/internal/config"
	"github.com/efebarandurmaz/gendocs/internal/dispatch"
	"github.com/efebarandurmaz/gendocs/internal/observability"
	"github.com/efebarandurmaz/gendocs/internal/scan"
)

// runEnv is everything a command needs once configuration is loaded.
type runEnv struct {
	ctx     context.Context
	cfg     *config.Config
	source  scan.Source
	tracer  *observability.TracerProvider
	audit   *observability.AuditLogger
	metrics *observability.DispatchMetrics
}

func setup(ctx context.Context, configPath string) (*runEnv, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := observability.NewLogger(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	slog.SetDefault(logger)
	ctx = observability.WithLogger(ctx, logger)

	source, err := resolveSource(cfg.Scan, scan.ExecutableDir)
	if err != nil {
		return nil, err
	}

	tcfg := observability.DefaultTracingConfig()
	tcfg.ServiceVersion = version
	tcfg.OTLPEndpoint = cfg.Tracing.Endpoint
	tcfg.SampleRate = cfg.Tracing.SampleRate
	if cfg.Tracing.Environment != "" {
		tcfg.Environment = cfg.Tracing.Environment
	}
	tp, err := observability.InitTracing(ctx, tcfg)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	audit, err := observability.NewAuditLogger(&observability.AuditConfig{
		Enabled:    cfg.Audit.Enabled,
		OutputPath: cfg.Audit.Output,
	})
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}

	logger.Debug("configuration loaded",
		"source_dir", source.Dir, "suffix", source.Suffix,
		"command", cfg.Command.Name, "args", cfg.Command.Args)

	return &runEnv{
		ctx:     ctx,
		cfg:     cfg,
		source:  source,
		tracer:  tp,
		audit:   audit,
		metrics: observability.NewDispatchMetrics(),
	}, nil
}

// resolveSource computes the source directory from the scan settings. base
// falls back to the executable's directory.
func resolveSource(sc config.ScanConfig, exeDir func() (string, error)) (scan.Source, error) {
	base := sc.Base
	if base == "" {
		dir, err := exeDir()
		if err != nil {
			return scan.Source{}, err
		}
		base = dir
	}
	dir, err := scan.ResolveDir(base, sc.Dir)
	if err != nil {
		return scan.Source{}, err
	}
	return scan.Source{Dir: dir, Suffix: sc.Suffix}, nil
}

func (e *runEnv) dispatcher(invoker dispatch.Invoker, stdout io.Writer) *dispatch.Dispatcher {
	return &dispatch.Dispatcher{
		Fs:         afero.NewOsFs(),
		Source:     e.source,
		Invocation: dispatch.NewInvocation(e.cfg.Command.Name, e.cfg.Command.Args),
		Invoker:    invoker,
		Stdout:     stdout,
		Audit:      e.audit,
		Metrics:    e.metrics,
	}
}

func (e *runEnv) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.tracer.Shutdown(ctx); err != nil {
		observability.LoggerFrom(e.ctx).Warn("tracer shutdown failed", "error", err)
	}
	if err := e.audit.Close(); err != nil {
		observability.LoggerFrom(e.ctx).Warn("audit log close failed", "error", err)
	}
}
