// Package dispatch runs an external command once per matching file in the
// source directory.
//
// A run is a single sequential pass: print the source directory, list it,
// keep the regular files carrying the suffix, and launch the command for
// each, waiting for every child before starting the next. Failures are not
// recovered: a listing error stops the run before any launch, and the first
// launch error stops it before the remaining matches. Non-zero exit codes of
// the children are recorded and otherwise ignored.
package dispatch

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"

	"github.com/efebarandurmaz/gendocs/internal/observability"
	"github.com/efebarandurmaz/gendocs/internal/report"
	"github.com/efebarandurmaz/gendocs/internal/scan"
)

// Dispatcher ties a source directory to the command run for its matches.
// Audit and Metrics are optional.
type Dispatcher struct {
	Fs         afero.Fs
	Source     scan.Source
	Invocation Invocation
	// Invoker launches the command. Defaults to an ExecInvoker with
	// inherited streams.
	Invoker Invoker
	// Stdout receives the source directory line. Defaults to os.Stdout.
	Stdout io.Writer

	Audit   *observability.AuditLogger
	Metrics *observability.DispatchMetrics
}

func (d *Dispatcher) stdout() io.Writer {
	if d.Stdout == nil {
		return os.Stdout
	}
	return d.Stdout
}

func (d *Dispatcher) invoker() Invoker {
	if d.Invoker == nil {
		return &ExecInvoker{}
	}
	return d.Invoker
}

func (d *Dispatcher) fs() afero.Fs {
	if d.Fs == nil {
		return afero.NewOsFs()
	}
	return d.Fs
}

// Matches lists the source directory and returns the entry count and the
// matching file names, in enumeration order. Nothing is invoked.
func (d *Dispatcher) Matches(ctx context.Context) (int, []string, error) {
	ctx, span := observability.StartScanSpan(ctx, d.Source.Dir, d.Source.Suffix)
	defer span.End()

	entries, matched, err := scan.Scan(d.fs(), d.Source)
	if d.Metrics != nil {
		d.Metrics.RecordScan(len(matched), err)
	}
	if err != nil {
		observability.RecordError(span, err)
		return 0, nil, err
	}
	observability.RecordScanResult(span, entries, len(matched))
	observability.LoggerFrom(ctx).Debug("scanned source dir",
		"dir", d.Source.Dir, "entries", entries, "matched", len(matched))
	return entries, matched, nil
}

// Run performs one dispatch pass. The returned report is never nil and
// holds every invocation made before an error, if any.
func (d *Dispatcher) Run(ctx context.Context) (*report.Run, error) {
	logger := observability.LoggerFrom(ctx)
	rep := report.New(d.Source.Dir, d.Source.Suffix)
	if d.Audit != nil {
		rep.SessionID = d.Audit.SessionID()
	}

	ctx, span := observability.StartRunSpan(ctx, d.Source.Dir)
	defer span.End()

	err := d.run(ctx, rep)
	rep.Finish(err)
	if d.Metrics != nil {
		d.Metrics.MarkRunFinished(rep.FinishedAt)
	}
	if err != nil {
		observability.RecordError(span, err)
		_ = d.Audit.LogRunError(err, len(rep.Invocations))
		return rep, err
	}

	_ = d.Audit.LogRunEnd(len(rep.Invocations), rep.Duration)
	logger.Info("dispatch complete",
		"matched", len(rep.Matched), "invocations", len(rep.Invocations), "nonzero_exits", rep.NonZeroExits())
	return rep, nil
}

func (d *Dispatcher) run(ctx context.Context, rep *report.Run) error {
	if _, err := fmt.Fprintln(d.stdout(), d.Source.Dir); err != nil {
		return fmt.Errorf("print source dir: %w", err)
	}
	_ = d.Audit.LogRunStart(d.Source.Dir, d.Source.Suffix, d.Invocation.Command)

	entries, matched, err := d.Matches(ctx)
	if err != nil {
		return err
	}
	rep.SetScan(entries, matched)
	_ = d.Audit.LogScan(d.Source.Dir, entries, matched)

	for _, file := range matched {
		if err := d.invoke(ctx, rep, file); err != nil {
			return fmt.Errorf("dispatch %s: %w", file, err)
		}
	}
	return nil
}

func (d *Dispatcher) invoke(ctx context.Context, rep *report.Run, file string) error {
	ctx, span := observability.StartInvokeSpan(ctx, d.Invocation.Command, file)
	defer span.End()

	logger := observability.LoggerFrom(ctx).With("file", file, "command", d.Invocation.Command)
	logger.Debug("invoking")

	res, err := d.invoker().Invoke(ctx, d.Invocation)
	if d.Metrics != nil {
		d.Metrics.RecordInvocation(res.Duration, res.ExitCode, err)
	}
	if err != nil {
		observability.RecordError(span, err)
		return err
	}
	observability.RecordInvokeResult(span, res.ExitCode, res.Duration)

	rep.AddInvocation(report.Invocation{
		File:     file,
		Command:  d.Invocation.Command,
		Args:     append([]string{}, d.Invocation.Args...),
		ExitCode: res.ExitCode,
		Duration: res.Duration,
	})
	_ = d.Audit.LogInvoke(file, d.Invocation.Command, d.Invocation.Args, res.ExitCode, res.Duration)

	if res.ExitCode != 0 {
		logger.Warn("command exited non-zero", "exit_code", res.ExitCode)
	} else {
		logger.Debug("command finished", "duration", res.Duration)
	}
	return nil
}
