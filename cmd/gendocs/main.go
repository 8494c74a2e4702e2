package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/gendocs/internal/dispatch"
	"github.com/efebarandurmaz/gendocs/internal/observability"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "0.1.0"

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		jsonReport bool
		summary    bool
	)

	rootCmd := &cobra.Command{
		Use:   "gendocs",
		Short: "Run the documentation compiler once per source file",
		Long: `gendocs lists the source directory (../Coral next to the binary by
default), keeps the regular files ending in the configured suffix (.nim)
and runs the configured command (nim) once for each of them, in directory
order, waiting for each run to finish.

The command receives the same arguments every time; the matched file is
not passed to it. Exit codes of the command are ignored.

Configuration is read from --config (YAML) and GENDOCS_* environment
variables, e.g. GENDOCS_SCAN_DIR, GENDOCS_SCAN_SUFFIX, GENDOCS_COMMAND_NAME.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDispatch(cmd.Context(), configPath, jsonReport, summary, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (YAML)")
	rootCmd.Flags().BoolVar(&jsonReport, "json", false, "Print the run report as JSON to stderr")
	rootCmd.Flags().BoolVar(&summary, "summary", false, "Print a run summary to stderr")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Print the files that would be dispatched, without running anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listMatches(cmd.Context(), configPath, cmd.OutOrStdout())
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the gendocs version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "gendocs", version)
		},
	}

	rootCmd.AddCommand(listCmd, versionCmd)
	return rootCmd
}

// runDispatch runs one pass. stdout receives the source directory line;
// the summary and JSON report go to stderr, also when the run failed.
func runDispatch(ctx context.Context, configPath string, jsonReport, summary bool, stdout, stderr io.Writer) error {
	env, err := setup(ctx, configPath)
	if err != nil {
		return err
	}
	defer env.close()

	d := env.dispatcher(&dispatch.ExecInvoker{}, stdout)
	rep, runErr := d.Run(env.ctx)

	if out := env.cfg.Metrics.Output; out != "" {
		if err := env.metrics.WriteTextfile(out); err != nil {
			observability.LoggerFrom(env.ctx).Warn("metrics textfile not written", "path", out, "error", err)
		}
	}

	if summary {
		rep.PrintSummary(stderr)
	}
	if jsonReport {
		data, err := rep.JSON()
		if err != nil {
			return fmt.Errorf("encoding report: %w", err)
		}
		fmt.Fprintln(stderr, string(data))
	}

	return runErr
}

func listMatches(ctx context.Context, configPath string, stdout io.Writer) error {
	env, err := setup(ctx, configPath)
	if err != nil {
		return err
	}
	defer env.close()

	d := env.dispatcher(nil, stdout)
	_, matched, err := d.Matches(env.ctx)
	if err != nil {
		return err
	}
	for _, name := range matched {
		fmt.Fprintln(stdout, name)
	}
	return nil
}
