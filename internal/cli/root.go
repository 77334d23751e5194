// Package cli implements the lidarfeat command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/banshee-data/lidarfeatures/internal/config"
	"github.com/banshee-data/lidarfeatures/internal/errs"
	"github.com/banshee-data/lidarfeatures/internal/fsutil"
	"github.com/banshee-data/lidarfeatures/internal/metrics"
	"github.com/banshee-data/lidarfeatures/internal/monitoring"
	"github.com/banshee-data/lidarfeatures/internal/pointcloud"
	"github.com/banshee-data/lidarfeatures/internal/runstore"
	"github.com/banshee-data/lidarfeatures/internal/version"
)

// Exit codes returned by Execute.
const (
	ExitOK        = 0
	ExitFailure   = 1
	ExitUsage     = 2
	ExitCancelled = 130
)

// RootOptions holds the global flags.
type RootOptions struct {
	ConfigPath  string
	LogLevel    string
	LogFormat   string
	Verbose     bool
	HistoryDB   string
	MetricsFile string
}

// App carries what PersistentPreRunE initialised through the command tree.
type App struct {
	FS      fsutil.FileSystem
	Config  *config.FeatureConfig
	Runs    *runstore.Store
	Metrics *metrics.Recorder
	Verbose bool

	logger      *zap.Logger
	metricsFile string
}

// NewRootCommand builds the command tree around app. app.FS defaults to the
// OS filesystem.
func NewRootCommand(app *App) *cobra.Command {
	if app.FS == nil {
		app.FS = fsutil.OSFileSystem{}
	}
	opts := &RootOptions{}
	cmd := &cobra.Command{
		Use:     "lidarfeat",
		Short:   "Neighborhood features for LiDAR point clouds",
		Version: version.String(),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return persistentPreRun(cmd, app, opts)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "config file (.json, .yaml or .yml)")
	pf.StringVar(&opts.LogLevel, "log-level", config.DefaultLogLevel, "log level (debug, info, warn, error)")
	pf.StringVar(&opts.LogFormat, "log-format", config.DefaultLogFormat, "log format (console, json)")
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "log per-extractor timings")
	pf.StringVar(&opts.HistoryDB, "history-db", "", "SQLite file recording every run")
	pf.StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus metrics to this textfile on exit")

	cmd.AddCommand(
		newConvertCmd(app),
		newFeaturesCmd(app),
		newNormalizeCmd(app),
		newSelectCmd(app),
		newGridCmd(app),
		newRunsCmd(app),
		newVersionCmd(),
	)
	return cmd
}

func persistentPreRun(cmd *cobra.Command, app *App, opts *RootOptions) error {
	var (
		cfg *config.FeatureConfig
		err error
	)
	if opts.ConfigPath != "" {
		cfg, err = config.Load(opts.ConfigPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = &opts.LogLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = &opts.LogFormat
	}
	if flags.Changed("history-db") {
		cfg.HistoryDB = &opts.HistoryDB
	}
	if flags.Changed("metrics-file") {
		cfg.MetricsFile = &opts.MetricsFile
	}
	if opts.Verbose {
		debug := "debug"
		cfg.LogLevel = &debug
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	app.Config = cfg
	app.Verbose = opts.Verbose

	z, err := monitoring.NewZapLogger(cfg.GetLogLevel(), cfg.GetLogFormat())
	if err != nil {
		return errs.Wrap(err, errs.InvalidInput, "logger")
	}
	monitoring.UseZap(z)
	app.logger = z

	if path := cfg.GetHistoryDB(); path != "" {
		if app.Runs, err = runstore.Open(path); err != nil {
			return err
		}
	}
	if path := cfg.GetMetricsFile(); path != "" {
		app.Metrics = metrics.New()
		app.metricsFile = path
	}
	return nil
}

// Close flushes metrics and releases the run store and logger.
func (a *App) Close() error {
	var errList []error
	if a.Metrics != nil && a.metricsFile != "" {
		errList = append(errList, a.Metrics.WriteTextfile(a.metricsFile))
	}
	if a.Runs != nil {
		errList = append(errList, a.Runs.Close())
		a.Runs = nil
	}
	if a.logger != nil {
		_ = a.logger.Sync()
		monitoring.UseZap(nil)
		a.logger = nil
	}
	return errors.Join(errList...)
}

// track records one run in the history store around fn. fn returns the
// cloud whose provenance the run produced.
func (a *App) track(ctx context.Context, command, input, output string, params map[string]any, fn func() (*pointcloud.PointCloud, error)) error {
	if a.Runs == nil {
		_, err := fn()
		return err
	}
	id, err := a.Runs.Start(ctx, command, input, output, params)
	if err != nil {
		return err
	}
	monitoring.Debugf("run %s: %s %s", id, command, input)

	pc, runErr := fn()
	status := runstore.StatusSucceeded
	switch {
	case errs.Has(runErr, errs.Cancelled):
		status = runstore.StatusCancelled
	case runErr != nil:
		status = runstore.StatusFailed
	}
	var (
		points int
		prov   []pointcloud.ProvenanceRecord
	)
	if pc != nil {
		points = pc.Len()
		prov = pc.Provenance()
	}
	if err := a.Runs.Finish(context.WithoutCancel(ctx), id, status, points, runErr, prov); err != nil && runErr == nil {
		return err
	}
	return runErr
}

// ExitCode maps an Execute error to a process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errs.Has(err, errs.Cancelled), errors.Is(err, context.Canceled):
		return ExitCancelled
	case errs.CodeOf(err) == errs.InvalidInput, errs.CodeOf(err) == errs.UnknownFeature,
		errs.CodeOf(err) == errs.UnknownVolumeType:
		return ExitUsage
	}
	return ExitFailure
}

// Execute runs the command line args and returns the exit status. Errors are
// printed to stderr.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	app := &App{}
	root := NewRootCommand(app)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if cerr := app.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintf(stderr, "lidarfeat: %s\n", strings.TrimSpace(err.Error()))
	}
	return ExitCode(err)
}
