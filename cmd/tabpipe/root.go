package main

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ctolon/tabpipe/config"
	"github.com/ctolon/tabpipe/internal/logging"
	"github.com/ctolon/tabpipe/pipeline"
	"github.com/ctolon/tabpipe/session"
)

// app holds the state shared by every subcommand.
type app struct {
	// flags
	configPath  string
	dataRoot    string
	logLevel    string
	logFormat   string
	metricsFile string

	settings *config.Settings
	logger   *zap.Logger
	registry *prometheus.Registry
	builder  *session.Builder
	observer pipeline.Observer
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "tabpipe",
		Short: "Dataset layout, schemas and table pipelines for the passenger data",
		Long: `tabpipe knows where every stage of the passenger dataset lives
(schemeless raw, schematic raw, preprocessed, feature store), which schema
each file must match, and how columns are grouped for modelling.

Pipelines read a dataset with its schema enforced, apply named steps and
write the result to another dataset.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Settings file (YAML)")
	root.PersistentFlags().StringVar(&a.dataRoot, "data-root", "", "Data root directory (overrides settings and "+config.EnvDataRoot+")")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "Log format: json or console")
	root.PersistentFlags().StringVar(&a.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file after the command")

	root.AddCommand(
		newPathsCmd(a),
		newSchemaCmd(a),
		newCheckCmd(a),
		newPromoteCmd(a),
		newRunCmd(a),
	)
	return root
}

// setup loads settings, applies flag overrides and builds the logger and
// session builder.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	var err error
	if a.configPath != "" {
		a.settings, err = config.LoadSettings(a.configPath)
		if err != nil {
			return err
		}
	} else {
		a.settings = config.DefaultSettings()
		a.settings.ApplyEnv()
	}
	if a.dataRoot != "" {
		a.settings.DataRoot = a.dataRoot
	}
	if a.logLevel != "" {
		a.settings.Logging.Level = a.logLevel
	}
	if a.logFormat != "" {
		a.settings.Logging.Format = a.logFormat
	}

	a.logger, err = logging.New(a.settings.Logging.Level, a.settings.Logging.Format)
	if err != nil {
		return err
	}
	a.registry = prometheus.NewRegistry()
	a.builder = session.NewBuilder(
		session.WithLogger(a.logger),
		session.WithRegisterer(a.registry),
	)
	a.observer = pipeline.MultiObserver(
		pipeline.NewLogObserver(a.logger),
		pipeline.NewMetricsObserver(a.registry),
	)
	return nil
}

// session returns the memoized session for the configured tuning set.
func (a *app) session() (*session.Session, error) {
	conf := session.DefaultConf().SetAll(a.settings.Session)
	s, err := a.builder.GetOrCreate(conf, a.settings.AppName)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	return s, nil
}

// writeMetrics dumps the registry in the text exposition format when
// --metrics-file is set.
func (a *app) writeMetrics() error {
	if a.metricsFile == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(a.metricsFile, a.registry); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	return nil
}

// withMetrics wraps a command body so the metrics file is written whether or
// not the run succeeded.
func (a *app) withMetrics(run func(*cobra.Command, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := run(cmd, args)
		if mErr := a.writeMetrics(); mErr != nil {
			return errors.Join(err, mErr)
		}
		return err
	}
}
