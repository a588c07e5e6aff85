package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ctolon/tabpipe/config"
	"github.com/ctolon/tabpipe/pipeline"
)

func newPathsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "List every dataset with its resolved location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := config.DefaultDatasets()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "DATASET\tSTAGE\tSPLIT\tPATH\tSIZE")
			for _, name := range reg.Names() {
				d := reg.MustGet(name)
				path := config.Resolve(a.settings.DataRoot, d.Path)
				size := "-"
				if fi, err := os.Stat(path); err == nil {
					size = humanize.Bytes(uint64(fi.Size()))
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.Name, d.Stage, d.Split, path, size)
			}
			return tw.Flush()
		},
	}
}

func schemaByName(name string) (*arrow.Schema, config.Groups, error) {
	switch name {
	case "", "raw":
		return config.RawSchema, config.RawGroups(), nil
	case "featurized", "features":
		return config.FeaturizedSchema, config.FeaturizedGroups(), nil
	default:
		return nil, config.Groups{}, fmt.Errorf("unknown schema %q (use raw or featurized)", name)
	}
}

func newSchemaCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "schema [raw|featurized]",
		Short: "Print a schema with each column's type and role",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var name string
			if len(args) > 0 {
				name = args[0]
			}
			schema, _, err := schemaByName(name)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tCOLUMN\tTYPE\tROLE\tNULLABLE")
			for i, f := range schema.Fields() {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%t\n", i, f.Name, f.Type, config.Role(f), f.Nullable)
			}
			return tw.Flush()
		},
	}
}

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the column groupings against both schemas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var errs []error
			for _, name := range []string{"raw", "featurized"} {
				schema, groups, _ := schemaByName(name)
				if err := config.CheckGroups(schema, groups); err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", name, err)
					errs = append(errs, fmt.Errorf("%s: %w", name, err))
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d columns)\n", name, schema.NumFields())
			}
			return errors.Join(errs...)
		},
	}
}

func newPromoteCmd(a *app) *cobra.Command {
	var split string
	cmd := &cobra.Command{
		Use:   "promote",
		Short: "Copy schemeless raw data to the schematic stage, enforcing the raw schema",
		Args:  cobra.NoArgs,
		RunE: a.withMetrics(func(cmd *cobra.Command, args []string) error {
			var splits []config.Split
			switch split {
			case "all":
				splits = []config.Split{config.SplitTrain, config.SplitTest}
			case string(config.SplitTrain), string(config.SplitTest):
				splits = []config.Split{config.Split(split)}
			default:
				return fmt.Errorf("unknown split %q (use train, test or all)", split)
			}
			sess, err := a.session()
			if err != nil {
				return err
			}

			steps := config.DefaultSteps()
			datasets := config.DefaultDatasets()
			seq := &pipeline.Sequence{Name: "promote"}
			paths := make([]string, 0, len(splits))
			for _, sp := range splits {
				cfg := &config.PipelineConfig{
					Name:   "promote-" + string(sp),
					Source: config.StageSchemeless.String() + "/" + string(sp),
					Sink:   config.StageSchematic.String() + "/" + string(sp),
					Steps:  []config.StepRef{{Name: "conform-raw"}, {Name: "require-rows"}},
				}
				p, err := config.BuildPipeline(steps, datasets, sess, a.settings.DataRoot, cfg)
				if err != nil {
					return err
				}
				p.Steps = append(p.Steps, report(cmd, cfg.Source+" -> "+cfg.Sink))
				seq.Pipelines = append(seq.Pipelines, p)
				paths = append(paths, config.Resolve(a.settings.DataRoot, datasets.MustGet(cfg.Source).Path))
			}

			// Splits are read together, sql.shuffle.partitions files at a time,
			// so nothing is written unless every split loads.
			tables, err := sess.ReadCSVs(cmd.Context(), config.RawSchema, paths...)
			if err != nil {
				return err
			}
			defer func() {
				for _, t := range tables {
					t.Release()
				}
			}()
			for i, p := range seq.Pipelines {
				p.Source = preloaded(tables[i])
			}
			return seq.Run(cmd.Context(), a.runOptions())
		}),
	}
	cmd.Flags().StringVar(&split, "split", "all", "Split to promote: train, test or all")
	return cmd
}

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run <pipeline|sequence>",
		Short: "Run a pipeline or sequence declared in the settings file",
		Args:  cobra.ExactArgs(1),
		RunE: a.withMetrics(func(cmd *cobra.Command, args []string) error {
			name := args[0]
			sess, err := a.session()
			if err != nil {
				return err
			}
			built, err := config.BuildAllPipelines(config.DefaultSteps(), config.DefaultDatasets(), sess, a.settings)
			if err != nil {
				return err
			}
			seqs, err := config.BuildAllSequences(a.settings, built)
			if err != nil {
				return err
			}

			if p, ok := built[name]; ok {
				out, err := p.Run(cmd.Context(), a.runOptions())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rows\n", name, out.NumRows())
				out.Release()
				return nil
			}
			if seq, ok := seqs[name]; ok {
				if err := seq.Run(cmd.Context(), a.runOptions()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d pipelines\n", name, len(seq.Pipelines))
				return nil
			}
			return fmt.Errorf("no pipeline or sequence %q (have: %s)", name, strings.Join(declared(a.settings), ", "))
		}),
	}
}

func (a *app) runOptions() *pipeline.RunOptions {
	return &pipeline.RunOptions{Observer: a.observer}
}

// preloaded returns a source handing out tbl. Each call retains it, as the
// pipeline releases its input when done.
func preloaded(tbl arrow.Table) pipeline.Source {
	return func(context.Context) (arrow.Table, error) {
		tbl.Retain()
		return tbl, nil
	}
}

// report returns a step printing the row count of the table passing through.
func report(cmd *cobra.Command, label string) pipeline.Step {
	return pipeline.Tap(func(_ context.Context, tbl arrow.Table) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rows\n", label, tbl.NumRows())
	})
}

func declared(s *config.Settings) []string {
	names := make([]string, 0, len(s.Pipelines)+len(s.Sequences))
	for n := range s.Pipelines {
		names = append(names, n)
	}
	for n := range s.Sequences {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
