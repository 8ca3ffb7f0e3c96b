package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"docpipe/src/directors"
	"docpipe/src/engine"
	"docpipe/src/helpers"
	"docpipe/src/metrics"
	"docpipe/src/models"
	"docpipe/src/settings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configFile string
	loadFlags  []string
	indexFlags []string
	debugFlag  bool

	logger   *zap.SugaredLogger
	services *directors.ServiceManager
)

var rootCmd = &cobra.Command{
	Use:   "docpipe",
	Short: "docpipe - run aggregation pipelines over JSON document files",
	Example: `  docpipe --load prizes=prize.json run prizes pipeline.json
  docpipe --load laureates=laureate.json --index laureates:born distinct laureates bornCountry
  docpipe --load prizes=prize.json paginate prizes --sort '{"year": -1}' --page 2`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (yaml, json or toml)")
	rootCmd.PersistentFlags().StringArrayVar(&loadFlags, "load", nil, "Load a data file into a collection, name=path (repeatable)")
	rootCmd.PersistentFlags().StringArrayVar(&indexFlags, "index", nil, "Create an index, collection[/name]:field,-field (repeatable)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(runCmd(), explainCmd(), distinctCmd(), countCmd(), paginateCmd(), indexesCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads settings, builds the logger and the services, then loads data
// files and creates indexes.
func setup(cmd *cobra.Command, _ []string) error {
	args, err := settings.Load(configFile)
	if err != nil {
		return err
	}
	if debugFlag {
		args.Debug = true
		args.LogLevel = "debug"
	}
	for _, l := range loadFlags {
		name, path, ok := strings.Cut(l, "=")
		if !ok {
			return fmt.Errorf("invalid --load %q, expected name=path", l)
		}
		args.DataFiles[strings.TrimSpace(name)] = helpers.StripQuotes(path)
	}
	args.Indexes = append(args.Indexes, indexFlags...)
	if err := args.Validate(); err != nil {
		return err
	}
	settings.SetSettings(args)

	logger, err = newLogger(args)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	if args.Verbose {
		logger.Infof("docpipe starting with options: config=%q files=%v indexes=%v regexCache=%d pageSize=%d",
			args.ConfigFile, args.DataFiles, args.Indexes, args.RegexCacheSize, args.DefaultPageSize)
	}

	db, err := engine.NewDatabase("docpipe", engine.DatabaseOptions{
		Logger:         logger,
		Metrics:        metrics.NewMetrics(prometheus.NewRegistry()),
		RegexCacheSize: args.RegexCacheSize,
	})
	if err != nil {
		return err
	}
	services = directors.InitServiceManager(db, args, logger)

	if err := services.CollectionService.LoadAll(cmd.Context(), args.DataFiles); err != nil {
		return err
	}
	for _, spec := range args.Indexes {
		if _, err := services.CollectionService.CreateIndexFromSpec(spec); err != nil {
			return fmt.Errorf("failed to create index %q: %w", spec, err)
		}
	}
	return nil
}

func newLogger(args *settings.Arguments) (*zap.SugaredLogger, error) {
	level, err := zap.ParseAtomicLevel(args.LogLevel)
	if err != nil {
		return nil, err
	}
	var cfg zap.Config
	if args.Debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = level
	// stdout carries query results
	cfg.OutputPaths = []string{"stderr"}

	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(l)
	return l.Sugar(), nil
}

func printDocuments(cmd *cobra.Command, docs []*models.Document) error {
	for _, d := range docs {
		out, err := d.MarshalExtJSON()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
	}
	return nil
}

// readArg returns the argument itself, or the contents of the file it
// names when it starts with '@'.
func readArg(arg string) ([]byte, error) {
	if path, ok := strings.CutPrefix(arg, "@"); ok {
		return os.ReadFile(path)
	}
	return []byte(arg), nil
}

func parseOptionalFilter(args []string, i int) (engine.Filter, error) {
	if len(args) <= i {
		return nil, nil
	}
	data, err := readArg(args[i])
	if err != nil {
		return nil, err
	}
	return engine.ParseFilterJSON(data)
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <collection> <pipeline>",
		Short: "Run a pipeline given as extended JSON (or @file)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readArg(args[1])
			if err != nil {
				return err
			}
			docs, err := services.QueryService.RunJSON(cmd.Context(), args[0], data)
			if err != nil {
				return err
			}
			return printDocuments(cmd, docs)
		},
	}
}

func explainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "explain <collection> <pipeline>",
		Short: "Show how a pipeline would read its collection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readArg(args[1])
			if err != nil {
				return err
			}
			stages, err := engine.ParsePipelineJSON(data)
			if err != nil {
				return err
			}
			e, err := services.QueryService.Explain(args[0], stages)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), e.String())
			return nil
		},
	}
}

func distinctCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "distinct <collection> <path> [filter]",
		Short: "List the distinct values of a field",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := models.ParsePath(args[1])
			if err != nil {
				return err
			}
			filter, err := parseOptionalFilter(args, 2)
			if err != nil {
				return err
			}
			vals, err := services.QueryService.Distinct(cmd.Context(), args[0], path, filter)
			if err != nil {
				return err
			}
			for _, v := range vals {
				fmt.Fprintln(cmd.OutOrStdout(), v.String())
			}
			return nil
		},
	}
}

func countCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "count <collection> [filter]",
		Short: "Count the documents matching a filter",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := parseOptionalFilter(args, 1)
			if err != nil {
				return err
			}
			n, err := services.QueryService.CountDocuments(cmd.Context(), args[0], filter)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
}

func paginateCmd() *cobra.Command {
	var filterArg, projectionArg, sortArg string
	var page, size int64

	cmd := &cobra.Command{
		Use:   "paginate <collection>",
		Short: "Print one page of a sorted, filtered query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				filter     engine.Filter
				projection *engine.ProjectStage
				sortKeys   []engine.SortKey
				err        error
			)
			if filterArg != "" {
				if filter, err = engine.ParseFilterJSON([]byte(filterArg)); err != nil {
					return err
				}
			}
			if projectionArg != "" {
				if projection, err = engine.ParseProjectionJSON([]byte(projectionArg)); err != nil {
					return err
				}
			}
			if sortArg != "" {
				if sortKeys, err = engine.ParseSortJSON([]byte(sortArg)); err != nil {
					return err
				}
			}
			p, err := services.QueryService.Paginate(cmd.Context(), args[0], filter, projection, sortKeys, page, size)
			if err != nil {
				return err
			}
			return printDocuments(cmd, p.Documents)
		},
	}
	cmd.Flags().StringVar(&filterArg, "filter", "", "Filter document (extended JSON)")
	cmd.Flags().StringVar(&projectionArg, "projection", "", "Projection document or field list (extended JSON)")
	cmd.Flags().StringVar(&sortArg, "sort", "", "Sort document, e.g. {\"year\": -1}")
	cmd.Flags().Int64Var(&page, "page", 1, "1-based page number")
	cmd.Flags().Int64Var(&size, "size", 0, "Page size (0 uses the configured default)")
	return cmd
}

func indexesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "indexes <collection>",
		Short: "List the indexes of a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idxs, err := services.CollectionService.ListIndexes(args[0])
			if err != nil {
				return err
			}
			for _, idx := range idxs {
				fields := make([]string, len(idx.Fields))
				for i, f := range idx.Fields {
					fields[i] = f.String()
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tdocs=%d multikey=%t\n",
					idx.Name, strings.Join(fields, ","), idx.DocCount(), idx.Multikey())
			}
			return nil
		},
	}
}
