package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

type options struct {
	configPath   string
	mysqlVersion string
	tables       []string
	bare         bool
	snapshotDB   string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "mysql-simulator [paths...]",
		Short:         "Simulate MySQL migrations and print the resulting SHOW CREATE TABLE output",
		Version:       versionString(),
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulation(cmd, opts, args)
		},
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to simulator TOML config file")
	rootCmd.PersistentFlags().StringVar(&opts.snapshotDB, "snapshot-db", "", "SQLite file recording the schema after every migration file")
	rootCmd.Flags().StringVar(&opts.mysqlVersion, "mysql-version", "", "server version to simulate (5.7 or 8.0)")
	rootCmd.Flags().StringSliceVar(&opts.tables, "tables", nil, "only print these tables")
	rootCmd.Flags().BoolVar(&opts.bare, "bare", false, "omit ENGINE/CHARSET table options")

	rootCmd.AddCommand(newHistoryCmd(opts))
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// resolveConfig loads the config file, if any, and applies flags the user set
// explicitly on top of it.
func resolveConfig(cmd *cobra.Command, opts *options) (*SimulatorConfig, error) {
	cfg := defaultConfig()
	if opts.configPath != "" {
		var err error
		cfg, err = loadConfig(opts.configPath)
		if err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("mysql-version") {
		cfg.MySQLVersion = opts.mysqlVersion
		if err := cfg.validate(); err != nil {
			return nil, err
		}
	}
	if flags.Changed("tables") {
		cfg.Tables = opts.tables
	}
	if flags.Changed("bare") {
		cfg.TableOptions = !opts.bare
	}
	if flags.Changed("snapshot-db") {
		cfg.SnapshotDB = opts.snapshotDB
	}
	return cfg, nil
}

func runSimulation(cmd *cobra.Command, opts *options, args []string) error {
	cfg, err := resolveConfig(cmd, opts)
	if err != nil {
		return err
	}

	paths := args
	if len(paths) == 0 {
		paths = cfg.Migrations
	}
	if len(paths) == 0 {
		return fmt.Errorf("no migrations given: mysql-simulator <path>... or set migrations in the config file")
	}
	files, err := expandPaths(paths)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no *.sql files found in %v", paths)
	}

	ctx := context.Background()
	start := time.Now()
	log.Printf("simulating MySQL %s over %d file(s)", cfg.version(), len(files))

	var store *snapshotStore
	if cfg.SnapshotDB != "" {
		store, err = openSnapshotStore(ctx, cfg.SnapshotDB)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	db, err := newSimulator(cfg, store).run(ctx, files)
	if err != nil {
		return err
	}
	log.Printf("found %d tables", len(db.TableNames()))

	if warnings := collectSchemaWarnings(db); len(warnings) > 0 {
		log.Printf("schema report: %d warning(s)", len(warnings))
		for _, w := range warnings {
			log.Printf("  WARN: %s", w)
		}
	}

	dump := db.DumpBare
	if cfg.TableOptions {
		dump = db.Dump
	}
	out, err := dump(cfg.Tables...)
	if err != nil {
		return fmt.Errorf("dump schema: %w", err)
	}
	if _, err := fmt.Fprint(cmd.OutOrStdout(), out); err != nil {
		return err
	}

	log.Printf("simulation completed in %s", time.Since(start).Round(time.Millisecond))
	return nil
}

func newHistoryCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "history [run-id [step]]",
		Short: "List recorded runs, the steps of one run, or the schema after one step",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, opts)
			if err != nil {
				return err
			}
			if cfg.SnapshotDB == "" {
				return fmt.Errorf("snapshot database required: --snapshot-db or snapshot_db in the config file")
			}
			if _, err := os.Stat(cfg.SnapshotDB); err != nil {
				return fmt.Errorf("open snapshot db: %w", err)
			}

			ctx := context.Background()
			store, err := openSnapshotStore(ctx, cfg.SnapshotDB)
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			switch len(args) {
			case 0:
				return printRuns(ctx, store, out)
			case 1:
				return printSnapshots(ctx, store, out, args[0])
			default:
				step, err := strconv.Atoi(args[1])
				if err != nil {
					return fmt.Errorf("invalid step %q: %w", args[1], err)
				}
				body, err := store.schema(ctx, args[0], step)
				if err != nil {
					return err
				}
				_, err = fmt.Fprint(out, body)
				return err
			}
		},
	}
}

func printRuns(ctx context.Context, store *snapshotStore, out io.Writer) error {
	runs, err := store.history(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSTARTED\tMYSQL\tTOOL\tFILES")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", r.ID, r.StartedAt.Format(time.RFC3339), r.MySQLVersion, r.ToolVersion, r.Files)
	}
	return w.Flush()
}

func printSnapshots(ctx context.Context, store *snapshotStore, out io.Writer, runID string) error {
	entries, err := store.snapshots(ctx, runID)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tFILE\tDIGEST")
	for _, e := range entries {
		fmt.Fprintf(w, "%d\t%s\t%s\n", e.Seq, e.File, e.Digest[:16])
	}
	return w.Flush()
}
