package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"workinfrance/dossiers"
)

// RootOptions holds the global flags. Flags override the config file only
// when set on the command line.
type RootOptions struct {
	ConfigPath string
	DBPath     string
	MediaRoot  string
	Debug      bool
	LogFile    string

	// Now is the clock of the projections (for testing).
	Now func() time.Time
}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{Now: time.Now}

	cmd := &cobra.Command{
		Use:   "workinfrance",
		Short: "Mirror of the work authorization dossiers",
		Long: `Synchronises the dossiers of a demarches-simplifiees.fr procedure into a
local SQLite database and exports the projections read by the public site.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "YAML config file path")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", dossiers.DefaultDBPath, "SQLite database path")
	cmd.PersistentFlags().StringVar(&opts.MediaRoot, "media-root", "media", "directory receiving the exported JSON files")
	cmd.PersistentFlags().BoolVar(&opts.Debug, "debug", false, "enable debug logs")
	cmd.PersistentFlags().StringVar(&opts.LogFile, "log-file", "", "also write logs to this rotated file")

	cmd.AddCommand(newSyncCommand(opts))
	cmd.AddCommand(newWatchlistCommand(opts))
	cmd.AddCommand(newExportStatsCommand(opts))
	cmd.AddCommand(newExportValidityCheckCommand(opts))

	return cmd
}

// session is what every subcommand works with.
type session struct {
	cfg    *dossiers.FileConfig
	logger *slog.Logger
	store  *dossiers.Store

	logCloser io.Closer
}

func (r *session) Close() error {
	var errs []error
	if r.store != nil {
		errs = append(errs, r.store.Close())
	}
	if r.logCloser != nil {
		errs = append(errs, r.logCloser.Close())
	}
	return errors.Join(errs...)
}

// setup merges config file and flags, then opens the logger and the store.
func setup(cmd *cobra.Command, opts *RootOptions) (*session, error) {
	cfg := dossiers.DefaultConfig()
	if opts.ConfigPath != "" {
		loaded, err := dossiers.LoadConfig(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.Database.Path = opts.DBPath
	}
	if flags.Changed("media-root") {
		cfg.MediaRoot = opts.MediaRoot
	}
	if flags.Changed("debug") {
		cfg.Log.Debug = opts.Debug
	}
	if flags.Changed("log-file") {
		cfg.Log.File = opts.LogFile
	}

	logger, logCloser := dossiers.NewLogger(cfg.Log)
	rt := &session{cfg: cfg, logger: logger, logCloser: logCloser}

	logger.Debug("opening database", "path", cfg.Database.Path)
	st, err := dossiers.OpenStore(cfg.Database.Path, logger)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.store = st
	return rt, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func newSyncCommand(opts *RootOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronise the dossiers from the upstream API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.cfg.API.Validate(); err != nil {
				return err
			}
			client := dossiers.NewAPIClient(rt.cfg.API, nil)
			syncer := dossiers.NewSyncer(client, rt.store, dossiers.SyncConfig{
				PageSize: rt.cfg.API.PageSize,
				Logger:   rt.logger,
			})
			ctx := commandContext(cmd)
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			stats, err := syncer.Run(ctx)
			if werr := stats.WriteSummary(cmd.OutOrStdout()); werr != nil && err == nil {
				err = werr
			}
			if err != nil {
				return fmt.Errorf("sync: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "overall timeout for one run (e.g. 30s, 2m)")
	return cmd
}

func newWatchlistCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watchlist",
		Short: "List the dossiers to check before the residence permit renewal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer rt.Close()

			entries, err := rt.store.Watchlist(commandContext(cmd), opts.Now())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range entries {
				fmt.Fprintln(out, e.String())
			}
			return nil
		},
	}
}

func newExportStatsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export-stats",
		Short: "Write " + dossiers.StatsFileName + " to the media root",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer rt.Close()

			report, err := dossiers.BuildStatsReport(commandContext(cmd), rt.store, opts.Now())
			if err != nil {
				return err
			}
			path, err := dossiers.WriteJSONFile(rt.cfg.MediaRoot, dossiers.StatsFileName, report)
			if err != nil {
				return fmt.Errorf("write stats: %w", err)
			}
			rt.logger.Info("stats exported", "path", path)
			return nil
		},
	}
}

func newExportValidityCheckCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export-validity-check",
		Short: "Write " + dossiers.ValidityCheckFileName + " to the media root",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer rt.Close()

			entries, err := rt.store.ValidityCheck(commandContext(cmd), opts.Now())
			if err != nil {
				return err
			}
			path, err := dossiers.WriteJSONFile(rt.cfg.MediaRoot, dossiers.ValidityCheckFileName, entries)
			if err != nil {
				return fmt.Errorf("write validity check: %w", err)
			}
			rt.logger.Info("validity check exported", "path", path, "dossiers", len(entries))
			return nil
		},
	}
}
