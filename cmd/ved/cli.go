package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vedmemory/ved/config"
	"github.com/vedmemory/ved/pkg/app"
	"github.com/vedmemory/ved/pkg/logger"
	"github.com/vedmemory/ved/pkg/memory"
	"github.com/vedmemory/ved/pkg/version"
)

// rootOptions are the flags shared by every subcommand.
type rootOptions struct {
	configPath string
	logLevel   string
	storage    string
	debug      bool
	set        []string
}

// overrides turns flags into config keys. extra wins over --set.
func (o *rootOptions) overrides(extra map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{})
	for _, kv := range o.set {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid --set %q, want key=value", kv)
		}
		out[strings.TrimSpace(key)] = value
	}
	if o.logLevel != "" {
		out["log.level"] = o.logLevel
	}
	if o.storage != "" {
		out["storage.type"] = o.storage
	}
	if o.debug {
		out["app.debug"] = true
	}
	for k, v := range extra {
		out[k] = v
	}
	return out, nil
}

func (o *rootOptions) load(extra map[string]interface{}) (*config.Config, error) {
	overrides, err := o.overrides(extra)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(o.configPath, overrides)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration:\n%w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) logger.Logger {
	logCfg := &logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}
	if cfg.App.Debug {
		logCfg.Level = logger.DebugLevel
	}
	return logger.New(logCfg)
}

// toolConfig keeps stdout free for command output.
func toolConfig(cfg *config.Config) *config.Config {
	if cfg.Log.Output == "" || cfg.Log.Output == "stdout" {
		cfg.Log.Output = "stderr"
	}
	return cfg
}

func buildRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "ved",
		Short: "Memory context service for conversational assistants",
		Long: strings.TrimSpace(`ved stores conversations per user and project and returns the
most relevant ones for a free-text query, ranked by keyword matches with a
recency tie-break.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Help()
			return fmt.Errorf("a subcommand is required")
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file")
	flags.StringVar(&opts.logLevel, "log-level", "", "Override log level (debug, info, warn, error)")
	flags.StringVar(&opts.storage, "storage", "", "Override storage type (memory, badger, sqlite, postgres)")
	flags.BoolVar(&opts.debug, "debug", false, "Enable debug mode")
	flags.StringArrayVar(&opts.set, "set", nil, "Override any config key, e.g. --set cache.enabled=true")

	root.AddCommand(newServeCommand(opts))
	root.AddCommand(newQueryCommand(opts))
	root.AddCommand(newSummarizeCommand(opts))
	root.AddCommand(newMigrateCommand(opts))
	root.AddCommand(newVersionCommand())

	return root
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Run the HTTP API with the optional gRPC, metrics and summarizer services",
		Example: "  ved serve --config config.yaml\n  ved serve --port 9000 --storage sqlite",
		RunE: func(cmd *cobra.Command, args []string) error {
			extra := map[string]interface{}{}
			if port != 0 {
				extra["server.port"] = port
			}
			cfg, err := opts.load(extra)
			if err != nil {
				return err
			}

			log := newLogger(cfg)
			logger.SetGlobal(log)
			defer log.Close()

			log.Info("Starting ved",
				"version", version.Version,
				"commit", version.Commit(),
				"built", version.BuildTime,
				"app", cfg.App.Name,
				"environment", cfg.App.Environment,
			)
			log.Debug("Configuration loaded", "config", cfg.String())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg, log)
			if err != nil {
				return err
			}

			if opts.configPath != "" {
				overrides, _ := opts.overrides(extra)
				if err := watchConfig(ctx, opts.configPath, overrides, a, log); err != nil {
					log.Warn("Config hot reload disabled", "error", err)
				}
			}

			return a.Run(ctx)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Override HTTP port")
	return cmd
}

func watchConfig(ctx context.Context, path string, overrides map[string]interface{}, a *app.App, log logger.Logger) error {
	w, err := config.NewWatcher(path, config.NewLoader(),
		config.WithLogger(log),
		config.WithOverrides(overrides),
	)
	if err != nil {
		return err
	}
	w.OnChange(a.ApplyHotReload)

	go func() {
		defer w.Stop()
		if err := w.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Config watcher stopped", "error", err)
		}
	}()
	return nil
}

func newQueryCommand(opts *rootOptions) *cobra.Command {
	var projectID, userID int64

	cmd := &cobra.Command{
		Use:     "query --project N --user N TEXT...",
		Short:   "Run one memory retrieval against the configured store and print it as JSON",
		Example: `  ved query --storage sqlite --project 3 --user 1 "redis cache"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(nil)
			if err != nil {
				return err
			}
			log := newLogger(toolConfig(cfg))
			defer log.Close()

			ctx := cmd.Context()
			store, err := app.OpenStorage(ctx, cfg.Storage, log)
			if err != nil {
				return err
			}
			defer store.Close()

			engine := memory.NewEngine(store, memory.WithLogger(log))
			result, err := engine.Retrieve(ctx, projectID, strings.Join(args, " "), userID)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().Int64Var(&projectID, "project", 0, "Project ID")
	cmd.Flags().Int64Var(&userID, "user", 0, "Owning user ID")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newSummarizeCommand(opts *rootOptions) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:     "summarize",
		Short:   "Fill in missing conversation summaries",
		Long:    "Run the summary worker in the foreground. With --once a single batch is processed and the command exits.",
		Example: "  ved summarize --once --set summarizer.api_key=sk-...",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(map[string]interface{}{"summarizer.enabled": true})
			if err != nil {
				return err
			}
			log := newLogger(toolConfig(cfg))
			defer log.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			if !once {
				return a.Summarizer().Run(ctx)
			}
			stats, err := a.Summarizer().RunOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "summarized %d conversations, %d failed\n", stats.Processed, stats.Failed)
			return nil
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Process one batch and exit")
	return cmd
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "migrate",
		Short:   "Apply the SQL schema (sqlite, postgres)",
		Example: "  ved migrate --storage postgres --set storage.postgres.dsn=postgres://localhost/ved",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(nil)
			if err != nil {
				return err
			}
			log := newLogger(toolConfig(cfg))
			defer log.Close()

			if err := app.Migrate(cmd.Context(), cfg.Storage, log); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema applied to %s storage\n", cfg.Storage.Type)
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show build/version metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
			return nil
		},
	}
}
