package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/nerrad567/flowline-core/internal/automation"
	"github.com/nerrad567/flowline-core/internal/infrastructure/config"
	"github.com/nerrad567/flowline-core/internal/infrastructure/database"
)

// defaultConfigPath is used when neither --config nor FLOWLINE_CONFIG is set.
const defaultConfigPath = "configs/config.yaml"

// rootOptions holds global flags for all commands.
type rootOptions struct {
	configPath string
}

// newRootCommand creates the flowline command tree. Running it without a
// subcommand starts the service.
func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "flowline",
		Short: "Flowline - business workflow automation engine",
		Long: `Flowline runs automations: a trigger (event, schedule, webhook or
manual) paired with an ordered list of actions.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"config file (default $FLOWLINE_CONFIG or "+defaultConfigPath+")")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newValidateCommand())
	cmd.AddCommand(newEvalCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the automation engine, scheduler and HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	var down, status bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			db, err := database.Open(database.Config{
				Path:        cfg.Database.Path,
				WALMode:     cfg.Database.WALMode,
				BusyTimeout: cfg.Database.BusyTimeout,
			})
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer db.Close()

			ctx := cmd.Context()
			switch {
			case down:
				if err := db.MigrateDown(ctx); err != nil {
					return fmt.Errorf("rolling back migration: %w", err)
				}
			case !status:
				if err := db.Migrate(ctx); err != nil {
					return fmt.Errorf("running migrations: %w", err)
				}
			}

			applied, pending, err := db.GetMigrationStatus(ctx)
			if err != nil {
				return fmt.Errorf("reading migration status: %w", err)
			}
			out := cmd.OutOrStdout()
			for _, m := range applied {
				fmt.Fprintf(out, "applied  %s\n", m.Version)
			}
			for _, m := range pending {
				fmt.Fprintf(out, "pending  %s_%s\n", m.Version, m.Name)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&down, "down", false, "roll back the most recent migration")
	cmd.Flags().BoolVar(&status, "status", false, "print migration status without applying")
	return cmd
}

func newValidateCommand() *cobra.Command {
	var cronMode string

	cmd := &cobra.Command{
		Use:   "validate <file|dir>...",
		Short: "Validate YAML automation definitions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := automation.CronMode(cronMode)
			if mode != automation.CronModeExact && mode != automation.CronModeStandard {
				return fmt.Errorf("invalid cron mode %q: must be exact or standard", cronMode)
			}
			return validateDefinitions(cmd.OutOrStdout(), args, mode)
		},
	}

	cmd.Flags().StringVar(&cronMode, "cron-mode", string(automation.CronModeExact), "cron matcher to check schedules against (exact|standard)")
	return cmd
}

// errInvalidDefinitions is returned by validate when any definition fails.
var errInvalidDefinitions = errors.New("invalid automation definitions")

func validateDefinitions(out io.Writer, paths []string, mode automation.CronMode) error {
	failed := 0
	for _, path := range paths {
		automations, err := loadDefinitionPath(path)
		if err != nil {
			fmt.Fprintf(out, "error    %s: %v\n", path, err)
			failed++
			continue
		}

		for i := range automations {
			a := &automations[i]
			a.ApplyDefaults()
			if err := automation.ValidateAutomation(a); err != nil {
				fmt.Fprintf(out, "invalid  %s (%s): %v\n", a.ID, a.Name, err)
				failed++
				continue
			}
			fmt.Fprintf(out, "ok       %s (%s)\n", a.ID, a.Name)
			for _, w := range automation.Diagnostics(a, mode) {
				fmt.Fprintf(out, "warning  %s: %s\n", a.ID, w)
			}
		}
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d failed", errInvalidDefinitions, failed)
	}
	return nil
}

func loadDefinitionPath(path string) ([]automation.Automation, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return automation.LoadDefinitions(path)
	}
	return automation.LoadDefinitionFile(path)
}

func newEvalCommand() *cobra.Command {
	var contextJSON string

	cmd := &cobra.Command{
		Use:   "eval <expression>",
		Short: "Evaluate a condition expression",
		Long: `Evaluate a condition expression against a JSON context and print
true or false. Malformed expressions print false, as they do in run_if
guards.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data := map[string]any{}
			if contextJSON != "" {
				if err := json.Unmarshal([]byte(contextJSON), &data); err != nil {
					return fmt.Errorf("parsing --context: %w", err)
				}
			}
			result := automation.NewEvaluator(nil).Evaluate(args[0], data)
			fmt.Fprintln(cmd.OutOrStdout(), result)
			return nil
		},
	}

	cmd.Flags().StringVar(&contextJSON, "context", "", "JSON object to evaluate against")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "flowline %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

// loadConfig resolves the config path from --config, FLOWLINE_CONFIG or
// the default. A missing default file falls back to built-in defaults;
// a missing explicit file is an error.
func loadConfig(opts *rootOptions) (*config.Config, error) {
	path := opts.configPath
	if path == "" {
		path = os.Getenv(config.EnvPrefix + "CONFIG")
	}
	if path == "" {
		cfg, err := config.Load(defaultConfigPath)
		if errors.Is(err, fs.ErrNotExist) {
			return config.LoadDefault()
		}
		return cfg, err
	}
	return config.Load(path)
}
