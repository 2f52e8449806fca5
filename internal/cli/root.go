// Package cli provides the command-line interface for the engine.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"stockml-engine/internal/backtest"
	"stockml-engine/internal/config"
	"stockml-engine/internal/forecast"
	"stockml-engine/internal/logging"
	"stockml-engine/internal/model"
	"stockml-engine/internal/store"
	"stockml-engine/internal/validate"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2024-06-01"
)

// App holds the application dependencies.
type App struct {
	Config    *config.Config
	Logger    zerolog.Logger
	Store     store.DataStore
	Registry  *model.Registry
	Engine    *backtest.Engine
	Validator *validate.Validator
	Projector *forecast.Projector
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	dataStore, err := store.NewSQLiteStore(cfg.Storage.DBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to open data store, falling back to in-memory")
		app.Store = store.NewMemoryStore()
	} else {
		app.Store = dataStore
		logger.Debug().Str("path", cfg.Storage.DBPath).Msg("sqlite store initialized")
	}

	app.Registry = model.NewRegistry(cfg.Storage.ModelsDir)
	app.Engine = backtest.NewEngine(app.Store, app.Registry, cfg.Engine, logger)
	app.Validator = validate.NewValidator(app.Store, app.Registry, app.Engine, cfg.Engine, logger)
	app.Projector = forecast.NewProjector(app.Store, app.Registry, cfg.Engine, logger)

	rootCmd := &cobra.Command{
		Use:   "stockml",
		Short: "Historical backtesting and validation for frozen stock models",
		Long: `stockml replays frozen classifier models over stored price history.

It simulates a model-driven strategy against a buy-and-hold baseline,
validates models on out-of-sample windows after their training cutoff,
and projects signals a few trading days ahead.

Use 'stockml help <command>' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/stockml)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newBacktestCmd(app))
	rootCmd.AddCommand(newValidateCmd(app))
	rootCmd.AddCommand(newPredictCmd(app))
	rootCmd.AddCommand(newStatusCmd(app))
	rootCmd.AddCommand(newReportsCmd(app))
	rootCmd.AddCommand(newServeCmd(app))

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("stockml v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and manage application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": config.DefaultConfigDir()})
			} else {
				output.Println(config.DefaultConfigDir())
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				output.JSON(map[string]bool{"valid": true})
			} else {
				output.Success("Configuration is valid")
			}
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Engine Configuration")
	output.Printf("  Initial Cash:    %.2f\n", cfg.Engine.Cash)
	output.Printf("  Commission:      %.4f\n", cfg.Engine.Commission)
	output.Printf("  ML Threshold:    %.2f\n", cfg.Engine.MLThreshold)
	output.Printf("  Min Bars:        %d\n", cfg.Engine.MinBars)
	output.Printf("  Concurrency:     %d\n", cfg.Engine.Concurrency)
	output.Printf("  Max Horizon:     %d days\n", cfg.Engine.MaxHorizonDays)
	output.Printf("  Conf Threshold:  %.2f\n", cfg.Engine.ConfidenceThreshold)
	output.Println()

	output.Bold("Storage")
	output.Printf("  Database:        %s\n", cfg.Storage.DBPath)
	output.Printf("  Models Dir:      %s\n", cfg.Storage.ModelsDir)
	output.Println()

	output.Bold("Server")
	output.Printf("  Address:         %s\n", cfg.Server.Addr)
	output.Println()

	output.Bold("Logging")
	output.Printf("  Level:           %s\n", cfg.Logging.Level)
	output.Printf("  Console:         %v\n", cfg.Logging.Console)
	output.Printf("  File:            %v\n", cfg.Logging.File)
}
