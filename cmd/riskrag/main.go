// Package main is the riskrag CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Marvins20/ai-ethics-multiagents/internal/app"
	"github.com/Marvins20/ai-ethics-multiagents/internal/cli"
	"github.com/Marvins20/ai-ethics-multiagents/internal/config"
	"github.com/Marvins20/ai-ethics-multiagents/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "config.yaml"

var (
	configPath string
	envFile    string
	debugMode  bool
	outputFmt  string
	noColor    bool
)

var rootCmd = &cobra.Command{
	Use:   "riskrag",
	Short: "Search AI risks and incidents for project risk assessment",
	Long: `riskrag ingests an AI risk taxonomy, an AI incident database with its source
reports, and a regulatory framework, and answers hybrid (lexical + semantic) searches
over them. Incident results carry the source reports they reference.`,
	SilenceUsage: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", defaultConfigPath, "config file path (defaults apply when missing)")
	flags.StringVar(&envFile, "env-file", ".env", "environment file loaded before the config")
	flags.BoolVar(&debugMode, "debug", false, "enable debug logging")
	flags.StringVarP(&outputFmt, "format", "o", "text", "output format: text or json")
	flags.BoolVar(&noColor, "no-color", false, "disable colored output")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadEnvFile loads path into the environment. Variables already set win; a missing
// file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// loadConfig loads the environment file and the config. Environment variables override
// the file.
func loadConfig() (*config.Config, error) {
	if err := loadEnvFile(envFile); err != nil {
		return nil, err
	}
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, err
	}
	if debugMode {
		cfg.Debug = true
	}
	return cfg, nil
}

// openApp loads the config and wires the application with a CLI logger on stderr.
func openApp() (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := utils.NewCLILogger(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	a, err := app.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	logger.Debug("config loaded", zap.String("config_path", configPath))
	return a, nil
}

func printer(cmd *cobra.Command) (*cli.Printer, error) {
	format, err := cli.ParseFormat(outputFmt)
	if err != nil {
		return nil, err
	}
	return cli.NewPrinter(cmd.OutOrStdout(), format, noColor), nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Ingest sources, watch them and serve the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := utils.NewLogger(cfg.Debug)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		defer logger.Sync()
		logger.Info("config loaded", zap.String("config_path", configPath), zap.Bool("debug", cfg.Debug))

		a, err := app.New(cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return a.Serve(ctx)
	},
}

var ingestCollection string

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load the configured sources into their collections",
	Long: `Loads the reports table, then the risk, incident and framework collections. A
collection that already holds entries is left unchanged.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := printer(cmd)
		if err != nil {
			return err
		}
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()
		results, err := a.Ingest(cmd.Context(), ingestCollection)
		if err != nil {
			return err
		}
		return p.IngestResults(results)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show collection sizes, the reports table and disk usage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := printer(cmd)
		if err != nil {
			return err
		}
		if serverURL != "" {
			st, err := statusViaHTTP(cmd.Context(), serverURL)
			if err != nil {
				return err
			}
			return p.Status(*st)
		}
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()
		st, err := a.Status(cmd.Context())
		if err != nil {
			return err
		}
		return p.Status(st)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("riskrag version %s\n", version)
	},
}

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the config file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a config file with the default settings",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if len(args) == 1 {
			path = args[0]
		}
		if _, err := os.Stat(path); err == nil && !configForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.Save(path, config.Default()); err != nil {
			return err
		}
		abs, _ := filepath.Abs(path)
		cmd.Printf("Wrote %s\n", abs)
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestCollection, "collection", "", "only fill this collection")
	statusCmd.Flags().StringVar(&serverURL, "server", "", "query a running server at this URL instead of opening the stores")
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(serveCmd, ingestCmd, statusCmd, versionCmd, configCmd)
}
