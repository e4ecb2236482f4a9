package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"baziai/internal/api"
	"baziai/internal/config"
	"baziai/internal/logging"
)

// Version is stamped into the binary and reported by the version command.
const Version = "0.9.2"

var (
	// Global flags
	verbose    bool
	configPath string
	serverURL  string
	authToken  string
	language   string

	// Loaded configuration, available to every command after the
	// persistent pre-run.
	cfg *config.Config

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "baziai",
	Short: "baziai - streaming BAZI analysis client",
	Long: `baziai is a command-line client for the BAZI analysis service.

It computes a birth chart, streams the AI-generated reading section by
section as the backend produces it, and falls back to a synchronous
request when the stream breaks. Completed readings are archived locally
and can be listed, shown, and deleted with the history commands.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = config.Load(resolveConfigPath())
		if err != nil {
			return err
		}
		applyFlagOverrides(cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}

		if err := logging.Initialize(cfg.State.Dir, logging.Options{
			Debug:      cfg.Logging.Debug,
			Level:      cfg.Logging.Level,
			Categories: cfg.Logging.Categories,
		}); err != nil {
			return err
		}
		return logging.InitTranscript()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// resolveConfigPath prefers the --config flag, then the env override,
// then <home>/.baziai/config.yaml.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if p := os.Getenv("BAZIAI_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".baziai", "config.yaml")
	}
	return filepath.Join(home, ".baziai", "config.yaml")
}

// applyFlagOverrides lets command-line flags win over file and env.
func applyFlagOverrides(c *config.Config) {
	if serverURL != "" {
		c.Service.BaseURL = serverURL
	}
	if authToken != "" {
		c.Service.AuthToken = authToken
	}
	if language != "" {
		c.Service.Language = language
	}
}

// newAPIClient builds the backend client from the loaded configuration.
func newAPIClient() *api.Client {
	return api.NewClientWithConfig(api.Config{
		BaseURL:   cfg.Service.BaseURL,
		AuthToken: cfg.Service.AuthToken,
		Language:  cfg.Service.Language,
		Timeout:   cfg.GetRequestTimeout(),
	})
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ~/.baziai/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Backend base URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", "", "Bearer token (or set BAZIAI_AUTH_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&language, "lang", "", "Report language: en, zh-TW, zh-CN, ko")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(quotaCmd)
	rootCmd.AddCommand(compatCmd)
	rootCmd.AddCommand(dailyCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
