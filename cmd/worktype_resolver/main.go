// Package main implements the worktype_resolver CLI for resolving assessment
// notes into catalog work types and curating the catalog.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jonathan/worktype-resolver/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "worktype_resolver",
	Short: "Resolve assessment notes into standardized work types",
	Long: `worktype_resolver maps free-text repair and remodel assessment fragments to
catalog work types, drafting new work types for fragments the catalog cannot match.

Configuration can be loaded from a JSON or YAML file using --config. Environment
variables override config file values, and command-line flags override both.`,
	SilenceUsage: true,
}

var (
	rootConfigPath  string
	rootVerbose     bool
	rootAPIKey      string
	rootDatabaseURL string
	rootRedisURL    string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&rootConfigPath, "config", "", "Path to config file (.json, .yaml or .yml)")
	rootCmd.PersistentFlags().BoolVarP(&rootVerbose, "verbose", "v", false, "Print detailed debug information")
	rootCmd.PersistentFlags().StringVar(&rootAPIKey, "api-key", "", "Gemini API key (optional, defaults to GEMINI_API_KEY env var)")
	rootCmd.PersistentFlags().StringVar(&rootDatabaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")
	rootCmd.PersistentFlags().StringVar(&rootRedisURL, "redis-url", "", "Redis URL for the draft cache (optional, defaults to REDIS_URL env var)")
}

// loadConfig builds the effective configuration: file, then environment,
// then explicitly set flags, then defaults.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	// Step 1: Load config file if provided
	var cfg config.Config
	if rootConfigPath != "" {
		loaded, err := config.LoadConfig(rootConfigPath)
		if err != nil {
			return cfg, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = *loaded
	}

	// Step 2: Environment overlay
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}

	// Step 3: Apply CLI overrides (only flags explicitly set)
	flags := cmd.Flags()
	if flags.Changed("verbose") {
		cfg.Verbose = rootVerbose
	}
	if flags.Changed("api-key") {
		cfg.APIKey = rootAPIKey
	}
	if flags.Changed("db-url") {
		cfg.DatabaseURL = rootDatabaseURL
	}
	if flags.Changed("redis-url") {
		cfg.RedisURL = rootRedisURL
	}

	// Step 4: Apply defaults for unset values
	cfg = cfg.MergeWithDefaults(config.Defaults())
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	setupLogging(cfg.Verbose)
	if cfg.Verbose && rootConfigPath != "" {
		_, _ = fmt.Fprintf(os.Stderr, "Loaded config from: %s\n", rootConfigPath)
	}
	return cfg, nil
}

func setupLogging(verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
