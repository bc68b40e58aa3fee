package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dyluth/cmdbus/internal/config"
	"github.com/dyluth/cmdbus/internal/instance"
	"github.com/dyluth/cmdbus/internal/printer"
	"github.com/dyluth/cmdbus/internal/service"
	"github.com/dyluth/cmdbus/pkg/redisbus"
)

var (
	version string
	commit  string
	date    string

	configPath   string
	instanceName string
	redisURL     string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "cmdbus",
	Short: "cmdbus - Partitioned command bus for event-sourced accounts",
	Long: `cmdbus runs and operates a partitioned command-processing pipeline for
event-sourced ledger accounts, backed by Redis.

Commands are queued in Redis, executed by the bus service, and their outcomes
stored back in Redis. Accounts whose commit fails are quarantined until an
operator sends a recovery signal.`,
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	// Silence Cobra's default error and usage printing
	// We print formatted colored errors directly in the printer package
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to cmdbus.yml (defaults and environment only if omitted)")
	rootCmd.PersistentFlags().StringVarP(&instanceName, "name", "n", "", "Instance name (overrides config and CMDBUS_INSTANCE_NAME)")
	rootCmd.PersistentFlags().StringVar(&redisURL, "redis-url", "", "Redis URL (overrides config and REDIS_URL)")
}

// loadConfig loads cmdbus.yml and applies command-line overrides.
func loadConfig() (*config.CmdbusConfig, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, printer.Error(
			"invalid configuration",
			fmt.Sprintf("Error: %v", err),
			[]string{"Check cmdbus.yml and the CMDBUS_* environment variables"},
		)
	}
	if instanceName != "" {
		if err := instance.ValidateName(instanceName); err != nil {
			return nil, printer.Error("invalid instance name", fmt.Sprintf("Error: %v", err), nil)
		}
		cfg.Instance = instanceName
	}
	if redisURL != "" {
		cfg.RedisURL = redisURL
	}
	return cfg, nil
}

// connect returns a client for the configured instance.
func connect(ctx context.Context) (*redisbus.Client, *config.CmdbusConfig, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	client, err := service.Connect(ctx, cfg)
	if err != nil {
		return nil, nil, printer.ErrorWithContext(
			"cannot reach Redis",
			fmt.Sprintf("Error: %v", err),
			map[string]string{
				"Instance":  cfg.Instance,
				"Redis URL": cfg.RedisURL,
			},
			[]string{
				"Start Redis or point --redis-url at a running server",
				"Set REDIS_URL in the environment",
			},
		)
	}
	return client, cfg, nil
}
