package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/labfleet/labfleet/internal/automation"
	"github.com/labfleet/labfleet/internal/config"
	"github.com/labfleet/labfleet/internal/tokens"
)

var (
	// Global flags
	verbose bool
	jsonLog bool
	cfgFile string
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "labfleet",
	Short: "Multi-tenant training lab orchestration",
	Long: `Labfleet provisions hands-on training environments on a sandbox
automation platform.

Given an instructor reservation and a trainee roster, it duplicates the
blueprint's apps per trainee (renumbering IPs and vNICs), spins up one
sandbox per student and hands out tokenized portal links. At the end of the
session the teardown command unwinds everything best-effort.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Local development credentials, ignored when absent.
		_ = godotenv.Load()

		// Configure logging
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

		if !jsonLog {
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		}

		if verbose {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		} else {
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
		}
	},
}

// SetVersion stamps the build information onto the root command.
func SetVersion(version, commit string) {
	RootCmd.Version = fmt.Sprintf("%s (%s)", version, commit)
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	RootCmd.PersistentFlags().BoolVar(&jsonLog, "json-log", false, "Output logs in JSON format")
	RootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", os.Getenv("LABFLEET_CONFIG"), "Path to config file")
}

// loadConfig reads the configured YAML file plus LABFLEET_* overrides.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return cfg, err
	}
	if cfg.AutomationAPIURL == "" {
		return cfg, errors.New("automation_api_url is not configured")
	}
	return cfg, nil
}

// newClients builds the two external API clients every command needs.
func newClients(cfg config.Config) (automation.Client, *tokens.Client, error) {
	if cfg.TokenAPIHost == "" {
		return nil, nil, errors.New("token_api_host is not configured")
	}

	client := automation.NewREST(cfg.AutomationAPIURL, cfg.AutomationAPIToken)
	tokenClient := tokens.NewClient(cfg.TokenAPIHost, cfg.TokenAPIPort, tokens.AdminCredentials{
		Username: cfg.AdminUser,
		Password: cfg.AdminPassword,
		Domain:   cfg.Domain,
	})
	return client, tokenClient, nil
}

func requireSandboxID(id string) error {
	if id == "" {
		return fmt.Errorf("--sandbox-id is required")
	}
	return nil
}
