package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentgate/agentgate/config"
)

const (
	checkMark = "✓"
	crossMark = "✗"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration before deployment",
	Long: `Validate the AgentGate configuration file.

Checks:
  - YAML syntax is valid
  - Required fields are present
  - Values are in range

Examples:
  agentgate validate
  agentgate validate --config /etc/agentgate/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	fmt.Printf("Validating %s...\n\n", cfgFile)

	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		fmt.Printf("  %s Config file exists\n", crossMark)
		return fmt.Errorf("config file not found: %s", cfgFile)
	}
	fmt.Printf("  %s Config file exists\n", checkMark)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Printf("  %s Config valid\n", crossMark)
		return fmt.Errorf("config error: %w", err)
	}
	fmt.Printf("  %s Config valid\n", checkMark)

	fmt.Printf("  %s Listen: %s:%d\n", checkMark, cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("  %s Auth enabled: %t (%d keys)\n", checkMark, cfg.Auth.Enabled, len(cfg.Auth.APIKeys))
	fmt.Printf("  %s Default provider: %s\n", checkMark, cfg.Providers.Default)
	fmt.Printf("  %s History backend: %s\n", checkMark, cfg.History.Backend)
	fmt.Printf("  %s Rate limits enabled: %t\n", checkMark, cfg.RateLimits.Enabled)
	fmt.Printf("  %s Task workers: %d\n", checkMark, cfg.Tasks.MaxWorkers)

	fmt.Println()
	fmt.Println("Configuration is valid.")
	return nil
}
