package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentgate/agentgate/bootstrap"
	"github.com/agentgate/agentgate/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the AgentGate server",
	Long: `Start the AgentGate HTTP server.

The server will:
  - Load configuration from agentgate.yaml (or --config)
  - Or fall back to AGENTGATE_* environment variables
  - Serve the chat, research, tasks, and history APIs
  - Apply authentication and rate limiting per API key

Environment variables (for Docker deployments):
  AGENTGATE_SERVER_PORT       - Server port (default: 8000)
  AGENTGATE_AUTH_ENABLED      - Enable API key auth
  AGENTGATE_DEFAULT_PROVIDER  - openai, xai, or anthropic
  AGENTGATE_LOG_LEVEL         - Log level: debug, info, warn, error
  OPENAI_API_KEY              - OpenAI API key
  XAI_API_KEY                 - xAI API key
  ANTHROPIC_API_KEY           - Anthropic API key

Examples:
  agentgate serve
  agentgate serve --config /etc/agentgate/config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(cfgFile); err != nil {
		fmt.Println("Running with environment variables (no config file)")
		cfg, loadErr := config.LoadFromEnv()
		if loadErr != nil {
			return fmt.Errorf("error loading config: %w", loadErr)
		}
		app, initErr := bootstrap.NewFromConfig(cfg)
		if initErr != nil {
			return fmt.Errorf("error initializing: %w", initErr)
		}
		return app.Run()
	}

	app, err := bootstrap.New(cfgFile)
	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}

	// Run (blocks until shutdown)
	return app.Run()
}
