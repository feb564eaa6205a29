package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "agentgate",
	Short: "HTTP gateway for LLM agents with auth, rate limiting, and async tasks",
	Long: `AgentGate fronts LLM providers (OpenAI, xAI, Anthropic) with a single
HTTP API: API key authentication, multi-dimensional rate limiting,
request/execution history, and an async priority task queue.

Quick start:
  agentgate keys generate   # Create an API key for the config
  agentgate serve           # Start the server

Management:
  agentgate validate        # Validate configuration
  agentgate version         # Print version information`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "agentgate.yaml", "config file path")
}
