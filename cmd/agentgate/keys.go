package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentgate/agentgate/domain/key"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage API keys",
	Long: `Manage AgentGate API keys.

Keys are declared in the config file under auth.api_keys. This command
generates new keys; add the printed entry to your config and restart
(or SIGHUP) the server.

Examples:
  agentgate keys generate
  agentgate keys generate --name ci --count 3
  agentgate keys generate --yaml`,
}

var keysGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate new API keys",
	RunE:  runKeysGenerate,
}

var (
	keyName   string
	keyPrefix string
	keyCount  int
	keyYAML   bool
)

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysGenerateCmd)

	keysGenerateCmd.Flags().StringVar(&keyName, "name", "", "key name (optional)")
	keysGenerateCmd.Flags().StringVar(&keyPrefix, "prefix", key.DefaultPrefix, "key prefix")
	keysGenerateCmd.Flags().IntVarP(&keyCount, "count", "n", 1, "number of keys to generate")
	keysGenerateCmd.Flags().BoolVar(&keyYAML, "yaml", false, "print as a config file snippet")
}

func runKeysGenerate(cmd *cobra.Command, args []string) error {
	if keyCount < 1 {
		return fmt.Errorf("--count must be at least 1")
	}

	if keyYAML {
		fmt.Println("auth:")
		fmt.Println("  enabled: true")
		fmt.Println("  api_keys:")
	}

	for i := 0; i < keyCount; i++ {
		raw := key.Generate(keyPrefix)
		name := keyName
		if name == "" {
			name = fmt.Sprintf("key-%d", i+1)
		}

		if keyYAML {
			fmt.Printf("    - key_id: %q\n", name)
			fmt.Printf("      name: %q\n", name)
			fmt.Printf("      key_hash: %q\n", key.Hash(raw))
			fmt.Printf("      status: active\n")
			fmt.Printf("      # raw key (store safely, shown once): %s\n", raw)
			continue
		}

		fmt.Printf("Key:  %s\n", raw)
		fmt.Printf("Hash: %s\n", key.Hash(raw))
		fmt.Println()
	}

	if !keyYAML {
		fmt.Println("Add the hash to auth.api_keys in your config; the raw key is shown once.")
	}
	return nil
}
