package main

import (
	"fmt"
	"os"

	"github.com/cloo-solutions/policyqa/internal/cli/client"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "policyqa",
		Short: "policyqa CLI - ask questions about policy documents",
		Long: `policyqa CLI sends a document URL and questions to the policyqa API.

Environment variables:
  POLICYQA_API_KEY   Bearer token for authentication (required)
  POLICYQA_API_URL   API base URL (default: http://localhost:8000)`,
		Version: version,
	}

	rootCmd.PersistentFlags().Bool("output", false, "Output as JSON")
	rootCmd.PersistentFlags().String("api-key", "", "Bearer token (overrides env)")
	rootCmd.PersistentFlags().String("api-url", "", "API base URL (overrides env)")

	rootCmd.AddCommand(client.RunCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
