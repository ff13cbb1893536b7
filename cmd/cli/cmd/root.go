package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/mcpsandbox/mcpsandbox/pkg/client"
)

var (
	baseURL string
	apiKey  string
)

var rootCmd = &cobra.Command{
	Use:   "sbx",
	Short: "Sandbox CLI - run code and manage files in sandbox sessions",
	Long: `sbx talks to a sandbox broker over its tool API.

Upload data files, execute code against them, inspect generated
artifacts, and close sessions when done. Files persist under /mnt/data
between runs in the same session.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseURL, "url",
		getEnvOrDefault("SANDBOX_API_URL", "http://localhost:8080"), "Broker base URL")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key",
		os.Getenv("SANDBOX_API_KEY"), "Broker API key")
}

func getEnvOrDefault(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

func newClient() *client.Client {
	return client.New(baseURL, apiKey)
}
