// Package commands implements the review-scraper CLI.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/maltedev/amazon-review-scraper/internal/config"
)

// NewRootCmd builds the command tree around a fresh configuration instance.
func NewRootCmd() *cobra.Command {
	v := config.New()

	root := &cobra.Command{
		Use:   "review-scraper",
		Short: "Extract Amazon product reviews by ASIN",
		Long: `review-scraper fetches the review listing of Amazon products, retries
through a pool of proxies when Amazon answers with captchas or rate limits,
and emits one result record per ASIN.

Examples:
  # Scrape the jobs in a file and write a CSV
  review-scraper run -i jobs.json -f csv -o out

  # Serve the HTTP API
  review-scraper serve --port 8080`,
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file (YAML)")

	root.AddCommand(newRunCmd(v), newServeCmd(v))
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func loadConfig(cmd *cobra.Command, v *viper.Viper) (*config.Config, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return config.FromViper(v)
}
