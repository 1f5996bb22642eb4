// Package cli implements the ragrev command line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sprite-ai/ragrev/internal/config"
	"github.com/sprite-ai/ragrev/internal/index"
	"github.com/sprite-ai/ragrev/internal/llm"
)

var rootCmd = &cobra.Command{
	Use:   "ragrev",
	Short: "Retrieval-augmented code review",
	Long: `ragrev reviews pull requests by combining static tool output with
knowledge retrieved from a vector index of the codebase, and emits
prioritized file- and line-anchored comments.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to config file (default .ragrev.yml)")
	rootCmd.AddCommand(reviewCmd, indexCmd, serveCmd, versionCmd)
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ragrev: %v\n", err)
		return err
	}
	return nil
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = ".ragrev.yml"
	}
	return config.Load(path)
}

// backends builds the optional model, embedding, and index backends
// from config. Any of the three may come back nil.
func backends(cfg *config.Config) (llm.Client, llm.Embedder, *index.Store) {
	hc := llm.NewHTTPClient(llm.Options{
		BaseURL:    cfg.LLM.BaseURL,
		Model:      cfg.LLM.Model,
		EmbedModel: cfg.LLM.EmbedModel,
		APIKeyEnv:  cfg.LLM.APIKeyEnv,
		Timeout:    cfg.LLMTimeout(),
	})

	store, err := index.Open(cfg.IndexPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not open index at %s: %v\n", cfg.IndexPath, err)
		store = nil
	}

	// A nil *HTTPClient must not escape into the interfaces.
	if hc == nil {
		return nil, nil, store
	}
	return hc, hc, store
}
