package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sprite-ai/ragrev/internal/index"
)

// repoName derives the index namespace from the repository directory.
func repoName(root string) string {
	abs, err := filepath.Abs(root)
	if err != nil {
		return filepath.Base(root)
	}
	return filepath.Base(abs)
}

var indexCmd = &cobra.Command{
	Use:   "index [root]",
	Short: "Build or update the vector index",
	Long: `Walk a repository snapshot and index its code units and doc
fragments for retrieval. Re-running over unchanged content is a no-op:
units are deduplicated by content hash.

Examples:
  ragrev index                          # index the current repository
  ragrev index /path/to/repo
  ragrev index --paths a.go --paths b.go  # re-index specific files`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().StringArray("paths", nil, "re-index only these repo-relative paths")
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	root := "."
	if len(args) == 1 {
		root = args[0]
	} else if dir, err := gitRepoRoot(); err == nil {
		root = dir
	}

	_, embedder, store := backends(cfg)
	if store == nil {
		return fmt.Errorf("could not open index at %s", cfg.IndexPath)
	}
	defer store.Close()
	if embedder == nil {
		return fmt.Errorf("indexing requires an embedding backend: set %s", cfg.LLM.APIKeyEnv)
	}

	ix := &index.Indexer{
		Store:       store,
		Embedder:    embedder,
		Repo:        repoName(root),
		IgnoreGlobs: cfg.IgnoreGlobs,
	}

	paths, _ := cmd.Flags().GetStringArray("paths")
	var stats index.Stats
	if len(paths) > 0 {
		stats, err = ix.Update(cmd.Context(), root, paths)
	} else {
		stats, err = ix.Index(cmd.Context(), root)
	}
	if err != nil {
		return err
	}

	total, _ := store.Count(ix.Repo)
	fmt.Printf("Indexed %d file(s): %d new unit(s), %d unchanged, %d failed. %d unit(s) total.\n",
		stats.Files, stats.Units, stats.Skipped, stats.Failed, total)
	return nil
}
