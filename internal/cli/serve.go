package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sprite-ai/ragrev/internal/api"
	"github.com/sprite-ai/ragrev/internal/index"
	"github.com/sprite-ai/ragrev/internal/pipeline"
	"github.com/sprite-ai/ragrev/internal/tools"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start an HTTP server exposing the ragrev review pipeline.

Endpoints:
  GET  /health       — Health check
  POST /api/review   — Run the full review pipeline on a PR payload
  POST /api/collect  — Parse a diff and infer languages and CI commands
  POST /api/index    — Build or update the vector index
  POST /api/search   — Similarity search over indexed units
  GET  /api/ws       — WebSocket reviews with stage progress`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringP("addr", "a", "127.0.0.1", "address to listen on")
	serveCmd.Flags().IntP("port", "p", 6142, "port to listen on")
	serveCmd.Flags().String("repo-dir", "", "working tree for tool runs and indexing")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	addr, _ := cmd.Flags().GetString("addr")
	port, _ := cmd.Flags().GetInt("port")
	repoDir, _ := cmd.Flags().GetString("repo-dir")
	if repoDir == "" {
		if dir, err := gitRepoRoot(); err == nil {
			repoDir = dir
		}
	}

	client, embedder, store := backends(cfg)
	if store != nil {
		defer store.Close()
	}

	repo := repoName(repoDir)
	var indexer *index.Indexer
	if store != nil && embedder != nil {
		indexer = &index.Indexer{
			Store:       store,
			Embedder:    embedder,
			Repo:        repo,
			IgnoreGlobs: cfg.IgnoreGlobs,
		}
	}

	fmt.Printf("Tool registry: %s\n", strings.Join(tools.Names(), ", "))

	srv := api.New(api.Options{
		Addr:     fmt.Sprintf("%s:%d", addr, port),
		Pipeline: pipeline.New(cfg, client, embedder, store, repo),
		Store:    store,
		Indexer:  indexer,
		Embedder: embedder,
		Repo:     repo,
		RepoDir:  repoDir,
	})
	return srv.ListenAndServe()
}
