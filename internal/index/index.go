// Package index builds and maintains the vector index of a repository
// snapshot: source units, doc fragments, and their embeddings.
package index

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"lukechampine.com/blake3"

	"github.com/sprite-ai/ragrev/internal/llm"
)

// Indexer walks a repository snapshot, extracts units, embeds them, and
// upserts into the store. Rebuilding over unchanged content is a no-op
// per unit (content-hash dedup), so repeated triggers cannot grow the
// index.
type Indexer struct {
	Store    *Store
	Embedder llm.Embedder
	Repo     string

	// IgnoreGlobs are doublestar patterns matched against the
	// repo-relative path.
	IgnoreGlobs []string
}

// Stats summarizes one index run.
type Stats struct {
	Files   int
	Units   int
	Skipped int // unchanged units
	Failed  int // files that errored and were skipped
}

const maxFileBytes = 512 * 1024

// Index walks root and (re)indexes every code and doc file. Individual
// file failures are logged and skipped; only store-level failures
// abort.
func (ix *Indexer) Index(ctx context.Context, root string) (Stats, error) {
	var stats Stats

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if info.IsDir() {
			base := filepath.Base(path)
			if strings.HasPrefix(base, ".") && path != root {
				return filepath.SkipDir
			}
			switch base {
			case "vendor", "node_modules", "dist", "build", "__pycache__":
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if !ix.indexable(rel) || info.Size() > maxFileBytes {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			log.Printf("index: reading %s: %v", rel, err)
			stats.Failed++
			return nil
		}

		n, skipped, err := ix.indexFile(ctx, rel, string(content))
		if err != nil {
			log.Printf("index: %s: %v", rel, err)
			stats.Failed++
			return nil
		}

		stats.Files++
		stats.Units += n
		stats.Skipped += skipped
		return nil
	})
	if err != nil {
		return stats, err
	}
	return stats, nil
}

// Update re-indexes the given repo-relative paths. Paths that no longer
// exist under root have their units removed.
func (ix *Indexer) Update(ctx context.Context, root string, paths []string) (Stats, error) {
	var stats Stats

	for _, rel := range paths {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		rel = filepath.ToSlash(rel)
		if !ix.indexable(rel) {
			continue
		}

		content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		if os.IsNotExist(err) {
			if err := ix.Store.DeletePath(ix.Repo, rel); err != nil {
				return stats, fmt.Errorf("deleting %s: %w", rel, err)
			}
			continue
		}
		if err != nil {
			log.Printf("index: reading %s: %v", rel, err)
			stats.Failed++
			continue
		}

		n, skipped, err := ix.indexFile(ctx, rel, string(content))
		if err != nil {
			log.Printf("index: %s: %v", rel, err)
			stats.Failed++
			continue
		}
		stats.Files++
		stats.Units += n
		stats.Skipped += skipped
	}
	return stats, nil
}

func (ix *Indexer) indexable(rel string) bool {
	for _, glob := range ix.IgnoreGlobs {
		if ok, _ := doublestar.Match(glob, rel); ok {
			return false
		}
	}
	return LanguageFor(rel) != "" || IsDocFile(rel)
}

// indexFile extracts, hashes, embeds, and upserts the units of one
// file. Returns (indexed, skipped-as-unchanged).
func (ix *Indexer) indexFile(ctx context.Context, rel, content string) (int, int, error) {
	units := ExtractUnits(rel, content)
	indexed, skipped := 0, 0

	for _, ru := range units {
		id := fmt.Sprintf("%s:%s:%s:%d", rel, ru.Kind, ru.Name, ru.StartLine)
		hash := hashContent(ru.Content)

		same, err := ix.Store.Has(id, hash)
		if err != nil {
			return indexed, skipped, err
		}
		if same {
			skipped++
			continue
		}

		vec, err := ix.Embedder.Embed(ctx, ru.Content)
		if err != nil {
			return indexed, skipped, fmt.Errorf("embedding %s: %w", id, err)
		}

		err = ix.Store.Upsert(Unit{
			ID:        id,
			Repo:      ix.Repo,
			Path:      rel,
			Kind:      ru.Kind,
			Name:      ru.Name,
			Language:  LanguageFor(rel),
			StartLine: ru.StartLine,
			EndLine:   ru.EndLine,
			Content:   ru.Content,
			Hash:      hash,
			Vector:    vec,
		})
		if err != nil {
			return indexed, skipped, err
		}
		indexed++
	}
	return indexed, skipped, nil
}

func hashContent(content string) string {
	sum := blake3.Sum256([]byte(content))
	return fmt.Sprintf("%x", sum[:])
}
