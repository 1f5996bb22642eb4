// Package retrieve queries the vector index for code patterns, best
// practices, and related files relevant to a change set. Retrieval is
// best-effort: every failure path yields an empty RetrievedKnowledge,
// never an error that aborts the pipeline.
package retrieve

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sprite-ai/ragrev/internal/collect"
	"github.com/sprite-ai/ragrev/internal/diff"
	"github.com/sprite-ai/ragrev/internal/index"
	"github.com/sprite-ai/ragrev/internal/llm"
	"github.com/sprite-ai/ragrev/internal/model"
)

// VectorStore is the read side of the index that retrieval needs.
// *index.Store satisfies it.
type VectorStore interface {
	Query(repo string, vec []float32, topK int, kinds ...string) ([]index.Match, error)
	SearchContent(repo, needle string, limit int) ([]index.Unit, error)
	Paths(repo string) ([]string, error)
}

// Retriever issues similarity queries per changed hunk with a bounded
// worker fan-out, plus a cheaper static pass for related files.
type Retriever struct {
	Store    VectorStore
	Embedder llm.Embedder
	Repo     string

	TopK      int
	Threshold float64
	Workers   int
	Timeout   time.Duration
	Enabled   bool
}

const minSnippetBytes = 50

// Retrieve returns knowledge for the context. Disabled retrieval, a
// missing store, timeouts, and per-query errors all degrade to an
// empty result.
func (r *Retriever) Retrieve(ctx context.Context, c *collect.Context) *model.RetrievedKnowledge {
	rk := &model.RetrievedKnowledge{}
	if !r.Enabled || r.Store == nil || r.Embedder == nil {
		return rk
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rk.Patterns, rk.ArchPatterns = r.similarPatterns(ctx, c.Files())
	rk.BestPractices = r.bestPractices(ctx, c)
	rk.RelatedFiles = r.relatedFiles(c.Files())
	return rk
}

type hunkQuery struct {
	path    string
	snippet string
}

// similarPatterns fans out one query per changed hunk, deduplicates
// matches that resolve to the same unit (keeping the highest score),
// and returns them ordered by score.
func (r *Retriever) similarPatterns(ctx context.Context, files []*diff.FileChange) ([]model.CodePattern, []string) {
	var queries []hunkQuery
	for _, f := range files {
		for _, h := range f.Hunks {
			snippet := strings.Join(h.AddedLines(), "\n")
			if len(strings.TrimSpace(snippet)) < minSnippetBytes {
				continue
			}
			queries = append(queries, hunkQuery{path: f.Path, snippet: snippet})
		}
	}
	if len(queries) == 0 {
		return nil, nil
	}

	workers := r.Workers
	if workers <= 0 {
		workers = 4
	}

	var (
		mu      sync.Mutex
		best    = make(map[string]index.Match) // unit id -> highest-scoring match
		sem     = make(chan struct{}, workers)
		wg      sync.WaitGroup
		skipped = make(map[string]bool) // changed paths never match themselves
	)
	for _, f := range files {
		skipped[f.Path] = true
	}

	for _, q := range queries {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(q hunkQuery) {
			defer wg.Done()
			defer func() { <-sem }()

			vec, err := r.Embedder.Embed(ctx, q.snippet)
			if err != nil {
				log.Printf("retrieve: embedding query for %s: %v", q.path, err)
				return
			}
			matches, err := r.Store.Query(r.Repo, vec, r.TopK, index.KindFunction, index.KindClass, index.KindFile)
			if err != nil {
				log.Printf("retrieve: query for %s: %v", q.path, err)
				return
			}

			mu.Lock()
			defer mu.Unlock()
			for _, m := range matches {
				if m.Score < r.Threshold || skipped[m.Path] {
					continue
				}
				if prev, ok := best[m.ID]; !ok || m.Score > prev.Score {
					best[m.ID] = m
				}
			}
		}(q)
	}
	wg.Wait()

	matches := make([]index.Match, 0, len(best))
	for _, m := range best {
		matches = append(matches, m)
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if max := r.TopK * 2; len(matches) > max {
		matches = matches[:max]
	}

	var patterns []model.CodePattern
	var arch []string
	seen := make(map[string]bool)
	for _, m := range matches {
		patterns = append(patterns, model.CodePattern{
			FilePath:    m.Path,
			Snippet:     m.Content,
			Score:       m.Score,
			Description: fmt.Sprintf("Similar %s %q found in codebase", m.Kind, m.Name),
		})
		if m.Kind == index.KindClass && !seen[m.Name] {
			seen[m.Name] = true
			arch = append(arch, fmt.Sprintf("%s (%s)", m.Name, m.Path))
		}
	}
	return patterns, arch
}

// bestPractices queries indexed doc fragments with the PR's intent
// (title + description + a sample of added code).
func (r *Retriever) bestPractices(ctx context.Context, c *collect.Context) []model.BestPractice {
	var sample string
	for _, f := range c.Files() {
		if code := f.AddedCode(); len(code) >= minSnippetBytes {
			sample = code
			break
		}
	}

	query := strings.TrimSpace(c.Meta.Title + "\n" + c.Meta.Description + "\n" + sample)
	if query == "" {
		return nil
	}

	vec, err := r.Embedder.Embed(ctx, query)
	if err != nil {
		log.Printf("retrieve: embedding doc query: %v", err)
		return nil
	}
	matches, err := r.Store.Query(r.Repo, vec, r.TopK, index.KindDoc)
	if err != nil {
		log.Printf("retrieve: doc query: %v", err)
		return nil
	}

	// Doc prose sits further from code in embedding space; relax the
	// cutoff slightly so guidelines still surface.
	cutoff := r.Threshold - 0.1

	var out []model.BestPractice
	for _, m := range matches {
		if m.Score < cutoff {
			continue
		}
		out = append(out, model.BestPractice{
			Source:    m.Path,
			Content:   m.Content,
			Relevance: fmt.Sprintf("Matches the change with similarity %.2f", m.Score),
		})
	}
	return out
}
