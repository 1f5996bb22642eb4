// Package collect assembles the review Context: PR metadata, the parsed
// diff, and an inferred CI configuration.
package collect

import (
	"context"
	"sort"
	"strings"

	"github.com/alecthomas/chroma/v2/lexers"

	"github.com/sprite-ai/ragrev/internal/diff"
	"github.com/sprite-ai/ragrev/internal/llm"
	"github.com/sprite-ai/ragrev/internal/model"
)

// Payload is the inbound PR payload: metadata plus the raw unified diff.
type Payload struct {
	Meta     model.PRMetadata `json:"metadata"`
	Diff     string           `json:"diff"`
	CIStatus string           `json:"ci_status,omitempty"`
	RepoDir  string           `json:"repo_dir,omitempty"`
}

// Context is the aggregate root for one review run. It is owned by a
// single pipeline and never mutated after Collect returns it; the only
// exception is Knowledge, which the orchestrator attaches exactly once
// after the retrieval stage.
type Context struct {
	Meta     model.PRMetadata
	Diff     *diff.DiffSet
	CI       model.CIConfig
	RawDiff  string
	CIStatus string
	RepoDir  string

	// Knowledge is nil when retrieval is disabled or degraded. Every
	// downstream stage must tolerate its absence.
	Knowledge *model.RetrievedKnowledge
}

// Files returns the parsed file changes.
func (c *Context) Files() []*diff.FileChange {
	return c.Diff.Files
}

// HasFile reports whether path is part of the change set.
func (c *Context) HasFile(path string) bool {
	return c.Diff.File(path) != nil
}

// Collector builds Contexts. The LLM client is optional; when nil, CI
// command inference uses the rule table only.
type Collector struct {
	Client llm.Client
}

// Collect parses the payload's diff and infers languages and CI
// commands. A diff that cannot be mapped to file/line locations returns
// a *diff.MalformedDiffError; everything else is best-effort.
func (c *Collector) Collect(ctx context.Context, p Payload) (*Context, error) {
	ds, err := diff.Parse(p.Diff)
	if err != nil {
		return nil, err
	}

	langs := DetectLanguages(ds)
	ci := c.inferCI(ctx, langs)

	return &Context{
		Meta:     p.Meta,
		Diff:     ds,
		CI:       ci,
		RawDiff:  p.Diff,
		CIStatus: p.CIStatus,
		RepoDir:  p.RepoDir,
	}, nil
}

// DetectLanguages maps changed file names to language names using
// chroma's lexer registry. Unknown extensions are skipped, never an
// error.
func DetectLanguages(ds *diff.DiffSet) []string {
	seen := make(map[string]bool)
	for _, f := range ds.Files {
		lexer := lexers.Match(f.Path)
		if lexer == nil {
			continue
		}
		name := strings.ToLower(lexer.Config().Name)
		seen[name] = true
	}

	langs := make([]string, 0, len(seen))
	for l := range seen {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	return langs
}
