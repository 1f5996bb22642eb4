// Package safety gates the pipeline before expensive work and before
// any externally visible effect.
package safety

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/sprite-ai/ragrev/internal/collect"
	"github.com/sprite-ai/ragrev/internal/config"
	"github.com/sprite-ai/ragrev/internal/diff"
)

// Decision is the outcome of a gate check. An oversize diff still
// proceeds, restricted to FocusFiles — partial review beats none.
type Decision struct {
	Proceed    bool
	Reason     string
	FocusFiles []string
}

// Checker evaluates the cheap pre-planning checks and the write-side
// confidence floor. One Checker is shared across runs so the rate
// limiter sees every request.
type Checker struct {
	cfg     *config.Config
	limiter *rateLimiter
}

// New builds a Checker from config.
func New(cfg *config.Config) *Checker {
	return &Checker{
		cfg: cfg,
		limiter: &rateLimiter{
			max:    cfg.RateLimit.MaxRuns,
			window: cfg.RateWindow(),
			runs:   make(map[string][]time.Time),
		},
	}
}

// Gate runs the pre-planning checks for one review request. prKey
// identifies the PR for rate limiting (e.g. "owner/repo#42").
func (c *Checker) Gate(ctx *collect.Context, prKey string) Decision {
	for _, skip := range c.cfg.SkipLabels {
		for _, label := range ctx.Meta.Labels {
			if strings.EqualFold(label, skip) {
				return Decision{Reason: fmt.Sprintf("label %q skips review", label)}
			}
		}
	}

	if prKey != "" && !c.limiter.allow(prKey) {
		return Decision{Reason: fmt.Sprintf(
			"rate limit exceeded: more than %d runs in %s for %s",
			c.limiter.max, c.limiter.window, prKey)}
	}

	d := Decision{Proceed: true}
	if total := ctx.Diff.TotalChanged(); total > c.cfg.MaxDiffSize {
		d.Reason = fmt.Sprintf("diff has %d changed lines (limit %d); review restricted to high-risk files",
			total, c.cfg.MaxDiffSize)
		d.FocusFiles = c.rankFocusFiles(ctx.Files())
	}
	return d
}

// AllowSuggestion is the write-side gate: only suggestions at or above
// the configured confidence floor may be marked auto-fixable.
func (c *Checker) AllowSuggestion(confidence float64) bool {
	return confidence >= c.cfg.MinAutoFixConfidence
}

// HighRisk reports whether a path matches any configured
// security-sensitive pattern.
func (c *Checker) HighRisk(path string) bool {
	for _, pattern := range c.cfg.HighRiskPatterns {
		if ok, _ := doublestar.Match(pattern, path); ok {
			return true
		}
	}
	return false
}

// rankFocusFiles orders changed files by risk: high-risk path matches
// first, then by hunk count, and returns the top slice.
func (c *Checker) rankFocusFiles(files []*diff.FileChange) []string {
	type scored struct {
		path  string
		score int
	}

	ranked := make([]scored, 0, len(files))
	for _, f := range files {
		s := len(f.Hunks)
		if c.HighRisk(f.Path) {
			s += 1000
		}
		ranked = append(ranked, scored{path: f.Path, score: s})
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	limit := c.cfg.FocusFileLimit
	if limit <= 0 {
		limit = 10
	}
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = r.path
	}
	return out
}

// rateLimiter tracks run timestamps per PR identity within a rolling
// window.
type rateLimiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	runs   map[string][]time.Time
}

func (rl *rateLimiter) allow(key string) bool {
	if rl.max <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-rl.window)

	kept := rl.runs[key][:0]
	for _, t := range rl.runs[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= rl.max {
		rl.runs[key] = kept
		return false
	}

	rl.runs[key] = append(kept, now)
	return true
}
