// Package review synthesizes the final review from tool results and
// retrieved knowledge. Deterministic findings come straight from tool
// output; the model contributes consistency observations grounded in
// retrieved patterns, at capped confidence unless a tool corroborates
// them.
package review

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/sprite-ai/ragrev/internal/collect"
	"github.com/sprite-ai/ragrev/internal/llm"
	"github.com/sprite-ai/ragrev/internal/model"
)

// SynthesisError means no review could be produced at all: the model
// path failed while knowledge was available and the tools surfaced
// nothing deterministic to fall back on.
type SynthesisError struct {
	Err error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("review synthesis failed with no deterministic findings: %v", e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// Pattern-grounded comments are suggestions, not verified findings.
// Only corroboration by a tool lifts one above this cap.
const maxPatternConfidence = 0.6

const (
	lintConfidence       = 0.8
	typeConfidence       = 0.9
	testConfidence       = 0.85
	unattributedTestConf = 0.7
)

// Agent builds the review. lowPriority holds lint rule names whose
// findings never rise above nice_to_have.
type Agent struct {
	Client      llm.Client
	lowPriority map[string]bool
}

// New builds an Agent. client may be nil, in which case the review is
// purely deterministic.
func New(client llm.Client, lowPriorityRules []string) *Agent {
	low := make(map[string]bool, len(lowPriorityRules))
	for _, r := range lowPriorityRules {
		low[strings.ToLower(r)] = true
	}
	return &Agent{Client: client, lowPriority: low}
}

// Review synthesizes the final review for one run.
func (a *Agent) Review(ctx context.Context, c *collect.Context, plan model.ReviewPlan, results *model.ToolResults) (*model.Review, error) {
	comments := a.deterministicComments(c, results)

	patternComments, modelErr := a.patternComments(ctx, c, plan)
	comments = merge(comments, patternComments)

	if modelErr != nil && len(comments) == 0 && !c.Knowledge.IsEmpty() {
		return nil, &SynthesisError{Err: modelErr}
	}

	focus := make(map[string]bool, len(plan.FocusFiles))
	for _, f := range plan.FocusFiles {
		focus[f] = true
	}

	review := &model.Review{}
	for _, cm := range comments {
		cm = anchor(cm, c)
		if cm.File == "" {
			continue
		}
		// A restricted plan reviews only its focus files.
		if len(focus) > 0 && !focus[cm.File] {
			continue
		}
		review.Add(cm)
	}
	sortComments(review)

	review.ToolSummary = toolSummary(results)
	review.Summary = a.summary(ctx, c, review, results)
	return review, nil
}

// deterministicComments maps tool findings to comments. Severity
// drives the category; low-priority lint rules are demoted to
// nice_to_have regardless of severity.
func (a *Agent) deterministicComments(c *collect.Context, results *model.ToolResults) []model.ReviewComment {
	if results == nil {
		return nil
	}

	var out []model.ReviewComment
	addIssue := func(iss model.Issue, issueType string) {
		cm := model.ReviewComment{
			File:        iss.File,
			Line:        iss.Line,
			IssueType:   issueType,
			Description: iss.Message,
			Confidence:  lintConfidence,
		}
		switch {
		case a.lowPriority[strings.ToLower(iss.Rule)]:
			cm.Category = model.NiceToHave
		case iss.Severity == model.SeverityError:
			cm.Category = model.MustFix
			cm.Confidence = typeConfidence
		case iss.Severity == model.SeverityWarning:
			cm.Category = model.ShouldFix
		default:
			cm.Category = model.NiceToHave
		}
		if iss.Rule != "" {
			cm.Description = fmt.Sprintf("%s (%s)", iss.Message, iss.Rule)
		}
		out = append(out, cm)
	}

	for _, iss := range results.LintErrors {
		addIssue(iss, "lint")
	}
	for _, iss := range results.TypeErrors {
		addIssue(iss, "type_error")
	}

	for _, t := range results.FailedTests() {
		cm := model.ReviewComment{
			File:        t.File,
			IssueType:   "test_failure",
			Description: fmt.Sprintf("Test %s fails", t.Name),
			Category:    model.MustFix,
			Confidence:  testConfidence,
		}
		if t.FailureMessage != "" {
			cm.Description += ": " + t.FailureMessage
		}
		// A failure that cannot be tied to a changed file may predate
		// this PR.
		if t.File == "" || !c.HasFile(t.File) {
			cm.File = firstChangedPath(c)
			cm.Category = model.ShouldFix
			cm.Confidence = unattributedTestConf
		}
		out = append(out, cm)
	}
	return out
}

func firstChangedPath(c *collect.Context) string {
	if files := c.Files(); len(files) > 0 {
		return files[0].Path
	}
	return ""
}

const reviewSystem = `You are a code reviewer. Given a diff, review tasks, and
similar code patterns retrieved from the same codebase, report inconsistencies
between the changed code and the established patterns, plus any defects the
tasks ask you to check. Respond with JSON only:
{"comments":[{"file":"path from the diff","line":1,"issue_type":"consistency|correctness|security|performance|style",
"description":"what and why","suggestion":"replacement code or empty","confidence":0.0}]}
Only comment on files present in the diff. Use line numbers from the new file.`

type modelComment struct {
	File        string  `json:"file"`
	Line        int     `json:"line"`
	IssueType   string  `json:"issue_type"`
	Description string  `json:"description"`
	Suggestion  string  `json:"suggestion"`
	Confidence  float64 `json:"confidence"`
}

// patternComments asks the model for knowledge-grounded observations.
// No client or empty knowledge yields nothing; a model failure is
// returned so the caller can decide whether it is fatal.
func (a *Agent) patternComments(ctx context.Context, c *collect.Context, plan model.ReviewPlan) ([]model.ReviewComment, error) {
	if a.Client == nil || c.Knowledge.IsEmpty() {
		return nil, nil
	}

	user := reviewPrompt(c, plan)
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		system := reviewSystem
		if attempt > 0 {
			system += "\nYour previous response was not valid JSON of the required shape. Respond with ONLY the JSON object."
		}

		raw, err := a.Client.Complete(ctx, llm.Request{
			System:      system,
			User:        user,
			MaxTokens:   2000,
			Temperature: 0.2,
		})
		if err != nil {
			return nil, err
		}

		var parsed struct {
			Comments []modelComment `json:"comments"`
		}
		if err := json.Unmarshal([]byte(llm.ExtractJSON(raw)), &parsed); err != nil {
			lastErr = fmt.Errorf("decoding review response: %w", err)
			log.Printf("review: attempt %d: %v", attempt+1, err)
			continue
		}

		var out []model.ReviewComment
		for _, mc := range parsed.Comments {
			if mc.File == "" || mc.Description == "" {
				continue
			}
			conf := mc.Confidence
			if conf > maxPatternConfidence {
				conf = maxPatternConfidence
			}
			if conf <= 0 {
				conf = 0.3
			}
			out = append(out, model.ReviewComment{
				File:        mc.File,
				Line:        mc.Line,
				IssueType:   mc.IssueType,
				Description: mc.Description,
				Suggestion:  mc.Suggestion,
				Confidence:  conf,
				Category:    categoryFor(mc.IssueType),
			})
		}
		return out, nil
	}
	return nil, lastErr
}

func categoryFor(issueType string) model.Category {
	switch issueType {
	case "correctness", "security":
		return model.ShouldFix
	default:
		return model.NiceToHave
	}
}

func reviewPrompt(c *collect.Context, plan model.ReviewPlan) string {
	var b strings.Builder

	b.WriteString("Tasks:\n")
	for _, t := range plan.Tasks {
		fmt.Fprintf(&b, "  %s (%s, scope %s)\n", t.Type, t.Priority, t.Scope)
	}

	k := c.Knowledge
	if len(k.Patterns) > 0 {
		b.WriteString("\nSimilar code in this codebase:\n")
		for i, p := range k.Patterns {
			if i >= 5 {
				break
			}
			fmt.Fprintf(&b, "--- %s (similarity %.2f)\n%s\n", p.FilePath, p.Score, clip(p.Snippet, 1200))
		}
	}
	if len(k.BestPractices) > 0 {
		b.WriteString("\nProject guidelines:\n")
		for i, bp := range k.BestPractices {
			if i >= 3 {
				break
			}
			fmt.Fprintf(&b, "--- %s\n%s\n", bp.Source, clip(bp.Content, 800))
		}
	}
	if len(k.ArchPatterns) > 0 {
		fmt.Fprintf(&b, "\nArchitectural patterns: %s\n", strings.Join(k.ArchPatterns, "; "))
	}

	b.WriteString("\nDiff:\n")
	b.WriteString(clip(c.RawDiff, 20000))
	return b.String()
}

func clip(s string, max int) string {
	if len(s) > max {
		return s[:max] + "\n[truncated]"
	}
	return s
}

// merge combines deterministic and pattern comments. When both land on
// the same file and line, the tool finding is corroborated: one comment
// survives with the stronger category and the higher confidence.
func merge(deterministic, pattern []model.ReviewComment) []model.ReviewComment {
	key := func(cm model.ReviewComment) string { return fmt.Sprintf("%s:%d", cm.File, cm.Line) }

	byKey := make(map[string]int, len(deterministic))
	out := make([]model.ReviewComment, len(deterministic))
	copy(out, deterministic)
	for i, cm := range out {
		byKey[key(cm)] = i
	}

	for _, cm := range pattern {
		i, ok := byKey[key(cm)]
		if !ok || cm.Line == 0 {
			out = append(out, cm)
			continue
		}
		kept := &out[i]
		if cm.Confidence > kept.Confidence {
			kept.Confidence = cm.Confidence
		}
		if cm.Category < kept.Category {
			kept.Category = cm.Category
		}
		if kept.Suggestion == "" {
			kept.Suggestion = cm.Suggestion
		}
		kept.Description += "\n\nPattern note: " + cm.Description
	}
	return out
}

// anchor validates a comment's location against the diff. Comments on
// files outside the change set are dropped (File cleared); line numbers
// that fall outside any hunk demote to a file-level comment.
func anchor(cm model.ReviewComment, c *collect.Context) model.ReviewComment {
	fc := c.Diff.File(cm.File)
	if fc == nil {
		cm.File = ""
		return cm
	}
	if cm.Line > 0 {
		if h := fc.HunkFor(cm.Line); h != nil {
			cm.DiffHunk = h.Header()
		} else {
			cm.Line = 0
		}
	}
	return cm
}

func sortComments(r *model.Review) {
	byLoc := func(cs []model.ReviewComment) {
		sort.SliceStable(cs, func(i, j int) bool {
			if cs[i].File != cs[j].File {
				return cs[i].File < cs[j].File
			}
			return cs[i].Line < cs[j].Line
		})
	}
	byLoc(r.MustFix)
	byLoc(r.ShouldFix)
	byLoc(r.NiceToHave)
}

func toolSummary(results *model.ToolResults) string {
	if results == nil {
		return "No tools were run."
	}

	var parts []string
	if n := len(results.LintErrors); n > 0 {
		parts = append(parts, fmt.Sprintf("%d lint issue(s)", n))
	}
	if n := len(results.TypeErrors); n > 0 {
		parts = append(parts, fmt.Sprintf("%d type error(s)", n))
	}
	if n := len(results.FailedTests()); n > 0 {
		parts = append(parts, fmt.Sprintf("%d failing test(s)", n))
	} else if len(results.Tests) > 0 {
		parts = append(parts, "all reported tests passing")
	}
	summary := "Tools found no issues."
	if len(parts) > 0 {
		summary = "Tools reported " + strings.Join(parts, ", ") + "."
	}
	if len(results.ToolFailures) > 0 {
		summary += fmt.Sprintf(" %d tool(s) could not run: %s.",
			len(results.ToolFailures), strings.Join(results.ToolFailures, "; "))
	}
	return summary
}

// summary produces the overall assessment, preferring the model and
// falling back to counts.
func (a *Agent) summary(ctx context.Context, c *collect.Context, r *model.Review, results *model.ToolResults) string {
	fallback := fmt.Sprintf("%d must-fix, %d should-fix, %d nice-to-have finding(s) across %d changed file(s).",
		len(r.MustFix), len(r.ShouldFix), len(r.NiceToHave), len(c.Files()))

	if a.Client == nil {
		return fallback
	}

	var b strings.Builder
	fmt.Fprintf(&b, "PR: %s\n", c.Meta.Title)
	fmt.Fprintf(&b, "Findings: %s\n", fallback)
	for _, cm := range r.All() {
		fmt.Fprintf(&b, "- [%s] %s:%d %s\n", cm.Category, cm.File, cm.Line, clip(cm.Description, 200))
	}

	out, err := a.Client.Complete(ctx, llm.Request{
		System:      "Summarize this code review in 2-3 sentences for the PR author. Plain text, no headings.",
		User:        b.String(),
		MaxTokens:   300,
		Temperature: 0.3,
	})
	if err != nil || strings.TrimSpace(out) == "" {
		return fallback
	}
	return strings.TrimSpace(out)
}
