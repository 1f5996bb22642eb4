// Package model defines the core data types shared across ragrev.
// Everything here is a value object: built once per pipeline run and
// never mutated after the producing stage returns it.
package model

import "time"

// Severity of a tool-reported issue.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return "info"
	}
}

// Category buckets a review comment by urgency.
type Category int

const (
	MustFix Category = iota
	ShouldFix
	NiceToHave
)

func (c Category) String() string {
	switch c {
	case MustFix:
		return "must_fix"
	case ShouldFix:
		return "should_fix"
	case NiceToHave:
		return "nice_to_have"
	default:
		return "unknown"
	}
}

// TaskType categorizes what a review task checks.
type TaskType string

const (
	TaskCorrectness TaskType = "correctness"
	TaskSecurity    TaskType = "security"
	TaskPerformance TaskType = "performance"
	TaskStyle       TaskType = "style"
	TaskConsistency TaskType = "consistency"
)

// TaskScope limits where a review task looks.
type TaskScope string

const (
	ScopeChangedFunctions TaskScope = "changed_functions"
	ScopeAll              TaskScope = "all"
	ScopeHighRiskOnly     TaskScope = "high_risk_only"
)

// TaskPriority orders tasks within a plan.
type TaskPriority string

const (
	PriorityMust   TaskPriority = "must"
	PriorityShould TaskPriority = "should"
	PriorityNice   TaskPriority = "nice"
)

// ValidTaskType reports whether t is one of the known task types.
func ValidTaskType(t TaskType) bool {
	switch t {
	case TaskCorrectness, TaskSecurity, TaskPerformance, TaskStyle, TaskConsistency:
		return true
	}
	return false
}

// ValidTaskScope reports whether s is one of the known scopes.
func ValidTaskScope(s TaskScope) bool {
	switch s {
	case ScopeChangedFunctions, ScopeAll, ScopeHighRiskOnly:
		return true
	}
	return false
}

// ValidTaskPriority reports whether p is one of the known priorities.
func ValidTaskPriority(p TaskPriority) bool {
	switch p {
	case PriorityMust, PriorityShould, PriorityNice:
		return true
	}
	return false
}

// ReviewTask is one thing the review should check.
type ReviewTask struct {
	Type     TaskType     `json:"type"`
	Scope    TaskScope    `json:"scope"`
	Priority TaskPriority `json:"priority"`
}

// ReviewPlan is the Planning Agent's output: what to check and which
// tools to run. FocusFiles is non-empty only when the diff exceeded the
// size threshold and the review is restricted to a high-risk subset.
type ReviewPlan struct {
	Tasks      []ReviewTask `json:"tasks"`
	Tools      []string     `json:"tools"`
	FocusFiles []string     `json:"focus_files,omitempty"`
	Rationale  string       `json:"rationale,omitempty"`
}

// Issue is a single normalized finding from a tool output parser.
// Line is in the diff's new-file coordinate space.
type Issue struct {
	File     string   `json:"file"`
	Line     int      `json:"line"`
	Col      int      `json:"col,omitempty"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	Rule     string   `json:"rule,omitempty"`
}

// TestResult is one test outcome reported by a test tool.
type TestResult struct {
	Name           string        `json:"name"`
	File           string        `json:"file,omitempty"`
	Passed         bool          `json:"passed"`
	FailureMessage string        `json:"failure_message,omitempty"`
	Duration       time.Duration `json:"duration,omitempty"`
}

// ToolResults aggregates everything the Tool Runner produced.
// ToolFailures lists tools that could not run (missing binary, timeout);
// a failed tool is recorded, never fatal.
type ToolResults struct {
	LintErrors   []Issue      `json:"lint_errors"`
	TypeErrors   []Issue      `json:"type_errors"`
	Tests        []TestResult `json:"tests"`
	ToolFailures []string     `json:"tool_failures"`
}

// FailedTests returns the subset of test results that did not pass.
func (tr *ToolResults) FailedTests() []TestResult {
	var failed []TestResult
	for _, t := range tr.Tests {
		if !t.Passed {
			failed = append(failed, t)
		}
	}
	return failed
}

// IssueCount returns the total number of lint and type issues.
func (tr *ToolResults) IssueCount() int {
	return len(tr.LintErrors) + len(tr.TypeErrors)
}

// CodePattern is a similar code unit retrieved from the vector index.
// Score is in [0,1]; higher means more similar.
type CodePattern struct {
	FilePath    string  `json:"file_path"`
	Snippet     string  `json:"code_snippet"`
	Score       float64 `json:"similarity_score"`
	Description string  `json:"description"`
}

// BestPractice is a guideline fragment retrieved from indexed docs.
type BestPractice struct {
	Source    string `json:"source"`
	Content   string `json:"content"`
	Relevance string `json:"relevance"`
}

// RelatedFile points at a file connected to the change set.
type RelatedFile struct {
	Path         string `json:"path"`
	Relationship string `json:"relationship"` // imports, used_by, test_file, documentation
	Reason       string `json:"reason"`
}

// RetrievedKnowledge is the Knowledge Retriever's output. An empty (or
// absent) value is a normal degraded state and must never crash a
// downstream stage.
type RetrievedKnowledge struct {
	Patterns      []CodePattern  `json:"similar_patterns"`
	BestPractices []BestPractice `json:"best_practices"`
	RelatedFiles  []RelatedFile  `json:"related_files"`
	ArchPatterns  []string       `json:"architectural_patterns,omitempty"`
}

// IsEmpty reports whether nothing was retrieved.
func (rk *RetrievedKnowledge) IsEmpty() bool {
	if rk == nil {
		return true
	}
	return len(rk.Patterns) == 0 && len(rk.BestPractices) == 0 &&
		len(rk.RelatedFiles) == 0 && len(rk.ArchPatterns) == 0
}

// PRMetadata is the high-level description of the pull request.
type PRMetadata struct {
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	Labels       []string `json:"labels,omitempty"`
	Author       string   `json:"author"`
	BaseBranch   string   `json:"base_branch"`
	TargetBranch string   `json:"target_branch"`
}

// HasLabel reports whether the PR carries the given label.
func (m PRMetadata) HasLabel(label string) bool {
	for _, l := range m.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// CIConfig holds languages detected in the change set and inferred
// commands. Empty fields mean "unknown", never an error.
type CIConfig struct {
	Languages    []string `json:"languages"`
	TestCommand  string   `json:"test_command,omitempty"`
	LintCommand  string   `json:"lint_command,omitempty"`
	BuildCommand string   `json:"build_command,omitempty"`
}

// ReviewComment is one prioritized, file-anchored finding.
// Line 0 means a file-level comment.
type ReviewComment struct {
	File        string   `json:"file"`
	Line        int      `json:"line,omitempty"`
	DiffHunk    string   `json:"diff_hunk,omitempty"`
	Category    Category `json:"-"`
	IssueType   string   `json:"issue_type"`
	Description string   `json:"description"`
	Suggestion  string   `json:"suggestion,omitempty"`
	Confidence  float64  `json:"confidence"`
	AutoFixable bool     `json:"auto_fixable,omitempty"`
}

// Review is the terminal artifact of one pipeline run.
type Review struct {
	MustFix     []ReviewComment `json:"must_fix"`
	ShouldFix   []ReviewComment `json:"should_fix"`
	NiceToHave  []ReviewComment `json:"nice_to_have"`
	Summary     string          `json:"summary"`
	ToolSummary string          `json:"tool_results_summary"`
}

// Add appends a comment to the sequence matching its category.
func (r *Review) Add(c ReviewComment) {
	switch c.Category {
	case MustFix:
		r.MustFix = append(r.MustFix, c)
	case ShouldFix:
		r.ShouldFix = append(r.ShouldFix, c)
	default:
		r.NiceToHave = append(r.NiceToHave, c)
	}
}

// All returns every comment in category order.
func (r *Review) All() []ReviewComment {
	out := make([]ReviewComment, 0, r.Len())
	out = append(out, r.MustFix...)
	out = append(out, r.ShouldFix...)
	out = append(out, r.NiceToHave...)
	return out
}

// Len returns the total number of comments.
func (r *Review) Len() int {
	return len(r.MustFix) + len(r.ShouldFix) + len(r.NiceToHave)
}
