// Package pipeline orchestrates one review run: collect, gate,
// retrieve, plan, run tools, synthesize. Stage boundaries are the only
// places state crosses between agents, and each stage's failure policy
// is explicit: malformed input and synthesis dead-ends abort, retrieval
// and planning degrade.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/sprite-ai/ragrev/internal/collect"
	"github.com/sprite-ai/ragrev/internal/config"
	"github.com/sprite-ai/ragrev/internal/index"
	"github.com/sprite-ai/ragrev/internal/llm"
	"github.com/sprite-ai/ragrev/internal/model"
	"github.com/sprite-ai/ragrev/internal/plan"
	"github.com/sprite-ai/ragrev/internal/retrieve"
	"github.com/sprite-ai/ragrev/internal/review"
	"github.com/sprite-ai/ragrev/internal/safety"
	"github.com/sprite-ai/ragrev/internal/tools"
)

// StageError wraps a failure with the stage it occurred in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s stage: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

// VetoError means the safety gate declined the run. It is a normal
// outcome, not a pipeline failure.
type VetoError struct {
	Reason string
}

func (e *VetoError) Error() string { return "review vetoed: " + e.Reason }

// Event is one progress notification emitted at stage boundaries.
type Event struct {
	RunID   string        `json:"run_id"`
	Stage   string        `json:"stage"`
	Detail  string        `json:"detail,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
}

// Result is the outcome of a completed run.
type Result struct {
	RunID      string                    `json:"run_id"`
	Review     *model.Review             `json:"review"`
	Plan       model.ReviewPlan          `json:"plan"`
	Tools      *model.ToolResults        `json:"tool_results"`
	Knowledge  *model.RetrievedKnowledge `json:"retrieved_knowledge"`
	GateReason string                    `json:"gate_reason,omitempty"`
}

// Pipeline wires the agents together. Store, client, and embedder may
// all be nil; every stage has a degraded path.
type Pipeline struct {
	cfg       *config.Config
	collector *collect.Collector
	checker   *safety.Checker
	retriever *retrieve.Retriever
	planner   *plan.Planner
	agent     *review.Agent
	store     *index.Store
}

// New builds a Pipeline from config and optional backends.
func New(cfg *config.Config, client llm.Client, embedder llm.Embedder, store *index.Store, repo string) *Pipeline {
	var vs retrieve.VectorStore
	if store != nil {
		vs = store
	}
	return &Pipeline{
		cfg:       cfg,
		collector: &collect.Collector{Client: client},
		checker:   safety.New(cfg),
		retriever: &retrieve.Retriever{
			Store:     vs,
			Embedder:  embedder,
			Repo:      repo,
			TopK:      cfg.TopK,
			Threshold: cfg.SimilarityThreshold,
			Workers:   cfg.Workers,
			Enabled:   cfg.RAGEnabled,
		},
		planner: &plan.Planner{Client: client, Timeout: cfg.LLMTimeout()},
		agent:   review.New(client, cfg.LowPriorityRules),
		store:   store,
	}
}

// Run executes one review. prKey identifies the PR for rate limiting.
func (p *Pipeline) Run(ctx context.Context, payload collect.Payload, prKey string) (*Result, error) {
	return p.RunWithProgress(ctx, payload, prKey, nil)
}

// RunWithProgress executes one review, emitting an Event after each
// stage. progress may be nil.
func (p *Pipeline) RunWithProgress(ctx context.Context, payload collect.Payload, prKey string, progress func(Event)) (*Result, error) {
	runID := uuid.NewString()
	start := time.Now()
	emit := func(stage, detail string) {
		log.Printf("run %s: %s %s (%s)", runID, stage, detail, time.Since(start).Round(time.Millisecond))
		if progress != nil {
			progress(Event{RunID: runID, Stage: stage, Detail: detail, Elapsed: time.Since(start)})
		}
	}

	c, err := p.collector.Collect(ctx, payload)
	if err != nil {
		return nil, &StageError{Stage: "collect", Err: err}
	}
	emit("collect", fmt.Sprintf("%d files, languages %v", len(c.Files()), c.CI.Languages))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	decision := p.checker.Gate(c, prKey)
	if !decision.Proceed {
		emit("gate", decision.Reason)
		return nil, &VetoError{Reason: decision.Reason}
	}
	emit("gate", "proceed")

	knowledge := p.retriever.Retrieve(ctx, c)
	c.Knowledge = knowledge
	emit("retrieve", fmt.Sprintf("%d patterns, %d practices, %d related files",
		len(knowledge.Patterns), len(knowledge.BestPractices), len(knowledge.RelatedFiles)))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	available := tools.ForLanguages(c.CI.Languages)
	reviewPlan := p.planner.Plan(ctx, c, available, decision.FocusFiles)
	emit("plan", fmt.Sprintf("%d tasks, tools %v", len(reviewPlan.Tasks), reviewPlan.Tools))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := p.runTools(ctx, c, reviewPlan)
	emit("tools", fmt.Sprintf("%d issues, %d failing tests, %d tool failures",
		results.IssueCount(), len(results.FailedTests()), len(results.ToolFailures)))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rev, err := p.agent.Review(ctx, c, reviewPlan, results)
	if err != nil {
		return nil, &StageError{Stage: "review", Err: err}
	}
	p.applyWriteGate(rev)
	emit("review", fmt.Sprintf("%d comments", rev.Len()))

	return &Result{
		RunID:      runID,
		Review:     rev,
		Plan:       reviewPlan,
		Tools:      results,
		Knowledge:  knowledge,
		GateReason: decision.Reason,
	}, nil
}

// runTools executes the planned tools when a working tree is available.
// Without one, every planned tool is recorded as unable to run.
func (p *Pipeline) runTools(ctx context.Context, c *collect.Context, reviewPlan model.ReviewPlan) *model.ToolResults {
	if len(reviewPlan.Tools) == 0 {
		return &model.ToolResults{}
	}
	if c.RepoDir == "" {
		results := &model.ToolResults{}
		for _, name := range reviewPlan.Tools {
			results.ToolFailures = append(results.ToolFailures, name+": no working tree available")
		}
		return results
	}
	runner := tools.NewRunner(c.RepoDir, p.cfg.ToolTimeout(), p.cfg.Workers)
	runner.Paths = reviewPlan.FocusFiles
	return runner.Run(ctx, reviewPlan.Tools)
}

// applyWriteGate marks suggestions auto-fixable only above the
// configured confidence floor.
func (p *Pipeline) applyWriteGate(rev *model.Review) {
	gate := func(cs []model.ReviewComment) {
		for i := range cs {
			cs[i].AutoFixable = cs[i].Suggestion != "" && p.checker.AllowSuggestion(cs[i].Confidence)
		}
	}
	gate(rev.MustFix)
	gate(rev.ShouldFix)
	gate(rev.NiceToHave)
}
