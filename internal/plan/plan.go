// Package plan produces the review plan: which checks to run, which
// tools to invoke, and where to focus. Planning never fails a run — a
// model that is unavailable or keeps returning garbage yields the
// default plan.
package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/sprite-ai/ragrev/internal/collect"
	"github.com/sprite-ai/ragrev/internal/llm"
	"github.com/sprite-ai/ragrev/internal/model"
)

// Planner asks the model for a plan and validates the result.
type Planner struct {
	Client  llm.Client
	Timeout time.Duration
}

const planSystem = `You are a code review planner. Given pull request metadata,
a list of changed files, and detected languages, decide what the review should
check and which tools should run. Respond with JSON only, in this shape:
{"tasks":[{"type":"correctness|security|performance|style|consistency",
"scope":"changed_functions|all|high_risk_only","priority":"must|should|nice"}],
"tools":["tool names"],"focus_files":["paths"],"rationale":"one sentence"}`

// Plan builds the review plan for a context. availableTools are the
// registered tool names applicable to the detected languages;
// focusFiles, when non-empty, was decided by the size gate and is
// forced onto the returned plan.
func (p *Planner) Plan(ctx context.Context, c *collect.Context, availableTools, focusFiles []string) model.ReviewPlan {
	plan, ok := p.modelPlan(ctx, c, availableTools)
	if !ok {
		plan = DefaultPlan(c, availableTools)
	}
	if len(focusFiles) > 0 {
		plan.FocusFiles = focusFiles
	}
	return plan
}

// modelPlan asks the model, retrying once with a stricter instruction
// when the first response does not parse or validate.
func (p *Planner) modelPlan(ctx context.Context, c *collect.Context, availableTools []string) (model.ReviewPlan, bool) {
	if p.Client == nil {
		return model.ReviewPlan{}, false
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	user := planPrompt(c, availableTools)
	for attempt := 0; attempt < 2; attempt++ {
		system := planSystem
		if attempt > 0 {
			system += "\nYour previous response was not valid JSON of the required shape. Respond with ONLY the JSON object, no prose, no code fences."
		}

		raw, err := p.Client.Complete(ctx, llm.Request{
			System:      system,
			User:        user,
			MaxTokens:   800,
			Temperature: 0.2,
		})
		if err != nil {
			log.Printf("plan: model request: %v", err)
			return model.ReviewPlan{}, false
		}

		plan, err := parsePlan(raw, availableTools)
		if err != nil {
			log.Printf("plan: attempt %d: %v", attempt+1, err)
			continue
		}
		return plan, true
	}
	return model.ReviewPlan{}, false
}

func planPrompt(c *collect.Context, availableTools []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", c.Meta.Title)
	if c.Meta.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", c.Meta.Description)
	}
	fmt.Fprintf(&b, "Languages: %s\n", strings.Join(c.CI.Languages, ", "))
	fmt.Fprintf(&b, "Available tools: %s\n", strings.Join(availableTools, ", "))
	b.WriteString("Changed files:\n")
	for _, f := range c.Files() {
		fmt.Fprintf(&b, "  %s (+%d/-%d)\n", f.Path, f.Additions, f.Deletions)
	}
	return b.String()
}

// parsePlan decodes and validates a model response. Unknown task
// fields and unregistered tools are rejected rather than silently
// passed through to the runner.
func parsePlan(raw string, availableTools []string) (model.ReviewPlan, error) {
	var plan model.ReviewPlan
	if err := json.Unmarshal([]byte(llm.ExtractJSON(raw)), &plan); err != nil {
		return plan, fmt.Errorf("decoding plan: %w", err)
	}
	if len(plan.Tasks) == 0 {
		return plan, fmt.Errorf("plan has no tasks")
	}
	for _, t := range plan.Tasks {
		if !model.ValidTaskType(t.Type) {
			return plan, fmt.Errorf("unknown task type %q", t.Type)
		}
		if !model.ValidTaskScope(t.Scope) {
			return plan, fmt.Errorf("unknown task scope %q", t.Scope)
		}
		if !model.ValidTaskPriority(t.Priority) {
			return plan, fmt.Errorf("unknown task priority %q", t.Priority)
		}
	}

	known := make(map[string]bool, len(availableTools))
	for _, name := range availableTools {
		known[name] = true
	}
	kept := plan.Tools[:0]
	for _, name := range plan.Tools {
		if known[name] {
			kept = append(kept, name)
		}
	}
	plan.Tools = kept
	return plan, nil
}

// DefaultPlan is the degraded plan used when no model is available or
// planning failed twice: one must-priority correctness pass over
// changed functions, running every applicable tool.
func DefaultPlan(c *collect.Context, availableTools []string) model.ReviewPlan {
	return model.ReviewPlan{
		Tasks: []model.ReviewTask{{
			Type:     model.TaskCorrectness,
			Scope:    model.ScopeChangedFunctions,
			Priority: model.PriorityMust,
		}},
		Tools:     availableTools,
		Rationale: "default plan: correctness check over changed functions with all applicable tools",
	}
}
