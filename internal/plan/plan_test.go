package plan

import (
	"context"
	"fmt"
	"testing"

	"github.com/sprite-ai/ragrev/internal/collect"
	"github.com/sprite-ai/ragrev/internal/diff"
	"github.com/sprite-ai/ragrev/internal/llm"
	"github.com/sprite-ai/ragrev/internal/model"
)

type scriptedClient struct {
	responses []string
	err       error
	calls     int
}

func (s *scriptedClient) Complete(ctx context.Context, req llm.Request) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	i := s.calls
	s.calls++
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	return s.responses[i], nil
}

const planDiff = `diff --git a/svc/handler.go b/svc/handler.go
index abc1234..def5678 100644
--- a/svc/handler.go
+++ b/svc/handler.go
@@ -1,2 +1,4 @@
 package svc
+
+func Handle() {}
 
`

func planContext(t *testing.T) *collect.Context {
	t.Helper()
	ds, err := diff.Parse(planDiff)
	if err != nil {
		t.Fatal(err)
	}
	return &collect.Context{
		Meta: model.PRMetadata{Title: "add handler"},
		Diff: ds,
		CI:   model.CIConfig{Languages: []string{"go"}},
	}
}

const validPlanJSON = `{
  "tasks": [
    {"type": "correctness", "scope": "changed_functions", "priority": "must"},
    {"type": "security", "scope": "high_risk_only", "priority": "should"}
  ],
  "tools": ["go_vet", "not_registered"],
  "rationale": "handler change"
}`

func TestPlanFromModel(t *testing.T) {
	p := &Planner{Client: &scriptedClient{responses: []string{validPlanJSON}}}

	got := p.Plan(context.Background(), planContext(t), []string{"go_vet", "gofmt"}, nil)
	if len(got.Tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(got.Tasks))
	}
	if got.Tasks[0].Type != model.TaskCorrectness {
		t.Errorf("task 0 type %q", got.Tasks[0].Type)
	}
	// Unregistered tools are filtered.
	if len(got.Tools) != 1 || got.Tools[0] != "go_vet" {
		t.Errorf("tools = %v, want [go_vet]", got.Tools)
	}
}

func TestPlanRetriesOnceThenDefaults(t *testing.T) {
	client := &scriptedClient{responses: []string{"not json at all", "{ still broken"}}
	p := &Planner{Client: client}

	got := p.Plan(context.Background(), planContext(t), []string{"go_vet"}, nil)
	if client.calls != 2 {
		t.Errorf("expected exactly 2 attempts, got %d", client.calls)
	}
	if len(got.Tasks) != 1 || got.Tasks[0].Type != model.TaskCorrectness {
		t.Errorf("expected default plan, got %+v", got)
	}
}

func TestPlanRecoversOnSecondAttempt(t *testing.T) {
	client := &scriptedClient{responses: []string{"garbage", "```json\n" + validPlanJSON + "\n```"}}
	p := &Planner{Client: client}

	got := p.Plan(context.Background(), planContext(t), []string{"go_vet"}, nil)
	if client.calls != 2 {
		t.Errorf("expected 2 attempts, got %d", client.calls)
	}
	if len(got.Tasks) != 2 {
		t.Errorf("expected model plan on retry, got %+v", got)
	}
}

func TestPlanNilClientUsesDefault(t *testing.T) {
	p := &Planner{}
	got := p.Plan(context.Background(), planContext(t), []string{"go_vet", "go_test"}, nil)

	if len(got.Tasks) != 1 {
		t.Fatalf("default plan should have 1 task, got %d", len(got.Tasks))
	}
	task := got.Tasks[0]
	if task.Type != model.TaskCorrectness || task.Scope != model.ScopeChangedFunctions || task.Priority != model.PriorityMust {
		t.Errorf("default task = %+v", task)
	}
	if len(got.Tools) != 2 {
		t.Errorf("default plan should run all applicable tools, got %v", got.Tools)
	}
}

func TestPlanModelErrorUsesDefault(t *testing.T) {
	p := &Planner{Client: &scriptedClient{err: fmt.Errorf("timeout")}}
	got := p.Plan(context.Background(), planContext(t), []string{"go_vet"}, nil)
	if len(got.Tasks) != 1 || got.Tasks[0].Priority != model.PriorityMust {
		t.Errorf("expected default plan on model error, got %+v", got)
	}
}

func TestPlanForcesFocusFiles(t *testing.T) {
	p := &Planner{Client: &scriptedClient{responses: []string{validPlanJSON}}}
	focus := []string{"internal/auth/token.go"}

	got := p.Plan(context.Background(), planContext(t), []string{"go_vet"}, focus)
	if len(got.FocusFiles) != 1 || got.FocusFiles[0] != focus[0] {
		t.Errorf("gate focus files not forced onto plan: %v", got.FocusFiles)
	}
}

func TestParsePlanRejectsUnknownFields(t *testing.T) {
	for _, raw := range []string{
		`{"tasks":[{"type":"vibes","scope":"all","priority":"must"}]}`,
		`{"tasks":[{"type":"style","scope":"everywhere","priority":"must"}]}`,
		`{"tasks":[{"type":"style","scope":"all","priority":"urgent"}]}`,
		`{"tasks":[]}`,
	} {
		if _, err := parsePlan(raw, nil); err == nil {
			t.Errorf("parsePlan(%s) should fail", raw)
		}
	}
}
