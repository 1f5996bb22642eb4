package collect

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/sprite-ai/ragrev/internal/diff"
	"github.com/sprite-ai/ragrev/internal/llm"
	"github.com/sprite-ai/ragrev/internal/model"
)

const goDiff = `diff --git a/main.go b/main.go
index abc1234..def5678 100644
--- a/main.go
+++ b/main.go
@@ -1,3 +1,5 @@
 package main

+import "fmt"
+
 func main() {}
diff --git a/util.py b/util.py
new file mode 100644
index 0000000..e69de29
--- /dev/null
+++ b/util.py
@@ -0,0 +1,2 @@
+def util():
+    pass
`

type fakeClient struct {
	response string
	err      error
	calls    int
}

func (f *fakeClient) Complete(ctx context.Context, req llm.Request) (string, error) {
	f.calls++
	return f.response, f.err
}

func TestCollect(t *testing.T) {
	c := &Collector{}
	got, err := c.Collect(context.Background(), Payload{
		Meta: model.PRMetadata{Title: "add util"},
		Diff: goDiff,
	})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	if len(got.Files()) != 2 {
		t.Fatalf("expected 2 files, got %d", len(got.Files()))
	}
	if !got.HasFile("main.go") || got.HasFile("missing.go") {
		t.Error("HasFile wrong")
	}
	if got.Meta.Title != "add util" {
		t.Errorf("metadata lost: %q", got.Meta.Title)
	}

	langs := got.CI.Languages
	if len(langs) != 2 || langs[0] != "go" || langs[1] != "python" {
		t.Errorf("detected languages %v, want [go python]", langs)
	}
}

func TestCollectMalformedDiff(t *testing.T) {
	c := &Collector{}
	_, err := c.Collect(context.Background(), Payload{Diff: "diff --git a/x b/x\n--- a/x\n+++ b/x\n@@ -1,5 +1,5 @@\n x\n"})
	if err == nil {
		t.Fatal("expected error for malformed diff")
	}
	var malformed *diff.MalformedDiffError
	if !errors.As(err, &malformed) {
		t.Errorf("expected MalformedDiffError, got %T", err)
	}
}

func TestInferCIRulesOnly(t *testing.T) {
	cfg := inferCIRules([]string{"go", "python"})
	want := "go test ./... && pytest"
	if cfg.TestCommand != want {
		t.Errorf("TestCommand = %q, want %q", cfg.TestCommand, want)
	}
	if cfg.LintCommand != "golangci-lint run && ruff check ." {
		t.Errorf("LintCommand = %q", cfg.LintCommand)
	}
	if cfg.BuildCommand != "go build ./..." {
		t.Errorf("BuildCommand = %q", cfg.BuildCommand)
	}
}

func TestInferCIModelRefines(t *testing.T) {
	client := &fakeClient{response: `{"test_command":"make test","lint_command":null,"build_command":"make"}`}
	c := &Collector{Client: client}

	cfg := c.inferCI(context.Background(), []string{"go"})
	if cfg.TestCommand != "make test" {
		t.Errorf("TestCommand = %q, want model value", cfg.TestCommand)
	}
	if cfg.LintCommand != "" {
		t.Errorf("null lint command should stay empty, got %q", cfg.LintCommand)
	}
	if len(cfg.Languages) != 1 || cfg.Languages[0] != "go" {
		t.Errorf("Languages = %v", cfg.Languages)
	}
}

func TestInferCIModelFailureFallsBack(t *testing.T) {
	client := &fakeClient{err: fmt.Errorf("model down")}
	c := &Collector{Client: client}

	cfg := c.inferCI(context.Background(), []string{"go"})
	if cfg.TestCommand != "go test ./..." {
		t.Errorf("expected rule fallback, got %q", cfg.TestCommand)
	}
}

func TestDetectLanguagesUnknownExtension(t *testing.T) {
	ds, err := diff.Parse(`diff --git a/data.xyzzy b/data.xyzzy
index abc1234..def5678 100644
--- a/data.xyzzy
+++ b/data.xyzzy
@@ -1,1 +1,1 @@
-old
+new
`)
	if err != nil {
		t.Fatal(err)
	}
	if langs := DetectLanguages(ds); len(langs) != 0 {
		t.Errorf("expected no languages, got %v", langs)
	}
}
