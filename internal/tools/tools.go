// Package tools runs static analysis and test tools against a working
// tree and normalizes their output. A tool that cannot run — missing
// binary, timeout, crash — is recorded in ToolFailures and never fails
// the review.
package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path"
	"sync"
	"time"

	"github.com/sprite-ai/ragrev/internal/model"
)

// Kind classifies where a tool's findings land in ToolResults.
type Kind string

const (
	KindLint  Kind = "lint"
	KindTypes Kind = "types"
	KindTest  Kind = "test"
)

// Definition describes one runnable tool. Parse converts the raw
// process output into normalized findings; a nonzero exit with
// parseable findings is a normal result, not a failure.
type Definition struct {
	Name      string
	Bin       string
	Kind      Kind
	Languages []string
	Args      []string
	Parse     func(stdout, stderr string) ([]model.Issue, []model.TestResult)
}

// Registry is the built-in tool set, keyed by plan tool name.
var Registry = []Definition{
	{Name: "go_vet", Bin: "go", Kind: KindTypes, Languages: []string{"go"},
		Args: []string{"vet", "./..."}, Parse: parseGoVet},
	{Name: "gofmt", Bin: "gofmt", Kind: KindLint, Languages: []string{"go"},
		Args: []string{"-l", "."}, Parse: parseGofmt},
	{Name: "golangci_lint", Bin: "golangci-lint", Kind: KindLint, Languages: []string{"go"},
		Args: []string{"run", "--out-format=line-number", "./..."}, Parse: parseGolangciLint},
	{Name: "go_test", Bin: "go", Kind: KindTest, Languages: []string{"go"},
		Args: []string{"test", "-count=1", "./..."}, Parse: parseGoTest},
	{Name: "ruff", Bin: "ruff", Kind: KindLint, Languages: []string{"python"},
		Args: []string{"check", "--output-format=concise", "."}, Parse: parseRuff},
	{Name: "mypy", Bin: "mypy", Kind: KindTypes, Languages: []string{"python"},
		Args: []string{"--no-error-summary", "."}, Parse: parseMypy},
	{Name: "pytest", Bin: "pytest", Kind: KindTest, Languages: []string{"python"},
		Args: []string{"-q", "--tb=line"}, Parse: parsePytest},
	{Name: "eslint", Bin: "eslint", Kind: KindLint, Languages: []string{"javascript", "typescript", "jsx", "tsx"},
		Args: []string{"--format", "unix", "."}, Parse: parseESLint},
	{Name: "tsc", Bin: "tsc", Kind: KindTypes, Languages: []string{"typescript", "tsx"},
		Args: []string{"--noEmit", "--pretty", "false"}, Parse: parseTsc},
}

// Names returns the registered tool names, in registry order.
func Names() []string {
	out := make([]string, len(Registry))
	for i, d := range Registry {
		out[i] = d.Name
	}
	return out
}

// ForLanguages returns the names of registered tools applicable to any
// of the detected languages, in registry order.
func ForLanguages(langs []string) []string {
	want := make(map[string]bool, len(langs))
	for _, l := range langs {
		want[l] = true
	}

	var out []string
	for _, d := range Registry {
		for _, l := range d.Languages {
			if want[l] {
				out = append(out, d.Name)
				break
			}
		}
	}
	return out
}

// Runner executes planned tools against a directory with a bounded
// worker pool. When Paths is set, tool invocations are scoped to those
// paths instead of the whole tree.
type Runner struct {
	Dir     string
	Timeout time.Duration
	Workers int
	Paths   []string

	// lookPath and run are swappable for tests.
	lookPath func(string) (string, error)
	run      func(ctx context.Context, dir string, bin string, args ...string) (stdout, stderr string, err error)
}

// NewRunner builds a Runner over real process execution.
func NewRunner(dir string, timeout time.Duration, workers int) *Runner {
	return &Runner{
		Dir:      dir,
		Timeout:  timeout,
		Workers:  workers,
		lookPath: exec.LookPath,
		run:      runProcess,
	}
}

type slot struct {
	def     Definition
	issues  []model.Issue
	tests   []model.TestResult
	failure string
}

// Run executes the named tools and aggregates their findings. Results
// are assembled in the order the names were given, so the same plan
// always yields the same ToolResults layout regardless of which tool
// finished first.
func (r *Runner) Run(ctx context.Context, names []string) *model.ToolResults {
	byName := make(map[string]Definition, len(Registry))
	for _, d := range Registry {
		byName[d.Name] = d
	}

	slots := make([]*slot, 0, len(names))
	for _, name := range names {
		def, ok := byName[name]
		if !ok {
			slots = append(slots, &slot{failure: fmt.Sprintf("%s: unknown tool", name), def: Definition{Name: name}})
			continue
		}
		slots = append(slots, &slot{def: def})
	}

	workers := r.Workers
	if workers <= 0 {
		workers = 4
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for _, s := range slots {
		if s.failure != "" {
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(s *slot) {
			defer wg.Done()
			defer func() { <-sem }()
			r.runOne(ctx, s)
		}(s)
	}
	wg.Wait()

	results := &model.ToolResults{}
	for _, s := range slots {
		if s.failure != "" {
			results.ToolFailures = append(results.ToolFailures, s.failure)
			continue
		}
		switch s.def.Kind {
		case KindLint:
			results.LintErrors = append(results.LintErrors, s.issues...)
		case KindTypes:
			results.TypeErrors = append(results.TypeErrors, s.issues...)
		case KindTest:
			results.Tests = append(results.Tests, s.tests...)
		}
	}
	return results
}

func (r *Runner) runOne(ctx context.Context, s *slot) {
	if _, err := r.lookPath(s.def.Bin); err != nil {
		s.failure = fmt.Sprintf("%s: binary %q not found", s.def.Name, s.def.Bin)
		return
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stdout, stderr, err := r.run(ctx, r.Dir, s.def.Bin, r.argsFor(s.def)...)
	if ctx.Err() == context.DeadlineExceeded {
		s.failure = fmt.Sprintf("%s: timed out after %s", s.def.Name, timeout)
		return
	}

	issues, tests := s.def.Parse(stdout, stderr)
	if err != nil && len(issues) == 0 && len(tests) == 0 {
		// Nonzero exit with findings is normal for linters; nonzero
		// exit with nothing parseable is a tool failure.
		s.failure = fmt.Sprintf("%s: %v", s.def.Name, err)
		return
	}
	s.issues = issues
	s.tests = tests
}

// argsFor narrows a tool's invocation to the runner's focus paths. A
// trailing "." or "./..." placeholder is replaced; tools without one
// (pytest, tsc) get the paths appended.
func (r *Runner) argsFor(def Definition) []string {
	if len(r.Paths) == 0 {
		return def.Args
	}
	args := def.Args
	n := len(args)
	switch {
	case n > 0 && args[n-1] == ".":
		return append(append([]string{}, args[:n-1]...), r.Paths...)
	case n > 0 && args[n-1] == "./...":
		return append(append([]string{}, args[:n-1]...), packageDirs(r.Paths)...)
	default:
		return append(append([]string{}, args...), r.Paths...)
	}
}

// packageDirs maps file paths to their ./-prefixed package directories,
// deduplicated in order.
func packageDirs(paths []string) []string {
	seen := make(map[string]bool)
	var dirs []string
	for _, p := range paths {
		d := "./" + path.Dir(p)
		if !seen[d] {
			seen[d] = true
			dirs = append(dirs, d)
		}
	}
	return dirs
}

func runProcess(ctx context.Context, dir, bin string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}
