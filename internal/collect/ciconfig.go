package collect

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/sprite-ai/ragrev/internal/llm"
	"github.com/sprite-ai/ragrev/internal/model"
)

// Per-language CI command rules. Keys match chroma lexer names
// (lowercased).
var ciRules = map[string][3]string{
	// test, lint, build
	"python":     {"pytest", "ruff check .", ""},
	"typescript": {"npm test", "npm run lint", "tsc --noEmit"},
	"javascript": {"npm test", "npm run lint", ""},
	"java":       {"mvn test", "mvn checkstyle:check", "mvn compile"},
	"go":         {"go test ./...", "golangci-lint run", "go build ./..."},
	"rust":       {"cargo test", "cargo clippy", "cargo build"},
	"ruby":       {"bundle exec rspec", "rubocop", ""},
}

// inferCI builds a CIConfig for the detected languages. When a model is
// available it may refine the rule-based commands; any model failure
// falls back to the rules silently.
func (c *Collector) inferCI(ctx context.Context, langs []string) model.CIConfig {
	cfg := inferCIRules(langs)
	if c.Client == nil || len(langs) == 0 {
		return cfg
	}

	refined, err := c.inferCIModel(ctx, langs)
	if err != nil {
		return cfg
	}
	refined.Languages = langs
	return refined
}

func inferCIRules(langs []string) model.CIConfig {
	var tests, lints, builds []string
	for _, lang := range langs {
		rule, ok := ciRules[lang]
		if !ok {
			continue
		}
		if rule[0] != "" {
			tests = append(tests, rule[0])
		}
		if rule[1] != "" {
			lints = append(lints, rule[1])
		}
		if rule[2] != "" {
			builds = append(builds, rule[2])
		}
	}

	return model.CIConfig{
		Languages:    langs,
		TestCommand:  strings.Join(tests, " && "),
		LintCommand:  strings.Join(lints, " && "),
		BuildCommand: strings.Join(builds, " && "),
	}
}

const ciPrompt = `Given the following programming languages detected in a repository: %s

Suggest appropriate CI commands. Return ONLY valid JSON in this exact format:
{"test_command": "command or null", "lint_command": "command or null", "build_command": "command or null"}

If multiple languages, combine commands with &&. Use null when not applicable.`

func (c *Collector) inferCIModel(ctx context.Context, langs []string) (model.CIConfig, error) {
	out, err := c.Client.Complete(ctx, llm.Request{
		System:      "You suggest CI commands. Always return valid JSON only.",
		User:        strings.Replace(ciPrompt, "%s", strings.Join(langs, ", "), 1),
		Temperature: 0.2,
		MaxTokens:   200,
	})
	if err != nil {
		return model.CIConfig{}, err
	}

	var parsed struct {
		TestCommand  *string `json:"test_command"`
		LintCommand  *string `json:"lint_command"`
		BuildCommand *string `json:"build_command"`
	}
	if err := json.Unmarshal([]byte(llm.ExtractJSON(out)), &parsed); err != nil {
		return model.CIConfig{}, err
	}

	cfg := model.CIConfig{}
	if parsed.TestCommand != nil {
		cfg.TestCommand = *parsed.TestCommand
	}
	if parsed.LintCommand != nil {
		cfg.LintCommand = *parsed.LintCommand
	}
	if parsed.BuildCommand != nil {
		cfg.BuildCommand = *parsed.BuildCommand
	}
	return cfg, nil
}
