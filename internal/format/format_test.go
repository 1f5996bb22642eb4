package format

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sprite-ai/ragrev/internal/model"
)

func sampleReview() *model.Review {
	r := &model.Review{
		Summary:     "One real problem, one nit.",
		ToolSummary: "Tools reported 1 type error(s).",
	}
	r.Add(model.ReviewComment{
		File: "billing/charge.go", Line: 11, Category: model.MustFix,
		IssueType: "type_error", Description: "undefined: errNegative",
		Suggestion: "return ErrNegativeAmount", Confidence: 0.9, AutoFixable: true,
	})
	r.Add(model.ReviewComment{
		File: "billing/charge.go", Category: model.NiceToHave,
		IssueType: "lint", Description: "file is not gofmt-formatted", Confidence: 0.8,
	})
	return r
}

func TestMarkdown(t *testing.T) {
	var buf bytes.Buffer
	if err := Markdown(&buf, sampleReview()); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	for _, want := range []string{
		"## Review",
		"### Must fix",
		"### Nice to have",
		"billing/charge.go**:11",
		"undefined: errNegative",
		"```suggestion",
		"(auto-fixable)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("markdown missing %q:\n%s", want, out)
		}
	}
	// Empty categories are omitted.
	if strings.Contains(out, "### Should fix") {
		t.Error("empty category rendered")
	}
	// Must fix renders before nice to have.
	if strings.Index(out, "### Must fix") > strings.Index(out, "### Nice to have") {
		t.Error("category order wrong")
	}
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := JSON(&buf, sampleReview()); err != nil {
		t.Fatal(err)
	}

	var decoded model.Review
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if len(decoded.MustFix) != 1 || decoded.MustFix[0].File != "billing/charge.go" {
		t.Errorf("round trip lost data: %+v", decoded)
	}
}

func TestTerminal(t *testing.T) {
	var buf bytes.Buffer
	if err := Terminal(&buf, sampleReview()); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	for _, want := range []string{
		"Review",
		"Must fix",
		"billing/charge.go:11",
		"confidence 0.90",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("terminal output missing %q:\n%s", want, out)
		}
	}
}

func TestHighlightLinesPlainFallback(t *testing.T) {
	lines := []string{"no lexer for this", "second line"}
	hls := HighlightLines("data.unknownext", lines)
	if len(hls) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(hls))
	}
	for i, hl := range hls {
		if hl.Plain() != lines[i] {
			t.Errorf("line %d plain = %q", i, hl.Plain())
		}
	}
}

func TestHighlightLinesGo(t *testing.T) {
	lines := []string{"func main() {", "\treturn", "}"}
	hls := HighlightLines("main.go", lines)
	if len(hls) != len(lines) {
		t.Fatalf("expected %d lines, got %d", len(lines), len(hls))
	}
	for i, hl := range hls {
		if hl.Plain() != lines[i] {
			t.Errorf("line %d: plain text altered: %q != %q", i, hl.Plain(), lines[i])
		}
	}
}
