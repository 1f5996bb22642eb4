package index

import (
	"strings"
	"testing"
)

const goSource = `package demo

import "fmt"

func Greet(name string) string {
	return fmt.Sprintf("hello %s", name)
}

type Greeter struct {
	prefix string
	suffix string
}

func (g Greeter) Say(name string) string {
	return g.prefix + name + g.suffix
}
`

func TestExtractUnitsGo(t *testing.T) {
	units := ExtractUnits("demo/greet.go", goSource)
	if len(units) != 3 {
		t.Fatalf("expected 3 units, got %d: %+v", len(units), units)
	}

	if units[0].Kind != KindFunction || units[0].Name != "Greet" {
		t.Errorf("unit 0 = %s %q", units[0].Kind, units[0].Name)
	}
	if units[0].StartLine != 5 {
		t.Errorf("Greet starts at line %d, want 5", units[0].StartLine)
	}
	if units[1].Kind != KindClass || units[1].Name != "Greeter" {
		t.Errorf("unit 1 = %s %q", units[1].Kind, units[1].Name)
	}
	if units[2].Name != "Say" {
		t.Errorf("unit 2 = %q", units[2].Name)
	}
}

func TestExtractUnitsPython(t *testing.T) {
	src := `class Parser:
    def __init__(self, path):
        self.path = path
        self.entries = []

    def parse(self):
        with open(self.path) as f:
            return f.read().splitlines()
`
	units := ExtractUnits("parser.py", src)
	// The bare "class Parser:" header is below the minimum unit size;
	// the methods carry the content.
	if len(units) != 2 {
		t.Fatalf("expected 2 units, got %d: %+v", len(units), units)
	}
	if units[0].Name != "__init__" || units[1].Name != "parse" {
		t.Errorf("unit names = %q, %q", units[0].Name, units[1].Name)
	}
	if units[0].Kind != KindFunction {
		t.Errorf("kind = %s", units[0].Kind)
	}
}

func TestExtractUnitsFallbackWholeFile(t *testing.T) {
	content := "SELECT id, name FROM users WHERE created_at > now() - interval '7 days';\n"
	units := ExtractUnits("query.sql", content)
	if len(units) != 1 {
		t.Fatalf("expected 1 whole-file unit, got %d", len(units))
	}
	if units[0].Kind != KindFile || units[0].Name != "query.sql" {
		t.Errorf("got %s %q", units[0].Kind, units[0].Name)
	}
}

func TestExtractUnitsEmpty(t *testing.T) {
	if units := ExtractUnits("empty.go", "   \n\n"); units != nil {
		t.Errorf("expected nil for blank content, got %v", units)
	}
}

func TestExtractDocUnits(t *testing.T) {
	doc := `# Style Guide

Always wrap errors with context using fmt.Errorf and %w.

# Testing

Every package gets table-driven tests where the cases are data, not code.
`
	units := ExtractUnits("docs/guide.md", doc)
	if len(units) != 2 {
		t.Fatalf("expected 2 doc units, got %d", len(units))
	}
	for _, u := range units {
		if u.Kind != KindDoc {
			t.Errorf("kind = %s, want doc", u.Kind)
		}
	}
	if units[0].Name != "Style Guide" || units[1].Name != "Testing" {
		t.Errorf("unit names = %q, %q", units[0].Name, units[1].Name)
	}
	if !strings.Contains(units[1].Content, "table-driven") {
		t.Errorf("unit content wrong: %q", units[1].Content)
	}
}

func TestLanguageFor(t *testing.T) {
	if LanguageFor("a/b/c.go") != "go" {
		t.Error("go not detected")
	}
	if LanguageFor("script.xyz") != "" {
		t.Error("unknown extension should be empty")
	}
	if !IsDocFile("README.md") || IsDocFile("main.go") {
		t.Error("IsDocFile wrong")
	}
}
