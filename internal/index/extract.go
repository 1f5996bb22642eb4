package index

import (
	"path/filepath"
	"regexp"
	"strings"
)

// Unit kinds stored in the index.
const (
	KindFunction = "function"
	KindClass    = "class"
	KindFile     = "file"
	KindDoc      = "doc"
)

// RawUnit is an extracted, not-yet-embedded code or doc fragment.
type RawUnit struct {
	Kind      string
	Name      string
	StartLine int
	EndLine   int
	Content   string
}

// Definition patterns per language. A match's first submatch is the
// unit name; classGroup marks patterns that introduce a type rather
// than a function.
type defPattern struct {
	re      *regexp.Regexp
	isClass bool
}

var defPatterns = map[string][]defPattern{
	"go": {
		{re: regexp.MustCompile(`^func\s+(\w+)\s*\(`)},
		{re: regexp.MustCompile(`^func\s+\([^)]+\)\s+(\w+)\s*\(`)},
		{re: regexp.MustCompile(`^type\s+(\w+)\s+(?:struct|interface)\b`), isClass: true},
	},
	"python": {
		{re: regexp.MustCompile(`^\s*def\s+(\w+)\s*\(`)},
		{re: regexp.MustCompile(`^\s*class\s+(\w+)\s*[(:]`), isClass: true},
	},
	"javascript": {
		{re: regexp.MustCompile(`^\s*(?:export\s+)?(?:async\s+)?function\s+(\w+)\s*\(`)},
		{re: regexp.MustCompile(`^\s*(?:export\s+)?(?:const|let|var)\s+(\w+)\s*=\s*(?:async\s+)?\(`)},
		{re: regexp.MustCompile(`^\s*(?:export\s+)?class\s+(\w+)\b`), isClass: true},
	},
	"typescript": {
		{re: regexp.MustCompile(`^\s*(?:export\s+)?(?:async\s+)?function\s+(\w+)\s*\(`)},
		{re: regexp.MustCompile(`^\s*(?:export\s+)?(?:const|let|var)\s+(\w+)\s*=\s*(?:async\s+)?\(`)},
		{re: regexp.MustCompile(`^\s*(?:export\s+)?(?:class|interface)\s+(\w+)\b`), isClass: true},
	},
	"ruby": {
		{re: regexp.MustCompile(`^\s*def\s+(\w+)`)},
		{re: regexp.MustCompile(`^\s*class\s+(\w+)\b`), isClass: true},
	},
	"rust": {
		{re: regexp.MustCompile(`^\s*(?:pub\s+)?(?:async\s+)?fn\s+(\w+)\s*[(<]`)},
		{re: regexp.MustCompile(`^\s*(?:pub\s+)?(?:struct|enum|trait)\s+(\w+)\b`), isClass: true},
	},
	"java": {
		{re: regexp.MustCompile(`^\s*(?:public|private|protected|static|final|abstract)\s+.*?(\w+)\s*\(`)},
		{re: regexp.MustCompile(`^\s*(?:public\s+|private\s+)?(?:class|interface)\s+(\w+)\b`), isClass: true},
	},
}

var langByExt = map[string]string{
	".go":   "go",
	".py":   "python",
	".js":   "javascript",
	".jsx":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".rb":   "ruby",
	".rs":   "rust",
	".java": "java",
}

// LanguageFor returns the extraction language for a path, or "".
func LanguageFor(path string) string {
	return langByExt[filepath.Ext(path)]
}

// IsDocFile reports whether the path is indexed as documentation.
func IsDocFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".rst", ".adoc":
		return true
	}
	return false
}

const (
	minUnitBytes = 50
	maxUnitLines = 200
)

// ExtractUnits splits file content into function/class units using the
// definition patterns for its language. Content with no recognizable
// definitions (or an unknown language) falls back to a single
// whole-file unit.
func ExtractUnits(path, content string) []RawUnit {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	if IsDocFile(path) {
		return extractDocUnits(path, content)
	}

	lang := LanguageFor(path)
	patterns := defPatterns[lang]
	lines := strings.Split(content, "\n")

	type defSite struct {
		line    int // 0-based
		name    string
		isClass bool
	}
	var sites []defSite
	for i, line := range lines {
		for _, p := range patterns {
			if m := p.re.FindStringSubmatch(line); len(m) > 1 {
				sites = append(sites, defSite{line: i, name: m[1], isClass: p.isClass})
				break
			}
		}
	}

	if len(sites) == 0 {
		return []RawUnit{fileUnit(path, content, len(lines))}
	}

	var units []RawUnit
	for i, site := range sites {
		end := len(lines)
		if i+1 < len(sites) {
			end = sites[i+1].line
		}
		if end-site.line > maxUnitLines {
			end = site.line + maxUnitLines
		}

		body := strings.Join(lines[site.line:end], "\n")
		if len(strings.TrimSpace(body)) < minUnitBytes {
			continue
		}

		kind := KindFunction
		if site.isClass {
			kind = KindClass
		}
		units = append(units, RawUnit{
			Kind:      kind,
			Name:      site.name,
			StartLine: site.line + 1,
			EndLine:   end,
			Content:   body,
		})
	}

	if len(units) == 0 {
		return []RawUnit{fileUnit(path, content, len(lines))}
	}
	return units
}

func fileUnit(path, content string, lineCount int) RawUnit {
	if len(content) > 8192 {
		content = content[:8192]
	}
	return RawUnit{
		Kind:      KindFile,
		Name:      filepath.Base(path),
		StartLine: 1,
		EndLine:   lineCount,
		Content:   content,
	}
}

// extractDocUnits chunks markdown-ish docs by top-level headings so
// best-practice retrieval can return a focused fragment.
func extractDocUnits(path, content string) []RawUnit {
	lines := strings.Split(content, "\n")

	var units []RawUnit
	start := 0
	name := filepath.Base(path)

	flush := func(end int) {
		body := strings.Join(lines[start:end], "\n")
		if len(strings.TrimSpace(body)) < minUnitBytes {
			return
		}
		units = append(units, RawUnit{
			Kind:      KindDoc,
			Name:      name,
			StartLine: start + 1,
			EndLine:   end,
			Content:   body,
		})
	}

	for i, line := range lines {
		if strings.HasPrefix(line, "#") {
			if i > start {
				flush(i)
			}
			start = i
			name = strings.TrimSpace(strings.TrimLeft(line, "# "))
			if name == "" {
				name = filepath.Base(path)
			}
		}
	}
	flush(len(lines))

	if len(units) == 0 {
		return []RawUnit{fileUnit(path, content, len(lines))}
	}
	return units
}
