package retrieve

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/sprite-ai/ragrev/internal/diff"
	"github.com/sprite-ai/ragrev/internal/index"
	"github.com/sprite-ai/ragrev/internal/model"
)

const maxRelatedFiles = 10

// Import statement shapes across the languages we index.
var importPatterns = []*regexp.Regexp{
	// Go: single import and import block entries.
	regexp.MustCompile(`^\s*import\s+"([^"]+)"`),
	regexp.MustCompile(`^\s*"([^"]+)"\s*$`),
	// Python; the plain form also covers Java.
	regexp.MustCompile(`^\s*from\s+([\w./]+)\s+import\b`),
	regexp.MustCompile(`^\s*import\s+([\w./]+)\s*$`),
	// JS/TS: ES module and CommonJS forms.
	regexp.MustCompile(`from\s+['"]([^'"]+)['"]`),
	regexp.MustCompile(`require\(\s*['"]([^'"]+)['"]\s*\)`),
}

// Function definitions in added lines, for used_by lookups.
var addedDefPattern = regexp.MustCompile(`^\s*(?:func|def|fn)\s+(\w+)`)

// relatedFiles is the static pass: test-file conventions, import
// references, used-by lookups, and doc mentions. No similarity queries
// here — this is deliberately cheap.
func (r *Retriever) relatedFiles(files []*diff.FileChange) []model.RelatedFile {
	indexed, err := r.Store.Paths(r.Repo)
	if err != nil {
		return nil
	}
	indexedSet := make(map[string]bool, len(indexed))
	for _, p := range indexed {
		indexedSet[p] = true
	}

	changed := make(map[string]bool, len(files))
	for _, f := range files {
		changed[f.Path] = true
	}

	var out []model.RelatedFile
	seen := make(map[string]bool)
	add := func(rf model.RelatedFile) {
		if len(out) >= maxRelatedFiles || seen[rf.Path] || changed[rf.Path] {
			return
		}
		seen[rf.Path] = true
		out = append(out, rf)
	}

	for _, f := range files {
		for _, candidate := range testVariants(f.Path) {
			if indexedSet[candidate] {
				add(model.RelatedFile{
					Path:         candidate,
					Relationship: "test_file",
					Reason:       fmt.Sprintf("Tests for %s", f.Path),
				})
			}
		}

		for _, imp := range importedPaths(f) {
			for _, p := range indexed {
				if importMatches(imp, p) {
					add(model.RelatedFile{
						Path:         p,
						Relationship: "imports",
						Reason:       fmt.Sprintf("%s imports %s", f.Path, imp),
					})
				}
			}
		}

		for _, fn := range addedFunctionNames(f) {
			units, err := r.Store.SearchContent(r.Repo, fn+"(", 5)
			if err != nil {
				continue
			}
			for _, u := range units {
				if u.Kind == index.KindDoc {
					continue
				}
				add(model.RelatedFile{
					Path:         u.Path,
					Relationship: "used_by",
					Reason:       fmt.Sprintf("References %s", fn),
				})
			}
		}

		base := strings.TrimSuffix(path.Base(f.Path), path.Ext(f.Path))
		if len(base) >= 3 {
			units, err := r.Store.SearchContent(r.Repo, base, 5)
			if err == nil {
				for _, u := range units {
					if u.Kind != index.KindDoc {
						continue
					}
					add(model.RelatedFile{
						Path:         u.Path,
						Relationship: "documentation",
						Reason:       fmt.Sprintf("Documentation mentions %s", base),
					})
				}
			}
		}
	}

	return out
}

// testVariants returns the conventional test-file names for a source
// path (and the reverse, for a changed test file).
func testVariants(p string) []string {
	dir := path.Dir(p)
	base := path.Base(p)
	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	join := func(name string) string {
		if dir == "." {
			return name
		}
		return dir + "/" + name
	}

	var out []string
	switch ext {
	case ".go":
		if strings.HasSuffix(stem, "_test") {
			out = append(out, join(strings.TrimSuffix(stem, "_test")+".go"))
		} else {
			out = append(out, join(stem+"_test.go"))
		}
	case ".py":
		if strings.HasPrefix(stem, "test_") {
			out = append(out, join(strings.TrimPrefix(stem, "test_")+".py"))
		} else {
			out = append(out, join("test_"+stem+".py"), join(stem+"_test.py"))
		}
	case ".js", ".jsx", ".ts", ".tsx":
		out = append(out, join(stem+".test"+ext), join(stem+".spec"+ext))
	}
	return out
}

func importedPaths(f *diff.FileChange) []string {
	var out []string
	seen := make(map[string]bool)
	for _, h := range f.Hunks {
		for _, line := range h.AddedLines() {
			for _, pat := range importPatterns {
				if m := pat.FindStringSubmatch(line); len(m) > 1 {
					imp := m[1]
					if !seen[imp] {
						seen[imp] = true
						out = append(out, imp)
					}
					break
				}
			}
		}
	}
	return out
}

// importMatches reports whether an import specifier plausibly resolves
// to an indexed path: the specifier's last segment matches the file's
// stem.
func importMatches(imp, indexedPath string) bool {
	segs := strings.FieldsFunc(imp, func(r rune) bool { return r == '/' || r == '.' })
	if len(segs) == 0 {
		return false
	}
	last := segs[len(segs)-1]
	if len(last) < 3 {
		return false
	}
	base := path.Base(indexedPath)
	stem := strings.TrimSuffix(base, path.Ext(base))
	return stem == last
}

func addedFunctionNames(f *diff.FileChange) []string {
	var out []string
	seen := make(map[string]bool)
	for _, h := range f.Hunks {
		for _, line := range h.AddedLines() {
			if m := addedDefPattern.FindStringSubmatch(line); len(m) > 1 {
				name := m[1]
				if len(name) > 2 && !seen[name] {
					seen[name] = true
					out = append(out, name)
				}
			}
		}
	}
	return out
}
