// Package diff parses unified diffs into the file/hunk structures the
// rest of the pipeline anchors findings to.
package diff

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"
)

// MalformedDiffError means the diff cannot be mapped back to file/line
// locations. It is the one fatal parse condition: hunks are never
// silently dropped.
type MalformedDiffError struct {
	Reason string
}

func (e *MalformedDiffError) Error() string {
	return "malformed diff: " + e.Reason
}

// Hunk is a contiguous block of changes within a file. Content holds the
// op-prefixed lines (+, -, space) without the @@ header.
type Hunk struct {
	OldStart int
	OldLines int
	NewStart int
	NewLines int
	Content  string
}

// Header renders the unified-diff hunk header for this hunk.
func (h Hunk) Header() string {
	return fmt.Sprintf("@@ -%d,%d +%d,%d @@", h.OldStart, h.OldLines, h.NewStart, h.NewLines)
}

// Contains reports whether the given new-file line number falls inside
// this hunk's new range.
func (h Hunk) Contains(line int) bool {
	return line >= h.NewStart && line <= h.NewStart+h.NewLines-1
}

// AddedLines returns the text of added lines, without the + prefix.
func (h Hunk) AddedLines() []string {
	var out []string
	for _, l := range strings.Split(h.Content, "\n") {
		if strings.HasPrefix(l, "+") {
			out = append(out, l[1:])
		}
	}
	return out
}

// FileChange is the full set of changes to a single file, hunks ordered
// by NewStart.
type FileChange struct {
	Path      string
	OldPath   string
	IsNew     bool
	IsDeleted bool
	IsRenamed bool
	IsBinary  bool
	Additions int
	Deletions int
	Hunks     []Hunk
}

// HunkFor returns the hunk containing the given line, or nil.
func (f *FileChange) HunkFor(line int) *Hunk {
	for i := range f.Hunks {
		if f.Hunks[i].Contains(line) {
			return &f.Hunks[i]
		}
	}
	return nil
}

// AddedCode returns all added lines across hunks joined by newlines.
// Used as the similarity-query text for this file.
func (f *FileChange) AddedCode() string {
	var parts []string
	for _, h := range f.Hunks {
		parts = append(parts, h.AddedLines()...)
	}
	return strings.Join(parts, "\n")
}

// DiffSet holds the parsed diff for all files plus the raw text.
type DiffSet struct {
	Files []*FileChange
	Raw   string
}

// Stats returns aggregate statistics.
func (ds *DiffSet) Stats() (files, added, deleted int) {
	files = len(ds.Files)
	for _, f := range ds.Files {
		added += f.Additions
		deleted += f.Deletions
	}
	return
}

// TotalChanged returns added+deleted lines across all files.
func (ds *DiffSet) TotalChanged() int {
	_, a, d := ds.Stats()
	return a + d
}

// File returns the change for the given path, or nil.
func (ds *DiffSet) File(path string) *FileChange {
	for _, f := range ds.Files {
		if f.Path == path {
			return f
		}
	}
	return nil
}

// Paths returns the changed file paths in diff order.
func (ds *DiffSet) Paths() []string {
	out := make([]string, 0, len(ds.Files))
	for _, f := range ds.Files {
		out = append(out, f.Path)
	}
	return out
}

// Parse reads a unified diff string and returns a DiffSet. Hunks within
// a file must be ordered by NewStart and non-overlapping; anything else
// is a MalformedDiffError.
func Parse(raw string) (*DiffSet, error) {
	parsed, _, err := gitdiff.Parse(strings.NewReader(raw))
	if err != nil {
		return nil, &MalformedDiffError{Reason: err.Error()}
	}

	ds := &DiffSet{Raw: raw}
	for _, f := range parsed {
		fc := &FileChange{
			IsNew:     f.IsNew,
			IsDeleted: f.IsDelete,
			IsRenamed: f.IsRename,
			IsBinary:  f.IsBinary,
			OldPath:   f.OldName,
		}

		fc.Path = f.NewName
		if fc.Path == "" {
			fc.Path = f.OldName
		}

		for _, frag := range f.TextFragments {
			h := Hunk{
				OldStart: int(frag.OldPosition),
				OldLines: int(frag.OldLines),
				NewStart: int(frag.NewPosition),
				NewLines: int(frag.NewLines),
				Content:  fragmentContent(frag),
			}

			if n := len(fc.Hunks); n > 0 {
				prev := fc.Hunks[n-1]
				if h.NewStart < prev.NewStart {
					return nil, &MalformedDiffError{
						Reason: fmt.Sprintf("%s: hunk at +%d out of order", fc.Path, h.NewStart),
					}
				}
				if prev.NewStart+prev.NewLines > h.NewStart {
					return nil, &MalformedDiffError{
						Reason: fmt.Sprintf("%s: hunks +%d,%d and +%d,%d overlap",
							fc.Path, prev.NewStart, prev.NewLines, h.NewStart, h.NewLines),
					}
				}
			}

			fc.Hunks = append(fc.Hunks, h)
			fc.Additions += int(frag.LinesAdded)
			fc.Deletions += int(frag.LinesDeleted)
		}

		ds.Files = append(ds.Files, fc)
	}

	return ds, nil
}

func fragmentContent(frag *gitdiff.TextFragment) string {
	var b strings.Builder
	for _, line := range frag.Lines {
		switch line.Op {
		case gitdiff.OpAdd:
			b.WriteByte('+')
		case gitdiff.OpDelete:
			b.WriteByte('-')
		default:
			b.WriteByte(' ')
		}
		b.WriteString(strings.TrimSuffix(line.Line, "\n"))
		b.WriteByte('\n')
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// GitDiff runs `git diff` with the given arguments and returns the raw output.
func GitDiff(repoDir string, args ...string) (string, error) {
	cmdArgs := append([]string{"diff"}, args...)
	cmd := exec.Command("git", cmdArgs...)
	cmd.Dir = repoDir
	cmd.Stderr = os.Stderr

	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git diff: %w", err)
	}

	return string(out), nil
}

// GitDiffHead returns the diff of HEAD against its parent.
func GitDiffHead(repoDir string, contextLines int) (string, error) {
	return GitDiff(repoDir, fmt.Sprintf("-U%d", contextLines), "HEAD~1", "HEAD")
}

// GitDiffRange returns the diff for a commit range like "main...HEAD".
func GitDiffRange(repoDir string, commitRange string, contextLines int) (string, error) {
	return GitDiff(repoDir, fmt.Sprintf("-U%d", contextLines), commitRange)
}
