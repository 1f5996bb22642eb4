// Package format renders a finished review as markdown, JSON, or
// styled terminal output.
package format

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/sprite-ai/ragrev/internal/model"
)

// Styles for terminal output.
var (
	mustFixStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff5555")).Bold(true)
	shouldStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffb86c")).Bold(true)
	niceStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#f1fa8c"))
	fileStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#8be9fd")).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6272a4"))
	summaryStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#f8f8f2"))
	headingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#bd93f9")).Bold(true)
	autoFixBadge = lipgloss.NewStyle().Foreground(lipgloss.Color("#50fa7b"))
)

var categoryHeadings = []struct {
	cat   model.Category
	title string
}{
	{model.MustFix, "Must fix"},
	{model.ShouldFix, "Should fix"},
	{model.NiceToHave, "Nice to have"},
}

func commentsFor(r *model.Review, cat model.Category) []model.ReviewComment {
	switch cat {
	case model.MustFix:
		return r.MustFix
	case model.ShouldFix:
		return r.ShouldFix
	default:
		return r.NiceToHave
	}
}

// Markdown writes the review as a markdown document suitable for a PR
// comment.
func Markdown(w io.Writer, r *model.Review) error {
	fmt.Fprintf(w, "## Review\n\n%s\n\n", r.Summary)
	if r.ToolSummary != "" {
		fmt.Fprintf(w, "_%s_\n\n", r.ToolSummary)
	}

	for _, section := range categoryHeadings {
		comments := commentsFor(r, section.cat)
		if len(comments) == 0 {
			continue
		}
		fmt.Fprintf(w, "### %s\n\n", section.title)
		for _, cm := range comments {
			fmt.Fprintf(w, "- **%s**", cm.File)
			if cm.Line > 0 {
				fmt.Fprintf(w, ":%d", cm.Line)
			}
			fmt.Fprintf(w, " — %s", strings.ReplaceAll(cm.Description, "\n", " "))
			if cm.AutoFixable {
				fmt.Fprint(w, " _(auto-fixable)_")
			}
			fmt.Fprintln(w)
			if cm.Suggestion != "" {
				fmt.Fprintf(w, "\n  ```suggestion\n%s\n  ```\n", indent(cm.Suggestion, "  "))
			}
		}
		fmt.Fprintln(w)
	}
	return nil
}

// JSON writes any result value as indented JSON.
func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Terminal writes a styled plaintext review for interactive use.
func Terminal(w io.Writer, r *model.Review) error {
	fmt.Fprintln(w, headingStyle.Render("Review"))
	fmt.Fprintln(w, summaryStyle.Render(r.Summary))
	if r.ToolSummary != "" {
		fmt.Fprintln(w, dimStyle.Render(r.ToolSummary))
	}
	fmt.Fprintln(w)

	styleFor := map[model.Category]lipgloss.Style{
		model.MustFix:    mustFixStyle,
		model.ShouldFix:  shouldStyle,
		model.NiceToHave: niceStyle,
	}

	for _, section := range categoryHeadings {
		comments := commentsFor(r, section.cat)
		if len(comments) == 0 {
			continue
		}
		fmt.Fprintln(w, styleFor[section.cat].Render(section.title))
		for _, cm := range comments {
			loc := cm.File
			if cm.Line > 0 {
				loc = fmt.Sprintf("%s:%d", cm.File, cm.Line)
			}
			fmt.Fprintf(w, "  %s %s\n", fileStyle.Render(loc), cm.Description)
			if cm.Suggestion != "" {
				for _, hl := range HighlightLines(cm.File, strings.Split(cm.Suggestion, "\n")) {
					fmt.Fprintf(w, "    %s\n", hl.Render())
				}
				if cm.AutoFixable {
					fmt.Fprintf(w, "    %s\n", autoFixBadge.Render("auto-fixable"))
				}
			}
			fmt.Fprintf(w, "    %s\n", dimStyle.Render(fmt.Sprintf("confidence %.2f", cm.Confidence)))
		}
		fmt.Fprintln(w)
	}
	return nil
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
