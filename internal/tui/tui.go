// Package tui implements the Bubble Tea review browser: comments
// grouped by category on the left, the selected finding on the right.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sprite-ai/ragrev/internal/format"
	"github.com/sprite-ai/ragrev/internal/model"
)

type section struct {
	title    string
	style    lipgloss.Style
	comments []model.ReviewComment
}

// Model is the top-level Bubble Tea model for ragrev.
type Model struct {
	review   *model.Review
	sections []section

	// UI state
	width  int
	height int

	sectionIndex int // currently selected category
	itemIndex    int // selected comment within the category

	showHelp bool
}

// New creates a new TUI model from a finished review.
func New(r *model.Review) Model {
	m := Model{review: r}
	for _, s := range []section{
		{title: "Must fix", style: mustFixStyle, comments: r.MustFix},
		{title: "Should fix", style: shouldFixStyle, comments: r.ShouldFix},
		{title: "Nice to have", style: niceToHaveStyle, comments: r.NiceToHave},
	} {
		if len(s.comments) > 0 {
			m.sections = append(m.sections, s)
		}
	}
	return m
}

func (m Model) current() *model.ReviewComment {
	if len(m.sections) == 0 {
		return nil
	}
	s := m.sections[m.sectionIndex]
	if m.itemIndex >= len(s.comments) {
		return nil
	}
	return &s.comments[m.itemIndex]
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, keys.Down):
			if len(m.sections) > 0 && m.itemIndex < len(m.sections[m.sectionIndex].comments)-1 {
				m.itemIndex++
			}

		case key.Matches(msg, keys.Up):
			if m.itemIndex > 0 {
				m.itemIndex--
			}

		case key.Matches(msg, keys.NextCategory):
			if m.sectionIndex < len(m.sections)-1 {
				m.sectionIndex++
				m.itemIndex = 0
			}

		case key.Matches(msg, keys.PrevCategory):
			if m.sectionIndex > 0 {
				m.sectionIndex--
				m.itemIndex = 0
			}

		case key.Matches(msg, keys.Help):
			m.showHelp = !m.showHelp
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	if m.showHelp {
		return m.renderHelp()
	}

	if len(m.sections) == 0 {
		return summaryStyle.Render("No findings") + "\n\n" + m.review.Summary
	}

	listWidth := m.width / 3
	if listWidth < 30 {
		listWidth = 30
	}
	detailWidth := m.width - listWidth - 1

	list := m.renderList(listWidth, m.height-2)
	detail := m.renderDetail(detailWidth, m.height-2)

	main := lipgloss.JoinHorizontal(lipgloss.Top, list, " ", detail)
	return lipgloss.JoinVertical(lipgloss.Left, main, m.renderStatusBar())
}

func (m Model) renderList(width, height int) string {
	var b strings.Builder

	for si, s := range m.sections {
		b.WriteString(s.style.Render(fmt.Sprintf("%s (%d)", s.title, len(s.comments))))
		b.WriteByte('\n')

		for ci, cm := range s.comments {
			loc := cm.File
			if cm.Line > 0 {
				loc = fmt.Sprintf("%s:%d", cm.File, cm.Line)
			}
			maxLoc := width - 6
			if maxLoc > 0 && len(loc) > maxLoc {
				loc = "…" + loc[len(loc)-maxLoc+1:]
			}

			style := itemStyle
			if si == m.sectionIndex && ci == m.itemIndex {
				style = itemSelectedStyle
			}
			b.WriteString("  " + style.Render(loc))
			b.WriteByte('\n')
		}
	}

	return listStyle.Width(width).Height(height - 2).Render(b.String())
}

func (m Model) renderDetail(width, height int) string {
	cm := m.current()
	if cm == nil {
		return detailStyle.Width(width).Height(height - 2).Render("No selection")
	}

	var b strings.Builder

	loc := cm.File
	if cm.Line > 0 {
		loc = fmt.Sprintf("%s:%d", cm.File, cm.Line)
	}
	b.WriteString(detailHeaderStyle.Render(loc))
	b.WriteByte('\n')

	if cm.IssueType != "" {
		b.WriteString(confidenceStyle.Render(cm.IssueType))
		b.WriteByte('\n')
	}
	b.WriteString(cm.Description)
	b.WriteString("\n\n")

	if cm.Suggestion != "" {
		b.WriteString(suggestionStyle.Render("Suggestion:"))
		b.WriteByte('\n')
		for _, hl := range format.HighlightLines(cm.File, strings.Split(cm.Suggestion, "\n")) {
			b.WriteString("  " + hl.Render())
			b.WriteByte('\n')
		}
		if cm.AutoFixable {
			b.WriteString(suggestionStyle.Render("auto-fixable"))
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}

	b.WriteString(confidenceStyle.Render(fmt.Sprintf("confidence %.2f", cm.Confidence)))

	return detailStyle.Width(width).Height(height - 2).Render(b.String())
}

func (m Model) renderStatusBar() string {
	s := m.sections[m.sectionIndex]
	left := fmt.Sprintf(" %s %d/%d", s.title, m.itemIndex+1, len(s.comments))
	right := fmt.Sprintf("%d finding(s)  ? help ", m.review.Len())

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}
	return statusBarStyle.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

func (m Model) renderHelp() string {
	var b strings.Builder

	b.WriteString(detailHeaderStyle.Render("ragrev — Keyboard Shortcuts"))
	b.WriteString("\n\n")

	helpItems := []struct{ key, desc string }{
		{"↑/k", "Previous finding"},
		{"↓/j", "Next finding"},
		{"n/Tab", "Next category"},
		{"N/S-Tab", "Previous category"},
		{"?", "Toggle this help"},
		{"q", "Quit"},
	}

	for _, item := range helpItems {
		b.WriteString(fmt.Sprintf("  %s  %s\n",
			helpKeyStyle.Width(12).Render(item.key),
			item.desc,
		))
	}

	b.WriteString("\n")
	b.WriteString(helpBarStyle.Render("Press ? to close help"))

	return b.String()
}

// Run starts the TUI application.
func Run(r *model.Review) error {
	m := New(r)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
