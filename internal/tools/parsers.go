package tools

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/sprite-ai/ragrev/internal/model"
)

// file:line:col: message, the shape shared by go vet, golangci-lint,
// ruff, eslint --format unix, and mypy.
var locationLine = regexp.MustCompile(`^([^\s:][^:]*):(\d+)(?::(\d+))?:\s*(.+)$`)

func parseLocations(out string, severity model.Severity, rule string) []model.Issue {
	var issues []model.Issue
	for _, line := range strings.Split(out, "\n") {
		m := locationLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		lineNo, _ := strconv.Atoi(m[2])
		col := 0
		if m[3] != "" {
			col, _ = strconv.Atoi(m[3])
		}
		issues = append(issues, model.Issue{
			File:     normalizePath(m[1]),
			Line:     lineNo,
			Col:      col,
			Message:  strings.TrimSpace(m[4]),
			Severity: severity,
			Rule:     rule,
		})
	}
	return issues
}

func normalizePath(p string) string {
	p = strings.TrimPrefix(p, "./")
	return strings.ReplaceAll(p, "\\", "/")
}

func parseGoVet(stdout, stderr string) ([]model.Issue, []model.TestResult) {
	// vet writes findings to stderr; package headers ("# pkg") and
	// "exit status" lines do not match the location shape.
	return parseLocations(stderr, model.SeverityError, "govet"), nil
}

func parseGofmt(stdout, stderr string) ([]model.Issue, []model.TestResult) {
	var issues []model.Issue
	for _, line := range strings.Split(stdout, "\n") {
		path := strings.TrimSpace(line)
		if path == "" {
			continue
		}
		issues = append(issues, model.Issue{
			File:     normalizePath(path),
			Message:  "file is not gofmt-formatted",
			Severity: model.SeverityWarning,
			Rule:     "gofmt",
		})
	}
	return issues, nil
}

// golangci-lint line-number format: file:line:col: message (linter)
var golangciRule = regexp.MustCompile(`\(([\w-]+)\)\s*$`)

func parseGolangciLint(stdout, stderr string) ([]model.Issue, []model.TestResult) {
	issues := parseLocations(stdout, model.SeverityWarning, "")
	for i := range issues {
		if m := golangciRule.FindStringSubmatch(issues[i].Message); m != nil {
			issues[i].Rule = m[1]
			issues[i].Message = strings.TrimSpace(strings.TrimSuffix(issues[i].Message, m[0]))
		}
	}
	return issues, nil
}

// ruff concise format: file:line:col: CODE message
var ruffCode = regexp.MustCompile(`^([A-Z]+\d+)\s+(.+)$`)

func parseRuff(stdout, stderr string) ([]model.Issue, []model.TestResult) {
	issues := parseLocations(stdout, model.SeverityWarning, "")
	for i := range issues {
		if m := ruffCode.FindStringSubmatch(issues[i].Message); m != nil {
			issues[i].Rule = m[1]
			issues[i].Message = m[2]
		}
	}
	return issues, nil
}

func parseMypy(stdout, stderr string) ([]model.Issue, []model.TestResult) {
	var issues []model.Issue
	for _, iss := range parseLocations(stdout, model.SeverityError, "mypy") {
		msg := iss.Message
		switch {
		case strings.HasPrefix(msg, "error:"):
			iss.Message = strings.TrimSpace(strings.TrimPrefix(msg, "error:"))
		case strings.HasPrefix(msg, "warning:"):
			iss.Message = strings.TrimSpace(strings.TrimPrefix(msg, "warning:"))
			iss.Severity = model.SeverityWarning
		case strings.HasPrefix(msg, "note:"):
			continue
		}
		issues = append(issues, iss)
	}
	return issues, nil
}

// eslint --format unix: file:line:col: message [Error/rule]
var eslintTag = regexp.MustCompile(`\[(Error|Warning)/([\w@/-]+)\]\s*$`)

func parseESLint(stdout, stderr string) ([]model.Issue, []model.TestResult) {
	issues := parseLocations(stdout, model.SeverityWarning, "")
	for i := range issues {
		if m := eslintTag.FindStringSubmatch(issues[i].Message); m != nil {
			if m[1] == "Error" {
				issues[i].Severity = model.SeverityError
			}
			issues[i].Rule = m[2]
			issues[i].Message = strings.TrimSpace(strings.TrimSuffix(issues[i].Message, m[0]))
		}
	}
	return issues, nil
}

// tsc --pretty false: file(line,col): error TSxxxx: message
var tscLine = regexp.MustCompile(`^(.+)\((\d+),(\d+)\):\s*error\s+(TS\d+):\s*(.+)$`)

func parseTsc(stdout, stderr string) ([]model.Issue, []model.TestResult) {
	var issues []model.Issue
	for _, line := range strings.Split(stdout, "\n") {
		m := tscLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		lineNo, _ := strconv.Atoi(m[2])
		col, _ := strconv.Atoi(m[3])
		issues = append(issues, model.Issue{
			File:     normalizePath(m[1]),
			Line:     lineNo,
			Col:      col,
			Message:  m[5],
			Severity: model.SeverityError,
			Rule:     m[4],
		})
	}
	return issues, nil
}

var goTestFail = regexp.MustCompile(`^--- FAIL: (\S+)\s*\(([\d.]+)s\)`)

func parseGoTest(stdout, stderr string) ([]model.Issue, []model.TestResult) {
	var tests []model.TestResult
	lines := strings.Split(stdout, "\n")
	for i, line := range lines {
		m := goTestFail.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		t := model.TestResult{Name: m[1]}
		// Failure detail follows as indented lines, the first of which
		// usually carries file:line.
		for j := i + 1; j < len(lines) && j < i+6; j++ {
			detail := strings.TrimSpace(lines[j])
			if detail == "" || strings.HasPrefix(detail, "---") || detail == "FAIL" {
				break
			}
			if t.FailureMessage != "" {
				t.FailureMessage += "\n"
			}
			t.FailureMessage += detail
			if t.File == "" {
				if loc := locationLine.FindStringSubmatch(detail); loc != nil {
					t.File = normalizePath(loc[1])
				}
			}
		}
		tests = append(tests, t)
	}
	return nil, tests
}

// pytest --tb=line failure summary: "FAILED path::test_name - message"
var pytestFail = regexp.MustCompile(`^FAILED\s+([^:\s]+)::(\S+?)(?:\s+-\s+(.*))?$`)

func parsePytest(stdout, stderr string) ([]model.Issue, []model.TestResult) {
	var tests []model.TestResult
	for _, line := range strings.Split(stdout, "\n") {
		m := pytestFail.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		tests = append(tests, model.TestResult{
			Name:           m[2],
			File:           normalizePath(m[1]),
			FailureMessage: m[3],
		})
	}
	return nil, tests
}
