package tasks

import (
	"sort"
	"strings"
)

// Issue types reported by the analyzer.
const (
	IssueStyle        = "style"
	IssueBug          = "bug"
	IssuePerformance  = "performance"
	IssueSecurity     = "security"
	IssueBestPractice = "best_practice"
)

// CodeIssue is a single finding in a file.
type CodeIssue struct {
	Type        string `json:"type"`
	Line        int    `json:"line"`
	Description string `json:"description"`
	Suggestion  string `json:"suggestion"`
	Severity    string `json:"severity,omitempty"`
}

// FileAnalysis holds the findings for one changed file.
type FileAnalysis struct {
	Name     string      `json:"name"`
	Path     string      `json:"path"`
	Issues   []CodeIssue `json:"issues"`
	Language string      `json:"language,omitempty"`
}

// AnalysisSummary aggregates the per-file findings.
type AnalysisSummary struct {
	TotalFiles        int      `json:"total_files"`
	TotalIssues       int      `json:"total_issues"`
	CriticalIssues    int      `json:"critical_issues"`
	FilesWithIssues   int      `json:"files_with_issues"`
	LanguagesDetected []string `json:"languages_detected"`
}

// AnalysisResults is the write-once result record for a completed task.
type AnalysisResults struct {
	Files    []FileAnalysis  `json:"files"`
	Summary  AnalysisSummary `json:"summary"`
	Metadata map[string]any  `json:"metadata,omitempty"`
}

// BuildSummary computes the aggregate view over the given file analyses.
// Detected languages are deduplicated and sorted.
func BuildSummary(files []FileAnalysis) AnalysisSummary {
	summary := AnalysisSummary{TotalFiles: len(files)}
	languages := make(map[string]struct{})
	for _, file := range files {
		summary.TotalIssues += len(file.Issues)
		if len(file.Issues) > 0 {
			summary.FilesWithIssues++
		}
		for _, issue := range file.Issues {
			if strings.EqualFold(issue.Severity, "critical") {
				summary.CriticalIssues++
			}
		}
		if file.Language != "" {
			languages[file.Language] = struct{}{}
		}
	}
	summary.LanguagesDetected = make([]string, 0, len(languages))
	for lang := range languages {
		summary.LanguagesDetected = append(summary.LanguagesDetected, lang)
	}
	sort.Strings(summary.LanguagesDetected)
	return summary
}
