package analyzer

import (
	"encoding/json"
	"strings"

	"prreview-backend/internal/shared/telemetry"
	"prreview-backend/internal/tasks"
)

var validIssueTypes = map[string]struct{}{
	tasks.IssueStyle:        {},
	tasks.IssueBug:          {},
	tasks.IssuePerformance:  {},
	tasks.IssueSecurity:     {},
	tasks.IssueBestPractice: {},
}

type issuePayload struct {
	Type        string `json:"type"`
	Line        int    `json:"line"`
	Description string `json:"description"`
	Suggestion  string `json:"suggestion"`
	Severity    string `json:"severity"`
}

type analysisPayload struct {
	Issues []issuePayload `json:"issues"`
}

// ParseFileAnalysis converts an analyzer response into a FileAnalysis.
// Unknown issue types fall back to style, a missing line defaults to 1,
// and an unparseable response yields an empty analysis rather than an
// error so one bad file does not sink the whole task.
func ParseFileAnalysis(raw []byte, input FileInput) tasks.FileAnalysis {
	out := tasks.FileAnalysis{
		Name:     baseName(input.Filename),
		Path:     input.Filename,
		Issues:   []tasks.CodeIssue{},
		Language: input.Language,
	}

	payload, ok := decodePayload(raw)
	if !ok {
		telemetry.Error("analyzer.response_parse_failed", map[string]any{
			"filename":        input.Filename,
			"response_length": len(raw),
		})
		return out
	}

	for _, issue := range payload.Issues {
		issueType := strings.ToLower(strings.TrimSpace(issue.Type))
		if _, known := validIssueTypes[issueType]; !known {
			telemetry.Info("analyzer.unknown_issue_type", map[string]any{
				"filename": input.Filename,
				"type":     issue.Type,
			})
			issueType = tasks.IssueStyle
		}
		line := issue.Line
		if line <= 0 {
			line = 1
		}
		severity := strings.ToLower(strings.TrimSpace(issue.Severity))
		if severity == "" {
			severity = "low"
		}
		out.Issues = append(out.Issues, tasks.CodeIssue{
			Type:        issueType,
			Line:        line,
			Description: issue.Description,
			Suggestion:  issue.Suggestion,
			Severity:    severity,
		})
	}
	return out
}

func decodePayload(raw []byte) (analysisPayload, bool) {
	var payload analysisPayload
	if err := json.Unmarshal(raw, &payload); err == nil {
		return payload, true
	}
	// Models sometimes wrap the JSON in prose or a markdown fence.
	extracted := extractJSONObject(string(raw))
	if extracted == "" {
		return payload, false
	}
	if err := json.Unmarshal([]byte(extracted), &payload); err != nil {
		return payload, false
	}
	return payload, true
}

func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func baseName(path string) string {
	if idx := strings.LastIndexByte(path, '/'); idx >= 0 {
		return path[idx+1:]
	}
	return path
}
