package openai

import (
	"fmt"
	"strings"

	"prreview-backend/internal/analyzer"
)

// Message represents an OpenAI chat message.
type Message struct {
	Role    string
	Content string
}

const (
	systemPromptReview  = "You are an expert code reviewer. Respond with JSON only. Output must match the schema exactly."
	systemPromptFixJSON = "You are a JSON repair tool. Return only valid JSON that matches the schema exactly."

	// Contents beyond this are truncated to keep prompts inside token limits.
	maxContentChars = 2000
)

// BuildFilePrompt creates the chat messages for a single-file review request.
func BuildFilePrompt(input analyzer.FileInput) []Message {
	return []Message{
		{Role: "system", Content: systemPromptReview},
		{Role: "user", Content: buildUserPrompt(input)},
	}
}

func buildFixPrompt(raw []byte) []Message {
	return []Message{
		{Role: "system", Content: systemPromptFixJSON},
		{Role: "user", Content: fmt.Sprintf("Fix this JSON to match the schema exactly. Output JSON only:\n%s", string(raw))},
	}
}

func buildUserPrompt(input analyzer.FileInput) string {
	language := input.Language
	if language == "" {
		language = "unknown"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Analyze the following %s file for code quality issues:\n\n", language)
	fmt.Fprintf(&b, "File: %s\nLanguage: %s\nStatus: %s\n\n", input.Filename, language, input.Status)
	fmt.Fprintf(&b, "Diff/Patch:\n```\n%s\n```\n", input.Patch)

	if input.Content != "" {
		content := input.Content
		truncated := false
		if len(content) > maxContentChars {
			content = content[:maxContentChars]
			truncated = true
		}
		fmt.Fprintf(&b, "\nFull file content:\n```%s\n%s\n```\n", language, content)
		if truncated {
			fmt.Fprintf(&b, "[Content truncated - showing first %d characters of %d total]\n", maxContentChars, len(input.Content))
		}
	}

	b.WriteString(`
Identify issues in these categories:
1. style - Code style and formatting issues
2. bug - Potential bugs or errors
3. performance - Performance improvement opportunities
4. security - Security vulnerabilities
5. best_practice - Best practices violations

For each issue provide: type (style, bug, performance, security,
best_practice), line number, description, suggested fix, and severity
(low, medium, high, critical).

Return your analysis in the following JSON format:
{
    "issues": [
        {
            "type": "style",
            "line": 15,
            "description": "Line too long (exceeds 80 characters)",
            "suggestion": "Break the line into multiple lines",
            "severity": "low"
        }
    ]
}

If no issues are found, return: {"issues": []}`)
	return b.String()
}
