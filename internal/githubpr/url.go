package githubpr

import (
	"fmt"
	"regexp"
	"strings"
)

var repoURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`github\.com[:/]([^/]+)/([^/]+?)(?:\.git)?/?$`),
	regexp.MustCompile(`github\.com[:/]([^/]+)/([^/]+)/.*`),
}

// ParseRepoURL extracts the owner and repository name from a GitHub URL.
// It accepts https URLs with or without a .git suffix or trailing path
// segments.
func ParseRepoURL(repoURL string) (owner, name string, err error) {
	trimmed := strings.TrimSpace(repoURL)
	for _, pattern := range repoURLPatterns {
		match := pattern.FindStringSubmatch(trimmed)
		if match == nil {
			continue
		}
		owner = match[1]
		name = strings.TrimSuffix(match[2], ".git")
		if owner == "" || name == "" {
			continue
		}
		return owner, name, nil
	}
	return "", "", fmt.Errorf("invalid GitHub repository URL: %s", repoURL)
}
