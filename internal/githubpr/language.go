package githubpr

import "strings"

var specialFiles = map[string]string{
	"readme":           "markdown",
	"readme.txt":       "text",
	"license":          "text",
	"changelog":        "markdown",
	"makefile":         "makefile",
	"dockerfile":       "dockerfile",
	"jenkinsfile":      "groovy",
	"vagrantfile":      "ruby",
	"gemfile":          "ruby",
	"rakefile":         "ruby",
	"package.json":     "json",
	"composer.json":    "json",
	"requirements.txt": "text",
	"setup.py":         "python",
	"setup.cfg":        "ini",
	"pyproject.toml":   "toml",
	"cargo.toml":       "toml",
	".gitignore":       "text",
	".env":             "text",
}

var extensionLanguages = map[string]string{
	".py":    "python",
	".js":    "javascript",
	".ts":    "typescript",
	".jsx":   "javascript",
	".tsx":   "typescript",
	".java":  "java",
	".cpp":   "cpp",
	".c":     "c",
	".h":     "c",
	".hpp":   "cpp",
	".cs":    "csharp",
	".php":   "php",
	".rb":    "ruby",
	".go":    "go",
	".rs":    "rust",
	".swift": "swift",
	".kt":    "kotlin",
	".scala": "scala",
	".sh":    "bash",
	".sql":   "sql",
	".html":  "html",
	".css":   "css",
	".scss":  "scss",
	".sass":  "sass",
	".less":  "less",
	".xml":   "xml",
	".json":  "json",
	".yaml":  "yaml",
	".yml":   "yaml",
	".md":    "markdown",
	".rst":   "rst",
	".txt":   "text",
	".toml":  "toml",
	".ini":   "ini",
	".cfg":   "ini",
	".conf":  "text",
	".r":     "r",
	".m":     "matlab",
	".pl":    "perl",
	".lua":   "lua",
	".vim":   "vim",
}

// DetectLanguage guesses the programming language of a file from its name.
// Well-known filenames like Makefile or Dockerfile are matched before the
// extension table. Returns "" when the language is unknown.
func DetectLanguage(filename string) string {
	base := strings.ToLower(filename)
	if idx := strings.LastIndexByte(base, '/'); idx >= 0 {
		base = base[idx+1:]
	}

	if lang, ok := specialFiles[base]; ok {
		return lang
	}
	for prefix, lang := range specialFiles {
		if strings.HasPrefix(base, prefix) {
			return lang
		}
	}

	if idx := strings.LastIndexByte(base, '.'); idx >= 0 {
		if lang, ok := extensionLanguages[base[idx:]]; ok {
			return lang
		}
	}
	return ""
}
