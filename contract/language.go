package contract

import (
	"path"
	"strings"
)

// Language is the file or block type used to select rules and extractors.
type Language string

const (
	LangBash       Language = "bash"
	LangPython     Language = "python"
	LangJavaScript Language = "javascript"
	LangGoMod      Language = "gomod"
	LangMarkdown   Language = "markdown"
	LangText       Language = "text"
	LangJSON       Language = "json"
	LangYAML       Language = "yaml"
	LangTOML       Language = "toml"
	LangBinary     Language = "binary"
	LangUnknown    Language = "unknown"
)

// Languages lists every supported language in declaration order.
var Languages = []Language{
	LangBash, LangPython, LangJavaScript, LangGoMod,
	LangMarkdown, LangText, LangJSON, LangYAML, LangTOML,
	LangBinary, LangUnknown,
}

// IsDocument reports whether blocks can be extracted from the language.
func (l Language) IsDocument() bool {
	return l == LangMarkdown || l == LangText
}

// IsCode reports whether the language is a programming or dependency language.
func (l Language) IsCode() bool {
	switch l {
	case LangBash, LangPython, LangJavaScript, LangGoMod:
		return true
	}
	return false
}

// Rank orders file types for the scan queue.
func (l Language) Rank() int {
	switch l {
	case LangMarkdown, LangText:
		return 0
	case LangBash, LangPython, LangJavaScript, LangGoMod:
		return 1
	case LangJSON, LangYAML, LangTOML:
		return 2
	default:
		return 3
	}
}

var extLanguages = map[string]Language{
	".sh":       LangBash,
	".bash":     LangBash,
	".zsh":      LangBash,
	".py":       LangPython,
	".js":       LangJavaScript,
	".mjs":      LangJavaScript,
	".cjs":      LangJavaScript,
	".md":       LangMarkdown,
	".markdown": LangMarkdown,
	".txt":      LangText,
	".json":     LangJSON,
	".yaml":     LangYAML,
	".yml":      LangYAML,
	".toml":     LangTOML,
}

var binaryExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".ico": true,
	".webp": true, ".pdf": true, ".zip": true, ".gz": true, ".tar": true,
	".tgz": true, ".exe": true, ".so": true, ".dylib": true, ".dll": true,
	".wasm": true, ".bin": true, ".woff": true, ".woff2": true, ".ttf": true,
}

// DetectLanguage classifies a file by its name alone.
func DetectLanguage(p string) Language {
	base := path.Base(p)
	if base == "go.mod" {
		return LangGoMod
	}
	ext := strings.ToLower(path.Ext(base))
	if l, ok := extLanguages[ext]; ok {
		return l
	}
	if binaryExts[ext] {
		return LangBinary
	}
	if ext == "" {
		switch strings.ToUpper(base) {
		case "LICENSE", "LICENCE", "README", "NOTICE", "COPYING":
			return LangText
		}
	}
	return LangUnknown
}

// DetectLanguageContent refines DetectLanguage with a shebang check for
// files whose name alone is inconclusive.
func DetectLanguageContent(p, content string) Language {
	l := DetectLanguage(p)
	if l != LangUnknown {
		return l
	}
	if strings.HasPrefix(content, "#!") {
		line, _, _ := strings.Cut(content, "\n")
		switch {
		case strings.Contains(line, "python"):
			return LangPython
		case strings.Contains(line, "node"):
			return LangJavaScript
		case strings.Contains(line, "sh"):
			return LangBash
		}
	}
	if path.Ext(p) == "" && strings.IndexByte(content, 0) < 0 {
		return LangText
	}
	return LangUnknown
}

// FenceLanguage maps a markdown fence info string to a language.
// Untagged fences are text.
func FenceLanguage(tag string) Language {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if i := strings.IndexAny(tag, " {,"); i >= 0 {
		tag = tag[:i]
	}
	switch tag {
	case "bash", "sh", "shell", "zsh", "console":
		return LangBash
	case "python", "py", "python3":
		return LangPython
	case "javascript", "js", "node", "mjs":
		return LangJavaScript
	case "json":
		return LangJSON
	case "yaml", "yml":
		return LangYAML
	case "toml":
		return LangTOML
	case "markdown", "md":
		return LangMarkdown
	default:
		return LangText
	}
}
