package parser

import (
	"sort"
	"strings"
)

// AllowedTool is one entry of the manifest's allowed-tools list.
type AllowedTool struct {
	Name string
	Args []string
}

// ParseAllowedTools accepts the allowed-tools value as a YAML list or as a
// single string. Entries have the form Name or Name(arg1,arg2,...) and are
// separated by commas or whitespace outside parentheses.
func ParseAllowedTools(v any) []AllowedTool {
	var items []string
	switch t := v.(type) {
	case string:
		items = splitTopLevel(t)
	case []any:
		for _, e := range t {
			if s, ok := e.(string); ok {
				items = append(items, splitTopLevel(s)...)
			}
		}
	}

	var tools []AllowedTool
	for _, item := range items {
		if tool, ok := parseTool(item); ok {
			tools = append(tools, tool)
		}
	}
	return tools
}

func parseTool(s string) (AllowedTool, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return AllowedTool{}, false
	}
	open := strings.IndexByte(s, '(')
	if open < 0 {
		return AllowedTool{Name: s}, true
	}
	name := strings.TrimSpace(s[:open])
	if name == "" {
		return AllowedTool{}, false
	}
	inner := strings.TrimSuffix(s[open+1:], ")")

	var args []string
	for _, a := range strings.Split(inner, ",") {
		if a = strings.TrimSpace(a); a != "" {
			args = append(args, a)
		}
	}
	return AllowedTool{Name: name, Args: args}, true
}

// splitTopLevel splits on commas and whitespace that are not inside
// parentheses.
func splitTopLevel(s string) []string {
	var parts []string
	depth := 0
	start := 0
	flush := func(end int) {
		if p := strings.TrimSpace(s[start:end]); p != "" {
			parts = append(parts, p)
		}
	}
	for i, r := range s {
		switch {
		case r == '(':
			depth++
		case r == ')':
			if depth > 0 {
				depth--
			}
		case depth == 0 && (r == ',' || r == ' ' || r == '\t' || r == '\n'):
			flush(i)
			start = i + 1
		}
	}
	flush(len(s))
	return parts
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
