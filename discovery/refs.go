package discovery

import (
	"path"
	"regexp"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"github.com/FeiyouG/skill-lab-sub000/contract"
)

// candidate is a reference found in a block before classification. Line is
// 1-based within the block. Paths lists local files the reference may
// name; when empty Target itself is tried.
type candidate struct {
	Target string
	Line   int
	Method contract.DiscoveryMethod
	Paths  []string
}

type extractor func(text string) []candidate

// extractorFor is the single table mapping block languages to reference
// extractors.
func extractorFor(lang contract.Language) extractor {
	switch lang {
	case contract.LangBash:
		return shellRefs
	case contract.LangPython:
		return pythonRefs
	case contract.LangJavaScript:
		return javascriptRefs
	case contract.LangMarkdown:
		return markdownRefs
	case contract.LangText:
		return textRefs
	case contract.LangJSON, contract.LangYAML, contract.LangTOML:
		return urlRefs
	case contract.LangGoMod, contract.LangBinary, contract.LangUnknown:
		return nil
	}
	return nil
}

var (
	mdLinkRe     = regexp.MustCompile(`!?\[[^\]]*\]\(\s*<?([^)\s>]+)>?(?:\s+"[^"]*")?\s*\)`)
	mdRefDefRe   = regexp.MustCompile(`^\s{0,3}\[[^\]]+\]:\s*<?(\S+?)>?(?:\s+"[^"]*")?\s*$`)
	pathTokenRe  = regexp.MustCompile(`^(~|\.{1,2}|\$\{?[A-Za-z_][A-Za-z0-9_]*\}?)?/?[\w@.+-]+(/[\w@.*+-]*)*$`)
	knownExtRe   = regexp.MustCompile(`\.(sh|bash|zsh|py|js|mjs|cjs|md|markdown|txt|json|ya?ml|toml|mod|cfg|ini|env|pem|key)$`)
	quotedPathRe = regexp.MustCompile(`["']((?:\.{1,2}/|~/|/)?[\w@.+-]+(?:/[\w@.+-]+)*\.(?:sh|bash|py|js|mjs|cjs|json|ya?ml|toml|txt|md|csv))["']`)

	pyImportRe = regexp.MustCompile(`^\s*import\s+(.+?)\s*(?:#.*)?$`)
	pyFromRe   = regexp.MustCompile(`^\s*from\s+(\.*)([\w.]*)\s+import\s+(.+?)\s*(?:#.*)?$`)
	jsImportRe = regexp.MustCompile(`(?:\bimport\s+(?:[\w*{}\s,$]+\s+from\s+)?|\bexport\s+[\w*{}\s,$]+\s+from\s+|\brequire\s*\(\s*|\bimport\s*\(\s*)["']([^"'\n]+)["']`)
)

var interpreters = map[string]bool{
	"bash": true, "sh": true, "zsh": true, "python": true, "python3": true,
	"node": true, "deno": true, "bun": true, "ruby": true, "perl": true,
}

// pathLike reports tokens that read as file paths rather than prose.
func pathLike(tok string) bool {
	if tok == "" || len(tok) > 256 || !pathTokenRe.MatchString(tok) {
		return false
	}
	return strings.Contains(tok, "/") || knownExtRe.MatchString(tok)
}

func cleanToken(tok string) string {
	return strings.Trim(tok, "`\"'()[]<>{},;:!?*")
}

func urlRefs(text string) []candidate {
	var out []candidate
	for i, line := range strings.Split(text, "\n") {
		for _, u := range urlRe.FindAllString(line, -1) {
			out = append(out, candidate{Target: trimURL(u), Line: i + 1, Method: contract.MethodURL})
		}
	}
	return out
}

// barePathRefs finds path-looking words in prose. Sentence punctuation at
// the end of a token is dropped.
func barePathRefs(text string) []candidate {
	var out []candidate
	for i, line := range strings.Split(text, "\n") {
		for _, f := range strings.Fields(line) {
			if urlRe.MatchString(f) {
				continue
			}
			tok := strings.TrimRight(cleanToken(f), ".")
			if pathLike(tok) {
				out = append(out, candidate{Target: tok, Line: i + 1, Method: contract.MethodBarePath})
			}
		}
	}
	return out
}

func textRefs(text string) []candidate {
	return append(urlRefs(text), barePathRefs(text)...)
}

func markdownRefs(text string) []candidate {
	var out []candidate
	for i, line := range strings.Split(text, "\n") {
		for _, m := range mdLinkRe.FindAllStringSubmatch(line, -1) {
			if c, ok := linkCandidate(m[1], i+1); ok {
				out = append(out, c)
			}
		}
		if m := mdRefDefRe.FindStringSubmatch(line); m != nil {
			if c, ok := linkCandidate(m[1], i+1); ok {
				out = append(out, c)
			}
		}
	}
	stripped := mdLinkRe.ReplaceAllString(text, "")
	return append(out, textRefs(stripped)...)
}

func linkCandidate(target string, line int) (candidate, bool) {
	target = strings.TrimSpace(target)
	switch {
	case target == "", strings.HasPrefix(target, "#"), strings.HasPrefix(target, "mailto:"):
		return candidate{}, false
	}
	return candidate{Target: trimURL(target), Line: line, Method: contract.MethodMarkdownLink}, true
}

// shellRefs reads sourced files, executed scripts, URLs and path arguments
// from shell code. Lines that do not parse are skipped.
func shellRefs(text string) []candidate {
	parser := syntax.NewParser(syntax.KeepComments(false), syntax.Variant(syntax.LangBash))
	if f, err := parser.Parse(strings.NewReader(text), ""); err == nil {
		return shellFileRefs(f, 0)
	}
	var out []candidate
	for i, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		f, err := parser.Parse(strings.NewReader(line), "")
		if err != nil {
			continue
		}
		out = append(out, shellFileRefs(f, i)...)
	}
	return out
}

func shellFileRefs(f *syntax.File, lineOffset int) []candidate {
	var out []candidate
	printer := syntax.NewPrinter()
	syntax.Walk(f, func(node syntax.Node) bool {
		call, ok := node.(*syntax.CallExpr)
		if !ok || len(call.Args) == 0 {
			return true
		}
		words := make([]string, len(call.Args))
		for i, w := range call.Args {
			if lit := w.Lit(); lit != "" {
				words[i] = lit
				continue
			}
			var b strings.Builder
			if err := printer.Print(&b, w); err == nil {
				words[i] = strings.Trim(b.String(), `"'`)
			}
		}
		line := int(call.Pos().Line()) + lineOffset
		cmd := path.Base(words[0])

		for i, w := range words {
			switch {
			case w == "":
			case i == 1 && (cmd == "source" || cmd == "."):
				out = append(out, candidate{Target: w, Line: line, Method: contract.MethodSource})
			case IsURL(w):
				out = append(out, candidate{Target: trimURL(w), Line: line, Method: contract.MethodURL})
			case i == 1 && interpreters[cmd] && !strings.HasPrefix(w, "-"):
				out = append(out, candidate{Target: w, Line: line, Method: contract.MethodBarePath})
			case pathLike(w):
				out = append(out, candidate{Target: w, Line: line, Method: contract.MethodBarePath})
			}
		}
		return true
	})
	return out
}

// inlineRefs treats an inline code span as a one-line command.
func inlineRefs(text string) []candidate {
	out := shellRefs(text)
	for i := range out {
		if out[i].Method == contract.MethodBarePath {
			out[i].Method = contract.MethodInlineCode
		}
	}
	return out
}

func pythonRefs(text string) []candidate {
	var out []candidate
	for i, line := range strings.Split(text, "\n") {
		n := i + 1
		if m := pyFromRe.FindStringSubmatch(line); m != nil {
			dots, mod := m[1], m[2]
			if dots == "" {
				out = append(out, pyModule(mod, n))
				continue
			}
			prefix := "./" + strings.Repeat("../", len(dots)-1)
			if mod != "" {
				p := prefix + strings.ReplaceAll(mod, ".", "/")
				out = append(out, candidate{Target: dots + mod, Line: n, Method: contract.MethodImport, Paths: []string{p + ".py", p + "/__init__.py"}})
				continue
			}
			for _, name := range splitImports(m[3]) {
				p := prefix + name
				out = append(out, candidate{Target: dots + name, Line: n, Method: contract.MethodImport, Paths: []string{p + ".py", p + "/__init__.py"}})
			}
			continue
		}
		if m := pyImportRe.FindStringSubmatch(line); m != nil {
			for _, name := range splitImports(m[1]) {
				out = append(out, pyModule(name, n))
			}
		}
	}
	return append(append(out, urlRefs(text)...), quotedPathRefs(text)...)
}

func pyModule(mod string, line int) candidate {
	p := strings.ReplaceAll(mod, ".", "/")
	return candidate{Target: mod, Line: line, Method: contract.MethodImport, Paths: []string{p + ".py", p + "/__init__.py"}}
}

// splitImports splits "a as b, c" into module names.
func splitImports(s string) []string {
	s = strings.Trim(s, "() \t")
	var out []string
	for _, part := range strings.Split(s, ",") {
		name, _, _ := strings.Cut(strings.TrimSpace(part), " ")
		if name != "" && name != "*" && name != "\\" {
			out = append(out, name)
		}
	}
	return out
}

func javascriptRefs(text string) []candidate {
	var out []candidate
	for i, line := range strings.Split(text, "\n") {
		for _, m := range jsImportRe.FindAllStringSubmatch(line, -1) {
			spec := m[1]
			c := candidate{Target: spec, Line: i + 1, Method: contract.MethodImport}
			if strings.HasPrefix(spec, ".") || strings.HasPrefix(spec, "/") {
				c.Paths = []string{spec, spec + ".js", spec + ".mjs", spec + ".cjs", spec + "/index.js"}
			}
			out = append(out, c)
		}
	}
	return append(append(out, urlRefs(text)...), quotedPathRefs(text)...)
}

func quotedPathRefs(text string) []candidate {
	var out []candidate
	for i, line := range strings.Split(text, "\n") {
		for _, m := range quotedPathRe.FindAllStringSubmatch(line, -1) {
			out = append(out, candidate{Target: m[1], Line: i + 1, Method: contract.MethodBarePath})
		}
	}
	return out
}
