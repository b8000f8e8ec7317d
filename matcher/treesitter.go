package matcher

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"unicode"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/FeiyouG/skill-lab-sub000/contract"
)

// Tree-sitter patterns are S-expression queries. The capture @node marks
// the matched span; captures starting with an upper-case letter become
// match captures and lower-case captures only serve predicates.
//
// String literals are reported unquoted. Other nodes are reported with a
// "$" prefix so they read as unresolved values, unless the capture is
// listed in Query.Literal.

const nodeCapture = "node"

type queryKey struct {
	lang    contract.Language
	pattern string
}

type treeSitter struct {
	mu      sync.Mutex
	queries map[queryKey]*sitter.Query
}

func newTreeSitter() *treeSitter {
	return &treeSitter{queries: make(map[queryKey]*sitter.Query)}
}

func grammar(lang contract.Language) *sitter.Language {
	switch lang {
	case contract.LangPython:
		return python.GetLanguage()
	case contract.LangJavaScript:
		return javascript.GetLanguage()
	}
	return nil
}

func (ts *treeSitter) query(lang contract.Language, pattern string) (*sitter.Query, error) {
	key := queryKey{lang, pattern}

	ts.mu.Lock()
	defer ts.mu.Unlock()
	if q, ok := ts.queries[key]; ok {
		return q, nil
	}
	q, err := sitter.NewQuery([]byte(pattern), grammar(lang))
	if err != nil {
		return nil, fmt.Errorf("compiling query: %w", err)
	}
	ts.queries[key] = q
	return q, nil
}

func (ts *treeSitter) parse(ctx context.Context, cache *Cache, lang contract.Language, src string) (*sitter.Tree, error) {
	v, err := cache.load(lang, src, func() (any, error) {
		p := sitter.NewParser()
		p.SetLanguage(grammar(lang))
		return p.ParseCtx(ctx, nil, []byte(src))
	})
	if err != nil {
		return nil, err
	}
	// Trees memoize nodes in an unguarded map, so callers never share the
	// cached tree itself.
	return v.(*sitter.Tree).Copy(), nil
}

func (ts *treeSitter) match(ctx context.Context, cache *Cache, lang contract.Language, src string, q Query) ([]Match, error) {
	if grammar(lang) == nil {
		return nil, fmt.Errorf("no grammar for %q", lang)
	}
	queries := make([]*sitter.Query, 0, len(q.Patterns))
	for _, p := range q.Patterns {
		sq, err := ts.query(lang, p)
		if err != nil {
			return nil, err
		}
		queries = append(queries, sq)
	}

	tree, err := ts.parse(ctx, cache, lang, src)
	if err != nil {
		return nil, err
	}
	input := []byte(src)
	root := tree.RootNode()

	merger := newSpanMerger()
	for _, sq := range queries {
		qc := sitter.NewQueryCursor()
		qc.Exec(sq, root)
		for {
			m, ok := qc.NextMatch()
			if !ok {
				break
			}
			m = qc.FilterPredicates(m, input)
			if len(m.Captures) == 0 {
				continue
			}

			var span *sitter.Node
			caps := make(map[string]string)
			rejected := false
			for _, c := range m.Captures {
				name := sq.CaptureNameForId(c.Index)
				if name == nodeCapture {
					span = c.Node
					continue
				}
				if !isMetaCapture(name) {
					continue
				}
				if _, bound := caps[name]; bound {
					continue
				}
				value := nodeValue(c.Node, input, slices.Contains(q.Literal, name))
				if !satisfies(q.Constraints, name, value) {
					rejected = true
					break
				}
				caps[name] = value
			}
			if rejected {
				continue
			}
			if span == nil {
				span = m.Captures[0].Node
			}

			merger.add(int(span.StartByte()), int(span.EndByte()), Match{
				RuleID:    q.ID,
				StartLine: int(span.StartPoint().Row) + 1,
				EndLine:   int(span.EndPoint().Row) + 1,
				Text:      span.Content(input),
				Captures:  caps,
			})
		}
		qc.Close()
	}
	return merger.matches(), nil
}

func isMetaCapture(name string) bool {
	return name != "" && unicode.IsUpper(rune(name[0]))
}

// nodeValue renders a captured node. Plain string literals are unquoted;
// interpolated strings and other expressions keep a "$" prefix.
func nodeValue(n *sitter.Node, src []byte, literal bool) string {
	text := n.Content(src)
	if literal {
		return text
	}
	switch n.Type() {
	case "string", "string_fragment", "string_content":
		if hasInterpolation(n) {
			return "$" + text
		}
		return unquote(text)
	case "template_string":
		if hasInterpolation(n) {
			return "$" + text
		}
		return strings.Trim(text, "`")
	case "integer", "float", "number", "true", "false", "none", "null":
		return text
	}
	return "$" + text
}

func hasInterpolation(n *sitter.Node) bool {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		switch n.NamedChild(i).Type() {
		case "interpolation", "template_substitution":
			return true
		}
	}
	return false
}

// unquote strips string prefixes (r, b, u, f) and matching quotes.
func unquote(s string) string {
	s = strings.TrimLeft(s, "rRbBuUfF")
	for _, q := range []string{`"""`, `'''`, `"`, `'`, "`"} {
		if len(s) >= 2*len(q) && strings.HasPrefix(s, q) && strings.HasSuffix(s, q) {
			return s[len(q) : len(s)-len(q)]
		}
	}
	return s
}
