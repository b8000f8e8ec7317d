// Package matcher evaluates structural patterns against source text.
//
// Each language is served by one engine:
//
//   - bash: shell command patterns over a mvdan.cc/sh syntax tree
//   - python, javascript: tree-sitter S-expression queries
//   - gomod: require/replace directives read with golang.org/x/mod/modfile
//   - markdown, text: regular expressions with named groups
//
// Parsed sources are memoized in a Cache keyed by content identity.
package matcher

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"github.com/FeiyouG/skill-lab-sub000/contract"
)

// Query is a set of alternative patterns evaluated as one rule. Matches of
// different patterns on the same source span are merged; the first pattern
// to bind a capture wins.
type Query struct {
	ID       string
	Patterns []string
	// Constraints restrict captured values by name.
	Constraints map[string]*regexp.Regexp
	// Literal names tree-sitter captures reported as source text even when
	// the node is not a literal.
	Literal []string
}

// Match is one structural match. Lines are 1-based and relative to the
// source passed to Match.
type Match struct {
	RuleID    string
	StartLine int
	EndLine   int
	Text      string
	Captures  map[string]string
}

// PatternError reports a pattern that could not be compiled or evaluated.
type PatternError struct {
	RuleID   string
	Language contract.Language
	Err      error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("rule %s (%s): %v", e.RuleID, e.Language, e.Err)
}

func (e *PatternError) Unwrap() error { return e.Err }

type engineKind int

const (
	engineNone engineKind = iota
	engineShell
	engineTreeSitter
	engineModfile
	engineRegex
)

// engineFor is the single table mapping languages to engines.
func engineFor(lang contract.Language) engineKind {
	switch lang {
	case contract.LangBash:
		return engineShell
	case contract.LangPython, contract.LangJavaScript:
		return engineTreeSitter
	case contract.LangGoMod:
		return engineModfile
	case contract.LangMarkdown, contract.LangText:
		return engineRegex
	case contract.LangJSON, contract.LangYAML, contract.LangTOML, contract.LangBinary, contract.LangUnknown:
		return engineNone
	}
	return engineNone
}

// Matcher dispatches queries to the engine of each language.
type Matcher struct {
	cache *Cache
	ts    *treeSitter
	rx    *regexEngine
}

// New returns a Matcher backed by cache. A nil cache disables memoization.
func New(cache *Cache) *Matcher {
	return &Matcher{
		cache: cache,
		ts:    newTreeSitter(),
		rx:    newRegexEngine(),
	}
}

// Supports reports whether any engine handles lang.
func (m *Matcher) Supports(lang contract.Language) bool {
	return engineFor(lang) != engineNone
}

// Match evaluates q against src. Errors are *PatternError.
func (m *Matcher) Match(ctx context.Context, lang contract.Language, src string, q Query) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		matches []Match
		err     error
	)
	switch engineFor(lang) {
	case engineShell:
		matches, err = m.matchShell(src, q)
	case engineTreeSitter:
		matches, err = m.ts.match(ctx, m.cache, lang, src, q)
	case engineModfile:
		matches, err = m.matchModfile(src, q)
	case engineRegex:
		matches, err = m.rx.match(src, q)
	default:
		err = fmt.Errorf("no pattern engine for language %q", lang)
	}
	if err != nil {
		return nil, &PatternError{RuleID: q.ID, Language: lang, Err: err}
	}
	return matches, nil
}

// spanMerger collects matches keyed by source span and merges captures.
type spanMerger struct {
	order []spanKey
	byKey map[spanKey]*Match
}

type spanKey struct{ start, end int }

func newSpanMerger() *spanMerger {
	return &spanMerger{byKey: make(map[spanKey]*Match)}
}

func (s *spanMerger) add(start, end int, m Match) {
	key := spanKey{start, end}
	existing, ok := s.byKey[key]
	if !ok {
		if m.Captures == nil {
			m.Captures = map[string]string{}
		}
		s.byKey[key] = &m
		s.order = append(s.order, key)
		return
	}
	for k, v := range m.Captures {
		if _, bound := existing.Captures[k]; !bound {
			existing.Captures[k] = v
		}
	}
}

// matches returns merged matches in source order.
func (s *spanMerger) matches() []Match {
	keys := append([]spanKey(nil), s.order...)
	sort.SliceStable(keys, func(i, j int) bool {
		if keys[i].start != keys[j].start {
			return keys[i].start < keys[j].start
		}
		return keys[i].end < keys[j].end
	})
	out := make([]Match, 0, len(keys))
	for _, k := range keys {
		out = append(out, *s.byKey[k])
	}
	return out
}

func satisfies(constraints map[string]*regexp.Regexp, name, value string) bool {
	re, ok := constraints[name]
	if !ok || re == nil {
		return true
	}
	return re.MatchString(value)
}
