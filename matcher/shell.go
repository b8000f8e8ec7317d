package matcher

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/FeiyouG/skill-lab-sub000/contract"
	"mvdan.cc/sh/v3/syntax"
)

// Shell patterns are whitespace separated words:
//
//	curl $$$ARGS                command name, then any words
//	rm -rf $PATH                exact word list
//	$FETCH $$$ $URL $$$ | $SHELL $$$
//	                            pipeline: stages match in order, gaps allowed
//	curl --data=$DATA $$$       prefix capture
//	echo $$$ >> $FILE           redirections appear as operator and target
//	${$NAME}                    any parameter expansion, name captured
//
// $UPPER binds one word, $$$ or $$$UPPER binds zero or more. The first word
// is compared by base name, so /usr/bin/curl matches curl.

type shellElemKind int

const (
	elemLit shellElemKind = iota
	elemVar
	elemVariadic
	elemPrefix
)

type shellElem struct {
	kind   shellElemKind
	lit    string
	name   string
	prefix string
}

type shellPattern struct {
	stages    [][]shellElem
	paramName string // set for ${$NAME} patterns
}

var metaVarRe = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

// wrappers are commands that run their arguments as another command.
var wrappers = map[string]bool{
	"sudo":    true,
	"env":     true,
	"nohup":   true,
	"time":    true,
	"exec":    true,
	"command": true,
	"doas":    true,
}

func compileShellPattern(p string) (shellPattern, error) {
	p = strings.TrimSpace(p)
	if strings.HasPrefix(p, "${$") && strings.HasSuffix(p, "}") {
		name := p[3 : len(p)-1]
		if !metaVarRe.MatchString(name) {
			return shellPattern{}, fmt.Errorf("invalid parameter pattern %q", p)
		}
		return shellPattern{paramName: name}, nil
	}

	var sp shellPattern
	var stage []shellElem
	for _, f := range strings.Fields(p) {
		if f == "|" {
			if len(stage) == 0 {
				return shellPattern{}, fmt.Errorf("empty pipeline stage in %q", p)
			}
			sp.stages = append(sp.stages, stage)
			stage = nil
			continue
		}
		stage = append(stage, compileShellElem(f))
	}
	if len(stage) == 0 {
		return shellPattern{}, fmt.Errorf("empty pipeline stage in %q", p)
	}
	sp.stages = append(sp.stages, stage)
	return sp, nil
}

func compileShellElem(f string) shellElem {
	switch {
	case f == "$$$":
		return shellElem{kind: elemVariadic}
	case strings.HasPrefix(f, "$$$") && metaVarRe.MatchString(f[3:]):
		return shellElem{kind: elemVariadic, name: f[3:]}
	case strings.HasPrefix(f, "$") && metaVarRe.MatchString(f[1:]):
		return shellElem{kind: elemVar, name: f[1:]}
	}
	if i := strings.Index(f, "=$"); i > 0 && metaVarRe.MatchString(f[i+2:]) {
		return shellElem{kind: elemPrefix, prefix: f[:i+1], name: f[i+2:]}
	}
	if len(f) >= 2 && (f[0] == '\'' || f[0] == '"') && f[len(f)-1] == f[0] {
		f = f[1 : len(f)-1]
	}
	return shellElem{kind: elemLit, lit: f}
}

type shellUnit struct {
	stmts      []*syntax.Stmt
	src        string
	lineOffset int
	byteOffset int
}

type shellDoc struct {
	units []shellUnit
}

// parseShell parses the whole source, falling back to one parse per line
// when the source as a whole is not valid shell.
func parseShell(src string) (any, error) {
	p := syntax.NewParser(syntax.KeepComments(false), syntax.Variant(syntax.LangBash))
	f, err := p.Parse(strings.NewReader(src), "")
	if err == nil {
		return &shellDoc{units: []shellUnit{{stmts: f.Stmts, src: src}}}, nil
	}

	doc := &shellDoc{}
	offset := 0
	for i, line := range strings.Split(src, "\n") {
		start := offset
		offset += len(line) + 1
		if strings.TrimSpace(line) == "" {
			continue
		}
		f, err := p.Parse(strings.NewReader(line), "")
		if err != nil {
			continue
		}
		doc.units = append(doc.units, shellUnit{stmts: f.Stmts, src: line, lineOffset: i, byteOffset: start})
	}
	return doc, nil
}

type shellNode struct {
	start, end int
	line, last int
	text       string
	stages     [][]string
	pipeline   bool
	param      string
}

func (m *Matcher) matchShell(src string, q Query) ([]Match, error) {
	pats := make([]shellPattern, 0, len(q.Patterns))
	for _, p := range q.Patterns {
		sp, err := compileShellPattern(p)
		if err != nil {
			return nil, err
		}
		pats = append(pats, sp)
	}

	v, err := m.cache.load(contract.LangBash, src, func() (any, error) { return parseShell(src) })
	if err != nil {
		return nil, err
	}
	doc := v.(*shellDoc)

	merger := newSpanMerger()
	for _, u := range doc.units {
		for _, n := range collectShellNodes(u) {
			for _, sp := range pats {
				caps, ok := sp.match(n, q.Constraints)
				if !ok {
					continue
				}
				merger.add(n.start, n.end, Match{
					RuleID:    q.ID,
					StartLine: n.line,
					EndLine:   n.last,
					Text:      n.text,
					Captures:  caps,
				})
			}
		}
	}
	return merger.matches(), nil
}

func collectShellNodes(u shellUnit) []shellNode {
	var nodes []shellNode
	inner := make(map[*syntax.Stmt]bool)

	mk := func(n syntax.Node) shellNode {
		start, end := int(n.Pos().Offset()), int(n.End().Offset())
		if end > len(u.src) {
			end = len(u.src)
		}
		return shellNode{
			start: u.byteOffset + start,
			end:   u.byteOffset + end,
			line:  int(n.Pos().Line()) + u.lineOffset,
			last:  int(n.End().Line()) + u.lineOffset,
			text:  u.src[start:end],
		}
	}

	for _, st := range u.stmts {
		syntax.Walk(st, func(node syntax.Node) bool {
			switch x := node.(type) {
			case *syntax.ParamExp:
				if x.Param != nil && metaVarNameRe.MatchString(x.Param.Value) {
					n := mk(x)
					n.param = x.Param.Value
					nodes = append(nodes, n)
				}
			case *syntax.Stmt:
				switch c := x.Cmd.(type) {
				case *syntax.CallExpr, *syntax.DeclClause:
					words := stmtWords(x, u.src)
					if len(words) == 0 {
						return true
					}
					n := mk(x)
					n.stages = [][]string{words}
					nodes = append(nodes, n)
				case *syntax.BinaryCmd:
					if isPipe(c.Op) && !inner[x] {
						n := mk(x)
						n.pipeline = true
						flattenPipe(x, u.src, &n.stages, inner)
						nodes = append(nodes, n)
					}
				}
			}
			return true
		})
	}
	return nodes
}

var metaVarNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func isPipe(op syntax.BinCmdOperator) bool {
	return op == syntax.Pipe || op == syntax.PipeAll
}

func flattenPipe(s *syntax.Stmt, src string, stages *[][]string, inner map[*syntax.Stmt]bool) {
	bc, ok := s.Cmd.(*syntax.BinaryCmd)
	if !ok || !isPipe(bc.Op) {
		*stages = append(*stages, stmtWords(s, src))
		return
	}
	for _, side := range []*syntax.Stmt{bc.X, bc.Y} {
		if sb, ok := side.Cmd.(*syntax.BinaryCmd); ok && isPipe(sb.Op) {
			inner[side] = true
		}
		flattenPipe(side, src, stages, inner)
	}
}

// stmtWords renders a simple command as words, followed by redirection
// operators and their targets.
func stmtWords(s *syntax.Stmt, src string) []string {
	var words []string
	switch c := s.Cmd.(type) {
	case *syntax.CallExpr:
		for _, w := range c.Args {
			words = append(words, wordString(w, src))
		}
	case *syntax.DeclClause:
		if c.Variant != nil {
			words = append(words, c.Variant.Value)
		}
		for _, a := range c.Args {
			switch {
			case a.Naked && a.Name != nil:
				words = append(words, a.Name.Value)
			case a.Naked && a.Value != nil:
				words = append(words, wordString(a.Value, src))
			case a.Name != nil && a.Value != nil:
				words = append(words, a.Name.Value+"="+wordString(a.Value, src))
			case a.Name != nil:
				words = append(words, a.Name.Value+"=")
			}
		}
	}
	if len(words) == 0 {
		return nil
	}
	for _, r := range s.Redirs {
		if r.Op == syntax.Hdoc || r.Op == syntax.DashHdoc {
			continue
		}
		words = append(words, r.Op.String())
		if r.Word != nil {
			words = append(words, wordString(r.Word, src))
		}
	}
	return words
}

// wordString renders a word with quotes removed. Expansions keep their
// source text so unresolved values start with "$".
func wordString(w *syntax.Word, src string) string {
	var b strings.Builder
	for _, p := range w.Parts {
		writePart(&b, p, src)
	}
	return b.String()
}

func writePart(b *strings.Builder, p syntax.WordPart, src string) {
	switch x := p.(type) {
	case *syntax.Lit:
		b.WriteString(x.Value)
	case *syntax.SglQuoted:
		b.WriteString(x.Value)
	case *syntax.DblQuoted:
		for _, q := range x.Parts {
			writePart(b, q, src)
		}
	default:
		start, end := int(p.Pos().Offset()), int(p.End().Offset())
		if start <= end && end <= len(src) {
			b.WriteString(src[start:end])
		}
	}
}

func (sp shellPattern) match(n shellNode, cons map[string]*regexp.Regexp) (map[string]string, bool) {
	if sp.paramName != "" {
		if n.param == "" || !satisfies(cons, sp.paramName, n.param) {
			return nil, false
		}
		return map[string]string{sp.paramName: n.param}, true
	}
	if n.param != "" {
		return nil, false
	}

	if len(sp.stages) == 1 {
		if n.pipeline {
			return nil, false
		}
		return matchCommand(sp.stages[0], n.stages[0], map[string]string{}, cons)
	}
	if !n.pipeline {
		return nil, false
	}
	return matchStages(sp.stages, n.stages, map[string]string{}, cons)
}

// matchCommand tries the words as written and, for wrapper commands such
// as sudo, the wrapped command.
func matchCommand(elems []shellElem, words []string, caps map[string]string, cons map[string]*regexp.Regexp) (map[string]string, bool) {
	for len(words) > 0 {
		if out, ok := matchWords(elems, words, 0, caps, cons); ok {
			return out, true
		}
		if !wrappers[path.Base(words[0])] {
			break
		}
		words = words[1:]
		for len(words) > 0 && (strings.HasPrefix(words[0], "-") || strings.Contains(words[0], "=")) {
			words = words[1:]
		}
	}
	return nil, false
}

// matchStages finds pipeline stages, in order, matching each pattern stage.
func matchStages(pstages [][]shellElem, stages [][]string, caps map[string]string, cons map[string]*regexp.Regexp) (map[string]string, bool) {
	if len(pstages) == 0 {
		return caps, true
	}
	for i, words := range stages {
		if len(words) == 0 {
			continue
		}
		next, ok := matchCommand(pstages[0], words, caps, cons)
		if !ok {
			continue
		}
		if out, ok := matchStages(pstages[1:], stages[i+1:], next, cons); ok {
			return out, true
		}
	}
	return nil, false
}

func matchWords(elems []shellElem, words []string, pos int, caps map[string]string, cons map[string]*regexp.Regexp) (map[string]string, bool) {
	if len(elems) == 0 {
		if len(words) == 0 {
			return caps, true
		}
		return nil, false
	}

	e := elems[0]
	if e.kind == elemVariadic {
		for n := 0; n <= len(words); n++ {
			next := caps
			if e.name != "" {
				var ok bool
				if next, ok = bind(caps, e.name, strings.Join(words[:n], " "), cons); !ok {
					continue
				}
			}
			if out, ok := matchWords(elems[1:], words[n:], pos+n, next, cons); ok {
				return out, true
			}
		}
		return nil, false
	}

	if len(words) == 0 {
		return nil, false
	}
	w := words[0]
	if pos == 0 {
		w = path.Base(w)
	}

	next := caps
	switch e.kind {
	case elemLit:
		if w != e.lit {
			return nil, false
		}
	case elemVar:
		var ok bool
		if next, ok = bind(caps, e.name, w, cons); !ok {
			return nil, false
		}
	case elemPrefix:
		if !strings.HasPrefix(words[0], e.prefix) {
			return nil, false
		}
		var ok bool
		if next, ok = bind(caps, e.name, strings.TrimPrefix(words[0], e.prefix), cons); !ok {
			return nil, false
		}
	}
	return matchWords(elems[1:], words[1:], pos+1, next, cons)
}

// bind returns a copy of caps with name set to value. A name bound twice
// must bind the same value.
func bind(caps map[string]string, name, value string, cons map[string]*regexp.Regexp) (map[string]string, bool) {
	if prev, ok := caps[name]; ok {
		return caps, prev == value
	}
	if !satisfies(cons, name, value) {
		return nil, false
	}
	out := make(map[string]string, len(caps)+1)
	for k, v := range caps {
		out[k] = v
	}
	out[name] = value
	return out, true
}
