package matcher

import (
	"fmt"
	"regexp"
	"sync"
)

// regexEngine matches RE2 patterns against documents. Named groups with an
// upper-case first letter become captures.
type regexEngine struct {
	mu       sync.Mutex
	compiled map[string]*regexp.Regexp
}

func newRegexEngine() *regexEngine {
	return &regexEngine{compiled: make(map[string]*regexp.Regexp)}
}

func (e *regexEngine) compile(p string) (*regexp.Regexp, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if re, ok := e.compiled[p]; ok {
		return re, nil
	}
	re, err := regexp.Compile(p)
	if err != nil {
		return nil, fmt.Errorf("compiling pattern: %w", err)
	}
	e.compiled[p] = re
	return re, nil
}

func (e *regexEngine) match(src string, q Query) ([]Match, error) {
	res := make([]*regexp.Regexp, 0, len(q.Patterns))
	for _, p := range q.Patterns {
		re, err := e.compile(p)
		if err != nil {
			return nil, err
		}
		res = append(res, re)
	}

	lines := newLineIndex(src)
	merger := newSpanMerger()
	for _, re := range res {
		names := re.SubexpNames()
	next:
		for _, loc := range re.FindAllStringSubmatchIndex(src, -1) {
			caps := make(map[string]string)
			for i, name := range names {
				if i == 0 || !isMetaCapture(name) || loc[2*i] < 0 {
					continue
				}
				v := src[loc[2*i]:loc[2*i+1]]
				if !satisfies(q.Constraints, name, v) {
					continue next
				}
				caps[name] = v
			}
			start, end := loc[0], loc[1]
			last := end
			if last > start {
				last--
			}
			merger.add(start, end, Match{
				RuleID:    q.ID,
				StartLine: lines.line(start),
				EndLine:   lines.line(last),
				Text:      src[start:end],
				Captures:  caps,
			})
		}
	}
	return merger.matches(), nil
}

// lineIndex maps byte offsets to 1-based line numbers.
type lineIndex []int

func newLineIndex(src string) lineIndex {
	idx := lineIndex{0}
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' {
			idx = append(idx, i+1)
		}
	}
	return idx
}

func (l lineIndex) line(offset int) int {
	lo, hi := 0, len(l)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if l[mid] <= offset {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo + 1
}
