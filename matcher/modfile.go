package matcher

import (
	"fmt"
	"strings"

	"golang.org/x/mod/modfile"

	"github.com/FeiyouG/skill-lab-sub000/contract"
)

// go.mod patterns name a directive: "require" or "replace". Each directive
// yields one match with captures MODULE and VERSION (for replace, the
// replacement path and version).

func parseGoMod(src string) (any, error) {
	return modfile.Parse("go.mod", []byte(src), nil)
}

func (m *Matcher) matchModfile(src string, q Query) ([]Match, error) {
	for _, p := range q.Patterns {
		switch strings.TrimSpace(p) {
		case "require", "replace":
		default:
			return nil, fmt.Errorf("unknown go.mod directive pattern %q", p)
		}
	}

	v, err := m.cache.load(contract.LangGoMod, src, func() (any, error) { return parseGoMod(src) })
	if err != nil {
		return nil, err
	}
	f := v.(*modfile.File)

	merger := newSpanMerger()
	add := func(line *modfile.Line, module, version string, indirect bool) {
		caps := map[string]string{"MODULE": module}
		if version != "" {
			caps["VERSION"] = version
		}
		if indirect {
			caps["INDIRECT"] = "true"
		}
		for name, val := range caps {
			if !satisfies(q.Constraints, name, val) {
				return
			}
		}
		start, end := 0, 0
		if line != nil {
			start, end = line.Start.Byte, line.End.Byte
		}
		match := Match{RuleID: q.ID, Text: strings.TrimSpace(module + " " + version), Captures: caps}
		if line != nil {
			match.StartLine, match.EndLine = line.Start.Line, line.End.Line
			if end <= len(src) && start <= end {
				match.Text = strings.TrimSpace(src[start:end])
			}
		}
		merger.add(start, end, match)
	}

	for _, p := range q.Patterns {
		switch strings.TrimSpace(p) {
		case "require":
			for _, r := range f.Require {
				add(r.Syntax, r.Mod.Path, r.Mod.Version, r.Indirect)
			}
		case "replace":
			for _, r := range f.Replace {
				add(r.Syntax, r.New.Path, r.New.Version, false)
			}
		}
	}
	return merger.matches(), nil
}
