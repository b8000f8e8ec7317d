package analyzer

import (
	"fmt"
	"slices"

	"github.com/FeiyouG/skill-lab-sub000/contract"
)

type refKey struct {
	file    string
	line    int
	lineEnd int
	kind    contract.ReferenceKind
}

type riskKey struct {
	code contract.RiskCode
	file string
	line int
}

// Synthesize merges permissions by id and risks by (type, file, line),
// assigns risk ids and links every permission to the risks it carries.
// Order of first appearance is preserved. The input state is not modified.
func Synthesize(in *contract.AnalyzerState) *contract.AnalyzerState {
	st := in.Clone()
	st.Permissions = mergePermissions(st.Permissions)
	st.Risks = mergeRisks(st.Risks)

	index := make(map[string]int, len(st.Permissions))
	for i, p := range st.Permissions {
		index[p.ID] = i
	}
	for i := range st.Risks {
		r := &st.Risks[i]
		r.ID = fmt.Sprintf("risk-%s-%d", r.Type, i+1)
		for _, pid := range r.Permissions {
			if j, ok := index[pid]; ok {
				st.Permissions[j].Risks = appendUnique(st.Permissions[j].Risks, r.ID)
			}
		}
	}
	return st
}

func mergePermissions(in []contract.Permission) []contract.Permission {
	out := make([]contract.Permission, 0, len(in))
	index := make(map[string]int, len(in))
	for _, p := range in {
		j, ok := index[p.ID]
		if !ok {
			index[p.ID] = len(out)
			p.References = dedupReferences(nil, p.References)
			p.Risks = appendUnique(nil, p.Risks...)
			out = append(out, p)
			continue
		}
		m := &out[j]
		m.References = dedupReferences(m.References, p.References)
		m.Risks = appendUnique(m.Risks, p.Risks...)
	}
	return out
}

func dedupReferences(base, add []contract.Reference) []contract.Reference {
	seen := make(map[refKey]bool, len(base)+len(add))
	for _, r := range base {
		seen[keyOf(r)] = true
	}
	for _, r := range add {
		k := keyOf(r)
		if seen[k] {
			continue
		}
		seen[k] = true
		base = append(base, r)
	}
	return base
}

func keyOf(r contract.Reference) refKey {
	return refKey{file: r.File, line: r.Line, lineEnd: r.LineEnd, kind: r.Kind}
}

func mergeRisks(in []contract.Risk) []contract.Risk {
	out := make([]contract.Risk, 0, len(in))
	index := make(map[riskKey]int, len(in))
	for _, r := range in {
		k := riskKey{code: r.Type, file: r.Reference.File, line: r.Reference.Line}
		j, ok := index[k]
		if !ok {
			index[k] = len(out)
			r.Permissions = appendUnique(nil, r.Permissions...)
			out = append(out, r)
			continue
		}
		m := &out[j]
		m.Permissions = appendUnique(m.Permissions, r.Permissions...)
		if r.Severity.Rank() > m.Severity.Rank() {
			m.Severity = r.Severity
			m.Message = r.Message
		}
	}
	return out
}

func appendUnique(dst []string, items ...string) []string {
	for _, s := range items {
		if !slices.Contains(dst, s) {
			dst = append(dst, s)
		}
	}
	return dst
}
