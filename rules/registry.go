package rules

import (
	"sort"

	"github.com/FeiyouG/skill-lab-sub000/contract"
)

// ForLanguage returns the rules registered for lang. Languages without
// rules return nil.
func ForLanguage(lang contract.Language) []Rule {
	switch lang {
	case contract.LangBash:
		return bashRules
	case contract.LangPython:
		return pythonRules
	case contract.LangJavaScript:
		return javascriptRules
	case contract.LangGoMod:
		return goModRules
	case contract.LangMarkdown, contract.LangText:
		return documentRules(lang)
	case contract.LangJSON, contract.LangYAML, contract.LangTOML, contract.LangBinary, contract.LangUnknown:
		return nil
	}
	return nil
}

// HasRules reports whether any rule targets lang.
func HasRules(lang contract.Language) bool {
	return len(ForLanguage(lang)) > 0
}

// All returns every registered rule ordered by language then id.
func All() []Rule {
	var out []Rule
	for _, lang := range contract.Languages {
		out = append(out, ForLanguage(lang)...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Language != out[j].Language {
			return out[i].Language < out[j].Language
		}
		return out[i].ID < out[j].ID
	})
	return out
}

var index = func() map[string]Rule {
	m := make(map[string]Rule)
	for _, lang := range contract.Languages {
		for _, r := range ForLanguage(lang) {
			if _, dup := m[r.ID]; !dup {
				m[r.ID] = r
			}
		}
	}
	return m
}()

// Lookup finds a rule by id.
func Lookup(id string) (Rule, bool) {
	r, ok := index[id]
	return r, ok
}
