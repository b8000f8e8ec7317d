// Package policy evaluates import names and network hosts against
// configured allow and deny lists.
package policy

import (
	"strings"

	"github.com/FeiyouG/skill-lab-sub000/contract"
)

// Lists is a pair of allow and deny entries.
type Lists struct {
	Allow []string `yaml:"allow" json:"allow,omitempty" mapstructure:"allow"`
	Deny  []string `yaml:"deny" json:"deny,omitempty" mapstructure:"deny"`
}

// Policy holds per-language import lists and network domain lists.
// Import list keys are policy language names: python, javascript, go, bash.
type Policy struct {
	Imports map[string]Lists `yaml:"imports" json:"imports,omitempty" mapstructure:"imports"`
	Network Lists            `yaml:"network" json:"network" mapstructure:"network"`
}

// Decision is the outcome of a policy check.
type Decision string

const (
	DecisionDefault Decision = "default"
	DecisionAllowed Decision = "allowed"
	DecisionDenied  Decision = "denied"
)

// Decide combines separate allow and deny answers. Deny wins.
func Decide(allowed, denied bool) Decision {
	switch {
	case denied:
		return DecisionDenied
	case allowed:
		return DecisionAllowed
	default:
		return DecisionDefault
	}
}

// Language maps a file language to its policy language name.
func Language(lang contract.Language) string {
	switch lang {
	case contract.LangGoMod:
		return "go"
	default:
		return string(lang)
	}
}

type importLists struct {
	allow map[string]bool
	deny  map[string]bool
}

// Evaluator answers allow/deny questions. It is immutable after New and
// safe for concurrent use.
type Evaluator struct {
	imports map[string]importLists
	allow   *DomainMatcher
	deny    *DomainMatcher
}

// New compiles a Policy.
func New(p Policy) *Evaluator {
	e := &Evaluator{
		imports: make(map[string]importLists, len(p.Imports)),
		allow:   NewDomainMatcher(p.Network.Allow),
		deny:    NewDomainMatcher(p.Network.Deny),
	}
	for lang, l := range p.Imports {
		e.imports[strings.ToLower(lang)] = importLists{
			allow: lowerSet(l.Allow),
			deny:  lowerSet(l.Deny),
		}
	}
	return e
}

func lowerSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, it := range items {
		if it = strings.ToLower(strings.TrimSpace(it)); it != "" {
			set[it] = true
		}
	}
	return set
}

// ImportDenied reports whether name is on the deny list for lang.
func (e *Evaluator) ImportDenied(lang contract.Language, name string) bool {
	return matchImport(e.imports[Language(lang)].deny, name)
}

// ImportAllowed reports whether name is on the allow list for lang.
func (e *Evaluator) ImportAllowed(lang contract.Language, name string) bool {
	return matchImport(e.imports[Language(lang)].allow, name)
}

// Import returns the combined decision for an import.
func (e *Evaluator) Import(lang contract.Language, name string) Decision {
	return Decide(e.ImportAllowed(lang, name), e.ImportDenied(lang, name))
}

// DomainDenied reports whether host is on the network deny list.
func (e *Evaluator) DomainDenied(host string) bool {
	return e.deny.Matches(host)
}

// DomainAllowed reports whether host is on the network allow list.
// Loopback hosts are always allowed.
func (e *Evaluator) DomainAllowed(host string) bool {
	return IsLocalhost(host) || e.allow.Matches(host)
}

// Domain returns the combined decision for a network host.
func (e *Evaluator) Domain(host string) Decision {
	return Decide(e.DomainAllowed(host), e.DomainDenied(host))
}

// matchImport compares the import and each of its parents against the set:
// os.path checks os.path then os, @scope/pkg/sub checks down to @scope/pkg,
// node:fs is checked as fs.
func matchImport(set map[string]bool, name string) bool {
	if len(set) == 0 {
		return false
	}
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.TrimPrefix(name, "node:")
	for name != "" {
		if set[name] {
			return true
		}
		i := strings.LastIndexAny(name, "./")
		if i <= 0 {
			return false
		}
		if name[i] == '/' && strings.HasPrefix(name, "@") && strings.Count(name[:i], "/") == 0 {
			return false
		}
		name = name[:i]
	}
	return false
}
