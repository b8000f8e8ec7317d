// Package rules is the static registry of detection rules. Each rule pairs
// structural patterns with the permission a match implies and the risks
// that permission carries.
package rules

import (
	"regexp"
	"strings"

	"github.com/FeiyouG/skill-lab-sub000/contract"
	"github.com/FeiyouG/skill-lab-sub000/matcher"
	"github.com/FeiyouG/skill-lab-sub000/policy"
)

// InferTool makes the permission's tool come from a capture.
const InferTool = "$TOOL"

// PermissionTemplate describes the permission built from a match.
type PermissionTemplate struct {
	Tool       string
	Scope      contract.Scope
	Permission string
	// ToolCapture names the capture holding the tool when Tool is InferTool.
	ToolCapture string
	// Metadata maps capture names to output keys.
	Metadata map[string]string
	// Generic marks catch-all rules whose matches yield to specific rules.
	Generic bool
}

// RiskTemplate is a risk before it is linked to permissions.
type RiskTemplate struct {
	Code     contract.RiskCode
	Severity contract.Severity
	Message  string
	GroupKey string
	Metadata map[string]string
	// LinkScopes lists the permission scopes a DESTRUCTIVE, PRIVILEGE or
	// PERSISTENCE risk links to. Empty means sys only.
	LinkScopes []contract.Scope
}

// RiskContext gives dynamic risk mappings access to run configuration.
type RiskContext struct {
	Policy   *policy.Evaluator
	Language contract.Language
}

// DynamicFunc computes risks from the matched permission (nil when the rule
// has none) and the finding.
type DynamicFunc func(ctx RiskContext, perm *contract.Permission, f contract.Finding) []RiskTemplate

type mappingKind int

const (
	staticMapping mappingKind = iota
	dynamicMapping
)

// RiskMapping is either a fixed template or a function.
type RiskMapping struct {
	kind    mappingKind
	static  RiskTemplate
	dynamic DynamicFunc
}

// Static returns a mapping that always yields t.
func Static(t RiskTemplate) RiskMapping {
	return RiskMapping{kind: staticMapping, static: t}
}

// Dynamic returns a mapping computed by fn.
func Dynamic(fn DynamicFunc) RiskMapping {
	return RiskMapping{kind: dynamicMapping, dynamic: fn}
}

// Template returns the fixed template of a static mapping.
func (m RiskMapping) Template() (RiskTemplate, bool) {
	return m.static, m.kind == staticMapping
}

// Resolve evaluates the mapping.
func (m RiskMapping) Resolve(ctx RiskContext, perm *contract.Permission, f contract.Finding) []RiskTemplate {
	switch m.kind {
	case staticMapping:
		return []RiskTemplate{m.static}
	case dynamicMapping:
		if m.dynamic == nil {
			return nil
		}
		return m.dynamic(ctx, perm, f)
	}
	return nil
}

// Rule is one detection rule.
type Rule struct {
	ID          string
	Language    contract.Language
	Description string
	Patterns    []string
	Constraints map[string]*regexp.Regexp
	Literal     []string
	Permission  *PermissionTemplate
	Risks       []RiskMapping
}

// Generic reports whether the rule is a catch-all.
func (r Rule) Generic() bool {
	return r.Permission != nil && r.Permission.Generic
}

// Query converts the rule for the pattern matcher.
func (r Rule) Query() matcher.Query {
	return matcher.Query{
		ID:          r.ID,
		Patterns:    r.Patterns,
		Constraints: r.Constraints,
		Literal:     r.Literal,
	}
}

// OutputKey returns the finding metadata key for a capture.
func (r Rule) OutputKey(capture string) string {
	if r.Permission != nil {
		if k, ok := r.Permission.Metadata[capture]; ok {
			return k
		}
	}
	return strings.ToLower(capture)
}

func re(s string) *regexp.Regexp {
	return regexp.MustCompile(s)
}
