package analyzer

import (
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/FeiyouG/skill-lab-sub000/contract"
	"github.com/FeiyouG/skill-lab-sub000/policy"
	"github.com/FeiyouG/skill-lab-sub000/rules"
)

// RemoteCodeWarning is added once to any run with a remote code execution
// risk.
const RemoteCodeWarning = "remote script content analysis is not implemented"

// Infer turns findings, inferred dependency permissions and declared
// frontmatter permissions into risks linked to the permissions that
// justify them. Risks no permission justifies are dropped. The input state
// is not modified.
func Infer(in *contract.AnalyzerState, ev *policy.Evaluator, log *zap.Logger) *contract.AnalyzerState {
	if log == nil {
		log = zap.NewNop()
	}
	st := in.Clone()

	var risks []contract.Risk
	emit := func(t rules.RiskTemplate, ref contract.Reference, perms []string) {
		if len(perms) == 0 {
			log.Debug("risk dropped without permissions",
				zap.String("type", string(t.Code)),
				zap.String("file", ref.File),
				zap.Int("line", ref.Line))
			return
		}
		risks = append(risks, contract.Risk{
			Type:        t.Code,
			GroupKey:    t.GroupKey,
			Severity:    t.Severity,
			Message:     t.Message,
			Reference:   ref,
			Permissions: perms,
			Metadata:    cleanMetadata(t.Metadata),
		})
	}

	for _, f := range st.Findings {
		r, ok := rules.Lookup(f.RuleID)
		if !ok || len(r.Risks) == 0 {
			continue
		}
		perm := matchedPermission(st.Permissions, f)
		rctx := rules.RiskContext{Policy: ev, Language: r.Language}
		for _, mapping := range r.Risks {
			for _, t := range mapping.Resolve(rctx, perm, f) {
				emit(t, f.Reference, linkPermissions(t, f, perm, st.Permissions))
			}
		}
	}

	for _, p := range st.Permissions {
		if p.Source != contract.SourceInferred || p.Scope != contract.ScopeDep {
			continue
		}
		ref := firstReference(p)
		for _, t := range dependencyRisks(ev, p) {
			emit(t, ref, []string{p.ID})
		}
	}

	for _, p := range st.Permissions {
		if p.Source != contract.SourceFrontmatter {
			continue
		}
		ref := firstReference(p)
		for _, t := range declaredRisks(ev, p) {
			emit(t, ref, []string{p.ID})
		}
	}

	st.Risks = append(st.Risks, risks...)
	for _, r := range st.Risks {
		if r.Type == contract.RiskRemoteCodeExec {
			st.Warn(RemoteCodeWarning)
			break
		}
	}
	return st
}

// matchedPermission returns the permission a finding produced or, failing
// that, the first permission overlapping it.
func matchedPermission(perms []contract.Permission, f contract.Finding) *contract.Permission {
	if f.PermissionID != "" {
		for i := range perms {
			if perms[i].ID == f.PermissionID {
				return &perms[i]
			}
		}
	}
	for i := range perms {
		if overlaps(perms[i], f.Reference) {
			return &perms[i]
		}
	}
	return nil
}

func overlaps(p contract.Permission, ref contract.Reference) bool {
	for _, r := range p.References {
		if r.Overlaps(ref) {
			return true
		}
	}
	return false
}

// linkPermissions selects the permissions a risk is attached to. The choice
// depends on the risk category.
func linkPermissions(t rules.RiskTemplate, f contract.Finding, matched *contract.Permission, perms []contract.Permission) []string {
	var ids []string
	add := func(id string) {
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	addMatched := func() {
		if matched != nil {
			add(matched.ID)
		}
	}
	each := func(keep func(contract.Permission) bool) {
		for _, p := range perms {
			if keep(p) {
				add(p.ID)
			}
		}
	}
	overlapping := func(scopes ...contract.Scope) func(contract.Permission) bool {
		return func(p contract.Permission) bool {
			return slices.Contains(scopes, p.Scope) && overlaps(p, f.Reference)
		}
	}

	switch t.Code.Category() {
	case "PROMPT":
		each(func(contract.Permission) bool { return true })
	case "INJECTION":
		each(func(p contract.Permission) bool {
			return p.Scope == contract.ScopeSys || p.Scope == contract.ScopeNet
		})
	case "NETWORK":
		if t.Code == contract.RiskRemoteCodeExec {
			each(overlapping(contract.ScopeSys))
		}
		addMatched()
	case "SECRETS":
		each(overlapping(contract.ScopeEnv))
	case "DESTRUCTIVE", "PRIVILEGE", "PERSISTENCE":
		scopes := t.LinkScopes
		if len(scopes) == 0 {
			scopes = []contract.Scope{contract.ScopeSys}
		}
		each(overlapping(scopes...))
	case "DEPENDENCY", "REFERENCE":
		addMatched()
	}
	return ids
}

// dependencyRisks evaluates an import or sourced file found during
// discovery.
func dependencyRisks(ev *policy.Evaluator, p contract.Permission) []rules.RiskTemplate {
	if len(p.Args) == 0 || p.Args[0] == contract.WildcardArg {
		return nil
	}
	target := p.Args[0]
	lang := contract.Language(p.Metadata["language"])
	if lang == "" {
		lang = contract.LangBash
	}
	switch p.Permission {
	case "source":
		return []rules.RiskTemplate{rules.UnresolvedReferenceRisk(lang, target, true)}
	case "import":
		if strings.HasPrefix(target, ".") || strings.HasPrefix(target, "/") {
			return []rules.RiskTemplate{rules.UnresolvedReferenceRisk(lang, target, false)}
		}
		return rules.DependencyRisks(ev, lang, target, "import")
	}
	return nil
}

func firstReference(p contract.Permission) contract.Reference {
	if len(p.References) > 0 {
		return p.References[0]
	}
	return contract.Reference{Kind: contract.RefFrontmatter}
}

func cleanMetadata(m map[string]string) map[string]string {
	var out map[string]string
	for k, v := range m {
		if v == "" {
			continue
		}
		if out == nil {
			out = make(map[string]string, len(m))
		}
		out[k] = v
	}
	return out
}
