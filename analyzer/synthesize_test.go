package analyzer

import (
	"slices"
	"testing"

	"github.com/FeiyouG/skill-lab-sub000/contract"
)

func TestSynthesize_MergesPermissions(t *testing.T) {
	a := perm("curl-x", contract.ScopeNet, "fetch", contract.SourceDetected, []string{"x"}, ref("a.sh", 1))
	b := perm("curl-x", contract.ScopeNet, "fetch", contract.SourceDetected, []string{"x"}, ref("a.sh", 1), ref("b.sh", 7))
	c := perm("ls", contract.ScopeFS, "list", contract.SourceDetected, []string{"*"}, ref("a.sh", 2))

	in := &contract.AnalyzerState{Permissions: []contract.Permission{a, c, b}}
	st := Synthesize(in)

	if len(in.Permissions) != 3 {
		t.Fatal("input state was modified")
	}
	if len(st.Permissions) != 2 {
		t.Fatalf("expected 2 permissions, got %+v", st.Permissions)
	}
	if st.Permissions[0].ID != "curl-x" || st.Permissions[1].ID != "ls" {
		t.Errorf("order = %s, %s", st.Permissions[0].ID, st.Permissions[1].ID)
	}
	refs := st.Permissions[0].References
	if len(refs) != 2 || refs[0].File != "a.sh" || refs[1].File != "b.sh" {
		t.Errorf("references = %+v", refs)
	}

	seen := map[refKey]bool{}
	for _, p := range st.Permissions {
		for _, r := range p.References {
			k := keyOf(r)
			if seen[k] {
				t.Errorf("duplicate reference %+v on %s", r, p.ID)
			}
			seen[k] = true
		}
		clear(seen)
	}
}

func TestSynthesize_DedupesRisks(t *testing.T) {
	in := &contract.AnalyzerState{
		Permissions: []contract.Permission{
			perm("rm", contract.ScopeFS, "delete", contract.SourceDetected, []string{"/"}, ref("SKILL.md", 4)),
			perm("bash", contract.ScopeSys, "shell", contract.SourceDetected, []string{"*"}, ref("SKILL.md", 4)),
		},
		Risks: []contract.Risk{
			{Type: contract.RiskRecursiveDelete, Severity: contract.SeverityWarning, Reference: ref("SKILL.md", 4), Permissions: []string{"rm"}},
			{Type: contract.RiskRecursiveDelete, Severity: contract.SeverityCritical, Reference: ref("SKILL.md", 4), Permissions: []string{"bash", "rm"}},
			{Type: contract.RiskSudo, Severity: contract.SeverityWarning, Reference: ref("SKILL.md", 4), Permissions: []string{"bash"}},
		},
	}
	st := Synthesize(in)

	if len(st.Risks) != 2 {
		t.Fatalf("expected 2 risks, got %+v", st.Risks)
	}
	first := st.Risks[0]
	if first.ID != "risk-DESTRUCTIVE:recursive_delete-1" {
		t.Errorf("id = %s", first.ID)
	}
	if first.Severity != contract.SeverityCritical {
		t.Errorf("severity = %s, want critical", first.Severity)
	}
	if !slices.Equal(first.Permissions, []string{"rm", "bash"}) {
		t.Errorf("permissions = %v", first.Permissions)
	}
	if st.Risks[1].ID != "risk-PRIVILEGE:sudo-2" {
		t.Errorf("id = %s", st.Risks[1].ID)
	}

	rm, _ := st.Permission("rm")
	bash, _ := st.Permission("bash")
	if !slices.Equal(rm.Risks, []string{first.ID}) {
		t.Errorf("rm risks = %v", rm.Risks)
	}
	if !slices.Equal(bash.Risks, []string{first.ID, st.Risks[1].ID}) {
		t.Errorf("bash risks = %v", bash.Risks)
	}
}

func TestSynthesize_Idempotent(t *testing.T) {
	in := &contract.AnalyzerState{
		Permissions: []contract.Permission{
			perm("bash", contract.ScopeSys, "shell", contract.SourceDetected, []string{"*"}, ref("a.sh", 1)),
		},
		Risks: []contract.Risk{
			{Type: contract.RiskSudo, Severity: contract.SeverityWarning, Reference: ref("a.sh", 1), Permissions: []string{"bash"}},
		},
	}
	once := Synthesize(in)
	twice := Synthesize(once)
	if once.Risks[0].ID != twice.Risks[0].ID {
		t.Errorf("ids differ: %s vs %s", once.Risks[0].ID, twice.Risks[0].ID)
	}
	if !slices.Equal(once.Permissions[0].Risks, twice.Permissions[0].Risks) {
		t.Errorf("permission risks differ: %v vs %v", once.Permissions[0].Risks, twice.Permissions[0].Risks)
	}
}
