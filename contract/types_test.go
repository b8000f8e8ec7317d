package contract

import (
	"context"
	"testing"
)

// Compile-time interface check: verify Repository is implementable.
var _ Repository = (*repoStub)(nil)

type repoStub struct{}

func (repoStub) ListFiles(context.Context, string) ([]FileInfo, error) { return nil, nil }
func (repoStub) ReadText(context.Context, string) (string, error)      { return "", nil }
func (repoStub) ReadManifest(context.Context) ([]byte, error)          { return nil, nil }

func TestReferenceOverlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b Reference
		want bool
	}{
		{"same line", Reference{File: "a.sh", Line: 3}, Reference{File: "a.sh", Line: 3}, true},
		{"inside range", Reference{File: "a.sh", Line: 2, LineEnd: 6}, Reference{File: "a.sh", Line: 4}, true},
		{"touching end", Reference{File: "a.sh", Line: 2, LineEnd: 4}, Reference{File: "a.sh", Line: 4, LineEnd: 9}, true},
		{"disjoint", Reference{File: "a.sh", Line: 2, LineEnd: 3}, Reference{File: "a.sh", Line: 5}, false},
		{"other file", Reference{File: "a.sh", Line: 3}, Reference{File: "b.sh", Line: 3}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Overlaps(tt.b); got != tt.want {
				t.Errorf("Overlaps = %v, want %v", got, tt.want)
			}
			if got := tt.b.Overlaps(tt.a); got != tt.want {
				t.Errorf("reverse Overlaps = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRiskCodeCategory(t *testing.T) {
	if got := RiskRemoteCodeExec.Category(); got != "NETWORK" {
		t.Errorf("Category = %q, want NETWORK", got)
	}
	if got := RiskCode("plain").Category(); got != "plain" {
		t.Errorf("Category = %q, want plain", got)
	}
}

func TestSeverityRank(t *testing.T) {
	if !(SeverityInfo.Rank() < SeverityWarning.Rank() && SeverityWarning.Rank() < SeverityCritical.Rank()) {
		t.Error("expected info < warning < critical")
	}
}

func TestRoleRank(t *testing.T) {
	order := []Role{RoleEntrypoint, RoleReadme, RoleReference, RoleLicense, RoleScript, RoleConfig, RoleRegular}
	for i := 1; i < len(order); i++ {
		if order[i-1].Rank() >= order[i].Rank() {
			t.Errorf("%s should rank before %s", order[i-1], order[i])
		}
	}
}

func TestPermissionHasWildcard(t *testing.T) {
	if !(Permission{Args: []string{"*"}}).HasWildcard() {
		t.Error("expected * to be a wildcard")
	}
	if !(Permission{Args: []string{"src/*.py"}}).HasWildcard() {
		t.Error("expected glob to be a wildcard")
	}
	if (Permission{Args: []string{"status"}}).HasWildcard() {
		t.Error("status is not a wildcard")
	}
}

func TestStateCloneIsolation(t *testing.T) {
	s := &AnalyzerState{
		Permissions: []Permission{{ID: "git-status", Args: []string{"status"}, Metadata: map[string]string{"a": "b"}}},
		Risks:       []Risk{{ID: "risk-x-1", Permissions: []string{"git-status"}}},
		Warnings:    []string{"w"},
	}
	c := s.Clone()
	c.Permissions[0].Risks = append(c.Permissions[0].Risks, "risk-x-1")
	c.Permissions[0].Metadata["a"] = "changed"
	c.Risks[0].Permissions[0] = "other"
	c.Warn("w2")
	c.Skip("x", SkipBinary)

	if len(s.Permissions[0].Risks) != 0 {
		t.Error("clone leaked permission risks into original")
	}
	if s.Permissions[0].Metadata["a"] != "b" {
		t.Error("clone leaked metadata into original")
	}
	if s.Risks[0].Permissions[0] != "git-status" {
		t.Error("clone leaked risk permissions into original")
	}
	if len(s.Warnings) != 1 || len(s.Metadata.SkippedFiles) != 0 {
		t.Error("clone leaked bookkeeping into original")
	}
}

func TestStateWarnDedup(t *testing.T) {
	s := &AnalyzerState{}
	s.Warn("once")
	s.Warn("once")
	if len(s.Warnings) != 1 {
		t.Errorf("Warnings = %v, want one entry", s.Warnings)
	}
}

func TestRiskLevelRank(t *testing.T) {
	if LevelSafe.Rank() != 0 || LevelAvoid.Rank() != 4 {
		t.Errorf("unexpected ranks: safe=%d avoid=%d", LevelSafe.Rank(), LevelAvoid.Rank())
	}
	if RiskLevel("bogus").Rank() != -1 {
		t.Error("unknown level should rank -1")
	}
}

func TestNormalizePath(t *testing.T) {
	tests := map[string]string{
		"./scripts/run.sh":   "scripts/run.sh",
		"/SKILL.md":          "SKILL.md",
		`scripts\win\x.ps1`:  "scripts/win/x.ps1",
		"docs/../ref/api.md": "ref/api.md",
		"":                   "",
	}
	for in, want := range tests {
		if got := NormalizePath(in); got != want {
			t.Errorf("NormalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBlockPath(t *testing.T) {
	p := BlockPath("docs/usage.md", 12, 18)
	if p != "docs/usage.md:12-18" {
		t.Fatalf("BlockPath = %q", p)
	}
	parent, start, end, ok := ParseBlockPath(p)
	if !ok || parent != "docs/usage.md" || start != 12 || end != 18 {
		t.Errorf("ParseBlockPath = %q %d %d %v", parent, start, end, ok)
	}
	if _, _, _, ok := ParseBlockPath("scripts/run.sh"); ok {
		t.Error("plain path parsed as block path")
	}
}
