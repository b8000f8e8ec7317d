package analyzer

import (
	"testing"

	"github.com/FeiyouG/skill-lab-sub000/config"
	"github.com/FeiyouG/skill-lab-sub000/contract"
)

func risk(code contract.RiskCode, sev contract.Severity, group string) contract.Risk {
	return contract.Risk{Type: code, Severity: sev, GroupKey: group, Permissions: []string{"p"}}
}

func TestScore_Empty(t *testing.T) {
	s := config.Default().Scoring
	score, b := Score(nil, nil, s)
	if score != 0 {
		t.Fatalf("expected score 0, got %d", score)
	}
	if s.Level(score) != contract.LevelSafe {
		t.Fatalf("expected safe, got %s", s.Level(score))
	}
	if len(b.Uplifts) != 0 || len(b.Contributions) != 0 {
		t.Errorf("breakdown = %+v", b)
	}
}

func TestScore_GroupedRisksCollapse(t *testing.T) {
	s := config.Default().Scoring
	group := string(contract.RiskUnvettedImport) + ":python"
	risks := []contract.Risk{
		risk(contract.RiskUnvettedImport, contract.SeverityWarning, group),
		risk(contract.RiskUnvettedImport, contract.SeverityWarning, group),
	}
	_, b := Score(risks, nil, s)
	if len(b.Contributions) != 1 {
		t.Fatalf("expected one contribution, got %+v", b.Contributions)
	}
	c := b.Contributions[0]
	if c.Key != group || c.Count != 2 || c.Value != 3 {
		t.Errorf("contribution = %+v", c)
	}
	if b.SeverityScore != 3 {
		t.Errorf("severity score = %d, want 3", b.SeverityScore)
	}
}

func TestScore_GroupTakesMaxSeverity(t *testing.T) {
	s := config.Default().Scoring
	risks := []contract.Risk{
		risk(contract.RiskUnvettedImport, contract.SeverityInfo, "g"),
		risk(contract.RiskDeniedImport, contract.SeverityCritical, "g"),
		risk(contract.RiskUnvettedImport, contract.SeverityWarning, "g"),
	}
	_, b := Score(risks, nil, s)
	if len(b.Contributions) != 1 || b.Contributions[0].Severity != contract.SeverityCritical {
		t.Fatalf("contributions = %+v", b.Contributions)
	}
}

func TestScore_PermissionTerm(t *testing.T) {
	s := config.Default().Scoring
	perms := []contract.Permission{
		{Scope: contract.ScopeFS, Permission: "read", Args: []string{"notes.md"}},
		{Scope: contract.ScopeSys, Permission: "shell", Args: []string{"*"}},
		{Scope: contract.ScopeNet, Permission: "fetch", Args: []string{"https://x"}},
	}
	score, b := Score(nil, perms, s)
	if b.PermissionScore != 4 {
		t.Errorf("permission score = %d, want 4 (sys:shell 3 + wildcard 1)", b.PermissionScore)
	}
	if score != 4 || s.Level(score) != contract.LevelMedium {
		t.Errorf("score = %d level %s", score, s.Level(score))
	}
}

func TestScore_Uplifts(t *testing.T) {
	s := config.Default().Scoring
	tests := []struct {
		name  string
		risks []contract.Risk
		want  map[string]int
	}{
		{
			name:  "external write",
			risks: []contract.Risk{risk(contract.RiskDataExfiltration, contract.SeverityCritical, "")},
			want:  map[string]int{config.UpliftExternalWrite: 2},
		},
		{
			name:  "remote code",
			risks: []contract.Risk{risk(contract.RiskRemoteCodeExec, contract.SeverityCritical, "")},
			want:  map[string]int{config.UpliftRemoteCode: 3},
		},
		{
			name:  "credential leak",
			risks: []contract.Risk{risk(contract.RiskSecretExposure, contract.SeverityWarning, "")},
			want:  map[string]int{config.UpliftCredentialLeak: 2},
		},
		{
			name: "many critical",
			risks: []contract.Risk{
				risk(contract.RiskSudo, contract.SeverityCritical, ""),
				risk(contract.RiskDiskWipe, contract.SeverityCritical, ""),
				risk(contract.RiskPromptOverride, contract.SeverityCritical, ""),
			},
			want: map[string]int{config.UpliftManyCritical: 2},
		},
		{
			name: "grouped criticals count once",
			risks: []contract.Risk{
				risk(contract.RiskDeniedImport, contract.SeverityCritical, "g"),
				risk(contract.RiskDeniedImport, contract.SeverityCritical, "g"),
				risk(contract.RiskDeniedImport, contract.SeverityCritical, "g"),
			},
			want: map[string]int{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, b := Score(tt.risks, nil, s)
			if len(b.Uplifts) != len(tt.want) {
				t.Fatalf("uplifts = %v, want %v", b.Uplifts, tt.want)
			}
			sum := 0
			for k, v := range tt.want {
				if b.Uplifts[k] != v {
					t.Errorf("uplift %s = %d, want %d", k, b.Uplifts[k], v)
				}
				sum += v
			}
			if score != b.SeverityScore+b.PermissionScore+sum {
				t.Errorf("score %d does not add up: %+v", score, b)
			}
		})
	}
}

func TestScore_Monotonic(t *testing.T) {
	s := config.Default().Scoring
	all := []contract.Risk{
		risk(contract.RiskExternalFetch, contract.SeverityInfo, ""),
		risk(contract.RiskUnvettedImport, contract.SeverityWarning, "g"),
		risk(contract.RiskDataExfiltration, contract.SeverityCritical, ""),
		risk(contract.RiskSudo, contract.SeverityCritical, ""),
		risk(contract.RiskDiskWipe, contract.SeverityCritical, ""),
	}
	perms := []contract.Permission{{Scope: contract.ScopeFS, Permission: "read", Args: []string{"a"}}}
	prev := -1
	for i := 0; i <= len(all); i++ {
		score, _ := Score(all[:i], perms, s)
		if score < prev {
			t.Fatalf("score decreased from %d to %d after adding risk %d", prev, score, i)
		}
		prev = score
	}
}

func TestSummarize(t *testing.T) {
	res := &contract.Result{
		Score:       9,
		RiskLevel:   contract.LevelHigh,
		Permissions: []contract.Permission{{ID: "curl"}},
		Risks: []contract.Risk{
			{Severity: contract.SeverityCritical},
			{Severity: contract.SeverityInfo},
		},
	}
	want := "Risk level high (score 9): 1 permissions, 2 risks (1 critical, 1 info)"
	if got := Summarize(res); got != want {
		t.Errorf("Summarize = %q, want %q", got, want)
	}
}
