package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/FeiyouG/skill-lab-sub000/analyzer"
	"github.com/FeiyouG/skill-lab-sub000/contract"
)

func sampleResult() *contract.Result {
	return &contract.Result{
		SkillID:        "uploader",
		SkillVersionID: "1.2.0",
		Permissions: []contract.Permission{
			{
				ID: "curl-1a2b", Tool: "curl", Scope: contract.ScopeNet, Permission: "fetch",
				Args: []string{"https://api.example.com/upload"}, Source: contract.SourceDetected,
				References: []contract.Reference{{File: "scripts/upload.sh", Line: 2, Kind: contract.RefScript}},
				Risks:      []string{"risk-NETWORK:data_exfiltration-1", "risk-NETWORK:external_fetch-2"},
			},
		},
		Risks: []contract.Risk{
			{
				ID: "risk-NETWORK:data_exfiltration-1", Type: contract.RiskDataExfiltration,
				Severity: contract.SeverityCritical, Message: "Data sent to api.example.com",
				Reference:   contract.Reference{File: "scripts/upload.sh", Line: 2, Kind: contract.RefScript},
				Permissions: []string{"curl-1a2b"},
			},
			{
				ID: "risk-NETWORK:external_fetch-2", Type: contract.RiskExternalFetch,
				Severity: contract.SeverityInfo, Message: "Fetches from api.example.com",
				Reference:   contract.Reference{File: "scripts/upload.sh", Line: 2, Kind: contract.RefScript},
				Permissions: []string{"curl-1a2b"},
			},
		},
		Score:     9,
		RiskLevel: contract.LevelHigh,
		Breakdown: contract.ScoreBreakdown{
			SeverityScore:   5,
			PermissionScore: 2,
			Uplifts:         map[string]int{"external_write": 2},
		},
		Summary:  "Risk level high (score 9): 1 permissions, 2 risks (1 critical, 1 info)",
		Warnings: []string{"remote script content analysis is not implemented"},
		Metadata: contract.ResultMetadata{
			ScannedFiles: []string{"SKILL.md", "scripts/upload.sh"},
			SkippedFiles: []contract.SkippedFile{{Path: "logo.png", Reason: contract.SkipBinary}},
			DurationMS:   12,
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"JSON", FormatJSON, false},
		{"sarif", FormatSARIF, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFilter(t *testing.T) {
	res := sampleResult()

	if got := Filter(res, contract.RiskFilter{}); got != res {
		t.Error("empty filter should return the result unchanged")
	}

	got := Filter(res, contract.RiskFilter{MinSeverity: contract.SeverityWarning})
	if len(got.Risks) != 1 || got.Risks[0].Type != contract.RiskDataExfiltration {
		t.Fatalf("risks = %+v", got.Risks)
	}
	if len(got.Permissions[0].Risks) != 1 {
		t.Errorf("permission risks = %v", got.Permissions[0].Risks)
	}
	if len(res.Risks) != 2 || len(res.Permissions[0].Risks) != 2 {
		t.Error("input result was modified")
	}
	if got.Score != res.Score || got.RiskLevel != res.RiskLevel {
		t.Error("score changed by filtering")
	}

	none := Filter(res, contract.RiskFilter{Categories: []string{"PROMPT"}})
	if none.Risks == nil || len(none.Risks) != 0 {
		t.Errorf("risks = %#v, want empty slice", none.Risks)
	}
}

func TestText(t *testing.T) {
	var buf bytes.Buffer
	if err := New(&buf, FormatText, Options{}).Result(sampleResult()); err != nil {
		t.Fatalf("Result error: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"uploader 1.2.0",
		"Risk level: HIGH  Score: 9",
		"net:fetch",
		"[CRITICAL] NETWORK:data_exfiltration",
		"scripts/upload.sh:2",
		"severity 5 + permissions 2 + external_write 2 = 9",
		"! remote script content analysis is not implemented",
		"logo.png (binary)",
		"2 files scanned in 12ms",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("plain output contains escape sequences")
	}
}

func TestText_MinSeverity(t *testing.T) {
	var buf bytes.Buffer
	opts := Options{Filter: contract.RiskFilter{MinSeverity: contract.SeverityCritical}}
	if err := New(&buf, FormatText, opts).Result(sampleResult()); err != nil {
		t.Fatalf("Result error: %v", err)
	}
	if strings.Contains(buf.String(), "NETWORK:external_fetch") {
		t.Errorf("info risk rendered despite filter:\n%s", buf.String())
	}
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := New(&buf, FormatJSON, Options{}).Result(sampleResult()); err != nil {
		t.Fatalf("Result error: %v", err)
	}
	var got contract.Result
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if got.SkillID != "uploader" || got.RiskLevel != contract.LevelHigh || len(got.Risks) != 2 {
		t.Errorf("decoded = %+v", got)
	}
}

func auditReport() *analyzer.AuditReport {
	res := sampleResult()
	entries := []analyzer.AuditEntry{
		{Path: "uploader", Result: res},
		{Path: "broken", Error: "parsing SKILL.md: invalid manifest"},
	}
	return analyzer.NewAuditReport(entries, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), contract.LevelAvoid)
}

func TestAuditText(t *testing.T) {
	var buf bytes.Buffer
	if err := New(&buf, FormatText, Options{}).Audit(auditReport()); err != nil {
		t.Fatalf("Audit error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"Audit of 2 skills",
		"uploader",
		"HIGH",
		"ERROR",
		"Aggregate level: HIGH  Score: 9",
		"1 critical, 0 warning, 1 info; 1 failed",
		"FAILED",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestAuditJSON(t *testing.T) {
	var buf bytes.Buffer
	opts := Options{Filter: contract.RiskFilter{MinSeverity: contract.SeverityCritical}}
	if err := New(&buf, FormatJSON, opts).Audit(auditReport()); err != nil {
		t.Fatalf("Audit error: %v", err)
	}
	var got analyzer.AuditReport
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if got.SkillCount != 2 || got.AggregateLevel != contract.LevelHigh {
		t.Errorf("decoded = %+v", got)
	}
	for _, e := range got.Entries {
		if e.Result != nil && len(e.Result.Risks) != 1 {
			t.Errorf("filter not applied to %s: %+v", e.Path, e.Result.Risks)
		}
	}
}
