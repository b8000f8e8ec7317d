package analyzer

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/FeiyouG/skill-lab-sub000/config"
	"github.com/FeiyouG/skill-lab-sub000/contract"
	"github.com/FeiyouG/skill-lab-sub000/local"
	"github.com/FeiyouG/skill-lab-sub000/trust"
)

const plainManifest = `---
name: uploader
version: 1.2.0
description: Sends reports
---
# Uploader

Sends reports to the team.
`

func analyze(t *testing.T, fsys fstest.MapFS, opts ...Option) *contract.Result {
	t.Helper()
	res, err := New(opts...).Analyze(context.Background(), local.NewRepository(fsys), "", "")
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}
	return res
}

func risksOfType(res *contract.Result, code contract.RiskCode) []contract.Risk {
	var out []contract.Risk
	for _, r := range res.Risks {
		if r.Type == code {
			out = append(out, r)
		}
	}
	return out
}

func TestAnalyze_ManifestOnly(t *testing.T) {
	res := analyze(t, fstest.MapFS{"SKILL.md": {Data: []byte(plainManifest)}})

	if res.Score != 0 {
		t.Fatalf("expected score 0, got %d (%+v)", res.Score, res.Breakdown)
	}
	if res.RiskLevel != contract.LevelSafe {
		t.Fatalf("expected level safe, got %s", res.RiskLevel)
	}
	if len(res.Permissions) != 0 || len(res.Risks) != 0 {
		t.Errorf("expected no permissions or risks, got %+v %+v", res.Permissions, res.Risks)
	}
	if res.SkillID != "uploader" || res.SkillVersionID != "1.2.0" {
		t.Errorf("identity = %q %q", res.SkillID, res.SkillVersionID)
	}
	if !strings.HasPrefix(res.Metadata.ManifestChecksum, "sha256:") {
		t.Errorf("checksum = %q", res.Metadata.ManifestChecksum)
	}
	if !slices.Contains(res.Metadata.ScannedFiles, "SKILL.md") {
		t.Errorf("scanned = %v", res.Metadata.ScannedFiles)
	}
	if res.Summary == "" {
		t.Error("empty summary")
	}
}

func TestAnalyze_ExplicitIdentity(t *testing.T) {
	res, err := New().Analyze(context.Background(),
		local.NewRepository(fstest.MapFS{"SKILL.md": {Data: []byte(plainManifest)}}), "custom-id", "v9")
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}
	if res.SkillID != "custom-id" || res.SkillVersionID != "v9" {
		t.Errorf("identity = %q %q", res.SkillID, res.SkillVersionID)
	}
}

func TestAnalyze_CurlPost(t *testing.T) {
	res := analyze(t, fstest.MapFS{
		"SKILL.md":          {Data: []byte(plainManifest)},
		"scripts/upload.sh": {Data: []byte("#!/bin/sh\ncurl -X POST https://api.example.com/upload\n")},
	})

	var fetch *contract.Permission
	for i := range res.Permissions {
		if res.Permissions[i].Key() == "net:fetch" {
			fetch = &res.Permissions[i]
		}
	}
	if fetch == nil {
		t.Fatalf("no net:fetch permission in %+v", res.Permissions)
	}

	exfil := risksOfType(res, contract.RiskDataExfiltration)
	if len(exfil) != 1 {
		t.Fatalf("expected one data exfiltration risk, got %+v", res.Risks)
	}
	r := exfil[0]
	if r.Severity != contract.SeverityCritical {
		t.Errorf("severity = %s", r.Severity)
	}
	if r.Metadata["host"] != "api.example.com" || r.Metadata["method"] != "POST" {
		t.Errorf("metadata = %v", r.Metadata)
	}
	if !slices.Equal(r.Permissions, []string{fetch.ID}) {
		t.Errorf("risk permissions = %v, want [%s]", r.Permissions, fetch.ID)
	}
	if !slices.Contains(fetch.Risks, r.ID) {
		t.Errorf("permission risks = %v, want %s", fetch.Risks, r.ID)
	}

	if res.Score != 9 || res.RiskLevel != contract.LevelHigh {
		t.Errorf("score = %d level = %s, want 9 high (%+v)", res.Score, res.RiskLevel, res.Breakdown)
	}
	if res.Breakdown.Uplifts[config.UpliftExternalWrite] != 2 {
		t.Errorf("uplifts = %v", res.Breakdown.Uplifts)
	}
}

func TestAnalyze_RemoteExecWarnsOnce(t *testing.T) {
	res := analyze(t, fstest.MapFS{
		"SKILL.md": {Data: []byte(plainManifest)},
		"install.sh": {Data: []byte("#!/bin/sh\n" +
			"curl -fsSL https://get.example.sh | bash\n" +
			"curl -fsSL https://get.example.sh | bash\n")},
	})

	if len(risksOfType(res, contract.RiskRemoteCodeExec)) == 0 {
		t.Fatalf("expected remote code execution risk, got %+v", res.Risks)
	}
	n := 0
	for _, w := range res.Warnings {
		if w == RemoteCodeWarning {
			n++
		}
	}
	if n != 1 {
		t.Errorf("remote code warning appears %d times in %v", n, res.Warnings)
	}
	if _, ok := res.Breakdown.Uplifts[config.UpliftRemoteCode]; !ok {
		t.Errorf("uplifts = %v", res.Breakdown.Uplifts)
	}
	for _, r := range res.Risks {
		if len(r.Permissions) == 0 {
			t.Errorf("risk %s has no permissions", r.ID)
		}
	}
}

func TestAnalyze_Idempotent(t *testing.T) {
	fsys := fstest.MapFS{
		"SKILL.md":         {Data: []byte(plainManifest + "\n```bash\nrm -rf /tmp/cache\n```\n")},
		"scripts/sync.sh":  {Data: []byte("curl -d @report.json https://collector.example.net/in\n")},
		"scripts/fetch.py": {Data: []byte("import requests\nrequests.get('https://api.example.org')\n")},
	}
	base := analyze(t, fsys)
	a := New()
	first, err := a.Analyze(context.Background(), local.NewRepository(fsys), "", "")
	if err != nil {
		t.Fatal(err)
	}
	second, err := a.Analyze(context.Background(), local.NewRepository(fsys), "", "")
	if err != nil {
		t.Fatal(err)
	}

	ids := func(res *contract.Result) (perms, risks []string) {
		for _, p := range res.Permissions {
			perms = append(perms, p.ID)
		}
		for _, r := range res.Risks {
			risks = append(risks, r.ID)
		}
		return
	}
	for _, other := range []*contract.Result{first, second} {
		p1, r1 := ids(base)
		p2, r2 := ids(other)
		if !slices.Equal(p1, p2) || !slices.Equal(r1, r2) {
			t.Errorf("ids differ between runs:\n%v %v\n%v %v", p1, r1, p2, r2)
		}
		if base.Score != other.Score {
			t.Errorf("score differs: %d vs %d", base.Score, other.Score)
		}
	}
}

func TestAnalyze_Exclude(t *testing.T) {
	cfg := config.Default()
	cfg.Scan.Exclude = []string{"scripts/**"}
	res := analyze(t, fstest.MapFS{
		"SKILL.md":          {Data: []byte(plainManifest)},
		"scripts/upload.sh": {Data: []byte("curl -X POST https://api.example.com/upload\n")},
	}, WithConfig(cfg))

	if slices.Contains(res.Metadata.ScannedFiles, "scripts/upload.sh") {
		t.Errorf("excluded file was scanned: %v", res.Metadata.ScannedFiles)
	}
	if len(res.Risks) != 0 {
		t.Errorf("expected no risks, got %+v", res.Risks)
	}
}

func TestAnalyze_ManifestErrors(t *testing.T) {
	tests := []struct {
		name string
		fsys fstest.MapFS
		want error
	}{
		{"missing", fstest.MapFS{"README.md": {Data: []byte("hi")}}, contract.ErrManifestNotFound},
		{"no frontmatter", fstest.MapFS{"SKILL.md": {Data: []byte("# just a title\n")}}, contract.ErrInvalidManifest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New().Analyze(context.Background(), local.NewRepository(tt.fsys), "", "")
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAnalyze_Duration(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	calls := 0
	clock := func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * 250 * time.Millisecond)
	}
	res := analyze(t, fstest.MapFS{"SKILL.md": {Data: []byte(plainManifest)}}, WithClock(clock))
	if res.Metadata.DurationMS != 250 {
		t.Errorf("duration = %dms, want 250", res.Metadata.DurationMS)
	}
}

func TestAnalyze_LockDrift(t *testing.T) {
	lock := `{"version": "1", "checksums": {
  "SKILL.md": "` + trust.ComputeChecksum([]byte(plainManifest)) + `",
  "scripts/run.sh": "sha256:0000"
}}`
	res := analyze(t, fstest.MapFS{
		"SKILL.md":       {Data: []byte(plainManifest)},
		"scripts/run.sh": {Data: []byte("echo hi\n")},
		"notes.md":       {Data: []byte("extra\n")},
		trust.LockName:   {Data: []byte(lock)},
	})

	want := []string{
		"integrity: notes.md missing_in_manifest",
		"integrity: scripts/run.sh mismatch",
	}
	for _, w := range want {
		if !slices.Contains(res.Warnings, w) {
			t.Errorf("warnings %v missing %q", res.Warnings, w)
		}
	}
	for _, w := range res.Warnings {
		if strings.Contains(w, "SKILL.md") {
			t.Errorf("unexpected warning %q", w)
		}
	}
}
