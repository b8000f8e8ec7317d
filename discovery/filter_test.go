package discovery

import (
	"testing"

	"github.com/FeiyouG/skill-lab-sub000/contract"
)

func TestFilterOrdersAndLimits(t *testing.T) {
	in := &contract.AnalyzerState{Discovered: []contract.FileReference{
		{Path: "scripts/a.sh", SourceType: contract.SourceLocal, FileType: contract.LangBash, Role: contract.RoleScript, Size: 10},
		{Path: "https://example.com", SourceType: contract.SourceExternal, Role: contract.RoleRegular},
		{Path: "config.json", SourceType: contract.SourceLocal, FileType: contract.LangJSON, Role: contract.RoleConfig, Size: 10},
		{Path: "SKILL.md", SourceType: contract.SourceLocal, FileType: contract.LangMarkdown, Role: contract.RoleEntrypoint, Size: 10},
		{Path: "big.md", SourceType: contract.SourceLocal, FileType: contract.LangMarkdown, Role: contract.RoleReference, Size: 5000},
		{Path: "logo.png", SourceType: contract.SourceLocal, FileType: contract.LangBinary, Role: contract.RoleRegular, Binary: true},
		{Path: "README.md", SourceType: contract.SourceLocal, FileType: contract.LangMarkdown, Role: contract.RoleReadme, Size: 10},
	}}

	st := Filter(in, contract.ScanLimits{MaxFileSize: 1000, MaxFileCount: 3}, nil)

	var order []string
	for _, r := range st.ScanQueue {
		order = append(order, r.Path)
	}
	want := []string{"SKILL.md", "README.md", "scripts/a.sh", "https://example.com"}
	if len(order) != len(want) {
		t.Fatalf("queue = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("queue = %v, want %v", order, want)
		}
	}

	reasons := map[string]string{}
	for _, s := range st.Metadata.SkippedFiles {
		reasons[s.Path] = s.Reason
	}
	if reasons["big.md"] != contract.SkipTooLarge {
		t.Errorf("big.md reason = %q", reasons["big.md"])
	}
	if reasons["logo.png"] != contract.SkipBinary {
		t.Errorf("logo.png reason = %q", reasons["logo.png"])
	}
	if reasons["config.json"] != contract.SkipTooMany {
		t.Errorf("config.json reason = %q", reasons["config.json"])
	}
	if len(in.ScanQueue) != 0 || len(in.Metadata.SkippedFiles) != 0 {
		t.Error("input state was modified")
	}
}

func TestFilterUnlimited(t *testing.T) {
	in := &contract.AnalyzerState{Discovered: []contract.FileReference{
		{Path: "a.md", SourceType: contract.SourceLocal, FileType: contract.LangMarkdown, Role: contract.RoleReference, Size: 1 << 30},
	}}
	st := Filter(in, contract.ScanLimits{}, nil)
	if len(st.ScanQueue) != 1 {
		t.Errorf("zero limits should not skip, got %+v", st.Metadata.SkippedFiles)
	}
}
