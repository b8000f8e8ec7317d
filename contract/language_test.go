package contract

import "testing"

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		path string
		want Language
	}{
		{"scripts/run.sh", LangBash},
		{"scripts/run.ZSH", LangBash},
		{"tool.py", LangPython},
		{"lib/index.mjs", LangJavaScript},
		{"go.mod", LangGoMod},
		{"vendor/go.mod", LangGoMod},
		{"SKILL.md", LangMarkdown},
		{"notes.txt", LangText},
		{"LICENSE", LangText},
		{"config.yml", LangYAML},
		{"pyproject.toml", LangTOML},
		{"package.json", LangJSON},
		{"logo.png", LangBinary},
		{"data.xyz", LangUnknown},
	}
	for _, tt := range tests {
		if got := DetectLanguage(tt.path); got != tt.want {
			t.Errorf("DetectLanguage(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestDetectLanguageContent_Shebang(t *testing.T) {
	if got := DetectLanguageContent("bin/tool", "#!/usr/bin/env bash\necho hi\n"); got != LangBash {
		t.Errorf("got %q, want bash", got)
	}
	if got := DetectLanguageContent("bin/tool", "#!/usr/bin/env python3\nprint(1)\n"); got != LangPython {
		t.Errorf("got %q, want python", got)
	}
	if got := DetectLanguageContent("bin/tool", "plain words"); got != LangText {
		t.Errorf("got %q, want text", got)
	}
}

func TestFenceLanguage(t *testing.T) {
	tests := map[string]Language{
		"bash":         LangBash,
		"console":      LangBash,
		"Python3":      LangPython,
		"js":           LangJavaScript,
		"":             LangText,
		"sh {.line}":   LangBash,
		"unknown-lang": LangText,
	}
	for tag, want := range tests {
		if got := FenceLanguage(tag); got != want {
			t.Errorf("FenceLanguage(%q) = %q, want %q", tag, got, want)
		}
	}
}

func TestLanguageRank(t *testing.T) {
	if !(LangMarkdown.Rank() < LangBash.Rank() && LangBash.Rank() < LangJSON.Rank() && LangJSON.Rank() < LangUnknown.Rank()) {
		t.Error("expected markdown < code < data < unknown")
	}
}
