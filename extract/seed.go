package extract

import (
	"strings"

	"github.com/FeiyouG/skill-lab-sub000/contract"
	"github.com/FeiyouG/skill-lab-sub000/parser"
	"github.com/FeiyouG/skill-lab-sub000/policy"
)

// toolPermission is the fixed permission a declared tool grants.
type toolPermission struct {
	tool  string
	scope contract.Scope
	perm  string
}

var allowedToolPermissions = map[string]toolPermission{
	"Read":         {"read", contract.ScopeFS, "read"},
	"Write":        {"write", contract.ScopeFS, "write"},
	"Edit":         {"edit", contract.ScopeFS, "write"},
	"MultiEdit":    {"edit", contract.ScopeFS, "write"},
	"NotebookEdit": {"notebook", contract.ScopeFS, "write"},
	"Glob":         {"glob", contract.ScopeFS, "list"},
	"Grep":         {"grep", contract.ScopeFS, "read"},
	"LS":           {"ls", contract.ScopeFS, "list"},
	"Bash":         {"bash", contract.ScopeSys, "shell"},
	"WebFetch":     {"webfetch", contract.ScopeNet, "fetch"},
	"WebSearch":    {"websearch", contract.ScopeNet, "search"},
	"Task":         {"task", contract.ScopeSys, "delegate"},
	"TodoWrite":    {"todo", contract.ScopeData, "write"},
}

// ToolPermission maps a declared tool name to its permission triple.
// Unknown names are treated as shell programs.
func ToolPermission(name string) (tool string, scope contract.Scope, perm string) {
	if tp, ok := allowedToolPermissions[name]; ok {
		return tp.tool, tp.scope, tp.perm
	}
	return strings.ToLower(name), contract.ScopeSys, "shell"
}

// Seed records the permissions a manifest declares before any content is
// scanned: allowed tools, required binaries and environment variables,
// egress domains and hooks. The input state is not modified.
func Seed(in *contract.AnalyzerState, m *parser.Manifest, manifestPath string) *contract.AnalyzerState {
	st := in.Clone()
	if m == nil {
		return st
	}
	st.Frontmatter = m.Frontmatter

	ref := func(key string) contract.Reference {
		return contract.Reference{File: manifestPath, Line: m.KeyLines[key], Kind: contract.RefFrontmatter}
	}
	add := func(tool string, scope contract.Scope, perm string, args []string, meta map[string]string, key string) {
		st.Permissions = append(st.Permissions,
			NewPermission(tool, scope, perm, args, meta, contract.SourceFrontmatter, ref(key)))
	}

	for _, t := range m.AllowedTools {
		tool, scope, perm := ToolPermission(t.Name)
		add(tool, scope, perm, t.Args, nil, "allowed-tools")
	}

	if f := m.Forge; f != nil {
		if f.Requires != nil {
			for _, bin := range f.Requires.Bins {
				if bin = strings.TrimSpace(bin); bin != "" {
					add(strings.ToLower(bin), contract.ScopeSys, "shell", nil, nil, "metadata")
				}
			}
			for _, name := range f.Requires.Env.All() {
				if name = strings.TrimSpace(name); name != "" {
					add("env", contract.ScopeEnv, "read", []string{name}, nil, "metadata")
				}
			}
		}
		for _, d := range f.EgressDomains {
			if host := policy.NormalizeHost(d); host != "" {
				add("egress", contract.ScopeNet, "fetch", []string{host}, nil, "metadata")
			}
		}
	}

	for _, h := range m.Hooks {
		var meta map[string]string
		if len(h.Commands) > 0 {
			meta = map[string]string{"command": strings.Join(h.Commands, "; ")}
		}
		add("hook", contract.ScopeHooks, "register", []string{h.Event}, meta, "hooks")
	}
	return st
}
