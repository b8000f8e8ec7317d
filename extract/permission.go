package extract

import (
	"path"
	"regexp"
	"strings"

	"github.com/FeiyouG/skill-lab-sub000/contract"
	"github.com/FeiyouG/skill-lab-sub000/rules"
	"github.com/FeiyouG/skill-lab-sub000/trust"
)

// argKeys is the priority order in which finding metadata becomes
// permission arguments.
var argKeys = []string{
	"subcommand", "command", "url", "path", "file", "key", "value",
	"method", "host", "data", "header", "token", "tool",
}

const maxArgs = 4

var (
	toolCharsRe = regexp.MustCompile(`^[A-Za-z0-9_+.-]+`)
	idUnsafeRe  = regexp.MustCompile(`[^a-z0-9._@-]+`)
)

// NewPermission builds a permission from its identity parts and assigns
// its id.
func NewPermission(tool string, scope contract.Scope, perm string, args []string, meta map[string]string, src contract.PermissionSource, ref contract.Reference) contract.Permission {
	if len(args) == 0 {
		args = []string{contract.WildcardArg}
	}
	if len(meta) == 0 {
		meta = nil
	}
	p := contract.Permission{
		Tool:       tool,
		Scope:      scope,
		Permission: perm,
		Args:       args,
		Source:     src,
		Metadata:   meta,
		References: []contract.Reference{ref},
	}
	p.ID = PermissionID(p.Tool, p.Args, p.Metadata)
	return p
}

// PermissionID is sanitize(tool-args...), suffixed with a short hash of
// the arguments and metadata when there is more than one argument or any
// metadata.
func PermissionID(tool string, args []string, meta map[string]string) string {
	parts := append([]string{tool}, args...)
	id := sanitize(strings.Join(parts, "-"))
	if len(args) > 1 || len(meta) > 0 {
		id += "-" + trust.ShortHash(struct {
			Args     []string          `json:"args"`
			Metadata map[string]string `json:"metadata,omitempty"`
		}{args, meta})
	}
	return id
}

func sanitize(s string) string {
	s = idUnsafeRe.ReplaceAllString(strings.ToLower(s), "-")
	s = strings.Trim(s, "-")
	if len(s) > 80 {
		s = strings.TrimRight(s[:80], "-")
	}
	if s == "" {
		return "permission"
	}
	return s
}

// fromFinding builds the permission a rule implies for one match.
func fromFinding(r rules.Rule, f contract.Finding, captures map[string]string, text string) contract.Permission {
	t := r.Permission
	tool := t.Tool
	if tool == rules.InferTool {
		tool = toolName(captures[t.ToolCapture])
		if tool == "" {
			tool = toolName(text)
		}
	}
	if tool == "" {
		tool = r.ID
	}

	args := buildArgs(f.Metadata, tool, text)

	meta := make(map[string]string)
	for k, v := range f.Metadata {
		if isArgKey(k) || v == "" {
			continue
		}
		meta[k] = v
	}
	return NewPermission(tool, t.Scope, t.Permission, args, meta, contract.SourceDetected, f.Reference)
}

// toolName reduces a command word to a bare lower-case tool name.
func toolName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "$") {
		return ""
	}
	if i := strings.IndexAny(s, " \t\n"); i >= 0 {
		s = s[:i]
	}
	s = path.Base(strings.Trim(s, `"'`))
	return strings.ToLower(toolCharsRe.FindString(s))
}

func buildArgs(meta map[string]string, tool, text string) []string {
	var args []string
	for _, k := range argKeys {
		v := strings.TrimSpace(meta[k])
		if v == "" || strings.HasPrefix(v, "$") || strings.EqualFold(v, tool) {
			continue
		}
		args = append(args, v)
		if len(args) == maxArgs {
			break
		}
	}
	if len(args) == 0 {
		if fields := strings.Fields(text); len(fields) > 1 && !strings.HasPrefix(fields[1], "$") {
			args = append(args, fields[1])
		}
	}
	return args
}

func isArgKey(k string) bool {
	for _, a := range argKeys {
		if a == k {
			return true
		}
	}
	return false
}
