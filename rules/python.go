package rules

import (
	"maps"
	"regexp"

	"github.com/FeiyouG/skill-lab-sub000/contract"
)

// alwaysRecursive marks a finding as recursive before classifying it, for
// APIs that only delete trees.
func alwaysRecursive(ctx RiskContext, perm *contract.Permission, f contract.Finding) []RiskTemplate {
	meta := maps.Clone(f.Metadata)
	if meta == nil {
		meta = map[string]string{}
	}
	meta["recursive"] = "true"
	f.Metadata = meta
	return recursiveDeleteRisks(ctx, perm, f)
}

func pyModuleCall(module, fnPattern, args string) string {
	return `(call
  function: (attribute object: (identifier) @mod attribute: (identifier) @fn)
  arguments: (argument_list ` + args + `)
  (#eq? @mod "` + module + `")
  (#match? @fn "` + fnPattern + `")) @node`
}

var pythonRules = []Rule{
	{
		ID:          "py-subprocess",
		Language:    contract.LangPython,
		Description: "Process execution through subprocess",
		Patterns: []string{
			pyModuleCall("subprocess", "^(run|call|check_call|check_output|Popen|getoutput|getstatusoutput)$", ". (_) @COMMAND"),
			pyModuleCall("subprocess", "^(run|call|check_call|check_output|Popen)$",
				`(keyword_argument name: (identifier) @kw value: (true) @SHELL (#eq? @kw "shell"))`),
		},
		Permission: &PermissionTemplate{
			Tool: "subprocess", Scope: contract.ScopeSys, Permission: "shell",
			Metadata: map[string]string{"COMMAND": "command", "SHELL": "shell"},
		},
		Risks: []RiskMapping{Dynamic(unresolvedCommandRisks)},
	},
	{
		ID:          "py-os-system",
		Language:    contract.LangPython,
		Description: "Process execution through os",
		Patterns: []string{
			pyModuleCall("os", "^(system|popen|execv|execvp|execl|execlp|spawnl|spawnv)$", ". (_) @COMMAND"),
		},
		Permission: &PermissionTemplate{
			Tool: "os", Scope: contract.ScopeSys, Permission: "shell",
			Metadata: map[string]string{"COMMAND": "command"},
		},
		Risks: []RiskMapping{Dynamic(unresolvedCommandRisks)},
	},
	{
		ID:          "py-eval",
		Language:    contract.LangPython,
		Description: "Dynamic code evaluation",
		Patterns: []string{`(call
  function: (identifier) @fn
  arguments: (argument_list . (_) @COMMAND)
  (#match? @fn "^(eval|exec|compile)$")) @node`},
		Permission: &PermissionTemplate{
			Tool: "eval", Scope: contract.ScopeSys, Permission: "eval",
			Metadata: map[string]string{"COMMAND": "command"},
		},
		Risks: []RiskMapping{Static(RiskTemplate{
			Code:     contract.RiskCodeEval,
			Severity: contract.SeverityWarning,
			Message:  "Evaluates dynamically built Python code",
		})},
	},
	{
		ID:          "py-http",
		Language:    contract.LangPython,
		Description: "HTTP request with requests, httpx or urllib",
		Patterns: []string{
			`(call
  function: (attribute object: (identifier) @LIB attribute: (identifier) @METHOD)
  arguments: (argument_list . (_) @URL)
  (#match? @LIB "^(requests|httpx|session|client)$")
  (#match? @METHOD "^(get|post|put|patch|delete|head|options)$")) @node`,
			`(call
  function: (attribute object: (identifier) @LIB attribute: (identifier) @fn)
  arguments: (argument_list . (string) @METHOD . (_) @URL)
  (#match? @LIB "^(requests|httpx|session|client)$")
  (#eq? @fn "request")) @node`,
			`(call
  function: (attribute object: (identifier) @LIB attribute: (identifier))
  arguments: (argument_list (keyword_argument name: (identifier) @kw value: (_) @DATA))
  (#match? @LIB "^(requests|httpx|session|client)$")
  (#match? @kw "^(data|json|files|content)$")) @node`,
			`(call
  function: (attribute object: (identifier) @LIB attribute: (identifier))
  arguments: (argument_list (keyword_argument name: (identifier) @kw value: (_) @HEADER))
  (#match? @LIB "^(requests|httpx|session|client)$")
  (#match? @kw "^(headers|auth|cookies)$")) @node`,
			`(call
  function: (attribute attribute: (identifier) @fn)
  arguments: (argument_list . (_) @URL)
  (#match? @fn "^(urlopen|urlretrieve)$")) @node`,
			`(call
  function: (identifier) @fn
  arguments: (argument_list . (_) @URL)
  (#match? @fn "^(urlopen|urlretrieve)$")) @node`,
		},
		Literal: []string{"LIB", "METHOD"},
		Permission: &PermissionTemplate{
			Tool: InferTool, ToolCapture: "LIB", Scope: contract.ScopeNet, Permission: "fetch",
			Metadata: netMetadata,
		},
		Risks: []RiskMapping{Dynamic(NetworkRisks)},
	},
	{
		ID:          "py-env",
		Language:    contract.LangPython,
		Description: "Environment variable read",
		Patterns: []string{
			`(subscript
  value: (attribute object: (identifier) @mod attribute: (identifier) @attr)
  subscript: (string) @KEY
  (#eq? @mod "os")
  (#eq? @attr "environ")) @node`,
			`(call
  function: (attribute
    object: (attribute object: (identifier) @mod attribute: (identifier) @attr)
    attribute: (identifier) @fn)
  arguments: (argument_list . (string) @KEY)
  (#eq? @mod "os")
  (#eq? @attr "environ")
  (#match? @fn "^(get|pop|setdefault)$")) @node`,
			pyModuleCall("os", "^getenv$", ". (string) @KEY"),
		},
		Permission: &PermissionTemplate{
			Tool: "env", Scope: contract.ScopeEnv, Permission: "read",
			Metadata: map[string]string{"KEY": "key"},
		},
		Risks: []RiskMapping{Dynamic(secretEnvRisks)},
	},
	{
		ID:          "py-env-dump",
		Language:    contract.LangPython,
		Description: "Whole environment passed on",
		Patterns: []string{`(argument_list
  (attribute object: (identifier) @mod attribute: (identifier) @attr) @node
  (#eq? @mod "os")
  (#eq? @attr "environ"))`},
		Permission: &PermissionTemplate{
			Tool: "env", Scope: contract.ScopeEnv, Permission: "read",
		},
		Risks: []RiskMapping{Static(RiskTemplate{
			Code:     contract.RiskSecretExposure,
			Severity: contract.SeverityWarning,
			Message:  "Passes every environment variable to another call",
		})},
	},
	{
		ID:          "py-file-write",
		Language:    contract.LangPython,
		Description: "File opened for writing",
		Patterns: []string{`(call
  function: (identifier) @fn
  arguments: (argument_list . (_) @PATH . (string) @MODE)
  (#eq? @fn "open")) @node`},
		Constraints: map[string]*regexp.Regexp{"MODE": re(`[wax+]`)},
		Permission: &PermissionTemplate{
			Tool: "open", Scope: contract.ScopeFS, Permission: "write",
			Metadata: map[string]string{"PATH": "path", "MODE": "mode"},
		},
		Risks: []RiskMapping{Dynamic(profileRisks), Dynamic(sensitiveFileRisks)},
	},
	{
		ID:          "py-sensitive-read",
		Language:    contract.LangPython,
		Description: "Read of credential or system files",
		Patterns: []string{`(call
  function: (identifier) @fn
  arguments: (argument_list . (string) @PATH)
  (#eq? @fn "open")) @node`},
		Constraints: map[string]*regexp.Regexp{"PATH": re(sensitiveArg)},
		Permission: &PermissionTemplate{
			Tool: "open", Scope: contract.ScopeFS, Permission: "read",
			Metadata: map[string]string{"PATH": "path"},
		},
		Risks: []RiskMapping{Dynamic(sensitiveFileRisks)},
	},
	{
		ID:          "py-rmtree",
		Language:    contract.LangPython,
		Description: "Recursive directory removal",
		Patterns: []string{
			pyModuleCall("shutil", "^rmtree$", ". (_) @PATH"),
		},
		Permission: &PermissionTemplate{
			Tool: "shutil", Scope: contract.ScopeFS, Permission: "delete",
			Metadata: map[string]string{"PATH": "path"},
		},
		Risks: []RiskMapping{Dynamic(alwaysRecursive)},
	},
	{
		ID:          "py-chmod",
		Language:    contract.LangPython,
		Description: "File mode change",
		Patterns: []string{
			pyModuleCall("os", "^(chmod|lchmod)$", ". (_) @PATH . (_) @MODE"),
		},
		Literal: []string{"MODE"},
		Permission: &PermissionTemplate{
			Tool: "chmod", Scope: contract.ScopeFS, Permission: "write",
			Metadata: map[string]string{"PATH": "path", "MODE": "mode"},
		},
		Risks: []RiskMapping{Dynamic(insecureModeRisks)},
	},
}
