package rules

import (
	"regexp"

	"github.com/FeiyouG/skill-lab-sub000/contract"
)

func jsMemberCall(objPattern, fnPattern, args string) string {
	return `(call_expression
  function: (member_expression object: (identifier) @obj property: (property_identifier) @fn)
  arguments: (arguments ` + args + `)
  (#match? @obj "` + objPattern + `")
  (#match? @fn "` + fnPattern + `")) @node`
}

func jsFetchOption(key, capture string) string {
	return `(call_expression
  function: (identifier) @fn
  arguments: (arguments (object (pair key: (property_identifier) @k value: (_) @` + capture + `)))
  (#eq? @fn "fetch")
  (#eq? @k "` + key + `")) @node`
}

const (
	jsFSObjects  = "^(fs|fsp|fsPromises|promises|fse)$"
	jsProcObject = "^(child_process|cp|childProcess|proc)$"
	jsExecFuncs  = "^(exec|execSync|spawn|spawnSync|execFile|execFileSync|fork)$"
)

var javascriptRules = []Rule{
	{
		ID:          "js-child-process",
		Language:    contract.LangJavaScript,
		Description: "Process execution through child_process",
		Patterns: []string{
			jsMemberCall(jsProcObject, jsExecFuncs, ". (_) @COMMAND"),
			`(call_expression
  function: (identifier) @fn
  arguments: (arguments . (_) @COMMAND)
  (#match? @fn "` + jsExecFuncs + `")) @node`,
			jsMemberCall(jsProcObject, jsExecFuncs,
				`(object (pair key: (property_identifier) @k value: (true) @SHELL (#eq? @k "shell")))`),
		},
		Permission: &PermissionTemplate{
			Tool: "child_process", Scope: contract.ScopeSys, Permission: "shell",
			Metadata: map[string]string{"COMMAND": "command", "SHELL": "shell"},
		},
		Risks: []RiskMapping{Dynamic(unresolvedCommandRisks)},
	},
	{
		ID:          "js-eval",
		Language:    contract.LangJavaScript,
		Description: "Dynamic code evaluation",
		Patterns: []string{
			`(call_expression
  function: (identifier) @fn
  arguments: (arguments . (_) @COMMAND)
  (#eq? @fn "eval")) @node`,
			`(new_expression
  constructor: (identifier) @fn
  (#eq? @fn "Function")) @node`,
			`(call_expression
  function: (member_expression object: (identifier) @obj property: (property_identifier) @fn)
  (#eq? @obj "vm")
  (#match? @fn "^(runInNewContext|runInThisContext|runInContext)$")) @node`,
		},
		Permission: &PermissionTemplate{
			Tool: "eval", Scope: contract.ScopeSys, Permission: "eval",
			Metadata: map[string]string{"COMMAND": "command"},
		},
		Risks: []RiskMapping{Static(RiskTemplate{
			Code:     contract.RiskCodeEval,
			Severity: contract.SeverityWarning,
			Message:  "Evaluates dynamically built JavaScript code",
		})},
	},
	{
		ID:          "js-fetch",
		Language:    contract.LangJavaScript,
		Description: "HTTP request with fetch",
		Patterns: []string{
			`(call_expression
  function: (identifier) @fn
  arguments: (arguments . (_) @URL)
  (#eq? @fn "fetch")) @node`,
			jsFetchOption("method", "METHOD"),
			jsFetchOption("body", "DATA"),
			jsFetchOption("headers", "HEADER"),
		},
		Permission: &PermissionTemplate{
			Tool: "fetch", Scope: contract.ScopeNet, Permission: "fetch",
			Metadata: netMetadata,
		},
		Risks: []RiskMapping{Dynamic(NetworkRisks)},
	},
	{
		ID:          "js-axios",
		Language:    contract.LangJavaScript,
		Description: "HTTP request with axios",
		Patterns: []string{
			`(call_expression
  function: (member_expression object: (identifier) @LIB property: (property_identifier) @METHOD)
  arguments: (arguments . (_) @URL)
  (#match? @LIB "^(axios|got|superagent|request)$")
  (#match? @METHOD "^(get|post|put|patch|delete|head)$")) @node`,
			`(call_expression
  function: (member_expression object: (identifier) @LIB property: (property_identifier) @m)
  arguments: (arguments . (_) . (_) @DATA)
  (#match? @LIB "^(axios|got|superagent|request)$")
  (#match? @m "^(post|put|patch)$")) @node`,
		},
		Literal: []string{"LIB", "METHOD"},
		Permission: &PermissionTemplate{
			Tool: InferTool, ToolCapture: "LIB", Scope: contract.ScopeNet, Permission: "fetch",
			Metadata: netMetadata,
		},
		Risks: []RiskMapping{Dynamic(NetworkRisks)},
	},
	{
		ID:          "js-env",
		Language:    contract.LangJavaScript,
		Description: "Environment variable read",
		Patterns: []string{
			`(member_expression
  object: (member_expression object: (identifier) @p property: (property_identifier) @e)
  property: (property_identifier) @KEY
  (#eq? @p "process")
  (#eq? @e "env")) @node`,
			`(subscript_expression
  object: (member_expression object: (identifier) @p property: (property_identifier) @e)
  index: (string) @NAME
  (#eq? @p "process")
  (#eq? @e "env")) @node`,
		},
		Literal: []string{"KEY"},
		Permission: &PermissionTemplate{
			Tool: "env", Scope: contract.ScopeEnv, Permission: "read",
			Metadata: map[string]string{"KEY": "key", "NAME": "key"},
		},
		Risks: []RiskMapping{Dynamic(secretEnvRisks)},
	},
	{
		ID:          "js-env-dump",
		Language:    contract.LangJavaScript,
		Description: "Whole environment passed on",
		Patterns: []string{`(arguments
  (member_expression object: (identifier) @p property: (property_identifier) @e) @node
  (#eq? @p "process")
  (#eq? @e "env"))`},
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
		ID:          "js-fs-write",
		Language:    contract.LangJavaScript,
		Description: "File write",
		Patterns: []string{
			jsMemberCall(jsFSObjects, "^(writeFile|writeFileSync|appendFile|appendFileSync|createWriteStream|outputFile)$", ". (_) @PATH"),
		},
		Permission: &PermissionTemplate{
			Tool: "fs", Scope: contract.ScopeFS, Permission: "write",
			Metadata: map[string]string{"PATH": "path"},
		},
		Risks: []RiskMapping{Dynamic(profileRisks), Dynamic(sensitiveFileRisks)},
	},
	{
		ID:          "js-fs-read",
		Language:    contract.LangJavaScript,
		Description: "Read of credential or system files",
		Patterns: []string{
			jsMemberCall(jsFSObjects, "^(readFile|readFileSync|createReadStream)$", ". (_) @PATH"),
		},
		Constraints: map[string]*regexp.Regexp{"PATH": re(sensitiveArg)},
		Permission: &PermissionTemplate{
			Tool: "fs", Scope: contract.ScopeFS, Permission: "read",
			Metadata: map[string]string{"PATH": "path"},
		},
		Risks: []RiskMapping{Dynamic(sensitiveFileRisks)},
	},
	{
		ID:          "js-fs-rm",
		Language:    contract.LangJavaScript,
		Description: "File removal",
		Patterns: []string{
			jsMemberCall(jsFSObjects, "^(rm|rmSync|rmdir|rmdirSync|remove|removeSync)$", ". (_) @PATH"),
			jsMemberCall(jsFSObjects, "^(rm|rmSync|rmdir|rmdirSync)$",
				`(object (pair key: (property_identifier) @k value: (true) @RECURSIVE (#eq? @k "recursive")))`),
		},
		Permission: &PermissionTemplate{
			Tool: "fs", Scope: contract.ScopeFS, Permission: "delete",
			Metadata: map[string]string{"PATH": "path", "RECURSIVE": "recursive"},
		},
		Risks: []RiskMapping{Dynamic(recursiveDeleteRisks)},
	},
	{
		ID:          "js-chmod",
		Language:    contract.LangJavaScript,
		Description: "File mode change",
		Patterns: []string{
			jsMemberCall(jsFSObjects, "^(chmod|chmodSync)$", ". (_) @PATH . (_) @MODE"),
		},
		Literal: []string{"MODE"},
		Permission: &PermissionTemplate{
			Tool: "chmod", Scope: contract.ScopeFS, Permission: "write",
			Metadata: map[string]string{"PATH": "path", "MODE": "mode"},
		},
		Risks: []RiskMapping{Dynamic(insecureModeRisks)},
	},
}
