package rules

import (
	"fmt"
	"regexp"

	"github.com/FeiyouG/skill-lab-sub000/contract"
)

const (
	shellNames   = `^((ba|z|da|k|fi)?sh|python3?|node|perl|ruby|eval|source|\.)$`
	fetchCode    = `(^|\$\(|<\()\s*(curl|wget)\s`
	urlPattern   = `^(https?|ftp)://`
	hostPattern  = `^([A-Za-z0-9-]+\.)+[A-Za-z]{2,}$|^\d{1,3}(\.\d{1,3}){3}$`
	sensitiveArg = `(\.ssh/|id_rsa|id_ed25519|id_ecdsa|\.pem$|/etc/shadow|/etc/passwd|/etc/sudoers|\.aws/credentials|\.aws/config|\.netrc|\.gnupg|\.kube/config|\.docker/config\.json|(^|/)\.env$|\.git-credentials|\.npmrc|\.pypirc)`
	profileArg   = `(\.bashrc|\.bash_profile|\.bash_login|\.zshrc|\.zprofile|\.zshenv|(^|/)\.profile|/etc/profile|config\.fish)`
)

var curlDataFlags = []string{"-d", "--data", "--data-raw", "--data-binary", "--data-urlencode", "--json", "-F", "--form", "-T", "--upload-file"}

func curlPatterns() []string {
	p := []string{
		"curl $$$ $URL $$$",
		"curl $$$ -X $METHOD $$$",
		"curl $$$ --request $METHOD $$$",
		"curl $$$ --request=$METHOD $$$",
	}
	for _, f := range curlDataFlags {
		p = append(p, fmt.Sprintf("curl $$$ %s $DATA $$$", f))
		if len(f) > 2 {
			p = append(p, fmt.Sprintf("curl $$$ %s=$DATA $$$", f))
		}
	}
	return append(p,
		"curl $$$ -H $HEADER $$$",
		"curl $$$ --header $HEADER $$$",
		"curl $$$ -u $HEADER $$$",
		"curl $$$",
	)
}

var netMetadata = map[string]string{
	"URL":    "url",
	"METHOD": "method",
	"DATA":   "data",
	"HEADER": "header",
	"LIB":    "tool",
}

func remoteExecRisks(_ RiskContext, perm *contract.Permission, f contract.Finding) []RiskTemplate {
	host := HostOf(f.Metadata["url"])
	shell := "a shell"
	if perm != nil {
		shell = perm.Tool
	}
	msg := fmt.Sprintf("Downloads remote content and executes it with %s", shell)
	if host != "" {
		msg = fmt.Sprintf("Downloads content from %s and executes it with %s", host, shell)
	}
	return []RiskTemplate{{
		Code:     contract.RiskRemoteCodeExec,
		Severity: contract.SeverityCritical,
		Message:  msg,
		Metadata: map[string]string{"host": host},
	}}
}

func reverseShellRisks(ctx RiskContext, _ *contract.Permission, f contract.Finding) []RiskTemplate {
	host := f.Metadata["host"]
	if f.Metadata["exec"] != "" {
		return []RiskTemplate{{
			Code:     contract.RiskRemoteCodeExec,
			Severity: contract.SeverityCritical,
			Message:  "Binds a shell to a network connection",
			Metadata: map[string]string{"host": host},
		}}
	}
	if host != "" && ctx.Policy != nil && ctx.Policy.DomainDenied(host) {
		return []RiskTemplate{{
			Code:     contract.RiskDeniedDomain,
			Severity: contract.SeverityCritical,
			Message:  fmt.Sprintf("Connects to denied domain %s", host),
			Metadata: map[string]string{"host": host},
		}}
	}
	return nil
}

var bashRules = []Rule{
	{
		ID:          "bash-curl",
		Language:    contract.LangBash,
		Description: "HTTP request with curl",
		Patterns:    curlPatterns(),
		Constraints: map[string]*regexp.Regexp{"URL": re(urlPattern)},
		Permission: &PermissionTemplate{
			Tool: "curl", Scope: contract.ScopeNet, Permission: "fetch",
			Metadata: netMetadata,
		},
		Risks: []RiskMapping{Dynamic(NetworkRisks)},
	},
	{
		ID:          "bash-wget",
		Language:    contract.LangBash,
		Description: "HTTP request with wget",
		Patterns: []string{
			"wget $$$ $URL $$$",
			"wget $$$ --post-data $DATA $$$",
			"wget $$$ --post-data=$DATA $$$",
			"wget $$$ --post-file=$DATA $$$",
			"wget $$$ --method=$METHOD $$$",
			"wget $$$ --header $HEADER $$$",
			"wget $$$ --header=$HEADER $$$",
			"wget $$$",
		},
		Constraints: map[string]*regexp.Regexp{"URL": re(urlPattern)},
		Permission: &PermissionTemplate{
			Tool: "wget", Scope: contract.ScopeNet, Permission: "fetch",
			Metadata: netMetadata,
		},
		Risks: []RiskMapping{Dynamic(NetworkRisks)},
	},
	{
		ID:          "bash-remote-exec",
		Language:    contract.LangBash,
		Description: "Remote content piped or substituted into an interpreter",
		Patterns: []string{
			"$FETCH $$$ $URL $$$ | $SHELL $$$",
			"$FETCH $$$ | $SHELL $$$",
			"$SHELL $$$ $CODE $$$",
		},
		Constraints: map[string]*regexp.Regexp{
			"FETCH": re(`^(curl|wget)$`),
			"SHELL": re(shellNames),
			"URL":   re(urlPattern),
			"CODE":  re(fetchCode),
		},
		Permission: &PermissionTemplate{
			Tool: InferTool, ToolCapture: "SHELL", Scope: contract.ScopeSys, Permission: "shell",
			Metadata: map[string]string{"URL": "url", "CODE": "command", "FETCH": "fetch"},
		},
		Risks: []RiskMapping{Dynamic(remoteExecRisks)},
	},
	{
		ID:          "bash-netcat",
		Language:    contract.LangBash,
		Description: "Raw network connection",
		Patterns: []string{
			"$TOOL $$$ $EXEC $$$ $HOST $$$",
			"$TOOL $$$ $HOST $$$",
		},
		Constraints: map[string]*regexp.Regexp{
			"TOOL": re(`^(nc|ncat|netcat|socat|telnet)$`),
			"HOST": re(hostPattern),
			"EXEC": re(`^(-e|-c|--exec|--sh-exec)$`),
		},
		Permission: &PermissionTemplate{
			Tool: InferTool, ToolCapture: "TOOL", Scope: contract.ScopeNet, Permission: "connect",
			Metadata: map[string]string{"HOST": "host", "EXEC": "exec"},
		},
		Risks: []RiskMapping{Dynamic(reverseShellRisks)},
	},
	{
		ID:          "bash-ssh",
		Language:    contract.LangBash,
		Description: "Remote login or copy",
		Patterns: []string{
			"$TOOL $$$ $HOST $$$",
		},
		Constraints: map[string]*regexp.Regexp{
			"TOOL": re(`^(ssh|scp|sftp|rsync)$`),
			"HOST": re(`^([\w.-]+@)?[\w.-]+\.[A-Za-z]{2,}(:\S*)?$`),
		},
		Permission: &PermissionTemplate{
			Tool: InferTool, ToolCapture: "TOOL", Scope: contract.ScopeNet, Permission: "connect",
			Metadata: map[string]string{"HOST": "host"},
		},
	},
	{
		ID:          "fs-rm",
		Language:    contract.LangBash,
		Description: "File removal",
		Patterns: []string{
			"rm $$$ $FLAGS $$$ $PATH",
			"rm $$$ $PATH",
		},
		Constraints: map[string]*regexp.Regexp{
			"FLAGS": re(`^(-[A-Za-z]*[rR][A-Za-z]*|--recursive)$`),
			"PATH":  re(`^[^-]`),
		},
		Permission: &PermissionTemplate{
			Tool: "rm", Scope: contract.ScopeFS, Permission: "delete",
			Metadata: map[string]string{"PATH": "path", "FLAGS": "flags"},
		},
		Risks: []RiskMapping{Dynamic(recursiveDeleteRisks)},
	},
	{
		ID:          "fs-disk-wipe",
		Language:    contract.LangBash,
		Description: "Raw device overwrite or format",
		Patterns: []string{
			"dd $$$ of=$PATH $$$",
			"$TOOL $$$ $PATH $$$",
		},
		Constraints: map[string]*regexp.Regexp{
			"TOOL": re(`^(mkfs(\.\w+)?|wipefs|shred|fdisk|sfdisk|parted)$`),
			"PATH": re(`^/dev/(sd|hd|nvme|vd|xvd|disk|mmcblk|md)`),
		},
		Permission: &PermissionTemplate{
			Tool: InferTool, ToolCapture: "TOOL", Scope: contract.ScopeFS, Permission: "delete",
			Metadata: map[string]string{"PATH": "path"},
		},
		Risks: []RiskMapping{Static(RiskTemplate{
			Code:       contract.RiskDiskWipe,
			Severity:   contract.SeverityCritical,
			Message:    "Overwrites or formats a block device",
			LinkScopes: []contract.Scope{contract.ScopeFS, contract.ScopeSys},
		})},
	},
	{
		ID:          "sys-sudo",
		Language:    contract.LangBash,
		Description: "Privilege escalation",
		Patterns: []string{
			"$TOOL $COMMAND $$$",
			"$TOOL $$$",
		},
		Constraints: map[string]*regexp.Regexp{
			"TOOL":    re(`^(sudo|doas|su)$`),
			"COMMAND": re(`^[^-]`),
		},
		Permission: &PermissionTemplate{
			Tool: InferTool, ToolCapture: "TOOL", Scope: contract.ScopeSys, Permission: "sudo",
			Metadata: map[string]string{"COMMAND": "command"},
		},
		Risks: []RiskMapping{Static(RiskTemplate{
			Code:     contract.RiskSudo,
			Severity: contract.SeverityWarning,
			Message:  "Runs commands with elevated privileges",
		})},
	},
	{
		ID:          "fs-chmod",
		Language:    contract.LangBash,
		Description: "File mode change",
		Patterns: []string{
			"$TOOL $$$ $MODE $$$ $PATH",
		},
		Constraints: map[string]*regexp.Regexp{
			"TOOL": re(`^chmod$`),
			"MODE": re(`^([0-7]{3,4}|[ugoa]*[+=-][rwxXst]+(,[ugoa]*[+=-][rwxXst]+)*)$`),
		},
		Permission: &PermissionTemplate{
			Tool: "chmod", Scope: contract.ScopeFS, Permission: "write",
			Metadata: map[string]string{"PATH": "path", "MODE": "mode"},
		},
		Risks: []RiskMapping{Dynamic(insecureModeRisks)},
	},
	{
		ID:          "fs-sensitive-read",
		Language:    contract.LangBash,
		Description: "Read of credential or system files",
		Patterns: []string{
			"$TOOL $$$ $PATH $$$",
		},
		Constraints: map[string]*regexp.Regexp{
			"TOOL": re(`^(cat|less|more|head|tail|cp|base64|xxd|strings|grep|tar|zip|gpg)$`),
			"PATH": re(sensitiveArg),
		},
		Permission: &PermissionTemplate{
			Tool: InferTool, ToolCapture: "TOOL", Scope: contract.ScopeFS, Permission: "read",
			Metadata: map[string]string{"PATH": "path"},
		},
		Risks: []RiskMapping{Dynamic(sensitiveFileRisks)},
	},
	{
		ID:          "fs-sensitive-write",
		Language:    contract.LangBash,
		Description: "Write to shell startup, credential or system files",
		Patterns: []string{
			"$$$ > $PATH $$$",
			"$$$ >> $PATH $$$",
			"tee $$$ $PATH $$$",
		},
		Constraints: map[string]*regexp.Regexp{
			"PATH": re(sensitiveArg + "|" + profileArg),
		},
		Permission: &PermissionTemplate{
			Tool: InferTool, Scope: contract.ScopeFS, Permission: "write",
			Metadata: map[string]string{"PATH": "path"},
		},
		Risks: []RiskMapping{Dynamic(profileRisks), Dynamic(sensitiveFileRisks)},
	},
	{
		ID:          "sys-cron",
		Language:    contract.LangBash,
		Description: "Scheduled task registration",
		Patterns: []string{
			"crontab $$$",
			"$$$ > $PATH $$$",
			"$$$ >> $PATH $$$",
			"tee $$$ $PATH $$$",
		},
		Constraints: map[string]*regexp.Regexp{
			"PATH": re(`^(/etc/cron|/var/spool/cron|/etc/anacrontab)`),
		},
		Permission: &PermissionTemplate{
			Tool: "crontab", Scope: contract.ScopeSys, Permission: "schedule",
			Metadata: map[string]string{"PATH": "path"},
		},
		Risks: []RiskMapping{Static(RiskTemplate{
			Code:     contract.RiskScheduledTask,
			Severity: contract.SeverityWarning,
			Message:  "Registers a scheduled task",
		})},
	},
	{
		ID:          "sys-service",
		Language:    contract.LangBash,
		Description: "Service registration",
		Patterns: []string{
			"$TOOL $$$ $SUBCOMMAND $$$",
		},
		Constraints: map[string]*regexp.Regexp{
			"TOOL":       re(`^(systemctl|launchctl|update-rc\.d|chkconfig|rc-update)$`),
			"SUBCOMMAND": re(`^(enable|start|restart|reenable|link|load|bootstrap|submit|add|on|defaults)$`),
		},
		Permission: &PermissionTemplate{
			Tool: InferTool, ToolCapture: "TOOL", Scope: contract.ScopeSys, Permission: "service",
			Metadata: map[string]string{"SUBCOMMAND": "subcommand"},
		},
		Risks: []RiskMapping{Static(RiskTemplate{
			Code:     contract.RiskService,
			Severity: contract.SeverityWarning,
			Message:  "Installs or starts a system service",
		})},
	},
	{
		ID:          "env-secret",
		Language:    contract.LangBash,
		Description: "Credential read from the environment",
		Patterns:    []string{"${$KEY}"},
		Constraints: map[string]*regexp.Regexp{"KEY": secretNameRe},
		Permission: &PermissionTemplate{
			Tool: "env", Scope: contract.ScopeEnv, Permission: "read",
			Metadata: map[string]string{"KEY": "key"},
		},
		Risks: []RiskMapping{Dynamic(secretEnvRisks)},
	},
	{
		ID:          "env-dump",
		Language:    contract.LangBash,
		Description: "Full environment dump",
		Patterns: []string{
			"printenv",
			"env",
			"export -p",
			"declare -x",
		},
		Permission: &PermissionTemplate{
			Tool: "env", Scope: contract.ScopeEnv, Permission: "read",
		},
		Risks: []RiskMapping{Static(RiskTemplate{
			Code:     contract.RiskSecretExposure,
			Severity: contract.SeverityWarning,
			Message:  "Dumps every environment variable",
		})},
	},
	{
		ID:          "sys-eval",
		Language:    contract.LangBash,
		Description: "Dynamic shell evaluation",
		Patterns:    []string{"eval $COMMAND $$$", "eval"},
		Permission: &PermissionTemplate{
			Tool: "eval", Scope: contract.ScopeSys, Permission: "eval",
			Metadata: map[string]string{"COMMAND": "command"},
		},
		Risks: []RiskMapping{Static(RiskTemplate{
			Code:     contract.RiskCodeEval,
			Severity: contract.SeverityWarning,
			Message:  "Evaluates dynamically built shell code",
		})},
	},
	{
		ID:          "sys-shell-command",
		Language:    contract.LangBash,
		Description: "Command string passed to a shell",
		Patterns:    []string{"$SHELL $$$ -c $COMMAND $$$"},
		Constraints: map[string]*regexp.Regexp{"SHELL": re(`^(ba|z|da|k|fi)?sh$`)},
		Permission: &PermissionTemplate{
			Tool: InferTool, ToolCapture: "SHELL", Scope: contract.ScopeSys, Permission: "shell",
			Metadata: map[string]string{"COMMAND": "command"},
		},
		Risks: []RiskMapping{Dynamic(unresolvedCommandRisks)},
	},
	{
		ID:          "dep-install",
		Language:    contract.LangBash,
		Description: "Package installation",
		Patterns: []string{
			"$TOOL $SUBCOMMAND $$$VALUE",
			"$TOOL pip $SUBCOMMAND $$$VALUE",
			"$TOOL -m pip $SUBCOMMAND $$$VALUE",
			"npx $$$VALUE",
		},
		Constraints: map[string]*regexp.Regexp{
			"TOOL":       re(`^(pip|pip3|pipx|uv|python|python3|npm|yarn|pnpm|bun|go)$`),
			"SUBCOMMAND": re(`^(install|i|add|get)$`),
		},
		Permission: &PermissionTemplate{
			Tool: InferTool, ToolCapture: "TOOL", Scope: contract.ScopeDep, Permission: "install",
			Metadata: map[string]string{"SUBCOMMAND": "subcommand", "VALUE": "value"},
		},
		Risks: []RiskMapping{Dynamic(installRisks)},
	},
	{
		ID:          "bash-generic",
		Language:    contract.LangBash,
		Description: "Any other command invocation",
		Patterns: []string{
			"$TOOL $SUBCOMMAND $$$",
			"$TOOL $$$ARGS",
		},
		Constraints: map[string]*regexp.Regexp{
			"TOOL":       re(`^[a-z][a-z0-9._+-]*$`),
			"SUBCOMMAND": re(`^[a-z][a-z0-9-]*$`),
		},
		Permission: &PermissionTemplate{
			Tool: InferTool, ToolCapture: "TOOL", Scope: contract.ScopeSys, Permission: "shell",
			Metadata: map[string]string{"SUBCOMMAND": "subcommand"},
			Generic:  true,
		},
	},
}
