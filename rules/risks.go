package rules

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/FeiyouG/skill-lab-sub000/contract"
	"github.com/FeiyouG/skill-lab-sub000/policy"
)

var (
	secretValueRe = regexp.MustCompile(`(?i)(authorization|bearer|x-api-key|api[_-]?key|token|secret|passw(or)?d|credential|private[_-]?key|cookie|\.env\b|id_rsa|\.ssh/|\.aws/)`)
	secretNameRe  = regexp.MustCompile(`(?i)(TOKEN|SECRET|PASSWORD|PASSWD|API_?KEY|ACCESS_?KEY|PRIVATE_?KEY|CREDENTIAL|AUTH)`)
	unresolvedRe  = regexp.MustCompile(`^\$\{?[A-Za-z_][A-Za-z0-9_]*\}?/?\*?$`)
	privateKeyRe  = regexp.MustCompile(`(?i)(id_rsa|id_ed25519|id_ecdsa|\.pem$|\.key$|/etc/shadow|\.aws/credentials|\.gnupg|\.kube/config)`)
)

var writeMethods = map[string]bool{"POST": true, "PUT": true, "PATCH": true, "DELETE": true}

// HostOf returns the host of a URL-like value, or "" when it cannot be
// resolved statically.
func HostOf(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "$") {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "//" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || strings.ContainsAny(u.Host, "${}` ") {
		return ""
	}
	return policy.NormalizeHost(u.Host)
}

// IsSecretName reports whether an environment variable name looks like a
// credential.
func IsSecretName(name string) bool {
	return secretNameRe.MatchString(name)
}

// NetworkRisks classifies an outbound request by destination, method and
// payload.
func NetworkRisks(ctx RiskContext, _ *contract.Permission, f contract.Finding) []RiskTemplate {
	host := f.Metadata["host"]
	if host == "" {
		host = HostOf(f.Metadata["url"])
	}
	data := f.Metadata["data"]
	method := strings.ToUpper(strings.Trim(strings.TrimPrefix(f.Metadata["method"], "$"), `"'`))
	if method == "" {
		method = "GET"
		if data != "" {
			method = "POST"
		}
	}
	write := writeMethods[method] || data != ""
	secretish := secretValueRe.MatchString(f.Metadata["header"]) || secretValueRe.MatchString(data)

	meta := map[string]string{"host": host, "method": method}
	target := host
	if target == "" {
		target = "an unresolved host"
	}

	if host != "" && ctx.Policy != nil && ctx.Policy.DomainDenied(host) {
		return []RiskTemplate{{
			Code:     contract.RiskDeniedDomain,
			Severity: contract.SeverityCritical,
			Message:  fmt.Sprintf("Request to denied domain %s", host),
			Metadata: meta,
		}}
	}
	if host != "" && ctx.Policy != nil && ctx.Policy.DomainAllowed(host) {
		return nil
	}
	switch {
	case write && secretish:
		return []RiskTemplate{{
			Code:     contract.RiskCredentialLeak,
			Severity: contract.SeverityCritical,
			Message:  fmt.Sprintf("Credentials sent with %s request to %s", method, target),
			Metadata: meta,
		}}
	case write:
		return []RiskTemplate{{
			Code:     contract.RiskDataExfiltration,
			Severity: contract.SeverityCritical,
			Message:  fmt.Sprintf("Data sent with %s request to %s", method, target),
			Metadata: meta,
		}}
	case host != "":
		return []RiskTemplate{{
			Code:     contract.RiskExternalFetch,
			Severity: contract.SeverityInfo,
			Message:  fmt.Sprintf("Fetches content from %s", host),
			Metadata: meta,
		}}
	}
	return nil
}

// DependencyRisks evaluates one dependency name against the import policy.
// noun is "import" or "package" and only shapes the message.
func DependencyRisks(p *policy.Evaluator, lang contract.Language, name, noun string) []RiskTemplate {
	name = strings.TrimSpace(name)
	if name == "" || strings.HasPrefix(name, "$") || p == nil {
		return nil
	}
	pl := policy.Language(lang)
	meta := map[string]string{"package": name, "language": pl}

	switch p.Import(lang, name) {
	case policy.DecisionDenied:
		return []RiskTemplate{{
			Code:     contract.RiskDeniedImport,
			Severity: contract.SeverityCritical,
			Message:  fmt.Sprintf("%s %q is denied by the %s policy", capitalize(noun), name, pl),
			GroupKey: string(contract.RiskDeniedImport) + ":" + pl,
			Metadata: meta,
		}}
	case policy.DecisionDefault:
		return []RiskTemplate{{
			Code:     contract.RiskUnvettedImport,
			Severity: contract.SeverityWarning,
			Message:  fmt.Sprintf("%s %q is not on the %s allow list", capitalize(noun), name, pl),
			GroupKey: string(contract.RiskUnvettedImport) + ":" + pl,
			Metadata: meta,
		}}
	}
	return nil
}

// UnresolvedReferenceRisk reports an external reference that could not be
// found inside the package.
func UnresolvedReferenceRisk(lang contract.Language, target string, sourced bool) RiskTemplate {
	pl := policy.Language(lang)
	if sourced {
		return RiskTemplate{
			Code:     contract.RiskUnresolvedSource,
			Severity: contract.SeverityWarning,
			Message:  fmt.Sprintf("Sourced file %s is not part of the package", target),
			GroupKey: string(contract.RiskUnresolvedSource) + ":" + pl,
			Metadata: map[string]string{"target": target},
		}
	}
	return RiskTemplate{
		Code:     contract.RiskUnresolvedReference,
		Severity: contract.SeverityWarning,
		Message:  fmt.Sprintf("External reference %s could not be resolved", target),
		GroupKey: string(contract.RiskUnresolvedReference) + ":" + pl,
		Metadata: map[string]string{"target": target},
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// installRisks evaluates every package named by an install command.
func installRisks(ctx RiskContext, perm *contract.Permission, f contract.Finding) []RiskTemplate {
	tool := ""
	if perm != nil {
		tool = perm.Tool
	}
	lang := installLanguage(tool)
	var out []RiskTemplate
	seen := map[contract.RiskCode]bool{}
	for _, pkg := range InstallPackages(f.Metadata["value"]) {
		for _, r := range DependencyRisks(ctx.Policy, lang, pkg, "package") {
			if seen[r.Code] {
				continue
			}
			seen[r.Code] = true
			out = append(out, r)
		}
	}
	return out
}

func installLanguage(tool string) contract.Language {
	switch tool {
	case "pip", "pip3", "pipx", "uv", "python", "python3":
		return contract.LangPython
	case "npm", "npx", "yarn", "pnpm", "bun":
		return contract.LangJavaScript
	case "go":
		return contract.LangGoMod
	}
	return contract.LangBash
}

// InstallPackages extracts package names from install arguments, dropping
// flags, their file operands and version specifiers.
func InstallPackages(args string) []string {
	var pkgs []string
	fields := strings.Fields(args)
	for i := 0; i < len(fields); i++ {
		a := fields[i]
		switch {
		case a == "-r" || a == "--requirement" || a == "-c" || a == "--constraint" || a == "-e" || a == "--editable":
			i++
			continue
		case strings.HasPrefix(a, "-"), strings.HasPrefix(a, "$"), strings.HasPrefix(a, "."), strings.HasPrefix(a, "/"):
			continue
		}
		if j := strings.IndexAny(a, "=<>~!;["); j > 0 {
			a = a[:j]
		}
		if j := strings.LastIndex(a, "@"); j > 0 {
			a = a[:j]
		}
		if a != "" {
			pkgs = append(pkgs, a)
		}
	}
	return pkgs
}

// importRisks evaluates a module declared in a dependency manifest.
func importRisks(ctx RiskContext, _ *contract.Permission, f contract.Finding) []RiskTemplate {
	name := f.Metadata["value"]
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "/") {
		return nil
	}
	return DependencyRisks(ctx.Policy, ctx.Language, name, "import")
}

// DangerousPath reports paths whose removal would wipe a home directory,
// a system directory or the filesystem root.
func DangerousPath(p string) bool {
	p = strings.Trim(strings.TrimSpace(p), `"'`)
	switch p {
	case "/", "/*", "~", "~/", "~/*", "*", ".", "..", "./*", "$HOME", "${HOME}", "$HOME/", "$HOME/*":
		return true
	}
	if unresolvedRe.MatchString(p) {
		return true
	}
	switch strings.TrimSuffix(p, "/") {
	case "/etc", "/usr", "/var", "/bin", "/sbin", "/boot", "/lib", "/opt", "/home", "/root", "/System", "/Users", "/dev":
		return true
	}
	return false
}

func recursiveDeleteRisks(_ RiskContext, _ *contract.Permission, f contract.Finding) []RiskTemplate {
	flags := f.Metadata["flags"]
	if f.Metadata["recursive"] == "" && !strings.Contains(flags, "r") && !strings.Contains(flags, "R") {
		return nil
	}
	path := f.Metadata["path"]
	sev := contract.SeverityWarning
	if DangerousPath(path) {
		sev = contract.SeverityCritical
	}
	target := path
	if target == "" {
		target = "an unresolved path"
	}
	return []RiskTemplate{{
		Code:       contract.RiskRecursiveDelete,
		Severity:   sev,
		Message:    fmt.Sprintf("Recursively deletes %s", target),
		Metadata:   map[string]string{"path": path},
		LinkScopes: []contract.Scope{contract.ScopeFS, contract.ScopeSys},
	}}
}

// InsecureMode reports file modes that are world-writable or set-id.
func InsecureMode(mode string) bool {
	m := strings.Trim(strings.TrimSpace(mode), `"'`)
	m = strings.TrimPrefix(strings.TrimPrefix(m, "0o"), "0O")
	if n, err := strconv.ParseUint(m, 8, 32); err == nil && m != "" {
		return n&0o002 != 0 || n&0o6000 != 0
	}
	for _, clause := range strings.Split(m, ",") {
		who, perms, ok := strings.Cut(clause, "+")
		if !ok {
			who, perms, ok = strings.Cut(clause, "=")
		}
		if !ok {
			continue
		}
		if strings.Contains(perms, "s") {
			return true
		}
		if strings.Contains(perms, "w") && (who == "" || strings.ContainsAny(who, "oa")) {
			return true
		}
	}
	return false
}

func insecureModeRisks(_ RiskContext, _ *contract.Permission, f contract.Finding) []RiskTemplate {
	mode := f.Metadata["mode"]
	if !InsecureMode(mode) {
		return nil
	}
	return []RiskTemplate{{
		Code:       contract.RiskInsecurePermissions,
		Severity:   contract.SeverityWarning,
		Message:    fmt.Sprintf("Sets insecure file mode %s", mode),
		Metadata:   map[string]string{"mode": mode, "path": f.Metadata["path"]},
		LinkScopes: []contract.Scope{contract.ScopeFS, contract.ScopeSys},
	}}
}

func sensitiveFileRisks(_ RiskContext, _ *contract.Permission, f contract.Finding) []RiskTemplate {
	path := f.Metadata["path"]
	if path == "" {
		path = f.Metadata["file"]
	}
	if !sensitivePathRe.MatchString(path) {
		return nil
	}
	sev := contract.SeverityWarning
	if privateKeyRe.MatchString(path) {
		sev = contract.SeverityCritical
	}
	return []RiskTemplate{{
		Code:       contract.RiskSensitiveFileAccess,
		Severity:   sev,
		Message:    fmt.Sprintf("Accesses sensitive file %s", path),
		Metadata:   map[string]string{"path": path},
		LinkScopes: []contract.Scope{contract.ScopeFS, contract.ScopeSys},
	}}
}

var sensitivePathRe = regexp.MustCompile(`(?i)(\.ssh/|id_rsa|id_ed25519|id_ecdsa|\.pem$|/etc/shadow|/etc/passwd|/etc/sudoers|\.aws/credentials|\.aws/config|\.netrc|\.gnupg|\.kube/config|\.docker/config\.json|(^|/)\.env$|\.git-credentials|\.npmrc|\.pypirc)`)

func profileRisks(_ RiskContext, _ *contract.Permission, f contract.Finding) []RiskTemplate {
	path := f.Metadata["path"]
	if path == "" {
		path = f.Metadata["file"]
	}
	if !profilePathRe.MatchString(path) {
		return nil
	}
	return []RiskTemplate{{
		Code:       contract.RiskShellProfile,
		Severity:   contract.SeverityWarning,
		Message:    fmt.Sprintf("Modifies shell startup file %s", path),
		Metadata:   map[string]string{"path": path},
		LinkScopes: []contract.Scope{contract.ScopeFS, contract.ScopeSys},
	}}
}

var profilePathRe = regexp.MustCompile(`(\.bashrc|\.bash_profile|\.bash_login|\.zshrc|\.zprofile|\.zshenv|(^|/)\.profile|/etc/profile|config\.fish|/etc/bash\.bashrc)`)

func secretEnvRisks(_ RiskContext, _ *contract.Permission, f contract.Finding) []RiskTemplate {
	key := f.Metadata["key"]
	if !IsSecretName(key) {
		return nil
	}
	return []RiskTemplate{{
		Code:     contract.RiskCredentialAccess,
		Severity: contract.SeverityWarning,
		Message:  fmt.Sprintf("Reads credential from environment variable %s", key),
		Metadata: map[string]string{"key": key},
	}}
}

// unresolvedCommandRisks flags commands assembled from runtime values.
func unresolvedCommandRisks(_ RiskContext, _ *contract.Permission, f contract.Finding) []RiskTemplate {
	cmd := f.Metadata["command"]
	shell := strings.EqualFold(f.Metadata["shell"], "true")
	if !shell && (!strings.Contains(cmd, "$") || strings.HasPrefix(cmd, "$[")) {
		return nil
	}
	msg := "Command is built from runtime values"
	if shell {
		msg = "Command runs through a shell with shell=True"
	}
	return []RiskTemplate{{
		Code:     contract.RiskCommandInjection,
		Severity: contract.SeverityWarning,
		Message:  msg,
		Metadata: map[string]string{"command": cmd},
	}}
}
