package contract

import (
	"fmt"
	"path"
	"strconv"
	"strings"
)

// Scope is the capability class of a Permission.
type Scope string

const (
	ScopeFS    Scope = "fs"
	ScopeSys   Scope = "sys"
	ScopeNet   Scope = "net"
	ScopeEnv   Scope = "env"
	ScopeHooks Scope = "hooks"
	ScopeData  Scope = "data"
	ScopeDep   Scope = "dep"
)

// PermissionSource records how a Permission came to exist.
type PermissionSource string

const (
	SourceFrontmatter PermissionSource = "frontmatter" // declared by the manifest
	SourceDetected    PermissionSource = "detected"    // matched by a rule
	SourceInferred    PermissionSource = "inferred"    // derived from discovery
)

// Severity classifies a Risk.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Rank orders severities: info < warning < critical.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// RiskCode is the CATEGORY:subtype taxonomy key of a Risk.
type RiskCode string

// Category returns the part of the code before the colon.
func (c RiskCode) Category() string {
	cat, _, _ := strings.Cut(string(c), ":")
	return cat
}

const (
	RiskPromptOverride   RiskCode = "PROMPT:instruction_override"
	RiskPromptExtraction RiskCode = "PROMPT:prompt_extraction"
	RiskPromptConceal    RiskCode = "PROMPT:concealment"

	RiskCommandInjection RiskCode = "INJECTION:command_injection"
	RiskCodeEval         RiskCode = "INJECTION:code_eval"

	RiskDataExfiltration RiskCode = "NETWORK:data_exfiltration"
	RiskCredentialLeak   RiskCode = "NETWORK:credential_leak"
	RiskDeniedDomain     RiskCode = "NETWORK:denied_domain"
	RiskExternalFetch    RiskCode = "NETWORK:external_fetch"
	RiskRemoteCodeExec   RiskCode = "NETWORK:remote_code_execution"

	RiskCredentialAccess RiskCode = "SECRETS:credential_access"
	RiskSecretExposure   RiskCode = "SECRETS:secret_exposure"

	RiskRecursiveDelete RiskCode = "DESTRUCTIVE:recursive_delete"
	RiskDiskWipe        RiskCode = "DESTRUCTIVE:disk_wipe"

	RiskSudo                RiskCode = "PRIVILEGE:sudo"
	RiskInsecurePermissions RiskCode = "PRIVILEGE:insecure_permissions"
	RiskSensitiveFileAccess RiskCode = "PRIVILEGE:sensitive_file_access"

	RiskScheduledTask RiskCode = "PERSISTENCE:scheduled_task"
	RiskService       RiskCode = "PERSISTENCE:service"
	RiskShellProfile  RiskCode = "PERSISTENCE:shell_profile"

	RiskDeniedImport   RiskCode = "DEPENDENCY:denied_import"
	RiskUnvettedImport RiskCode = "DEPENDENCY:unvetted_import"

	RiskUnresolvedSource    RiskCode = "REFERENCE:unresolved_source"
	RiskUnresolvedReference RiskCode = "REFERENCE:unresolved_reference"
)

// ReferenceKind says what sort of location a Reference points at.
type ReferenceKind string

const (
	RefFrontmatter ReferenceKind = "frontmatter"
	RefContent     ReferenceKind = "content"
	RefScript      ReferenceKind = "script"
	RefInline      ReferenceKind = "inline"
)

// Reference is a provenance pointer. Following Parent leads back to the manifest.
type Reference struct {
	File    string        `json:"file"`
	Line    int           `json:"line"`
	LineEnd int           `json:"line_end,omitempty"`
	Kind    ReferenceKind `json:"type"`
	Parent  *Reference    `json:"parent,omitempty"`
}

// End returns the last line covered by the reference.
func (r Reference) End() int {
	if r.LineEnd > r.Line {
		return r.LineEnd
	}
	return r.Line
}

// Overlaps reports whether both references point into the same file and
// their line ranges intersect.
func (r Reference) Overlaps(o Reference) bool {
	if r.File != o.File {
		return false
	}
	return r.Line <= o.End() && o.Line <= r.End()
}

// SourceType says whether a discovered artifact lives inside the package.
type SourceType string

const (
	SourceLocal    SourceType = "local"
	SourceExternal SourceType = "external"
)

// Role classifies the purpose of a discovered artifact.
type Role string

const (
	RoleEntrypoint Role = "entrypoint"
	RoleReadme     Role = "readme"
	RoleReference  Role = "reference"
	RoleLicense    Role = "license"
	RoleScript     Role = "script"
	RoleConfig     Role = "config"
	RoleLibrary    Role = "library"
	RoleHostFS     Role = "host-fs"
	RoleRegular    Role = "regular"
)

// Rank orders roles for the scan queue.
func (r Role) Rank() int {
	switch r {
	case RoleEntrypoint:
		return 0
	case RoleReadme:
		return 1
	case RoleReference:
		return 2
	case RoleLicense:
		return 3
	case RoleScript:
		return 4
	case RoleConfig:
		return 5
	default:
		return 6
	}
}

// DiscoveryMethod says how a reference was found.
type DiscoveryMethod string

const (
	MethodImport       DiscoveryMethod = "import"
	MethodURL          DiscoveryMethod = "url"
	MethodSource       DiscoveryMethod = "source"
	MethodMarkdownLink DiscoveryMethod = "markdown-link"
	MethodInlineCode   DiscoveryMethod = "inline-code"
	MethodBarePath     DiscoveryMethod = "bare-path"
	MethodCodeBlock    DiscoveryMethod = "code-block"
	MethodManifest     DiscoveryMethod = "manifest"
)

// FileReference is an artifact discovered while walking the package.
// Path is a normalized file path, a URL, or a code-block pseudo path
// ("parent:start-end").
type FileReference struct {
	Path       string          `json:"path"`
	SourceType SourceType      `json:"source_type"`
	FileType   Language        `json:"file_type"`
	Role       Role            `json:"role"`
	Depth      int             `json:"depth"`
	Method     DiscoveryMethod `json:"discovery_method"`
	Language   Language        `json:"language,omitempty"` // language of the referencing code, for imports
	Size       int64           `json:"size,omitempty"`
	Binary     bool            `json:"binary,omitempty"`
	Via        *Reference      `json:"via,omitempty"`
}

// Finding is one structural match of a rule.
type Finding struct {
	RuleID       string            `json:"rule_id"`
	Reference    Reference         `json:"reference"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	PermissionID string            `json:"permission_id,omitempty"`
}

// Permission is a capability the package would exercise.
type Permission struct {
	ID         string            `json:"id"`
	Tool       string            `json:"tool"`
	Scope      Scope             `json:"scope"`
	Permission string            `json:"permission"`
	Args       []string          `json:"args"`
	Source     PermissionSource  `json:"source"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	References []Reference       `json:"references"`
	Risks      []string          `json:"risks,omitempty"`
}

// Key returns "scope:permission".
func (p Permission) Key() string {
	return string(p.Scope) + ":" + p.Permission
}

// HasWildcard reports whether any argument is unbounded.
func (p Permission) HasWildcard() bool {
	for _, a := range p.Args {
		if a == WildcardArg || strings.Contains(a, "*") {
			return true
		}
	}
	return false
}

// WildcardArg stands in for an unknown argument list.
const WildcardArg = "*"

// Risk is a security-relevant signal justified by one or more permissions.
type Risk struct {
	ID          string            `json:"id"`
	Type        RiskCode          `json:"type"`
	GroupKey    string            `json:"group_key,omitempty"`
	Severity    Severity          `json:"severity"`
	Message     string            `json:"message"`
	Reference   Reference         `json:"reference"`
	Permissions []string          `json:"permissions"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// SkippedFile records a file that was not scanned.
type SkippedFile struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Skip reasons.
const (
	SkipBinary      = "binary"
	SkipTooLarge    = "too_large"
	SkipTooMany     = "too_many"
	SkipUnsupported = "unsupported_filetype"
	SkipExternal    = "external"
	SkipUnreadable  = "unreadable"
)

// NormalizePath turns a package path into its map-key form: forward
// slashes, no leading "./" or "/", no "." or ".." segments.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(strings.TrimSpace(p), `\`, "/")
	if p == "" {
		return ""
	}
	p = path.Clean("/" + p)
	return strings.TrimPrefix(p, "/")
}

// BlockPath encodes the pseudo path of a code block inside parent.
func BlockPath(parent string, start, end int) string {
	return fmt.Sprintf("%s:%d-%d", parent, start, end)
}

// ParseBlockPath splits a pseudo path produced by BlockPath.
func ParseBlockPath(p string) (parent string, start, end int, ok bool) {
	i := strings.LastIndex(p, ":")
	if i <= 0 {
		return "", 0, 0, false
	}
	a, b, found := strings.Cut(p[i+1:], "-")
	if !found {
		return "", 0, 0, false
	}
	s, err1 := strconv.Atoi(a)
	e, err2 := strconv.Atoi(b)
	if err1 != nil || err2 != nil || s <= 0 || e < s {
		return "", 0, 0, false
	}
	return p[:i], s, e, true
}
