package contract

import "slices"

// RiskLevel is the five-band classification of a final score.
type RiskLevel string

const (
	LevelSafe   RiskLevel = "safe"
	LevelLow    RiskLevel = "low"
	LevelMedium RiskLevel = "medium"
	LevelHigh   RiskLevel = "high"
	LevelAvoid  RiskLevel = "avoid"
)

// RiskLevels lists the levels from least to most severe.
var RiskLevels = []RiskLevel{LevelSafe, LevelLow, LevelMedium, LevelHigh, LevelAvoid}

// Rank returns the position of the level in RiskLevels, or -1.
func (l RiskLevel) Rank() int {
	return slices.Index(RiskLevels, l)
}

// ScanLimits bounds the work of a single run.
type ScanLimits struct {
	MaxFileSize  int64 `json:"max_file_size" yaml:"max_file_size" mapstructure:"max_file_size"`
	MaxFileCount int   `json:"max_file_count" yaml:"max_file_count" mapstructure:"max_file_count"`
	MaxScanDepth int   `json:"max_scan_depth" yaml:"max_scan_depth" mapstructure:"max_scan_depth"`
}

// StateMetadata is run bookkeeping carried by the state.
type StateMetadata struct {
	ScannedFiles     []string      `json:"scanned_files"`
	SkippedFiles     []SkippedFile `json:"skipped_files"`
	RulesUsed        []string      `json:"rules_used"`
	Limits           ScanLimits    `json:"limits"`
	ManifestPath     string        `json:"manifest_path,omitempty"`
	ManifestChecksum string        `json:"manifest_checksum,omitempty"`
}

// AnalyzerState is threaded through every stage. Stages never modify a
// state they were given; they call Clone and return the copy.
type AnalyzerState struct {
	SkillID        string          `json:"skill_id"`
	SkillVersionID string          `json:"skill_version_id,omitempty"`
	Files          []FileInfo      `json:"files"`
	Frontmatter    map[string]any  `json:"frontmatter,omitempty"`
	Discovered     []FileReference `json:"discovered,omitempty"`
	ScanQueue      []FileReference `json:"scan_queue"`
	Permissions    []Permission    `json:"permissions"`
	Findings       []Finding       `json:"findings"`
	Risks          []Risk          `json:"risks"`
	Warnings       []string        `json:"warnings"`
	Metadata       StateMetadata   `json:"metadata"`
}

// Clone returns a copy that shares no mutable slices or maps with s.
// Frontmatter is treated as read-only after parsing and is shared.
func (s *AnalyzerState) Clone() *AnalyzerState {
	c := *s
	c.Files = slices.Clone(s.Files)
	c.Discovered = slices.Clone(s.Discovered)
	c.ScanQueue = slices.Clone(s.ScanQueue)
	c.Findings = cloneFindings(s.Findings)
	c.Warnings = slices.Clone(s.Warnings)

	c.Permissions = make([]Permission, len(s.Permissions))
	for i, p := range s.Permissions {
		c.Permissions[i] = p.Clone()
	}
	c.Risks = make([]Risk, len(s.Risks))
	for i, r := range s.Risks {
		c.Risks[i] = r.Clone()
	}

	c.Metadata.ScannedFiles = slices.Clone(s.Metadata.ScannedFiles)
	c.Metadata.SkippedFiles = slices.Clone(s.Metadata.SkippedFiles)
	c.Metadata.RulesUsed = slices.Clone(s.Metadata.RulesUsed)
	return &c
}

// Warn appends a warning unless the same text is already present.
func (s *AnalyzerState) Warn(msg string) {
	if !slices.Contains(s.Warnings, msg) {
		s.Warnings = append(s.Warnings, msg)
	}
}

// Skip records a skipped file.
func (s *AnalyzerState) Skip(path, reason string) {
	for _, sk := range s.Metadata.SkippedFiles {
		if sk.Path == path && sk.Reason == reason {
			return
		}
	}
	s.Metadata.SkippedFiles = append(s.Metadata.SkippedFiles, SkippedFile{Path: path, Reason: reason})
}

// MarkScanned records a scanned file once.
func (s *AnalyzerState) MarkScanned(path string) {
	if !slices.Contains(s.Metadata.ScannedFiles, path) {
		s.Metadata.ScannedFiles = append(s.Metadata.ScannedFiles, path)
	}
}

// UseRule records a rule id once.
func (s *AnalyzerState) UseRule(id string) {
	if !slices.Contains(s.Metadata.RulesUsed, id) {
		s.Metadata.RulesUsed = append(s.Metadata.RulesUsed, id)
	}
}

// Permission returns the permission with the given id.
func (s *AnalyzerState) Permission(id string) (*Permission, bool) {
	for i := range s.Permissions {
		if s.Permissions[i].ID == id {
			return &s.Permissions[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy of p.
func (p Permission) Clone() Permission {
	p.Args = slices.Clone(p.Args)
	p.References = slices.Clone(p.References)
	p.Risks = slices.Clone(p.Risks)
	p.Metadata = cloneMap(p.Metadata)
	return p
}

// Clone returns a deep copy of r.
func (r Risk) Clone() Risk {
	r.Permissions = slices.Clone(r.Permissions)
	r.Metadata = cloneMap(r.Metadata)
	return r
}

func cloneFindings(in []Finding) []Finding {
	if in == nil {
		return nil
	}
	out := make([]Finding, len(in))
	for i, f := range in {
		f.Metadata = cloneMap(f.Metadata)
		out[i] = f
	}
	return out
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ScoreBreakdown explains how a final score was reached.
type ScoreBreakdown struct {
	SeverityScore   int            `json:"severity_score"`
	PermissionScore int            `json:"permission_score"`
	Uplifts         map[string]int `json:"uplifts,omitempty"`
	Contributions   []Contribution `json:"contributions,omitempty"`
}

// Contribution is one severity term: a single risk or a whole group.
type Contribution struct {
	Key      string   `json:"key"`
	Severity Severity `json:"severity"`
	Count    int      `json:"count"`
	Value    int      `json:"value"`
}

// ResultMetadata is the bookkeeping surfaced to callers.
type ResultMetadata struct {
	ScannedFiles     []string      `json:"scanned_files"`
	SkippedFiles     []SkippedFile `json:"skipped_files"`
	RulesUsed        []string      `json:"rules_used"`
	Limits           ScanLimits    `json:"limits"`
	ManifestChecksum string        `json:"manifest_checksum,omitempty"`
	DurationMS       int64         `json:"duration_ms"`
}

// Result is the output of one analysis run.
type Result struct {
	SkillID        string         `json:"skill_id"`
	SkillVersionID string         `json:"skill_version_id,omitempty"`
	Permissions    []Permission   `json:"permissions"`
	Risks          []Risk         `json:"risks"`
	Score          int            `json:"score"`
	RiskLevel      RiskLevel      `json:"risk_level"`
	Breakdown      ScoreBreakdown `json:"breakdown"`
	Summary        string         `json:"summary"`
	Warnings       []string       `json:"warnings"`
	Metadata       ResultMetadata `json:"metadata"`
}
