// Package config holds the analyzer configuration: scan limits, import and
// network policy, and scoring constants.
package config

import (
	"maps"
	"slices"

	"github.com/FeiyouG/skill-lab-sub000/contract"
	"github.com/FeiyouG/skill-lab-sub000/policy"
)

// Uplift names.
const (
	UpliftExternalWrite  = "external_write"
	UpliftRemoteCode     = "remote_code_execution"
	UpliftManyCritical   = "many_critical"
	UpliftCredentialLeak = "credential_leak"
)

// Config is the resolved configuration of a run.
type Config struct {
	Scan    Scan          `yaml:"scan" json:"scan" mapstructure:"scan"`
	Policy  policy.Policy `yaml:"policy" json:"policy" mapstructure:"policy"`
	Scoring Scoring       `yaml:"scoring" json:"scoring" mapstructure:"scoring"`
}

// Scan bounds the files a run looks at.
type Scan struct {
	MaxFileSize  int64    `yaml:"max_file_size" json:"max_file_size" mapstructure:"max_file_size"`
	MaxFileCount int      `yaml:"max_file_count" json:"max_file_count" mapstructure:"max_file_count"`
	MaxScanDepth int      `yaml:"max_scan_depth" json:"max_scan_depth" mapstructure:"max_scan_depth"`
	Exclude      []string `yaml:"exclude" json:"exclude,omitempty" mapstructure:"exclude"`
}

// Limits returns the scan bounds in contract form.
func (s Scan) Limits() contract.ScanLimits {
	return contract.ScanLimits{
		MaxFileSize:  s.MaxFileSize,
		MaxFileCount: s.MaxFileCount,
		MaxScanDepth: s.MaxScanDepth,
	}
}

// Scoring holds the constants of the scoring function.
type Scoring struct {
	Severity          map[string]int `yaml:"severity" json:"severity" mapstructure:"severity"`
	Permissions       map[string]int `yaml:"permissions" json:"permissions" mapstructure:"permissions"`
	DefaultPermission int            `yaml:"default_permission" json:"default_permission" mapstructure:"default_permission"`
	WildcardPenalty   int            `yaml:"wildcard_penalty" json:"wildcard_penalty" mapstructure:"wildcard_penalty"`
	Uplifts           map[string]int `yaml:"uplifts" json:"uplifts" mapstructure:"uplifts"`
	ManyCritical      int            `yaml:"many_critical" json:"many_critical" mapstructure:"many_critical"`
	// Thresholds maps each risk level to the minimum score that reaches it.
	Thresholds map[string]int `yaml:"thresholds" json:"thresholds" mapstructure:"thresholds"`
}

// SeverityScore returns the base value of a severity.
func (s Scoring) SeverityScore(sev contract.Severity) int {
	return s.Severity[string(sev)]
}

// PermissionScore returns the base value of a scope:permission key.
func (s Scoring) PermissionScore(key string) int {
	if v, ok := s.Permissions[key]; ok {
		return v
	}
	return s.DefaultPermission
}

// Level maps a score to the highest level whose threshold it reaches.
func (s Scoring) Level(score int) contract.RiskLevel {
	level := contract.LevelSafe
	for _, l := range contract.RiskLevels {
		if floor, ok := s.Thresholds[string(l)]; ok && score >= floor {
			level = l
		}
	}
	return level
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Scan: Scan{
			MaxFileSize:  1 << 20,
			MaxFileCount: 200,
			MaxScanDepth: 5,
		},
		Policy: policy.Default(),
		Scoring: Scoring{
			Severity: map[string]int{
				string(contract.SeverityInfo):     1,
				string(contract.SeverityWarning):  3,
				string(contract.SeverityCritical): 5,
			},
			Permissions: map[string]int{
				"fs:read":        1,
				"fs:list":        1,
				"fs:write":       2,
				"fs:delete":      3,
				"sys:shell":      3,
				"sys:sudo":       4,
				"sys:eval":       3,
				"sys:schedule":   2,
				"sys:service":    2,
				"sys:delegate":   1,
				"net:fetch":      2,
				"net:search":     1,
				"env:read":       1,
				"hooks:register": 2,
				"data:query":     1,
				"data:write":     1,
				"dep:import":     1,
				"dep:install":    2,
				"dep:source":     1,
			},
			DefaultPermission: 1,
			WildcardPenalty:   1,
			Uplifts: map[string]int{
				UpliftExternalWrite:  2,
				UpliftRemoteCode:     3,
				UpliftManyCritical:   2,
				UpliftCredentialLeak: 2,
			},
			ManyCritical: 3,
			Thresholds: map[string]int{
				string(contract.LevelSafe):   0,
				string(contract.LevelLow):    1,
				string(contract.LevelMedium): 4,
				string(contract.LevelHigh):   7,
				string(contract.LevelAvoid):  10,
			},
		},
	}
}

// Clone returns a deep copy of c.
func (c Config) Clone() Config {
	out := c
	out.Scan.Exclude = slices.Clone(c.Scan.Exclude)
	out.Policy = clonePolicy(c.Policy)
	out.Scoring.Severity = maps.Clone(c.Scoring.Severity)
	out.Scoring.Permissions = maps.Clone(c.Scoring.Permissions)
	out.Scoring.Uplifts = maps.Clone(c.Scoring.Uplifts)
	out.Scoring.Thresholds = maps.Clone(c.Scoring.Thresholds)
	return out
}

func clonePolicy(p policy.Policy) policy.Policy {
	out := policy.Policy{
		Network: policy.Lists{Allow: slices.Clone(p.Network.Allow), Deny: slices.Clone(p.Network.Deny)},
	}
	if p.Imports != nil {
		out.Imports = make(map[string]policy.Lists, len(p.Imports))
		for k, l := range p.Imports {
			out.Imports[k] = policy.Lists{Allow: slices.Clone(l.Allow), Deny: slices.Clone(l.Deny)}
		}
	}
	return out
}
