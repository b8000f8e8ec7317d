package config

import (
	"strings"

	"github.com/FeiyouG/skill-lab-sub000/policy"
)

// Overrides is a partial configuration layered over a base. Nil pointers
// and nil maps leave the base value untouched.
type Overrides struct {
	Scan    *ScanOverrides    `yaml:"scan" json:"scan,omitempty" mapstructure:"scan"`
	Policy  *policy.Policy    `yaml:"policy" json:"policy,omitempty" mapstructure:"policy"`
	Scoring *ScoringOverrides `yaml:"scoring" json:"scoring,omitempty" mapstructure:"scoring"`
}

// ScanOverrides overrides Scan fields.
type ScanOverrides struct {
	MaxFileSize  *int64   `yaml:"max_file_size" json:"max_file_size,omitempty" mapstructure:"max_file_size"`
	MaxFileCount *int     `yaml:"max_file_count" json:"max_file_count,omitempty" mapstructure:"max_file_count"`
	MaxScanDepth *int     `yaml:"max_scan_depth" json:"max_scan_depth,omitempty" mapstructure:"max_scan_depth"`
	Exclude      []string `yaml:"exclude" json:"exclude,omitempty" mapstructure:"exclude"`
}

// ScoringOverrides overrides Scoring fields. Maps merge key by key.
type ScoringOverrides struct {
	Severity          map[string]int `yaml:"severity" json:"severity,omitempty" mapstructure:"severity"`
	Permissions       map[string]int `yaml:"permissions" json:"permissions,omitempty" mapstructure:"permissions"`
	DefaultPermission *int           `yaml:"default_permission" json:"default_permission,omitempty" mapstructure:"default_permission"`
	WildcardPenalty   *int           `yaml:"wildcard_penalty" json:"wildcard_penalty,omitempty" mapstructure:"wildcard_penalty"`
	Uplifts           map[string]int `yaml:"uplifts" json:"uplifts,omitempty" mapstructure:"uplifts"`
	ManyCritical      *int           `yaml:"many_critical" json:"many_critical,omitempty" mapstructure:"many_critical"`
	Thresholds        map[string]int `yaml:"thresholds" json:"thresholds,omitempty" mapstructure:"thresholds"`
}

// Merge layers o over base and returns the result. Scalars replace,
// maps merge key by key, and import and domain lists are unioned. base is
// not modified.
func Merge(base Config, o Overrides) Config {
	out := base.Clone()

	if s := o.Scan; s != nil {
		if s.MaxFileSize != nil {
			out.Scan.MaxFileSize = *s.MaxFileSize
		}
		if s.MaxFileCount != nil {
			out.Scan.MaxFileCount = *s.MaxFileCount
		}
		if s.MaxScanDepth != nil {
			out.Scan.MaxScanDepth = *s.MaxScanDepth
		}
		if s.Exclude != nil {
			out.Scan.Exclude = union(out.Scan.Exclude, s.Exclude)
		}
	}

	if p := o.Policy; p != nil {
		out.Policy.Network.Allow = union(out.Policy.Network.Allow, p.Network.Allow)
		out.Policy.Network.Deny = union(out.Policy.Network.Deny, p.Network.Deny)
		if len(p.Imports) > 0 && out.Policy.Imports == nil {
			out.Policy.Imports = make(map[string]policy.Lists, len(p.Imports))
		}
		for lang, l := range p.Imports {
			lang = strings.ToLower(lang)
			cur := out.Policy.Imports[lang]
			out.Policy.Imports[lang] = policy.Lists{
				Allow: union(cur.Allow, l.Allow),
				Deny:  union(cur.Deny, l.Deny),
			}
		}
	}

	if s := o.Scoring; s != nil {
		out.Scoring.Severity = mergeInts(out.Scoring.Severity, s.Severity)
		out.Scoring.Permissions = mergeInts(out.Scoring.Permissions, s.Permissions)
		out.Scoring.Uplifts = mergeInts(out.Scoring.Uplifts, s.Uplifts)
		out.Scoring.Thresholds = mergeInts(out.Scoring.Thresholds, s.Thresholds)
		if s.DefaultPermission != nil {
			out.Scoring.DefaultPermission = *s.DefaultPermission
		}
		if s.WildcardPenalty != nil {
			out.Scoring.WildcardPenalty = *s.WildcardPenalty
		}
		if s.ManyCritical != nil {
			out.Scoring.ManyCritical = *s.ManyCritical
		}
	}
	return out
}

// union appends the entries of add missing from base, keeping order.
func union(base, add []string) []string {
	seen := make(map[string]bool, len(base)+len(add))
	out := make([]string, 0, len(base)+len(add))
	for _, list := range [][]string{base, add} {
		for _, s := range list {
			if s = strings.TrimSpace(s); s == "" || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func mergeInts(base, add map[string]int) map[string]int {
	if len(add) == 0 {
		return base
	}
	if base == nil {
		base = make(map[string]int, len(add))
	}
	for k, v := range add {
		base[strings.ToLower(k)] = v
	}
	return base
}
