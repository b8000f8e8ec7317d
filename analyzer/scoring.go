package analyzer

import (
	"fmt"
	"strings"

	"github.com/FeiyouG/skill-lab-sub000/config"
	"github.com/FeiyouG/skill-lab-sub000/contract"
)

// Score computes the final score: the largest severity contribution, plus
// the largest permission value, plus every applicable uplift. Risks sharing
// a group key contribute once, at the group's highest severity.
func Score(risks []contract.Risk, perms []contract.Permission, s config.Scoring) (int, contract.ScoreBreakdown) {
	var b contract.ScoreBreakdown

	b.Contributions = contributions(risks, s)
	critical := 0
	for _, c := range b.Contributions {
		b.SeverityScore = max(b.SeverityScore, c.Value)
		if c.Severity == contract.SeverityCritical {
			critical++
		}
	}

	for _, p := range perms {
		v := s.PermissionScore(p.Key())
		if p.HasWildcard() {
			v += s.WildcardPenalty
		}
		b.PermissionScore = max(b.PermissionScore, v)
	}

	uplift := func(name string, applies bool) {
		if !applies {
			return
		}
		if b.Uplifts == nil {
			b.Uplifts = make(map[string]int)
		}
		b.Uplifts[name] = s.Uplifts[name]
	}
	uplift(config.UpliftExternalWrite, hasRisk(risks, contract.RiskDataExfiltration))
	uplift(config.UpliftRemoteCode, hasRisk(risks, contract.RiskRemoteCodeExec))
	uplift(config.UpliftManyCritical, s.ManyCritical > 0 && critical >= s.ManyCritical)
	uplift(config.UpliftCredentialLeak, hasRisk(risks, contract.RiskCredentialLeak, contract.RiskSecretExposure))

	total := b.SeverityScore + b.PermissionScore
	for _, v := range b.Uplifts {
		total += v
	}
	return total, b
}

// contributions lists one severity term per ungrouped risk and one per group
// key, in order of first appearance.
func contributions(risks []contract.Risk, s config.Scoring) []contract.Contribution {
	var out []contract.Contribution
	groups := make(map[string]int)
	for _, r := range risks {
		if r.GroupKey == "" {
			key := r.ID
			if key == "" {
				key = string(r.Type)
			}
			out = append(out, contract.Contribution{
				Key:      key,
				Severity: r.Severity,
				Count:    1,
				Value:    s.SeverityScore(r.Severity),
			})
			continue
		}
		if j, ok := groups[r.GroupKey]; ok {
			c := &out[j]
			c.Count++
			if r.Severity.Rank() > c.Severity.Rank() {
				c.Severity = r.Severity
				c.Value = s.SeverityScore(r.Severity)
			}
			continue
		}
		groups[r.GroupKey] = len(out)
		out = append(out, contract.Contribution{
			Key:      r.GroupKey,
			Severity: r.Severity,
			Count:    1,
			Value:    s.SeverityScore(r.Severity),
		})
	}
	return out
}

func hasRisk(risks []contract.Risk, codes ...contract.RiskCode) bool {
	for _, r := range risks {
		for _, c := range codes {
			if r.Type == c {
				return true
			}
		}
	}
	return false
}

// Summarize renders a one-line description of a result.
func Summarize(res *contract.Result) string {
	if len(res.Risks) == 0 && len(res.Permissions) == 0 {
		return fmt.Sprintf("Risk level %s (score %d): no permissions or risks detected", res.RiskLevel, res.Score)
	}
	counts := map[contract.Severity]int{}
	for _, r := range res.Risks {
		counts[r.Severity]++
	}
	var parts []string
	for _, sev := range []contract.Severity{contract.SeverityCritical, contract.SeverityWarning, contract.SeverityInfo} {
		if n := counts[sev]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, sev))
		}
	}
	risks := fmt.Sprintf("%d risks", len(res.Risks))
	if len(parts) > 0 {
		risks += " (" + strings.Join(parts, ", ") + ")"
	}
	return fmt.Sprintf("Risk level %s (score %d): %d permissions, %s",
		res.RiskLevel, res.Score, len(res.Permissions), risks)
}
