package contract

import "strings"

// RiskFilter selects risks for display.
type RiskFilter struct {
	MinSeverity Severity
	Categories  []string
}

// FilterRisks returns the subset of risks matching the given filter.
// Categories are matched case-insensitively against the RiskCode prefix
// (any listed category matches). Empty filter fields match all risks.
func FilterRisks(risks []Risk, f RiskFilter) []Risk {
	if f.MinSeverity == "" && len(f.Categories) == 0 {
		return risks
	}

	var result []Risk
	for _, r := range risks {
		if f.MinSeverity != "" && r.Severity.Rank() < f.MinSeverity.Rank() {
			continue
		}
		if !hasCategory(r.Type, f.Categories) {
			continue
		}
		result = append(result, r)
	}
	return result
}

// hasCategory returns true if code belongs to one of the wanted categories.
func hasCategory(code RiskCode, wanted []string) bool {
	if len(wanted) == 0 {
		return true
	}
	cat := code.Category()
	for _, w := range wanted {
		if strings.EqualFold(cat, w) {
			return true
		}
	}
	return false
}
