package analyzer

import (
	"context"
	"sort"
	"time"

	"github.com/FeiyouG/skill-lab-sub000/contract"
)

// AuditEntry is the outcome of analyzing one skill of an audit.
type AuditEntry struct {
	Path   string           `json:"path"`
	Result *contract.Result `json:"result,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// AuditReport aggregates the analysis of several skills.
type AuditReport struct {
	Timestamp      string             `json:"timestamp"`
	SkillCount     int                `json:"skill_count"`
	AggregateScore int                `json:"aggregate_score"`
	AggregateLevel contract.RiskLevel `json:"aggregate_level"`
	Entries        []AuditEntry       `json:"entries"`
	Summary        AuditSummary       `json:"summary"`
}

// AuditSummary counts risks and failures across an audit.
type AuditSummary struct {
	Critical int  `json:"critical"`
	Warning  int  `json:"warning"`
	Info     int  `json:"info"`
	Failed   int  `json:"failed"`
	Passed   bool `json:"passed"`
}

// Target names a skill to audit.
type Target struct {
	Path string
	Repo contract.Repository
}

// AnalyzeAll analyzes each target in turn. Per-skill failures are recorded
// in the report rather than returned.
func (a *Analyzer) AnalyzeAll(ctx context.Context, targets []Target) (*AuditReport, error) {
	entries := make([]AuditEntry, len(targets))
	for i, t := range targets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entries[i] = a.Audit(ctx, t)
	}
	return NewAuditReport(entries, a.now(), contract.LevelAvoid), nil
}

// Audit analyzes a single target and captures any error in the entry.
func (a *Analyzer) Audit(ctx context.Context, t Target) AuditEntry {
	res, err := a.Analyze(ctx, t.Repo, "", "")
	if err != nil {
		return AuditEntry{Path: t.Path, Error: err.Error()}
	}
	return AuditEntry{Path: t.Path, Result: res}
}

// NewAuditReport aggregates entries. The aggregate level is the worst level
// of any skill; the audit passes when no skill failed and every level is
// below failAt.
func NewAuditReport(entries []AuditEntry, now time.Time, failAt contract.RiskLevel) *AuditReport {
	sorted := make([]AuditEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	report := &AuditReport{
		Timestamp:      now.UTC().Format(time.RFC3339),
		SkillCount:     len(sorted),
		AggregateLevel: contract.LevelSafe,
		Entries:        sorted,
	}

	for _, e := range sorted {
		if e.Result == nil {
			report.Summary.Failed++
			continue
		}
		if e.Result.RiskLevel.Rank() > report.AggregateLevel.Rank() {
			report.AggregateLevel = e.Result.RiskLevel
		}
		report.AggregateScore = max(report.AggregateScore, e.Result.Score)
		for _, r := range e.Result.Risks {
			switch r.Severity {
			case contract.SeverityCritical:
				report.Summary.Critical++
			case contract.SeverityWarning:
				report.Summary.Warning++
			default:
				report.Summary.Info++
			}
		}
	}

	report.Summary.Passed = report.Summary.Failed == 0 && !AtLeast(report.AggregateLevel, failAt)
	return report
}

// AtLeast reports whether level is at or above threshold.
func AtLeast(level, threshold contract.RiskLevel) bool {
	t := threshold.Rank()
	return t >= 0 && level.Rank() >= t
}
