package report

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/FeiyouG/skill-lab-sub000/analyzer"
	"github.com/FeiyouG/skill-lab-sub000/contract"
)

var (
	colorDanger  = lipgloss.Color("#EF4444")
	colorWarning = lipgloss.Color("#F59E0B")
	colorInfo    = lipgloss.Color("#06B6D4")
	colorSuccess = lipgloss.Color("#10B981")
	colorMuted   = lipgloss.Color("#6B7280")
	colorAccent  = lipgloss.Color("#7C3AED")
)

type palette struct {
	on       bool
	title    lipgloss.Style
	heading  lipgloss.Style
	muted    lipgloss.Style
	critical lipgloss.Style
	warning  lipgloss.Style
	info     lipgloss.Style
	safe     lipgloss.Style
}

func newPalette(out io.Writer, on bool) palette {
	r := lipgloss.NewRenderer(out)
	return palette{
		on:       on,
		title:    r.NewStyle().Bold(true).Foreground(colorAccent),
		heading:  r.NewStyle().Bold(true).Underline(true),
		muted:    r.NewStyle().Foreground(colorMuted),
		critical: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF")).Background(colorDanger),
		warning:  r.NewStyle().Bold(true).Foreground(colorWarning),
		info:     r.NewStyle().Foreground(colorInfo),
		safe:     r.NewStyle().Bold(true).Foreground(colorSuccess),
	}
}

func (p palette) paint(st lipgloss.Style, s string) string {
	if !p.on {
		return s
	}
	return st.Render(s)
}

func (p palette) severity(sev contract.Severity) string {
	label := strings.ToUpper(string(sev))
	switch sev {
	case contract.SeverityCritical:
		return p.paint(p.critical, label)
	case contract.SeverityWarning:
		return p.paint(p.warning, label)
	default:
		return p.paint(p.info, label)
	}
}

func (p palette) level(l contract.RiskLevel) string {
	label := strings.ToUpper(string(l))
	switch l {
	case contract.LevelAvoid, contract.LevelHigh:
		return p.paint(p.critical, label)
	case contract.LevelMedium:
		return p.paint(p.warning, label)
	case contract.LevelLow:
		return p.paint(p.info, label)
	default:
		return p.paint(p.safe, label)
	}
}

func location(ref contract.Reference) string {
	if ref.File == "" {
		return ""
	}
	if ref.Line <= 0 {
		return ref.File
	}
	if ref.LineEnd > ref.Line {
		return fmt.Sprintf("%s:%d-%d", ref.File, ref.Line, ref.LineEnd)
	}
	return fmt.Sprintf("%s:%d", ref.File, ref.Line)
}

func (w *Writer) text(res *contract.Result) error {
	p := newPalette(w.out, w.opts.Color)
	var b strings.Builder

	name := res.SkillID
	if res.SkillVersionID != "" {
		name += " " + res.SkillVersionID
	}
	fmt.Fprintf(&b, "%s\n", p.paint(p.title, name))
	fmt.Fprintf(&b, "Risk level: %s  Score: %d\n", p.level(res.RiskLevel), res.Score)
	fmt.Fprintf(&b, "%s\n", res.Summary)

	if len(res.Permissions) > 0 {
		fmt.Fprintf(&b, "\n%s\n", p.paint(p.heading, "Permissions"))
		for _, perm := range res.Permissions {
			args := strings.Join(perm.Args, " ")
			fmt.Fprintf(&b, "  %-16s %s", perm.Key(), perm.Tool)
			if args != "" {
				fmt.Fprintf(&b, " %s", args)
			}
			fmt.Fprintf(&b, " %s\n", p.paint(p.muted, "["+string(perm.Source)+"]"))
			for _, ref := range perm.References {
				fmt.Fprintf(&b, "      %s\n", p.paint(p.muted, location(ref)))
			}
		}
	}

	if len(res.Risks) > 0 {
		fmt.Fprintf(&b, "\n%s\n", p.paint(p.heading, "Risks"))
		for _, r := range res.Risks {
			fmt.Fprintf(&b, "  [%s] %s\n", p.severity(r.Severity), r.Type)
			if r.Message != "" {
				fmt.Fprintf(&b, "      %s\n", r.Message)
			}
			if loc := location(r.Reference); loc != "" {
				fmt.Fprintf(&b, "      %s\n", p.paint(p.muted, loc))
			}
			if len(r.Permissions) > 0 {
				fmt.Fprintf(&b, "      %s\n", p.paint(p.muted, "permissions: "+strings.Join(r.Permissions, ", ")))
			}
		}
	}

	fmt.Fprintf(&b, "\n%s\n", p.paint(p.heading, "Score"))
	fmt.Fprintf(&b, "  %s\n", breakdown(res))

	if len(res.Warnings) > 0 {
		fmt.Fprintf(&b, "\n%s\n", p.paint(p.heading, "Warnings"))
		for _, warn := range res.Warnings {
			fmt.Fprintf(&b, "  %s %s\n", p.paint(p.warning, "!"), warn)
		}
	}

	if len(res.Metadata.SkippedFiles) > 0 {
		fmt.Fprintf(&b, "\n%s\n", p.paint(p.heading, "Skipped"))
		for _, s := range res.Metadata.SkippedFiles {
			fmt.Fprintf(&b, "  %s %s\n", s.Path, p.paint(p.muted, "("+s.Reason+")"))
		}
	}

	fmt.Fprintf(&b, "\n%s\n", p.paint(p.muted, fmt.Sprintf("%d files scanned in %dms",
		len(res.Metadata.ScannedFiles), res.Metadata.DurationMS)))

	_, err := io.WriteString(w.out, b.String())
	return err
}

// breakdown renders "severity 5 + permissions 2 + external_write 2 = 9".
func breakdown(res *contract.Result) string {
	terms := []string{
		"severity " + strconv.Itoa(res.Breakdown.SeverityScore),
		"permissions " + strconv.Itoa(res.Breakdown.PermissionScore),
	}
	for _, k := range slices.Sorted(maps.Keys(res.Breakdown.Uplifts)) {
		terms = append(terms, fmt.Sprintf("%s %d", k, res.Breakdown.Uplifts[k]))
	}
	return strings.Join(terms, " + ") + " = " + strconv.Itoa(res.Score)
}

func (w *Writer) auditText(r *analyzer.AuditReport) error {
	p := newPalette(w.out, w.opts.Color)
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n", p.paint(p.title, fmt.Sprintf("Audit of %d skills", r.SkillCount)))

	rows := make([][]string, 0, len(r.Entries))
	for _, e := range r.Entries {
		if e.Result == nil {
			rows = append(rows, []string{e.Path, "ERROR", "-", "-", e.Error})
			continue
		}
		rows = append(rows, []string{
			e.Path,
			strings.ToUpper(string(e.Result.RiskLevel)),
			strconv.Itoa(e.Result.Score),
			strconv.Itoa(len(e.Result.Risks)),
			e.Result.SkillID,
		})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("PATH", "LEVEL", "SCORE", "RISKS", "SKILL").
		Rows(rows...)
	if p.on {
		t = t.StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return p.heading.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	}
	fmt.Fprintf(&b, "%s\n", t.String())

	s := r.Summary
	fmt.Fprintf(&b, "\nAggregate level: %s  Score: %d\n", p.level(r.AggregateLevel), r.AggregateScore)
	fmt.Fprintf(&b, "Risks: %d critical, %d warning, %d info; %d failed\n", s.Critical, s.Warning, s.Info, s.Failed)
	if s.Passed {
		fmt.Fprintf(&b, "%s\n", p.paint(p.safe, "PASSED"))
	} else {
		fmt.Fprintf(&b, "%s\n", p.paint(p.critical, "FAILED"))
	}

	_, err := io.WriteString(w.out, b.String())
	return err
}
