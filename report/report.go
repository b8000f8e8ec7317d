// Package report renders analysis results as styled text, JSON or SARIF.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/FeiyouG/skill-lab-sub000/analyzer"
	"github.com/FeiyouG/skill-lab-sub000/contract"
)

// Format selects an output encoding.
type Format string

const (
	FormatText  Format = "text"
	FormatJSON  Format = "json"
	FormatSARIF Format = "sarif"
)

// Formats lists the supported formats.
var Formats = []Format{FormatText, FormatJSON, FormatSARIF}

// ParseFormat validates a format name. The empty string means text.
func ParseFormat(s string) (Format, error) {
	if s == "" {
		return FormatText, nil
	}
	f := Format(strings.ToLower(s))
	if !slices.Contains(Formats, f) {
		return "", fmt.Errorf("unknown format %q (want text, json or sarif)", s)
	}
	return f, nil
}

// Options control rendering.
type Options struct {
	// Color enables terminal styling of text output.
	Color bool
	// Filter restricts the risks that are rendered. Score and level are
	// never recomputed.
	Filter contract.RiskFilter
	// ToolVersion is recorded in SARIF output.
	ToolVersion string
}

// Writer renders results to an output stream.
type Writer struct {
	out    io.Writer
	format Format
	opts   Options
}

// New creates a Writer. An empty format means text.
func New(out io.Writer, format Format, opts Options) *Writer {
	if format == "" {
		format = FormatText
	}
	return &Writer{out: out, format: format, opts: opts}
}

// Result renders a single analysis.
func (w *Writer) Result(res *contract.Result) error {
	res = Filter(res, w.opts.Filter)
	switch w.format {
	case FormatJSON:
		return w.json(res)
	case FormatSARIF:
		return w.sarifResults([]sarifInput{{result: res}})
	default:
		return w.text(res)
	}
}

// Audit renders a multi-skill audit.
func (w *Writer) Audit(r *analyzer.AuditReport) error {
	filtered := *r
	filtered.Entries = make([]analyzer.AuditEntry, len(r.Entries))
	for i, e := range r.Entries {
		if e.Result != nil {
			e.Result = Filter(e.Result, w.opts.Filter)
		}
		filtered.Entries[i] = e
	}

	switch w.format {
	case FormatJSON:
		return w.json(&filtered)
	case FormatSARIF:
		var in []sarifInput
		for _, e := range filtered.Entries {
			if e.Result != nil {
				in = append(in, sarifInput{prefix: e.Path, result: e.Result})
			}
		}
		return w.sarifResults(in)
	default:
		return w.auditText(&filtered)
	}
}

func (w *Writer) json(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding json: %w", err)
	}
	return nil
}

// Filter returns a copy of res holding only the risks that pass f.
// Permissions keep their references; their risk lists are trimmed to the
// risks that remain.
func Filter(res *contract.Result, f contract.RiskFilter) *contract.Result {
	if f.MinSeverity == "" && len(f.Categories) == 0 {
		return res
	}
	out := *res
	out.Risks = slices.Clone(contract.FilterRisks(res.Risks, f))
	if out.Risks == nil {
		out.Risks = []contract.Risk{}
	}

	kept := make(map[string]bool, len(out.Risks))
	for _, r := range out.Risks {
		kept[r.ID] = true
	}
	out.Permissions = make([]contract.Permission, len(res.Permissions))
	for i, p := range res.Permissions {
		p = p.Clone()
		p.Risks = slices.DeleteFunc(p.Risks, func(id string) bool { return !kept[id] })
		out.Permissions[i] = p
	}
	return &out
}
