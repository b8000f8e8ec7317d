package report

import (
	"fmt"
	"path"
	"strconv"

	"github.com/owenrumney/go-sarif/v2/sarif"

	"github.com/FeiyouG/skill-lab-sub000/contract"
	"github.com/FeiyouG/skill-lab-sub000/trust"
)

const (
	toolName      = "slab"
	toolURI       = "https://github.com/FeiyouG/skill-lab-sub000"
	warningRuleID = "slab/warning"
	fingerprintID = "slab/v1"
)

type sarifInput struct {
	prefix string
	result *contract.Result
}

func (w *Writer) sarifResults(in []sarifInput) error {
	report, err := toSARIF(w.opts.ToolVersion, in...)
	if err != nil {
		return err
	}
	return report.PrettyWrite(w.out)
}

// toSARIF converts results to a SARIF 2.1.0 log. Every risk becomes a
// result, every permission a rule, every warning a note.
func toSARIF(version string, in ...sarifInput) (*sarif.Report, error) {
	report, err := sarif.New(sarif.Version210)
	if err != nil {
		return nil, fmt.Errorf("creating sarif report: %w", err)
	}
	run := sarif.NewRunWithInformationURI(toolName, toolURI)
	if version != "" {
		run.Tool.Driver.Version = &version
	}

	rules := make(map[string]bool)
	addRule := func(id, name, desc, level string) {
		if rules[id] {
			return
		}
		rules[id] = true
		run.AddRule(id).
			WithName(name).
			WithDescription(desc).
			WithDefaultConfiguration(&sarif.ReportingConfiguration{Level: level})
	}

	for _, item := range in {
		res := item.result
		for _, p := range res.Permissions {
			addRule("permission/"+p.ID, p.Key(), permissionText(p), "none")
		}

		for _, r := range res.Risks {
			level := sarifLevel(r.Severity)
			addRule(string(r.Type), string(r.Type), r.Message, level)

			file := r.Reference.File
			if item.prefix != "" && file != "" {
				file = path.Join(item.prefix, file)
			}
			result := sarif.NewRuleResult(string(r.Type)).
				WithLevel(level).
				WithMessage(sarif.NewTextMessage(r.Message))
			result.PartialFingerprints = map[string]interface{}{
				fingerprintID: trust.Fingerprint(string(r.Type), file, strconv.Itoa(r.Reference.Line)),
			}
			if file != "" {
				loc := sarif.NewPhysicalLocation().
					WithArtifactLocation(sarif.NewSimpleArtifactLocation(file))
				if r.Reference.Line > 0 {
					loc.WithRegion(sarif.NewRegion().
						WithStartLine(r.Reference.Line).
						WithEndLine(r.Reference.End()))
				}
				result.WithLocations([]*sarif.Location{sarif.NewLocationWithPhysicalLocation(loc)})
			}
			run.AddResult(result)
		}

		for _, warn := range res.Warnings {
			addRule(warningRuleID, "analysis warning", "A non-fatal condition met during analysis.", "note")
			msg := warn
			if item.prefix != "" {
				msg = item.prefix + ": " + warn
			}
			run.AddResult(sarif.NewRuleResult(warningRuleID).
				WithLevel("note").
				WithMessage(sarif.NewTextMessage(msg)))
		}
	}

	report.AddRun(run)
	return report, nil
}

func permissionText(p contract.Permission) string {
	s := fmt.Sprintf("%s requests %s", p.Tool, p.Key())
	if len(p.Args) > 0 {
		s += fmt.Sprintf(" %v", p.Args)
	}
	return s + " (" + string(p.Source) + ")"
}

func sarifLevel(sev contract.Severity) string {
	switch sev {
	case contract.SeverityCritical:
		return "error"
	case contract.SeverityWarning:
		return "warning"
	case contract.SeverityInfo:
		return "note"
	default:
		return "none"
	}
}
