package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/FeiyouG/skill-lab-sub000/contract"
	"github.com/FeiyouG/skill-lab-sub000/report"
	"github.com/FeiyouG/skill-lab-sub000/rules"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List the detection rules",
	Args:  cobra.NoArgs,
	RunE:  runRules,
}

var rulesLanguage string

func init() {
	rulesCmd.Flags().StringVarP(&rulesLanguage, "language", "l", "", "only list rules for this language")
}

type ruleInfo struct {
	ID          string   `json:"id"`
	Language    string   `json:"language"`
	Permission  string   `json:"permission,omitempty"`
	Description string   `json:"description,omitempty"`
	Risks       []string `json:"risks,omitempty"`
}

func runRules(cmd *cobra.Command, _ []string) error {
	list := rules.All()
	if rulesLanguage != "" {
		lang := contract.Language(strings.ToLower(rulesLanguage))
		known := false
		for _, l := range contract.Languages {
			if l == lang {
				known = true
			}
		}
		if !known {
			return fmt.Errorf("unknown language %q", rulesLanguage)
		}
		list = rules.ForLanguage(lang)
	}

	infos := make([]ruleInfo, 0, len(list))
	for _, r := range list {
		info := ruleInfo{ID: r.ID, Language: string(r.Language), Description: r.Description}
		if r.Permission != nil {
			info.Permission = string(r.Permission.Scope) + ":" + r.Permission.Permission
		}
		for _, m := range r.Risks {
			if t, ok := m.Template(); ok {
				info.Risks = append(info.Risks, string(t.Code))
			} else {
				info.Risks = append(info.Risks, "dynamic")
			}
		}
		infos = append(infos, info)
	}

	out := cmd.OutOrStdout()
	format, err := report.ParseFormat(outputFormat)
	if err != nil {
		return err
	}
	if format == report.FormatJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	}

	for _, r := range infos {
		fmt.Fprintf(out, "%-12s %-28s %-16s %s\n", r.Language, r.ID, r.Permission, strings.Join(r.Risks, ", "))
	}
	fmt.Fprintf(out, "\n%d rules\n", len(infos))
	return nil
}
