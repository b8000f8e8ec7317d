package rules

import "github.com/FeiyouG/skill-lab-sub000/contract"

var goModRules = []Rule{
	{
		ID:          "go-require",
		Language:    contract.LangGoMod,
		Description: "Go module dependency",
		Patterns:    []string{"require"},
		Permission: &PermissionTemplate{
			Tool: "go", Scope: contract.ScopeDep, Permission: "import",
			Metadata: map[string]string{"MODULE": "value", "VERSION": "version"},
		},
		Risks: []RiskMapping{Dynamic(importRisks)},
	},
	{
		ID:          "go-replace",
		Language:    contract.LangGoMod,
		Description: "Go module replacement",
		Patterns:    []string{"replace"},
		Permission: &PermissionTemplate{
			Tool: "go", Scope: contract.ScopeDep, Permission: "import",
			Metadata: map[string]string{"MODULE": "value", "VERSION": "version"},
		},
		Risks: []RiskMapping{Dynamic(importRisks)},
	},
}
