package rules

import "github.com/FeiyouG/skill-lab-sub000/contract"

// Prompt-injection phrasing in prose. These rules carry no permission; their
// risks attach to every permission of the package.
var documentTemplates = []Rule{
	{
		ID:          "prompt-override",
		Description: "Instruction to disregard prior instructions",
		Patterns: []string{
			`(?i)\b(?:ignore|disregard|forget|override)\s+(?:all\s+|any\s+)?(?:of\s+)?(?:the\s+|your\s+)?(?:previous|prior|above|earlier|system|original)\s+(?P<TARGET>instructions|prompts?|rules|directions|guidelines)`,
			`(?i)\byou\s+are\s+no\s+longer\s+(?:bound|restricted|required)\b`,
			`(?i)\bnew\s+system\s+prompt\s*:`,
			`(?i)\b(?:enter|enable|activate)\s+(?:developer|god|jailbreak|dan)\s+mode\b`,
		},
		Risks: []RiskMapping{Static(RiskTemplate{
			Code:     contract.RiskPromptOverride,
			Severity: contract.SeverityCritical,
			Message:  "Text attempts to override the agent's instructions",
		})},
	},
	{
		ID:          "prompt-extraction",
		Description: "Request to reveal the system prompt",
		Patterns: []string{
			`(?i)\b(?:reveal|print|show|output|repeat|leak|dump)\s+(?:me\s+)?(?:your|the)\s+(?P<TARGET>system\s+prompt|initial\s+instructions|hidden\s+instructions|original\s+prompt)`,
			`(?i)\bwhat\s+(?:is|are)\s+your\s+(?:system\s+prompt|instructions)\b`,
		},
		Risks: []RiskMapping{Static(RiskTemplate{
			Code:     contract.RiskPromptExtraction,
			Severity: contract.SeverityWarning,
			Message:  "Text asks the agent to reveal its instructions",
		})},
	},
	{
		ID:          "prompt-concealment",
		Description: "Instruction to hide actions from the user",
		Patterns: []string{
			`(?i)\b(?:do\s+not|don't|never)\s+(?:tell|inform|notify|mention\s+(?:this\s+)?to|alert)\s+(?:the\s+)?user\b`,
			`(?i)\bwithout\s+(?:telling|informing|notifying|asking)\s+the\s+user\b`,
			`(?i)\b(?:silently|secretly|covertly|quietly)\s+(?P<ACTION>run|execute|send|upload|delete|install|download)\b`,
			`(?i)\bhide\s+(?:this|these|the)\s+(?:action|command|output|step)s?\s+from\s+the\s+user\b`,
		},
		Risks: []RiskMapping{Static(RiskTemplate{
			Code:     contract.RiskPromptConceal,
			Severity: contract.SeverityWarning,
			Message:  "Text instructs the agent to hide actions from the user",
		})},
	},
}

var documentByLanguage = map[contract.Language][]Rule{
	contract.LangMarkdown: withLanguage(documentTemplates, contract.LangMarkdown),
	contract.LangText:     withLanguage(documentTemplates, contract.LangText),
}

func documentRules(lang contract.Language) []Rule {
	return documentByLanguage[lang]
}

func withLanguage(rules []Rule, lang contract.Language) []Rule {
	out := make([]Rule, len(rules))
	for i, r := range rules {
		r.Language = lang
		out[i] = r
	}
	return out
}
