package analyzer

import (
	"fmt"

	"github.com/FeiyouG/skill-lab-sub000/contract"
	"github.com/FeiyouG/skill-lab-sub000/policy"
	"github.com/FeiyouG/skill-lab-sub000/rules"
)

// declaredRisks checks a permission the manifest declares against the
// network policy and the credential naming patterns.
func declaredRisks(ev *policy.Evaluator, p contract.Permission) []rules.RiskTemplate {
	if len(p.Args) == 0 {
		return nil
	}
	arg := p.Args[0]

	switch {
	case p.Scope == contract.ScopeNet && p.Tool == "egress":
		return egressRisks(ev, arg)
	case p.Scope == contract.ScopeEnv:
		if !rules.IsSecretName(arg) {
			return nil
		}
		return []rules.RiskTemplate{{
			Code:     contract.RiskCredentialAccess,
			Severity: contract.SeverityInfo,
			Message:  fmt.Sprintf("Requires credential environment variable %s", arg),
			GroupKey: string(contract.RiskCredentialAccess) + ":declared",
			Metadata: map[string]string{"key": arg},
		}}
	}
	return nil
}

func egressRisks(ev *policy.Evaluator, host string) []rules.RiskTemplate {
	if ev == nil {
		return nil
	}
	meta := map[string]string{"host": host}
	switch ev.Domain(host) {
	case policy.DecisionDenied:
		return []rules.RiskTemplate{{
			Code:     contract.RiskDeniedDomain,
			Severity: contract.SeverityCritical,
			Message:  fmt.Sprintf("Declares egress to denied domain %s", host),
			Metadata: meta,
		}}
	case policy.DecisionDefault:
		return []rules.RiskTemplate{{
			Code:     contract.RiskExternalFetch,
			Severity: contract.SeverityInfo,
			Message:  fmt.Sprintf("Declares egress to unlisted domain %s", host),
			GroupKey: string(contract.RiskExternalFetch) + ":declared",
			Metadata: meta,
		}}
	}
	return nil
}
