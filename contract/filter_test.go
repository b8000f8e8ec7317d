package contract

import (
	"testing"
)

func TestFilterRisks_EmptyFilter(t *testing.T) {
	risks := []Risk{
		{ID: "a", Type: RiskSudo, Severity: SeverityWarning},
		{ID: "b", Type: RiskExternalFetch, Severity: SeverityInfo},
	}
	result := FilterRisks(risks, RiskFilter{})
	if len(result) != 2 {
		t.Fatalf("expected 2 risks, got %d", len(result))
	}
}

func TestFilterRisks_BySeverity(t *testing.T) {
	risks := []Risk{
		{ID: "a", Type: RiskSudo, Severity: SeverityWarning},
		{ID: "b", Type: RiskExternalFetch, Severity: SeverityInfo},
		{ID: "c", Type: RiskRemoteCodeExec, Severity: SeverityCritical},
	}
	result := FilterRisks(risks, RiskFilter{MinSeverity: SeverityWarning})
	if len(result) != 2 {
		t.Fatalf("expected 2 risks, got %d", len(result))
	}
	if result[0].ID != "a" || result[1].ID != "c" {
		t.Errorf("unexpected risks: %v", result)
	}
}

func TestFilterRisks_ByCategoryInsensitive(t *testing.T) {
	risks := []Risk{
		{ID: "a", Type: RiskSudo, Severity: SeverityWarning},
		{ID: "b", Type: RiskExternalFetch, Severity: SeverityInfo},
	}
	result := FilterRisks(risks, RiskFilter{Categories: []string{"network"}})
	if len(result) != 1 {
		t.Fatalf("expected 1 risk, got %d", len(result))
	}
	if result[0].ID != "b" {
		t.Errorf("expected risk 'b', got %q", result[0].ID)
	}
}

func TestFilterRisks_Combined(t *testing.T) {
	risks := []Risk{
		{ID: "a", Type: RiskExternalFetch, Severity: SeverityInfo},
		{ID: "b", Type: RiskDataExfiltration, Severity: SeverityCritical},
		{ID: "c", Type: RiskSudo, Severity: SeverityCritical},
	}
	result := FilterRisks(risks, RiskFilter{MinSeverity: SeverityWarning, Categories: []string{"NETWORK"}})
	if len(result) != 1 || result[0].ID != "b" {
		t.Errorf("unexpected risks: %v", result)
	}
}
