package nlu

import "strings"

// Severity grades an urgent message.
type Severity string

const (
	SeverityEmergency Severity = "EMERGENCY"
	SeverityUrgent    Severity = "URGENT"
	SeverityRoutine   Severity = "ROUTINE"
)

// TriageResult is the triage output.
type TriageResult struct {
	Severity Severity `json:"severity"`
	Summary  string   `json:"summary"`
	Escalate bool     `json:"escalate"`
}

// NeedsCase reports whether the result warrants a stored urgent case.
func (r TriageResult) NeedsCase() bool {
	return r.Escalate || r.Severity != SeverityRoutine
}

// KeywordTriage is the deterministic triage fallback.
func KeywordTriage(text string) TriageResult {
	lowered := strings.ToLower(text)
	switch {
	case containsAny(lowered, "chest pain", "shortness of breath"):
		return TriageResult{Severity: SeverityEmergency, Summary: "Possible cardiac or respiratory emergency symptoms.", Escalate: true}
	case containsAny(lowered, "bleeding", "severe pain"):
		return TriageResult{Severity: SeverityUrgent, Summary: "Potentially urgent symptoms reported.", Escalate: true}
	default:
		return TriageResult{Severity: SeverityRoutine, Summary: "No urgent indicators detected."}
	}
}

func normalizeTriage(raw map[string]any) (TriageResult, bool) {
	sevStr, _ := raw["severity"].(string)
	sev := Severity(strings.ToUpper(strings.TrimSpace(sevStr)))
	switch sev {
	case SeverityEmergency, SeverityUrgent, SeverityRoutine:
	default:
		return TriageResult{}, false
	}
	out := TriageResult{Severity: sev}
	if summary, ok := raw["summary"].(string); ok && strings.TrimSpace(summary) != "" {
		out.Summary = strings.TrimSpace(summary)
	} else {
		out.Summary = "Triage summary unavailable."
	}
	if escalate, ok := raw["escalate"].(bool); ok {
		out.Escalate = escalate
	} else {
		out.Escalate = sev != SeverityRoutine
	}
	return out, true
}
