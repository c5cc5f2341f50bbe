package nlu

import (
	"strings"

	"github.com/Avaneeshakrishna/cliniccall-AI/internal/scheduling"
)

// Intent is the caller's goal for a turn.
type Intent string

const (
	IntentBook       Intent = "BOOK"
	IntentReschedule Intent = "RESCHEDULE"
	IntentCancel     Intent = "CANCEL"
	IntentFAQ        Intent = "FAQ"
	IntentUrgent     Intent = "URGENT"
	IntentOther      Intent = "OTHER"
)

// ParseIntent upper-cases s and accepts it only when it is a known intent.
func ParseIntent(s string) (Intent, bool) {
	switch i := Intent(strings.ToUpper(strings.TrimSpace(s))); i {
	case IntentBook, IntentReschedule, IntentCancel, IntentFAQ, IntentUrgent, IntentOther:
		return i, true
	}
	return "", false
}

// IntentResult is the classifier output. Department is empty when unknown.
type IntentResult struct {
	Intent     Intent `json:"intent"`
	Department string `json:"department,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

type departmentRule struct {
	keywords   []string
	department string
}

// Checked after the cardiology and chest pain rules.
var departmentRules = []departmentRule{
	{[]string{"rash", "skin"}, scheduling.Dermatology},
	{[]string{"checkup", "general", "primary"}, scheduling.GeneralMedicine},
	{[]string{"pediatric", "child", "kids"}, scheduling.Pediatrics},
	{[]string{"ortho", "bone", "joint"}, scheduling.Orthopedics},
}

// KeywordIntent is the deterministic classifier used when the model is
// unavailable or returns something unusable. "cardiology" wins over
// "chest pain", which wins over the looser "cardio"/"heart" matches.
func KeywordIntent(text string) IntentResult {
	lowered := strings.ToLower(text)
	book := func(dept string) IntentResult {
		return IntentResult{Intent: IntentBook, Department: dept, Reason: text}
	}
	if containsAny(lowered, "cardiologist", "cardiology") {
		return book(scheduling.Cardiology)
	}
	if strings.Contains(lowered, "chest pain") {
		return IntentResult{Intent: IntentUrgent, Reason: text}
	}
	if containsAny(lowered, "cardio", "heart") {
		return book(scheduling.Cardiology)
	}
	for _, rule := range departmentRules {
		if containsAny(lowered, rule.keywords...) {
			return book(rule.department)
		}
	}
	return IntentResult{Intent: IntentOther}
}

func normalizeIntent(raw map[string]any) (IntentResult, bool) {
	intentStr, _ := raw["intent"].(string)
	intent, ok := ParseIntent(intentStr)
	if !ok {
		return IntentResult{}, false
	}
	out := IntentResult{Intent: intent}
	if dept, ok := raw["department"].(string); ok {
		out.Department, _ = scheduling.NormalizeDepartment(dept)
	}
	if reason, ok := raw["reason"].(string); ok {
		out.Reason = strings.TrimSpace(reason)
	}
	return out, true
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
