package nlu

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Avaneeshakrishna/cliniccall-AI/internal/scheduling"
	"github.com/Avaneeshakrishna/cliniccall-AI/pkg/logging"
)

// UrgentCaseStore persists urgent cases.
type UrgentCaseStore interface {
	CreateUrgentCase(ctx context.Context, c *scheduling.UrgentCase) error
}

// EscalationPublisher forwards escalated cases to on-call staff.
type EscalationPublisher interface {
	PublishUrgentCase(ctx context.Context, c scheduling.UrgentCase) error
}

const publishTimeout = 5 * time.Second

// UrgentDesk triages urgent messages, records them and escalates the ones
// that need a clinician.
type UrgentDesk struct {
	triager   Triager
	store     UrgentCaseStore
	publisher EscalationPublisher
	logger    *logging.Logger
}

func NewUrgentDesk(triager Triager, store UrgentCaseStore, logger *logging.Logger) *UrgentDesk {
	if triager == nil {
		triager = KeywordClassifier{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &UrgentDesk{triager: triager, store: store, logger: logger}
}

// WithPublisher enables escalation publishing. A nil publisher disables it.
func (d *UrgentDesk) WithPublisher(p EscalationPublisher) *UrgentDesk {
	d.publisher = p
	return d
}

// Open triages text and always records a case. It is used when the caller's
// intent was already classified as urgent.
func (d *UrgentDesk) Open(ctx context.Context, text, patientID string) (*scheduling.UrgentCase, TriageResult, error) {
	result := d.triager.Triage(ctx, text)
	c, err := d.record(ctx, text, patientID, result)
	return c, result, err
}

// Assess triages text and records a case only when the result needs one.
func (d *UrgentDesk) Assess(ctx context.Context, text string) (TriageResult, *scheduling.UrgentCase, error) {
	result := d.triager.Triage(ctx, text)
	if !result.NeedsCase() {
		return result, nil, nil
	}
	c, err := d.record(ctx, text, "", result)
	return result, c, err
}

func (d *UrgentDesk) record(ctx context.Context, text, patientID string, result TriageResult) (*scheduling.UrgentCase, error) {
	c := &scheduling.UrgentCase{
		Severity:   string(result.Severity),
		Summary:    result.Summary,
		Transcript: text,
		Status:     scheduling.UrgentCaseReceived,
		Escalate:   result.Escalate,
	}
	if id := strings.TrimSpace(patientID); id != "" {
		c.PatientID = &id
	}
	if err := d.store.CreateUrgentCase(ctx, c); err != nil {
		return nil, fmt.Errorf("nlu: store urgent case: %w", err)
	}
	d.logger.Warn("urgent case recorded", "case_id", c.ID, "severity", c.Severity, "escalate", c.Escalate)

	if c.Escalate && d.publisher != nil {
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()
		if err := d.publisher.PublishUrgentCase(pubCtx, *c); err != nil {
			d.logger.Error("urgent case escalation failed", "case_id", c.ID, "error", err)
		}
	}
	return c, nil
}
