package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/Avaneeshakrishna/cliniccall-AI/internal/nlu"
)

// classify starts a fresh request once no pending question claimed the turn.
func (e *Engine) classify(ctx context.Context, t *turn) (bool, error) {
	st := t.st
	result := e.classifier.Classify(ctx, t.text)
	if t.in.SelectedSlotID != "" && result.Intent == nlu.IntentOther {
		result.Intent = nlu.IntentBook
	}
	st.Intent = result.Intent
	if result.Department != "" {
		st.Department = result.Department
	}
	if result.Reason != "" {
		st.Reason = result.Reason
	}
	t.resp.Intent = result.Intent

	switch result.Intent {
	case nlu.IntentUrgent:
		return e.openUrgentCase(ctx, t), nil
	case nlu.IntentBook:
		st.PendingAppointmentID = ""
		return e.startBooking(ctx, t)
	case nlu.IntentReschedule:
		st.AwaitingPatient = false
		if t.in.SelectedSlotID != "" && st.PendingAppointmentID != "" {
			return e.holdSlot(ctx, t, t.in.SelectedSlotID)
		}
		return e.listAppointments(ctx, t)
	case nlu.IntentCancel:
		st.AwaitingPatient = false
		return e.listAppointments(ctx, t)
	case nlu.IntentFAQ:
		t.reply("faq", replyFAQ)
		return true, nil
	}
	t.reply("other", replyCapabilities)
	return true, nil
}

func (e *Engine) openUrgentCase(ctx context.Context, t *turn) bool {
	t.reply("urgent", replyUrgent)
	if e.urgent == nil {
		return true
	}
	c, triage, err := e.urgent.Open(ctx, t.text, t.in.PatientID)
	if err != nil {
		e.logger.Error("urgent case not recorded", "conversation_id", t.resp.ConversationID, "error", err)
		return true
	}
	e.logger.Info("urgent case opened",
		"conversation_id", t.resp.ConversationID,
		"urgent_case_id", c.ID,
		"severity", string(triage.Severity),
		"escalate", triage.Escalate,
	)
	t.resp.UrgentCaseID = c.ID
	return true
}

// startBooking walks the booking prerequisites in order: a held slot, a
// reason, then a provider, and finally a department.
func (e *Engine) startBooking(ctx context.Context, t *turn) (bool, error) {
	st := t.st
	if t.in.SelectedSlotID != "" {
		return e.holdSlot(ctx, t, t.in.SelectedSlotID)
	}
	if len(strings.Fields(st.Reason)) < minReasonWords {
		st.AwaitingReason = true
		t.reply("ask_reason", replyAskReason)
		return true, nil
	}
	switch {
	case st.Department != "" && st.SelectedProvider != "":
		return e.listProviderSlots(ctx, t, "")
	case st.Department != "" && e.directory == nil:
		return e.listDepartmentSlots(ctx, t)
	case st.Department != "" && st.LocationZip == "":
		st.AwaitingLocation = true
		t.reply("ask_zip", replyAskZip)
		return true, nil
	case st.Department != "":
		return e.offerProviders(ctx, t, false), nil
	case st.LocationZip != "" && e.directory != nil:
		return e.offerProviders(ctx, t, true), nil
	}
	t.reply("ask_department", replyAskDeptToHelp)
	return true, nil
}

// listDepartmentSlots offers in-house slots when no provider directory is
// configured.
func (e *Engine) listDepartmentSlots(ctx context.Context, t *turn) (bool, error) {
	slots, err := e.calendar.NextOpen(ctx, t.st.Department, "", menuSize)
	if err != nil {
		return false, err
	}
	e.offerSlots(t, slots, "department_slots", fmt.Sprintf("Here are the next available %s times. %s", t.st.Department, replyPickSlotSuffix))
	return true, nil
}
