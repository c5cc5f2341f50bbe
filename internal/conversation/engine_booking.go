package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/Avaneeshakrishna/cliniccall-AI/internal/nlu"
	"github.com/Avaneeshakrishna/cliniccall-AI/internal/scheduling"
)

// captureReason consumes the message as the visit reason and lets the
// remaining steps run on the same message.
func (e *Engine) captureReason(_ context.Context, t *turn) (bool, error) {
	if t.st.AwaitingReason {
		t.st.CaptureReason(t.text)
	}
	return false, nil
}

func (e *Engine) resolveConfirmation(ctx context.Context, t *turn) (bool, error) {
	st := t.st
	if !st.AwaitingConfirmation() {
		return false, nil
	}
	t.fallback = nlu.IntentBook

	switch {
	case IsAffirmative(t.text):
		return e.confirmBooking(ctx, t)
	case IsNegative(t.text):
		st.ReleaseSlot()
		t.reply("confirmation_declined", replyDifferentTime)
		return true, nil
	}

	slot, err := e.repo.GetSlot(ctx, st.PendingSlotID)
	if isNotFound(err) {
		st.DropPendingSlot()
		return false, nil
	}
	if err != nil {
		return false, err
	}
	t.resp.Department = slot.Department
	t.reply("confirmation_reprompt", fmt.Sprintf("Please confirm booking %s at %s (yes/no).", slot.Department, e.formatTime(slot.StartTime)))
	return true, nil
}

// confirmBooking commits the pending slot after the caller said yes.
func (e *Engine) confirmBooking(ctx context.Context, t *turn) (bool, error) {
	st := t.st
	slot, open, err := e.ledger.Available(ctx, st.PendingSlotID)
	if err != nil {
		return false, err
	}
	if !open {
		st.ReleaseSlot()
		t.reply("slot_unavailable", replySlotGoneAskAnother)
		return true, nil
	}
	if st.PatientPhone == "" {
		st.AwaitingPatient = true
		t.reply("ask_phone", replyAskPhoneToBook)
		return true, nil
	}
	known, err := e.patientExists(ctx, st.PatientPhone)
	if err != nil {
		return false, err
	}
	if !known && st.PatientEmail == "" {
		st.AwaitingPatient = true
		t.reply("ask_email", replyAskEmailToCreate)
		return true, nil
	}

	var (
		result scheduling.BookingResult
		op     = "book"
	)
	if st.PendingAppointmentID != "" {
		op = "rebook"
		result, err = e.booker.Rebook(ctx, st.PendingAppointmentID, slot.ID)
	} else {
		reason := st.Reason
		if reason == "" {
			reason = t.text
		}
		details := scheduling.PatientDetails{Phone: st.PatientPhone, Name: st.PatientName, Email: st.PatientEmail}
		result, err = e.booker.BookForCaller(ctx, details, slot.ID, reason)
	}
	if isNotFound(err) {
		st.DropPendingSlot()
		t.reply("stale_appointment", replyAppointmentMissing)
		return true, nil
	}
	if err != nil {
		return false, err
	}
	e.metrics.ObserveBooking(op, string(result.Outcome))
	if !result.Booked() {
		st.ReleaseSlot()
		t.reply("slot_conflict", replySlotGoneAskAnother)
		return true, nil
	}

	if result.Patient == nil && result.Appointment != nil {
		// Rebook does not load the patient.
		if p, err := e.repo.GetPatient(ctx, result.Appointment.PatientID); err == nil {
			result.Patient = p
		}
	}
	if e.notifier != nil && hasRealEmail(result.Patient) {
		e.notifier.NotifyBooked(ctx, scheduling.NewConfirmation(result))
	}
	st.FinishBooking()
	t.resp.Department = result.Slot.Department
	t.reply("booked", fmt.Sprintf("You're all set. I booked %s at %s. We'll send a confirmation.", result.Slot.Department, e.formatTime(result.Slot.StartTime)))
	return true, nil
}

// affirmBooking answers a bare "yes" to an open booking or reschedule
// request with the next open slots in the requested department.
func (e *Engine) affirmBooking(ctx context.Context, t *turn) (bool, error) {
	st := t.st
	if !IsAffirmative(t.text) {
		return false, nil
	}
	if st.Intent == nlu.IntentReschedule && st.PendingAppointmentID != "" && st.Department != "" {
		return e.listRescheduleSlots(ctx, t)
	}
	if st.Intent != nlu.IntentBook {
		return false, nil
	}
	if st.Department == "" {
		t.reply("ask_department", replyAskBookDept)
		return true, nil
	}
	return e.listDepartmentSlots(ctx, t)
}

// resolvePatient follows up on missing phone or email.
func (e *Engine) resolvePatient(ctx context.Context, t *turn) (bool, error) {
	st := t.st
	if !st.AwaitingPatient {
		return false, nil
	}
	if st.PatientPhone == "" {
		t.reply("ask_phone", replyAskPhone)
		return true, nil
	}
	if st.Intent == nlu.IntentReschedule || st.Intent == nlu.IntentCancel {
		st.AwaitingPatient = false
		return e.listAppointments(ctx, t)
	}
	if st.PendingSlotID == "" {
		st.AwaitingPatient = false
		return false, nil
	}

	t.fallback = nlu.IntentBook
	known, err := e.patientExists(ctx, st.PatientPhone)
	if err != nil {
		return false, err
	}
	if !known && st.PatientEmail == "" {
		t.reply("ask_email", replyAskEmailToComplete)
		return true, nil
	}
	slot, err := e.repo.GetSlot(ctx, st.PendingSlotID)
	if isNotFound(err) {
		st.DropPendingSlot()
		return false, nil
	}
	if err != nil {
		return false, err
	}
	st.AwaitingPatient = false
	t.resp.Department = slot.Department
	t.reply("confirmation_prompt", fmt.Sprintf("Thanks. Please confirm booking %s at %s (yes/no).", slot.Department, e.formatTime(slot.StartTime)))
	return true, nil
}

// selectSlot consumes a pick from the suggested slot menu. Non-numeric input
// passes through to later steps.
func (e *Engine) selectSlot(ctx context.Context, t *turn) (bool, error) {
	st := t.st
	if len(st.SuggestedSlotIDs) == 0 {
		return false, nil
	}
	idx, numeric := parseSelection(t.text)
	if !numeric {
		return false, nil
	}
	t.fallback = nlu.IntentBook
	if !inRange(idx, len(st.SuggestedSlotIDs)) {
		t.reply("slot_menu_reprompt", replyPickSlot)
		return true, nil
	}
	slotID := st.SuggestedSlotIDs[idx]
	st.SuggestedSlotIDs = nil
	return e.holdSlot(ctx, t, slotID)
}

// holdSlot makes slotID pending when it is still open.
func (e *Engine) holdSlot(ctx context.Context, t *turn, slotID string) (bool, error) {
	st := t.st
	slot, open, err := e.ledger.Available(ctx, slotID)
	if err != nil {
		return false, err
	}
	if !open {
		t.reply("slot_unavailable", replySlotGoneChoose)
		return true, nil
	}
	st.HoldSlot(slot.ID)
	t.resp.Department = slot.Department
	if st.AwaitingReason {
		t.reply("ask_reason", replyAskReason)
		return true, nil
	}
	t.reply("slot_held", fmt.Sprintf("You selected %s at %s. Please confirm (yes/no).", slot.Department, e.formatTime(slot.StartTime)))
	return true, nil
}

func (e *Engine) patientExists(ctx context.Context, phone string) (bool, error) {
	_, err := e.repo.FindPatientByPhone(ctx, phone)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, scheduling.ErrNotFound):
		return false, nil
	}
	return false, err
}

// hasRealEmail is false for patients created with a synthesized address.
func hasRealEmail(p *scheduling.Patient) bool {
	return p != nil && p.Email != "" && p.Email != scheduling.PlaceholderEmail(p.Phone)
}
