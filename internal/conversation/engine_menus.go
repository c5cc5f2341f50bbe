package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/Avaneeshakrishna/cliniccall-AI/internal/nlu"
	"github.com/Avaneeshakrishna/cliniccall-AI/internal/providers"
	"github.com/Avaneeshakrishna/cliniccall-AI/internal/scheduling"
)

// selectAppointment consumes a pick from the reschedule/cancel menu. The
// menu stays open until a valid number arrives.
func (e *Engine) selectAppointment(ctx context.Context, t *turn) (bool, error) {
	st := t.st
	if len(st.LastAppointmentIDs) == 0 {
		return false, nil
	}
	// A menu left open by an abandoned cancel or reschedule is ignored.
	if st.Intent != nlu.IntentCancel && st.Intent != nlu.IntentReschedule {
		return false, nil
	}
	idx, numeric := parseSelection(t.text)
	if !numeric || !inRange(idx, len(st.LastAppointmentIDs)) {
		t.reply("appointment_menu_reprompt", replyPickAppointment)
		return true, nil
	}
	apptID := st.LastAppointmentIDs[idx]
	st.LastAppointmentIDs = nil

	if st.Intent == nlu.IntentCancel {
		_, slot, err := e.booker.Cancel(ctx, apptID)
		if isNotFound(err) {
			t.reply("stale_appointment", replyAppointmentMissing)
			return true, nil
		}
		if err != nil {
			return false, err
		}
		e.metrics.ObserveBooking("cancel", "canceled")
		if slot != nil {
			t.resp.Department = slot.Department
		}
		t.reply("canceled", replyCanceled)
		return true, nil
	}

	appt, err := e.repo.GetAppointment(ctx, apptID)
	if isNotFound(err) {
		t.reply("stale_appointment", replyAppointmentMissing)
		return true, nil
	}
	if err != nil {
		return false, err
	}
	st.PendingAppointmentID = appt.ID
	dept := st.Department
	if slot, err := e.repo.GetSlot(ctx, appt.SlotID); err == nil {
		dept = slot.Department
	} else if !isNotFound(err) {
		return false, err
	}
	if dept == "" {
		st.AwaitingDepartment = true
		t.reply("ask_department", replyAskRescheduleDept)
		return true, nil
	}
	st.Department = dept
	return e.listRescheduleSlots(ctx, t)
}

// listRescheduleSlots offers open slots in the department of the appointment
// being moved.
func (e *Engine) listRescheduleSlots(ctx context.Context, t *turn) (bool, error) {
	dept := t.st.Department
	slots, err := e.calendar.NextOpen(ctx, dept, "", menuSize)
	if err != nil {
		return false, err
	}
	e.offerSlots(t, slots, "reschedule_slots", fmt.Sprintf("Here are the next available %s times. %s", dept, replyPickRescheduleSlot))
	return true, nil
}

// selectProvider consumes a pick from the provider menu.
func (e *Engine) selectProvider(ctx context.Context, t *turn) (bool, error) {
	st := t.st
	if !st.AwaitingProvider || len(st.ProviderChoices) == 0 {
		return false, nil
	}
	t.fallback = nlu.IntentBook
	idx, numeric := parseSelection(t.text)
	if !numeric || !inRange(idx, len(st.ProviderChoices)) {
		t.reply("provider_menu_reprompt", replyPickProvider)
		return true, nil
	}
	st.SelectedProvider = st.ProviderChoices[idx].Name
	st.ProviderChoices = nil
	st.AwaitingProvider = false

	if st.ProviderNeedsDepartment {
		st.ProviderNeedsDepartment = false
		st.AwaitingDepartment = true
		t.reply("ask_provider_department", replyAskProviderDept)
		return true, nil
	}
	note := ""
	if st.Department == "" {
		st.Department = DefaultDepartment
		note = replyDefaultDeptNote
	}
	return e.listProviderSlots(ctx, t, note)
}

// resolveDepartment answers an explicit department question.
func (e *Engine) resolveDepartment(ctx context.Context, t *turn) (bool, error) {
	st := t.st
	if !st.AwaitingDepartment {
		return false, nil
	}
	dept, ok := scheduling.NormalizeDepartment(t.text)
	if !ok {
		dept = e.classifier.Classify(ctx, t.text).Department
	}
	if dept == "" {
		t.reply("ask_department", replyAskDeptOptions)
		return true, nil
	}
	st.Department = dept
	st.AwaitingDepartment = false

	switch {
	case st.PendingAppointmentID != "":
		return e.listRescheduleSlots(ctx, t)
	case st.SelectedProvider != "":
		return e.listProviderSlots(ctx, t, "")
	}
	return false, nil
}

// searchByLocation runs a provider search when a ZIP was asked for or just
// volunteered.
func (e *Engine) searchByLocation(ctx context.Context, t *turn) (bool, error) {
	st := t.st
	if st.LocationZip == "" || !(st.AwaitingLocation || t.zipMentioned) {
		return false, nil
	}
	if e.directory == nil {
		return false, nil
	}
	t.fallback = nlu.IntentBook
	return e.offerProviders(ctx, t, false), nil
}

// offerProviders searches the directory for the frame's department and ZIP
// and renders the result as a numbered menu. anyDepartment switches to the
// wording used when no department is known yet.
func (e *Engine) offerProviders(ctx context.Context, t *turn, anyDepartment bool) bool {
	st := t.st
	found, tier := e.directory.Search(ctx, st.Department, st.LocationZip, menuSize)
	if len(found) == 0 {
		st.AwaitingLocation = true
		label := "providers"
		if st.Department != "" {
			label = st.Department + " providers"
		}
		t.reply("providers_empty", fmt.Sprintf("I couldn't find nearby %s. Could you share a different ZIP code?", label))
		return true
	}
	st.ProviderChoices = found
	st.AwaitingProvider = true
	st.AwaitingLocation = false
	st.ProviderNeedsDepartment = anyDepartment || tier.Widened()
	t.resp.SuggestedProviders = found

	lines := lo.Map(found, func(p providers.Provider, i int) string {
		return fmt.Sprintf("%d) %s (%s %s)", i+1, p.Name, p.City, p.State)
	})
	prompt := "Reply with a number: "
	if anyDepartment {
		prompt = "Reply with a number, then tell me the department: "
	}
	t.reply("providers_"+tierLabel(tier), providerPrefix(tier, anyDepartment)+prompt+strings.Join(lines, " "))
	return true
}

func providerPrefix(tier providers.Tier, anyDepartment bool) string {
	switch {
	case anyDepartment && tier == providers.TierNearby:
		return prefixAnyProvidersNearby
	case anyDepartment && tier == providers.TierBroader:
		return prefixAnyProvidersBroad
	case tier == providers.TierNearby:
		return prefixProvidersNearby
	case tier == providers.TierBroader:
		return prefixProvidersBroader
	}
	return prefixProvidersExact
}

func tierLabel(tier providers.Tier) string {
	if tier == providers.TierNone {
		return "exact"
	}
	return string(tier)
}

// listProviderSlots makes sure the selected provider has a calendar and
// offers its next open slots.
func (e *Engine) listProviderSlots(ctx context.Context, t *turn, note string) (bool, error) {
	st := t.st
	created, err := e.calendar.EnsureProviderSlots(ctx, st.Department, st.SelectedProvider)
	if err != nil {
		return false, err
	}
	if created {
		e.logger.Info("generated provider slots", "department", st.Department, "provider", st.SelectedProvider)
	}
	slots, err := e.calendar.NextOpen(ctx, st.Department, st.SelectedProvider, menuSize)
	if err != nil {
		return false, err
	}
	text := strings.TrimSpace(fmt.Sprintf("%s Here are the next available times with %s. %s", note, st.SelectedProvider, replyPickSlotSuffix))
	e.offerSlots(t, slots, "provider_slots", text)
	return true, nil
}

// offerSlots stores slots as the open slot menu and renders them after
// lead. An empty list leaves any previous menu closed.
func (e *Engine) offerSlots(t *turn, slots []scheduling.Slot, branch, lead string) {
	st := t.st
	if len(slots) == 0 {
		st.SuggestedSlotIDs = nil
		dept := st.Department
		if dept == "" {
			dept = "that department"
		}
		t.reply("no_slots", fmt.Sprintf("I don't see any open %s times right now. Would you like to try another department?", dept))
		return
	}
	st.SuggestedSlotIDs = lo.Map(slots, func(s scheduling.Slot, _ int) string { return s.ID })
	t.resp.SuggestedSlots = lo.Map(slots, func(s scheduling.Slot, _ int) SlotOption {
		return SlotOption{
			ID:         s.ID,
			Department: s.Department,
			Provider:   s.Provider,
			StartTime:  s.StartTime,
			Label:      e.formatTime(s.StartTime),
		}
	})
	lines := lo.Map(t.resp.SuggestedSlots, func(o SlotOption, i int) string {
		return fmt.Sprintf("%d) %s with %s", i+1, o.Label, o.Provider)
	})
	t.reply(branch, lead+" "+strings.Join(lines, " "))
}

// listAppointments renders the caller's booked appointments as a numbered
// menu for the current reschedule or cancel request.
func (e *Engine) listAppointments(ctx context.Context, t *turn) (bool, error) {
	st := t.st
	verb := "cancel"
	if st.Intent == nlu.IntentReschedule {
		verb = "reschedule"
	}
	if st.PatientPhone == "" {
		st.AwaitingPatient = true
		t.reply("ask_phone", replyAskPhoneSure)
		return true, nil
	}
	patient, err := e.repo.FindPatientByPhone(ctx, st.PatientPhone)
	if isNotFound(err) {
		t.reply("patient_unknown", replyNoPatientForPhone)
		return true, nil
	}
	if err != nil {
		return false, err
	}
	appts, err := e.repo.ListBookedAppointments(ctx, patient.ID)
	if err != nil {
		return false, err
	}
	if len(appts) == 0 {
		st.LastAppointmentIDs = nil
		t.reply("no_appointments", fmt.Sprintf("I don't see any upcoming appointments to %s.", verb))
		return true, nil
	}

	lines := make([]string, 0, len(appts))
	for i, a := range appts {
		slot, err := e.repo.GetSlot(ctx, a.SlotID)
		if isNotFound(err) {
			lines = append(lines, fmt.Sprintf("%d) Appointment %s", i+1, a.ID))
			continue
		}
		if err != nil {
			return false, err
		}
		lines = append(lines, fmt.Sprintf("%d) %s at %s", i+1, slot.Department, e.formatTime(slot.StartTime)))
	}
	st.LastAppointmentIDs = lo.Map(appts, func(a scheduling.Appointment, _ int) string { return a.ID })

	lead := "Which appointment should I cancel? "
	if verb == "reschedule" {
		lead = "Which appointment should we reschedule? "
	}
	t.reply("appointment_menu", lead+strings.Join(lines, " "))
	return true, nil
}
