package conversation

import (
	"slices"

	"github.com/Avaneeshakrishna/cliniccall-AI/internal/nlu"
	"github.com/Avaneeshakrishna/cliniccall-AI/internal/providers"
)

// State is the slot-filling frame for one conversation. Pending questions
// are independent flags; the engine resolves at most one per turn.
//
// There is no stored confirmation flag. A conversation awaits confirmation
// exactly when a slot is pending and neither a reason nor patient details
// are still outstanding, so the flag cannot drift from PendingSlotID.
type State struct {
	Intent     nlu.Intent `json:"intent,omitempty"`
	Department string     `json:"department,omitempty"`
	Reason     string     `json:"reason,omitempty"`

	PendingSlotID        string `json:"pending_slot_id,omitempty"`
	PendingAppointmentID string `json:"pending_appointment_id,omitempty"`

	AwaitingReason     bool `json:"awaiting_reason,omitempty"`
	AwaitingPatient    bool `json:"awaiting_patient,omitempty"`
	AwaitingProvider   bool `json:"awaiting_provider,omitempty"`
	AwaitingLocation   bool `json:"awaiting_location,omitempty"`
	AwaitingDepartment bool `json:"awaiting_department,omitempty"`

	PatientPhone string `json:"patient_phone,omitempty"`
	PatientEmail string `json:"patient_email,omitempty"`
	PatientName  string `json:"patient_name,omitempty"`

	LastAppointmentIDs      []string             `json:"last_appointment_ids,omitempty"`
	LocationZip             string               `json:"location_zip,omitempty"`
	ProviderChoices         []providers.Provider `json:"provider_choices,omitempty"`
	SelectedProvider        string               `json:"selected_provider,omitempty"`
	ProviderNeedsDepartment bool                 `json:"provider_needs_department,omitempty"`
	SuggestedSlotIDs        []string             `json:"suggested_slot_ids,omitempty"`
}

// NewState returns an empty frame.
func NewState() *State {
	return &State{}
}

// AwaitingConfirmation reports whether the next yes/no answers the pending slot.
func (s *State) AwaitingConfirmation() bool {
	return s.PendingSlotID != "" && !s.AwaitingReason && !s.AwaitingPatient
}

// HoldSlot makes slotID the pending slot, asking for a reason first when
// none is known yet. A reschedule keeps the appointment's original reason.
func (s *State) HoldSlot(slotID string) {
	s.PendingSlotID = slotID
	s.AwaitingReason = s.Reason == "" && s.PendingAppointmentID == ""
}

// CaptureReason records the visit reason and clears the reason question.
func (s *State) CaptureReason(reason string) {
	s.Reason = reason
	s.AwaitingReason = false
}

// DropPendingSlot forgets the held slot and any reschedule in progress.
func (s *State) DropPendingSlot() {
	s.PendingSlotID = ""
	s.PendingAppointmentID = ""
	s.AwaitingReason = false
	s.AwaitingPatient = false
}

// ReleaseSlot forgets the held slot after a decline or a lost race. A
// reschedule keeps its appointment so another time can be offered for it.
func (s *State) ReleaseSlot() {
	appt := s.PendingAppointmentID
	s.DropPendingSlot()
	s.SuggestedSlotIDs = nil
	if s.Intent == nlu.IntentReschedule {
		s.PendingAppointmentID = appt
	}
}

// FinishBooking resets everything tied to the booking that just committed.
func (s *State) FinishBooking() {
	s.DropPendingSlot()
	s.SuggestedSlotIDs = nil
	s.LastAppointmentIDs = nil
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	cp := *s
	cp.LastAppointmentIDs = slices.Clone(s.LastAppointmentIDs)
	cp.ProviderChoices = slices.Clone(s.ProviderChoices)
	cp.SuggestedSlotIDs = slices.Clone(s.SuggestedSlotIDs)
	return &cp
}
