package scheduling

import (
	"strings"
	"time"
)

// Department names accepted by the clinic.
const (
	Dermatology     = "Dermatology"
	Cardiology      = "Cardiology"
	GeneralMedicine = "General Medicine"
	Pediatrics      = "Pediatrics"
	Orthopedics     = "Orthopedics"
)

// Departments lists the fixed department set in display order.
var Departments = []string{Dermatology, Cardiology, GeneralMedicine, Pediatrics, Orthopedics}

// DefaultProviders maps each department to the in-house provider used for seeding.
var DefaultProviders = map[string]string{
	Dermatology:     "Dr. Patel",
	Cardiology:      "Dr. Nguyen",
	GeneralMedicine: "Dr. Rivera",
	Pediatrics:      "Dr. Kim",
	Orthopedics:     "Dr. Shah",
}

// NormalizeDepartment title-cases s and returns it when it names a known
// department. ok is false for anything outside the fixed set.
func NormalizeDepartment(s string) (string, bool) {
	s = strings.TrimSpace(s)
	for _, d := range Departments {
		if strings.EqualFold(s, d) {
			return d, true
		}
	}
	return "", false
}

// Slot is a bookable (department, provider, start time) unit.
type Slot struct {
	ID         string    `json:"id"`
	Department string    `json:"department"`
	Provider   string    `json:"provider"`
	StartTime  time.Time `json:"start_time"`
	IsBooked   bool      `json:"is_booked"`
}

// AppointmentStatus is the lifecycle state of an appointment.
type AppointmentStatus string

const (
	StatusBooked   AppointmentStatus = "booked"
	StatusCanceled AppointmentStatus = "canceled"
)

// Appointment is a booking record. A booked appointment always points at a
// slot whose IsBooked flag is set.
type Appointment struct {
	ID        string            `json:"id"`
	PatientID string            `json:"patient_id"`
	SlotID    string            `json:"slot_id"`
	Reason    string            `json:"reason"`
	Status    AppointmentStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
}

// Patient is looked up by phone in conversational flows.
type Patient struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

// UrgentCase records a triaged urgent message for clinician follow-up.
type UrgentCase struct {
	ID         string    `json:"id"`
	PatientID  *string   `json:"patient_id,omitempty"`
	Severity   string    `json:"severity"`
	Summary    string    `json:"summary"`
	Transcript string    `json:"transcript"`
	Status     string    `json:"status"`
	Escalate   bool      `json:"escalate"`
	CreatedAt  time.Time `json:"created_at"`
}

// UrgentCaseReceived is the status of a newly stored urgent case.
const UrgentCaseReceived = "received"

// SlotFilter narrows open-slot listings. Empty fields match everything.
type SlotFilter struct {
	Department string
	Provider   string
	Limit      int
}

// FormatSlotTime renders a start time the way callers hear it, e.g.
// "Monday 9:30 AM", in the given location.
func FormatSlotTime(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format("Monday 3:04 PM")
}
