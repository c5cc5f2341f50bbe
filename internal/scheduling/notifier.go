package scheduling

import (
	"context"
	"time"
)

// Confirmation describes a committed booking for outbound notices.
type Confirmation struct {
	AppointmentID string
	PatientName   string
	PatientEmail  string
	Department    string
	Provider      string
	StartTime     time.Time
}

// Notifier sends booking confirmations. Implementations must not block the
// caller on delivery and must swallow their own failures.
type Notifier interface {
	NotifyBooked(ctx context.Context, c Confirmation)
}

// NewConfirmation builds a Confirmation from a committed BookingResult.
func NewConfirmation(result BookingResult) Confirmation {
	c := Confirmation{}
	if result.Appointment != nil {
		c.AppointmentID = result.Appointment.ID
	}
	if result.Patient != nil {
		c.PatientName = result.Patient.Name
		c.PatientEmail = result.Patient.Email
	}
	if result.Slot != nil {
		c.Department = result.Slot.Department
		c.Provider = result.Slot.Provider
		c.StartTime = result.Slot.StartTime
	}
	return c
}
