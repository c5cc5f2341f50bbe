package scheduling

import "context"

// Queries is the set of storage operations the booking flows run, either
// directly or inside a transaction.
type Queries interface {
	GetSlot(ctx context.Context, id string) (*Slot, error)
	// ClaimSlot flips is_booked from false to true in one conditional write.
	// It returns ErrSlotUnavailable when the slot is booked or missing.
	ClaimSlot(ctx context.Context, id string) (*Slot, error)
	ReleaseSlot(ctx context.Context, id string) error
	ListOpenSlots(ctx context.Context, filter SlotFilter) ([]Slot, error)
	CountSlots(ctx context.Context, department, provider string) (int, error)
	InsertSlots(ctx context.Context, slots []Slot) error

	CreatePatient(ctx context.Context, p *Patient) error
	GetPatient(ctx context.Context, id string) (*Patient, error)
	FindPatientByPhone(ctx context.Context, phone string) (*Patient, error)

	CreateAppointment(ctx context.Context, a *Appointment) error
	GetAppointment(ctx context.Context, id string) (*Appointment, error)
	UpdateAppointment(ctx context.Context, a *Appointment) error
	// ListBookedAppointments returns a patient's booked appointments in storage order.
	ListBookedAppointments(ctx context.Context, patientID string) ([]Appointment, error)

	CreateUrgentCase(ctx context.Context, c *UrgentCase) error
	ListUrgentCases(ctx context.Context) ([]UrgentCase, error)
}

// Repository adds transactional execution to Queries. fn either commits as a
// whole or leaves no effect when it returns an error.
type Repository interface {
	Queries
	InTx(ctx context.Context, fn func(q Queries) error) error
}
