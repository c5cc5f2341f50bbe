package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Avaneeshakrishna/cliniccall-AI/pkg/logging"
)

// DefaultCallerName is used when a patient is created without a name.
const DefaultCallerName = "Voice Caller"

// Outcome distinguishes a committed booking from an expected slot conflict.
type Outcome string

const (
	OutcomeBooked   Outcome = "booked"
	OutcomeConflict Outcome = "conflict"
)

// BookingResult is returned by Book and Rebook. Conflicts are reported here
// rather than as errors; the error return is reserved for storage failures.
type BookingResult struct {
	Outcome     Outcome
	Appointment *Appointment
	Slot        *Slot
	Patient     *Patient
}

// Booked reports whether the booking committed.
func (r BookingResult) Booked() bool { return r.Outcome == OutcomeBooked }

// PatientDetails carries caller identity used to find or create a patient.
type PatientDetails struct {
	Phone string
	Name  string
	Email string
}

// Booker composes slot claims, appointment writes and patient creation into
// single transactions.
type Booker struct {
	repo   Repository
	logger *logging.Logger
	tracer trace.Tracer
}

func NewBooker(repo Repository, logger *logging.Logger) *Booker {
	if logger == nil {
		logger = logging.Default()
	}
	return &Booker{repo: repo, logger: logger, tracer: schedulingTracer}
}

// Book claims slotID for an existing patient and records the appointment.
func (b *Booker) Book(ctx context.Context, patientID, slotID, reason string) (BookingResult, error) {
	ctx, span := b.tracer.Start(ctx, "scheduling.book")
	defer span.End()
	span.SetAttributes(attribute.String("scheduling.slot_id", slotID))

	var result BookingResult
	err := b.repo.InTx(ctx, func(q Queries) error {
		patient, err := q.GetPatient(ctx, patientID)
		if err != nil {
			return err
		}
		result.Patient = patient
		return b.claimAndCreate(ctx, q, patient.ID, slotID, reason, &result)
	})
	return b.finish(span, "book", result, err)
}

// BookForCaller resolves the patient by phone, creating it when absent, and
// books slotID in the same transaction.
func (b *Booker) BookForCaller(ctx context.Context, details PatientDetails, slotID, reason string) (BookingResult, error) {
	ctx, span := b.tracer.Start(ctx, "scheduling.book_for_caller")
	defer span.End()
	span.SetAttributes(attribute.String("scheduling.slot_id", slotID))

	var result BookingResult
	err := b.repo.InTx(ctx, func(q Queries) error {
		patient, err := ensurePatient(ctx, q, details, true)
		if err != nil {
			return err
		}
		result.Patient = patient
		return b.claimAndCreate(ctx, q, patient.ID, slotID, reason, &result)
	})
	return b.finish(span, "book", result, err)
}

func (b *Booker) claimAndCreate(ctx context.Context, q Queries, patientID, slotID, reason string, result *BookingResult) error {
	slot, err := q.ClaimSlot(ctx, slotID)
	if err != nil {
		return err
	}
	appt := &Appointment{
		PatientID: patientID,
		SlotID:    slot.ID,
		Reason:    reason,
		Status:    StatusBooked,
	}
	if err := q.CreateAppointment(ctx, appt); err != nil {
		return err
	}
	result.Slot = slot
	result.Appointment = appt
	return nil
}

// Rebook moves an appointment to newSlotID. On conflict the appointment and
// its current slot are left untouched.
func (b *Booker) Rebook(ctx context.Context, appointmentID, newSlotID string) (BookingResult, error) {
	ctx, span := b.tracer.Start(ctx, "scheduling.rebook")
	defer span.End()
	span.SetAttributes(
		attribute.String("scheduling.appointment_id", appointmentID),
		attribute.String("scheduling.slot_id", newSlotID),
	)

	var result BookingResult
	err := b.repo.InTx(ctx, func(q Queries) error {
		appt, err := q.GetAppointment(ctx, appointmentID)
		if err != nil {
			return err
		}
		slot, err := q.ClaimSlot(ctx, newSlotID)
		if err != nil {
			return err
		}
		if appt.Status == StatusBooked && appt.SlotID != "" {
			if err := q.ReleaseSlot(ctx, appt.SlotID); err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
		}
		appt.SlotID = slot.ID
		appt.Status = StatusBooked
		if err := q.UpdateAppointment(ctx, appt); err != nil {
			return err
		}
		result.Slot = slot
		result.Appointment = appt
		return nil
	})
	return b.finish(span, "rebook", result, err)
}

// Cancel marks an appointment canceled and frees its slot. Canceling an
// already canceled appointment is a no-op.
func (b *Booker) Cancel(ctx context.Context, appointmentID string) (*Appointment, *Slot, error) {
	ctx, span := b.tracer.Start(ctx, "scheduling.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("scheduling.appointment_id", appointmentID))

	var (
		appt *Appointment
		slot *Slot
	)
	err := b.repo.InTx(ctx, func(q Queries) error {
		var err error
		appt, err = q.GetAppointment(ctx, appointmentID)
		if err != nil {
			return err
		}
		slot, err = q.GetSlot(ctx, appt.SlotID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if appt.Status == StatusCanceled {
			return nil
		}
		appt.Status = StatusCanceled
		if err := q.UpdateAppointment(ctx, appt); err != nil {
			return err
		}
		if slot != nil {
			if err := q.ReleaseSlot(ctx, slot.ID); err != nil {
				return err
			}
			slot.IsBooked = false
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, nil, err
	}
	b.logger.Info("appointment canceled", "appointment_id", appt.ID, "slot_id", appt.SlotID)
	return appt, slot, nil
}

// EnsurePatient looks a patient up by phone and creates one when absent,
// synthesizing a placeholder name and email as needed.
func (b *Booker) EnsurePatient(ctx context.Context, details PatientDetails) (*Patient, error) {
	var patient *Patient
	err := b.repo.InTx(ctx, func(q Queries) error {
		var err error
		patient, err = ensurePatient(ctx, q, details, true)
		return err
	})
	if err != nil {
		return nil, err
	}
	return patient, nil
}

// RegisterPatient looks a patient up by phone and creates one only when both
// name and email are supplied. Otherwise it returns ErrMissingContact.
func (b *Booker) RegisterPatient(ctx context.Context, details PatientDetails) (*Patient, error) {
	var patient *Patient
	err := b.repo.InTx(ctx, func(q Queries) error {
		var err error
		patient, err = ensurePatient(ctx, q, details, false)
		return err
	})
	if errors.Is(err, ErrMissingContact) {
		b.logger.Info("patient registration incomplete", "phone", logging.RedactPhone(details.Phone))
	}
	if err != nil {
		return nil, err
	}
	return patient, nil
}

func ensurePatient(ctx context.Context, q Queries, details PatientDetails, synthesize bool) (*Patient, error) {
	phone := strings.TrimSpace(details.Phone)
	if phone == "" {
		return nil, ErrMissingContact
	}
	patient, err := q.FindPatientByPhone(ctx, phone)
	if err == nil {
		return patient, nil
	}
	if !errors.Is(err, ErrPatientNotFound) {
		return nil, err
	}
	if !synthesize && (strings.TrimSpace(details.Name) == "" || strings.TrimSpace(details.Email) == "") {
		return nil, ErrMissingContact
	}
	patient = &Patient{
		Name:  strings.TrimSpace(details.Name),
		Phone: phone,
		Email: strings.TrimSpace(details.Email),
	}
	if patient.Name == "" {
		patient.Name = DefaultCallerName
	}
	if patient.Email == "" {
		patient.Email = PlaceholderEmail(phone)
	}
	if err := q.CreatePatient(ctx, patient); err != nil {
		return nil, err
	}
	return patient, nil
}

// PlaceholderEmail builds caller_<digits>@voice.local for callers who never
// gave an email.
func PlaceholderEmail(phone string) string {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if d == "" {
		d = "unknown"
	}
	return fmt.Sprintf("caller_%s@voice.local", d)
}

func (b *Booker) finish(span trace.Span, op string, result BookingResult, err error) (BookingResult, error) {
	if errors.Is(err, ErrSlotUnavailable) {
		span.SetAttributes(attribute.String("scheduling.outcome", string(OutcomeConflict)))
		b.logger.Info("slot conflict", "operation", op)
		return BookingResult{Outcome: OutcomeConflict}, nil
	}
	if err != nil {
		span.RecordError(err)
		return BookingResult{}, fmt.Errorf("scheduling: %s: %w", op, err)
	}
	result.Outcome = OutcomeBooked
	span.SetAttributes(attribute.String("scheduling.outcome", string(OutcomeBooked)))
	b.logger.Info("appointment booked",
		"operation", op,
		"appointment_id", result.Appointment.ID,
		"slot_id", result.Slot.ID,
	)
	return result, nil
}
