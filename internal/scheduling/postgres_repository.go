package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var schedulingTracer = otel.Tracer("cliniccall.internal.scheduling")

// querier is satisfied by *pgxpool.Pool, pgx.Tx and pgxmock.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type db interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresRepository stores scheduling data in Postgres.
type PostgresRepository struct {
	pgQueries
	db     db
	tracer trace.Tracer
}

// NewPostgresRepository wraps a pgx pool (or anything that can begin transactions).
func NewPostgresRepository(pool db) *PostgresRepository {
	if pool == nil {
		panic("scheduling: pgx pool required")
	}
	return &PostgresRepository{
		pgQueries: pgQueries{q: pool},
		db:        pool,
		tracer:    schedulingTracer,
	}
}

// InTx runs fn inside a database transaction.
func (r *PostgresRepository) InTx(ctx context.Context, fn func(q Queries) error) error {
	ctx, span := r.tracer.Start(ctx, "scheduling.tx")
	defer span.End()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "begin failed")
		return fmt.Errorf("scheduling: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(pgQueries{q: tx}); err != nil {
		span.SetAttributes(attribute.Bool("scheduling.rolled_back", true))
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		return fmt.Errorf("scheduling: commit tx: %w", err)
	}
	return nil
}

type pgQueries struct {
	q querier
}

const slotColumns = `id, department, provider, start_time, is_booked`

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	if err := row.Scan(&s.ID, &s.Department, &s.Provider, &s.StartTime, &s.IsBooked); err != nil {
		return nil, err
	}
	return &s, nil
}

func (p pgQueries) GetSlot(ctx context.Context, id string) (*Slot, error) {
	slot, err := scanSlot(p.q.QueryRow(ctx, `SELECT `+slotColumns+` FROM slots WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, fmt.Errorf("scheduling: get slot: %w", err)
	}
	return slot, nil
}

func (p pgQueries) ClaimSlot(ctx context.Context, id string) (*Slot, error) {
	query := `
		UPDATE slots SET is_booked = true
		WHERE id = $1 AND is_booked = false
		RETURNING ` + slotColumns
	slot, err := scanSlot(p.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotUnavailable
		}
		return nil, fmt.Errorf("scheduling: claim slot: %w", err)
	}
	return slot, nil
}

func (p pgQueries) ReleaseSlot(ctx context.Context, id string) error {
	tag, err := p.q.Exec(ctx, `UPDATE slots SET is_booked = false WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("scheduling: release slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

func (p pgQueries) ListOpenSlots(ctx context.Context, filter SlotFilter) ([]Slot, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT ` + slotColumns + `
		FROM slots
		WHERE is_booked = false
		  AND ($1 = '' OR department = $1)
		  AND ($2 = '' OR provider = $2)
		ORDER BY start_time, id
		LIMIT $3
	`
	rows, err := p.q.Query(ctx, query, filter.Department, filter.Provider, limit)
	if err != nil {
		return nil, fmt.Errorf("scheduling: list open slots: %w", err)
	}
	defer rows.Close()

	var out []Slot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("scheduling: scan slot: %w", err)
		}
		out = append(out, *slot)
	}
	return out, rows.Err()
}

func (p pgQueries) CountSlots(ctx context.Context, department, provider string) (int, error) {
	var n int
	err := p.q.QueryRow(ctx,
		`SELECT count(*) FROM slots WHERE department = $1 AND ($2 = '' OR provider = $2)`,
		department, provider,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("scheduling: count slots: %w", err)
	}
	return n, nil
}

func (p pgQueries) InsertSlots(ctx context.Context, slots []Slot) error {
	for i := range slots {
		if slots[i].ID == "" {
			slots[i].ID = uuid.NewString()
		}
		s := slots[i]
		if _, err := p.q.Exec(ctx,
			`INSERT INTO slots (id, department, provider, start_time, is_booked) VALUES ($1, $2, $3, $4, $5)`,
			s.ID, s.Department, s.Provider, s.StartTime, s.IsBooked,
		); err != nil {
			return fmt.Errorf("scheduling: insert slot: %w", err)
		}
	}
	return nil
}

func (p pgQueries) CreatePatient(ctx context.Context, pt *Patient) error {
	if pt.ID == "" {
		pt.ID = uuid.NewString()
	}
	if _, err := p.q.Exec(ctx,
		`INSERT INTO patients (id, name, phone, email) VALUES ($1, $2, $3, $4)`,
		pt.ID, pt.Name, pt.Phone, pt.Email,
	); err != nil {
		return fmt.Errorf("scheduling: insert patient: %w", err)
	}
	return nil
}

func (p pgQueries) scanPatient(row pgx.Row) (*Patient, error) {
	var pt Patient
	if err := row.Scan(&pt.ID, &pt.Name, &pt.Phone, &pt.Email); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, fmt.Errorf("scheduling: select patient: %w", err)
	}
	return &pt, nil
}

func (p pgQueries) GetPatient(ctx context.Context, id string) (*Patient, error) {
	return p.scanPatient(p.q.QueryRow(ctx, `SELECT id, name, phone, email FROM patients WHERE id = $1`, id))
}

func (p pgQueries) FindPatientByPhone(ctx context.Context, phone string) (*Patient, error) {
	return p.scanPatient(p.q.QueryRow(ctx,
		`SELECT id, name, phone, email FROM patients WHERE phone = $1 ORDER BY created_at LIMIT 1`, phone))
}

func (p pgQueries) CreateAppointment(ctx context.Context, a *Appointment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if _, err := p.q.Exec(ctx, `
		INSERT INTO appointments (id, patient_id, slot_id, reason, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.PatientID, a.SlotID, a.Reason, string(a.Status), a.CreatedAt,
	); err != nil {
		return fmt.Errorf("scheduling: insert appointment: %w", err)
	}
	return nil
}

const appointmentColumns = `id, patient_id, slot_id, reason, status, created_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status string
	if err := row.Scan(&a.ID, &a.PatientID, &a.SlotID, &a.Reason, &status, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Status = AppointmentStatus(status)
	return &a, nil
}

func (p pgQueries) GetAppointment(ctx context.Context, id string) (*Appointment, error) {
	a, err := scanAppointment(p.q.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("scheduling: get appointment: %w", err)
	}
	return a, nil
}

func (p pgQueries) UpdateAppointment(ctx context.Context, a *Appointment) error {
	tag, err := p.q.Exec(ctx,
		`UPDATE appointments SET slot_id = $2, status = $3, reason = $4 WHERE id = $1`,
		a.ID, a.SlotID, string(a.Status), a.Reason,
	)
	if err != nil {
		return fmt.Errorf("scheduling: update appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (p pgQueries) ListBookedAppointments(ctx context.Context, patientID string) ([]Appointment, error) {
	rows, err := p.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1 AND status = 'booked'
		ORDER BY created_at, id`, patientID)
	if err != nil {
		return nil, fmt.Errorf("scheduling: list appointments: %w", err)
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scheduling: scan appointment: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (p pgQueries) CreateUrgentCase(ctx context.Context, c *UrgentCase) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if _, err := p.q.Exec(ctx, `
		INSERT INTO urgent_cases (id, patient_id, severity, summary, transcript, status, escalate, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.PatientID, c.Severity, c.Summary, c.Transcript, c.Status, c.Escalate, c.CreatedAt,
	); err != nil {
		return fmt.Errorf("scheduling: insert urgent case: %w", err)
	}
	return nil
}

func (p pgQueries) ListUrgentCases(ctx context.Context) ([]UrgentCase, error) {
	rows, err := p.q.Query(ctx, `
		SELECT id, patient_id, severity, summary, transcript, status, escalate, created_at
		FROM urgent_cases
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("scheduling: list urgent cases: %w", err)
	}
	defer rows.Close()

	var out []UrgentCase
	for rows.Next() {
		var c UrgentCase
		if err := rows.Scan(&c.ID, &c.PatientID, &c.Severity, &c.Summary, &c.Transcript, &c.Status, &c.Escalate, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scheduling: scan urgent case: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
