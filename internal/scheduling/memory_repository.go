package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps scheduling data in process. A single mutex guards
// all state, so ClaimSlot is linearizable and InTx runs serialized with an
// undo log for rollback.
type MemoryRepository struct {
	mu    sync.Mutex
	state *memState
}

type memState struct {
	slots        map[string]*Slot
	patients     map[string]*Patient
	appointments map[string]*Appointment
	apptOrder    []string
	urgentCases  []UrgentCase
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		state: &memState{
			slots:        make(map[string]*Slot),
			patients:     make(map[string]*Patient),
			appointments: make(map[string]*Appointment),
		},
	}
}

// InTx runs fn while holding the repository lock and undoes its writes when
// fn returns an error.
func (r *MemoryRepository) InTx(ctx context.Context, fn func(q Queries) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &memTx{state: r.state, record: true}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

func (r *MemoryRepository) direct() *memTx {
	return &memTx{state: r.state}
}

func (r *MemoryRepository) GetSlot(ctx context.Context, id string) (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.direct().GetSlot(ctx, id)
}

func (r *MemoryRepository) ClaimSlot(ctx context.Context, id string) (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.direct().ClaimSlot(ctx, id)
}

func (r *MemoryRepository) ReleaseSlot(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.direct().ReleaseSlot(ctx, id)
}

func (r *MemoryRepository) ListOpenSlots(ctx context.Context, filter SlotFilter) ([]Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.direct().ListOpenSlots(ctx, filter)
}

func (r *MemoryRepository) CountSlots(ctx context.Context, department, provider string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.direct().CountSlots(ctx, department, provider)
}

func (r *MemoryRepository) InsertSlots(ctx context.Context, slots []Slot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.direct().InsertSlots(ctx, slots)
}

func (r *MemoryRepository) CreatePatient(ctx context.Context, p *Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.direct().CreatePatient(ctx, p)
}

func (r *MemoryRepository) GetPatient(ctx context.Context, id string) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.direct().GetPatient(ctx, id)
}

func (r *MemoryRepository) FindPatientByPhone(ctx context.Context, phone string) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.direct().FindPatientByPhone(ctx, phone)
}

func (r *MemoryRepository) CreateAppointment(ctx context.Context, a *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.direct().CreateAppointment(ctx, a)
}

func (r *MemoryRepository) GetAppointment(ctx context.Context, id string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.direct().GetAppointment(ctx, id)
}

func (r *MemoryRepository) UpdateAppointment(ctx context.Context, a *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.direct().UpdateAppointment(ctx, a)
}

func (r *MemoryRepository) ListBookedAppointments(ctx context.Context, patientID string) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.direct().ListBookedAppointments(ctx, patientID)
}

func (r *MemoryRepository) CreateUrgentCase(ctx context.Context, c *UrgentCase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.direct().CreateUrgentCase(ctx, c)
}

func (r *MemoryRepository) ListUrgentCases(ctx context.Context) ([]UrgentCase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.direct().ListUrgentCases(ctx)
}

// memTx operates on memState without locking; callers hold the mutex.
type memTx struct {
	state  *memState
	record bool
	undo   []func()
}

func (t *memTx) onRollback(fn func()) {
	if t.record {
		t.undo = append(t.undo, fn)
	}
}

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memTx) GetSlot(_ context.Context, id string) (*Slot, error) {
	slot, ok := t.state.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	cp := *slot
	return &cp, nil
}

func (t *memTx) ClaimSlot(_ context.Context, id string) (*Slot, error) {
	slot, ok := t.state.slots[id]
	if !ok || slot.IsBooked {
		return nil, ErrSlotUnavailable
	}
	slot.IsBooked = true
	t.onRollback(func() { slot.IsBooked = false })
	cp := *slot
	return &cp, nil
}

func (t *memTx) ReleaseSlot(_ context.Context, id string) error {
	slot, ok := t.state.slots[id]
	if !ok {
		return ErrSlotNotFound
	}
	was := slot.IsBooked
	slot.IsBooked = false
	t.onRollback(func() { slot.IsBooked = was })
	return nil
}

func (t *memTx) ListOpenSlots(_ context.Context, filter SlotFilter) ([]Slot, error) {
	var out []Slot
	for _, slot := range t.state.slots {
		if slot.IsBooked {
			continue
		}
		if filter.Department != "" && slot.Department != filter.Department {
			continue
		}
		if filter.Provider != "" && slot.Provider != filter.Provider {
			continue
		}
		out = append(out, *slot)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (t *memTx) CountSlots(_ context.Context, department, provider string) (int, error) {
	n := 0
	for _, slot := range t.state.slots {
		if slot.Department == department && (provider == "" || slot.Provider == provider) {
			n++
		}
	}
	return n, nil
}

func (t *memTx) InsertSlots(_ context.Context, slots []Slot) error {
	for i := range slots {
		slot := slots[i]
		if slot.ID == "" {
			slot.ID = uuid.NewString()
			slots[i].ID = slot.ID
		}
		id := slot.ID
		t.state.slots[id] = &slot
		t.onRollback(func() { delete(t.state.slots, id) })
	}
	return nil
}

func (t *memTx) CreatePatient(_ context.Context, p *Patient) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	cp := *p
	t.state.patients[p.ID] = &cp
	id := p.ID
	t.onRollback(func() { delete(t.state.patients, id) })
	return nil
}

func (t *memTx) GetPatient(_ context.Context, id string) (*Patient, error) {
	p, ok := t.state.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	cp := *p
	return &cp, nil
}

func (t *memTx) FindPatientByPhone(_ context.Context, phone string) (*Patient, error) {
	var found *Patient
	for _, p := range t.state.patients {
		if p.Phone == phone && (found == nil || p.ID < found.ID) {
			found = p
		}
	}
	if found == nil {
		return nil, ErrPatientNotFound
	}
	cp := *found
	return &cp, nil
}

func (t *memTx) CreateAppointment(_ context.Context, a *Appointment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	cp := *a
	t.state.appointments[a.ID] = &cp
	t.state.apptOrder = append(t.state.apptOrder, a.ID)
	id := a.ID
	t.onRollback(func() {
		delete(t.state.appointments, id)
		t.state.apptOrder = t.state.apptOrder[:len(t.state.apptOrder)-1]
	})
	return nil
}

func (t *memTx) GetAppointment(_ context.Context, id string) (*Appointment, error) {
	a, ok := t.state.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (t *memTx) UpdateAppointment(_ context.Context, a *Appointment) error {
	current, ok := t.state.appointments[a.ID]
	if !ok {
		return ErrAppointmentNotFound
	}
	prev := *current
	current.SlotID = a.SlotID
	current.Status = a.Status
	current.Reason = a.Reason
	t.onRollback(func() { *current = prev })
	return nil
}

func (t *memTx) ListBookedAppointments(_ context.Context, patientID string) ([]Appointment, error) {
	var out []Appointment
	for _, id := range t.state.apptOrder {
		a := t.state.appointments[id]
		if a.PatientID == patientID && a.Status == StatusBooked {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (t *memTx) CreateUrgentCase(_ context.Context, c *UrgentCase) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	t.state.urgentCases = append(t.state.urgentCases, *c)
	t.onRollback(func() { t.state.urgentCases = t.state.urgentCases[:len(t.state.urgentCases)-1] })
	return nil
}

func (t *memTx) ListUrgentCases(_ context.Context) ([]UrgentCase, error) {
	out := make([]UrgentCase, 0, len(t.state.urgentCases))
	for i := len(t.state.urgentCases) - 1; i >= 0; i-- {
		out = append(out, t.state.urgentCases[i])
	}
	return out, nil
}
