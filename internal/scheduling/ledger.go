package scheduling

import (
	"context"
	"errors"
)

// SlotLedger owns the booked flag of every slot.
type SlotLedger struct {
	repo Repository
}

func NewSlotLedger(repo Repository) *SlotLedger {
	return &SlotLedger{repo: repo}
}

// Claim books a free slot. Exactly one of any number of concurrent claims on
// the same slot succeeds; the rest get ErrSlotUnavailable.
func (l *SlotLedger) Claim(ctx context.Context, slotID string) (*Slot, error) {
	return l.repo.ClaimSlot(ctx, slotID)
}

// Release frees a slot.
func (l *SlotLedger) Release(ctx context.Context, slotID string) error {
	return l.repo.ReleaseSlot(ctx, slotID)
}

// Available reports whether a slot exists and is not booked. A missing slot
// is reported as unavailable, not as an error.
func (l *SlotLedger) Available(ctx context.Context, slotID string) (*Slot, bool, error) {
	if slotID == "" {
		return nil, false, nil
	}
	slot, err := l.repo.GetSlot(ctx, slotID)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return slot, !slot.IsBooked, nil
}
