package scheduling

import (
	"errors"
	"fmt"
)

var (
	// ErrSlotUnavailable is returned when a slot is already booked or does not exist.
	ErrSlotUnavailable = errors.New("slot unavailable")

	// ErrNotFound is the parent of every lookup miss in this package.
	ErrNotFound = errors.New("not found")

	ErrSlotNotFound        = fmt.Errorf("slot %w", ErrNotFound)
	ErrAppointmentNotFound = fmt.Errorf("appointment %w", ErrNotFound)
	ErrPatientNotFound     = fmt.Errorf("patient %w", ErrNotFound)

	// ErrMissingContact is returned when a patient cannot be created from the details given.
	ErrMissingContact = errors.New("phone, name and email are required to create a patient")
)
