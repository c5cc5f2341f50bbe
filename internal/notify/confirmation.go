package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Avaneeshakrishna/cliniccall-AI/internal/scheduling"
	"github.com/Avaneeshakrishna/cliniccall-AI/pkg/logging"
)

const (
	confirmationSubject  = "Your appointment is confirmed"
	defaultNotifyTimeout = 10 * time.Second
)

// BookingNotifier emails booking confirmations in the background.
type BookingNotifier struct {
	email   EmailSender
	loc     *time.Location
	timeout time.Duration
	logger  *logging.Logger
	wg      sync.WaitGroup
}

// NewBookingNotifier wraps email. Slot times are rendered in loc.
func NewBookingNotifier(email EmailSender, loc *time.Location, timeout time.Duration, logger *logging.Logger) *BookingNotifier {
	if loc == nil {
		loc = time.UTC
	}
	if timeout <= 0 {
		timeout = defaultNotifyTimeout
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &BookingNotifier{email: email, loc: loc, timeout: timeout, logger: logger}
}

// NotifyBooked queues a confirmation email and returns immediately.
// Delivery failures are logged and otherwise ignored.
func (n *BookingNotifier) NotifyBooked(ctx context.Context, c scheduling.Confirmation) {
	if n == nil || n.email == nil || c.PatientEmail == "" {
		return
	}
	msg := ConfirmationEmail(c, n.loc)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
		defer cancel()
		if err := n.email.Send(sendCtx, msg); err != nil {
			n.logger.Warn("booking confirmation not sent",
				"appointment_id", c.AppointmentID,
				"to", logging.RedactEmail(c.PatientEmail),
				"error", err,
			)
		}
	}()
}

// Wait blocks until queued confirmations finish.
func (n *BookingNotifier) Wait() {
	n.wg.Wait()
}

// ConfirmationEmail renders the confirmation sent to the patient.
func ConfirmationEmail(c scheduling.Confirmation, loc *time.Location) EmailMessage {
	provider := c.Provider
	if provider == "" {
		provider = "Provider"
	}
	var body string
	if c.Department != "" && !c.StartTime.IsZero() {
		body = fmt.Sprintf("Hello %s,\n\nYour %s appointment is booked for %s.\nProvider: %s\nLocation: To be confirmed by the clinic.\n\nIf you need to reschedule or cancel, reply in the assistant.",
			c.PatientName, c.Department, scheduling.FormatSlotTime(c.StartTime, loc), provider)
	} else {
		body = "Your appointment has been booked. Please contact the clinic if you need changes."
	}
	return EmailMessage{
		To:      c.PatientEmail,
		ToName:  c.PatientName,
		Subject: confirmationSubject,
		Body:    body,
	}
}

var _ scheduling.Notifier = (*BookingNotifier)(nil)
