package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Avaneeshakrishna/cliniccall-AI/internal/scheduling"
)

type failingSender struct{ calls int }

func (f *failingSender) Send(ctx context.Context, msg EmailMessage) error {
	f.calls++
	return errors.New("smtp down")
}

func testConfirmation() scheduling.Confirmation {
	return scheduling.Confirmation{
		AppointmentID: "appt-1",
		PatientName:   "Jamie Doe",
		PatientEmail:  "jamie@example.com",
		Department:    scheduling.Cardiology,
		Provider:      "Dr. Nguyen",
		StartTime:     time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC),
	}
}

func TestConfirmationEmail(t *testing.T) {
	msg := ConfirmationEmail(testConfirmation(), time.UTC)
	if msg.Subject != "Your appointment is confirmed" || msg.To != "jamie@example.com" {
		t.Fatalf("unexpected envelope %+v", msg)
	}
	for _, want := range []string{
		"Hello Jamie Doe,",
		"Your Cardiology appointment is booked for Monday 9:00 AM.",
		"Provider: Dr. Nguyen",
		"Location: To be confirmed by the clinic.",
	} {
		if !strings.Contains(msg.Body, want) {
			t.Errorf("body missing %q:\n%s", want, msg.Body)
		}
	}

	c := testConfirmation()
	c.Provider = ""
	if !strings.Contains(ConfirmationEmail(c, time.UTC).Body, "Provider: Provider") {
		t.Errorf("expected placeholder provider name")
	}
}

func TestBookingNotifier_SendsInBackground(t *testing.T) {
	stub := NewStubEmailSender(nil)
	n := NewBookingNotifier(stub, time.UTC, time.Second, nil)

	n.NotifyBooked(context.Background(), testConfirmation())
	n.Wait()

	if sent := stub.Sent(); len(sent) != 1 || sent[0].To != "jamie@example.com" {
		t.Fatalf("unexpected sent messages %+v", sent)
	}
}

func TestBookingNotifier_SkipsWithoutEmail(t *testing.T) {
	stub := NewStubEmailSender(nil)
	n := NewBookingNotifier(stub, nil, 0, nil)

	c := testConfirmation()
	c.PatientEmail = ""
	n.NotifyBooked(context.Background(), c)
	n.Wait()

	if len(stub.Sent()) != 0 {
		t.Fatalf("expected no email without an address")
	}
}

func TestBookingNotifier_SwallowsFailures(t *testing.T) {
	sender := &failingSender{}
	n := NewBookingNotifier(sender, time.UTC, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	n.NotifyBooked(ctx, testConfirmation())
	cancel()
	n.Wait()

	if sender.calls != 1 {
		t.Fatalf("calls = %d, want 1", sender.calls)
	}
}
