package scheduling

import (
	"context"
	"time"

	"github.com/Avaneeshakrishna/cliniccall-AI/pkg/logging"
)

const (
	scheduleDays     = 7
	dayStartHour     = 9
	dayEndHour       = 16
	slotLength       = 30 * time.Minute
	defaultMenuLimit = 5
)

// GenerateWeek returns one week of 30-minute slots, 09:00 through 16:00
// inclusive, starting on the calendar day of from in from's location.
func GenerateWeek(department, provider string, from time.Time) []Slot {
	loc := from.Location()
	y, m, d := from.Date()
	var out []Slot
	for day := 0; day < scheduleDays; day++ {
		start := time.Date(y, m, d+day, dayStartHour, 0, 0, 0, loc)
		end := time.Date(y, m, d+day, dayEndHour, 0, 0, 0, loc)
		for t := start; !t.After(end); t = t.Add(slotLength) {
			out = append(out, Slot{
				Department: department,
				Provider:   provider,
				StartTime:  t,
			})
		}
	}
	return out
}

// Calendar answers slot questions for the dialogue and the HTTP surface.
type Calendar struct {
	repo Repository
	loc  *time.Location
	now  func() time.Time
}

func NewCalendar(repo Repository, loc *time.Location) *Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return &Calendar{repo: repo, loc: loc, now: time.Now}
}

// Location is the clinic time zone used for generation and display.
func (c *Calendar) Location() *time.Location { return c.loc }

// NextOpen lists up to limit unbooked slots ordered by start time. A
// non-positive limit uses the menu size of five.
func (c *Calendar) NextOpen(ctx context.Context, department, provider string, limit int) ([]Slot, error) {
	if limit <= 0 {
		limit = defaultMenuLimit
	}
	return c.repo.ListOpenSlots(ctx, SlotFilter{Department: department, Provider: provider, Limit: limit})
}

// EnsureProviderSlots generates a week of slots for (department, provider)
// when that pair has none. It reports whether slots were created.
func (c *Calendar) EnsureProviderSlots(ctx context.Context, department, provider string) (bool, error) {
	created := false
	err := c.repo.InTx(ctx, func(q Queries) error {
		n, err := q.CountSlots(ctx, department, provider)
		if err != nil || n > 0 {
			return err
		}
		created = true
		return q.InsertSlots(ctx, GenerateWeek(department, provider, c.now().In(c.loc)))
	})
	return created, err
}

// Seed gives every department without slots a week of slots with its
// default provider.
func (c *Calendar) Seed(ctx context.Context, logger *logging.Logger) error {
	if logger == nil {
		logger = logging.Default()
	}
	for _, dept := range Departments {
		err := c.repo.InTx(ctx, func(q Queries) error {
			n, err := q.CountSlots(ctx, dept, "")
			if err != nil || n > 0 {
				return err
			}
			slots := GenerateWeek(dept, DefaultProviders[dept], c.now().In(c.loc))
			if err := q.InsertSlots(ctx, slots); err != nil {
				return err
			}
			logger.Info("seeded slots", "department", dept, "count", len(slots))
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Format renders a slot start time in the clinic time zone.
func (c *Calendar) Format(t time.Time) string {
	return FormatSlotTime(t, c.loc)
}
