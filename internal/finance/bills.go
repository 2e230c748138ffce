package finance

import (
	"sync"
	"time"

	"github.com/boddenberg/finanzen-bfa-go/internal/domain"
)

// ReminderWindowDays is the largest days-until-due that triggers a reminder.
const ReminderWindowDays = 3

func calendarDay(t time.Time, loc *time.Location) domain.Date {
	return domain.NewDate(t.In(loc))
}

// BillUrgency is the number of calendar days from today (in loc) to the due
// date. Negative means the due date has passed.
func BillUrgency(bill domain.Bill, today time.Time, loc *time.Location) int {
	from := calendarDay(today, loc)
	due := domain.NewDate(bill.DueDate.Time)
	return int(due.Sub(from.Time).Hours() / 24)
}

// InitialBillStatus is computed once at creation: overdue when the due date
// is before today, due otherwise.
func InitialBillStatus(dueDate domain.Date, now time.Time, loc *time.Location) domain.BillStatus {
	if dueDate.Before(calendarDay(now, loc).Time) {
		return domain.BillOverdue
	}
	return domain.BillDue
}

// PendingBills counts bills still awaiting payment (due or overdue).
func PendingBills(bills []domain.Bill) int {
	n := 0
	for _, b := range bills {
		if b.Status == domain.BillDue || b.Status == domain.BillOverdue {
			n++
		}
	}
	return n
}

// Reminder remembers which bills were already surfaced so that each bill is
// reminded at most once during its lifetime. One Reminder lives per session.
type Reminder struct {
	loc      *time.Location
	mu       sync.Mutex
	notified map[string]struct{}
}

func NewReminder(loc *time.Location) *Reminder {
	return &Reminder{loc: loc, notified: make(map[string]struct{})}
}

// Due returns the unpaid bills due within 0..3 days of today that have not
// been returned before, and marks them as notified.
func (r *Reminder) Due(bills []domain.Bill, today time.Time) []domain.BillReminder {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.BillReminder, 0)
	for _, b := range bills {
		if b.Status == domain.BillPaid {
			continue
		}
		days := BillUrgency(b, today, r.loc)
		if days < 0 || days > ReminderWindowDays {
			continue
		}
		if _, seen := r.notified[b.ID]; seen {
			continue
		}
		r.notified[b.ID] = struct{}{}
		out = append(out, domain.BillReminder{Bill: b, DaysUntilDue: days})
	}
	return out
}

// Pending reports the bills Due would return, without marking them.
func (r *Reminder) Pending(bills []domain.Bill, today time.Time) []domain.BillReminder {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.BillReminder, 0)
	for _, b := range bills {
		if b.Status == domain.BillPaid {
			continue
		}
		days := BillUrgency(b, today, r.loc)
		if days < 0 || days > ReminderWindowDays {
			continue
		}
		if _, seen := r.notified[b.ID]; !seen {
			out = append(out, domain.BillReminder{Bill: b, DaysUntilDue: days})
		}
	}
	return out
}
