package planner

import (
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// Recurrence is the repetition rule chosen in the create flow.
type Recurrence string

const (
	OneTime  Recurrence = "one-time"
	Weekly   Recurrence = "weekly"
	Biweekly Recurrence = "biweekly"
	Monthly  Recurrence = "monthly"
	Yearly   Recurrence = "yearly"
)

// RecurrenceLabels are the button labels offered to the user, in order.
var RecurrenceLabels = []string{"One-time", "Weekly", "Biweekly", "Monthly", "Yearly"}

// ParseRecurrence maps a button label to a Recurrence.
func ParseRecurrence(label string) (Recurrence, bool) {
	switch Recurrence(strings.ToLower(strings.TrimSpace(label))) {
	case OneTime:
		return OneTime, true
	case Weekly:
		return Weekly, true
	case Biweekly:
		return Biweekly, true
	case Monthly:
		return Monthly, true
	case Yearly:
		return Yearly, true
	}
	return "", false
}

// Expand produces count occurrence times starting at base. One-time rules
// always yield exactly base.
func Expand(base time.Time, r Recurrence, count int) []time.Time {
	if r == OneTime || count < 1 {
		count = 1
	}
	switch r {
	case Weekly:
		return expandWeekly(base, 1, count)
	case Biweekly:
		return expandWeekly(base, 2, count)
	case Monthly:
		out := make([]time.Time, 0, count)
		for i := 0; i < count; i++ {
			out = append(out, AddMonths(base, i))
		}
		return out
	case Yearly:
		out := make([]time.Time, 0, count)
		for i := 0; i < count; i++ {
			out = append(out, AddYears(base, i))
		}
		return out
	default:
		return []time.Time{base}
	}
}

// Monthly and yearly steps are not delegated to rrule: RFC 5545 skips dates
// that do not exist in the target month, while planner entries clamp to the
// last day instead.
func expandWeekly(base time.Time, interval, count int) []time.Time {
	r, err := rrule.NewRRule(rrule.ROption{
		Freq:     rrule.WEEKLY,
		Interval: interval,
		Count:    count,
		Dtstart:  base,
	})
	if err == nil {
		if all := r.All(); len(all) == count {
			return all
		}
	}
	out := make([]time.Time, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, base.AddDate(0, 0, 7*interval*i))
	}
	return out
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// AddMonths moves t by n calendar months, clamping the day to the target
// month's length (Jan 31 + 1 → Feb 28/29).
func AddMonths(t time.Time, n int) time.Time {
	m := int(t.Month()) - 1 + n
	y := t.Year() + m/12
	m = m % 12
	if m < 0 {
		m += 12
		y--
	}
	month := time.Month(m + 1)
	day := t.Day()
	if last := DaysIn(y, month); day > last {
		day = last
	}
	return time.Date(y, month, day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// AddYears moves t by n calendar years; Feb 29 becomes Feb 28 on non-leap
// target years.
func AddYears(t time.Time, n int) time.Time {
	y := t.Year() + n
	day := t.Day()
	if t.Month() == time.February && day == 29 && DaysIn(y, time.February) == 28 {
		day = 28
	}
	return time.Date(y, t.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// Extension is a one-off shift applied by the extend flow.
type Extension string

const (
	ExtendWeek     Extension = "Weekly"
	ExtendTwoWeeks Extension = "Biweekly"
	ExtendMonth    Extension = "Monthly"
	ExtendYear     Extension = "Annually"
)

// ExtensionLabels are the extend flow's button labels, in order.
var ExtensionLabels = []string{string(ExtendWeek), string(ExtendTwoWeeks), string(ExtendMonth), string(ExtendYear)}

// ParseExtension maps a button label to an Extension.
func ParseExtension(label string) (Extension, bool) {
	switch Extension(strings.TrimSpace(label)) {
	case ExtendWeek:
		return ExtendWeek, true
	case ExtendTwoWeeks:
		return ExtendTwoWeeks, true
	case ExtendMonth:
		return ExtendMonth, true
	case ExtendYear:
		return ExtendYear, true
	}
	return "", false
}

// Apply shifts t by the extension.
func (e Extension) Apply(t time.Time) time.Time {
	switch e {
	case ExtendWeek:
		return t.AddDate(0, 0, 7)
	case ExtendTwoWeeks:
		return t.AddDate(0, 0, 14)
	case ExtendMonth:
		return AddMonths(t, 1)
	case ExtendYear:
		return AddYears(t, 1)
	}
	return t
}

// Reschedule replaces the time field of a line, keeping the rest verbatim.
func Reschedule(line string, at time.Time) string {
	line = strings.TrimSpace(line)
	if i := strings.IndexAny(line, " \t"); i >= 0 {
		return at.Format(TimeLayout) + " " + strings.TrimSpace(line[i+1:])
	}
	return at.Format(TimeLayout)
}
