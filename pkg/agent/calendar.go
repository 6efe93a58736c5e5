package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/dotsetgreg/planbot/pkg/planner"
)

func todayLine(now time.Time) string {
	return fmt.Sprintf("Today: %s (%s)", now.Format(planner.DateLayout), now.Weekday())
}

// twoMonthCalendar renders the current and the next month as Monday-first
// week rows, today in brackets.
func twoMonthCalendar(now time.Time) string {
	y, m, _ := now.Date()
	next := time.Date(y, m+1, 1, 0, 0, 0, 0, now.Location())

	var b strings.Builder
	renderMonth(&b, y, m, now)
	b.WriteString("\n\n")
	renderMonth(&b, next.Year(), next.Month(), now)
	return b.String()
}

func renderMonth(b *strings.Builder, year int, month time.Month, today time.Time) {
	fmt.Fprintf(b, "📆 %s %d", month, year)

	first := time.Date(year, month, 1, 0, 0, 0, 0, today.Location())
	lead := (int(first.Weekday()) + 6) % 7
	days := planner.DaysIn(year, month)

	cells := make([]string, 0, 42)
	for i := 0; i < lead; i++ {
		cells = append(cells, "  ")
	}
	for d := 1; d <= days; d++ {
		if today.Year() == year && today.Month() == month && today.Day() == d {
			cells = append(cells, fmt.Sprintf("[%02d]", d))
			continue
		}
		cells = append(cells, fmt.Sprintf("%02d", d))
	}
	for len(cells)%7 != 0 {
		cells = append(cells, "  ")
	}

	b.WriteString("\nMo Tu We Th Fr Sa Su")
	for w := 0; w < len(cells); w += 7 {
		b.WriteString("\n" + strings.Join(cells[w:w+7], " "))
	}
}

// daysPerMonth lists the length of every month of year; ✔ marks the current
// month and 🎯 the one the user picked.
func daysPerMonth(year, selected int, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📅 Days per month for %d:", year)
	for m := 1; m <= 12; m++ {
		fmt.Fprintf(&b, "\n%02d: %d days", m, planner.DaysIn(year, time.Month(m)))
		if year == now.Year() && m == int(now.Month()) {
			b.WriteString(" ✔")
		}
		if m == selected {
			b.WriteString(" 🎯")
		}
	}
	return b.String()
}
