package planner

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
)

const defaultExportDuration = time.Hour

// ExportICS renders the user's parseable events as an iCalendar document.
// Events that share an id (recurrence siblings) get distinct UIDs by
// suffixing their start time.
func ExportICS(user string, events []Event, now time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//planbot//planner export//EN")
	cal.SetXWRCalName("planbot " + user)

	for i, ev := range events {
		base := ev.EventID
		if base == "" {
			base = fmt.Sprintf("line%d", i+1)
		}
		uid := fmt.Sprintf("%s-%s-%s@planbot", user, base, ev.At.Format("20060102T150405"))

		vev := cal.AddEvent(uid)
		vev.SetDtStampTime(now)
		vev.SetStartAt(ev.At)
		vev.SetEndAt(ev.At.Add(exportDuration(ev.Duration)))

		summary := strings.TrimSpace(ev.Description)
		if summary == "" {
			summary = "(no description)"
		}
		vev.SetSummary(summary)
		if ev.Place != "" && ev.Place != UnknownMarker {
			vev.SetLocation(ev.Place)
		}
		if ev.Hashtag != "" {
			vev.AddProperty(ical.ComponentPropertyCategories, strings.TrimPrefix(ev.Hashtag, "#"))
		}
		vev.SetDescription(ev.Text())
	}
	return cal.Serialize()
}

func exportDuration(minutes string) time.Duration {
	n, err := strconv.Atoi(strings.TrimSpace(minutes))
	if err != nil || n <= 0 {
		return defaultExportDuration
	}
	return time.Duration(n) * time.Minute
}
