package agent

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dotsetgreg/planbot/pkg/planner"
	"github.com/dotsetgreg/planbot/pkg/session"
)

// maxOccurrences bounds a single recurrence expansion.
const maxOccurrences = 1000

// numberIn parses text as a plain decimal integer within [lo, hi].
func numberIn(text string, lo, hi int) (int, bool) {
	if text == "" || strings.TrimLeft(text, "0123456789") != "" {
		return 0, false
	}
	n, err := strconv.Atoi(text)
	if err != nil || n < lo || n > hi {
		return 0, false
	}
	return n, true
}

func (al *AgentLoop) handleCreate(t *turn) error {
	switch t.state {
	case session.CreateYear:
		if len(t.text) != 4 {
			t.say("Invalid year. Enter YYYY:", yearMenu(t.now))
			return nil
		}
		year, ok := numberIn(t.text, 1, 9999)
		if !ok {
			t.say("Invalid year. Enter YYYY:", yearMenu(t.now))
			return nil
		}
		t.data.Year = year
		t.advance(session.CreateMonth)
		t.say("Enter month (1-12):", monthMenu(t.now))

	case session.CreateMonth:
		month, ok := numberIn(t.text, 1, 12)
		if !ok {
			t.say("Invalid month. Enter 1-12:", monthMenu(t.now))
			return nil
		}
		t.data.Month = month
		t.advance(session.CreateDay)
		t.say(daysPerMonth(t.data.Year, month, t.now), nil)
		t.say("Enter day:", dayMenu(t.now))

	case session.CreateDay:
		day, ok := numberIn(t.text, 1, 31)
		if !ok {
			t.say("Invalid day. Enter 1-31:", dayMenu(t.now))
			return nil
		}
		t.data.Day = day
		t.advance(session.CreateHour)
		t.say("Enter hour (0-23):", hourMenu())

	case session.CreateHour:
		hour, ok := numberIn(t.text, 0, 23)
		if !ok {
			t.say("Invalid hour. Enter 0-23:", hourMenu())
			return nil
		}
		t.data.Hour = hour
		t.advance(session.CreateMinute)
		t.say("Enter minute (0-59):", minuteMenu())

	case session.CreateMinute:
		minute, ok := numberIn(t.text, 0, 59)
		if !ok {
			t.say("Invalid minute. Enter 0-59:", minuteMenu())
			return nil
		}
		t.data.Minute = minute
		t.advance(session.CreateDesc)
		t.say("Send description:", nil)

	case session.CreateDesc:
		if msg := descriptionProblem(t.text); msg != "" {
			t.say(msg+" Send description:", nil)
			return nil
		}
		t.data.Desc = t.text
		t.advance(session.CreateHashtag)
		t.say("Enter hashtag:", hashtagMenu(al.markers))

	case session.CreateHashtag:
		tag := planner.NormalizeTag(t.text)
		if tag == "" || planner.ExtractHashtag(tag) != tag {
			t.say("Invalid hashtag. Enter a single #word:", hashtagMenu(al.markers))
			return nil
		}
		t.data.Hashtag = tag
		t.advance(session.CreateRecurrence)
		t.say("Select recurrence:", recurrenceMenu())

	case session.CreateRecurrence:
		rec, ok := planner.ParseRecurrence(t.text)
		if !ok {
			t.say("Select recurrence:", recurrenceMenu())
			return nil
		}
		t.data.Recurrence = rec
		if rec == planner.OneTime {
			t.data.Count = 1
			t.advance(session.CreateDuration)
			t.say("Enter duration in minutes (or ? for unknown):", durationMenu())
			return nil
		}
		t.advance(session.CreateCount)
		t.say("Enter number of occurrences:", nil)

	case session.CreateCount:
		count, ok := numberIn(t.text, 1, maxOccurrences)
		if !ok {
			t.say(fmt.Sprintf("Enter valid number of occurrences (1-%d):", maxOccurrences), nil)
			return nil
		}
		t.data.Count = count
		t.advance(session.CreateDuration)
		t.say("Enter duration in minutes (or ? for unknown):", durationMenu())

	case session.CreateDuration:
		if _, ok := numberIn(t.text, 0, 1<<30); !ok && t.text != planner.UnknownMarker {
			t.say("Duration must be a number of minutes or ?:", durationMenu())
			return nil
		}
		t.data.Duration = t.text
		t.advance(session.CreatePlace)
		t.say("Enter place (can be ?):", placeMenu())

	case session.CreatePlace:
		return al.commitEvent(t)
	}
	return nil
}

// descriptionProblem explains why text cannot be stored as a description,
// or returns "" when it can. Hashtags and id-like words would be read back
// as the event's own tag or id.
func descriptionProblem(text string) string {
	if text == "" {
		return "Description cannot be empty."
	}
	if strings.ContainsAny(text, "\r\n") {
		return "Description must fit on one line."
	}
	if planner.ExtractHashtag(text) != "" {
		return "Description cannot contain hashtags; you will be asked for one next."
	}
	for _, f := range strings.Fields(text) {
		if planner.IsEventIDToken(f) {
			return fmt.Sprintf("Description cannot contain words starting with %q.", planner.EventIDPrefix)
		}
	}
	if _, err := planner.ParseTime(strings.Fields(text)[0]); err == nil {
		return "Description cannot start with a date."
	}
	return ""
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// commitEvent expands the collected rule into event lines sharing one fresh
// event id and appends them.
func (al *AgentLoop) commitEvent(t *turn) error {
	d := t.data
	place := strings.TrimSpace(lineBreaks.Replace(t.text))
	if place == "" {
		place = planner.UnknownMarker
	}

	base := time.Date(d.Year, time.Month(d.Month), d.Day, d.Hour, d.Minute, 0, 0, t.now.Location())
	if base.Year() != d.Year || int(base.Month()) != d.Month || base.Day() != d.Day {
		t.toMenu(fmt.Sprintf("❌ %04d-%02d-%02d is not a valid date. Nothing was saved.", d.Year, d.Month, d.Day))
		return nil
	}

	id, err := al.sessions.NextEventID(t.user)
	if err != nil {
		return fmt.Errorf("issue event id: %w", err)
	}

	times := planner.Expand(base, d.Recurrence, d.Count)
	lines := make([]string, 0, len(times))
	for _, at := range times {
		line, err := planner.Event{
			At:          at,
			Description: d.Desc,
			Hashtag:     d.Hashtag,
			EventID:     id,
			Duration:    d.Duration,
			Place:       place,
		}.Line()
		if err != nil {
			return fmt.Errorf("encode event: %w", err)
		}
		lines = append(lines, line)
	}

	if err := al.events.Append(t.user, lines...); err != nil {
		return fmt.Errorf("append events: %w", err)
	}
	if err := al.events.Sort(t.user); err != nil {
		return fmt.Errorf("sort planner: %w", err)
	}
	if al.metrics != nil {
		al.metrics.EventsCreated.Add(float64(len(lines)))
	}

	t.toMenu(fmt.Sprintf("Saved %d events. ID: %s", len(lines), id))
	return nil
}
