// Package planner holds the per-user event log: the line codec, the line
// stores for planned and completed events, recurrence arithmetic, listing
// pages, the photo reference log and calendar export.
package planner

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// TimeLayout is the canonical encoding of an event's time field.
const TimeLayout = "2006-01-02T15:04:05"

// UnknownMarker stands in for a duration or place the user did not know.
const UnknownMarker = "?"

// EventIDPrefix starts every event id token.
const EventIDPrefix = "uid"

var (
	ErrUnparseable    = errors.New("line does not start with a time literal")
	ErrMissingEventID = errors.New("duration and place need an event id")
)

var (
	hashtagRe = regexp.MustCompile(`#[\p{L}\p{N}_]+`)
	tokenRe   = regexp.MustCompile(`\S+`)
)

// accepted layouts for the leading token, most specific first
var timeLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	TimeLayout,
	"2006-01-02T15:04",
	"2006-01-02T15",
	"2006-01-02",
}

// Event is one planned (or completed) occurrence.
//
// Duration and Place are positional and only recognised after the event id
// token; on legacy lines without an id they remain part of Description.
type Event struct {
	At          time.Time
	Description string
	Hashtag     string
	EventID     string
	Duration    string
	Place       string

	// Raw is the line the event was parsed from, empty for new events.
	Raw string
}

// ParseTime parses the leading time literal of a line.
func ParseTime(token string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, token, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrUnparseable, token)
}

// LeadingTime returns the time of a raw line without decoding the rest.
func LeadingTime(line string) (time.Time, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return time.Time{}, ErrUnparseable
	}
	return ParseTime(fields[0])
}

// ExtractHashtag returns the first #word anywhere in text.
func ExtractHashtag(text string) string {
	return hashtagRe.FindString(text)
}

// IsEventIDToken reports whether a whitespace-delimited token is an event id.
func IsEventIDToken(token string) bool {
	return strings.HasPrefix(token, EventIDPrefix)
}

// FormatEventID renders the id for a counter value.
func FormatEventID(seq int) string {
	return fmt.Sprintf("%s%d", EventIDPrefix, seq)
}

// ParseLine decodes one stored line. Callers treat ErrUnparseable as "skip".
// Description and place keep their inner spacing exactly as stored.
func ParseLine(line string) (Event, error) {
	line = strings.TrimSpace(line)
	spans := tokenRe.FindAllStringIndex(line, -1)
	if len(spans) == 0 {
		return Event{}, ErrUnparseable
	}
	at, err := ParseTime(line[spans[0][0]:spans[0][1]])
	if err != nil {
		return Event{}, err
	}

	ev := Event{
		At:      at,
		Hashtag: ExtractHashtag(line),
		Raw:     line,
	}
	token := func(i int) string { return line[spans[i][0]:spans[i][1]] }
	// text returns the original substring covering tokens [from, to).
	text := func(from, to int) string {
		if from >= to {
			return ""
		}
		return line[spans[from][0]:spans[to-1][1]]
	}

	descEnd := len(spans)
	for i := 1; i < len(spans); i++ {
		if IsEventIDToken(token(i)) {
			ev.EventID = token(i)
			descEnd = i
			if i+1 < len(spans) {
				ev.Duration = token(i + 1)
			}
			ev.Place = text(i+2, len(spans))
			break
		}
	}

	// the hashtag slot sits right before the id; peel it off the description
	if descEnd > 1 && ev.Hashtag != "" && token(descEnd-1) == ev.Hashtag {
		descEnd--
	}
	ev.Description = text(1, descEnd)

	return ev, nil
}

// Line encodes the event: time, description, hashtag, id, duration, place.
// Duration and place are positional after the id, so an event without an id
// cannot carry them: Line then returns ErrMissingEventID along with the
// encoding of the remaining fields.
func (e Event) Line() (string, error) {
	parts := []string{e.At.Format(TimeLayout)}
	if d := strings.TrimSpace(e.Description); d != "" {
		parts = append(parts, d)
	}
	if e.Hashtag != "" && !containsToken(e.Description+" "+e.Place, e.Hashtag) {
		parts = append(parts, e.Hashtag)
	}
	if e.EventID == "" {
		line := strings.Join(parts, " ")
		if e.Duration != "" || e.Place != "" {
			return line, fmt.Errorf("%w: %s", ErrMissingEventID, line)
		}
		return line, nil
	}
	parts = append(parts, e.EventID)
	if e.Duration != "" {
		parts = append(parts, e.Duration)
	}
	if e.Place != "" {
		parts = append(parts, e.Place)
	}
	return strings.Join(parts, " "), nil
}

// Text is the line as it should be shown to a user.
func (e Event) Text() string {
	if e.Raw != "" {
		return e.Raw
	}
	line, _ := e.Line()
	return line
}

// HasEventID reports whether id appears as a whole token of the line.
func HasEventID(line, id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	return containsToken(line, id)
}

func containsToken(text, token string) bool {
	for _, f := range strings.Fields(text) {
		if f == token {
			return true
		}
	}
	return false
}
