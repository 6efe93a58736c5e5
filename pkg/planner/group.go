package planner

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

// weekday markers indexed by ISO weekday (Monday = 1)
var weekdayMarks = [...]string{"", "1️⃣", "2️⃣", "3️⃣", "4️⃣", "5️⃣", "6️⃣", "7️⃣"}

// OverdueMark prefixes listing blocks for days before today.
const OverdueMark = "⏳ "

// WeekdayMark returns the marker for the day's ISO weekday.
func WeekdayMark(day time.Time) string {
	wd := int(day.Weekday())
	if wd == 0 {
		wd = 7
	}
	return weekdayMarks[wd]
}

// SameDay reports whether a and b fall on the same calendar date.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// DayStart truncates t to midnight in its own location.
func DayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DayBlock is every listed line falling on one calendar day.
type DayBlock struct {
	Day   time.Time
	Lines []NumberedLine
}

// NumberedLine keeps a line together with its 1-based position in the file.
type NumberedLine struct {
	Position int
	Line     string
}

// GroupByDay buckets lines by the date of their leading time, ascending.
// Lines without a time literal are left out of the listing.
func GroupByDay(lines []string) []DayBlock {
	return groupByDay(lines, nil)
}

func groupByDay(lines []string, keep func(string) bool) []DayBlock {
	type item struct {
		at  time.Time
		pos int
		raw string
	}
	items := make([]item, 0, len(lines))
	for i, l := range lines {
		if keep != nil && !keep(l) {
			continue
		}
		at, err := LeadingTime(l)
		if err != nil {
			continue
		}
		items = append(items, item{at: at, pos: i + 1, raw: l})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].at.Before(items[j].at) })

	var blocks []DayBlock
	for _, it := range items {
		day := DayStart(it.at)
		if n := len(blocks); n > 0 && blocks[n-1].Day.Equal(day) {
			blocks[n-1].Lines = append(blocks[n-1].Lines, NumberedLine{Position: it.pos, Line: it.raw})
			continue
		}
		blocks = append(blocks, DayBlock{Day: day, Lines: []NumberedLine{{Position: it.pos, Line: it.raw}}})
	}
	return blocks
}

// Render formats a block as "<overdue><weekday> <date>" followed by one
// numbered line per event.
func (b DayBlock) Render(today time.Time) string {
	var sb strings.Builder
	if b.Day.Before(DayStart(today)) {
		sb.WriteString(OverdueMark)
	}
	fmt.Fprintf(&sb, "%s %s", WeekdayMark(b.Day), b.Day.Format(DateLayout))
	for _, l := range b.Lines {
		fmt.Fprintf(&sb, "\n%d. %s", l.Position, l.Line)
	}
	return sb.String()
}

// DayMessages renders every day block of lines, one message per day.
func DayMessages(lines []string, today time.Time) []string {
	return renderBlocks(GroupByDay(lines), today)
}

// DayMessagesMatching is DayMessages restricted to lines accepted by keep;
// positions still refer to the full file.
func DayMessagesMatching(lines []string, today time.Time, keep func(string) bool) []string {
	return renderBlocks(groupByDay(lines, keep), today)
}

func renderBlocks(blocks []DayBlock, today time.Time) []string {
	out := make([]string, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, b.Render(today))
	}
	return out
}

// LinesOn returns the lines whose time falls on day, in file order.
func LinesOn(lines []string, day time.Time) []string {
	var out []string
	for _, l := range lines {
		at, err := LeadingTime(l)
		if err != nil {
			continue
		}
		if SameDay(at, day) {
			out = append(out, l)
		}
	}
	return out
}

// SearchMatch is a description-search hit.
type SearchMatch struct {
	Position int
	Event    Event
}

// SearchDescriptions finds events whose description contains query. Time,
// hashtag and id tokens are never matched.
func SearchDescriptions(lines []string, query string) []SearchMatch {
	var out []SearchMatch
	if query == "" {
		return out
	}
	for i, l := range lines {
		ev, err := ParseLine(l)
		if err != nil {
			continue
		}
		if strings.Contains(hashtagRe.ReplaceAllString(ev.Description, ""), query) {
			out = append(out, SearchMatch{Position: i + 1, Event: ev})
		}
	}
	return out
}

// TagMatcher returns a case-insensitive substring matcher for tag.
func TagMatcher(tag string) func(line string) bool {
	needle := strings.ToLower(tag)
	return func(line string) bool {
		return strings.Contains(strings.ToLower(line), needle)
	}
}

// FilterByTag keeps lines that contain tag case-insensitively; a missing
// leading '#' is added first.
func FilterByTag(lines []string, tag string) (string, []string) {
	tag = NormalizeTag(tag)
	match := TagMatcher(tag)
	var out []string
	for _, l := range lines {
		if match(l) {
			out = append(out, l)
		}
	}
	return tag, out
}

// NormalizeTag trims the tag and makes sure it starts with '#'.
func NormalizeTag(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return tag
	}
	if !strings.HasPrefix(tag, "#") {
		tag = "#" + tag
	}
	return tag
}
