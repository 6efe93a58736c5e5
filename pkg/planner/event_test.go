package planner

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.Local)
}

func TestParseLine_FullLine(t *testing.T) {
	ev, err := ParseLine("2025-03-01T09:00:00 Dentist #pers uid1 30 Clinic")
	require.NoError(t, err)

	assert.True(t, ev.At.Equal(at(2025, 3, 1, 9, 0)))
	assert.Equal(t, "Dentist", ev.Description)
	assert.Equal(t, "#pers", ev.Hashtag)
	assert.Equal(t, "uid1", ev.EventID)
	assert.Equal(t, "30", ev.Duration)
	assert.Equal(t, "Clinic", ev.Place)
}

func TestParseLine_LegacyLineWithoutID(t *testing.T) {
	ev, err := ParseLine("2025-03-01T09:00 buy milk #home")
	require.NoError(t, err)

	assert.Equal(t, "buy milk", ev.Description)
	assert.Equal(t, "#home", ev.Hashtag)
	assert.Empty(t, ev.EventID)
	assert.Empty(t, ev.Duration)
}

func TestParseLine_HashtagInsideDescription(t *testing.T) {
	ev, err := ParseLine("2025-03-01T09:00:00 call #work about budget uid4 ? ?")
	require.NoError(t, err)

	assert.Equal(t, "call #work about budget", ev.Description)
	assert.Equal(t, "#work", ev.Hashtag)
	line, err := ev.Line()
	require.NoError(t, err)
	assert.Equal(t, "2025-03-01T09:00:00 call #work about budget uid4 ? ?", line)
}

func TestParseLine_KeepsInnerSpacing(t *testing.T) {
	raw := "2025-03-01T09:00:00 Dentist  visit #pers uid5 30 City   Clinic"
	ev, err := ParseLine(raw)
	require.NoError(t, err)

	assert.Equal(t, "Dentist  visit", ev.Description)
	assert.Equal(t, "City   Clinic", ev.Place)
	assert.Equal(t, "30", ev.Duration)

	ev.Raw = ""
	line, err := ev.Line()
	require.NoError(t, err)
	assert.Equal(t, raw, line)
}

func TestParseLine_Unparseable(t *testing.T) {
	for _, line := range []string{"", "   ", "tomorrow dentist", "2025-13-01T09:00 nope"} {
		_, err := ParseLine(line)
		assert.True(t, errors.Is(err, ErrUnparseable), "line %q", line)
	}
}

func TestParseLine_DateOnly(t *testing.T) {
	ev, err := ParseLine("2025-03-01 note")
	require.NoError(t, err)
	assert.True(t, ev.At.Equal(at(2025, 3, 1, 0, 0)))
}

func TestEventRoundTrip(t *testing.T) {
	base := at(2025, 3, 1, 9, 0)
	cases := []Event{
		{At: base, Description: "Dentist", Hashtag: "#pers", EventID: "uid1", Duration: "30", Place: "Clinic"},
		{At: base, Description: "Dentist", EventID: "uid1", Duration: "30", Place: "City Clinic"},
		{At: base, Description: "Dentist", Hashtag: "#pers", EventID: "uid2", Duration: "?", Place: "?"},
		{At: base, Description: "Dentist", Hashtag: "#pers"},
		{At: base, Description: "Dentist"},
		{At: base, Description: "two words", EventID: "uid9"},
		{At: base, Description: "Dentist  visit", EventID: "uid4", Duration: "30", Place: "City  Clinic"},
		{At: base, Hashtag: "#pers", EventID: "uid3", Duration: "60", Place: "Home"},
	}

	for _, want := range cases {
		line, err := want.Line()
		require.NoError(t, err)
		got, err := ParseLine(line)
		require.NoError(t, err, line)

		got.Raw = ""
		assert.True(t, want.At.Equal(got.At), line)
		got.At = want.At
		assert.Equal(t, want, got, line)
	}
}

func TestEventLine_FieldOrder(t *testing.T) {
	ev := Event{At: at(2025, 1, 6, 10, 0), Description: "Standup", Hashtag: "#work", EventID: "uid7", Duration: "15", Place: "Room 2"}
	line, err := ev.Line()
	require.NoError(t, err)
	assert.Equal(t, "2025-01-06T10:00:00 Standup #work uid7 15 Room 2", line)
}

func TestEventLine_TailWithoutIDIsRejected(t *testing.T) {
	for _, ev := range []Event{
		{At: at(2025, 3, 1, 9, 0), Description: "Dentist", Duration: "30", Place: "Clinic"},
		{At: at(2025, 3, 1, 9, 0), Description: "Dentist", Place: "Clinic"},
		{At: at(2025, 3, 1, 9, 0), Description: "Dentist", Duration: "30"},
	} {
		line, err := ev.Line()
		assert.ErrorIs(t, err, ErrMissingEventID)
		assert.Equal(t, "2025-03-01T09:00:00 Dentist", line)
	}
}

func TestHasEventID(t *testing.T) {
	line := "2025-01-06T10:00:00 Standup #work uid12 15 Room"
	assert.True(t, HasEventID(line, "uid12"))
	assert.False(t, HasEventID(line, "uid1"))
	assert.False(t, HasEventID(line, ""))
}

func TestExtractHashtag(t *testing.T) {
	assert.Equal(t, "#event", ExtractHashtag("x #event and #pers"))
	assert.Equal(t, "", ExtractHashtag("no tags here"))
	assert.Equal(t, "#день", ExtractHashtag("праздник #день"))
}
