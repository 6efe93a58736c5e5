package planner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpand_Weekly(t *testing.T) {
	got := Expand(at(2025, 1, 6, 10, 0), Weekly, 3)
	want := []time.Time{at(2025, 1, 6, 10, 0), at(2025, 1, 13, 10, 0), at(2025, 1, 20, 10, 0)}

	require.Len(t, got, len(want))
	for i := range want {
		assert.True(t, want[i].Equal(got[i]), "occurrence %d: got %s", i, got[i])
	}
}

func TestExpand_Biweekly(t *testing.T) {
	got := Expand(at(2025, 1, 6, 10, 0), Biweekly, 2)
	require.Len(t, got, 2)
	assert.True(t, got[1].Equal(at(2025, 1, 20, 10, 0)))
}

func TestExpand_MonthlyClampsToMonthEnd(t *testing.T) {
	got := Expand(at(2025, 1, 31, 9, 0), Monthly, 3)
	require.Len(t, got, 3)
	assert.True(t, got[0].Equal(at(2025, 1, 31, 9, 0)))
	assert.True(t, got[1].Equal(at(2025, 2, 28, 9, 0)))
	assert.True(t, got[2].Equal(at(2025, 3, 31, 9, 0)))

	leap := Expand(at(2024, 1, 31, 9, 0), Monthly, 2)
	assert.True(t, leap[1].Equal(at(2024, 2, 29, 9, 0)))
}

func TestExpand_YearlyFromLeapDay(t *testing.T) {
	got := Expand(at(2024, 2, 29, 8, 0), Yearly, 5)
	require.Len(t, got, 5)
	assert.True(t, got[1].Equal(at(2025, 2, 28, 8, 0)))
	assert.True(t, got[4].Equal(at(2028, 2, 29, 8, 0)))
}

func TestExpand_CountMatches(t *testing.T) {
	base := at(2025, 5, 15, 12, 0)
	for _, r := range []Recurrence{Weekly, Biweekly, Monthly, Yearly} {
		for _, n := range []int{1, 2, 7, 12} {
			assert.Len(t, Expand(base, r, n), n, "%s x%d", r, n)
		}
	}
	assert.Len(t, Expand(base, OneTime, 9), 1)
}

func TestAddMonths_AcrossYear(t *testing.T) {
	assert.True(t, AddMonths(at(2025, 11, 30, 0, 0), 3).Equal(at(2026, 2, 28, 0, 0)))
	assert.True(t, AddMonths(at(2025, 3, 31, 0, 0), -1).Equal(at(2025, 2, 28, 0, 0)))
}

func TestParseRecurrence(t *testing.T) {
	r, ok := ParseRecurrence("Biweekly")
	assert.True(t, ok)
	assert.Equal(t, Biweekly, r)

	r, ok = ParseRecurrence("One-time")
	assert.True(t, ok)
	assert.Equal(t, OneTime, r)

	_, ok = ParseRecurrence("daily")
	assert.False(t, ok)
}

func TestExtensionApply(t *testing.T) {
	base := at(2025, 1, 31, 9, 0)
	assert.True(t, ExtendWeek.Apply(base).Equal(at(2025, 2, 7, 9, 0)))
	assert.True(t, ExtendTwoWeeks.Apply(base).Equal(at(2025, 2, 14, 9, 0)))
	assert.True(t, ExtendMonth.Apply(base).Equal(at(2025, 2, 28, 9, 0)))
	assert.True(t, ExtendYear.Apply(base).Equal(at(2026, 1, 31, 9, 0)))

	_, ok := ParseExtension("Daily")
	assert.False(t, ok)
}

func TestReschedule(t *testing.T) {
	line := "2025-01-06T10:00:00 Standup #work uid7 15 Room 2"
	got := Reschedule(line, at(2025, 1, 13, 10, 0))
	assert.Equal(t, "2025-01-13T10:00:00 Standup #work uid7 15 Room 2", got)
}
