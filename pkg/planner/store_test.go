package planner

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineStore_ReadMissingFileIsEmpty(t *testing.T) {
	s := NewEventStore(t.TempDir())
	lines, err := s.ReadAll("42")
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestLineStore_AppendWriteRead(t *testing.T) {
	dir := t.TempDir()
	s := NewEventStore(dir)

	require.NoError(t, s.Append("42", "2025-01-02T10:00:00 b", "  ", "2025-01-01T10:00:00 a"))
	lines, err := s.ReadAll("42")
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-01-02T10:00:00 b", "2025-01-01T10:00:00 a"}, lines)

	require.NoError(t, s.WriteAll("42", []string{"x"}))
	lines, err = s.ReadAll("42")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, lines)

	_, err = os.Stat(filepath.Join(dir, "planners", "42plan.txt"))
	assert.NoError(t, err)
}

func TestLineStore_SortKeepsUnparseableLines(t *testing.T) {
	s := NewEventStore(t.TempDir())
	require.NoError(t, s.WriteAll("u", []string{
		"2025-01-03T10:00:00 c",
		"free text note",
		"2025-01-01T10:00:00 a",
		"2025-01-02T10:00:00 b",
	}))

	require.NoError(t, s.Sort("u"))
	lines, err := s.ReadAll("u")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"2025-01-01T10:00:00 a",
		"2025-01-02T10:00:00 b",
		"2025-01-03T10:00:00 c",
		"free text note",
	}, lines)
}

func TestLineStore_SortIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	s := NewEventStore(dir)
	sorted := []string{
		"2025-01-01T10:00:00 a #pers uid1 ? ?",
		"2025-01-01T10:00:00 same time keeps order uid2 ? ?",
		"2025-01-02T08:30:00 b",
	}
	require.NoError(t, s.WriteAll("u", sorted))
	before, err := os.ReadFile(filepath.Join(dir, "planners", "uplan.txt"))
	require.NoError(t, err)

	require.NoError(t, s.Sort("u"))
	require.NoError(t, s.Sort("u"))

	after, err := os.ReadFile(filepath.Join(dir, "planners", "uplan.txt"))
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestLineStore_RemoveIndicesBatch(t *testing.T) {
	s := NewEventStore(t.TempDir())
	require.NoError(t, s.WriteAll("u", []string{"l1", "l2", "l3", "l4", "l5", "l6"}))

	removed, err := s.RemoveIndices("u", []int{1, 3, 5})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"l1", "l3", "l5"}, removed)

	lines, err := s.ReadAll("u")
	require.NoError(t, err)
	assert.Equal(t, []string{"l2", "l4", "l6"}, lines)
}

func TestLineStore_RemoveOutOfRange(t *testing.T) {
	s := NewEventStore(t.TempDir())
	require.NoError(t, s.WriteAll("u", []string{"l1"}))

	_, err := s.Remove("u", 3)
	assert.True(t, errors.Is(err, ErrIndexOutOfRange))

	err = s.Replace("u", -1, "x")
	assert.True(t, errors.Is(err, ErrIndexOutOfRange))

	lines, _ := s.ReadAll("u")
	assert.Equal(t, []string{"l1"}, lines)
}

func TestLineStore_MoveToCompleted(t *testing.T) {
	dir := t.TempDir()
	events := NewEventStore(dir)
	done := NewCompletedStore(dir)
	require.NoError(t, events.WriteAll("u", []string{"2025-01-01T10:00:00 a", "2025-01-02T10:00:00 b"}))

	moved, err := events.Move("u", 1, done)
	require.NoError(t, err)
	assert.Equal(t, "2025-01-02T10:00:00 b", moved)

	left, _ := events.ReadAll("u")
	assert.Equal(t, []string{"2025-01-01T10:00:00 a"}, left)
	completed, _ := done.ReadAll("u")
	assert.Equal(t, []string{"2025-01-02T10:00:00 b"}, completed)
}

func TestLineStore_RemoveMatching(t *testing.T) {
	s := NewEventStore(t.TempDir())
	require.NoError(t, s.WriteAll("u", []string{
		"2025-01-01T10:00:00 a #pers uid1 ? ?",
		"2025-01-02T10:00:00 b #work uid12 ? ?",
		"2025-01-03T10:00:00 c #pers uid1 ? ?",
	}))

	n, err := s.RemoveMatching("u", func(l string) bool { return HasEventID(l, "uid1") })
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	lines, _ := s.ReadAll("u")
	assert.Equal(t, []string{"2025-01-02T10:00:00 b #work uid12 ? ?"}, lines)
}

func TestLineStore_EventsSkipsUnparseable(t *testing.T) {
	s := NewEventStore(t.TempDir())
	require.NoError(t, s.WriteAll("u", []string{"note", "2025-01-02T10:00:00 b"}))

	events, idx, err := s.Events("u")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, []int{1}, idx)
	assert.Equal(t, "b", events[0].Description)
}

func TestSafeUserFileName(t *testing.T) {
	dir := t.TempDir()
	s := NewEventStore(dir)
	require.NoError(t, s.Append("../evil", "x"))

	_, err := os.Stat(filepath.Join(dir, "planners", "__evilplan.txt"))
	assert.NoError(t, err)
}
