package session

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotsetgreg/planbot/pkg/planner"
)

func TestStore_GetOrCreatePersists(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	require.NoError(t, err)

	sess, err := s.GetOrCreate("42")
	require.NoError(t, err)
	assert.Equal(t, Idle, sess.State)
	assert.Equal(t, 1, sess.NextEventSeq)

	raw, err := os.ReadFile(filepath.Join(dir, FileName))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"next_uid": 1`)
	assert.Contains(t, string(raw), `"state": "start"`)
}

func TestStore_NextEventIDMonotonicAcrossReload(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	require.NoError(t, err)

	id1, err := s.NextEventID("u")
	require.NoError(t, err)
	id2, err := s.NextEventID("u")
	require.NoError(t, err)
	assert.Equal(t, "uid1", id1)
	assert.Equal(t, "uid2", id2)

	reloaded, err := NewStore(dir)
	require.NoError(t, err)
	id3, err := reloaded.NextEventID("u")
	require.NoError(t, err)
	assert.Equal(t, "uid3", id3)

	other, err := reloaded.NextEventID("v")
	require.NoError(t, err)
	assert.Equal(t, "uid1", other)
}

func TestStore_ScratchLifecycle(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	require.NoError(t, err)

	require.NoError(t, s.Update("u", func(sess *Session) {
		sess.State = CreateMonth
		sess.Data.Year = 2025
		sess.Data.Recurrence = planner.Weekly
	}))

	reloaded, err := NewStore(dir)
	require.NoError(t, err)
	sess, err := reloaded.GetOrCreate("u")
	require.NoError(t, err)
	assert.Equal(t, CreateMonth, sess.State)
	assert.Equal(t, 2025, sess.Data.Year)
	assert.Equal(t, planner.Weekly, sess.Data.Recurrence)

	require.NoError(t, reloaded.ClearData("u"))
	data, err := reloaded.GetData("u")
	require.NoError(t, err)
	assert.Equal(t, Scratch{}, data)
	sess, _ = reloaded.GetOrCreate("u")
	assert.Equal(t, CreateMonth, sess.State)

	require.NoError(t, reloaded.SetData("u", Scratch{Pages: []string{"a"}, Offset: 1}))
	require.NoError(t, reloaded.SetState("u", ListView))
	sess, _ = reloaded.GetOrCreate("u")
	assert.Equal(t, ListView, sess.State)
	assert.Equal(t, []string{"a"}, sess.Data.Pages)
}

func TestStore_GetOrCreateReturnsCopy(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.SetData("u", Scratch{Pages: []string{"a", "b"}}))

	sess, _ := s.GetOrCreate("u")
	sess.Data.Pages[0] = "mutated"

	again, _ := s.GetOrCreate("u")
	assert.Equal(t, "a", again.Data.Pages[0])
}

func TestStore_CorruptFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("{not json"), 0o600))

	s, err := NewStore(dir)
	require.NoError(t, err)
	assert.Empty(t, s.Users())
}

func TestStore_ConcurrentIDsAreUnique(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	var wg sync.WaitGroup
	ids := make(chan string, 40)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := s.NextEventID("u")
			if err == nil {
				ids <- id
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		assert.True(t, strings.HasPrefix(id, "uid"))
		assert.False(t, seen[id], "duplicate %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, 40)
}

func TestStore_Users(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	_, _ = s.GetOrCreate("b")
	_, _ = s.GetOrCreate("a")
	assert.Equal(t, []string{"a", "b"}, s.Users())
}

func TestStateValid(t *testing.T) {
	assert.True(t, Idle.Valid())
	assert.True(t, CreatePlace.Valid())
	assert.False(t, State("bogus").Valid())
}
