package planner

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhotoRefLine(t *testing.T) {
	ref := PhotoRef{Peer: "chan1", Message: "msg9", Description: "passport\nscan"}
	assert.Equal(t, "chan1|msg9||passport scan", ref.Line())

	back, err := ParsePhotoRef(ref.Line())
	require.NoError(t, err)
	assert.Equal(t, "passport scan", back.Description)

	_, err = ParsePhotoRef("no separators")
	assert.Error(t, err)
	assert.Equal(t, "[no description]", PhotoRef{}.Label())
}

func TestPhotoLog(t *testing.T) {
	log := NewPhotoLog(t.TempDir())
	require.NoError(t, log.Add("u", PhotoRef{Peer: "c", Message: "1", Description: "one"}))
	require.NoError(t, log.Add("u", PhotoRef{Peer: "c", Message: "2"}))
	require.NoError(t, log.Add("u", PhotoRef{Peer: "c", Message: "3", Description: "three"}))

	refs, err := log.Refs("u")
	require.NoError(t, err)
	require.Len(t, refs, 3)
	assert.Equal(t, "2", refs[1].Message)

	removed, err := log.RemoveNumbered("u", []int{1, 3, 7})
	require.NoError(t, err)
	require.Len(t, removed, 2)
	assert.Equal(t, "three", removed[0].Description)

	refs, err = log.Refs("u")
	require.NoError(t, err)
	assert.Equal(t, []PhotoRef{{Peer: "c", Message: "2"}}, refs)
}

func TestPhotoLog_NumbersSkipMalformedLines(t *testing.T) {
	dir := t.TempDir()
	raw := NewLineStore(filepath.Join(dir, "user_photos"), "photo.txt")
	require.NoError(t, raw.WriteAll("u", []string{"legacy junk", "c1|m1||receipt", "c1|m2||ticket"}))

	log := NewPhotoLog(dir)
	refs, err := log.Refs("u")
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "receipt", refs[0].Label())

	removed, err := log.RemoveNumbered("u", []int{1})
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, "receipt", removed[0].Description)

	lines, err := raw.ReadAll("u")
	require.NoError(t, err)
	assert.Equal(t, []string{"legacy junk", "c1|m2||ticket"}, lines)
}

func TestExportICS(t *testing.T) {
	events := []Event{
		{At: at(2025, 3, 1, 9, 0), Description: "Dentist", Hashtag: "#pers", EventID: "uid1", Duration: "30", Place: "Clinic"},
		{At: at(2025, 3, 8, 9, 0), Description: "Dentist", Hashtag: "#pers", EventID: "uid1", Duration: "?", Place: "?"},
	}
	out := ExportICS("42", events, at(2025, 2, 1, 0, 0))

	assert.True(t, strings.HasPrefix(out, "BEGIN:VCALENDAR"))
	assert.Equal(t, 2, strings.Count(out, "BEGIN:VEVENT"))
	assert.Contains(t, out, "SUMMARY:Dentist")
	assert.Contains(t, out, "LOCATION:Clinic")
	assert.Contains(t, out, "CATEGORIES:pers")
	assert.Contains(t, out, "42-uid1-20250301T090000@planbot")
	assert.Contains(t, out, "42-uid1-20250308T090000@planbot")
}
