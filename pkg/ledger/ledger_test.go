package ledger

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openBoth(t *testing.T) map[string]func(dir string) Ledger {
	t.Helper()
	return map[string]func(dir string) Ledger{
		BackendJSON: func(dir string) Ledger {
			l, err := NewJSONLedger(dir)
			require.NoError(t, err)
			return l
		},
		BackendSQLite: func(dir string) Ledger {
			l, err := NewSQLiteLedger(dir)
			require.NoError(t, err)
			return l
		},
	}
}

func TestKey(t *testing.T) {
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.Local)
	assert.Equal(t, "42|uid1|2025-03-01T09:00:00", Key("42", "uid1", at, ""))
	assert.Equal(t, "42|uid1|2025-03-01T09:00:00|7d", Key("42", "uid1", at, "7d"))
	assert.Equal(t, "42|-|2025-03-01T09:00:00", Key("42", "", at, ""))

	got, err := OccursAt(Key("42", "uid1", at, "14d"))
	require.NoError(t, err)
	assert.True(t, got.Equal(at))

	_, err = OccursAt("broken")
	assert.Error(t, err)
}

func TestLedger_DedupSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	for name, open := range openBoth(t) {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.Local)
			key := Key("u", "uid1", at, "")

			l := open(dir)
			has, err := l.Has(ctx, key)
			require.NoError(t, err)
			assert.False(t, has)

			require.NoError(t, l.Mark(ctx, key, at, at.Add(-time.Hour)))
			require.NoError(t, l.Mark(ctx, key, at, at.Add(-time.Hour)))
			n, err := l.Len(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, n)
			require.NoError(t, l.Close())

			reopened := open(dir)
			defer reopened.Close()
			has, err = reopened.Has(ctx, key)
			require.NoError(t, err)
			assert.True(t, has)
		})
	}
}

func TestLedger_CleanupEvictsAfterRetention(t *testing.T) {
	ctx := context.Background()
	for name, open := range openBoth(t) {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			l := open(dir)
			defer l.Close()

			old := time.Date(2025, 3, 1, 9, 0, 0, 0, time.Local)
			recent := time.Date(2025, 3, 6, 9, 0, 0, 0, time.Local)
			oldKey := Key("u", "uid1", old, "")
			recentKey := Key("u", "uid2", recent, "3d")
			require.NoError(t, l.Mark(ctx, oldKey, old, old))
			require.NoError(t, l.Mark(ctx, recentKey, recent, recent))

			now := old.Add(DefaultRetention + time.Minute)
			removed, err := l.Cleanup(ctx, now, DefaultRetention)
			require.NoError(t, err)
			assert.Equal(t, 1, removed)

			has, _ := l.Has(ctx, oldKey)
			assert.False(t, has)
			has, _ = l.Has(ctx, recentKey)
			assert.True(t, has)

			removed, err = l.Cleanup(ctx, now, DefaultRetention)
			require.NoError(t, err)
			assert.Zero(t, removed)
		})
	}
}

func TestJSONLedger_EvictedKeyAbsentFromFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	l, err := NewJSONLedger(dir)
	require.NoError(t, err)

	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.Local)
	key := Key("u", "uid1", at, "")
	require.NoError(t, l.Mark(ctx, key, at, at))

	raw, err := os.ReadFile(filepath.Join(dir, JSONFileName))
	require.NoError(t, err)
	assert.Contains(t, string(raw), key)

	_, err = l.Cleanup(ctx, at.Add(8*24*time.Hour), DefaultRetention)
	require.NoError(t, err)
	raw, err = os.ReadFile(filepath.Join(dir, JSONFileName))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), key)
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open("redis", t.TempDir())
	assert.Error(t, err)

	l, err := Open("", t.TempDir())
	require.NoError(t, err)
	assert.IsType(t, &JSONLedger{}, l)
}
