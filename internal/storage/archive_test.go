package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/arq-village/pkg/activity"
)

func TestArchive_WriteAndRotate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "archive")
	a := NewArchive(dir, "activity")

	t0 := time.Date(2026, 5, 1, 9, 59, 0, 0, time.UTC)
	clock := t0
	a.now = func() time.Time { return clock }

	require.NoError(t, a.Write(activity.NewEntry(activity.KindMove, "walked to the garden", clock)))
	require.NoError(t, a.Write(activity.NewEntry(activity.KindThought, "tulips!", clock)))

	clock = t0.Add(2 * time.Minute)
	require.NoError(t, a.Write(activity.NewEntry(activity.KindChat, "said hello", clock)))
	require.NoError(t, a.Close())

	first, err := ReadArchive(a.Path(t0))
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "walked to the garden", first[0].Text)
	assert.Equal(t, activity.KindThought, first[1].Kind)

	second, err := ReadArchive(a.Path(clock))
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "said hello", second[0].Text)

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, files, 2)
	assert.Equal(t, "activity-2026-05-01-09.jsonl.zst", files[0].Name())
}

func TestArchive_ReopenSameHour(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	for _, text := range []string{"one", "two"} {
		a := NewArchive(dir, "activity")
		a.now = func() time.Time { return now }
		require.NoError(t, a.Write(activity.NewEntry(activity.KindSystem, text, now)))
		require.NoError(t, a.Close())
	}

	entries, err := ReadArchive(filepath.Join(dir, "activity-2026-05-01-09.jsonl.zst"))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "one", entries[0].Text)
	assert.Equal(t, "two", entries[1].Text)

	_, err = ReadArchive(filepath.Join(dir, "missing.jsonl.zst"))
	assert.Error(t, err)
}
