package memory

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "memory.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_AddAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	texts := []string{"Fixed a gear.", "Talked about clouds.", "Watched the fish."}
	for i, text := range texts {
		_, err := s.Add(ctx, Memory{Kind: KindWork, Text: text, Location: "workshop", CreatedAt: base.Add(time.Duration(i) * time.Minute)})
		require.NoError(t, err)
	}

	got, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Watched the fish.", got[0].Text)
	assert.Equal(t, "Talked about clouds.", got[1].Text)
	assert.Equal(t, KindWork, got[0].Kind)
	assert.Equal(t, "workshop", got[0].Location)
	assert.True(t, got[0].CreatedAt.Equal(base.Add(2*time.Minute)))
	assert.NotEmpty(t, got[0].ID)

	snippets, err := s.RecentSnippets(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"Watched the fish.", "Talked about clouds.", "Fixed a gear."}, snippets)

	none, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_AddValidation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Add(ctx, Memory{Kind: KindChat, Text: "   "})
	assert.Error(t, err)

	m, err := s.Add(ctx, Memory{Kind: KindChat, Text: "  " + strings.Repeat("a", MaxTextLength+50) + "  "})
	require.NoError(t, err)
	assert.Len(t, m.Text, MaxTextLength)
	assert.False(t, m.CreatedAt.IsZero())
}

func TestStore_Prune(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := s.Add(ctx, Memory{Kind: KindThought, Text: string(rune('a' + i))})
		require.NoError(t, err)
	}

	n, err := s.Prune(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	snippets, err := s.RecentSnippets(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"e", "d"}, snippets)
}

func TestStore_Usage(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.IncrementUsage(ctx, "local"))
		}()
	}
	wg.Wait()
	require.NoError(t, s.IncrementUsage(ctx, "haiku"))

	usage, err := s.Usage(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"local": 10, "haiku": 1}, usage)
}

func TestStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.Add(ctx, Memory{Kind: KindChat, Text: "Remember me."})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	snippets, err := s.RecentSnippets(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Remember me."}, snippets)

	_, err = Open("")
	assert.Error(t, err)
}
