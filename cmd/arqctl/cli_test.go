package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/arq-village/internal/inference"
	"github.com/jwebster45206/arq-village/internal/logger"
	"github.com/jwebster45206/arq-village/internal/services"
	"github.com/jwebster45206/arq-village/internal/storage"
	"github.com/jwebster45206/arq-village/pkg/activity"
	"github.com/jwebster45206/arq-village/pkg/world"
)

const walledInWorld = `name: Walled
spawn: a
legend:
  ".": grass
  "#": wall
rows:
  - "....."
  - ".###."
  - ".#.#."
  - ".###."
locations:
  - key: a
    row: 0
    col: 0
  - key: cell
    row: 2
    col: 2
`

func newTestCmd(t *testing.T) (*cobra.Command, *bytes.Buffer) {
	t.Helper()
	worldFile = ""
	t.Setenv("WORLD_FILE", "")
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	return cmd, &buf
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunValidate(t *testing.T) {
	tests := []struct {
		name      string
		content   string // empty means the embedded village
		wantErr   bool
		wantInOut []string
	}{
		{
			name:      "embedded village",
			wantInOut: []string{"embedded village", "7 locations", "World file is valid!"},
		},
		{
			name:      "unreachable location",
			content:   walledInWorld,
			wantErr:   true,
			wantInOut: []string{`location "cell" at (2,2) cannot be reached from spawn "a"`, "no location has work"},
		},
		{
			name:    "glyph missing from legend",
			content: "legend:\n  \".\": grass\nrows:\n  - \".x.\"\nlocations:\n  - key: a\n    row: 0\n    col: 0\n",
			wantErr: true,
		},
		{
			name:    "not yaml",
			content: "rows: [",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, out := newTestCmd(t)
			var args []string
			if tt.content != "" {
				args = []string{writeFile(t, "world.yaml", tt.content)}
			}

			err := runValidate(cmd, args)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			for _, s := range tt.wantInOut {
				assert.Contains(t, out.String(), s)
			}
		})
	}
}

func TestRunPath(t *testing.T) {
	cmd, out := newTestCmd(t)
	require.NoError(t, runPath(cmd, []string{"plaza", "garden"}))
	assert.Contains(t, out.String(), "Village Plaza -> Flower Garden:")
	assert.Contains(t, out.String(), "S")
	assert.Contains(t, out.String(), "E")

	cmd, _ = newTestCmd(t)
	err := runPath(cmd, []string{"plaza", "moon"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown location "moon"`)

	cmd, _ = newTestCmd(t)
	worldFile = writeFile(t, "walled.yaml", walledInWorld)
	defer func() { worldFile = "" }()
	// the walled world fails validation but still loads
	err = runPath(cmd, []string{"a", "cell"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no path")
}

func TestDrawRoute(t *testing.T) {
	rows := []string{"....", "....", "...."}
	route := []world.Position{{Row: 0, Col: 1}, {Row: 0, Col: 2}, {Row: 1, Col: 2}}
	got := drawRoute(rows, world.Position{Row: 0, Col: 0}, route)
	assert.Equal(t, []string{"S++.", "..E.", "...."}, got)
	assert.Equal(t, "....", rows[0])
}

func TestInfer(t *testing.T) {
	local := services.NewMockLLM()
	local.SetGenerateResponse("Hello from the plaza!")
	router := inference.NewRouter(local, nil, inference.Config{LocalModel: "mock-model"}, logger.Discard())

	cmd, out := newTestCmd(t)
	require.NoError(t, infer(cmd, router, inference.TierChat, "hi"))
	firstOut := out
	first := out.String()
	assert.Contains(t, first, "Attempts (chat tier):")
	assert.Contains(t, first, "[local] Hello from the plaza!")
	// local answered, so the hosted tiers were never reached
	assert.NotContains(t, first, "haiku")

	local.SetGenerateError(assert.AnError)
	cmd, out = newTestCmd(t)
	err := infer(cmd, router, inference.TierFast, "hi")
	require.Error(t, err)
	assert.Contains(t, out.String(), "haiku")
	assert.Contains(t, out.String(), "skipped")
	assert.Contains(t, out.String(), "fallback")

	// the first command's hook was removed when it finished
	assert.Equal(t, first, firstOut.String())
}

func TestRunArchive(t *testing.T) {
	dir := t.TempDir()
	a := storage.NewArchive(dir, "test")
	now := time.Now()
	require.NoError(t, a.Write(activity.NewEntry(activity.KindMove, "Heading to the pond", now)))
	require.NoError(t, a.Write(activity.NewEntry(activity.KindChat, "Chatted at the pond", now)))
	require.NoError(t, a.Close())

	files, err := filepath.Glob(filepath.Join(dir, "*.jsonl.zst"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	cmd, out := newTestCmd(t)
	archiveKind = "chat"
	defer func() { archiveKind = "" }()
	require.NoError(t, runArchive(cmd, files[:1]))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Contains(t, out.String(), "Chatted at the pond")
	assert.NotContains(t, out.String(), "Heading to the pond")
	assert.Equal(t, "1 of 2 entries", lines[len(lines)-1])
}
