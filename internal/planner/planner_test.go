package planner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/arq-village/internal/inference"
	"github.com/jwebster45206/arq-village/pkg/state"
	"github.com/jwebster45206/arq-village/pkg/world"
)

type fakeInferer struct {
	result inference.Result
	system string
	user   string
	tier   inference.Tier
	calls  int
}

func (f *fakeInferer) Infer(ctx context.Context, system, user string, tier inference.Tier) inference.Result {
	f.calls++
	f.system, f.user, f.tier = system, user, tier
	return f.result
}

type fakeMemories struct {
	snippets []string
	err      error
	limit    int
}

func (f *fakeMemories) RecentSnippets(ctx context.Context, limit int) ([]string, error) {
	f.limit = limit
	return f.snippets, f.err
}

func testLocations(t *testing.T) *world.Locations {
	t.Helper()
	locs, err := world.NewLocations([]world.Location{
		{Key: "workshop", Name: "Workshop", Row: 2, Col: 3},
		{Key: "garden", Name: "Flower Garden", Row: 3, Col: 11},
		{Key: "Pond", Name: "Pond Shore", Row: 7, Col: 16},
	})
	require.NoError(t, err)
	return locs
}

func newTestPlanner(t *testing.T, inf Inferer, mem MemoryRecall) *Planner {
	t.Helper()
	p, err := New(inf, mem, testLocations(t), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return p
}

func TestNew_RequiresLocations(t *testing.T) {
	empty, err := world.NewLocations(nil)
	require.NoError(t, err)
	_, err = New(&fakeInferer{}, nil, empty, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}

func TestParseJudgment(t *testing.T) {
	p := newTestPlanner(t, &fakeInferer{}, nil)

	tests := []struct {
		name    string
		text    string
		want    *MoveIntent
		wantErr bool
	}{
		{
			name: "plain object",
			text: `{"destination":"garden","thought":"The tulips look bright today.","mood":"happy"}`,
			want: &MoveIntent{Destination: "garden", Thought: "The tulips look bright today.", Mood: state.MoodHappy},
		},
		{
			name: "code fence and prose",
			text: "Sure! Here you go:\n```json\n{\"destination\": \"workshop\", \"thought\": \"Time to fix {that} gear.\", \"mood\": \"focused\"}\n```\nHave fun!",
			want: &MoveIntent{Destination: "workshop", Thought: "Time to fix {that} gear.", Mood: state.MoodFocused},
		},
		{
			name: "case and whitespace",
			text: `{"destination":" pond ","thought":"  Ripples!  ","mood":"Curious","extra":1}`,
			want: &MoveIntent{Destination: "Pond", Thought: "Ripples!", Mood: state.MoodCurious},
		},
		{name: "unknown destination", text: `{"destination":"moon","thought":"hi","mood":"happy"}`, wantErr: true},
		{name: "unknown mood", text: `{"destination":"garden","thought":"hi","mood":"grumpy"}`, wantErr: true},
		{name: "missing thought", text: `{"destination":"garden","mood":"happy"}`, wantErr: true},
		{name: "thought not a string", text: `{"destination":"garden","thought":3,"mood":"happy"}`, wantErr: true},
		{
			name:    "thought too long",
			text:    fmt.Sprintf(`{"destination":"garden","thought":%q,"mood":"happy"}`, strings.Repeat("a", MaxThoughtLength+1)),
			wantErr: true,
		},
		{name: "no json", text: "I think I'll go to the garden.", wantErr: true},
		{name: "truncated json", text: `{"destination":"garden","thought":"hi"`, wantErr: true},
		{name: "array", text: `[{"destination":"garden"}]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.ParseJudgment(tt.text)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecideNextMove(t *testing.T) {
	inf := &fakeInferer{result: inference.Result{
		Response: `{"destination":"workshop","thought":"I want to build something.","mood":"excited"}`,
		Source:   inference.SourceHaiku,
	}}
	mem := &fakeMemories{snippets: []string{"Fixed a gear.", "Talked about clouds."}}
	p := newTestPlanner(t, inf, mem)

	intent := p.DecideNextMove(context.Background(), "garden", []string{"workshop", "garden"}, state.MoodCalm, "Go build a birdhouse!")
	require.NotNil(t, intent)
	assert.Equal(t, &MoveIntent{
		Destination: "workshop",
		Thought:     "I want to build something.",
		Mood:        state.MoodExcited,
		Source:      inference.SourceHaiku,
	}, intent)

	assert.Equal(t, 1, inf.calls)
	assert.Equal(t, inference.TierFast, inf.tier)
	assert.Equal(t, 3, mem.limit)
	assert.Contains(t, inf.user, "You are at: garden (Flower Garden)")
	assert.Contains(t, inf.user, "Fixed a gear.")
	assert.Contains(t, inf.user, "Recently visited: workshop, garden")
	assert.Contains(t, inf.user, "Go build a birdhouse!")
	assert.Contains(t, inf.user, "Your mood: calm")
	assert.Contains(t, inf.system, `"destination"`)
}

func TestDecideNextMove_ReturnsNil(t *testing.T) {
	tests := []struct {
		name    string
		result  inference.Result
		current string
		calls   int
	}{
		{name: "fallback sentinel", result: inference.Fallback(), current: "garden", calls: 1},
		{name: "unparseable", result: inference.Result{Response: "beep boop", Source: inference.SourceLocal}, current: "garden", calls: 1},
		{
			name:    "destination outside table",
			result:  inference.Result{Response: `{"destination":"castle","thought":"","mood":"happy"}`, Source: inference.SourceLocal},
			current: "garden",
			calls:   1,
		},
		{name: "unknown current location", result: inference.Result{Response: "x", Source: inference.SourceLocal}, current: "castle", calls: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inf := &fakeInferer{result: tt.result}
			p := newTestPlanner(t, inf, nil)
			assert.Nil(t, p.DecideNextMove(context.Background(), tt.current, nil, state.MoodHappy, ""))
			assert.Equal(t, tt.calls, inf.calls)
		})
	}
}

func TestDecideNextMove_SameLocationStillReturned(t *testing.T) {
	inf := &fakeInferer{result: inference.Result{
		Response: `{"destination":"garden","thought":"I like it here.","mood":"calm"}`,
		Source:   inference.SourceLocal,
	}}
	p := newTestPlanner(t, inf, &fakeMemories{err: fmt.Errorf("db locked")})

	intent := p.DecideNextMove(context.Background(), "garden", nil, state.MoodCalm, "")
	require.NotNil(t, intent)
	assert.Equal(t, "garden", intent.Destination)
	assert.NotContains(t, inf.user, "Things you remember")
}
