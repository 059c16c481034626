package world

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gridFromRows builds a grid where '#' is wall and anything else is grass.
func gridFromRows(t *testing.T, rows ...string) *Grid {
	t.Helper()
	cells := make([][]CellKind, len(rows))
	for r, line := range rows {
		for _, ch := range line {
			if ch == '#' {
				cells[r] = append(cells[r], CellWall)
			} else {
				cells[r] = append(cells[r], CellGrass)
			}
		}
	}
	g, err := NewGrid(cells, nil)
	require.NoError(t, err)
	return g
}

// referenceDistances computes hop distances from start with a plain BFS.
func referenceDistances(g *Grid, start Position) map[Position]int {
	dist := map[Position]int{start: 0}
	queue := []Position{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, d := range []Position{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
			n := Position{cur.Row + d.Row, cur.Col + d.Col}
			if _, seen := dist[n]; seen || !g.IsWalkable(n.Row, n.Col) {
				continue
			}
			dist[n] = dist[cur] + 1
			queue = append(queue, n)
		}
	}
	return dist
}

func assertValidRoute(t *testing.T, g *Grid, start Position, route []Position) {
	t.Helper()
	prev := start
	for i, p := range route {
		assert.NotEqual(t, start, p, "route must not contain the start")
		assert.True(t, g.IsWalkable(p.Row, p.Col), "step %d %v is not walkable", i, p)
		assert.Equal(t, 1, prev.Manhattan(p), "step %d %v is not adjacent to %v", i, p, prev)
		prev = p
	}
}

func TestFindPath_TieBreakOrder(t *testing.T) {
	g := gridFromRows(t,
		"...",
		"...",
		"...",
	)

	got := g.FindPath(2, 0, 0, 2)
	want := []Position{{1, 0}, {0, 0}, {0, 1}, {0, 2}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FindPath mismatch (-want +got):\n%s", diff)
	}
}

func TestFindPath_AroundWall(t *testing.T) {
	g := gridFromRows(t,
		".....",
		".###.",
		"...#.",
		"####.",
		".....",
	)

	route := g.FindPath(2, 0, 4, 0)
	require.NotEmpty(t, route)
	assert.Equal(t, Position{4, 0}, route[len(route)-1])
	assertValidRoute(t, g, Position{2, 0}, route)
	assert.Len(t, route, referenceDistances(g, Position{2, 0})[Position{4, 0}])
}

func TestFindPath_OptimalOnRandomGrids(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 25; trial++ {
		rows := make([]string, 6)
		for r := range rows {
			line := make([]byte, 7)
			for c := range line {
				if rng.Intn(100) < 28 {
					line[c] = '#'
				} else {
					line[c] = '.'
				}
			}
			rows[r] = string(line)
		}
		g := gridFromRows(t, rows...)

		for sr := 0; sr < g.Rows(); sr++ {
			for sc := 0; sc < g.Cols(); sc++ {
				if !g.IsWalkable(sr, sc) {
					continue
				}
				start := Position{sr, sc}
				dist := referenceDistances(g, start)

				for er := 0; er < g.Rows(); er++ {
					for ec := 0; ec < g.Cols(); ec++ {
						end := Position{er, ec}
						route := g.FindPath(sr, sc, er, ec)

						d, reachable := dist[end]
						if !reachable || end == start {
							assert.Empty(t, route, "trial %d %v->%v", trial, start, end)
							continue
						}
						require.Len(t, route, d, "trial %d %v->%v", trial, start, end)
						assert.Equal(t, end, route[len(route)-1])
						assertValidRoute(t, g, start, route)
					}
				}
			}
		}
	}
}

func TestFindPath_Unreachable(t *testing.T) {
	g := gridFromRows(t,
		".....",
		"..###",
		"..#.#",
		"..###",
	)

	assert.Empty(t, g.FindPath(0, 0, 2, 3))
}

func TestFindPath_Degenerate(t *testing.T) {
	g := gridFromRows(t,
		"..#",
		"...",
	)

	tests := []struct {
		name           string
		sr, sc, er, ec int
	}{
		{name: "start equals end", sr: 1, sc: 1, er: 1, ec: 1},
		{name: "end is a wall", sr: 0, sc: 0, er: 0, ec: 2},
		{name: "end out of bounds", sr: 0, sc: 0, er: 5, ec: 5},
		{name: "end is a wall from far away", sr: 1, sc: 2, er: 0, ec: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			route := g.FindPath(tt.sr, tt.sc, tt.er, tt.ec)
			assert.NotNil(t, route)
			assert.Empty(t, route)
		})
	}
}

func TestFindPath_UsesOverlay(t *testing.T) {
	g := gridFromRows(t,
		".#.",
	)
	assert.Empty(t, g.FindPath(0, 0, 0, 2))

	bridged := g.WithChanges([]WorldChange{{Row: 0, Col: 1, Kind: CellBridge}})
	assert.Equal(t, []Position{{0, 1}, {0, 2}}, bridged.FindPath(0, 0, 0, 2))
	assert.Empty(t, g.FindPath(0, 0, 0, 2), "original grid must be unchanged")
}
