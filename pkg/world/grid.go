package world

import (
	"fmt"
)

// CellKind is the terrain type of a single grid cell.
type CellKind string

const (
	CellGrass  CellKind = "grass"
	CellPath   CellKind = "path"
	CellWater  CellKind = "water"
	CellWall   CellKind = "wall"
	CellDoor   CellKind = "door"
	CellBridge CellKind = "bridge"
	CellFloor  CellKind = "floor"
	CellTree   CellKind = "tree"
	CellFlower CellKind = "flower"
	CellSand   CellKind = "sand"
)

// Kinds lists every cell kind.
var Kinds = []CellKind{
	CellGrass, CellPath, CellWater, CellWall, CellDoor, CellBridge, CellFloor, CellTree, CellFlower, CellSand,
}

// Valid reports whether k is one of Kinds.
func (k CellKind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// DefaultWalkable lists the cell kinds the agent may stand on when a world file
// does not say otherwise.
var DefaultWalkable = []CellKind{
	CellGrass, CellPath, CellDoor, CellBridge, CellFloor, CellFlower, CellSand,
}

// WorldChange replaces the kind of a single cell. Changes are permanent upgrades
// layered on top of the base map.
type WorldChange struct {
	Row  int      `json:"row" yaml:"row"`
	Col  int      `json:"col" yaml:"col"`
	Kind CellKind `json:"kind" yaml:"kind"`
}

// Grid is an immutable rectangular map of cell kinds with an optional sparse
// overlay of world changes.
type Grid struct {
	rows     int
	cols     int
	cells    [][]CellKind
	overlay  map[Position]CellKind
	walkable map[CellKind]bool
}

// NewGrid builds a grid from row-major cells. All rows must have the same width.
// A nil walkable set means DefaultWalkable.
func NewGrid(cells [][]CellKind, walkable []CellKind) (*Grid, error) {
	if len(cells) == 0 || len(cells[0]) == 0 {
		return nil, fmt.Errorf("grid must have at least one row and column")
	}
	cols := len(cells[0])
	copied := make([][]CellKind, len(cells))
	for r, row := range cells {
		if len(row) != cols {
			return nil, fmt.Errorf("row %d has %d cells, expected %d", r, len(row), cols)
		}
		copied[r] = append([]CellKind(nil), row...)
	}

	if walkable == nil {
		walkable = DefaultWalkable
	}
	set := make(map[CellKind]bool, len(walkable))
	for _, k := range walkable {
		set[k] = true
	}

	return &Grid{
		rows:     len(cells),
		cols:     cols,
		cells:    copied,
		walkable: set,
	}, nil
}

func (g *Grid) Rows() int { return g.rows }
func (g *Grid) Cols() int { return g.cols }

// InBounds reports whether (row, col) lies inside the grid.
func (g *Grid) InBounds(row, col int) bool {
	return row >= 0 && row < g.rows && col >= 0 && col < g.cols
}

// Cell returns the effective kind at (row, col), overlay first. Out of bounds
// cells report as walls.
func (g *Grid) Cell(row, col int) CellKind {
	if !g.InBounds(row, col) {
		return CellWall
	}
	if kind, ok := g.overlay[Position{Row: row, Col: col}]; ok {
		return kind
	}
	return g.cells[row][col]
}

// IsWalkable reports whether the agent may occupy (row, col).
func (g *Grid) IsWalkable(row, col int) bool {
	if !g.InBounds(row, col) {
		return false
	}
	return g.walkable[g.Cell(row, col)]
}

// WithChanges returns a grid with the given changes layered over the current
// overlay. The receiver is left untouched. Changes outside the grid are ignored.
func (g *Grid) WithChanges(changes []WorldChange) *Grid {
	overlay := make(map[Position]CellKind, len(g.overlay)+len(changes))
	for p, k := range g.overlay {
		overlay[p] = k
	}
	for _, c := range changes {
		if !g.InBounds(c.Row, c.Col) {
			continue
		}
		overlay[Position{Row: c.Row, Col: c.Col}] = c.Kind
	}
	return &Grid{
		rows:     g.rows,
		cols:     g.cols,
		cells:    g.cells,
		overlay:  overlay,
		walkable: g.walkable,
	}
}

// Changes returns the overlay as a list, in no particular order.
func (g *Grid) Changes() []WorldChange {
	out := make([]WorldChange, 0, len(g.overlay))
	for p, k := range g.overlay {
		out = append(out, WorldChange{Row: p.Row, Col: p.Col, Kind: k})
	}
	return out
}
