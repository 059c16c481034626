package world

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed default_world.yaml
var defaultWorldYAML []byte

// File is the on-disk YAML shape of a world.
type File struct {
	Name      string              `yaml:"name"`
	Spawn     string              `yaml:"spawn"`
	Legend    map[string]CellKind `yaml:"legend"`
	Walkable  []CellKind          `yaml:"walkable"`
	Rows      []string            `yaml:"rows"`
	Locations []Location          `yaml:"locations"`
	Changes   []WorldChange       `yaml:"changes"`
}

// World bundles the map, the location table and the spawn point.
type World struct {
	Name      string
	Spawn     string
	Grid      *Grid
	Locations *Locations

	glyphs map[CellKind]rune
}

// Default returns the embedded village.
func Default() (*World, error) {
	return Parse(defaultWorldYAML)
}

// Load reads and parses a world file. An empty path loads the default village.
func Load(path string) (*World, error) {
	if path == "" {
		return Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read world file: %w", err)
	}
	w, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return w, nil
}

// Parse decodes and validates world YAML.
func Parse(raw []byte) (*World, error) {
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("failed to parse world yaml: %w", err)
	}
	return f.Build()
}

// Build validates the file and constructs the world.
func (f *File) Build() (*World, error) {
	legend := make(map[rune]CellKind, len(f.Legend))
	for glyph, kind := range f.Legend {
		if utf8.RuneCountInString(glyph) != 1 {
			return nil, fmt.Errorf("legend key %q must be a single character", glyph)
		}
		r, _ := utf8.DecodeRuneInString(glyph)
		legend[r] = kind
	}

	cells := make([][]CellKind, len(f.Rows))
	for r, line := range f.Rows {
		row := make([]CellKind, 0, utf8.RuneCountInString(line))
		for c, glyph := range []rune(line) {
			kind, ok := legend[glyph]
			if !ok {
				return nil, fmt.Errorf("row %d col %d: glyph %q not in legend", r, c, glyph)
			}
			row = append(row, kind)
		}
		cells[r] = row
	}

	grid, err := NewGrid(cells, f.Walkable)
	if err != nil {
		return nil, err
	}
	if len(f.Changes) > 0 {
		grid = grid.WithChanges(f.Changes)
	}

	titler := cases.Title(language.English)
	locs := make([]Location, 0, len(f.Locations))
	for _, l := range f.Locations {
		if l.Name == "" {
			l.Name = titler.String(strings.ReplaceAll(l.Key, "_", " "))
		}
		if !grid.IsWalkable(l.Row, l.Col) {
			return nil, fmt.Errorf("location %q at (%d,%d) is not walkable", l.Key, l.Row, l.Col)
		}
		locs = append(locs, l)
	}
	table, err := NewLocations(locs)
	if err != nil {
		return nil, err
	}
	if table.Len() == 0 {
		return nil, fmt.Errorf("world must define at least one location")
	}

	spawn := f.Spawn
	if spawn == "" {
		spawn = table.Keys()[0]
	}
	if _, ok := table.Get(spawn); !ok {
		return nil, fmt.Errorf("spawn location %q is not defined", spawn)
	}

	return &World{
		Name:      f.Name,
		Spawn:     spawn,
		Grid:      grid,
		Locations: table,
		glyphs:    reverseLegend(legend),
	}, nil
}

// WithChanges returns a copy of the world with extra overlay cells applied.
func (w *World) WithChanges(changes []WorldChange) *World {
	cp := *w
	cp.Grid = w.Grid.WithChanges(changes)
	return &cp
}

// SpawnPosition returns the coordinate of the spawn location.
func (w *World) SpawnPosition() Position {
	l, _ := w.Locations.Get(w.Spawn)
	return l.Position()
}

// Render draws the effective grid back into legend glyphs. Kinds without a
// glyph render as '?'.
func (w *World) Render() []string {
	out := make([]string, w.Grid.Rows())
	for r := 0; r < w.Grid.Rows(); r++ {
		var b strings.Builder
		for c := 0; c < w.Grid.Cols(); c++ {
			if g, ok := w.glyphs[w.Grid.Cell(r, c)]; ok {
				b.WriteRune(g)
			} else {
				b.WriteRune('?')
			}
		}
		out[r] = b.String()
	}
	return out
}

// Legend returns the glyph used for each kind.
func (w *World) Legend() map[string]CellKind {
	out := make(map[string]CellKind, len(w.glyphs))
	for k, g := range w.glyphs {
		out[string(g)] = k
	}
	return out
}

func reverseLegend(legend map[rune]CellKind) map[CellKind]rune {
	glyphs := make([]rune, 0, len(legend))
	for g := range legend {
		glyphs = append(glyphs, g)
	}
	sort.Slice(glyphs, func(i, j int) bool { return glyphs[i] < glyphs[j] })

	out := make(map[CellKind]rune, len(legend))
	for _, g := range glyphs {
		if _, seen := out[legend[g]]; !seen {
			out[legend[g]] = g
		}
	}
	return out
}
