package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jwebster45206/arq-village/pkg/world"
)

var validateCmd = &cobra.Command{
	Use:   "validate [world.yaml]",
	Short: "Check a world file",
	Long: `Parse a world file and check that it is usable:

  - every glyph is in the legend and every row has the same width
  - every location sits on a walkable cell
  - every location can be reached from the spawn point`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

var pathCmd = &cobra.Command{
	Use:   "path <from> <to>",
	Short: "Print the route between two locations",
	Args:  cobra.ExactArgs(2),
	RunE:  runPath,
}

// WorldValidator collects every problem in a world instead of stopping at the
// first one.
type WorldValidator struct {
	errors   []string
	warnings []string
}

func (v *WorldValidator) addError(format string, args ...any) {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
}

func (v *WorldValidator) addWarning(format string, args ...any) {
	v.warnings = append(v.warnings, fmt.Sprintf(format, args...))
}

// Validate checks what world.Parse cannot: reachability and naming.
func (v *WorldValidator) Validate(w *world.World) {
	spawn, _ := w.Locations.Get(w.Spawn)

	var workCount int
	names := map[string]string{}
	for _, loc := range w.Locations.All() {
		if loc.Work {
			workCount++
		}
		if other, dup := names[strings.ToLower(loc.Name)]; dup {
			v.addWarning("locations %q and %q share the name %q", other, loc.Key, loc.Name)
		}
		names[strings.ToLower(loc.Name)] = loc.Key

		if loc.Key == spawn.Key {
			continue
		}
		if route := w.Grid.FindPath(spawn.Row, spawn.Col, loc.Row, loc.Col); len(route) == 0 {
			v.addError("location %q at (%d,%d) cannot be reached from spawn %q", loc.Key, loc.Row, loc.Col, spawn.Key)
		}
	}

	if workCount == 0 {
		v.addWarning("no location has work: true, so Arq will never do any work")
	}
}

func resolveWorldFile(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	if worldFile != "" {
		return worldFile
	}
	return os.Getenv("WORLD_FILE")
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	path := resolveWorldFile(args)
	label := path
	if label == "" {
		label = "embedded village"
	}
	fmt.Fprintf(out, "Validating %s...\n", label)

	w, err := world.Load(path)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	v := &WorldValidator{}
	v.Validate(w)

	fmt.Fprintf(out, "  %q: %dx%d, %d locations, spawn %q\n", w.Name, w.Grid.Rows(), w.Grid.Cols(), w.Locations.Len(), w.Spawn)
	for _, warning := range v.warnings {
		fmt.Fprintf(out, "  warning: %s\n", warning)
	}
	if len(v.errors) > 0 {
		for _, e := range v.errors {
			fmt.Fprintf(out, "  error: %s\n", e)
		}
		return fmt.Errorf("validation failed with %d error(s)", len(v.errors))
	}

	fmt.Fprintln(out, "World file is valid!")
	return nil
}

func runPath(cmd *cobra.Command, args []string) error {
	w, err := world.Load(resolveWorldFile(nil))
	if err != nil {
		return err
	}

	from, ok := w.Locations.Get(args[0])
	if !ok {
		return unknownLocation(w, args[0])
	}
	to, ok := w.Locations.Get(args[1])
	if !ok {
		return unknownLocation(w, args[1])
	}

	route := w.Grid.FindPath(from.Row, from.Col, to.Row, to.Col)
	if len(route) == 0 && from.Key != to.Key {
		return fmt.Errorf("no path from %s to %s", from.Name, to.Name)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s -> %s: %d steps\n\n", from.Name, to.Name, len(route))
	for _, line := range drawRoute(w.Render(), from.Position(), route) {
		fmt.Fprintln(out, line)
	}
	return nil
}

// drawRoute marks the start with S, the route with +, and the end with E.
func drawRoute(rows []string, start world.Position, route []world.Position) []string {
	cells := make([][]rune, len(rows))
	for i, r := range rows {
		cells[i] = []rune(r)
	}
	mark := func(p world.Position, ch rune) {
		if p.Row >= 0 && p.Row < len(cells) && p.Col >= 0 && p.Col < len(cells[p.Row]) {
			cells[p.Row][p.Col] = ch
		}
	}
	for _, p := range route {
		mark(p, '+')
	}
	if len(route) > 0 {
		mark(route[len(route)-1], 'E')
	}
	mark(start, 'S')

	out := make([]string, len(cells))
	for i, r := range cells {
		out[i] = string(r)
	}
	return out
}

func unknownLocation(w *world.World, key string) error {
	keys := w.Locations.Keys()
	sort.Strings(keys)
	return fmt.Errorf("unknown location %q (known: %s)", key, strings.Join(keys, ", "))
}
