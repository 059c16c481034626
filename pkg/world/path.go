package world

// neighbourSteps is the BFS expansion order. It is fixed so that equal-length
// routes always resolve the same way.
var neighbourSteps = [4]Position{
	{Row: -1, Col: 0}, // up
	{Row: 0, Col: 1},  // right
	{Row: 1, Col: 0},  // down
	{Row: 0, Col: -1}, // left
}

// FindPath returns the shortest 4-connected route from start to end, excluding
// the start cell and including the end cell. It returns an empty route when the
// end is not walkable, when start equals end, or when no route exists.
func (g *Grid) FindPath(startRow, startCol, endRow, endCol int) []Position {
	start := Position{Row: startRow, Col: startCol}
	end := Position{Row: endRow, Col: endCol}

	if !g.IsWalkable(endRow, endCol) || start == end {
		return []Position{}
	}

	parent := map[Position]Position{}
	visited := map[Position]bool{start: true}
	queue := []Position{start}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if cur == end {
			return reconstruct(parent, start, end)
		}

		for _, step := range neighbourSteps {
			next := Position{Row: cur.Row + step.Row, Col: cur.Col + step.Col}
			if visited[next] || !g.IsWalkable(next.Row, next.Col) {
				continue
			}
			visited[next] = true
			parent[next] = cur
			queue = append(queue, next)
		}
	}

	return []Position{}
}

func reconstruct(parent map[Position]Position, start, end Position) []Position {
	var reversed []Position
	for p := end; p != start; p = parent[p] {
		reversed = append(reversed, p)
	}
	route := make([]Position, len(reversed))
	for i, p := range reversed {
		route[len(reversed)-1-i] = p
	}
	return route
}
