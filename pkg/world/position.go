package world

// Position is a grid coordinate.
type Position struct {
	Row int `json:"row" yaml:"row"`
	Col int `json:"col" yaml:"col"`
}

// Direction is the way the agent faces.
type Direction string

const (
	DirUp    Direction = "up"
	DirRight Direction = "right"
	DirDown  Direction = "down"
	DirLeft  Direction = "left"
)

// Manhattan returns the 4-connected distance between two positions.
func (p Position) Manhattan(o Position) int {
	return abs(p.Row-o.Row) + abs(p.Col-o.Col)
}

// Facing derives the facing direction for a step from one cell to the next.
// Horizontal movement wins over vertical; a zero step keeps current.
func Facing(from, to Position, current Direction) Direction {
	dr := to.Row - from.Row
	dc := to.Col - from.Col
	switch {
	case dc > 0:
		return DirRight
	case dc < 0:
		return DirLeft
	case dr < 0:
		return DirUp
	case dr > 0:
		return DirDown
	}
	return current
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
