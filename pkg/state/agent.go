package state

import (
	"strings"
	"time"

	"github.com/jwebster45206/arq-village/pkg/world"
)

// Mood is Arq's current emotional label. The set is closed; the planner rejects
// any other value.
type Mood string

const (
	MoodHappy      Mood = "happy"
	MoodCurious    Mood = "curious"
	MoodCalm       Mood = "calm"
	MoodFocused    Mood = "focused"
	MoodTired      Mood = "tired"
	MoodExcited    Mood = "excited"
	MoodThoughtful Mood = "thoughtful"
)

// Moods lists every valid mood in a stable order.
var Moods = []Mood{
	MoodHappy, MoodCurious, MoodCalm, MoodFocused, MoodTired, MoodExcited, MoodThoughtful,
}

// ParseMood matches s case-insensitively against Moods.
func ParseMood(s string) (Mood, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, m := range Moods {
		if string(m) == s {
			return m, true
		}
	}
	return "", false
}

// Status is what Arq is doing right now.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusWalking Status = "walking"
	StatusWorking Status = "working"
)

// RecentLocationLimit is how many visited location keys are remembered.
const RecentLocationLimit = 5

// AgentState is the persisted snapshot of Arq.
type AgentState struct {
	Position        world.Position  `json:"position"`
	Facing          world.Direction `json:"facing"`
	Status          Status          `json:"status"`
	Mood            Mood            `json:"mood"`
	Thought         string          `json:"thought,omitempty"`
	Location        string          `json:"location"`                   // nearest named location
	Destination     string          `json:"destination,omitempty"`      // set while walking
	RecentLocations []string        `json:"recent_locations,omitempty"` // oldest first
	LastChat        string          `json:"last_chat,omitempty"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// NewAgentState places Arq at the world's spawn point.
func NewAgentState(w *world.World) *AgentState {
	return &AgentState{
		Position:        w.SpawnPosition(),
		Facing:          world.DirDown,
		Status:          StatusIdle,
		Mood:            MoodHappy,
		Location:        w.Spawn,
		RecentLocations: []string{w.Spawn},
	}
}

// RememberLocation appends key to the recent list, skipping a repeat of the
// last entry and keeping at most limit entries.
func (s *AgentState) RememberLocation(key string, limit int) {
	if key == "" {
		return
	}
	if n := len(s.RecentLocations); n > 0 && s.RecentLocations[n-1] == key {
		return
	}
	s.RecentLocations = append(s.RecentLocations, key)
	if limit > 0 && len(s.RecentLocations) > limit {
		s.RecentLocations = append([]string(nil), s.RecentLocations[len(s.RecentLocations)-limit:]...)
	}
}

// Clone returns a deep copy.
func (s *AgentState) Clone() *AgentState {
	cp := *s
	cp.RecentLocations = append([]string(nil), s.RecentLocations...)
	return &cp
}
