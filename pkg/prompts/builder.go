package prompts

import (
	"fmt"
	"strings"

	"github.com/jwebster45206/arq-village/pkg/state"
	"github.com/jwebster45206/arq-village/pkg/world"
)

// DecisionBuilder assembles the movement decision prompt using a fluent
// interface.
type DecisionBuilder struct {
	locations    []world.Location
	current      string
	mood         state.Mood
	recent       []string
	memories     []string
	lastChat     string
	thoughtWords int
}

// NewDecision creates a builder with default settings.
func NewDecision() *DecisionBuilder {
	return &DecisionBuilder{
		mood:         state.MoodHappy,
		thoughtWords: ThoughtWordLimit,
	}
}

// WithLocations sets the location table offered as destinations.
func (b *DecisionBuilder) WithLocations(locs []world.Location) *DecisionBuilder {
	b.locations = locs
	return b
}

// WithCurrent sets the key of the location Arq is at.
func (b *DecisionBuilder) WithCurrent(key string) *DecisionBuilder {
	b.current = key
	return b
}

func (b *DecisionBuilder) WithMood(m state.Mood) *DecisionBuilder {
	if m != "" {
		b.mood = m
	}
	return b
}

func (b *DecisionBuilder) WithRecent(keys []string) *DecisionBuilder {
	b.recent = keys
	return b
}

// WithMemories sets recalled snippets; only the first MemorySnippetLimit are used.
func (b *DecisionBuilder) WithMemories(snippets []string) *DecisionBuilder {
	b.memories = snippets
	return b
}

func (b *DecisionBuilder) WithLastChat(text string) *DecisionBuilder {
	b.lastChat = strings.TrimSpace(text)
	return b
}

func (b *DecisionBuilder) WithThoughtWords(n int) *DecisionBuilder {
	if n > 0 {
		b.thoughtWords = n
	}
	return b
}

// Build returns the system prompt and user message.
func (b *DecisionBuilder) Build() (string, string, error) {
	if len(b.locations) == 0 {
		return "", "", fmt.Errorf("locations are required")
	}

	var here *world.Location
	for i := range b.locations {
		if b.locations[i].Key == b.current {
			here = &b.locations[i]
			break
		}
	}
	if here == nil {
		return "", "", fmt.Errorf("current location %q is not in the location list", b.current)
	}

	system := fmt.Sprintf(DecisionInstructions, b.thoughtWords, MoodList())

	var u strings.Builder
	u.WriteString("Locations (key: name):\n")
	for _, l := range b.locations {
		fmt.Fprintf(&u, "- %s: %s\n", l.Key, l.Name)
	}
	fmt.Fprintf(&u, "\nYou are at: %s (%s)\n", here.Key, here.Name)
	fmt.Fprintf(&u, "Your mood: %s\n", b.mood)
	if len(b.recent) > 0 {
		fmt.Fprintf(&u, "Recently visited: %s\n", strings.Join(b.recent, ", "))
	}
	if len(b.memories) > 0 {
		u.WriteString("\n")
		writeMemories(&u, b.memories)
	}
	if b.lastChat != "" {
		fmt.Fprintf(&u, "\nYour friend last said: %q\n", b.lastChat)
	}
	u.WriteString("\nWhere do you go next? Answer with the JSON object only.")

	return system, u.String(), nil
}
