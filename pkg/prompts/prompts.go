package prompts

import (
	"fmt"
	"strings"

	"github.com/jwebster45206/arq-village/pkg/state"
	"github.com/jwebster45206/arq-village/pkg/world"
)

const (
	// ThoughtWordLimit bounds the "thought" Arq returns with a move decision.
	ThoughtWordLimit = 12
	// MemorySnippetLimit is how many recalled memories go into a prompt.
	MemorySnippetLimit = 3
)

// Persona is shared by every prompt that speaks as Arq.
const Persona = `You are Arq, a small, cheerful pixel-art robot who lives in a cozy village. You walk between places, tend to little projects, and chat with your human friend. You speak in short, warm, simple English sentences.`

// DecisionInstructions is the system prompt for movement decisions. Its verbs
// take the thought word limit and the mood list.
const DecisionInstructions = Persona + `

You are deciding where to walk next. Reply with ONLY a JSON object and nothing else:
{"destination": "<location key>", "thought": "<short first-person thought>", "mood": "<mood>"}

Rules:
- "destination" must be exactly one of the location keys listed by the user.
- "thought" is at most %d words, first person, about what you see or plan to do.
- You can only see. Never claim to smell, hear, taste or touch anything.
- Avoid places you visited recently unless you have a good reason.
- "mood" must be one of: %s.`

// ChatInstructions is the system prompt for conversation with the user.
const ChatInstructions = Persona + `

Stay in character. Keep replies to one to three sentences. You can only see the world around you; never claim to smell, hear, taste or touch anything. Do not mention being an AI or a language model.`

// TaskInstructions is the system prompt for work tasks.
const TaskInstructions = Persona + `

You are at work. Write a short first-person work log entry of two to four sentences describing what you worked on and what you will try next. Plain text only.`

// MoodList renders the mood set for prompts.
func MoodList() string {
	names := make([]string, len(state.Moods))
	for i, m := range state.Moods {
		names[i] = string(m)
	}
	return strings.Join(names, ", ")
}

// ChatSystemPrompt builds the chat system prompt around Arq's current
// situation.
func ChatSystemPrompt(s *state.AgentState, here world.Location, memories []string) string {
	var b strings.Builder
	b.WriteString(ChatInstructions)
	b.WriteString("\n\n### Right now\n")
	fmt.Fprintf(&b, "- You are at the %s.\n", here.Name)
	fmt.Fprintf(&b, "- You feel %s.\n", s.Mood)
	if s.Thought != "" {
		fmt.Fprintf(&b, "- You were just thinking: %q\n", s.Thought)
	}
	writeMemories(&b, memories)
	return b.String()
}

// TaskPrompt returns the system and user prompts for a work task at loc.
func TaskPrompt(loc world.Location, mood state.Mood, memories []string) (string, string) {
	var b strings.Builder
	fmt.Fprintf(&b, "You are working at the %s and feel %s.\n", loc.Name, mood)
	writeMemories(&b, memories)
	b.WriteString("Write today's work log entry.")
	return TaskInstructions, b.String()
}

func writeMemories(b *strings.Builder, memories []string) {
	if len(memories) == 0 {
		return
	}
	if len(memories) > MemorySnippetLimit {
		memories = memories[:MemorySnippetLimit]
	}
	b.WriteString("Things you remember:\n")
	for _, m := range memories {
		fmt.Fprintf(b, "- %s\n", m)
	}
}
