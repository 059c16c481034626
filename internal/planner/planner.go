package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/jwebster45206/arq-village/internal/inference"
	"github.com/jwebster45206/arq-village/pkg/prompts"
	"github.com/jwebster45206/arq-village/pkg/state"
	"github.com/jwebster45206/arq-village/pkg/textfilter"
	"github.com/jwebster45206/arq-village/pkg/world"
)

// MaxThoughtLength bounds the thought in a judgment.
const MaxThoughtLength = 200

// Inferer is the slice of the inference router the planner needs.
type Inferer interface {
	Infer(ctx context.Context, system, user string, tier inference.Tier) inference.Result
}

// MemoryRecall supplies recent memory snippets, newest first.
type MemoryRecall interface {
	RecentSnippets(ctx context.Context, limit int) ([]string, error)
}

// MoveIntent is a validated decision: where to go, what Arq thinks, and how
// Arq feels.
type MoveIntent struct {
	Destination string           `json:"destination"`
	Thought     string           `json:"thought"`
	Mood        state.Mood       `json:"mood"`
	Source      inference.Source `json:"source"`
}

// Planner turns model output into move intents.
type Planner struct {
	inferer   Inferer
	memories  MemoryRecall
	locations *world.Locations
	schema    *jsonschema.Schema
	logger    *slog.Logger
}

// New compiles the judgment schema for the given location table. memories may
// be nil.
func New(inferer Inferer, memories MemoryRecall, locations *world.Locations, logger *slog.Logger) (*Planner, error) {
	if locations == nil || locations.Len() == 0 {
		return nil, fmt.Errorf("planner needs at least one location")
	}
	schema, err := compileSchema(locations.Keys())
	if err != nil {
		return nil, err
	}
	return &Planner{
		inferer:   inferer,
		memories:  memories,
		locations: locations,
		schema:    schema,
		logger:    logger,
	}, nil
}

func compileSchema(keys []string) (*jsonschema.Schema, error) {
	moods := make([]string, len(state.Moods))
	for i, m := range state.Moods {
		moods[i] = string(m)
	}

	doc := map[string]any{
		"$schema":  "https://json-schema.org/draft/2020-12/schema",
		"type":     "object",
		"required": []string{"destination", "thought", "mood"},
		"properties": map[string]any{
			"destination": map[string]any{"type": "string", "enum": keys},
			"thought":     map[string]any{"type": "string", "maxLength": MaxThoughtLength},
			"mood":        map[string]any{"type": "string", "enum": moods},
		},
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal judgment schema: %w", err)
	}
	schema, err := jsonschema.CompileString("judgment.schema.json", string(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to compile judgment schema: %w", err)
	}
	return schema, nil
}

// DecideNextMove asks the model where to go next. It returns nil when no
// usable decision came back; the reason is logged.
func (p *Planner) DecideNextMove(ctx context.Context, current string, recent []string, mood state.Mood, lastChat string) *MoveIntent {
	var memories []string
	if p.memories != nil {
		snippets, err := p.memories.RecentSnippets(ctx, prompts.MemorySnippetLimit)
		if err != nil {
			p.logger.Warn("Failed to recall memories", "error", err)
		} else {
			memories = snippets
		}
	}

	system, user, err := prompts.NewDecision().
		WithLocations(p.locations.All()).
		WithCurrent(current).
		WithMood(mood).
		WithRecent(recent).
		WithMemories(memories).
		WithLastChat(lastChat).
		Build()
	if err != nil {
		p.logger.Error("Failed to build decision prompt", "error", err, "current", current)
		return nil
	}

	res := p.inferer.Infer(ctx, system, user, inference.TierFast)
	if !res.OK() {
		p.logger.Info("No provider produced a decision, skipping move", "source", res.Source)
		return nil
	}

	intent, err := p.ParseJudgment(res.Response)
	if err != nil {
		p.logger.Warn("Discarding unparseable decision",
			"error", err,
			"source", res.Source,
			"preview", textfilter.Preview(res.Response, 120))
		return nil
	}
	intent.Source = res.Source

	p.logger.Info("Move decided",
		"current", current,
		"destination", intent.Destination,
		"mood", intent.Mood,
		"source", intent.Source)
	return intent
}

// ParseJudgment extracts the first JSON object from text and validates it.
// Destination and mood are matched case-insensitively.
func (p *Planner) ParseJudgment(text string) (*MoveIntent, error) {
	obj, ok := textfilter.ExtractJSONObject(text)
	if !ok {
		return nil, fmt.Errorf("no JSON object in reply")
	}

	var doc any
	if err := json.Unmarshal([]byte(obj), &doc); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if m, ok := doc.(map[string]any); ok {
		if s, ok := m["destination"].(string); ok {
			m["destination"] = p.canonicalKey(s)
		}
		if s, ok := m["mood"].(string); ok {
			m["mood"] = strings.ToLower(strings.TrimSpace(s))
		}
		if s, ok := m["thought"].(string); ok {
			m["thought"] = strings.TrimSpace(s)
		}
	}

	if err := p.schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("judgment does not match schema: %w", err)
	}

	m := doc.(map[string]any)
	return &MoveIntent{
		Destination: m["destination"].(string),
		Thought:     m["thought"].(string),
		Mood:        state.Mood(m["mood"].(string)),
	}, nil
}

func (p *Planner) canonicalKey(s string) string {
	s = strings.TrimSpace(s)
	if _, ok := p.locations.Get(s); ok {
		return s
	}
	for _, k := range p.locations.Keys() {
		if strings.EqualFold(k, s) {
			return k
		}
	}
	return s
}
