package inference

import (
	"fmt"
	"time"
)

// Tier is the quality/cost class of a request.
type Tier string

const (
	TierFast Tier = "fast" // movement decisions
	TierChat Tier = "chat" // conversation
	TierTask Tier = "task" // long-form work notes
)

// ParseTier accepts "fast", "chat" or "task".
func ParseTier(s string) (Tier, error) {
	switch t := Tier(s); t {
	case TierFast, TierChat, TierTask:
		return t, nil
	}
	return "", fmt.Errorf("unknown tier %q", s)
}

// TierSettings bounds a single provider call.
type TierSettings struct {
	MaxTokens   int
	Timeout     time.Duration
	Temperature float64
}

// DefaultTierSettings returns the per-tier budgets. Movement decisions are
// short and fail fast; chat and task calls get more room.
func DefaultTierSettings() map[Tier]TierSettings {
	return map[Tier]TierSettings{
		TierFast: {MaxTokens: 150, Timeout: 20 * time.Second, Temperature: 0.8},
		TierChat: {MaxTokens: 600, Timeout: 60 * time.Second, Temperature: 0.7},
		TierTask: {MaxTokens: 1200, Timeout: 90 * time.Second, Temperature: 0.7},
	}
}

// Source names the provider that produced a result.
type Source string

const (
	SourceLocal    Source = "local"
	SourceHaiku    Source = "haiku"
	SourceSonnet   Source = "sonnet"
	SourceFallback Source = "fallback"
)

// Providers lists the sources that can answer, in chain order.
var Providers = []Source{SourceLocal, SourceHaiku, SourceSonnet}

// Result is the outcome of Infer. Response is empty exactly when Source is
// SourceFallback.
type Result struct {
	Response string `json:"response,omitempty"`
	Source   Source `json:"source"`
}

// Fallback is the terminal "nothing worked" sentinel.
func Fallback() Result {
	return Result{Source: SourceFallback}
}

// OK reports whether the result carries usable text.
func (r Result) OK() bool {
	return r.Source != SourceFallback && r.Response != ""
}

// Outcome classifies a single provider attempt.
type Outcome string

const (
	OutcomeSuccess      Outcome = "success"
	OutcomeSkipped      Outcome = "skipped"
	OutcomeError        Outcome = "error"
	OutcomeEmpty        Outcome = "empty"
	OutcomeWrongScript  Outcome = "wrong_script"
	OutcomeRetrySuccess Outcome = "retry_success"
	OutcomeCanned       Outcome = "canned"
	OutcomeExhausted    Outcome = "exhausted"
)

// Answered reports whether the attempt ended the chain with text.
func (o Outcome) Answered() bool {
	return o == OutcomeSuccess || o == OutcomeRetrySuccess || o == OutcomeCanned
}

// Attempt describes one step of the provider chain. It is handed to hooks
// after every step.
type Attempt struct {
	Source   Source
	Tier     Tier
	Outcome  Outcome
	Model    string
	Preview  string
	Err      error
	Duration time.Duration
}
