package runner

import (
	"encoding/json"
	"time"
)

// TestSuite defines a complete integration test scenario.
// Either Steps are run in order, or Cases names other case files to sequence.
type TestSuite struct {
	Name  string     `json:"name"`
	Steps []TestStep `json:"steps,omitempty"`
	Cases []string   `json:"cases,omitempty"`
}

// IsSequence returns true if this is a suite that sequences other cases
func (ts *TestSuite) IsSequence() bool {
	return len(ts.Cases) > 0
}

// TestStep is one request against the API and its expected outcome.
// A step with WaitFor set polls the activity log after the request.
type TestStep struct {
	Name         string          `json:"name,omitempty"`
	Method       string          `json:"method,omitempty"` // defaults to GET
	Path         string          `json:"path"`
	Body         json.RawMessage `json:"body,omitempty"`
	WaitFor      *WaitFor        `json:"wait_for,omitempty"`
	Expectations Expectations    `json:"expect"`
}

// WaitFor waits for an activity entry of Kind logged after the request.
type WaitFor struct {
	Kind           string `json:"kind"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

// Expectations defines what to check after a step executes
type Expectations struct {
	Status *int `json:"status,omitempty"` // defaults to 200

	// Top-level JSON string fields, e.g. {"location": "plaza"}
	Fields map[string]string `json:"fields,omitempty"`
	// Allowed values for the "source" field of a chat reply
	SourceIn []string `json:"source_in,omitempty"`

	ResponseContains    []string `json:"response_contains,omitempty"`
	ResponseNotContains []string `json:"response_not_contains,omitempty"`
	ResponseRegex       string   `json:"response_regex,omitempty"`
	ResponseMinLength   *int     `json:"response_min_length,omitempty"`
}

// TestResult contains the outcome of running a test step
type TestResult struct {
	StepName     string
	Success      bool
	Error        error
	Duration     time.Duration
	StatusCode   int
	ResponseText string
	Waited       bool // true if the step polled the activity log
}

// TestJob represents a test suite to be executed
type TestJob struct {
	Name     string
	Suite    TestSuite
	CaseFile string
}

// TestRunResult contains the results of running an entire test suite
type TestRunResult struct {
	Job      TestJob
	Results  []TestResult
	Error    error
	Duration time.Duration
}
