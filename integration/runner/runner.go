package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/jwebster45206/arq-village/pkg/activity"
)

type ErrorHandlingMode string

const ErrorHandlingExit ErrorHandlingMode = "exit"
const ErrorHandlingContinue ErrorHandlingMode = "continue"

// Runner executes integration tests against a running Arq Village API
type Runner struct {
	BaseURL           string
	Client            *http.Client
	Timeout           time.Duration
	Logger            func(format string, args ...any)
	ErrorHandlingMode ErrorHandlingMode
}

// NewRunner creates a new test runner
func NewRunner(baseURL string) *Runner {
	return &Runner{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		// chat may walk the whole provider chain
		Client:            &http.Client{Timeout: 3 * time.Minute},
		Timeout:           ActivityTimeout,
		Logger:            func(string, ...any) {},
		ErrorHandlingMode: ErrorHandlingContinue,
	}
}

// LoadTestSuite loads a test suite from a JSON file
func LoadTestSuite(filename string) (TestSuite, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return TestSuite{}, fmt.Errorf("failed to read test file %s: %w", filename, err)
	}

	var suite TestSuite
	if err := json.Unmarshal(content, &suite); err != nil {
		return TestSuite{}, fmt.Errorf("failed to parse JSON in %s: %w", filename, err)
	}

	return suite, nil
}

// LoadTestSuiteWithExpansion loads a test suite and expands it if it's a sequence.
func LoadTestSuiteWithExpansion(filename string, casesDir string) ([]TestJob, error) {
	suite, err := LoadTestSuite(filename)
	if err != nil {
		return nil, err
	}

	if !suite.IsSequence() {
		return []TestJob{{
			Name:     suite.Name,
			Suite:    suite,
			CaseFile: filename,
		}}, nil
	}

	var jobs []TestJob
	for _, caseFile := range suite.Cases {
		casePath := filepath.Join(casesDir, caseFile)

		// a sequence may reference another sequence
		subJobs, err := LoadTestSuiteWithExpansion(casePath, casesDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load case '%s' referenced by sequence '%s': %w", caseFile, suite.Name, err)
		}

		jobs = append(jobs, subJobs...)
	}

	return jobs, nil
}

// RunSuite executes a complete test suite
func (r *Runner) RunSuite(ctx context.Context, suite TestSuite) (TestRunResult, error) {
	start := time.Now()
	result := TestRunResult{
		Job: TestJob{
			Name:  suite.Name,
			Suite: suite,
		},
		Results: make([]TestResult, 0, len(suite.Steps)),
	}

	for i, step := range suite.Steps {
		r.Logger("    [%d/%d] Running step: %s", i+1, len(suite.Steps), step.Name)
		stepResult := r.runStep(ctx, step)
		result.Results = append(result.Results, stepResult)

		if stepResult.Error != nil {
			r.Logger("    [%d/%d] ✗ %s: %v", i+1, len(suite.Steps), step.Name, stepResult.Error)
			if result.Error == nil {
				result.Error = fmt.Errorf("step %d (%s) failed: %w", i, step.Name, stepResult.Error)
			}
			if r.ErrorHandlingMode == ErrorHandlingExit {
				break
			}
			continue
		}

		r.Logger("    [%d/%d] ✓ %s (%v)", i+1, len(suite.Steps), step.Name, stepResult.Duration)
	}

	result.Duration = time.Since(start)
	return result, result.Error
}

// runStep executes a single step, retrying once when an activity wait times out.
func (r *Runner) runStep(ctx context.Context, step TestStep) TestResult {
	var result TestResult
	for attempt := 1; attempt <= 2; attempt++ {
		result = r.executeStep(ctx, step)
		if result.Success || result.Error == nil {
			return result
		}
		if attempt == 1 && strings.Contains(result.Error.Error(), "timeout waiting for") {
			r.Logger("    Timeout detected, retrying step: %s", step.Name)
			continue
		}
		return result
	}
	return result
}

func (r *Runner) executeStep(ctx context.Context, step TestStep) TestResult {
	start := time.Now()
	result := TestResult{StepName: step.Name}
	fail := func(err error) TestResult {
		result.Error = err
		result.Duration = time.Since(start)
		return result
	}

	status, body, err := r.do(ctx, step)
	if err != nil {
		return fail(err)
	}
	result.StatusCode = status
	result.ResponseText = body

	if err := checkExpectations(step.Expectations, status, body); err != nil {
		return fail(fmt.Errorf("expectation failed: %w", err))
	}

	if step.WaitFor != nil {
		timeout := r.Timeout
		if step.WaitFor.TimeoutSeconds > 0 {
			timeout = time.Duration(step.WaitFor.TimeoutSeconds) * time.Second
		}
		entry, err := PollForActivity(ctx, r.Client, r.BaseURL, activity.Kind(step.WaitFor.Kind), start.UTC().Add(-time.Second), timeout)
		if err != nil {
			return fail(err)
		}
		result.Waited = true
		r.Logger("      %s %s", entry.Icon, entry.Text)
	}

	result.Success = true
	result.Duration = time.Since(start)
	return result
}

func (r *Runner) do(ctx context.Context, step TestStep) (int, string, error) {
	method := step.Method
	if method == "" {
		method = http.MethodGet
	}

	var reqBody io.Reader
	if len(step.Body) > 0 {
		reqBody = bytes.NewReader(step.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.BaseURL+step.Path, reqBody)
	if err != nil {
		return 0, "", fmt.Errorf("failed to create %s request: %w", method, err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.Client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("failed to send %s %s: %w", method, step.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, "", fmt.Errorf("failed to read response body: %w", err)
	}
	return resp.StatusCode, string(body), nil
}

// checkExpectations compares a response against the step's expectations.
func checkExpectations(expect Expectations, status int, body string) error {
	wantStatus := http.StatusOK
	if expect.Status != nil {
		wantStatus = *expect.Status
	}
	if status != wantStatus {
		return fmt.Errorf("expected status %d, got %d: %s", wantStatus, status, body)
	}

	for _, s := range expect.ResponseContains {
		if !strings.Contains(body, s) {
			return fmt.Errorf("response does not contain %q", s)
		}
	}
	for _, s := range expect.ResponseNotContains {
		if strings.Contains(body, s) {
			return fmt.Errorf("response unexpectedly contains %q", s)
		}
	}
	if expect.ResponseRegex != "" {
		re, err := regexp.Compile(expect.ResponseRegex)
		if err != nil {
			return fmt.Errorf("invalid response_regex %q: %w", expect.ResponseRegex, err)
		}
		if !re.MatchString(body) {
			return fmt.Errorf("response does not match %q", expect.ResponseRegex)
		}
	}
	if expect.ResponseMinLength != nil && len(body) < *expect.ResponseMinLength {
		return fmt.Errorf("response length %d is below %d", len(body), *expect.ResponseMinLength)
	}

	if len(expect.Fields) == 0 && len(expect.SourceIn) == 0 {
		return nil
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return fmt.Errorf("response is not a JSON object: %w", err)
	}
	for key, want := range expect.Fields {
		got, _ := fields[key].(string)
		if got != want {
			return fmt.Errorf("field %q: expected %q, got %q", key, want, got)
		}
	}
	if len(expect.SourceIn) > 0 {
		source, _ := fields["source"].(string)
		if !slices.Contains(expect.SourceIn, source) {
			return fmt.Errorf("source %q is not one of %v", source, expect.SourceIn)
		}
	}
	return nil
}
