package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ANSI color codes
const (
	colorReset = "\033[0m"
	colorRed   = "\033[31m"
	colorGreen = "\033[32m"
	colorDim   = "\033[2m"
)

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

// RunContext owns all mutable state for a single run: the shared metrics
// sink, the error log entries, per-test statuses, and variables saved between
// tests. It is created per run and passed explicitly; nothing here is static,
// so concurrent runs stay isolated. All appends are mutex-guarded because the
// parallel runner executes cases from multiple goroutines.
type RunContext struct {
	RunID     string
	BaseURL   string
	Sink      *Sink
	StartTime time.Time
	EndTime   time.Time

	mu           sync.Mutex
	vars         map[string]interface{}
	errorEntries []string
	failureKinds []string
	statuses     []TestStatus
	executed     []string
	passed       int
	failed       int
}

func NewRunContext(baseURL string) *RunContext {
	return &RunContext{
		RunID:     uuid.NewString(),
		BaseURL:   baseURL,
		Sink:      NewSink(),
		StartTime: time.Now(),
		vars:      make(map[string]interface{}),
	}
}

func (rc *RunContext) varsSnapshot() map[string]interface{} {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := make(map[string]interface{}, len(rc.vars))
	for k, v := range rc.vars {
		out[k] = v
	}
	return out
}

func (rc *RunContext) setVar(name string, value interface{}) {
	rc.mu.Lock()
	rc.vars[name] = value
	rc.mu.Unlock()
}

func (rc *RunContext) logExecution(status, id string) {
	rc.mu.Lock()
	rc.executed = append(rc.executed, fmt.Sprintf("%s: %s", status, id))
	rc.mu.Unlock()
}

func (rc *RunContext) recordPass(id string, test Test, d time.Duration) {
	rc.mu.Lock()
	rc.passed++
	rc.statuses = append(rc.statuses, TestStatus{ID: id, Name: test.Name, Status: "Passed", Duration: d})
	rc.mu.Unlock()
}

func (rc *RunContext) recordFail(id string, test Test, entry, label string, d time.Duration) {
	rc.mu.Lock()
	rc.failed++
	rc.errorEntries = append(rc.errorEntries, entry)
	rc.failureKinds = append(rc.failureKinds, label)
	rc.statuses = append(rc.statuses, TestStatus{ID: id, Name: test.Name, Status: "Failed", Duration: d})
	rc.mu.Unlock()
}

func (rc *RunContext) Passed() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.passed
}

func (rc *RunContext) Failed() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.failed
}

func (rc *RunContext) Total() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.passed + rc.failed
}

// PassRate is always computed, even when every test fails.
func (rc *RunContext) PassRate() float64 {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	total := rc.passed + rc.failed
	if total == 0 {
		return 0
	}
	return float64(rc.passed) / float64(total) * 100
}

func (rc *RunContext) ErrorEntries() []string {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := make([]string, len(rc.errorEntries))
	copy(out, rc.errorEntries)
	return out
}

func (rc *RunContext) FailureKinds() []string {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := make([]string, len(rc.failureKinds))
	copy(out, rc.failureKinds)
	return out
}

func (rc *RunContext) Statuses() []TestStatus {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := make([]TestStatus, len(rc.statuses))
	copy(out, rc.statuses)
	return out
}

func (rc *RunContext) ExecutionLog() []string {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := make([]string, len(rc.executed))
	copy(out, rc.executed)
	return out
}

// interpolateVariables replaces {{variable}} placeholders with saved values
func interpolateVariables(s string, vars map[string]interface{}) string {
	if vars == nil {
		return s
	}
	result := s
	for name, value := range vars {
		placeholder := "{{" + name + "}}"
		result = strings.ReplaceAll(result, placeholder, fmt.Sprintf("%v", value))
	}
	return result
}

// splitExpectations converts a test's declared checks into the engine's
// expectations bundle. Assertions the engine does not cover (body_contains,
// nested field paths) are returned for lifecycle-level validation.
func splitExpectations(test Test) (Expectations, []Assertion) {
	expect := Expectations{Status: test.ExpectStatus}
	var extra []Assertion

	// Resolve the expected status first; it decides where field checks go.
	for _, assertion := range test.Assertions {
		if assertion.Type == "status" {
			if code, err := strconv.Atoi(assertion.Value); err == nil {
				expect.Status = code
			}
		}
	}

	for _, assertion := range test.Assertions {
		switch assertion.Type {
		case "status":
		case "duration":
			if d, err := time.ParseDuration(strings.TrimSpace(assertion.Value)); err == nil {
				expect.MaxResponseTime = d
			}
		case "field_equals":
			// The engine evaluates JSON checks only under a matched expected
			// status; without one the check must stay at the lifecycle level
			// or it would never run.
			if expect.Status != 0 && !strings.Contains(assertion.Field, ".") {
				if expect.JSONCheck == nil {
					expect.JSONCheck = make(map[string]interface{})
				}
				expect.JSONCheck[assertion.Field] = parseExpectedValue(assertion.Value)
			} else {
				extra = append(extra, assertion)
			}
		default:
			extra = append(extra, assertion)
		}
	}
	return expect, extra
}

// retryPolicyFor builds the retry policy for one test from its options.
func retryPolicyFor(test Test) RetryPolicy {
	policy := DefaultRetryPolicy()
	if test.RetryMax > 0 {
		policy.MaxRetries = test.RetryMax
	}
	if test.RetryDelay > 0 {
		policy.RetryDelay = test.RetryDelay
	}
	if test.Timeout > 0 {
		policy.Timeout = test.Timeout
	}
	policy.RetriableStatusCodes = test.RetryOnStatus
	return policy
}

// executeCase issues the engine call for one test and runs the remaining
// lifecycle-level assertions and field saves against the response.
func (rc *RunContext) executeCase(engine *Engine, redaction RedactionPolicy, test Test) (*Result, error) {
	vars := rc.varsSnapshot()
	test.URL = interpolateVariables(test.URL, vars)
	test.Body = interpolateVariables(test.Body, vars)
	headers := make(map[string]string, len(test.Headers))
	for key, value := range test.Headers {
		headers[key] = interpolateVariables(value, vars)
	}

	spec := RequestSpec{
		Method:      test.Method,
		URL:         test.URL,
		Query:       test.Query,
		Headers:     headers,
		Body:        test.Body,
		ContentType: test.ContentType,
	}
	expect, extra := splitExpectations(test)

	res, err := engine.Execute(spec, expect, retryPolicyFor(test), redaction)
	if err != nil {
		return res, err
	}

	var data map[string]interface{}
	json.Unmarshal(res.Body, &data) // Ignore error - might not be JSON

	for _, assertion := range extra {
		if err := validateAssertion(assertion, data); err != nil {
			return res, err
		}
	}

	// Save fields for use in subsequent tests
	for _, sf := range test.SaveFields {
		value, err := getJSONField(data, sf.Field)
		if err != nil {
			return res, fmt.Errorf("save field failed: %w", err)
		}
		rc.setVar(sf.Variable, value)
	}

	return res, nil
}

// validateAssertion checks a lifecycle-level assertion against the parsed body
func validateAssertion(assertion Assertion, jsonBody map[string]interface{}) error {
	switch assertion.Type {
	case "body_contains":
		if jsonBody == nil {
			return fmt.Errorf("body contains assertion failed: response is not valid JSON")
		}
		if _, exists := jsonBody[assertion.Field]; !exists {
			return fmt.Errorf("body contains assertion failed: field '%s' not found in response", assertion.Field)
		}

	case "field_equals":
		if jsonBody == nil {
			return fmt.Errorf("field equals assertion failed: response is not valid JSON")
		}
		actual, err := getJSONField(jsonBody, assertion.Field)
		if err != nil {
			return fmt.Errorf("field equals assertion failed: %w", err)
		}
		expected := parseExpectedValue(assertion.Value)
		if !valuesEqual(actual, expected) {
			return fmt.Errorf("field equals assertion failed: field '%s' expected %v, got %v", assertion.Field, expected, actual)
		}
	}
	return nil
}

// runCase executes one test through its full lifecycle: execution log entry,
// engine call, failure capture. A failing test is recorded and the run
// continues; the error is returned only for the console printer.
func (rc *RunContext) runCase(engine *Engine, redaction RedactionPolicy, id string, test Test) error {
	rc.logExecution("ATTEMPTING", id)
	start := time.Now()
	res, err := rc.executeCase(engine, redaction, test)
	d := time.Since(start)

	if err != nil {
		entry := failureEntry(test, res, err, redaction)
		logger.Error("test failed",
			zap.String("test", test.Name),
			zap.String("kind", errorKind(err)),
			zap.Error(err),
		)
		rc.recordFail(id, test, entry, failureLabel(err), d)
		rc.logExecution("  ERROR", fmt.Sprintf("%s (%s)", id, errorKind(err)))
		return err
	}

	rc.recordPass(id, test, d)
	rc.logExecution("  SUCCESS", id)
	return nil
}

// failureEntry formats one error log entry for a failed test. The request
// body is masked through the redaction policy before it reaches the entry;
// the response content is truncated like the rest of the log output.
func failureEntry(test Test, res *Result, err error, redaction RedactionPolicy) string {
	description := test.Description
	if description == "" {
		description = "No description available"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\nTest Description: %s\n", description)
	fmt.Fprintf(&b, "Test: %s\n", test.Name)
	fmt.Fprintf(&b, "Error Type: %s\n", errorKind(err))
	fmt.Fprintf(&b, "Error Message: %s\n", err.Error())

	if test.Body != "" {
		body := sanitizedBody(RequestSpec{Body: test.Body, ContentType: test.ContentType}, redaction.SensitiveKeys)
		if formatted, merr := json.MarshalIndent(body, "", "  "); merr == nil {
			fmt.Fprintf(&b, "\nRequest Body:\n%s\n", formatted)
		} else {
			fmt.Fprintf(&b, "\nRequest Body:\n%v\n", body)
		}
	}

	if res != nil {
		content := string(res.Body)
		var pretty interface{}
		if jerr := json.Unmarshal(res.Body, &pretty); jerr == nil {
			if formatted, merr := json.MarshalIndent(pretty, "", "  "); merr == nil {
				content = string(formatted)
			}
		}
		if len(content) > 500 {
			content = content[:497] + "..."
		}
		fmt.Fprintf(&b, "\nResponse Status: %d\nResponse URL: %s\nResponse Content:\n%s\n", res.StatusCode, res.URL, content)
	}

	b.WriteString("----------------------------------------\n")
	return b.String()
}

// caseID builds the identifier used in the execution log and report tables.
func caseID(filePath string, index int, test Test) string {
	base := strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	return fmt.Sprintf("%s.%02d.%s", base, index+1, strings.ReplaceAll(test.Name, " ", "_"))
}

// runTestsSequential runs all tests one after another
func runTestsSequential(rc *RunContext, engines []*Engine, redactions []RedactionPolicy, testFiles []TestFile) {
	for fi, tf := range testFiles {
		fileStart := time.Now()

		if len(testFiles) > 1 {
			fmt.Printf("%s\n", tf.Path)
		}

		for ti, test := range tf.Tests {
			if err := rc.runCase(engines[fi], redactions[fi], caseID(tf.Path, ti, test), test); err != nil {
				fmt.Printf("  %s✗%s %s\n", colorRed, colorReset, test.Name)
				fmt.Printf("    %s→ %v%s\n", colorRed, err, colorReset)
			} else {
				fmt.Printf("  %s✓%s %s\n", colorGreen, colorReset, test.Name)
			}
		}

		fileDuration := time.Since(fileStart)
		if len(testFiles) > 1 {
			fmt.Printf("  %s%s%s\n\n", colorDim, formatDuration(fileDuration), colorReset)
		}
	}

	if len(testFiles) == 1 {
		fmt.Println()
	}
}

// runTestsParallel runs all tests concurrently, limited by CPU cores.
// Saved variables are not propagated between parallel tests; suites that
// chain requests should run sequentially.
func runTestsParallel(rc *RunContext, engines []*Engine, redactions []RedactionPolicy, testFiles []TestFile) {
	maxWorkers := runtime.NumCPU()
	sem := make(chan struct{}, maxWorkers)

	type testJob struct {
		filePath  string
		fileIndex int
		testIndex int
		test      Test
	}

	var jobs []testJob
	for fi, tf := range testFiles {
		for ti, test := range tf.Tests {
			jobs = append(jobs, testJob{
				filePath:  tf.Path,
				fileIndex: fi,
				testIndex: ti,
				test:      test,
			})
		}
	}

	results := make([]TestResult, len(jobs))
	var wg sync.WaitGroup

	for i, job := range jobs {
		wg.Add(1)
		go func(idx int, j testJob) {
			defer wg.Done()
			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			start := time.Now()
			err := rc.runCase(engines[j.fileIndex], redactions[j.fileIndex], caseID(j.filePath, j.testIndex, j.test), j.test)
			results[idx] = TestResult{
				FilePath:  j.filePath,
				FileIndex: j.fileIndex,
				Test:      j.test,
				Index:     idx,
				Err:       err,
				Duration:  time.Since(start),
			}
		}(i, job)
	}

	wg.Wait()

	// Calculate per-file durations (max test duration since they run in parallel)
	fileDurations := make(map[int]time.Duration)
	for _, result := range results {
		if result.Duration > fileDurations[result.FileIndex] {
			fileDurations[result.FileIndex] = result.Duration
		}
	}

	// Print results in order, grouped by file
	currentFile := ""
	currentFileIndex := -1
	for i, job := range jobs {
		if len(testFiles) > 1 && job.filePath != currentFile {
			// Print previous file's duration
			if currentFile != "" {
				fmt.Printf("  %s%s%s\n\n", colorDim, formatDuration(fileDurations[currentFileIndex]), colorReset)
			}
			fmt.Printf("%s\n", job.filePath)
			currentFile = job.filePath
			currentFileIndex = job.fileIndex
		}

		result := results[i]
		if result.Err != nil {
			fmt.Printf("  %s✗%s %s\n", colorRed, colorReset, result.Test.Name)
			fmt.Printf("    %s→ %v%s\n", colorRed, result.Err, colorReset)
		} else {
			fmt.Printf("  %s✓%s %s\n", colorGreen, colorReset, result.Test.Name)
		}
	}

	// Print last file's duration if multiple files
	if len(testFiles) > 1 {
		fmt.Printf("  %s%s%s\n\n", colorDim, formatDuration(fileDurations[currentFileIndex]), colorReset)
	} else {
		fmt.Println()
	}
}

// collectTestFiles gathers all test files from a file or directory path
func collectTestFiles(path string) ([]TestFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	var testFiles []TestFile

	if info.IsDir() {
		// Walk directory recursively for .md files
		err := filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !info.IsDir() && strings.HasSuffix(p, ".md") {
				content, err := os.ReadFile(p)
				if err != nil {
					return err
				}
				baseDir := filepath.Dir(p)
				defaults, tests := parseTests(string(content), baseDir)
				if len(tests) > 0 {
					testFiles = append(testFiles, TestFile{Path: p, Defaults: defaults, Tests: tests})
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		// Sort by path for consistent ordering
		sort.Slice(testFiles, func(i, j int) bool {
			return testFiles[i].Path < testFiles[j].Path
		})
	} else {
		// Single file
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		baseDir := filepath.Dir(path)
		defaults, tests := parseTests(string(content), baseDir)
		if len(tests) > 0 {
			testFiles = append(testFiles, TestFile{Path: path, Defaults: defaults, Tests: tests})
		}
	}

	return testFiles, nil
}

// getJSONField retrieves a nested field from JSON using dot notation
func getJSONField(data map[string]interface{}, path string) (interface{}, error) {
	parts := strings.Split(path, ".")
	var current interface{} = data

	for _, part := range parts {
		switch v := current.(type) {
		case map[string]interface{}:
			var exists bool
			current, exists = v[part]
			if !exists {
				return nil, fmt.Errorf("field '%s' not found", path)
			}
		default:
			return nil, fmt.Errorf("cannot traverse into non-object at '%s'", part)
		}
	}

	return current, nil
}

// parseExpectedValue converts an assertion value string to the appropriate type
func parseExpectedValue(value string) interface{} {
	// Handle quoted strings: "value" -> value
	if strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`) {
		return strings.Trim(value, `"`)
	}

	// Handle booleans
	if value == "true" {
		return true
	}
	if value == "false" {
		return false
	}

	// Handle numbers
	if i, err := strconv.ParseInt(value, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}

	// Default to string
	return value
}
