package main

import "time"

// Test represents a single API test parsed from markdown.
type Test struct {
	Name        string
	Description string
	Method      string
	URL         string
	Headers     map[string]string
	Query       map[string]string
	Body        string
	ContentType string
	Assertions  []Assertion
	SaveFields  []SaveField // Fields to save for use in subsequent tests

	// Engine options parsed from bullet lines. Zero values fall back to the
	// default retry policy (3 retries, 1s delay, 10s timeout, no retriable
	// status codes).
	ExpectStatus  int
	RetryMax      int
	RetryDelay    time.Duration
	Timeout       time.Duration
	RetryOnStatus []int
}

// Assertion represents a single assertion to validate
type Assertion struct {
	Type  string // "status", "body_contains", "field_equals", "duration"
	Field string // for field_equals: the field path (e.g., "data.username")
	Value string // expected value
}

// SaveField represents a field to save from the response
type SaveField struct {
	Field    string // JSON path to extract (e.g., "data.id")
	Variable string // Variable name to save as (e.g., "user_id")
}

// TestFile represents a markdown file containing tests
type TestFile struct {
	Path     string
	Defaults Defaults
	Tests    []Test
}

// Defaults holds suite-level settings parsed from frontmatter
type Defaults struct {
	Root    string
	Headers map[string]string
	Auth    string   // login endpoint; empty disables the auth bootstrap
	Redact  []string // extra sensitive body/param keys to mask in logs
}

// TestStatus is one row of the per-test report table.
type TestStatus struct {
	ID       string
	Name     string
	Status   string // "Passed" or "Failed"
	Duration time.Duration
}

// TestResult holds the outcome of a single test execution
type TestResult struct {
	FilePath  string
	FileIndex int
	Test      Test
	Index     int
	Err       error
	Duration  time.Duration
}
