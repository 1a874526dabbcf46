package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseFrontmatter(t *testing.T) {
	tests := []struct {
		name            string
		content         string
		expectedRoot    string
		expectedAuth    string
		expectedHeaders map[string]string
		expectedRedact  []string
	}{
		{
			name: "basic frontmatter with headers",
			content: `---
headers:
  Accept: application/json
  X-Custom: test
---

## Test 1`,
			expectedHeaders: map[string]string{
				"Accept":   "application/json",
				"X-Custom": "test",
			},
		},
		{
			name:            "no frontmatter",
			content:         "## Test 1\nGET https://example.com",
			expectedHeaders: map[string]string{},
		},
		{
			name: "frontmatter with root",
			content: `---
root: https://api.example.com/
---

## Test 1`,
			expectedRoot:    "https://api.example.com",
			expectedHeaders: map[string]string{},
		},
		{
			name: "frontmatter with auth endpoint",
			content: `---
root: https://api.example.com
auth: /sessions
---

## Test 1`,
			expectedRoot:    "https://api.example.com",
			expectedAuth:    "/sessions",
			expectedHeaders: map[string]string{},
		},
		{
			name: "frontmatter with auto auth",
			content: `---
auth: auto
---

## Test 1`,
			expectedAuth:    "auto",
			expectedHeaders: map[string]string{},
		},
		{
			name: "frontmatter with redact keys",
			content: `---
redact:
  - ssn
  - credit_card
---

## Test 1`,
			expectedHeaders: map[string]string{},
			expectedRedact:  []string{"ssn", "credit_card"},
		},
		{
			name: "unclosed frontmatter",
			content: `---
headers:
  Accept: application/json
## Test 1`,
			expectedHeaders: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defaults, _ := parseFrontmatter(tt.content)

			if defaults.Root != tt.expectedRoot {
				t.Errorf("expected root %q, got %q", tt.expectedRoot, defaults.Root)
			}
			if defaults.Auth != tt.expectedAuth {
				t.Errorf("expected auth %q, got %q", tt.expectedAuth, defaults.Auth)
			}
			if len(defaults.Headers) != len(tt.expectedHeaders) {
				t.Errorf("expected %d headers, got %d", len(tt.expectedHeaders), len(defaults.Headers))
			}
			for key, expected := range tt.expectedHeaders {
				if defaults.Headers[key] != expected {
					t.Errorf("expected header %s=%q, got %q", key, expected, defaults.Headers[key])
				}
			}
			if len(defaults.Redact) != len(tt.expectedRedact) {
				t.Fatalf("expected %d redact keys, got %d", len(tt.expectedRedact), len(defaults.Redact))
			}
			for i, key := range tt.expectedRedact {
				if defaults.Redact[i] != key {
					t.Errorf("expected redact key %q, got %q", key, defaults.Redact[i])
				}
			}
		})
	}
}

func TestParseTests(t *testing.T) {
	content := `# My API Tests

## Get user
Fetches a single user record.
GET https://api.example.com/users/1

Asserts:
- Status is 200
- Body contains ` + "`name`" + `

## Create user
POST https://api.example.com/users
- Content-Type: application/json

` + "```json" + `
{"name": "test"}
` + "```" + `

Asserts:
- Status is 201
`

	_, tests := parseTests(content, ".")

	if len(tests) != 2 {
		t.Fatalf("expected 2 tests, got %d", len(tests))
	}

	first := tests[0]
	if first.Name != "Get user" {
		t.Errorf("expected name 'Get user', got %q", first.Name)
	}
	if first.Description != "Fetches a single user record." {
		t.Errorf("expected description, got %q", first.Description)
	}
	if first.Method != "GET" {
		t.Errorf("expected GET, got %s", first.Method)
	}
	if len(first.Assertions) != 2 {
		t.Errorf("expected 2 assertions, got %d", len(first.Assertions))
	}

	second := tests[1]
	if second.Method != "POST" {
		t.Errorf("expected POST, got %s", second.Method)
	}
	if second.Body != `{"name": "test"}` {
		t.Errorf("unexpected body %q", second.Body)
	}
	if second.ContentType != "application/json" {
		t.Errorf("expected json content type, got %q", second.ContentType)
	}
}

func TestParseTestBlockRelativeURLs(t *testing.T) {
	defaults := Defaults{Root: "https://api.example.com", Headers: map[string]string{}}

	tests := []struct {
		name        string
		content     string
		expectedURL string
	}{
		{
			name:        "leading slash",
			content:     "GET /users",
			expectedURL: "https://api.example.com/users",
		},
		{
			name:        "no leading slash",
			content:     "GET users",
			expectedURL: "https://api.example.com/users",
		},
		{
			name:        "absolute URL ignores root",
			content:     "GET https://other.example.com/x",
			expectedURL: "https://other.example.com/x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			test := parseTestBlock("T", tt.content, defaults, ".")
			if test.URL != tt.expectedURL {
				t.Errorf("expected URL %q, got %q", tt.expectedURL, test.URL)
			}
		})
	}
}

func TestParseTestBlockOptions(t *testing.T) {
	content := `GET https://api.example.com/flaky
- Accept: application/json
- Expect status 404
- Retry 5 times every 100ms
- Retry on status 502, 503
- Timeout: 3s
- Query limit: 10
`

	test := parseTestBlock("Options", content, Defaults{Headers: map[string]string{}}, ".")

	if test.Headers["Accept"] != "application/json" {
		t.Errorf("expected Accept header, got %q", test.Headers["Accept"])
	}
	if test.ExpectStatus != 404 {
		t.Errorf("expected status 404, got %d", test.ExpectStatus)
	}
	if test.RetryMax != 5 {
		t.Errorf("expected 5 retries, got %d", test.RetryMax)
	}
	if test.RetryDelay != 100*time.Millisecond {
		t.Errorf("expected 100ms delay, got %v", test.RetryDelay)
	}
	if len(test.RetryOnStatus) != 2 || test.RetryOnStatus[0] != 502 || test.RetryOnStatus[1] != 503 {
		t.Errorf("expected retriable [502 503], got %v", test.RetryOnStatus)
	}
	if test.Timeout != 3*time.Second {
		t.Errorf("expected 3s timeout, got %v", test.Timeout)
	}
	if test.Query["limit"] != "10" {
		t.Errorf("expected query limit=10, got %v", test.Query)
	}

	// Options must not leak into headers.
	for _, key := range []string{"Expect status 404", "Timeout", "Query limit"} {
		if _, ok := test.Headers[key]; ok {
			t.Errorf("option %q parsed as header", key)
		}
	}
}

func TestParseTestBlockDefaultHeaders(t *testing.T) {
	defaults := Defaults{
		Root: "https://api.example.com",
		Headers: map[string]string{
			"Accept":       "application/json",
			"Content-Type": "application/xml",
		},
	}

	content := `POST /items
- Content-Type: application/json
`
	test := parseTestBlock("T", content, defaults, ".")

	if test.Headers["Accept"] != "application/json" {
		t.Errorf("default header not applied: %v", test.Headers)
	}
	if test.Headers["Content-Type"] != "application/json" {
		t.Errorf("per-test header did not override default: %v", test.Headers)
	}
	if test.ContentType != "application/json" {
		t.Errorf("expected content type from override, got %q", test.ContentType)
	}
}

func TestParseTestBlockFormBody(t *testing.T) {
	content := `POST https://api.example.com/submit

` + "```form" + `
username=alice
password=secret
` + "```" + `
`
	test := parseTestBlock("Form", content, Defaults{Headers: map[string]string{}}, ".")

	if test.ContentType != "application/x-www-form-urlencoded" {
		t.Errorf("expected form content type, got %q", test.ContentType)
	}
	if test.Body != "username=alice\npassword=secret" {
		t.Errorf("unexpected body %q", test.Body)
	}
}

func TestParseTestBlockFileReference(t *testing.T) {
	dir := t.TempDir()
	payload := `{"from": "file"}`
	if err := os.WriteFile(filepath.Join(dir, "payload.json"), []byte(payload), 0o644); err != nil {
		t.Fatal(err)
	}

	content := "POST https://api.example.com/items\n\n```json\nFILE: payload.json\n```\n"
	test := parseTestBlock("File", content, Defaults{Headers: map[string]string{}}, dir)

	if test.Body != payload {
		t.Errorf("expected file contents as body, got %q", test.Body)
	}
}

func TestParseAssertions(t *testing.T) {
	content := `GET /x

Asserts:
- Status is 200
- Body contains ` + "`data`" + `
- Field ` + "`data.id`" + ` equals ` + "`7`" + `
- Duration less than 500ms
- Save ` + "`data.id`" + ` as ` + "`item_id`" + `

Some trailing prose.
`

	assertions, saves := parseAssertions(content)

	if len(assertions) != 4 {
		t.Fatalf("expected 4 assertions, got %d", len(assertions))
	}
	if assertions[0].Type != "status" || assertions[0].Value != "200" {
		t.Errorf("unexpected status assertion: %+v", assertions[0])
	}
	if assertions[1].Type != "body_contains" || assertions[1].Field != "data" {
		t.Errorf("unexpected body_contains assertion: %+v", assertions[1])
	}
	if assertions[2].Type != "field_equals" || assertions[2].Field != "data.id" || assertions[2].Value != "7" {
		t.Errorf("unexpected field_equals assertion: %+v", assertions[2])
	}
	if assertions[3].Type != "duration" || assertions[3].Value != "500ms" {
		t.Errorf("unexpected duration assertion: %+v", assertions[3])
	}

	if len(saves) != 1 {
		t.Fatalf("expected 1 save, got %d", len(saves))
	}
	if saves[0].Field != "data.id" || saves[0].Variable != "item_id" {
		t.Errorf("unexpected save field: %+v", saves[0])
	}
}

func TestParseAssertionsNoSection(t *testing.T) {
	assertions, saves := parseAssertions("GET /x\njust text")
	if len(assertions) != 0 || len(saves) != 0 {
		t.Errorf("expected no assertions without a section, got %v %v", assertions, saves)
	}
}

func TestParseExpectedValue(t *testing.T) {
	tests := []struct {
		input    string
		expected interface{}
	}{
		{`"42"`, "42"},
		{"true", true},
		{"false", false},
		{"42", int64(42)},
		{"3.14", 3.14},
		{"hello", "hello"},
	}

	for _, tt := range tests {
		if got := parseExpectedValue(tt.input); got != tt.expected {
			t.Errorf("parseExpectedValue(%q) = %v (%T), want %v (%T)", tt.input, got, got, tt.expected, tt.expected)
		}
	}
}
