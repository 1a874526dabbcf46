package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reportRunContext() *RunContext {
	rc := NewRunContext("https://api.example.com")
	rc.StartTime = time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	rc.EndTime = rc.StartTime.Add(90 * time.Second)

	rc.recordPass("suite.01.Get_user", Test{Name: "Get user"}, 120*time.Millisecond)
	rc.recordFail("suite.02.Create_user", Test{Name: "Create user"},
		"\nTest: Create user\nError Type: UnexpectedStatus\n----------------------------------------\n",
		"Unexpected Status (500)", 80*time.Millisecond)

	rc.Sink.Append(AttemptRecord{Endpoint: "users/1", Method: "GET", StatusCode: 200, Duration: 120 * time.Millisecond, Attempt: 1})
	rc.Sink.Append(AttemptRecord{Endpoint: "users", Method: "POST", StatusCode: 500, Duration: 80 * time.Millisecond, Attempt: 1})
	return rc
}

func TestClassifyFailures(t *testing.T) {
	stats := classifyFailures([]string{
		"Unexpected Status (500)",
		"Latency Exceeded",
		"Unexpected Status (500)",
	})

	require.Len(t, stats, 2)
	assert.Equal(t, "Unexpected Status (500)", stats[0].Label)
	assert.Equal(t, 2, stats[0].Count)
	assert.Equal(t, "Latency Exceeded", stats[1].Label)
	assert.Equal(t, 1, stats[1].Count)
}

func TestClassifyFailuresEmpty(t *testing.T) {
	assert.Empty(t, classifyFailures(nil))
}

func TestEnvironmentInfo(t *testing.T) {
	t.Setenv(envProjectName, "Checkout API")
	t.Setenv(envEnvironment, "QA")

	rows := environmentInfo("https://api.example.com")
	values := make(map[string]string, len(rows))
	for _, row := range rows {
		values[row[0]] = row[1]
	}

	assert.Equal(t, "https://api.example.com", values["Base API URL"])
	assert.Equal(t, "Checkout API", values["Project"])
	assert.Equal(t, "QA", values["Environment"])
	assert.NotEmpty(t, values["Go Version"])
	assert.NotEmpty(t, values["Platform"])
}

func TestWriteTextReport(t *testing.T) {
	rc := reportRunContext()

	var buf bytes.Buffer
	writeTextReport(&buf, rc)
	out := buf.String()

	assert.Contains(t, out, "AUTOMATED TEST REPORT")
	assert.Contains(t, out, rc.RunID)
	assert.Contains(t, out, "50.0%")
	assert.Contains(t, out, "Unexpected Status (500)")
	assert.Contains(t, out, "Response Time Statistics")
	assert.Contains(t, out, "users/1")
	assert.Contains(t, out, "suite.02.Create_user")
	assert.Contains(t, out, "Environment Information")
	assert.Contains(t, out, "1 minutes 30.00 seconds")
	assert.Contains(t, out, "The following 1 test(s) encountered errors:")
	assert.Contains(t, out, "Error Type: UnexpectedStatus")
}

func TestWriteTextReportEmptyRun(t *testing.T) {
	rc := NewRunContext("https://api.example.com")
	rc.EndTime = rc.StartTime

	var buf bytes.Buffer
	writeTextReport(&buf, rc)
	out := buf.String()

	assert.Contains(t, out, "Failure Statistics")
	assert.NotContains(t, out, "Response Time Statistics")
	assert.Contains(t, out, "The following 0 test(s) encountered errors:")
}

func TestWriteHTMLReport(t *testing.T) {
	rc := reportRunContext()

	var buf bytes.Buffer
	require.NoError(t, writeHTMLReport(&buf, rc))
	out := buf.String()

	assert.Contains(t, out, "<title>Automated Test Report</title>")
	assert.Contains(t, out, rc.RunID)
	assert.Contains(t, out, "50.0%")
	assert.Contains(t, out, "Unexpected Status (500)")
	assert.Contains(t, out, "users/1")
	assert.Contains(t, out, `class="status-failed"`)
	assert.Contains(t, out, `class="status-passed"`)
	assert.Contains(t, out, "error-entry")
}

func TestWriteHTMLReportEscapesContent(t *testing.T) {
	rc := NewRunContext("https://api.example.com")
	rc.EndTime = rc.StartTime
	rc.recordFail("s.01.x", Test{Name: "<script>alert(1)</script>"},
		"entry with <script>", "Other Errors", time.Millisecond)

	var buf bytes.Buffer
	require.NoError(t, writeHTMLReport(&buf, rc))
	out := buf.String()

	assert.NotContains(t, out, "<script>alert(1)</script>")
	assert.Contains(t, out, "&lt;script&gt;")
}

func TestSaveReports(t *testing.T) {
	rc := reportRunContext()
	dir := t.TempDir()

	textPath := filepath.Join(dir, "report.txt")
	require.NoError(t, saveTextReport(textPath, rc))
	content, err := os.ReadFile(textPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "AUTOMATED TEST REPORT")

	htmlPath := filepath.Join(dir, "report.html")
	require.NoError(t, saveHTMLReport(htmlPath, rc))
	content, err = os.ReadFile(htmlPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "<!DOCTYPE html>")
}

func TestSaveLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "executed_tests.log")
	require.NoError(t, saveLines(path, []string{"ATTEMPTING: a", "  SUCCESS: a"}))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ATTEMPTING: a\n  SUCCESS: a\n", string(content))
}
