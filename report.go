package main

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
)

// failureStat is one row of the failure classification table.
type failureStat struct {
	Label string
	Count int
}

// classifyFailures aggregates failure labels, most frequent first.
func classifyFailures(labels []string) []failureStat {
	counts := make(map[string]int)
	for _, label := range labels {
		counts[label]++
	}
	stats := make([]failureStat, 0, len(counts))
	for label, count := range counts {
		stats = append(stats, failureStat{Label: label, Count: count})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Count != stats[j].Count {
			return stats[i].Count > stats[j].Count
		}
		return stats[i].Label < stats[j].Label
	})
	return stats
}

// environmentInfo collects the environment rows shown in both reports.
func environmentInfo(baseURL string) [][]string {
	hostname, _ := os.Hostname()
	return [][]string{
		{"Base API URL", baseURL},
		{"Go Version", runtime.Version()},
		{"Platform", runtime.GOOS + "/" + runtime.GOARCH},
		{"Hostname", hostname},
		{"CPU Cores", strconv.Itoa(runtime.NumCPU())},
		{"Project", envString(envProjectName, "N/A")},
		{"Environment", envString(envEnvironment, "Staging")},
	}
}

func newReportTable(w io.Writer, headers []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(headers)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	return table
}

// writeTextReport renders the document report: summary, failure statistics,
// response-time statistics, per-endpoint timings, the test case list,
// environment and execution info, and the detailed error entries.
func writeTextReport(w io.Writer, rc *RunContext) {
	fmt.Fprintln(w, "AUTOMATED TEST REPORT")
	fmt.Fprintln(w, "Quality Assurance Department")
	fmt.Fprintf(w, "Run ID: %s\n", rc.RunID)
	fmt.Fprintf(w, "Generated on: %s\n\n", time.Now().Format("January 02, 2006 15:04:05"))

	fmt.Fprintln(w, "Summary")
	summary := newReportTable(w, []string{"Total Tests", "Passed", "Failed", "Pass Rate"})
	summary.Append([]string{
		strconv.Itoa(rc.Total()),
		strconv.Itoa(rc.Passed()),
		strconv.Itoa(rc.Failed()),
		fmt.Sprintf("%.1f%%", rc.PassRate()),
	})
	summary.Render()

	// Always shown, even when there is nothing to classify.
	fmt.Fprintln(w, "\nFailure Statistics")
	failures := newReportTable(w, []string{"Error Type", "Count"})
	for _, stat := range classifyFailures(rc.FailureKinds()) {
		failures.Append([]string{stat.Label, strconv.Itoa(stat.Count)})
	}
	failures.Render()

	if stats := rc.Sink.Stats(); stats.Count > 0 {
		fmt.Fprintln(w, "\nResponse Time Statistics")
		timing := newReportTable(w, []string{"Metric", "Value"})
		timing.Append([]string{"Attempts", strconv.Itoa(stats.Count)})
		timing.Append([]string{"Average", fmt.Sprintf("%.3f sec", stats.Average.Seconds())})
		timing.Append([]string{"Median", fmt.Sprintf("%.3f sec", stats.Median.Seconds())})
		timing.Append([]string{"Min", fmt.Sprintf("%.3f sec", stats.Min.Seconds())})
		timing.Append([]string{"Max", fmt.Sprintf("%.3f sec", stats.Max.Seconds())})
		timing.Append([]string{"P90", fmt.Sprintf("%.3f sec", stats.P90.Seconds())})
		timing.Append([]string{"P95", fmt.Sprintf("%.3f sec", stats.P95.Seconds())})
		timing.Append([]string{"P99", fmt.Sprintf("%.3f sec", stats.P99.Seconds())})
		timing.Render()

		fmt.Fprintln(w, "\nEndpoint Response Times")
		endpoints := newReportTable(w, []string{"Method", "Endpoint", "Calls", "Errors", "Average", "Max"})
		for _, summary := range rc.Sink.ByEndpoint() {
			endpoints.Append([]string{
				summary.Method,
				summary.Endpoint,
				strconv.Itoa(summary.Calls),
				strconv.Itoa(summary.Errors),
				fmt.Sprintf("%.3f sec", summary.Average.Seconds()),
				fmt.Sprintf("%.3f sec", summary.Max.Seconds()),
			})
		}
		endpoints.Render()
	}

	fmt.Fprintln(w, "\nDetailed Test Cases")
	cases := newReportTable(w, []string{"Test Case ID", "Test Name", "Status", "Duration (s)"})
	for _, status := range rc.Statuses() {
		cases.Append([]string{
			status.ID,
			status.Name,
			status.Status,
			fmt.Sprintf("%.3f", status.Duration.Seconds()),
		})
	}
	cases.Render()

	fmt.Fprintln(w, "\nEnvironment Information")
	env := newReportTable(w, []string{"Setting", "Value"})
	for _, row := range environmentInfo(rc.BaseURL) {
		env.Append(row)
	}
	env.Render()

	fmt.Fprintln(w, "\nExecution Information")
	minutes := int(rc.EndTime.Sub(rc.StartTime).Minutes())
	seconds := rc.EndTime.Sub(rc.StartTime).Seconds() - float64(minutes)*60
	exec := newReportTable(w, []string{"Event", "Time"})
	exec.Append([]string{"Test Execution Started", rc.StartTime.Format("2006-01-02 15:04:05")})
	exec.Append([]string{"Test Execution Finished", rc.EndTime.Format("2006-01-02 15:04:05")})
	exec.Append([]string{"Total Test Duration", fmt.Sprintf("%d minutes %.2f seconds", minutes, seconds)})
	exec.Render()

	entries := rc.ErrorEntries()
	fmt.Fprintln(w, "\nTest Errors Report")
	fmt.Fprintf(w, "The following %d test(s) encountered errors:\n", len(entries))
	for _, entry := range entries {
		fmt.Fprintln(w, entry)
	}
}

// saveTextReport writes the document report to a file.
func saveTextReport(path string, rc *RunContext) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	writeTextReport(f, rc)
	return nil
}

// saveLines writes the execution log and error log files.
func saveLines(path string, lines []string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	for _, line := range lines {
		if _, err := fmt.Fprintln(f, line); err != nil {
			return err
		}
	}
	return nil
}
