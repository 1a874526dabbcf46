package main

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"os"
	"time"
)

//go:embed templates/report.html
var templateFS embed.FS

var reportTemplate = template.Must(
	template.New("report.html").
		Funcs(template.FuncMap{
			"seconds": func(d time.Duration) string {
				return fmt.Sprintf("%.3f sec", d.Seconds())
			},
		}).
		ParseFS(templateFS, "templates/report.html"),
)

type htmlMeta struct {
	Project     string
	Environment string
	BaseURL     string
	RunID       string
	Generated   string
}

type htmlSummary struct {
	Total    int
	Passed   int
	Failed   int
	PassRate float64
}

type htmlExecution struct {
	Start    string
	End      string
	Duration string
}

type htmlReportData struct {
	Meta         htmlMeta
	Summary      htmlSummary
	FailureStats []failureStat
	HasAttempts  bool
	Stats        DurationStats
	Endpoints    []EndpointSummary
	TestCases    []TestStatus
	Environment  [][]string
	Execution    htmlExecution
	Errors       []string
}

// writeHTMLReport renders the HTML report from the run context.
func writeHTMLReport(w io.Writer, rc *RunContext) error {
	stats := rc.Sink.Stats()
	duration := rc.EndTime.Sub(rc.StartTime)
	minutes := int(duration.Minutes())
	seconds := duration.Seconds() - float64(minutes)*60

	data := htmlReportData{
		Meta: htmlMeta{
			Project:     envString(envProjectName, "N/A"),
			Environment: envString(envEnvironment, "Staging"),
			BaseURL:     rc.BaseURL,
			RunID:       rc.RunID,
			Generated:   time.Now().Format("January 02, 2006 15:04:05"),
		},
		Summary: htmlSummary{
			Total:    rc.Total(),
			Passed:   rc.Passed(),
			Failed:   rc.Failed(),
			PassRate: rc.PassRate(),
		},
		FailureStats: classifyFailures(rc.FailureKinds()),
		HasAttempts:  stats.Count > 0,
		Stats:        stats,
		Endpoints:    rc.Sink.ByEndpoint(),
		TestCases:    rc.Statuses(),
		Environment:  environmentInfo(rc.BaseURL),
		Execution: htmlExecution{
			Start:    rc.StartTime.Format("2006-01-02 15:04:05"),
			End:      rc.EndTime.Format("2006-01-02 15:04:05"),
			Duration: fmt.Sprintf("%d minutes %.2f seconds", minutes, seconds),
		},
		Errors: rc.ErrorEntries(),
	}
	return reportTemplate.Execute(w, data)
}

// saveHTMLReport writes the HTML report to a file.
func saveHTMLReport(path string, rc *RunContext) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return writeHTMLReport(f, rc)
}
