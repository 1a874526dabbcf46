package main

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Output files, mirroring the log/report layout the harness always produced.
const (
	defaultErrorLogFile    = "test_errors.log"
	defaultExecutedLogFile = "executed_tests.log"
	defaultReportFile      = "test_report.txt"
	defaultHTMLReportFile  = "test_report.html"
)

// Environment keys consumed at startup. TEST_USER and TEST_PASSWORD feed the
// auth bootstrap; the rest annotate the generated reports.
const (
	envTestUser     = "TEST_USER"
	envTestPassword = "TEST_PASSWORD"
	envBaseURL      = "BASE_URL"
	envProjectName  = "PROJECT_NAME"
	envEnvironment  = "ENVIRONMENT"
)

// loadDotEnv pulls a .env file into the process environment if one exists.
// A missing file is not an error; real environment variables win.
func loadDotEnv() {
	_ = godotenv.Load()
}

func envString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
