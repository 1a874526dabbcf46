package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	// os.Exit skips deferred calls, so the exit code is decided inside run
	// and the logger flush still happens.
	os.Exit(run())
}

func run() int {
	parallel := flag.Bool("parallel", false, "run tests concurrently, limited by CPU cores")
	qps := flag.Float64("qps", 0, "cap outgoing requests per second across the run (0 = unlimited)")
	baseURL := flag.String("base-url", "", "base API URL, overriding suite frontmatter and BASE_URL")
	reportPath := flag.String("report", defaultReportFile, "path for the document report")
	htmlPath := flag.String("html-report", defaultHTMLReportFile, "path for the HTML report")
	errorLogPath := flag.String("error-log", defaultErrorLogFile, "path for the error log")
	executedLogPath := flag.String("executed-log", defaultExecutedLogFile, "path for the execution log")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: restcheck [flags] <markdown-file-or-directory>")
		return 1
	}

	loadDotEnv()
	initLogger()
	defer logger.Sync()

	testFiles, err := collectTestFiles(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading tests: %v\n", err)
		return 1
	}
	if len(testFiles) == 0 {
		fmt.Println("No tests found.")
		return 0
	}

	total := 0
	for _, tf := range testFiles {
		total += len(tf.Tests)
	}
	fmt.Printf("Found %d test(s) to run\n\n", total)

	override := *baseURL
	if override == "" {
		override = envString(envBaseURL, "")
	}

	rc := NewRunContext(suiteBaseURL(override, testFiles))

	var limiter *rate.Limiter
	if *qps > 0 {
		limiter = rate.NewLimiter(rate.Limit(*qps), 1)
	}

	engines := make([]*Engine, len(testFiles))
	redactions := make([]RedactionPolicy, len(testFiles))
	for i, tf := range testFiles {
		root := tf.Defaults.Root
		if override != "" {
			root = override
		}
		engine := NewEngine(root, rc.Sink)
		engine.Limiter = limiter
		engines[i] = engine
		redactions[i] = redactionPolicyFor(tf.Defaults)

		// Suite-level auth bootstrap: "auth: auto" tries /login then
		// /authenticate, anything else is taken as the login endpoint.
		if tf.Defaults.Auth != "" {
			endpoint := tf.Defaults.Auth
			if endpoint == "auto" {
				endpoint = ""
			}
			auth := NewAuthenticator(engine)
			if _, err := auth.Login(Credentials{}, endpoint); err != nil {
				logger.Warn("auth bootstrap failed",
					zap.String("file", tf.Path),
					zap.Error(err),
				)
			}
		}
	}

	if *parallel {
		runTestsParallel(rc, engines, redactions, testFiles)
	} else {
		runTestsSequential(rc, engines, redactions, testFiles)
	}
	rc.EndTime = time.Now()

	if err := saveLines(*executedLogPath, rc.ExecutionLog()); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing execution log: %v\n", err)
	}
	if err := saveLines(*errorLogPath, rc.ErrorEntries()); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing error log: %v\n", err)
	}
	if err := saveTextReport(*reportPath, rc); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing report: %v\n", err)
	}
	if err := saveHTMLReport(*htmlPath, rc); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing HTML report: %v\n", err)
	}

	elapsed := formatDuration(rc.EndTime.Sub(rc.StartTime))
	if rc.Failed() > 0 {
		fmt.Printf("%s%d passed%s, %s%d failed%s (pass rate %.1f%%) in %s\n",
			colorGreen, rc.Passed(), colorReset,
			colorRed, rc.Failed(), colorReset,
			rc.PassRate(), elapsed)
		return 1
	}
	fmt.Printf("All %d test(s) passed in %s!\n", rc.Total(), elapsed)
	return 0
}

// suiteBaseURL resolves the base URL named in the reports. An explicit
// override applies to every engine, so it wins; otherwise the distinct suite
// roots are listed, since each file's engine targets its own root.
func suiteBaseURL(override string, testFiles []TestFile) string {
	if override != "" {
		return override
	}
	seen := make(map[string]bool)
	var roots []string
	for _, tf := range testFiles {
		root := tf.Defaults.Root
		if root == "" || seen[root] {
			continue
		}
		seen[root] = true
		roots = append(roots, root)
	}
	return strings.Join(roots, ", ")
}

// redactionPolicyFor extends the default sensitive keys with any extras the
// suite frontmatter names.
func redactionPolicyFor(defaults Defaults) RedactionPolicy {
	if len(defaults.Redact) == 0 {
		return RedactionPolicy{}
	}
	keys := make([]string, 0, len(defaultSensitiveKeys)+len(defaults.Redact))
	keys = append(keys, defaultSensitiveKeys...)
	keys = append(keys, defaults.Redact...)
	return RedactionPolicy{SensitiveKeys: keys}
}
