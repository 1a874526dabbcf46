package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RequestSpec describes one logical HTTP request. It is immutable per call:
// the engine builds a fresh *http.Request from it for every physical attempt
// so bodies replay safely across retries.
type RequestSpec struct {
	Method      string
	URL         string            // absolute, or relative to the engine's base URL
	Query       map[string]string // optional query parameters
	Headers     map[string]string // per-call overrides on top of session headers
	Body        string            // raw body; interpreted per ContentType
	ContentType string
	Files       map[string]string // multipart uploads: form field -> file path
}

// RetryPolicy bounds the attempt loop of a logical call. Status-based and
// transport-based retries share the same budget, so a call never exceeds
// MaxRetries+1 physical attempts.
type RetryPolicy struct {
	MaxRetries           int
	RetryDelay           time.Duration
	Timeout              time.Duration
	RetriableStatusCodes []int
}

// DefaultRetryPolicy retries transport errors up to three times with a fixed
// one second delay. No status code is retriable unless the caller says so.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		RetryDelay: time.Second,
		Timeout:    10 * time.Second,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.RetryDelay == 0 {
		p.RetryDelay = def.RetryDelay
	}
	if p.Timeout == 0 {
		p.Timeout = def.Timeout
	}
	return p
}

// RedactionPolicy names the fields masked before request details are logged
// or stored. Empty slices fall back to the package defaults.
type RedactionPolicy struct {
	SensitiveHeaders []string // matched case-sensitively, canonical casing
	SensitiveKeys    []string // matched case-insensitively
}

// Expectations bundles the caller-supplied checks run against the final
// response. Zero values mean "not checked".
type Expectations struct {
	Status          int
	JSONCheck       map[string]interface{}
	MaxResponseTime time.Duration
}

// Result is the validated outcome of a logical call. The body is read
// eagerly because the attempt loop closes each response before deciding
// whether to retry.
type Result struct {
	StatusCode int
	Body       []byte
	URL        string
	Duration   time.Duration // final attempt only
	Attempts   int
}

// JSON parses the response body as a JSON object.
func (r *Result) JSON() (map[string]interface{}, error) {
	var data map[string]interface{}
	if err := json.Unmarshal(r.Body, &data); err != nil {
		return nil, err
	}
	return data, nil
}

var allowedMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodDelete:  true,
	http.MethodPatch:   true,
	http.MethodHead:    true,
	http.MethodOptions: true,
}

// Engine issues logical HTTP requests: it applies retry policy across
// transient failures, records every physical attempt in the shared sink, and
// validates the final response against the caller's expectations. Session
// headers (bearer tokens, content type) are shared read-mostly state across
// calls; per-call specs may override them but never mutate them.
type Engine struct {
	BaseURL string
	Client  *http.Client
	Sink    *Sink

	// Limiter, when set, is waited on before every physical attempt to cap
	// outgoing request rate across the whole run.
	Limiter *rate.Limiter

	mu      sync.RWMutex
	session map[string]string
}

func NewEngine(baseURL string, sink *Sink) *Engine {
	if sink == nil {
		sink = NewSink()
	}
	return &Engine{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Client:  &http.Client{},
		Sink:    sink,
		session: map[string]string{"Content-Type": "application/json"},
	}
}

// SetSessionHeader sets an ambient header applied to every subsequent call.
func (e *Engine) SetSessionHeader(key, value string) {
	e.mu.Lock()
	e.session[key] = value
	e.mu.Unlock()
}

// SessionHeader reads an ambient header, e.g. to inspect the current token.
func (e *Engine) SessionHeader(key string) string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.session[key]
}

// mergedHeaders combines session headers with per-call overrides.
func (e *Engine) mergedHeaders(spec RequestSpec) map[string]string {
	e.mu.RLock()
	headers := make(map[string]string, len(e.session)+len(spec.Headers))
	for k, v := range e.session {
		headers[k] = v
	}
	e.mu.RUnlock()
	for k, v := range spec.Headers {
		headers[k] = v
	}
	if spec.ContentType != "" {
		headers["Content-Type"] = spec.ContentType
	}
	return headers
}

// resolveURL prepends the base URL to relative paths.
func (e *Engine) resolveURL(target string) string {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return target
	}
	if e.BaseURL == "" {
		return target
	}
	if !strings.HasPrefix(target, "/") {
		target = "/" + target
	}
	return e.BaseURL + target
}

// endpoint strips the base prefix and surrounding slashes for metrics rows.
func (e *Engine) endpoint(target string) string {
	return strings.Trim(strings.TrimPrefix(target, e.BaseURL), "/")
}

// Execute performs one logical call: it logs a sanitized view of the request,
// runs the attempt loop under the retry policy, appends one AttemptRecord to
// the sink per physical attempt, and validates the final response. It returns
// the response alongside any validation failure so callers can still log
// response details; on transport exhaustion the result is nil.
func (e *Engine) Execute(spec RequestSpec, expect Expectations, retry RetryPolicy, redaction RedactionPolicy) (*Result, error) {
	if !allowedMethods[spec.Method] {
		return nil, fmt.Errorf("unsupported HTTP method %q", spec.Method)
	}
	retry = retry.withDefaults()
	target := e.resolveURL(spec.URL)
	headers := e.mergedHeaders(spec)

	logger.Debug("request",
		zap.String("method", spec.Method),
		zap.String("url", target),
		zap.Any("headers", redactHeaders(headers, redaction.SensitiveHeaders)),
		zap.Any("params", redactValue(spec.Query, redaction.SensitiveKeys)),
		zap.Any("body", sanitizedBody(spec, redaction.SensitiveKeys)),
	)

	var res *Result
	var lastErr error
	for attempt := 0; attempt <= retry.MaxRetries; attempt++ {
		if e.Limiter != nil {
			if err := e.Limiter.Wait(context.Background()); err != nil {
				return nil, fmt.Errorf("rate limiter wait failed: %w", err)
			}
		}

		req, err := buildRequest(spec, target, headers)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), retry.Timeout)
		req = req.WithContext(ctx)

		start := time.Now()
		resp, err := e.Client.Do(req)
		var body []byte
		if err == nil {
			body, err = io.ReadAll(resp.Body)
			resp.Body.Close()
		}
		cancel()
		duration := time.Since(start)

		if err != nil {
			e.Sink.Append(AttemptRecord{
				Endpoint:  e.endpoint(target),
				Method:    spec.Method,
				Duration:  duration,
				Error:     err.Error(),
				Attempt:   attempt + 1,
				Timestamp: time.Now(),
			})
			lastErr = err
			if attempt < retry.MaxRetries {
				logger.Info("retrying after transport error",
					zap.String("method", spec.Method),
					zap.String("url", target),
					zap.Int("attempt", attempt+1),
					zap.Int("max_retries", retry.MaxRetries),
					zap.Error(err),
				)
				time.Sleep(retry.RetryDelay)
				continue
			}
			return nil, &RequestExhaustedError{Method: spec.Method, URL: target, Attempts: attempt + 1, Err: lastErr}
		}

		e.Sink.Append(AttemptRecord{
			Endpoint:   e.endpoint(target),
			Method:     spec.Method,
			Duration:   duration,
			StatusCode: resp.StatusCode,
			Attempt:    attempt + 1,
			Timestamp:  time.Now(),
		})
		res = &Result{
			StatusCode: resp.StatusCode,
			Body:       body,
			URL:        resp.Request.URL.String(),
			Duration:   duration,
			Attempts:   attempt + 1,
		}

		if containsInt(retry.RetriableStatusCodes, resp.StatusCode) && attempt < retry.MaxRetries {
			logger.Info("retrying after retriable status",
				zap.String("method", spec.Method),
				zap.String("url", target),
				zap.Int("status", resp.StatusCode),
				zap.Int("attempt", attempt+1),
				zap.Int("max_retries", retry.MaxRetries),
			)
			time.Sleep(retry.RetryDelay)
			continue
		}
		break
	}

	if err := validateResult(res, expect, spec.Method, target); err != nil {
		return res, err
	}
	return res, nil
}

// validateResult runs the caller-supplied expectations against the final
// response. A response either fully satisfies them or the call fails with a
// typed error.
func validateResult(res *Result, expect Expectations, method, target string) error {
	if expect.Status != 0 {
		if res.StatusCode != expect.Status {
			return &UnexpectedStatusError{Expected: expect.Status, Actual: res.StatusCode, Body: string(res.Body)}
		}
		if len(expect.JSONCheck) > 0 && res.StatusCode < 400 {
			data, err := res.JSON()
			if err != nil {
				return &InvalidJSONError{Err: err}
			}
			// Sorted so the first offending key is deterministic.
			keys := make([]string, 0, len(expect.JSONCheck))
			for k := range expect.JSONCheck {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, key := range keys {
				want := expect.JSONCheck[key]
				got, ok := data[key]
				if !ok {
					return &JSONFieldMismatchError{Key: key, Expected: want, Missing: true}
				}
				if !valuesEqual(got, want) {
					return &JSONFieldMismatchError{Key: key, Expected: want, Actual: got}
				}
			}
		}
	} else if res.StatusCode < 200 || res.StatusCode >= 300 {
		return &UnexpectedStatusError{Actual: res.StatusCode, Body: string(res.Body)}
	}

	if expect.MaxResponseTime > 0 && res.Duration > expect.MaxResponseTime {
		return &LatencyExceededError{Measured: res.Duration, Allowed: expect.MaxResponseTime, Method: method, URL: target}
	}
	return nil
}

// buildRequest creates a fresh request for one physical attempt.
func buildRequest(spec RequestSpec, target string, headers map[string]string) (*http.Request, error) {
	var bodyReader io.Reader
	contentType := ""

	switch {
	case len(spec.Files) > 0:
		buf, ct, err := multipartBody(spec)
		if err != nil {
			return nil, err
		}
		bodyReader = buf
		contentType = ct
	case spec.Body != "":
		if spec.ContentType == "application/x-www-form-urlencoded" {
			bodyReader = strings.NewReader(encodeFormBody(spec.Body))
		} else {
			bodyReader = strings.NewReader(spec.Body)
		}
	}

	req, err := http.NewRequest(spec.Method, target, bodyReader)
	if err != nil {
		return nil, err
	}

	if len(spec.Query) > 0 {
		q := req.URL.Query()
		for k, v := range spec.Query {
			q.Set(k, v)
		}
		req.URL.RawQuery = q.Encode()
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}
	if contentType != "" {
		// The multipart writer owns the boundary parameter.
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

// encodeFormBody converts key=value lines into URL-encoded form data.
func encodeFormBody(body string) string {
	formData := url.Values{}
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) == 2 {
			formData.Set(parts[0], parts[1])
		}
	}
	return formData.Encode()
}

// multipartBody builds a multipart form from the spec's file payloads plus
// any key=value lines in the body.
func multipartBody(spec RequestSpec) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	for _, line := range strings.Split(spec.Body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) == 2 {
			if err := w.WriteField(parts[0], parts[1]); err != nil {
				return nil, "", err
			}
		}
	}

	fields := make([]string, 0, len(spec.Files))
	for field := range spec.Files {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		path := spec.Files[field]
		f, err := os.Open(path)
		if err != nil {
			return nil, "", fmt.Errorf("failed to open upload file %s: %w", path, err)
		}
		part, err := w.CreateFormFile(field, filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		f.Close()
		if err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}

// sanitizedBody returns the loggable view of a request body with sensitive
// fields masked. The live request is never built from this view.
func sanitizedBody(spec RequestSpec, sensitiveKeys []string) interface{} {
	if len(spec.Files) > 0 {
		paths := make([]string, 0, len(spec.Files))
		for _, p := range spec.Files {
			paths = append(paths, filepath.Base(p))
		}
		sort.Strings(paths)
		return map[string]interface{}{"files": paths}
	}
	if spec.Body == "" {
		return nil
	}
	if spec.ContentType == "application/x-www-form-urlencoded" {
		pairs := make(map[string]interface{})
		for _, line := range strings.Split(spec.Body, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			parts := strings.SplitN(line, "=", 2)
			if len(parts) == 2 {
				pairs[parts[0]] = parts[1]
			}
		}
		return redactValue(pairs, sensitiveKeys)
	}

	var parsed interface{}
	if err := json.Unmarshal([]byte(spec.Body), &parsed); err == nil {
		return redactValue(parsed, sensitiveKeys)
	}
	return spec.Body
}

func containsInt(list []int, v int) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// valuesEqual compares two values for equality, handling the type
// conversions JSON decoding introduces (numbers become float64).
func valuesEqual(actual, expected interface{}) bool {
	if actual == expected {
		return true
	}
	actualStr := fmt.Sprintf("%v", actual)
	expectedStr := fmt.Sprintf("%v", expected)
	return actualStr == expectedStr
}
