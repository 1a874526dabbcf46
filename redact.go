package main

import "strings"

// maskToken replaces the value of any sensitive key or header.
const maskToken = "***"

// Default sensitive key names, matched case-insensitively against mapping keys.
var defaultSensitiveKeys = []string{"password", "token", "secret", "api_key", "authorization"}

// Default sensitive header names, matched case-sensitively in canonical form.
var defaultSensitiveHeaders = []string{"Authorization", "Cookie", "Set-Cookie", "X-Auth-Token", "X-API-Key"}

// keySet lowercases names into a lookup set, falling back to defaults when empty.
func keySet(names, defaults []string) map[string]bool {
	if len(names) == 0 {
		names = defaults
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[strings.ToLower(n)] = true
	}
	return set
}

// redactValue returns a copy of value with every entry under a sensitive key
// replaced by the mask token. Mappings and sequences are walked recursively,
// scalars pass through unchanged, and the input is never mutated.
func redactValue(value interface{}, sensitiveKeys []string) interface{} {
	return redactWithSet(value, keySet(sensitiveKeys, defaultSensitiveKeys))
}

func redactWithSet(value interface{}, sensitive map[string]bool) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, val := range v {
			if sensitive[strings.ToLower(key)] {
				out[key] = maskToken
			} else {
				out[key] = redactWithSet(val, sensitive)
			}
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(v))
		for key, val := range v {
			if sensitive[strings.ToLower(key)] {
				out[key] = maskToken
			} else {
				out[key] = val
			}
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = redactWithSet(item, sensitive)
		}
		return out
	default:
		return value
	}
}

// redactHeaders masks the values of sensitive headers. Unlike redactValue,
// header names are matched case-sensitively because the default set uses
// canonical casing. The input map is never mutated.
func redactHeaders(headers map[string]string, sensitiveHeaders []string) map[string]string {
	if len(sensitiveHeaders) == 0 {
		sensitiveHeaders = defaultSensitiveHeaders
	}
	sensitive := make(map[string]bool, len(sensitiveHeaders))
	for _, n := range sensitiveHeaders {
		sensitive[n] = true
	}

	out := make(map[string]string, len(headers))
	for key, val := range headers {
		if sensitive[key] {
			out[key] = maskToken
		} else {
			out[key] = val
		}
	}
	return out
}
