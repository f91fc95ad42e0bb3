// Copyright (C) 2025 The ServiceIT AI Extension Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for license details.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"encoding/json"
	"regexp"
)

// scriptLikePatterns are substrings stripped from string values before
// persistence. They cover markup-injection payloads that could execute
// if a cached value is ever rendered without escaping.
var scriptLikePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`),
	regexp.MustCompile(`(?i)<script\b[^>]*>`),
	regexp.MustCompile(`(?i)javascript\s*:`),
	regexp.MustCompile(`(?i)\bon(?:error|load|click|mouseover)\s*=`),
	regexp.MustCompile(`(?i)data\s*:\s*text/html`),
}

// sanitizeJSON re-encodes data after recursively cleaning it: object
// properties whose names are not safe alphanumeric/underscore tokens
// are dropped (prototype-pollution style names like "__proto__" never
// reach the store), and script-like substrings are stripped from every
// string value.
//
// Input already encoded as JSON bytes; returns cleaned JSON bytes.
// Invalid JSON is returned unchanged (it will fail decode on read and
// be purged there).
func sanitizeJSON(raw []byte) []byte {
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return raw
	}

	cleaned := sanitizeValue(decoded)

	out, err := json.Marshal(cleaned)
	if err != nil {
		return raw
	}
	return out
}

// sanitizeValue walks a decoded JSON value.
func sanitizeValue(v any) any {
	switch val := v.(type) {
	case string:
		return sanitizeString(val)
	case map[string]any:
		cleaned := make(map[string]any, len(val))
		for name, inner := range val {
			if !safeParamName.MatchString(name) {
				continue
			}
			cleaned[name] = sanitizeValue(inner)
		}
		return cleaned
	case []any:
		cleaned := make([]any, len(val))
		for i, inner := range val {
			cleaned[i] = sanitizeValue(inner)
		}
		return cleaned
	default:
		return v
	}
}

// sanitizeString strips script-like substrings from one string value.
// Idempotent on already-safe input.
func sanitizeString(s string) string {
	for _, pattern := range scriptLikePatterns {
		s = pattern.ReplaceAllString(s, "")
	}
	return s
}
