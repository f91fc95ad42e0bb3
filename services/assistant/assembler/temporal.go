// Copyright (C) 2025 The ServiceIT AI Extension Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for license details.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package assembler

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// recentSpan is the lookback used when the query names no time range.
const recentSpan = 30 * 24 * time.Hour

// window is a half-open interval [Start, End) that scopes which
// tickets the digest discloses.
type window struct {
	Start time.Time
	End   time.Time
	Label string
}

func (w window) contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

var (
	fullDatePattern  = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	yearMonthPattern = regexp.MustCompile(`\b(\d{4})-(\d{2})\b`)
	monthNamePattern = regexp.MustCompile(`(?i)\b(january|february|march|april|may|june|july|august|september|october|november|december)\b(?:\s+(\d{4}))?`)
)

var monthsByName = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June,
	"july": time.July, "august": time.August, "september": time.September,
	"october": time.October, "november": time.November, "december": time.December,
}

// parseWindow extracts a time range from free text.
//
// Description:
//
//	Recognized forms, most specific first: a full date (2024-05-10),
//	a numeric year-month (2024-05), and an English month name with an
//	optional year. A bare month name resolves to its most recent
//	occurrence that is not in the future. Anything else falls back to
//	the last 30 days, labeled "recent".
func parseWindow(query string, now time.Time) window {
	if m := fullDatePattern.FindStringSubmatch(query); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		if validMonthDay(month, day) {
			start := time.Date(year, time.Month(month), day, 0, 0, 0, 0, now.Location())
			return window{Start: start, End: start.AddDate(0, 0, 1), Label: m[0]}
		}
	}

	if m := yearMonthPattern.FindStringSubmatch(query); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		if month >= 1 && month <= 12 {
			start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, now.Location())
			return window{Start: start, End: start.AddDate(0, 1, 0), Label: m[0]}
		}
	}

	if m := monthNamePattern.FindStringSubmatch(query); m != nil {
		month := monthsByName[strings.ToLower(m[1])]
		year := now.Year()
		if m[2] != "" {
			year, _ = strconv.Atoi(m[2])
		} else if month > now.Month() {
			// A bare future month means last year's occurrence.
			year--
		}
		start := time.Date(year, month, 1, 0, 0, 0, 0, now.Location())
		return window{Start: start, End: start.AddDate(0, 1, 0), Label: strings.TrimSpace(m[0])}
	}

	return window{Start: now.Add(-recentSpan), End: now.Add(time.Minute), Label: "recent"}
}

func validMonthDay(month, day int) bool {
	return month >= 1 && month <= 12 && day >= 1 && day <= 31
}
