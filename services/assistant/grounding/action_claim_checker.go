// Copyright (C) 2025 The ServiceIT AI Extension Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for license details.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package grounding

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Action-claim extraction patterns. The assistant has no write access
// to the platform, so first-person and passive completion claims about
// these verbs are fabricated by construction.
var (
	// firstPersonActionPattern: "I created", "I've updated", "I have assigned".
	firstPersonActionPattern = regexp.MustCompile(`(?i)\bI(?:'ve| have)? (created|updated|closed|assigned|resolved|escalated|reopened)\b`)

	// passiveActionPattern: "has been created", "have been assigned".
	passiveActionPattern = regexp.MustCompile(`(?i)\b(?:has|have) been (created|updated|closed|assigned|resolved|escalated|reopened)\b`)
)

// baseVerbs maps past participles to their base form for the
// non-committal rewrite.
var baseVerbs = map[string]string{
	"created":   "create",
	"updated":   "update",
	"closed":    "close",
	"assigned":  "assign",
	"resolved":  "resolve",
	"escalated": "escalate",
	"reopened":  "reopen",
}

// ActionClaimChecker flags claims that a state-changing action was
// performed.
//
// The corrective rewrite is non-committal, not a deletion: "I created
// the ticket" becomes "I can help you create the ticket", which keeps
// the sentence intact while withdrawing the false completion claim.
type ActionClaimChecker struct{}

// NewActionClaimChecker constructs an ActionClaimChecker.
func NewActionClaimChecker() *ActionClaimChecker {
	return &ActionClaimChecker{}
}

// Name implements Checker.
func (c *ActionClaimChecker) Name() string { return "action_claim" }

// Check implements Checker. A claim whose surrounding sentence is
// stated by the fact set is not flagged: when the digest says a record
// has been created, repeating that is reporting, not fabrication.
func (c *ActionClaimChecker) Check(_ context.Context, response string, facts *FactIndex) []Violation {
	var out []Violation

	for _, loc := range firstPersonActionPattern.FindAllStringSubmatchIndex(response, -1) {
		if facts.ConfirmsSentence(sentenceAround(response, loc[0], loc[1])) {
			continue
		}
		evidence := response[loc[0]:loc[1]]
		verb := strings.ToLower(response[loc[2]:loc[3]])
		out = append(out, Violation{
			Type:           ViolationActionClaim,
			Severity:       SeverityHigh,
			Checker:        c.Name(),
			Message:        fmt.Sprintf("claims to have performed %q, but the assistant cannot modify records", verb),
			Evidence:       evidence,
			Replacement:    "I can help you " + baseVerbs[verb],
			LocationOffset: loc[0],
		})
	}

	for _, loc := range passiveActionPattern.FindAllStringSubmatchIndex(response, -1) {
		if facts.ConfirmsSentence(sentenceAround(response, loc[0], loc[1])) {
			continue
		}
		evidence := response[loc[0]:loc[1]]
		verb := strings.ToLower(response[loc[2]:loc[3]])
		out = append(out, Violation{
			Type:           ViolationActionClaim,
			Severity:       SeverityHigh,
			Checker:        c.Name(),
			Message:        fmt.Sprintf("claims %q completed, but the assistant cannot modify records", verb),
			Evidence:       evidence,
			Replacement:    "would need to be " + verb,
			LocationOffset: loc[0],
		})
	}

	return out
}

// sentenceAround returns the sentence containing the [start, end) span.
func sentenceAround(s string, start, end int) string {
	from := 0
	if b := strings.LastIndexAny(s[:start], ".!?\n"); b >= 0 {
		from = b + 1
	}
	to := len(s)
	if i := strings.IndexAny(s[end:], ".!?\n"); i >= 0 {
		to = end + i + 1
	}
	return strings.TrimSpace(s[from:to])
}
