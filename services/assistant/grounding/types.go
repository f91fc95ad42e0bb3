// Copyright (C) 2025 The ServiceIT AI Extension Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for license details.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package grounding validates assistant responses against the fact
// set their digest disclosed.
//
// Checking is pattern based: each checker extracts one class of
// verifiable claim (record identifiers, email addresses, ticket
// references, performed-action claims) and verifies every extracted
// claim against the turn's fact set. Validation never fails a turn;
// in advisory mode violations are only reported, in corrective mode
// each offending span is replaced in place by a placeholder, so
// sentences are rewritten, never deleted.
package grounding

import (
	"context"
	"time"
)

// Severity indicates how serious a grounding violation is.
type Severity string

const (
	// SeverityWarning is for claims that are suspect but plausible.
	SeverityWarning Severity = "warning"

	// SeverityHigh is for claims a reader would act on incorrectly.
	SeverityHigh Severity = "high"

	// SeverityCritical is for fabricated records, the strongest
	// hallucination signal this pipeline detects.
	SeverityCritical Severity = "critical"
)

// ViolationType categorizes the kind of grounding failure.
type ViolationType string

const (
	// ViolationUnknownIdentifier is a 32-hex record identifier that no
	// disclosed fact contains.
	ViolationUnknownIdentifier ViolationType = "unknown_identifier"

	// ViolationUnknownEmail is an email address that no disclosed fact
	// contains.
	ViolationUnknownEmail ViolationType = "unknown_email"

	// ViolationUnknownReference is a human-facing ticket reference
	// ("incident #12") that no disclosed fact contains.
	ViolationUnknownReference ViolationType = "unknown_reference"

	// ViolationActionClaim is a claim that the assistant performed a
	// state-changing action. The assistant is read-only, so every such
	// claim is fabricated.
	ViolationActionClaim ViolationType = "action_claim"
)

// Mode selects how violations are handled.
type Mode string

const (
	// ModeAdvisory reports violations and leaves the response intact.
	ModeAdvisory Mode = "advisory"

	// ModeCorrective replaces each offending span with a placeholder.
	ModeCorrective Mode = "corrective"
)

// Violation is a single grounding failure.
type Violation struct {
	// Type is the kind of violation.
	Type ViolationType `json:"type"`

	// Severity indicates how serious the violation is.
	Severity Severity `json:"severity"`

	// Checker names the checker that found it.
	Checker string `json:"checker"`

	// Message is a human-readable description.
	Message string `json:"message"`

	// Evidence is the exact span that triggered the violation.
	Evidence string `json:"evidence"`

	// Replacement is the placeholder substituted in corrective mode.
	Replacement string `json:"replacement,omitempty"`

	// LocationOffset is the character position of Evidence in the
	// response, used for ordering and splicing.
	LocationOffset int `json:"location_offset"`
}

// Result is the outcome of validating one response.
type Result struct {
	// Grounded is true when no violations were found.
	Grounded bool `json:"grounded"`

	// Mode is the mode the validation ran in.
	Mode Mode `json:"mode"`

	// Output is the response text after validation. In advisory mode
	// it is the input unchanged; in corrective mode it carries the
	// placeholder substitutions.
	Output string `json:"output"`

	// Modified is true when Output differs from the input.
	Modified bool `json:"modified"`

	// Violations contains every violation found.
	Violations []Violation `json:"violations,omitempty"`

	// CriticalCount is the number of critical violations.
	CriticalCount int `json:"critical_count"`

	// ChecksRun is how many checkers executed.
	ChecksRun int `json:"checks_run"`

	// CheckDuration is how long validation took.
	CheckDuration time.Duration `json:"check_duration"`
}

// HasCritical returns true if any violation is critical.
func (r *Result) HasCritical() bool {
	return r.CriticalCount > 0
}

// addViolation appends a violation and updates the counters.
func (r *Result) addViolation(v Violation) {
	r.Violations = append(r.Violations, v)
	if v.Severity == SeverityCritical {
		r.CriticalCount++
	}
}

// Checker extracts one class of claim and verifies it against the
// turn's fact index.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Checker interface {
	// Name returns the checker's stable name for logs and metrics.
	Name() string

	// Check returns every violation found in response. Checkers do not
	// mutate the response; corrective splicing happens afterwards from
	// the recorded offsets.
	Check(ctx context.Context, response string, facts *FactIndex) []Violation
}
