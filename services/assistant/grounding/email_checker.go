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
)

// emailPattern is intentionally loose: the goal is catching invented
// addresses, not RFC validation.
var emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)

// emailPlaceholder replaces an unverified address in corrective mode.
const emailPlaceholder = "[unverified email]"

// EmailChecker flags email addresses that were never disclosed.
// Invented addresses are worse than invented identifiers: a reader
// will mail them.
type EmailChecker struct{}

// NewEmailChecker constructs an EmailChecker.
func NewEmailChecker() *EmailChecker {
	return &EmailChecker{}
}

// Name implements Checker.
func (c *EmailChecker) Name() string { return "email" }

// Check implements Checker.
func (c *EmailChecker) Check(_ context.Context, response string, facts *FactIndex) []Violation {
	var out []Violation
	for _, loc := range emailPattern.FindAllStringIndex(response, -1) {
		address := response[loc[0]:loc[1]]
		if facts.Contains(address) {
			continue
		}
		out = append(out, Violation{
			Type:           ViolationUnknownEmail,
			Severity:       SeverityCritical,
			Checker:        c.Name(),
			Message:        fmt.Sprintf("address %s does not appear in the disclosed context", address),
			Evidence:       address,
			Replacement:    emailPlaceholder,
			LocationOffset: loc[0],
		})
	}
	return out
}
