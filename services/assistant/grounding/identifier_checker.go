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

// identifierPattern matches the platform's 32-hex record identifiers.
// The open upper bound also catches overlong hex runs, which are
// fabricated by construction since no real identifier exceeds 32.
var identifierPattern = regexp.MustCompile(`\b[0-9a-f]{32,}\b`)

// identifierPlaceholder replaces an unverified identifier in
// corrective mode.
const identifierPlaceholder = "[unverified id]"

// IdentifierChecker flags record identifiers that were never
// disclosed. A fabricated identifier is the clearest hallucination
// signal: the model has no way to know a real one it was not shown.
type IdentifierChecker struct{}

// NewIdentifierChecker constructs an IdentifierChecker.
func NewIdentifierChecker() *IdentifierChecker {
	return &IdentifierChecker{}
}

// Name implements Checker.
func (c *IdentifierChecker) Name() string { return "identifier" }

// Check implements Checker.
func (c *IdentifierChecker) Check(_ context.Context, response string, facts *FactIndex) []Violation {
	var out []Violation
	for _, loc := range identifierPattern.FindAllStringIndex(response, -1) {
		id := response[loc[0]:loc[1]]
		if facts.Contains(id) {
			continue
		}
		out = append(out, Violation{
			Type:           ViolationUnknownIdentifier,
			Severity:       SeverityCritical,
			Checker:        c.Name(),
			Message:        fmt.Sprintf("identifier %s does not appear in the disclosed context", id),
			Evidence:       id,
			Replacement:    identifierPlaceholder,
			LocationOffset: loc[0],
		})
	}
	return out
}
