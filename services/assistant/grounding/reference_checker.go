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

// referencePattern matches human-facing ticket references. The hash
// may be separated from the noun by whitespace ("incident #12",
// "Request  #3", "ticket#7").
var referencePattern = regexp.MustCompile(`(?i)\b(incident|request|ticket)\s*#(\d+)\b`)

// referencePlaceholder replaces an unverified reference in corrective
// mode.
const referencePlaceholder = "[unverified ticket reference]"

// ReferenceChecker flags ticket references that were never disclosed.
//
// "ticket #N" is the generic noun users actually type, so it is
// accepted when either canonical form ("incident #N" or "request #N")
// was disclosed.
type ReferenceChecker struct{}

// NewReferenceChecker constructs a ReferenceChecker.
func NewReferenceChecker() *ReferenceChecker {
	return &ReferenceChecker{}
}

// Name implements Checker.
func (c *ReferenceChecker) Name() string { return "reference" }

// Check implements Checker.
func (c *ReferenceChecker) Check(_ context.Context, response string, facts *FactIndex) []Violation {
	var out []Violation
	for _, loc := range referencePattern.FindAllStringSubmatchIndex(response, -1) {
		evidence := response[loc[0]:loc[1]]
		noun := strings.ToLower(response[loc[2]:loc[3]])
		number := response[loc[4]:loc[5]]

		if c.disclosed(facts, noun, number) {
			continue
		}
		out = append(out, Violation{
			Type:           ViolationUnknownReference,
			Severity:       SeverityHigh,
			Checker:        c.Name(),
			Message:        fmt.Sprintf("reference %q does not appear in the disclosed context", evidence),
			Evidence:       evidence,
			Replacement:    referencePlaceholder,
			LocationOffset: loc[0],
		})
	}
	return out
}

func (c *ReferenceChecker) disclosed(facts *FactIndex, noun, number string) bool {
	if noun == "ticket" {
		return facts.Contains("incident #"+number) || facts.Contains("request #"+number)
	}
	return facts.Contains(noun + " #" + number)
}
