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
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NotTwinkle/ServiceIT-AI-Extension-sub000/services/assistant/datatypes"
)

var (
	knownID    = strings.Repeat("a", 32)
	unknownID  = strings.Repeat("b", 32)
	testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
)

func testFacts() *datatypes.GroundedFactSet {
	facts := datatypes.NewGroundedFactSet()
	facts.Facts["ticket_ids"] = []string{knownID}
	facts.Facts["ticket_refs"] = []string{"incident #12", "request #3"}
	facts.Facts["employee_emails"] = []string{"dana@corp.example"}
	return facts
}

func TestValidateGroundedResponsePassesUntouched(t *testing.T) {
	v := NewValidator(Config{Mode: ModeCorrective}, testLogger)
	response := "Incident #12 (id=" + knownID + ") was reported by dana@corp.example."

	result := v.Validate(context.Background(), response, testFacts())

	assert.True(t, result.Grounded)
	assert.Empty(t, result.Violations)
	assert.Equal(t, response, result.Output)
	assert.False(t, result.Modified)
	assert.Equal(t, 4, result.ChecksRun)
}

func TestValidateAdvisoryReportsButDoesNotRewrite(t *testing.T) {
	v := NewValidator(Config{}, testLogger)
	response := "See ticket id " + unknownID + " for details."

	result := v.Validate(context.Background(), response, testFacts())

	assert.False(t, result.Grounded)
	require.Len(t, result.Violations, 1)
	assert.Equal(t, ViolationUnknownIdentifier, result.Violations[0].Type)
	assert.Equal(t, response, result.Output, "advisory mode must not change the response")
	assert.False(t, result.Modified)
}

func TestValidateCorrectiveSubstitutesPlaceholders(t *testing.T) {
	v := NewValidator(Config{Mode: ModeCorrective}, testLogger)
	response := "Contact ghost@corp.example about record " + unknownID + "."

	result := v.Validate(context.Background(), response, testFacts())

	assert.False(t, result.Grounded)
	assert.True(t, result.Modified)
	assert.Contains(t, result.Output, emailPlaceholder)
	assert.Contains(t, result.Output, identifierPlaceholder)
	assert.NotContains(t, result.Output, unknownID)
	assert.NotContains(t, result.Output, "ghost@corp.example")
}

func TestValidateCorrectionKeepsSentenceCount(t *testing.T) {
	v := NewValidator(Config{Mode: ModeCorrective}, testLogger)
	response := "I created incident #99 for you. It is assigned to ghost@corp.example. Anything else?"

	result := v.Validate(context.Background(), response, testFacts())

	require.True(t, result.Modified)
	assert.Equal(t,
		len(strings.Split(response, ". ")),
		len(strings.Split(result.Output, ". ")),
		"corrections substitute placeholders, they never delete sentences")
	assert.Contains(t, result.Output, "Anything else?")
}

func TestValidateNilFactSetFlagsEveryClaim(t *testing.T) {
	v := NewValidator(Config{}, testLogger)
	response := "Record " + knownID + " belongs to dana@corp.example."

	result := v.Validate(context.Background(), response, nil)

	assert.False(t, result.Grounded)
	assert.Len(t, result.Violations, 2)
}

func TestValidateEmptyResponseIsGrounded(t *testing.T) {
	v := NewValidator(Config{Mode: ModeCorrective}, testLogger)
	result := v.Validate(context.Background(), "", testFacts())
	assert.True(t, result.Grounded)
	assert.Equal(t, "", result.Output)
}

func TestIdentifierCheckerIgnoresShorterHex(t *testing.T) {
	c := NewIdentifierChecker()
	idx := NewFactIndex(testFacts())

	violations := c.Check(context.Background(), "commit deadbeef and hash "+strings.Repeat("c", 16), idx)
	assert.Empty(t, violations, "sub-32 hex spans are not record identifiers")
}

func TestIdentifierCheckerFlagsOverlongHex(t *testing.T) {
	c := NewIdentifierChecker()
	idx := NewFactIndex(testFacts())

	violations := c.Check(context.Background(), "see record "+strings.Repeat("f", 33), idx)
	require.Len(t, violations, 1)
	assert.Equal(t, ViolationUnknownIdentifier, violations[0].Type,
		"hex runs past 32 characters cannot be real identifiers")
}

func TestReferenceCheckerAcceptsGenericTicketNoun(t *testing.T) {
	c := NewReferenceChecker()
	idx := NewFactIndex(testFacts())

	assert.Empty(t, c.Check(context.Background(), "ticket #12 is open", idx),
		"ticket #N must match a disclosed incident #N")
	assert.Empty(t, c.Check(context.Background(), "Ticket #3 was filed", idx),
		"ticket #N must match a disclosed request #N")

	violations := c.Check(context.Background(), "see ticket #99", idx)
	require.Len(t, violations, 1)
	assert.Equal(t, ViolationUnknownReference, violations[0].Type)
}

func TestReferenceCheckerIsCaseInsensitive(t *testing.T) {
	c := NewReferenceChecker()
	idx := NewFactIndex(testFacts())
	assert.Empty(t, c.Check(context.Background(), "INCIDENT #12 remains open", idx))
}

func TestActionClaimCheckerRewritesNonCommittally(t *testing.T) {
	v := NewValidator(Config{Mode: ModeCorrective}, testLogger)

	result := v.Validate(context.Background(), "I have created the request as asked.", testFacts())
	assert.Contains(t, result.Output, "I can help you create")
	assert.NotContains(t, result.Output, "I have created")

	result = v.Validate(context.Background(), "The ticket has been escalated already.", testFacts())
	assert.Contains(t, result.Output, "would need to be escalated")
}

func TestActionClaimCheckerAcceptsFactStatedCompletion(t *testing.T) {
	facts := datatypes.NewGroundedFactSet()
	facts.Facts["status_lines"] = []string{"request #5 has been created"}
	idx := NewFactIndex(facts)

	c := NewActionClaimChecker()
	violations := c.Check(context.Background(),
		"Your request #5 has been created. Anything else?", idx)
	assert.Empty(t, violations,
		"a completion the fact set states is reporting, not fabrication")
}

func TestActionClaimCheckerFlagsUnconfirmedCompletion(t *testing.T) {
	c := NewActionClaimChecker()
	idx := NewFactIndex(testFacts())

	violations := c.Check(context.Background(), "Your request #7 has been created.", idx)
	require.Len(t, violations, 1)
	assert.Equal(t, ViolationActionClaim, violations[0].Type)
}

func TestActionClaimCheckerIgnoresUserDirectedVerbs(t *testing.T) {
	c := NewActionClaimChecker()
	violations := c.Check(context.Background(), "You can create a request from the portal.", nil)
	assert.Empty(t, violations)
}

func TestFactIndexFlattensNestedValues(t *testing.T) {
	facts := datatypes.NewGroundedFactSet()
	facts.Facts["nested"] = map[string]any{"inner": []any{"Alpha", 42}}

	idx := NewFactIndex(facts)
	assert.True(t, idx.Contains("alpha"))
	assert.True(t, idx.Contains("42"))
	assert.False(t, idx.Contains("beta"))
	assert.Equal(t, 2, idx.Size())
}
