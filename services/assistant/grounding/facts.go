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
	"fmt"
	"strings"

	"github.com/NotTwinkle/ServiceIT-AI-Extension-sub000/services/assistant/datatypes"
)

// FactIndex is the lookup structure checkers verify claims against.
//
// Every scalar reachable from the fact set is flattened into a
// lowercased literal set; a claim is grounded when its canonical form
// is literally present. Structure is deliberately discarded: the
// contract with the digest is literal disclosure, so literal lookup is
// the whole check.
type FactIndex struct {
	literals map[string]struct{}
}

// NewFactIndex flattens a fact set. A nil fact set produces an empty
// index, against which every claim is a violation.
func NewFactIndex(facts *datatypes.GroundedFactSet) *FactIndex {
	idx := &FactIndex{literals: make(map[string]struct{})}
	if facts == nil {
		return idx
	}
	for _, value := range facts.Facts {
		idx.add(value)
	}
	return idx
}

func (idx *FactIndex) add(value any) {
	switch v := value.(type) {
	case nil:
	case string:
		idx.insert(v)
	case []string:
		for _, s := range v {
			idx.insert(s)
		}
	case []any:
		for _, item := range v {
			idx.add(item)
		}
	case map[string]any:
		for _, item := range v {
			idx.add(item)
		}
	default:
		idx.insert(fmt.Sprintf("%v", v))
	}
}

func (idx *FactIndex) insert(s string) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s != "" {
		idx.literals[s] = struct{}{}
	}
}

// minConfirmingLiteral is the shortest literal allowed to vouch for a
// whole sentence. Short tokens like a bare status word match too many
// sentences to mean anything.
const minConfirmingLiteral = 8

// ConfirmsSentence reports whether any indexed literal of meaningful
// length appears inside the sentence, case-insensitively. Checkers use
// this to let through claims the fact set itself states.
func (idx *FactIndex) ConfirmsSentence(sentence string) bool {
	if idx == nil {
		return false
	}
	sentence = strings.ToLower(sentence)
	for lit := range idx.literals {
		if len(lit) >= minConfirmingLiteral && strings.Contains(sentence, lit) {
			return true
		}
	}
	return false
}

// Contains reports whether the literal is present, case-insensitively.
func (idx *FactIndex) Contains(s string) bool {
	_, ok := idx.literals[strings.TrimSpace(strings.ToLower(s))]
	return ok
}

// Size returns the number of distinct literals.
func (idx *FactIndex) Size() int {
	return len(idx.literals)
}
