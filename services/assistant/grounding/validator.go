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
	"log/slog"
	"sort"
	"time"

	"github.com/NotTwinkle/ServiceIT-AI-Extension-sub000/services/assistant/datatypes"
)

// Config configures the validator.
type Config struct {
	// Mode selects advisory or corrective handling. Default: advisory.
	Mode Mode
}

// Validator runs the checker pipeline over assistant responses.
//
// Thread Safety: Safe for concurrent use after construction.
type Validator struct {
	cfg      Config
	checkers []Checker
	logger   *slog.Logger
}

// NewValidator constructs a Validator with the full checker set.
func NewValidator(cfg Config, logger *slog.Logger) *Validator {
	return NewValidatorWithCheckers(cfg, logger,
		NewIdentifierChecker(),
		NewEmailChecker(),
		NewReferenceChecker(),
		NewActionClaimChecker(),
	)
}

// NewValidatorWithCheckers constructs a Validator with an explicit
// checker set, primarily for tests.
func NewValidatorWithCheckers(cfg Config, logger *slog.Logger, checkers ...Checker) *Validator {
	if cfg.Mode == "" {
		cfg.Mode = ModeAdvisory
	}
	if err := initMetrics(); err != nil {
		logger.Warn("grounding metrics unavailable", "error", err)
	}
	return &Validator{cfg: cfg, checkers: checkers, logger: logger}
}

// Validate checks one response against the facts its digest disclosed.
//
// Description:
//
//	Validation never errors and never blocks a turn. Every checker
//	runs even when earlier ones found violations, so the report is
//	complete. In corrective mode each violation's span is spliced out
//	for its placeholder; overlapping spans are applied once, first
//	found wins.
//
// Outputs:
//
//	Result - The full report. Output always carries servable text.
func (v *Validator) Validate(ctx context.Context, response string, facts *datatypes.GroundedFactSet) Result {
	start := time.Now()
	index := NewFactIndex(facts)

	result := Result{
		Mode:   v.cfg.Mode,
		Output: response,
	}

	for _, checker := range v.checkers {
		result.ChecksRun++
		for _, violation := range checker.Check(ctx, response, index) {
			result.addViolation(violation)
		}
	}

	sort.SliceStable(result.Violations, func(i, j int) bool {
		return result.Violations[i].LocationOffset < result.Violations[j].LocationOffset
	})

	result.Grounded = len(result.Violations) == 0

	if v.cfg.Mode == ModeCorrective && !result.Grounded {
		corrected, applied := applyCorrections(response, result.Violations)
		result.Output = corrected
		result.Modified = corrected != response
		recordCorrections(ctx, applied)
	}

	result.CheckDuration = time.Since(start)
	recordValidation(ctx, &result, result.CheckDuration)

	if !result.Grounded {
		v.logger.Warn("response failed grounding",
			"violations", len(result.Violations),
			"critical", result.CriticalCount,
			"mode", string(v.cfg.Mode),
			"modified", result.Modified)
	}

	return result
}

// applyCorrections splices placeholders into the response, back to
// front so earlier offsets stay valid. A span overlapping an already
// substituted one is skipped rather than double-spliced.
func applyCorrections(response string, violations []Violation) (string, int) {
	ordered := make([]Violation, len(violations))
	copy(ordered, violations)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].LocationOffset > ordered[j].LocationOffset
	})

	out := response
	applied := 0
	lastStart := len(response) + 1

	for _, v := range ordered {
		if v.Replacement == "" || v.Evidence == "" {
			continue
		}
		end := v.LocationOffset + len(v.Evidence)
		if v.LocationOffset < 0 || end > len(response) || end > lastStart {
			continue
		}
		if response[v.LocationOffset:end] != v.Evidence {
			continue
		}
		out = out[:v.LocationOffset] + v.Replacement + out[end:]
		lastStart = v.LocationOffset
		applied++
	}

	return out, applied
}
