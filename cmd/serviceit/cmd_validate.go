// Copyright (C) 2025 The ServiceIT AI Extension Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for license details.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/NotTwinkle/ServiceIT-AI-Extension-sub000/services/assistant/datatypes"
	"github.com/NotTwinkle/ServiceIT-AI-Extension-sub000/services/assistant/grounding"
)

// runValidate checks one response against a fact set file and prints
// the grounding result as JSON. The process exits non-zero when the
// response contains critical violations, so scripts can gate on it.
func runValidate(cmd *cobra.Command, args []string) {
	cfg := mustLoadConfig()
	appLogger := newLogger(cfg, "cli")
	defer appLogger.Close()

	response := responseIn
	if response == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			log.Fatalf("Failed to read response from stdin: %v", err)
		}
		response = string(data)
	}

	facts := datatypes.NewGroundedFactSet()
	if factsPath != "" {
		data, err := os.ReadFile(factsPath)
		if err != nil {
			log.Fatalf("Failed to read facts file: %v", err)
		}
		if err := json.Unmarshal(data, facts); err != nil {
			log.Fatalf("Failed to parse facts file: %v", err)
		}
	}

	mode := cfg.Grounding.Mode
	if groundingMode != "" {
		mode = groundingMode
	}

	validator := grounding.NewValidator(grounding.Config{
		Mode: grounding.Mode(mode),
	}, appLogger.Slog())

	result := validator.Validate(context.Background(), response, facts)

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		log.Fatalf("Failed to encode result: %v", err)
	}

	if result.HasCritical() {
		os.Exit(1)
	}
}
