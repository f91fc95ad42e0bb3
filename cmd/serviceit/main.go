// Copyright (C) 2025 The ServiceIT AI Extension Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for license details.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command serviceit runs the ServiceIT grounding assistant.
//
// The primary mode is `serviceit serve`, which starts the HTTP server
// exposing context assembly, response validation, snapshot, cache, and
// change monitor endpoints. A few utility subcommands operate on the
// local cache and the grounding validator directly.
//
// # Usage
//
//	# Build
//	go build -o serviceit ./cmd/serviceit
//
//	# Run the server with a config file
//	./serviceit serve --config config.yaml
//
//	# Inspect the local cache
//	./serviceit cache stats
package main

import (
	"log"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}
