// Copyright (C) 2025 The ServiceIT AI Extension Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for license details.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package snapshot

import (
	"context"

	"github.com/NotTwinkle/ServiceIT-AI-Extension-sub000/services/assistant/remote"
)

// Identifiable is satisfied by every remote record type.
type Identifiable interface {
	RecordID() string
}

// listFunc fetches one page of records.
type listFunc[T Identifiable] func(ctx context.Context, opts remote.ListOptions) ([]T, error)

// probeAlphabet is the set of single-character prefixes used by the
// keyspace probing fallback. Remote search is case-insensitive, so
// lowercase covers the full name space; digits catch records whose
// display name starts with a number.
const probeAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// collectPaginated walks a collection with offset pagination.
//
// Description:
//
//	Pages are requested at cfg.PageSize until a short page signals the
//	end, the hard page cap is hit, or the context is cancelled.
//	Records already present in seen are skipped, and every accepted
//	record's ID is added to seen, so overlapping strategies for the
//	same collection cannot produce duplicates.
//
// Outputs:
//
//	[]T - Accepted records in fetch order.
//	error - The fetch error, with any records collected before it.
func collectPaginated[T Identifiable](ctx context.Context, fetch listFunc[T], cfg Config, seen map[string]struct{}) ([]T, error) {
	var out []T

	for page := 0; page < cfg.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		batch, err := fetch(ctx, remote.ListOptions{
			Offset: page * cfg.PageSize,
			Limit:  cfg.PageSize,
		})
		if err != nil {
			return out, err
		}

		out = appendUnseen(out, batch, seen)

		if len(batch) < cfg.PageSize {
			break
		}
	}

	return out, nil
}

// collectProbed enumerates a collection the actor may not list
// wholesale by issuing one prefix query per alphabet character.
//
// Description:
//
//	Each probe paginates up to cfg.MaxPagesPerProbe pages. A record
//	whose name matches several probes is accepted once; the shared
//	seen set deduplicates. Probing stops outright once the seen set
//	reaches cfg.MaxRecords. A failed probe abandons only that letter,
//	the remaining probes still run, so a transient error costs
//	coverage of one prefix rather than the whole collection.
func collectProbed[T Identifiable](ctx context.Context, fetch listFunc[T], cfg Config, seen map[string]struct{}) ([]T, error) {
	var out []T
	var lastErr error

	for _, r := range probeAlphabet {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if len(seen) >= cfg.MaxRecords {
			break
		}

		probe := string(r)
		for page := 0; page < cfg.MaxPagesPerProbe; page++ {
			batch, err := fetch(ctx, remote.ListOptions{
				Offset: page * cfg.PageSize,
				Limit:  cfg.PageSize,
				Query:  probe,
			})
			if err != nil {
				lastErr = err
				break
			}

			out = appendUnseen(out, batch, seen)

			if len(seen) >= cfg.MaxRecords || len(batch) < cfg.PageSize {
				break
			}
		}
	}

	if len(out) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return out, nil
}

// appendUnseen appends records whose IDs are not yet in seen and
// registers them.
func appendUnseen[T Identifiable](dst []T, batch []T, seen map[string]struct{}) []T {
	for _, record := range batch {
		id := record.RecordID()
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		dst = append(dst, record)
	}
	return dst
}
